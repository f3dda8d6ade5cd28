package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"doctools/internal/classify"
	"doctools/internal/config"
	"doctools/internal/docai"
	"doctools/internal/logger"
	"doctools/internal/splitter"
	"doctools/internal/storage"
	"doctools/pkg/models"
)

var splitCmd = &cobra.Command{
	Use:   "split [pdf-file]",
	Short: "Split a PDF bundle into one file per classified document",
	Long: `Split a multi-document PDF into sub-documents, one per entity returned by a
Document AI classifier or splitter processor.

The classification comes either from a live classifier call (the processors
in the processor map, or --classifier-id) or from a Document JSON file saved
from an earlier run (--document). Every entity with page references becomes
one PDF named {name}_pg{first}-{last}_{type}.pdf in the output directory.`,
	Example: `  # Split with the configured classifiers
  doctools split bundle.pdf --output-dir split/

  # Split with a specific splitter processor
  doctools split bundle.pdf --classifier-id 9f8e7d6c --output-dir split/

  # Split offline from a saved Document JSON
  doctools split bundle.pdf --document bundle.json --output-dir split/`,
	Args: cobra.ExactArgs(1),
	RunE: runSplit,
}

// SplitOutput is the JSON manifest written with --json
type SplitOutput struct {
	Source       string              `json:"source"`
	Documents    []SplitDocumentInfo `json:"documents"`
	Unclassified bool                `json:"unclassified,omitempty"`
}

type SplitDocumentInfo struct {
	File           string  `json:"file"`
	Classification string  `json:"classification"`
	Confidence     float32 `json:"confidence"`
	Pages          string  `json:"pages"`
	PageCount      int     `json:"page_count"`
}

func init() {
	rootCmd.AddCommand(splitCmd)

	splitCmd.Flags().String("output-dir", ".", "Directory for the split files")
	splitCmd.Flags().String("classifier-id", "", "Classifier or splitter processor id (default: processor map classifiers)")
	splitCmd.Flags().String("document", "", "Document JSON with the classification, instead of calling a classifier")
	splitCmd.Flags().Bool("random-suffix", false, "Append a random suffix to every file name")
	splitCmd.Flags().Bool("json", false, "Print a JSON manifest of the split files")
	splitCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runSplit(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("split")

	outputDir, _ := cmd.Flags().GetString("output-dir")
	classifierID, _ := cmd.Flags().GetString("classifier-id")
	documentPath, _ := cmd.Flags().GetString("document")
	randomSuffix, _ := cmd.Flags().GetBool("random-suffix")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	path := args[0]

	log.Info().
		Str("file", path).
		Str("output_dir", outputDir).
		Str("classifier_id", classifierID).
		Str("document", documentPath).
		Msg("Starting split")

	content, err := readInputFile(path, log)
	if err != nil {
		return err
	}

	doc, err := splitter.Open(filepath.Base(path), storage.MimeTypeOf(path), content)
	if err != nil {
		return handleExtractionError(err, log)
	}

	var entities []models.Entity
	if documentPath != "" {
		data, err := os.ReadFile(documentPath)
		if err != nil {
			return fmt.Errorf("failed to read document JSON: %w", err)
		}
		result, err := docai.ParseDocumentJSON(data)
		if err != nil {
			return handleExtractionError(err, log)
		}
		entities = result.Entities
	} else {
		entities, err = classifyForSplit(cmd, path, content, classifierID, timeoutSecs)
		if err != nil {
			return err
		}
	}

	var opts []splitter.Option
	if randomSuffix {
		opts = append(opts, splitter.WithRandomSuffix())
	}
	subs, err := splitter.New(opts...).Split(filepath.Base(path), doc, entities)
	if err != nil {
		return fmt.Errorf("failed to split document: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	manifest := SplitOutput{Source: path, Documents: []SplitDocumentInfo{}, Unclassified: len(subs) == 0}
	for _, sub := range subs {
		target := filepath.Join(outputDir, sub.Filename)
		if err := os.WriteFile(target, sub.Bytes, 0644); err != nil {
			log.Error().Err(err).Str("output_file", target).Msg("Failed to write sub-document")
			return fmt.Errorf("failed to write %s: %w", target, err)
		}
		manifest.Documents = append(manifest.Documents, SplitDocumentInfo{
			File:           target,
			Classification: sub.ClassificationType,
			Confidence:     sub.Confidence,
			Pages:          sub.PageLabel(),
			PageCount:      sub.PageCount,
		})
	}

	log.Info().
		Int("documents", len(subs)).
		Int("page_count", doc.PageCount()).
		Msg("Split completed successfully")

	if jsonOutput {
		data, err := json.MarshalIndent(manifest, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		return writeOutput("", append(data, '\n'), log)
	}

	if len(subs) == 0 {
		fmt.Println("No page-anchored documents found; nothing was split.")
		return nil
	}
	for _, d := range manifest.Documents {
		fmt.Printf("%s  %-30s pages %s  (%.1f%%)\n", d.File, d.Classification, d.Pages, d.Confidence*100)
	}
	return nil
}

// classifyForSplit calls the classifiers and returns the entities of the
// classifier that recognized the document.
func classifyForSplit(cmd *cobra.Command, path string, content []byte, classifierID string, timeoutSecs int) ([]models.Entity, error) {
	log := logger.WithFile("split", path)

	cfg, processors, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	classifiers := processors.Classifiers
	if classifierID != "" {
		classifiers = []config.Processor{{Type: "CLASSIFIER", ID: classifierID}}
	}
	if len(classifiers) == 0 {
		return nil, fmt.Errorf("no classifier configured. Use --classifier-id, --document or add classifiers to the processor map")
	}

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	client, err := createDocAIClient(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	result, err := classify.NewClassifier(client, classifiers, classify.Options{}).
		Classify(ctx, path, content, storage.MimeTypeOf(path))
	if err != nil {
		return nil, handleExtractionError(err, log)
	}

	log.Info().
		Str("classification", result.Label).
		Float32("confidence", result.Confidence).
		Int("entities", len(result.Entities)).
		Msg("Document classified")
	return result.Entities, nil
}
