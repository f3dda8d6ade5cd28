package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"doctools/internal/classify"
	"doctools/internal/flatten"
	"doctools/internal/logger"
	"doctools/internal/pipeline"
	"doctools/internal/storage"
	"doctools/pkg/models"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Extract a document into flat records using Document AI",
	Long: `Process a local document with Document AI and print the extracted entities
as flat records of field name to value.

Without flags the document is classified with the configured classifier
processors, split when it contains several documents, and every part is
extracted by the parser its classification routes to. Use --classification to
skip the classifiers, or --processor-id to send the file to one processor.

Required environment variables:
  GOOGLE_CLOUD_PROJECT - Your Google Cloud project ID
  GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS - Service account credentials
  PROCESSOR_CONFIG - YAML processor map with classifier and parser ids`,
	Example: `  # Classify, split and extract a bundle
  doctools extract bundle.pdf

  # Extract a known W-2 as JSON
  doctools extract w2.pdf --classification w2 --json

  # Send a file to a specific processor and save the record
  doctools extract invoice.pdf --processor-id 1a2b3c4d --json -o invoice.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	extractCmd.Flags().Bool("json", false, "Output as JSON")
	extractCmd.Flags().String("processor-id", "", "Process with this processor id, skipping classification and routing")
	extractCmd.Flags().String("classification", "", "Route by this classification label instead of classifying")
	extractCmd.Flags().Float32("min-confidence", 0, "Drop entities below this confidence")
	extractCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	processorID, _ := cmd.Flags().GetString("processor-id")
	classification, _ := cmd.Flags().GetString("classification")
	minConfidence, _ := cmd.Flags().GetFloat32("min-confidence")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	path := args[0]

	log.Info().
		Str("file", path).
		Str("processor_id", processorID).
		Str("classification", classification).
		Bool("json", jsonOutput).
		Msg("Starting extraction")

	cfg, processors, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	content, err := readInputFile(path, log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	client, err := createDocAIClient(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer client.Close()

	mimeType := storage.MimeTypeOf(path)
	startTime := time.Now()

	var records []*models.Record
	if processorID != "" {
		result, err := client.Process(ctx, processorID, content, mimeType)
		if err != nil {
			return handleExtractionError(err, log)
		}
		record := flatten.Flatten(flatten.FilterByConfidence(result.Entities, minConfidence))
		record.Set(models.FieldSourceFile, filepath.Base(path))
		records = append(records, record)
	} else {
		router := classify.NewRouter(processors)
		opts := pipeline.DefaultOptions()
		opts.MinConfidence = minConfidence

		var options []pipeline.Option
		if classification == "" {
			options = append(options, pipeline.WithClassifier(classify.NewClassifier(client, router.Classifiers(), classify.Options{
				Threshold:    float32(cfg.ClassificationConfidenceThreshold),
				DefaultClass: cfg.ClassificationDefaultClass,
			})))
		}

		p := pipeline.New(client, router, opts, options...)
		result := p.ProcessFile(ctx, pipeline.Input{
			Name:           filepath.Base(path),
			MimeType:       mimeType,
			Content:        content,
			Classification: classification,
		})
		if result.Err != nil && len(result.Records) == 0 {
			return handleExtractionError(result.Err, log)
		}
		if result.Err != nil {
			log.Warn().Err(result.Err).Msg("Some documents could not be extracted")
		}
		records = result.Records
	}

	log.Info().
		Int("records", len(records)).
		Dur("duration", time.Since(startTime)).
		Msg("Extraction completed successfully")

	return outputRecords(records, outputPath, jsonOutput, log)
}

// outputRecords prints records as a JSON array or as key: value blocks.
func outputRecords(records []*models.Record, outputPath string, jsonOutput bool, log zerolog.Logger) error {
	var data []byte
	if jsonOutput {
		if records == nil {
			records = []*models.Record{}
		}
		var err error
		data, err = json.MarshalIndent(records, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal JSON output")
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		data = append(data, '\n')
	} else {
		var out strings.Builder
		for i, record := range records {
			if i > 0 {
				out.WriteString("\n")
			}
			source, _ := record.Get(models.FieldSourceFile)
			class, _ := record.Get(models.FieldClassification)
			out.WriteString(fmt.Sprintf("=== %s", source))
			if class != "" {
				out.WriteString(fmt.Sprintf(" (%s)", class))
			}
			out.WriteString(" ===\n")
			for _, key := range record.Keys() {
				value, _ := record.Get(key)
				out.WriteString(fmt.Sprintf("%s: %s\n", key, value))
			}
			for _, child := range record.Children() {
				out.WriteString(fmt.Sprintf("  %s > %s: %s\n", child.Parent, child.Type, child.Value))
			}
		}
		data = []byte(out.String())
	}

	return writeOutput(outputPath, data, log)
}
