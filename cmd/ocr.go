package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"doctools/internal/logger"
	"doctools/internal/storage"
	"doctools/pkg/models"
)

// ocrProcessorType is the processor map entry used when --processor-id is not given.
const ocrProcessorType = "OCR_PROCESSOR"

var ocrCmd = &cobra.Command{
	Use:   "ocr [file]",
	Short: "Extract text from a document using the Document AI OCR processor",
	Long: `Process a PDF or image with a Document AI OCR processor to extract all text
content and the languages detected on every page.

The processor id comes from --processor-id or the OCR_PROCESSOR entry of the
processor map. Online processing accepts files up to 20MB.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_CLOUD_PROJECT - Your Google Cloud project ID`,
	Example: `  # Extract text from scan.pdf to stdout
  doctools ocr scan.pdf --processor-id 5e6f7a8b

  # Save extracted text to file
  doctools ocr scan.pdf -o extracted.txt

  # Include page languages and output as JSON
  doctools ocr scan.pdf --metadata --json -o result.json`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput represents the JSON output structure when --json flag is used
type OCROutput struct {
	Text               string        `json:"text"`
	PageCount          int           `json:"page_count"`
	LanguageCodes      []string      `json:"language_codes,omitempty"`
	Pages              []OCRPageInfo `json:"pages,omitempty"`
	ProcessedAt        time.Time     `json:"processed_at"`
	ProcessingDuration string        `json:"processing_duration"`
	FileName           string        `json:"file_name"`
	FileSize           int           `json:"file_size"`
}

// OCRPageInfo lists the languages detected on one page
type OCRPageInfo struct {
	PageNumber int                       `json:"page_number"`
	Languages  []models.DetectedLanguage `json:"languages"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().BoolP("metadata", "m", false, "Include metadata in output")
	ocrCmd.Flags().Bool("json", false, "Output as JSON")
	ocrCmd.Flags().String("processor-id", "", "OCR processor id (default: OCR_PROCESSOR from the processor map)")
	ocrCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	includeMetadata, _ := cmd.Flags().GetBool("metadata")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	processorID, _ := cmd.Flags().GetString("processor-id")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	path := args[0]

	cfg, processors, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if processorID == "" {
		processorID = processors.Parsers[ocrProcessorType].ID
	}
	if processorID == "" {
		return fmt.Errorf("no OCR processor configured. Use --processor-id or add %s to the processor map", ocrProcessorType)
	}

	log.Info().
		Str("file", path).
		Str("processor_id", processorID).
		Bool("metadata", includeMetadata).
		Bool("json", jsonOutput).
		Msg("Starting OCR processing")

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

	startTime := time.Now()
	result, err := client.Process(ctx, processorID, content, storage.MimeTypeOf(path))
	if err != nil {
		return handleExtractionError(err, log)
	}
	duration := time.Since(startTime)

	log.Info().
		Int("page_count", len(result.Pages)).
		Dur("duration", duration).
		Int("text_length", len(result.Text)).
		Msg("OCR processing completed successfully")

	return outputOCR(result, filepath.Base(path), len(content), duration, outputPath, jsonOutput, includeMetadata, log)
}

// languageCodes returns every detected language code, most confident first.
func languageCodes(pages []models.Page) []string {
	best := make(map[string]float32)
	for _, page := range pages {
		for _, lang := range page.DetectedLanguages {
			if c, ok := best[lang.LanguageCode]; !ok || lang.Confidence > c {
				best[lang.LanguageCode] = lang.Confidence
			}
		}
	}

	codes := make([]string, 0, len(best))
	for code := range best {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		if best[codes[i]] != best[codes[j]] {
			return best[codes[i]] > best[codes[j]]
		}
		return codes[i] < codes[j]
	})
	return codes
}

// outputOCR formats and outputs the OCR results
func outputOCR(result *models.ExtractionResult, fileName string, fileSize int, duration time.Duration, outputPath string, jsonOutput, includeMetadata bool, log zerolog.Logger) error {
	var data []byte

	if jsonOutput {
		out := OCROutput{
			Text:               result.Text,
			PageCount:          len(result.Pages),
			LanguageCodes:      languageCodes(result.Pages),
			ProcessedAt:        time.Now(),
			ProcessingDuration: duration.String(),
			FileName:           fileName,
			FileSize:           fileSize,
		}
		if includeMetadata {
			for _, page := range result.Pages {
				out.Pages = append(out.Pages, OCRPageInfo{PageNumber: page.PageNumber, Languages: page.DetectedLanguages})
			}
		}

		var err error
		data, err = json.MarshalIndent(out, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal JSON output")
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
	} else {
		var output strings.Builder
		if includeMetadata {
			output.WriteString(fmt.Sprintf("=== OCR Results for %s ===\n", fileName))
			output.WriteString(fmt.Sprintf("File size: %d bytes\n", fileSize))
			output.WriteString(fmt.Sprintf("Pages processed: %d\n", len(result.Pages)))
			if codes := languageCodes(result.Pages); len(codes) > 0 {
				output.WriteString(fmt.Sprintf("Languages: %s\n", strings.Join(codes, ", ")))
			}
			for _, page := range result.Pages {
				langs := make([]string, 0, len(page.DetectedLanguages))
				for _, lang := range page.DetectedLanguages {
					langs = append(langs, fmt.Sprintf("%s (%.0f%%)", lang.LanguageCode, lang.Confidence*100))
				}
				output.WriteString(fmt.Sprintf("  Page %d: %s\n", page.PageNumber, strings.Join(langs, ", ")))
			}
			output.WriteString(fmt.Sprintf("Processing time: %v\n", duration))
			output.WriteString("\n=== Extracted Text ===\n\n")
		}
		output.WriteString(result.Text)
		data = []byte(output.String())
	}

	return writeOutput(outputPath, data, log)
}
