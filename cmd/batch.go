package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"doctools/internal/classify"
	"doctools/internal/docai"
	"doctools/internal/logger"
	"doctools/internal/pipeline"
	"doctools/internal/storage"
	"doctools/pkg/models"
)

var batchCmd = &cobra.Command{
	Use:   "batch [gs://bucket/prefix]",
	Short: "Extract documents in Cloud Storage with a Document AI batch operation",
	Long: `Submit every accepted object under a Cloud Storage prefix to one parser as
long-running batch operations of at most 50 documents, wait for them to
finish, then read the Document JSON results from the output bucket and print
one flat record per input.

The parser is chosen by --classification through the processor map, or given
directly with --processor-id.`,
	Example: `  # Extract all W-2 forms under a prefix
  doctools batch gs://my-uploads/w2 --classification w2 --json

  # Use a processor directly and keep the results under a known prefix
  doctools batch gs://my-uploads/invoices --processor-id 1a2b3c4d --output gs://my-output/invoices`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().String("classification", "", "Classification label used to route to a parser")
	batchCmd.Flags().String("processor-id", "", "Parser processor id (overrides --classification routing)")
	batchCmd.Flags().String("output", "", "gs:// prefix for Document JSON results (default: $GCS_OUTPUT_BUCKET/$GCS_OUTPUT_PREFIX)")
	batchCmd.Flags().StringP("file", "o", "", "Output file path (default: stdout)")
	batchCmd.Flags().Bool("json", false, "Output as JSON")
	batchCmd.Flags().Float32("min-confidence", 0, "Drop entities below this confidence")
	batchCmd.Flags().Int("timeout", 60, "Operation timeout in minutes")
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("batch")

	classification, _ := cmd.Flags().GetString("classification")
	processorID, _ := cmd.Flags().GetString("processor-id")
	outputURI, _ := cmd.Flags().GetString("output")
	outputPath, _ := cmd.Flags().GetString("file")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	minConfidence, _ := cmd.Flags().GetFloat32("min-confidence")
	timeoutMins, _ := cmd.Flags().GetInt("timeout")

	bucket, prefix, err := storage.SplitURI(args[0])
	if err != nil {
		return err
	}

	cfg, processors, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	router := classify.NewRouter(processors)
	route := router.Select(classification)
	if processorID == "" {
		processorID = route.ProcessorID
	}
	if processorID == "" {
		return fmt.Errorf("no processor id for %s. Use --processor-id or set it in the processor map", route.ProcessorType)
	}
	if outputURI == "" {
		if cfg.GCSOutputBucket == "" {
			return fmt.Errorf("no output location. Use --output or set GCS_OUTPUT_BUCKET")
		}
		outputURI = storage.URI(cfg.GCSOutputBucket, storage.Join(cfg.GCSOutputPrefix, uuid.NewString()))
	}
	outBucket, outPrefix, err := storage.SplitURI(outputURI)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutMins)*time.Minute, log)
	defer cancel()

	client, err := createDocAIClient(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer client.Close()

	store, err := storage.NewGCS(ctx)
	if err != nil {
		return fmt.Errorf("failed to create Cloud Storage client: %w", err)
	}
	defer store.Close()

	objects, err := store.List(ctx, bucket, prefix)
	if err != nil {
		return err
	}
	batches, err := storage.CreateBatches(objects, cfg.BatchMaxFiles)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		fmt.Println("No supported documents found.")
		return nil
	}

	log.Info().
		Str("input", args[0]).
		Str("output", outputURI).
		Str("processor_id", processorID).
		Int("batches", len(batches)).
		Msg("Starting batch extraction")

	var outputs []pipeline.BatchOutput
	for i, batch := range batches {
		inputs := make([]docai.BatchInput, 0, len(batch))
		for _, obj := range batch {
			inputs = append(inputs, docai.BatchInput{URI: storage.URI(obj.Bucket, obj.Name), MimeType: storage.ContentType(obj)})
		}

		statuses, err := client.BatchProcess(ctx, processorID, inputs, storage.URI(outBucket, storage.Join(outPrefix, fmt.Sprint(i))))
		if err != nil {
			return handleExtractionError(err, log)
		}
		for _, st := range statuses {
			if !st.OK() {
				log.Warn().Str("file", st.InputURI).Str("message", st.Message).Msg("Document failed in batch")
				continue
			}
			outputs = append(outputs, pipeline.BatchOutput{InputURI: st.InputURI, OutputURI: st.OutputURI})
		}
		fmt.Printf("[%d/%d] batch of %d documents completed\n", i+1, len(batches), len(batch))
	}

	opts := pipeline.DefaultOptions()
	opts.MinConfidence = minConfidence
	p := pipeline.New(client, router, opts, pipeline.WithStore(store))

	var records []*models.Record
	for _, r := range p.CollectBatch(ctx, classification, outputs) {
		if r.Err != nil {
			log.Warn().Err(r.Err).Msg("Failed to read batch output")
			continue
		}
		records = append(records, r.Records...)
	}

	return outputRecords(records, outputPath, jsonOutput, log)
}
