package cmd

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2/google"

	"doctools/internal/classify"
	"doctools/internal/config"
	"doctools/internal/flatten"
	"doctools/internal/logger"
	"doctools/internal/metrics"
	"doctools/internal/notify"
	"doctools/internal/pipeline"
	"doctools/internal/sink"
	"doctools/internal/splitter"
	"doctools/internal/storage"
	"doctools/pkg/models"
	"doctools/pkg/services"
)

const (
	sinkBigQuery  = "bigquery"
	sinkSheets    = "sheets"
	sinkFirestore = "firestore"
	sinkRedis     = "redis"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Classify, split and extract every document in a bucket",
	Long: `Run the full document pipeline over all objects under a bucket prefix.

Objects are grouped into batches of at most BATCH_MAX_FILES (50) accepted
files. Each file is classified, split into sub-documents when it bundles
several documents, and every part is extracted by the parser its
classification routes to. Flattened records are written to the selected
sinks, processed files are moved to the archive bucket, a classification
summary is written to the output bucket and the workflow callback is sent.

Required environment variables:
  GOOGLE_CLOUD_PROJECT - Your Google Cloud project ID
  GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS - Service account credentials
  PROCESSOR_CONFIG - YAML processor map with classifier and parser ids

Optional environment variables:
  GCS_INPUT_BUCKET, GCS_INPUT_PREFIX - Where to read documents
  GCS_SPLIT_BUCKET, GCS_OUTPUT_BUCKET, GCS_ARCHIVE_BUCKET - Where to write
  BIGQUERY_DATASET, BIGQUERY_TABLE - BigQuery sink
  GOOGLE_SHEET_URL, GOOGLE_SHEET_WORKSHEET - Google Sheets sink
  FIRESTORE_COLLECTION - Firestore sink
  REDIS_ADDR, REDIS_PASSWORD, REDIS_DB - Redis sink
  CALL_BACK_URL - Workflow callback
  BATCH_MAX_FILES, BATCH_MAX_REQUESTS - Batch size and concurrency`,
	Example: `  # Process the upload folder into BigQuery
  doctools pipeline --sink bigquery

  # Process a prefix into BigQuery and Firestore, exposing metrics
  doctools pipeline --bucket my-uploads --prefix 2024/05 --sink bigquery,firestore --metrics-addr :9090

  # Dry run against a local directory tree (buckets are subdirectories)
  doctools pipeline --local-root ./data --bucket input --dry-run`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(pipelineCmd)

	pipelineCmd.Flags().String("bucket", "", "Input bucket (default: $GCS_INPUT_BUCKET)")
	pipelineCmd.Flags().String("prefix", "", "Input prefix (default: $GCS_INPUT_PREFIX)")
	pipelineCmd.Flags().StringSlice("sink", nil, "Record sinks: bigquery, sheets, firestore, redis")
	pipelineCmd.Flags().StringSlice("columns", []string{models.FieldSourceFile, models.FieldClassification, models.FieldBroadClassification},
		"Columns of the Google Sheets sink")
	pipelineCmd.Flags().String("local-root", "", "Use a local directory as the object store instead of Cloud Storage")
	pipelineCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (default: $METRICS_ADDR)")
	pipelineCmd.Flags().Bool("skip-unclassified", false, "Skip files no classifier recognizes")
	pipelineCmd.Flags().Bool("random-suffix", false, "Append a random suffix to split file names")
	pipelineCmd.Flags().Float32("min-confidence", 0, "Drop entities below this confidence")
	pipelineCmd.Flags().Float64("rate", 0, "Maximum Document AI requests per second (0 = unlimited)")
	pipelineCmd.Flags().Bool("dry-run", false, "Process files without writing sinks, buckets or the callback")
	pipelineCmd.Flags().Int("timeout", 30, "Run timeout in minutes")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("pipeline")

	bucket, _ := cmd.Flags().GetString("bucket")
	prefix, _ := cmd.Flags().GetString("prefix")
	sinkNames, _ := cmd.Flags().GetStringSlice("sink")
	columns, _ := cmd.Flags().GetStringSlice("columns")
	localRoot, _ := cmd.Flags().GetString("local-root")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	skipUnclassified, _ := cmd.Flags().GetBool("skip-unclassified")
	randomSuffix, _ := cmd.Flags().GetBool("random-suffix")
	minConfidence, _ := cmd.Flags().GetFloat32("min-confidence")
	ratePerSecond, _ := cmd.Flags().GetFloat64("rate")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	timeoutMins, _ := cmd.Flags().GetInt("timeout")

	cfg, processors, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if bucket == "" {
		bucket = cfg.GCSInputBucket
	}
	if prefix == "" && !cmd.Flags().Changed("prefix") {
		prefix = cfg.GCSInputPrefix
	}
	if metricsAddr == "" {
		metricsAddr = cfg.MetricsAddr
	}
	if bucket == "" {
		return fmt.Errorf("no input bucket. Use --bucket or set GCS_INPUT_BUCKET")
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("                         DOCUMENT PIPELINE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Input: %s\n", storage.URI(bucket, prefix))
	if len(sinkNames) > 0 {
		fmt.Printf("Sinks: %s\n", strings.Join(sinkNames, ", "))
	}
	if dryRun {
		fmt.Printf("Mode: Dry Run (no sinks, archive or callback)\n")
	}
	fmt.Println()

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutMins)*time.Minute, log)
	defer cancel()

	if metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, metricsAddr); err != nil {
				log.Error().Err(err).Str("addr", metricsAddr).Msg("Metrics server failed")
			}
		}()
	}

	client, err := createDocAIClient(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer client.Close()

	store, closeStore, err := createStore(ctx, localRoot)
	if err != nil {
		return err
	}
	defer closeStore()

	tables, documents, closeSinks, err := createSinks(ctx, cfg, sinkNames, columns, log)
	if err != nil {
		return err
	}
	defer closeSinks()

	router := classify.NewRouter(processors)
	classifier := classify.NewClassifier(client, router.Classifiers(), classify.Options{
		Threshold:    float32(cfg.ClassificationConfidenceThreshold),
		DefaultClass: cfg.ClassificationDefaultClass,
	})

	var splitOpts []splitter.Option
	if randomSuffix {
		splitOpts = append(splitOpts, splitter.WithRandomSuffix())
	}

	opts := pipeline.Options{
		SplitBucket:      cfg.GCSSplitBucket,
		SplitPrefix:      cfg.GCSSplitPrefix,
		OutputBucket:     cfg.GCSOutputBucket,
		ArchiveBucket:    cfg.GCSArchiveBucket,
		MinConfidence:    minConfidence,
		SkipUnclassified: skipUnclassified,
		BatchSize:        cfg.BatchMaxFiles,
		MaxConcurrent:    cfg.BatchMaxRequests,
		RatePerSecond:    ratePerSecond,
		DryRun:           dryRun,
	}

	p := pipeline.New(client, router, opts,
		pipeline.WithClassifier(classifier),
		pipeline.WithSplitter(splitter.New(splitOpts...)),
		pipeline.WithStore(store),
		pipeline.WithTableSinks(tables...),
		pipeline.WithDocumentSinks(documents...),
		pipeline.WithNotifier(createNotifier(ctx, cfg, log)),
		pipeline.WithProgress(printProgress),
	)

	summary, err := p.Run(ctx, bucket, prefix)
	if err != nil {
		return handleExtractionError(err, log)
	}

	printPipelineSummary(summary)
	return nil
}

func createStore(ctx context.Context, localRoot string) (services.ObjectStore, func(), error) {
	if localRoot != "" {
		return storage.NewLocal(localRoot), func() {}, nil
	}

	gcs, err := storage.NewGCS(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Cloud Storage client: %w", err)
	}
	return gcs, func() { _ = gcs.Close() }, nil
}

// createSinks builds the requested sinks. Table sinks receive every record,
// document sinks one document per broad classification.
func createSinks(ctx context.Context, cfg *config.Config, names, columns []string, log zerolog.Logger) ([]services.TableSink, []services.DocumentSink, func(), error) {
	var tables []services.TableSink
	var documents []services.DocumentSink
	var closers []func() error

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn().Err(err).Msg("Failed to close sink")
			}
		}
	}

	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case sinkBigQuery:
			if cfg.BigQueryDataset == "" {
				closeAll()
				return nil, nil, nil, fmt.Errorf("bigquery sink requires BIGQUERY_DATASET")
			}
			s, err := sink.NewBigQuerySink(ctx, cfg.BigQueryProjectID, cfg.BigQueryDataset, flatten.SanitizeIdentifier(cfg.BigQueryTable))
			if err != nil {
				closeAll()
				return nil, nil, nil, err
			}
			tables = append(tables, s)
			closers = append(closers, s.Close)
		case sinkSheets:
			if cfg.GoogleSheetURL == "" {
				closeAll()
				return nil, nil, nil, fmt.Errorf("sheets sink requires GOOGLE_SHEET_URL")
			}
			s, err := sink.NewSheetsSink(ctx, cfg.GoogleSheetURL, cfg.GoogleSheetWorksheet, columns)
			if err != nil {
				closeAll()
				return nil, nil, nil, err
			}
			tables = append(tables, s)
		case sinkFirestore:
			if cfg.FirestoreCollection == "" {
				closeAll()
				return nil, nil, nil, fmt.Errorf("firestore sink requires FIRESTORE_COLLECTION")
			}
			s, err := sink.NewFirestoreSink(ctx, cfg.FirestoreProjectID, cfg.FirestoreCollection)
			if err != nil {
				closeAll()
				return nil, nil, nil, err
			}
			documents = append(documents, s)
			closers = append(closers, s.Close)
		case sinkRedis:
			if cfg.RedisAddr == "" {
				closeAll()
				return nil, nil, nil, fmt.Errorf("redis sink requires REDIS_ADDR")
			}
			s, err := sink.NewRedisSink(ctx, sink.RedisOptions{
				Addr:      cfg.RedisAddr,
				Password:  cfg.RedisPassword,
				DB:        cfg.RedisDB,
				KeyPrefix: cfg.RedisKeyPrefix,
			})
			if err != nil {
				closeAll()
				return nil, nil, nil, err
			}
			documents = append(documents, s)
			closers = append(closers, s.Close)
		default:
			closeAll()
			return nil, nil, nil, fmt.Errorf("unknown sink %q (use bigquery, sheets, firestore or redis)", name)
		}
		log.Debug().Str("sink", name).Msg("Sink created")
	}

	return tables, documents, closeAll, nil
}

// createNotifier returns the workflow callback, authenticated with the
// default credentials when they are available.
func createNotifier(ctx context.Context, cfg *config.Config, log zerolog.Logger) services.Notifier {
	var opts []notify.Option
	if cfg.CallbackURL != "" {
		ts, err := google.DefaultTokenSource(ctx, "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			log.Warn().Err(err).Msg("No default credentials for the callback, sending without a token")
		} else {
			opts = append(opts, notify.WithTokenSource(ts))
		}
	}
	return notify.NewCallback(cfg.CallbackURL, opts...)
}

func printProgress(done, total int, r pipeline.FileResult) {
	fmt.Printf("[%d/%d] %s - %s", done, total, path.Base(r.Name), r.Status())
	switch {
	case r.Err != nil:
		fmt.Printf(" (%s)", r.Err.Error())
	case r.Split:
		fmt.Printf(" (%s, %d documents)", r.Classification, len(r.Units))
	case r.Classification != "":
		fmt.Printf(" (%s)", r.Classification)
	}
	fmt.Println()
}

func printPipelineSummary(s *pipeline.Summary) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("                 RESULT")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Batches: %d\n", s.Batches)
	fmt.Printf("Processed: %d\n", s.Processed)
	if s.Skipped > 0 {
		fmt.Printf("Skipped: %d\n", s.Skipped)
	}
	if s.Failed > 0 {
		fmt.Printf("Failed: %d\n", s.Failed)
	}
	for name, n := range s.RecordsWritten {
		fmt.Printf("Records written to %s: %d\n", name, n)
	}
	for _, e := range s.SinkErrors {
		fmt.Printf("Sink error: %s\n", e)
	}
	if s.OutputURI != "" {
		fmt.Printf("Summary: %s\n", s.OutputURI)
	}
	fmt.Println(strings.Repeat("=", 80))
}
