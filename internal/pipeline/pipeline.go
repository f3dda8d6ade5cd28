// Package pipeline runs documents through classification, splitting,
// extraction and flattening, and hands the records to the configured sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"doctools/internal/classify"
	"doctools/internal/flatten"
	"doctools/internal/logger"
	"doctools/internal/metrics"
	"doctools/internal/splitter"
	"doctools/internal/storage"
	"doctools/pkg/models"
	"doctools/pkg/services"
)

// ErrNoProcessor is returned when a classification routes to a processor
// type with no deployed processor id.
var ErrNoProcessor = errors.New("no processor configured")

// Options controls batching and where artifacts are written.
type Options struct {
	SplitBucket   string // sub-documents are written here when set
	SplitPrefix   string
	OutputBucket  string // classification summaries are written here
	ArchiveBucket string // processed inputs are moved here when set

	// MinConfidence drops extracted entities below the threshold before flattening.
	MinConfidence float32
	// SkipUnclassified skips files no classifier recognized.
	SkipUnclassified bool

	BatchSize     int     // files per batch, at most storage.MaxBatchSize
	MaxConcurrent int     // files processed at once
	RatePerSecond float64 // extraction requests per second, zero for no limit

	// DryRun processes files without writing to sinks, buckets or the callback.
	DryRun bool
}

// DefaultOptions returns the batch limits of the extraction service.
func DefaultOptions() Options {
	return Options{
		SplitPrefix:   "split",
		BatchSize:     storage.MaxBatchSize,
		MaxConcurrent: 5,
	}
}

// Pipeline orchestrates document processing. All collaborators are injected.
type Pipeline struct {
	extractor  services.ExtractionService
	router     *classify.Router
	classifier *classify.Classifier
	splitter   *splitter.Splitter
	store      services.ObjectStore
	tables     []services.TableSink
	documents  []services.DocumentSink
	notifier   services.Notifier
	limiter    *rate.Limiter
	opts       Options
	progress   ProgressFunc
	now        func() time.Time
	log        zerolog.Logger
}

// Option wires an optional collaborator.
type Option func(*Pipeline)

// WithClassifier enables classification and splitting. Without it every file
// is processed whole with the NoClassifier label.
func WithClassifier(c *classify.Classifier) Option {
	return func(p *Pipeline) { p.classifier = c }
}

func WithSplitter(s *splitter.Splitter) Option {
	return func(p *Pipeline) { p.splitter = s }
}

func WithStore(store services.ObjectStore) Option {
	return func(p *Pipeline) { p.store = store }
}

func WithTableSinks(sinks ...services.TableSink) Option {
	return func(p *Pipeline) { p.tables = append(p.tables, sinks...) }
}

func WithDocumentSinks(sinks ...services.DocumentSink) Option {
	return func(p *Pipeline) { p.documents = append(p.documents, sinks...) }
}

func WithNotifier(n services.Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// ProgressFunc is called after each file of a batch. Calls are serialized.
type ProgressFunc func(done, total int, result FileResult)

// WithProgress reports per-file progress of ProcessBatch.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// WithClock replaces time.Now for summary names.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline.
func New(extractor services.ExtractionService, router *classify.Router, opts Options, options ...Option) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = storage.MaxBatchSize
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	p := &Pipeline{
		extractor: extractor,
		router:    router,
		limiter:   rate.NewLimiter(limit, opts.MaxConcurrent),
		opts:      opts,
		now:       time.Now,
		log:       logger.WithComponent("pipeline"),
	}
	for _, o := range options {
		o(p)
	}
	if p.splitter == nil {
		p.splitter = splitter.New()
	}
	return p
}

// Input is one source document.
type Input struct {
	Bucket   string // set when the document came from the object store
	Name     string
	MimeType string
	Content  []byte

	// Classification skips the classifiers and routes the whole document
	// by this label.
	Classification string
}

// Unit is a document or sub-document that was sent to a parser.
type Unit struct {
	Name                string
	Classification      string
	BroadClassification string
	Confidence          float32
	StartPage           int
	EndPage             int
	PageCount           int
	Location            string // gs:// URI of a stored sub-document
	Err                 error
}

// FileResult is the outcome of processing one input.
type FileResult struct {
	Name           string
	Classification string
	Confidence     float32
	Split          bool
	Skipped        bool
	Units          []Unit
	Records        []*models.Record
	Err            error
}

// Status summarizes the result for metrics and reports.
func (r FileResult) Status() string {
	switch {
	case r.Skipped:
		return metrics.StatusSkipped
	case r.Err != nil:
		return metrics.StatusError
	default:
		return metrics.StatusSuccess
	}
}

type work struct {
	name           string
	classification string
	confidence     float32
	mimeType       string
	content        []byte
	sub            *models.SubDocument
}

// ProcessFile classifies, splits and extracts one document. Extraction
// failures of individual sub-documents are collected in the result and do
// not stop the remaining sub-documents.
func (p *Pipeline) ProcessFile(ctx context.Context, in Input) FileResult {
	log := p.log.With().Str("file", in.Name).Logger()
	result := FileResult{Name: in.Name}

	metrics.IncrementInFlight()
	defer metrics.DecrementInFlight()

	if in.MimeType == "" {
		in.MimeType = storage.MimeTypeOf(in.Name)
	}

	classification := classify.Result{Label: classify.NoClassifier, Confidence: -1}
	switch {
	case in.Classification != "":
		classification.Label = in.Classification
	case p.classifier != nil:
		var err error
		classification, err = p.classifier.Classify(ctx, in.Name, in.Content, in.MimeType)
		if err != nil {
			result.Err = fmt.Errorf("classify: %w", err)
			metrics.DocumentProcessed(result.Status())
			return result
		}
	}
	result.Classification = classification.Label
	result.Confidence = classification.Confidence

	if p.opts.SkipUnclassified && classification.Label == classify.LabelOther {
		log.Info().Msg("Document not recognized by any classifier, skipping")
		result.Skipped = true
		metrics.DocumentProcessed(result.Status())
		return result
	}

	units := p.split(ctx, log, in, classification)
	result.Split = len(units) > 0 && units[0].sub != nil

	if !result.Split {
		p.tagObject(ctx, log, in, classification)
	}

	var errs []error
	for _, w := range units {
		unit, record := p.extract(ctx, w)
		if unit.Err != nil {
			log.Error().Err(unit.Err).Str("unit", unit.Name).Msg("Extraction failed")
			errs = append(errs, fmt.Errorf("%s: %w", unit.Name, unit.Err))
		} else {
			result.Records = append(result.Records, record)
		}
		result.Units = append(result.Units, unit)
	}
	result.Err = errors.Join(errs...)

	log.Info().
		Str("classification", result.Classification).
		Bool("split", result.Split).
		Int("units", len(result.Units)).
		Int("records", len(result.Records)).
		Msg("Document processed")

	metrics.DocumentProcessed(result.Status())
	return result
}

// split returns the units to extract. When the classifier found several
// page-anchored documents the file is cut into sub-documents; otherwise the
// whole file is one unit. A cut that yields nothing leaves one unclassified
// unit.
func (p *Pipeline) split(ctx context.Context, log zerolog.Logger, in Input, c classify.Result) []work {
	whole := []work{{
		name:           in.Name,
		classification: c.Label,
		confidence:     c.Confidence,
		mimeType:       in.MimeType,
		content:        in.Content,
	}}

	if !classify.IsSplittingRequired(c.Entities) {
		return whole
	}

	doc, err := splitter.Open(in.Name, in.MimeType, in.Content)
	if err != nil {
		log.Warn().Err(err).Msg("Document cannot be split, processing as a single unit")
		return whole
	}

	subs, err := p.splitter.Split(in.Name, doc, c.Entities)
	if err != nil {
		log.Warn().Err(err).Msg("Splitting failed, processing as a single unit")
		return whole
	}
	if len(subs) == 0 {
		log.Warn().Msg("No classifiable pages, processing as an unclassified unit")
		whole[0].classification = classify.LabelOther
		whole[0].confidence = -1
		return whole
	}

	units := make([]work, 0, len(subs))
	for i := range subs {
		sub := subs[i]
		metrics.SubDocumentCreated(sub.ClassificationType)
		units = append(units, work{
			name:           sub.Filename,
			classification: sub.ClassificationType,
			confidence:     sub.Confidence,
			mimeType:       sub.MimeType,
			content:        sub.Bytes,
			sub:            &sub,
		})
	}
	return units
}

// extract writes a sub-document to the split bucket, runs it through the
// routed parser and flattens the result.
func (p *Pipeline) extract(ctx context.Context, w work) (Unit, *models.Record) {
	route := p.router.Select(w.classification)
	unit := Unit{
		Name:                w.name,
		Classification:      w.classification,
		BroadClassification: route.BroadClassification(),
		Confidence:          w.confidence,
	}
	if w.sub != nil {
		unit.StartPage = w.sub.StartPage
		unit.EndPage = w.sub.EndPage
		unit.PageCount = w.sub.PageCount

		location, err := p.storeSubDocument(ctx, w.sub)
		if err != nil {
			unit.Err = err
			return unit, nil
		}
		unit.Location = location
	}

	if route.ProcessorID == "" {
		unit.Err = fmt.Errorf("%w for %s (label %q)", ErrNoProcessor, route.ProcessorType, w.classification)
		return unit, nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		unit.Err = err
		return unit, nil
	}

	start := time.Now()
	extraction, err := p.extractor.Process(ctx, route.ProcessorID, w.content, w.mimeType)
	metrics.CaptureExtraction(route.ProcessorType, time.Since(start))
	if err != nil {
		unit.Err = err
		return unit, nil
	}

	entities := flatten.FilterByConfidence(extraction.Entities, p.opts.MinConfidence)
	record := flatten.Flatten(entities)
	record.Set(models.FieldSourceFile, path.Base(w.name))
	record.Set(models.FieldClassification, w.classification)
	record.Set(models.FieldBroadClassification, route.BroadClassification())

	return unit, record
}

func (p *Pipeline) storeSubDocument(ctx context.Context, sub *models.SubDocument) (string, error) {
	if p.store == nil || p.opts.SplitBucket == "" || p.opts.DryRun {
		return "", nil
	}

	name := storage.Join(p.opts.SplitPrefix, flatten.FieldName(sub.ClassificationType), sub.Filename)
	if err := p.store.Write(ctx, p.opts.SplitBucket, name, sub.MimeType, sub.Bytes); err != nil {
		return "", fmt.Errorf("store sub-document: %w", err)
	}

	entity := &models.Entity{Type: sub.ClassificationType, Confidence: sub.Confidence}
	if err := p.store.SetMetadata(ctx, p.opts.SplitBucket, name, classify.Metadata(entity, path.Base(sub.SourceFilename))); err != nil {
		return "", fmt.Errorf("tag sub-document: %w", err)
	}
	return storage.URI(p.opts.SplitBucket, name), nil
}

// tagObject records the classification on an unsplit stored input.
func (p *Pipeline) tagObject(ctx context.Context, log zerolog.Logger, in Input, c classify.Result) {
	if p.store == nil || in.Bucket == "" || p.classifier == nil || p.opts.DryRun {
		return
	}

	var entity *models.Entity
	if c.Label != classify.NoClassifier {
		entity = &models.Entity{Type: c.Label, Confidence: c.Confidence}
	}
	if err := p.store.SetMetadata(ctx, in.Bucket, in.Name, classify.Metadata(entity, "")); err != nil {
		log.Warn().Err(err).Msg("Failed to tag object with classification")
	}
}

// ProcessBatch processes inputs concurrently, at most MaxConcurrent at a
// time. Results keep the input order. A failing file does not stop the batch.
func (p *Pipeline) ProcessBatch(ctx context.Context, inputs []Input) []FileResult {
	results := make([]FileResult, len(inputs))

	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.MaxConcurrent)

	for i := range inputs {
		g.Go(func() error {
			p.log.Debug().
				Str("file", inputs[i].Name).
				Int("index", i+1).
				Int("total", len(inputs)).
				Msg("Processing file")
			results[i] = p.ProcessFile(gctx, inputs[i])

			if p.progress != nil {
				mu.Lock()
				done++
				p.progress(done, len(inputs), results[i])
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
