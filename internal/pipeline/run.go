package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"doctools/internal/metrics"
	"doctools/internal/storage"
	"doctools/pkg/models"
	"doctools/pkg/services"
)

// ErrNoStore is returned by Run when the pipeline has no object store.
var ErrNoStore = errors.New("pipeline has no object store")

// summaryTimeFormat names classification summaries, e.g.
// 20240501_101500_classify_output.json.
const summaryTimeFormat = "20060102_150405"

// Summary is the report written to the output bucket after a run.
type Summary struct {
	Timestamp      time.Time      `json:"timestamp"`
	Bucket         string         `json:"bucket"`
	Prefix         string         `json:"prefix,omitempty"`
	Batches        int            `json:"batches"`
	Processed      int            `json:"processed"`
	Skipped        int            `json:"skipped"`
	Failed         int            `json:"failed"`
	RecordsWritten map[string]int `json:"records_written,omitempty"`
	SinkErrors     []string       `json:"sink_errors,omitempty"`
	Files          []FileSummary  `json:"files"`
	OutputURI      string         `json:"-"`
}

// FileSummary describes one input file in the report.
type FileSummary struct {
	File           string        `json:"file"`
	Classification string        `json:"classification"`
	Confidence     float32       `json:"confidence"`
	Status         string        `json:"status"`
	Error          string        `json:"error,omitempty"`
	Records        int           `json:"records"`
	Units          []UnitSummary `json:"documents,omitempty"`
}

// UnitSummary describes one extracted document or sub-document.
type UnitSummary struct {
	File                string  `json:"file"`
	Classification      string  `json:"classification"`
	BroadClassification string  `json:"broad_classification"`
	Confidence          float32 `json:"confidence"`
	Pages               string  `json:"pages,omitempty"`
	Location            string  `json:"location,omitempty"`
	Error               string  `json:"error,omitempty"`
}

// Run processes every accepted object under bucket/prefix in batches, writes
// the records to the sinks, archives the inputs, stores the summary and
// notifies the callback.
func (p *Pipeline) Run(ctx context.Context, bucket, prefix string) (*Summary, error) {
	if p.store == nil {
		return nil, ErrNoStore
	}

	summary := &Summary{
		Timestamp:      p.now().UTC(),
		Bucket:         bucket,
		Prefix:         prefix,
		RecordsWritten: make(map[string]int),
		Files:          []FileSummary{},
	}

	objects, err := p.store.List(ctx, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", storage.URI(bucket, prefix), err)
	}

	batches, err := storage.CreateBatches(objects, p.opts.BatchSize)
	if err != nil {
		return nil, err
	}
	summary.Batches = len(batches)

	p.log.Info().
		Str("bucket", bucket).
		Str("prefix", prefix).
		Int("objects", len(objects)).
		Int("batches", len(batches)).
		Bool("dry_run", p.opts.DryRun).
		Msg("Starting pipeline run")

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		inputs, readErrs := p.readBatch(ctx, batch)
		results := p.ProcessBatch(ctx, inputs)
		results = append(results, readErrs...)

		p.writeSinks(ctx, summary, results)
		p.archive(ctx, bucket, results)

		for _, r := range results {
			summary.add(r)
		}

		p.log.Info().
			Int("batch", i+1).
			Int("total", len(batches)).
			Int("files", len(batch)).
			Msg("Batch completed")
	}

	if err := p.writeSummary(ctx, summary); err != nil {
		return summary, err
	}

	p.log.Info().
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Str("output", summary.OutputURI).
		Msg("Pipeline run completed")

	return summary, nil
}

func (p *Pipeline) readBatch(ctx context.Context, batch []services.ObjectInfo) ([]Input, []FileResult) {
	var inputs []Input
	var failed []FileResult
	for _, obj := range batch {
		content, err := p.store.Read(ctx, obj.Bucket, obj.Name)
		if err != nil {
			p.log.Error().Err(err).Str("file", obj.Name).Msg("Failed to read object")
			failed = append(failed, FileResult{Name: obj.Name, Err: err})
			metrics.DocumentProcessed(metrics.StatusError)
			continue
		}
		inputs = append(inputs, Input{
			Bucket:   obj.Bucket,
			Name:     obj.Name,
			MimeType: storage.ContentType(obj),
			Content:  content,
		})
	}
	return inputs, failed
}

// writeSinks sends every record of the batch to the table sinks and upserts
// each record into the document sinks under its broad classification.
// Sink failures are reported in the summary and do not stop the run.
func (p *Pipeline) writeSinks(ctx context.Context, summary *Summary, results []FileResult) {
	var records []*models.Record
	for _, r := range results {
		records = append(records, r.Records...)
	}
	if len(records) == 0 || p.opts.DryRun {
		return
	}

	for _, sink := range p.tables {
		n, err := sink.InsertRows(ctx, records)
		summary.RecordsWritten[sink.Name()] += n
		metrics.RecordsWritten(sink.Name(), n)
		if err != nil {
			p.log.Error().Err(err).Str("sink", sink.Name()).Msg("Failed to insert rows")
			summary.SinkErrors = append(summary.SinkErrors, fmt.Sprintf("%s: %v", sink.Name(), err))
		}
	}

	for _, sink := range p.documents {
		for _, record := range records {
			id, _ := record.Get(models.FieldBroadClassification)
			if err := sink.Upsert(ctx, id, record); err != nil {
				p.log.Error().Err(err).Str("sink", sink.Name()).Str("id", id).Msg("Failed to upsert record")
				summary.SinkErrors = append(summary.SinkErrors, fmt.Sprintf("%s/%s: %v", sink.Name(), id, err))
				continue
			}
			summary.RecordsWritten[sink.Name()]++
			metrics.RecordsWritten(sink.Name(), 1)
		}
	}
}

// archive moves fully processed inputs out of the upload bucket so the next
// run does not pick them up again.
func (p *Pipeline) archive(ctx context.Context, bucket string, results []FileResult) {
	if p.opts.ArchiveBucket == "" || p.opts.DryRun {
		return
	}
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		if err := p.store.Move(ctx, bucket, r.Name, p.opts.ArchiveBucket); err != nil {
			p.log.Warn().Err(err).Str("file", r.Name).Msg("Failed to archive processed file")
		}
	}
}

func (p *Pipeline) writeSummary(ctx context.Context, summary *Summary) error {
	if p.opts.OutputBucket == "" || p.opts.DryRun {
		return nil
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	name := SummaryName(summary.Timestamp)
	if err := p.store.Write(ctx, p.opts.OutputBucket, name, "application/json", data); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	summary.OutputURI = storage.URI(p.opts.OutputBucket, name)

	if p.notifier != nil {
		if err := p.notifier.Notify(ctx, p.opts.OutputBucket, name); err != nil {
			p.log.Error().Err(err).Msg("Callback failed")
		}
	}
	return nil
}

// SummaryName returns the object name of the summary written at t.
func SummaryName(t time.Time) string {
	return t.UTC().Format(summaryTimeFormat) + "_classify_output.json"
}

func (s *Summary) add(r FileResult) {
	switch r.Status() {
	case metrics.StatusSkipped:
		s.Skipped++
	case metrics.StatusError:
		s.Failed++
	default:
		s.Processed++
	}

	fs := FileSummary{
		File:           r.Name,
		Classification: r.Classification,
		Confidence:     r.Confidence,
		Status:         r.Status(),
		Records:        len(r.Records),
	}
	if r.Err != nil {
		fs.Error = r.Err.Error()
	}
	for _, u := range r.Units {
		us := UnitSummary{
			File:                u.Name,
			Classification:      u.Classification,
			BroadClassification: u.BroadClassification,
			Confidence:          u.Confidence,
			Location:            u.Location,
		}
		if u.PageCount > 0 {
			us.Pages = models.PageRangeLabel(u.StartPage, u.EndPage)
		}
		if u.Err != nil {
			us.Error = u.Err.Error()
		}
		fs.Units = append(fs.Units, us)
	}
	s.Files = append(s.Files, fs)
}
