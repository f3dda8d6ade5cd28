// Package sink writes flattened records to tabular and document stores.
package sink

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"doctools/internal/flatten"
	"doctools/internal/logger"
	"doctools/pkg/models"
)

// BigQuerySink streams records into an existing table. Rows the table schema
// rejects are skipped and fields the schema does not know are dropped.
type BigQuerySink struct {
	client   *bigquery.Client
	inserter *bigquery.Inserter
	table    string
	log      zerolog.Logger
}

// NewBigQuerySink opens dataset.table in projectID. Dataset and table names
// are sanitized for '-'.
func NewBigQuerySink(ctx context.Context, projectID, dataset, table string, opts ...option.ClientOption) (*BigQuerySink, error) {
	const op = "NewBigQuerySink"

	if dataset == "" || table == "" {
		return nil, fmt.Errorf("%s: dataset and table are required", op)
	}

	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create BigQuery client: %w", op, err)
	}

	dataset = flatten.SanitizeIdentifier(dataset)
	table = flatten.SanitizeIdentifier(table)

	inserter := client.Dataset(dataset).Table(table).Inserter()
	inserter.SkipInvalidRows = true
	inserter.IgnoreUnknownValues = true

	return &BigQuerySink{
		client:   client,
		inserter: inserter,
		table:    dataset + "." + table,
		log:      logger.WithComponent("bigquery"),
	}, nil
}

func (s *BigQuerySink) Name() string {
	return "bigquery:" + s.table
}

// InsertRows streams records and returns how many were accepted.
func (s *BigQuerySink) InsertRows(ctx context.Context, records []*models.Record) (int, error) {
	const op = "InsertRows"

	if len(records) == 0 {
		return 0, nil
	}

	rows := make([]*Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, &Row{Record: r})
	}

	err := s.inserter.Put(ctx, rows)
	accepted, rejected := acceptedRows(err, len(rows))
	for _, rowErr := range rejected {
		s.log.Warn().
			Int("row", rowErr.RowIndex).
			Str("source_file", sourceFile(records, rowErr.RowIndex)).
			Err(rowErr.Errors).
			Msg("Row rejected by table schema, skipping")
	}
	if rejected == nil && err != nil {
		return 0, fmt.Errorf("%s: %s: %w", op, s.table, err)
	}

	s.log.Info().
		Str("table", s.table).
		Int("accepted", accepted).
		Int("rejected", len(rejected)).
		Msg("Rows inserted")
	return accepted, nil
}

// Close closes the BigQuery client.
func (s *BigQuerySink) Close() error {
	return s.client.Close()
}

// acceptedRows splits a Put error into the number of accepted rows and the
// per-row rejections. A nil rejected slice with a non-nil err means the whole
// request failed.
func acceptedRows(err error, total int) (int, []bigquery.RowInsertionError) {
	if err == nil {
		return total, nil
	}
	var multi bigquery.PutMultiError
	if errors.As(err, &multi) {
		rejected := []bigquery.RowInsertionError(multi)
		return total - len(rejected), rejected
	}
	return 0, nil
}

func sourceFile(records []*models.Record, i int) string {
	if i < 0 || i >= len(records) {
		return ""
	}
	v, _ := records[i].Get(models.FieldSourceFile)
	return v
}

// Row adapts a record to bigquery.ValueSaver. Children are written to a
// repeated RECORD column named children with parent, type and value fields.
type Row struct {
	Record   *models.Record
	InsertID string // empty lets BigQuery generate one
}

// Save implements bigquery.ValueSaver.
func (r *Row) Save() (map[string]bigquery.Value, string, error) {
	row := make(map[string]bigquery.Value, r.Record.Len())
	for _, key := range r.Record.Keys() {
		v, _ := r.Record.Get(key)
		row[key] = v
	}
	if children := r.Record.Children(); len(children) > 0 {
		nested := make([]bigquery.Value, 0, len(children))
		for _, c := range children {
			nested = append(nested, map[string]bigquery.Value{
				"parent": c.Parent,
				"type":   c.Type,
				"value":  c.Value,
			})
		}
		row[models.FieldChildren] = nested
	}
	return row, r.InsertID, nil
}
