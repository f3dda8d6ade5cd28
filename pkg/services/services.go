package services

import (
	"context"
	"time"

	"doctools/pkg/models"
)

// ExtractionService submits document content to a processor and returns the
// parsed extraction result.
type ExtractionService interface {
	// Process sends content to the processor identified by processorID.
	Process(ctx context.Context, processorID string, content []byte, mimeType string) (*models.ExtractionResult, error)
}

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Bucket      string
	Name        string
	ContentType string
	Size        int64
	Updated     time.Time
	Metadata    map[string]string
}

// ObjectStore reads, writes and lists artifacts by bucket and path.
type ObjectStore interface {
	Read(ctx context.Context, bucket, name string) ([]byte, error)
	Write(ctx context.Context, bucket, name, contentType string, data []byte) error
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	// Move copies an object into dstBucket under the same name and deletes the source.
	Move(ctx context.Context, srcBucket, name, dstBucket string) error
	// SetMetadata merges custom metadata into an existing object.
	SetMetadata(ctx context.Context, bucket, name string, metadata map[string]string) error
}

// TableSink inserts flat records as rows of a fixed schema.
type TableSink interface {
	// InsertRows writes records and returns how many were accepted.
	// Rows rejected by the schema are skipped, not retried.
	InsertRows(ctx context.Context, records []*models.Record) (int, error)
	Name() string
}

// DocumentSink upserts one record under a document id. Last write wins.
type DocumentSink interface {
	Upsert(ctx context.Context, id string, record *models.Record) error
	Name() string
}

// Notifier announces that a batch result is ready.
type Notifier interface {
	Notify(ctx context.Context, bucket, file string) error
}
