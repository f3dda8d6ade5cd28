package sink

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"doctools/internal/logger"
	"doctools/pkg/models"
)

// FirestoreSink stores one document per id in a collection. Set replaces the
// whole document, so the last write wins.
type FirestoreSink struct {
	client     *firestore.Client
	collection string
	log        zerolog.Logger
}

// NewFirestoreSink opens collection in projectID.
func NewFirestoreSink(ctx context.Context, projectID, collection string, opts ...option.ClientOption) (*FirestoreSink, error) {
	if collection == "" {
		return nil, fmt.Errorf("NewFirestoreSink: collection is required")
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewFirestoreSink: failed to create Firestore client: %w", err)
	}
	return &FirestoreSink{
		client:     client,
		collection: collection,
		log:        logger.WithComponent("firestore"),
	}, nil
}

func (s *FirestoreSink) Name() string {
	return "firestore:" + s.collection
}

func (s *FirestoreSink) Upsert(ctx context.Context, id string, record *models.Record) error {
	if id == "" {
		return fmt.Errorf("Upsert: document id is required")
	}
	if _, err := s.client.Collection(s.collection).Doc(id).Set(ctx, record.Document()); err != nil {
		return fmt.Errorf("Upsert %s/%s: %w", s.collection, id, err)
	}

	s.log.Debug().
		Str("collection", s.collection).
		Str("id", id).
		Int("fields", record.Len()).
		Msg("Document written")
	return nil
}

// get reads a stored document back as a record.
func (s *FirestoreSink) get(ctx context.Context, id string) (map[string]string, error) {
	snap, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("Get %s/%s: %w", s.collection, id, err)
	}
	out := make(map[string]string)
	for k, v := range snap.Data() {
		out[k] = fmt.Sprint(v)
	}
	return out, nil
}

// Close closes the Firestore client.
func (s *FirestoreSink) Close() error {
	return s.client.Close()
}
