package storage

import (
	"context"
	"errors"
	"io"

	gcs "cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"doctools/internal/logger"
	"doctools/pkg/services"
)

// GCS is an object store backed by Cloud Storage.
type GCS struct {
	client *gcs.Client
	log    zerolog.Logger
}

// NewGCS creates a Cloud Storage client.
func NewGCS(ctx context.Context, opts ...option.ClientOption) (*GCS, error) {
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, wrap("NewClient", "", "", err)
	}
	return NewGCSWithClient(client), nil
}

// NewGCSWithClient wraps an existing client.
func NewGCSWithClient(client *gcs.Client) *GCS {
	return &GCS{client: client, log: logger.WithComponent("gcs")}
}

func (g *GCS) Read(ctx context.Context, bucket, name string) ([]byte, error) {
	r, err := g.client.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, wrap("Read", bucket, name, notFound(err))
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, wrap("Read", bucket, name, err)
	}
	return data, nil
}

func (g *GCS) Write(ctx context.Context, bucket, name, contentType string, data []byte) error {
	w := g.client.Bucket(bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return wrap("Write", bucket, name, err)
	}
	if err := w.Close(); err != nil {
		return wrap("Write", bucket, name, err)
	}

	g.log.Debug().
		Str("uri", URI(bucket, name)).
		Int("size", len(data)).
		Msg("Object written")
	return nil
}

func (g *GCS) List(ctx context.Context, bucket, prefix string) ([]services.ObjectInfo, error) {
	it := g.client.Bucket(bucket).Objects(ctx, &gcs.Query{Prefix: prefix})

	var objects []services.ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrap("List", bucket, prefix, notFound(err))
		}
		objects = append(objects, services.ObjectInfo{
			Bucket:      attrs.Bucket,
			Name:        attrs.Name,
			ContentType: attrs.ContentType,
			Size:        attrs.Size,
			Updated:     attrs.Updated,
			Metadata:    attrs.Metadata,
		})
	}
	return objects, nil
}

func (g *GCS) Move(ctx context.Context, srcBucket, name, dstBucket string) error {
	src := g.client.Bucket(srcBucket).Object(name)
	dst := g.client.Bucket(dstBucket).Object(name)

	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		return wrap("Move", srcBucket, name, notFound(err))
	}
	if err := src.Delete(ctx); err != nil {
		return wrap("Move", srcBucket, name, notFound(err))
	}

	g.log.Debug().
		Str("from", URI(srcBucket, name)).
		Str("to", URI(dstBucket, name)).
		Msg("Object moved")
	return nil
}

func (g *GCS) SetMetadata(ctx context.Context, bucket, name string, metadata map[string]string) error {
	_, err := g.client.Bucket(bucket).Object(name).Update(ctx, gcs.ObjectAttrsToUpdate{
		Metadata: metadata,
	})
	return wrap("SetMetadata", bucket, name, notFound(err))
}

// Close closes the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}

func notFound(err error) error {
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		return errors.Join(ErrObjectNotFound, err)
	}
	return err
}
