// Package storage implements the object store over Cloud Storage and the
// local filesystem.
package storage

import (
	"fmt"
	"mime"
	"path"
	"strings"

	"doctools/pkg/services"
)

// MaxBatchSize is the largest number of documents one batch request accepts.
const MaxBatchSize = 50

// AcceptedMimeTypes are the content types the extraction service can process.
var AcceptedMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/tiff":      true,
	"image/gif":       true,
	"image/bmp":       true,
	"image/webp":      true,
}

// SplitURI splits gs://bucket/object into bucket and object name.
func SplitURI(uri string) (bucket, name string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok || rest == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	bucket, name, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	return bucket, name, nil
}

// URI joins a bucket and object name into gs://bucket/name.
func URI(bucket, name string) string {
	return "gs://" + bucket + "/" + strings.TrimPrefix(name, "/")
}

// Join builds an object name from path segments, skipping empty ones.
func Join(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return path.Join(nonEmpty...)
}

// MimeTypeOf returns the content type for an object name based on its
// extension, or "" when unknown.
func MimeTypeOf(name string) string {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	}
	t := mime.TypeByExtension(ext)
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return t
}

// ContentType returns the object's declared content type, falling back to
// the extension.
func ContentType(obj services.ObjectInfo) string {
	if obj.ContentType != "" && obj.ContentType != "application/octet-stream" {
		return obj.ContentType
	}
	return MimeTypeOf(obj.Name)
}

// CreateBatches groups objects with accepted content types into batches of at
// most size. Folders and unsupported types are skipped.
func CreateBatches(objects []services.ObjectInfo, size int) ([][]services.ObjectInfo, error) {
	if size > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, size, MaxBatchSize)
	}
	if size <= 0 {
		size = MaxBatchSize
	}

	var batches [][]services.ObjectInfo
	var current []services.ObjectInfo
	for _, obj := range objects {
		if strings.HasSuffix(obj.Name, "/") || !AcceptedMimeTypes[ContentType(obj)] {
			continue
		}
		current = append(current, obj)
		if len(current) == size {
			batches = append(batches, current)
			current = nil
		}
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches, nil
}
