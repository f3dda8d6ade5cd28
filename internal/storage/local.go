package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"doctools/pkg/services"
)

const metadataSuffix = ".meta.json"

// Local is an object store on the local filesystem. Buckets are directories
// under Root and object metadata is kept in a sidecar JSON file.
type Local struct {
	Root string
}

// NewLocal creates a filesystem object store rooted at root.
func NewLocal(root string) *Local {
	return &Local{Root: root}
}

func (l *Local) path(bucket, name string) string {
	return filepath.Join(l.Root, bucket, filepath.FromSlash(name))
}

func (l *Local) Read(_ context.Context, bucket, name string) ([]byte, error) {
	data, err := os.ReadFile(l.path(bucket, name))
	if errors.Is(err, fs.ErrNotExist) {
		err = errors.Join(ErrObjectNotFound, err)
	}
	if err != nil {
		return nil, wrap("Read", bucket, name, err)
	}
	return data, nil
}

func (l *Local) Write(_ context.Context, bucket, name, contentType string, data []byte) error {
	p := l.path(bucket, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return wrap("Write", bucket, name, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return wrap("Write", bucket, name, err)
	}
	if contentType != "" {
		return l.mergeMetadata(bucket, name, map[string]string{"content-type": contentType})
	}
	return nil
}

func (l *Local) List(_ context.Context, bucket, prefix string) ([]services.ObjectInfo, error) {
	root := filepath.Join(l.Root, bucket)

	var objects []services.ObjectInfo
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, metadataSuffix) {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !strings.HasPrefix(name, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		meta := l.readMetadata(bucket, name)
		contentType := meta["content-type"]
		delete(meta, "content-type")

		objects = append(objects, services.ObjectInfo{
			Bucket:      bucket,
			Name:        name,
			ContentType: contentType,
			Size:        info.Size(),
			Updated:     info.ModTime(),
			Metadata:    meta,
		})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, wrap("List", bucket, prefix, errors.Join(ErrObjectNotFound, err))
	}
	if err != nil {
		return nil, wrap("List", bucket, prefix, err)
	}
	return objects, nil
}

func (l *Local) Move(ctx context.Context, srcBucket, name, dstBucket string) error {
	dst := l.path(dstBucket, name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return wrap("Move", srcBucket, name, err)
	}
	if err := os.Rename(l.path(srcBucket, name), dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = errors.Join(ErrObjectNotFound, err)
		}
		return wrap("Move", srcBucket, name, err)
	}
	// Metadata travels with the object
	_ = os.Rename(l.path(srcBucket, name)+metadataSuffix, dst+metadataSuffix)
	return nil
}

func (l *Local) SetMetadata(_ context.Context, bucket, name string, metadata map[string]string) error {
	if _, err := os.Stat(l.path(bucket, name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = errors.Join(ErrObjectNotFound, err)
		}
		return wrap("SetMetadata", bucket, name, err)
	}
	return l.mergeMetadata(bucket, name, metadata)
}

func (l *Local) readMetadata(bucket, name string) map[string]string {
	meta := make(map[string]string)
	data, err := os.ReadFile(l.path(bucket, name) + metadataSuffix)
	if err != nil {
		return meta
	}
	_ = json.Unmarshal(data, &meta)
	return meta
}

func (l *Local) mergeMetadata(bucket, name string, metadata map[string]string) error {
	meta := l.readMetadata(bucket, name)
	for k, v := range metadata {
		meta[k] = v
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return wrap("SetMetadata", bucket, name, err)
	}
	return wrap("SetMetadata", bucket, name, os.WriteFile(l.path(bucket, name)+metadataSuffix, data, 0o644))
}
