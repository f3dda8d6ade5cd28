package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doctools/pkg/services"
)

func TestSplitURI(t *testing.T) {
	bucket, name, err := SplitURI("gs://docs/upload/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "docs", bucket)
	assert.Equal(t, "upload/a.pdf", name)

	bucket, name, err = SplitURI("gs://docs")
	require.NoError(t, err)
	assert.Equal(t, "docs", bucket)
	assert.Empty(t, name)

	for _, bad := range []string{"", "docs/a.pdf", "gs://", "gs:///a.pdf", "s3://docs/a"} {
		_, _, err := SplitURI(bad)
		assert.ErrorIs(t, err, ErrInvalidURI, bad)
	}

	assert.Equal(t, "gs://docs/a/b.pdf", URI("docs", "/a/b.pdf"))
	assert.Equal(t, "split/w2/a.pdf", Join("split/", "", "w2", "a.pdf"))
}

func TestMimeTypeOf(t *testing.T) {
	assert.Equal(t, "application/pdf", MimeTypeOf("a/B.PDF"))
	assert.Equal(t, "image/tiff", MimeTypeOf("scan.tif"))
	assert.Equal(t, "image/png", MimeTypeOf("scan.png"))
	assert.Empty(t, MimeTypeOf("README"))
}

func TestCreateBatches(t *testing.T) {
	var objects []services.ObjectInfo
	for i := 0; i < 7; i++ {
		objects = append(objects, services.ObjectInfo{Name: fmt.Sprintf("in/%d.pdf", i)})
	}
	objects = append(objects,
		services.ObjectInfo{Name: "in/"},
		services.ObjectInfo{Name: "in/notes.txt"},
		services.ObjectInfo{Name: "in/blob", ContentType: "image/png"},
	)

	batches, err := CreateBatches(objects, 3)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[1], 3)
	assert.Len(t, batches[2], 2)
	assert.Equal(t, "in/blob", batches[2][1].Name)

	_, err = CreateBatches(objects, MaxBatchSize+1)
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	batches, err = CreateBatches(objects, 0)
	require.NoError(t, err)
	assert.Len(t, batches, 1)
}

func TestLocal(t *testing.T) {
	ctx := context.Background()
	store := NewLocal(t.TempDir())

	require.NoError(t, store.Write(ctx, "input", "upload/a.pdf", "application/pdf", []byte("%PDF-a")))
	require.NoError(t, store.Write(ctx, "input", "upload/b.png", "", []byte("png")))
	require.NoError(t, store.Write(ctx, "input", "other/c.pdf", "application/pdf", []byte("%PDF-c")))

	data, err := store.Read(ctx, "input", "upload/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-a"), data)

	objects, err := store.List(ctx, "input", "upload/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "upload/a.pdf", objects[0].Name)
	assert.Equal(t, "application/pdf", objects[0].ContentType)
	assert.Equal(t, int64(6), objects[0].Size)

	require.NoError(t, store.SetMetadata(ctx, "input", "upload/a.pdf", map[string]string{"type": "w2"}))
	require.NoError(t, store.Move(ctx, "input", "upload/a.pdf", "archive"))

	_, err = store.Read(ctx, "input", "upload/a.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	archived, err := store.List(ctx, "archive", "")
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "w2", archived[0].Metadata["type"])

	err = store.SetMetadata(ctx, "input", "missing.pdf", map[string]string{"a": "b"})
	assert.ErrorIs(t, err, ErrObjectNotFound)

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "SetMetadata", storageErr.Op)
}
