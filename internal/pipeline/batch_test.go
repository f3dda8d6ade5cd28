package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doctools/internal/classify"
	"doctools/internal/storage"
	"doctools/pkg/models"
)

func TestCollectBatch(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocal(t.TempDir())

	shards := map[string]string{
		"docai-output/123/0/w2-0.json": `{"text":"Jane","entities":[{"type":"employee_name","mentionText":"Jane","confidence":0.9}],"pages":[{"pageNumber":1}]}`,
		"docai-output/123/0/w2-1.json": `{"entities":[{"type":"employee_name","mentionText":"Janet","confidence":0.8}],"pages":[{"pageNumber":2}]}`,
		"docai-output/123/1/bad-0.json": `not json`,
	}
	for name, body := range shards {
		require.NoError(t, store.Write(ctx, "out", name, "application/json", []byte(body)))
	}

	router := classify.NewRouter(testProcessors())
	p := New(&fakeExtractor{}, router, DefaultOptions(), WithStore(store))

	results := p.CollectBatch(ctx, "w2", []BatchOutput{
		{InputURI: "gs://in/upload/w2.pdf", OutputURI: "gs://out/docai-output/123/0"},
		{InputURI: "gs://in/upload/bad.pdf", OutputURI: "gs://out/docai-output/123/1"},
		{InputURI: "gs://in/upload/gone.pdf", OutputURI: "gs://out/docai-output/123/2"},
	})
	require.Len(t, results, 3)

	require.NoError(t, results[0].Err)
	require.Len(t, results[0].Records, 1)
	record := results[0].Records[0]
	assert.Equal(t, []string{"employee_name", "employee_name_2", "source_file", "classification", "broad_classification"}, record.Keys())
	v, _ := record.Get("employee_name_2")
	assert.Equal(t, "Janet", v)
	v, _ = record.Get(models.FieldSourceFile)
	assert.Equal(t, "w2.pdf", v)
	assert.Equal(t, 2, results[0].Units[0].PageCount)

	assert.Error(t, results[1].Err)
	assert.Error(t, results[2].Err)
}
