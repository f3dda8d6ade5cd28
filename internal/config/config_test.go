package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GOOGLE_CLOUD_PROJECT", "acme")
	t.Setenv("BATCH_MAX_FILES", "")
	t.Setenv("DOCUMENT_AI_TIMEOUT", "90")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "us", cfg.GoogleCloudLocation)
	assert.Equal(t, "acme-input-documents", cfg.GCSInputBucket)
	assert.Equal(t, "acme", cfg.BigQueryProjectID)
	assert.Equal(t, 50, cfg.BatchMaxFiles)
	assert.Equal(t, 5, cfg.BatchMaxRequests)
	assert.Equal(t, 90*time.Second, cfg.DocumentAITimeout)
	assert.Equal(t, "info", cfg.GetLoggerConfig().Level)
}

func TestLoad_Validation(t *testing.T) {
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("GOOGLE_CLOUD_PROJECT", "acme")
	t.Setenv("BATCH_MAX_FILES", "51")
	_, err = Load()
	assert.ErrorContains(t, err, "BATCH_MAX_FILES")
}

func TestLoadProcessorMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
classifiers:
  - type: LENDING_DOCUMENT_SPLIT_PROCESSOR
    id: 1a2b
parsers:
  FORM_W2_PROCESSOR:
    id: w2-id
  CUSTOM_PROCESSOR:
    id: custom-id
    labels: [custom_form]
`), 0o644))

	pm, err := LoadProcessorMap(path)
	require.NoError(t, err)

	require.Len(t, pm.Classifiers, 1)
	assert.Equal(t, "1a2b", pm.Classifiers[0].ID)
	assert.Equal(t, "w2-id", pm.Parsers["FORM_W2_PROCESSOR"].ID)
	// Labels default from the built-in table
	assert.Contains(t, pm.Parsers["FORM_W2_PROCESSOR"].Labels, "w2_2020")
	assert.Equal(t, "CUSTOM_PROCESSOR", pm.LabelIndex()["custom_form"])
	assert.Equal(t, DefaultProcessorType, pm.DefaultParser)
}

func TestLoadProcessorMap_DuplicateLabel(t *testing.T) {
	_, err := DefaultProcessorMap().Merge([]byte(`
parsers:
  OTHER_W2_PROCESSOR:
    labels: [w2]
`))
	assert.ErrorContains(t, err, `"w2"`)
}

func TestLoadProcessorMap_Empty(t *testing.T) {
	pm, err := LoadProcessorMap("")
	require.NoError(t, err)
	assert.Empty(t, pm.Classifiers)
	assert.NoError(t, pm.Validate())
}
