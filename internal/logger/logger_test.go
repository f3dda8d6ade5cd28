package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_FileOutputJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	err := Setup(LogConfig{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Setup(DefaultConfig()) })

	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	log := WithFile("splitter", "bundle.pdf")
	log.Info().Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"splitter"`)
	assert.Contains(t, string(data), `"file":"bundle.pdf"`)
}

func TestSetup_InvalidLevel(t *testing.T) {
	err := Setup(LogConfig{Level: "loud"})
	assert.Error(t, err)
}
