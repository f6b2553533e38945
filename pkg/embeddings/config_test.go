package embeddings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_DefaultConfig_MatchesRecommendedChunkSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1024, DefaultConfig().ChunkRecords)
}

func Test_Config_WithDefaults_FillsZeroValue(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultConfig(), cfg)
}

func Test_Config_WithDefaults_PreservesExplicitValue(t *testing.T) {
	t.Parallel()

	cfg := Config{ChunkRecords: 32}.withDefaults()
	assert.Equal(t, 32, cfg.ChunkRecords)
}

func Test_LoadConfig_ParsesHuJSONWithComments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.hujson")

	const doc = `{
		// tuning Search's chunk size
		"chunk_records": 256,
	}`

	require.NoError(t, writeFile(path, doc))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.ChunkRecords)
}

func Test_LoadConfig_RejectsMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.hujson"))
	require.ErrorIs(t, err, ErrIo)
}

func Test_LoadConfig_RejectsMalformedDocument(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.hujson")
	require.NoError(t, writeFile(path, "not json at all {{{"))

	_, err := LoadConfig(path)
	require.ErrorIs(t, err, ErrBadArg)
}
