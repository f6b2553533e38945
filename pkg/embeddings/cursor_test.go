package embeddings_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flatvec/embeddings/pkg/embeddings"
)

func Test_Cursor_ReadsRecordsInAppendOrder(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.bin")
	s := mustOpen(t, embeddings.Options{Path: path, Mode: embeddings.ModeCreateAlways, Dim: 2})

	ids := []embeddings.ID{{1}, {2}, {3}}
	for i, id := range ids {
		require.NoError(t, s.Append(id, []float32{float32(i), 0}, false))
	}
	require.NoError(t, s.Flush())

	c, err := s.OpenCursor(true)
	require.NoError(t, err)
	defer c.Close()

	for i, want := range ids {
		id, blob, err := c.Read()
		require.NoError(t, err)
		assert.Equal(t, want, id)
		assert.Equal(t, []float32{float32(i), 0}, blob)
	}

	_, _, err = c.Read()
	require.ErrorIs(t, err, io.EOF)
}

func Test_Cursor_Reset_RewindsToFirstRecord(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.bin")
	s := mustOpen(t, embeddings.Options{Path: path, Mode: embeddings.ModeCreateAlways, Dim: 1})

	require.NoError(t, s.Append(embeddings.ID{1}, []float32{1}, true))

	c, err := s.OpenCursor(true)
	require.NoError(t, err)
	defer c.Close()

	id1, _, err := c.Read()
	require.NoError(t, err)

	require.NoError(t, c.Reset())

	id2, _, err := c.Read()
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func Test_Cursor_Update_OverwritesBlobInPlace(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.bin")
	s := mustOpen(t, embeddings.Options{Path: path, Mode: embeddings.ModeCreateAlways, Dim: 2})

	id := embeddings.ID{5}
	require.NoError(t, s.Append(id, []float32{1, 1}, true))

	c, err := s.OpenCursor(false)
	require.NoError(t, err)
	defer c.Close()

	gotID, _, err := c.Read()
	require.NoError(t, err)
	require.Equal(t, id, gotID)

	require.NoError(t, c.Update(id, []float32{9, 9}, true))

	require.NoError(t, c.Reset())
	_, blob, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, []float32{9, 9}, blob)
}

func Test_Cursor_Update_WithoutPriorRead_ReturnsErrState(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.bin")
	s := mustOpen(t, embeddings.Options{Path: path, Mode: embeddings.ModeCreateAlways, Dim: 2})
	require.NoError(t, s.Append(embeddings.ID{5}, []float32{1, 1}, true))

	c, err := s.OpenCursor(false)
	require.NoError(t, err)
	defer c.Close()

	err = c.Update(embeddings.ID{5}, []float32{9, 9}, false)
	require.ErrorIs(t, err, embeddings.ErrState)
}

func Test_Cursor_Update_OnReadOnlyCursor_ReturnsErrState(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.bin")
	s := mustOpen(t, embeddings.Options{Path: path, Mode: embeddings.ModeCreateAlways, Dim: 2})
	require.NoError(t, s.Append(embeddings.ID{5}, []float32{1, 1}, true))

	c, err := s.OpenCursor(true)
	require.NoError(t, err)
	defer c.Close()

	_, _, err = c.Read()
	require.NoError(t, err)

	err = c.Update(embeddings.ID{5}, []float32{9, 9}, false)
	require.ErrorIs(t, err, embeddings.ErrState)
}

func Test_Cursor_Update_WrongID_ReturnsErrIDMismatchWithoutWriting(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.bin")
	s := mustOpen(t, embeddings.Options{Path: path, Mode: embeddings.ModeCreateAlways, Dim: 2})

	id := embeddings.ID{5}
	require.NoError(t, s.Append(id, []float32{1, 1}, true))

	c, err := s.OpenCursor(false)
	require.NoError(t, err)
	defer c.Close()

	_, _, err = c.Read()
	require.NoError(t, err)

	wrongID := embeddings.ID{6}
	err = c.Update(wrongID, []float32{9, 9}, false)
	require.ErrorIs(t, err, embeddings.ErrIDMismatch)

	require.NoError(t, c.Reset())
	_, blob, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, blob, "blob must be unchanged after a mismatched Update")
}

func Test_Cursor_Read_TreatsTornTailRecordAsEOF(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.bin")
	s := mustOpen(t, embeddings.Options{Path: path, Mode: embeddings.ModeCreateAlways, Dim: 2})

	require.NoError(t, s.Append(embeddings.ID{1}, []float32{1, 0}, false))
	require.NoError(t, s.Append(embeddings.ID{2}, []float32{0, 1}, true))

	stride := int64(s.Stride())
	require.NoError(t, s.Close())

	require.NoError(t, os.Truncate(path, embeddings.HeadReserved+stride+3))

	s2 := mustOpen(t, embeddings.Options{Path: path, Mode: embeddings.ModeRead, Dim: 2})

	c, err := s2.OpenCursor(true)
	require.NoError(t, err)
	defer c.Close()

	id, blob, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, embeddings.ID{1}, id)
	assert.Equal(t, []float32{1, 0}, blob)

	_, _, err = c.Read()
	require.ErrorIs(t, err, io.EOF)
}

func Test_Cursor_Close_IsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.bin")
	s := mustOpen(t, embeddings.Options{Path: path, Mode: embeddings.ModeCreateAlways, Dim: 2})

	c, err := s.OpenCursor(true)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
