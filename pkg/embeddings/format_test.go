package embeddings

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ComputeAlignment_SmallBlobUsesNextPow2WithFloor(t *testing.T) {
	t.Parallel()

	const pageSize = 4096

	tests := []struct {
		blobSize  uint32
		wantAlign uint32
	}{
		{blobSize: 0, wantAlign: 64},     // id_size 16 -> floor 64
		{blobSize: 48, wantAlign: 64},    // 16+48=64 -> already pow2, floor applies
		{blobSize: 100, wantAlign: 128},  // 16+100=116 -> next pow2 128
		{blobSize: 1008, wantAlign: 1024}, // 16+1008=1024 -> pow2 already
	}

	for _, tt := range tests {
		got, err := computeAlignment(tt.blobSize, pageSize)
		require.NoError(t, err)
		assert.Equalf(t, tt.wantAlign, got, "blobSize=%d", tt.blobSize)
	}
}

func Test_ComputeAlignment_LargeBlobUsesPageSize(t *testing.T) {
	t.Parallel()

	const pageSize = 4096

	got, err := computeAlignment(pageSize, pageSize)
	require.NoError(t, err)
	assert.Equal(t, uint32(pageSize), got)

	got, err = computeAlignment(pageSize*4, pageSize)
	require.NoError(t, err)
	assert.Equal(t, uint32(pageSize), got)
}

func Test_ComputeAlignment_RejectsNonPow2PageSize(t *testing.T) {
	t.Parallel()

	_, err := computeAlignment(100, 4097)
	require.ErrorIs(t, err, ErrBadArg)
}

func Test_ComputeStride_AlignsUp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint32(64), computeStride(0, 64))
	assert.Equal(t, uint32(128), computeStride(100, 128))
	assert.Equal(t, uint32(8192), computeStride(4096, 4096))
}

func Test_NextPow2(t *testing.T) {
	t.Parallel()

	tests := map[uint32]uint32{
		0:    1,
		1:    1,
		2:    2,
		3:    4,
		63:   64,
		64:   64,
		65:   128,
		1023: 1024,
	}

	for in, want := range tests {
		assert.Equalf(t, want, nextPow2(in), "nextPow2(%d)", in)
	}
}

func Test_HeaderRoundTrip(t *testing.T) {
	t.Parallel()

	h, err := newHeader(256, 4096)
	require.NoError(t, err)

	buf := encodeHeader(h)
	require.Len(t, buf, int(headerSize))

	got := decodeHeader(buf)
	if diff := cmp.Diff(h, got); diff != "" {
		t.Fatalf("decodeHeader(encodeHeader(h)) mismatch (-want +got):\n%s", diff)
	}
}

func Test_ValidateHeader_RejectsBadMagic(t *testing.T) {
	t.Parallel()

	h, err := newHeader(64, 4096)
	require.NoError(t, err)

	h.Magic[0] ^= 0xFF

	err = validateHeader(h, 64, 4096)
	require.ErrorIs(t, err, ErrFormat)
}

func Test_ValidateHeader_RejectsBlobSizeMismatch(t *testing.T) {
	t.Parallel()

	h, err := newHeader(64, 4096)
	require.NoError(t, err)

	err = validateHeader(h, 128, 4096)
	require.ErrorIs(t, err, ErrFormat)
}

func Test_ValidateHeader_RejectsAlignmentLargerThanPageSize(t *testing.T) {
	t.Parallel()

	h, err := newHeader(4096, 4096)
	require.NoError(t, err)

	err = validateHeader(h, 4096, 2048)
	require.ErrorIs(t, err, ErrAlignmentTooLarge)
}

func Test_ValidateHeader_AcceptsSmallerStoredAlignment(t *testing.T) {
	t.Parallel()

	h, err := newHeader(64, 4096)
	require.NoError(t, err)

	// A larger current page size than the one the file was created under
	// is fine; only the reverse is rejected.
	err = validateHeader(h, 64, 8192)
	require.NoError(t, err)
}

func Test_ValidateHeader_RejectsUnsupportedDType(t *testing.T) {
	t.Parallel()

	h, err := newHeader(64, 4096)
	require.NoError(t, err)

	h.DType = DTypeFloat16

	err = validateHeader(h, 64, 4096)
	require.ErrorIs(t, err, ErrFormat)
}
