package embeddings

import (
	"encoding/binary"
	"fmt"
)

// On-disk layout constants. The header's field byte offsets are listed in
// the const block that follows.
const (
	magicText = "EMBEDDINGS"

	// headerVersion is the only version this package understands.
	headerVersion uint32 = 1

	// headerSize is sizeof(FileHeader) in its packed, on-disk form.
	headerSize uint32 = 0x21 // 16 + 4 + 4 + 4 + 4 + 1

	// HeadReserved is the fixed size of the zero-padded head block at the
	// start of every store file. Record data always begins here, regardless
	// of the record stride's alignment.
	HeadReserved = 4096

	// MaxBlobSize is the largest blob_size a store will accept.
	MaxBlobSize = 65536

	minAlignment uint32 = 64
)

// Header field byte offsets.
const (
	offMagic     = 0x00
	offVersion   = 0x10
	offSize      = 0x14
	offAlignment = 0x18
	offBlobSize  = 0x1C
	offDType     = 0x20
)

// DType tags the element type stored in each record's blob. Only
// DTypeFloat32 is implemented; the others are persisted tag values from the
// original format and are rejected with ErrFormat on open.
type DType uint8

const (
	DTypeFloat32 DType = 0
	DTypeFloat16 DType = 1
	DTypeInt8    DType = 2
)

// FileHeader is the fixed, packed file header stored at offset 0 of every
// store file, zero-padded to HeadReserved bytes on disk.
type FileHeader struct {
	Magic     [16]byte
	Version   uint32
	Size      uint32
	Alignment uint32
	BlobSize  uint32
	DType     DType
}

func magicBytes() [16]byte {
	var m [16]byte
	copy(m[:], magicText)
	return m
}

// encodeHeader serializes h into its packed, on-disk representation
// (headerSize bytes; callers pad to HeadReserved when writing the head
// block).
func encodeHeader(h FileHeader) []byte {
	buf := make([]byte, headerSize)
	copy(buf[offMagic:], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[offVersion:], h.Version)
	binary.LittleEndian.PutUint32(buf[offSize:], h.Size)
	binary.LittleEndian.PutUint32(buf[offAlignment:], h.Alignment)
	binary.LittleEndian.PutUint32(buf[offBlobSize:], h.BlobSize)
	buf[offDType] = byte(h.DType)
	return buf
}

// decodeHeader parses a packed header from buf, which must be at least
// headerSize bytes long.
func decodeHeader(buf []byte) FileHeader {
	var h FileHeader
	copy(h.Magic[:], buf[offMagic:offMagic+16])
	h.Version = binary.LittleEndian.Uint32(buf[offVersion:])
	h.Size = binary.LittleEndian.Uint32(buf[offSize:])
	h.Alignment = binary.LittleEndian.Uint32(buf[offAlignment:])
	h.BlobSize = binary.LittleEndian.Uint32(buf[offBlobSize:])
	h.DType = DType(buf[offDType])
	return h
}

// newHeader synthesises the header for a brand-new store file, following
// the alignment rules: records (id plus blob) smaller than the system page
// size align to the next power of two (minimum 64 bytes); records of at
// least the page size align to the page size itself.
func newHeader(blobSize, pageSize uint32) (FileHeader, error) {
	alignment, err := computeAlignment(blobSize, pageSize)
	if err != nil {
		return FileHeader{}, err
	}

	return FileHeader{
		Magic:     magicBytes(),
		Version:   headerVersion,
		Size:      headerSize,
		Alignment: alignment,
		BlobSize:  blobSize,
		DType:     DTypeFloat32,
	}, nil
}

// computeAlignment derives a record's alignment from its total on-disk
// size:
//   - if id_size + blob_size >= page_size, alignment is the page size.
//   - otherwise alignment is max(64, next_power_of_two(id_size + blob_size)).
func computeAlignment(blobSize, pageSize uint32) (uint32, error) {
	if pageSize == 0 || pageSize&(pageSize-1) != 0 {
		return 0, fmt.Errorf("%w: system page size %d is not a power of two", ErrBadArg, pageSize)
	}

	need := uint32(IDSize) + blobSize
	if need >= pageSize {
		return pageSize, nil
	}

	alignment := nextPow2(need)
	if alignment < minAlignment {
		alignment = minAlignment
	}

	return alignment, nil
}

// computeStride returns the on-disk size of one record including pad:
// align_up(id_size + blob_size, alignment).
func computeStride(blobSize, alignment uint32) uint32 {
	return alignUp(uint32(IDSize)+blobSize, alignment)
}

func alignUp(x, a uint32) uint32 {
	return (x + a - 1) &^ (a - 1)
}

func nextPow2(x uint32) uint32 {
	if x == 0 {
		return 1
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	return x + 1
}

func isPow2(x uint32) bool {
	return x != 0 && x&(x-1) == 0
}

// validateHeader checks a header read back from disk against the compile
// time constants and, when wantBlobSize >= 0, against the caller's
// requested blob size. pageSize is the current system page size: a stored
// alignment larger than it is reported as ErrAlignmentTooLarge rather than
// ErrFormat, since the header itself is otherwise well-formed.
func validateHeader(h FileHeader, wantBlobSize int, pageSize uint32) error {
	if h.Magic != magicBytes() {
		return fmt.Errorf("%w: bad magic", ErrFormat)
	}

	if h.Version != headerVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrFormat, h.Version)
	}

	if h.Size != headerSize {
		return fmt.Errorf("%w: unexpected header size %d", ErrFormat, h.Size)
	}

	if h.DType != DTypeFloat32 {
		return fmt.Errorf("%w: unsupported dtype %d", ErrFormat, h.DType)
	}

	if !isPow2(h.Alignment) || h.Alignment < IDSize {
		return fmt.Errorf("%w: invalid alignment %d", ErrFormat, h.Alignment)
	}

	if h.Alignment > pageSize {
		return fmt.Errorf("%w: file alignment %d exceeds system page size %d", ErrAlignmentTooLarge, h.Alignment, pageSize)
	}

	if wantBlobSize >= 0 && h.BlobSize != uint32(wantBlobSize) {
		return fmt.Errorf("%w: blob size %d does not match stored blob size %d", ErrFormat, wantBlobSize, h.BlobSize)
	}

	return nil
}
