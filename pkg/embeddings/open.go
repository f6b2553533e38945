package embeddings

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/natefinch/atomic"
)

// Options configures Open.
type Options struct {
	// Path is the filesystem path to the store file. An empty string or the
	// sentinel ":temp:" requests an ephemeral file: a unique path in the OS
	// temp area, removed when the Store is closed.
	Path string

	// Mode selects read/append/create semantics. See Mode's doc comment.
	Mode Mode

	// Dim is the vector dimensionality. Dim*4 must equal the store's
	// blob_size. Dim == 0 is only meaningful against a store whose stored
	// blob_size is already 0.
	Dim int

	// Config tunes the Scanner and is optional; the zero value is filled in
	// with DefaultConfig's values.
	Config Config
}

const ephemeralSentinel = ":temp:"

// Open opens or creates a store file per opts. See Mode for the available
// open semantics.
func Open(opts Options) (*Store, error) {
	if opts.Dim < 0 {
		return nil, fmt.Errorf("%w: dim must be >= 0, got %d", ErrBadArg, opts.Dim)
	}

	blobSize := uint64(opts.Dim) * 4
	if blobSize > MaxBlobSize {
		return nil, fmt.Errorf("%w: blob size %d exceeds maximum %d", ErrBadArg, blobSize, MaxBlobSize)
	}

	path := opts.Path
	ephemeral := path == "" || path == ephemeralSentinel

	mode := opts.Mode
	if ephemeral {
		mode = ModeCreateAlways
	}

	var (
		file *os.File
		err  error
	)

	switch {
	case ephemeral:
		path, err = createEphemeralFile()
	case mode == ModeCreateAlways:
		err = atomic.WriteFile(path, bytes.NewReader(nil))
	}

	if err != nil {
		return nil, fmt.Errorf("%w: prepare %q: %v", ErrIo, path, err)
	}

	file, err = openWithMode(path, mode)
	if err != nil {
		return nil, err
	}

	header, stride, err := bootstrap(file, uint32(blobSize))
	if err != nil {
		_ = file.Close()

		if ephemeral {
			_ = os.Remove(path)
		}

		return nil, err
	}

	return &Store{
		file:       file,
		header:     header,
		stride:     stride,
		pageSize:   uint32(os.Getpagesize()),
		cfg:        opts.Config.withDefaults(),
		path:       path,
		ephemeral:  ephemeral,
		appendMode: mode != ModeRead,
	}, nil
}

func createEphemeralFile() (string, error) {
	f, err := os.CreateTemp("", "embeddings-*.bin")
	if err != nil {
		return "", err
	}

	path := f.Name()

	return path, f.Close()
}

func openWithMode(path string, mode Mode) (*os.File, error) {
	var flags int

	switch mode {
	case ModeRead:
		flags = os.O_RDONLY
	case ModeAppend:
		flags = os.O_RDWR | os.O_APPEND
	case ModeAppendOrCreate:
		flags = os.O_RDWR | os.O_APPEND | os.O_CREATE
	case ModeCreateAlways:
		flags = os.O_RDWR | os.O_APPEND | os.O_CREATE
	default:
		return nil, fmt.Errorf("%w: unknown mode %v", ErrBadArg, mode)
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", ErrIo, path, err)
	}

	return f, nil
}

// bootstrap implements Open's zero-length-vs-existing-file protocol: the
// first HeadReserved bytes of the file are held under the header-range lock
// (see lockHeaderRange) while either a fresh header is synthesised and written
// (zero-length file), or the existing header is read back and validated
// (non-zero-length file). Returns the resolved header and its stride.
func bootstrap(f *os.File, wantBlobSize uint32) (FileHeader, uint32, error) {
	lock, err := lockHeaderRange(f)
	if err != nil {
		return FileHeader{}, 0, err
	}
	defer lock.Unlock() //nolint:errcheck // best effort; the operation's own error takes precedence

	info, err := f.Stat()
	if err != nil {
		return FileHeader{}, 0, fmt.Errorf("%w: stat: %v", ErrIo, err)
	}

	pageSize := uint32(os.Getpagesize())

	var header FileHeader

	if info.Size() == 0 {
		header, err = newHeader(wantBlobSize, pageSize)
		if err != nil {
			return FileHeader{}, 0, err
		}

		if err := writeHeadBlock(f, header); err != nil {
			return FileHeader{}, 0, err
		}
	} else {
		header, err = readHeadBlock(f)
		if err != nil {
			return FileHeader{}, 0, err
		}

		if err := validateHeader(header, int(wantBlobSize), pageSize); err != nil {
			return FileHeader{}, 0, err
		}
	}

	stride := computeStride(header.BlobSize, header.Alignment)

	return header, stride, nil
}

// writeHeadBlock writes header at offset 0, zero-padded to HeadReserved
// bytes, and flushes it before returning. f must be empty: the store file is
// opened with O_APPEND, which os.File.WriteAt refuses, so the block is
// written with Write, which on an empty file lands at offset 0.
func writeHeadBlock(f *os.File, header FileHeader) error {
	block := make([]byte, HeadReserved)
	copy(block, encodeHeader(header))

	n, err := f.Write(block)
	if err != nil {
		return fmt.Errorf("%w: write header: %v", ErrIo, err)
	}

	if n != HeadReserved {
		return fmt.Errorf("%w: wrote %d of %d header bytes", ErrShortWrite, n, HeadReserved)
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: sync header: %v", ErrIo, err)
	}

	return nil
}

// readHeadBlock reads and decodes the header at offset 0.
func readHeadBlock(f *os.File) (FileHeader, error) {
	buf := make([]byte, headerSize)

	n, err := f.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return FileHeader{}, fmt.Errorf("%w: read header: %v", ErrIo, err)
	}

	if n != len(buf) {
		return FileHeader{}, fmt.Errorf("%w: short header read (%d of %d bytes)", ErrFormat, n, len(buf))
	}

	return decodeHeader(buf), nil
}
