package embeddings

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
)

// Store is a handle on an append-only embedding file. A Store is safe for
// concurrent use by multiple goroutines; Append and Flush serialise on an
// internal mutex, and Search/Cursor operate against their own independent
// file descriptors so a long-running scan never blocks an append.
type Store struct {
	mu sync.Mutex

	file       *os.File
	header     FileHeader
	stride     uint32
	pageSize   uint32
	cfg        Config
	path       string
	ephemeral  bool
	appendMode bool
	closed     bool
}

// Dim returns the vector dimensionality implied by the store's blob_size.
func (s *Store) Dim() int {
	return int(s.header.BlobSize / 4)
}

// BlobSize returns the fixed size, in bytes, of each record's vector blob.
func (s *Store) BlobSize() uint32 {
	return s.header.BlobSize
}

// Version returns the on-disk format version in effect for this store.
func (s *Store) Version() uint32 {
	return s.header.Version
}

// Stride returns the fixed on-disk size of one record, including its id,
// blob, and any alignment padding.
func (s *Store) Stride() uint32 {
	return s.stride
}

// Path returns the filesystem path backing the store, including ephemeral
// stores' generated temp path.
func (s *Store) Path() string {
	return s.path
}

// Append writes one record to the end of the file: a 16-byte id followed by
// len(blob)*4 bytes of little-endian float32 values, padded to the store's
// stride. When flush is true, Append also calls Flush before returning.
//
// len(blob)*4 must equal the store's blob_size exactly; Append does not
// partially write a record.
func (s *Store) Append(id ID, blob []float32, flush bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: store is closed", ErrState)
	}

	wantLen := int(s.header.BlobSize)
	if len(blob)*4 != wantLen {
		return fmt.Errorf("%w: blob has %d bytes, store blob_size is %d", ErrBadArg, len(blob)*4, wantLen)
	}

	rec, err := newScratchBuffer(int(s.stride))
	if err != nil {
		return err
	}

	copy(rec[:IDSize], id[:])
	for i, v := range blob {
		binary.LittleEndian.PutUint32(rec[IDSize+i*4:], math.Float32bits(v))
	}

	if !s.appendMode {
		if _, err := s.file.Seek(0, io.SeekEnd); err != nil {
			return fmt.Errorf("%w: seek to end: %v", ErrIo, err)
		}
	}

	n, err := s.file.Write(rec)
	if err != nil {
		return fmt.Errorf("%w: write record: %v", ErrIo, err)
	}

	if n != len(rec) {
		return fmt.Errorf("%w: wrote %d of %d record bytes", ErrShortWrite, n, len(rec))
	}

	if flush {
		return s.flushLocked()
	}

	return nil
}

// Flush fsyncs the store's file descriptor, ensuring previously appended
// records are durable.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: store is closed", ErrState)
	}

	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", ErrIo, err)
	}

	return nil
}

// Close releases the store's file descriptor. Close is idempotent: calling
// it more than once returns nil. An ephemeral store's backing file is
// removed on Close.
//
// Close does not itself fsync; call Flush first if durability of the final
// appends matters.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	err := s.file.Close()

	if s.ephemeral {
		_ = os.Remove(s.path)
	}

	if err != nil {
		return fmt.Errorf("%w: close: %v", ErrIo, err)
	}

	return nil
}

// openReadHandle opens a fresh, independent file descriptor on the store's
// path for Search or a read-only Cursor: its own file position, unaffected
// by concurrent Append or other readers.
func (s *Store) openReadHandle() (*os.File, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q for reading: %v", ErrIo, s.path, err)
	}

	return f, nil
}

// openReadWriteHandle is like openReadHandle but opens read+write, for a
// Cursor that will call Update.
func (s *Store) openReadWriteHandle() (*os.File, error) {
	f, err := os.OpenFile(s.path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q for read-write: %v", ErrIo, s.path, err)
	}

	return f, nil
}
