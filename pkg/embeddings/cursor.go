package embeddings

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
)

// Cursor is an independent sequential read (and optionally write) view
// over a store's record region, starting just after the header. A Cursor
// holds its own file descriptor and position; it does not interact with
// the store's Append position or with Search's scans.
//
// A Cursor must not outlive the Store it was opened from.
type Cursor struct {
	mu sync.Mutex

	store    *Store
	file     *os.File
	writable bool

	stride   uint32
	blobSize uint32

	lastRecordOffset int64
	havePending      bool
	closed           bool
}

// OpenCursor opens a new Cursor on s, positioned at the first record. When
// readOnly is false, the cursor's Update method is available.
func (s *Store) OpenCursor(readOnly bool) (*Cursor, error) {
	s.mu.Lock()
	closed := s.closed
	stride := s.stride
	blobSize := s.header.BlobSize
	s.mu.Unlock()

	if closed {
		return nil, fmt.Errorf("%w: store is closed", ErrState)
	}

	var (
		f   *os.File
		err error
	)

	if readOnly {
		f, err = s.openReadHandle()
	} else {
		f, err = s.openReadWriteHandle()
	}

	if err != nil {
		return nil, err
	}

	if _, err := f.Seek(HeadReserved, io.SeekStart); err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("%w: seek to first record: %v", ErrIo, err)
	}

	return &Cursor{
		store:    s,
		file:     f,
		writable: !readOnly,
		stride:   stride,
		blobSize: blobSize,
	}, nil
}

// Read decodes the next record and advances the cursor. It returns io.EOF
// once no further whole record is available, matching the io.Reader
// end-of-stream convention; a trailing partial record (a torn write racing
// a concurrent Append) is treated the same as a clean EOF.
//
// A successful Read remembers the record's file offset, making the
// immediately following Update target that same record.
func (c *Cursor) Read() (ID, []float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ID{}, nil, fmt.Errorf("%w: cursor is closed", ErrState)
	}

	pos, err := c.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return ID{}, nil, fmt.Errorf("%w: tell: %v", ErrIo, err)
	}

	rec := make([]byte, c.stride)

	_, err = io.ReadFull(c.file, rec)
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			// Rewind so a later retry (e.g. after more records are
			// appended) starts from the same, unconsumed position.
			_, _ = c.file.Seek(pos, io.SeekStart)

			return ID{}, nil, io.EOF
		}

		return ID{}, nil, fmt.Errorf("%w: read record: %v", ErrIo, err)
	}

	var id ID
	copy(id[:], rec[:IDSize])

	blob := make([]float32, c.blobSize/4)
	for i := range blob {
		blob[i] = math.Float32frombits(binary.LittleEndian.Uint32(rec[IDSize+i*4:]))
	}

	c.lastRecordOffset = pos
	c.havePending = true

	return id, blob, nil
}

// Reset rewinds the cursor to the first record and clears any pending
// Update target.
func (c *Cursor) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%w: cursor is closed", ErrState)
	}

	if _, err := c.file.Seek(HeadReserved, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek to first record: %v", ErrIo, err)
	}

	c.havePending = false

	return nil
}

// Update overwrites the blob of the record most recently returned by Read,
// in place, leaving the id and any alignment padding untouched.
//
// Update re-reads the record's id under an exclusive lock on the header
// coordination range and compares it against id before writing. If they
// differ — the record was superseded, or no Read has succeeded yet —
// Update returns ErrIDMismatch (or ErrState, if there is no pending
// record at all) without modifying the file.
func (c *Cursor) Update(id ID, newBlob []float32, flush bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%w: cursor is closed", ErrState)
	}

	if !c.writable {
		return fmt.Errorf("%w: cursor was opened read-only", ErrState)
	}

	if !c.havePending {
		return fmt.Errorf("%w: no record has been read yet", ErrState)
	}

	if len(newBlob)*4 != int(c.blobSize) {
		return fmt.Errorf("%w: blob has %d bytes, store blob_size is %d", ErrBadArg, len(newBlob)*4, c.blobSize)
	}

	lock, err := lockHeaderRange(c.file)
	if err != nil {
		return err
	}
	defer lock.Unlock() //nolint:errcheck // best effort; the operation's own error takes precedence

	curID := make([]byte, IDSize)
	if _, err := c.file.ReadAt(curID, c.lastRecordOffset); err != nil {
		return fmt.Errorf("%w: verify record id: %v", ErrIo, err)
	}

	var onDisk ID
	copy(onDisk[:], curID)

	if onDisk != id {
		return fmt.Errorf("%w: record at offset %d now holds a different id", ErrIDMismatch, c.lastRecordOffset)
	}

	blobBuf := make([]byte, c.blobSize)
	for i, v := range newBlob {
		binary.LittleEndian.PutUint32(blobBuf[i*4:], math.Float32bits(v))
	}

	n, err := c.file.WriteAt(blobBuf, c.lastRecordOffset+IDSize)
	if err != nil {
		return fmt.Errorf("%w: write blob: %v", ErrIo, err)
	}

	if n != len(blobBuf) {
		return fmt.Errorf("%w: wrote %d of %d blob bytes", ErrShortWrite, n, len(blobBuf))
	}

	if flush {
		if err := c.file.Sync(); err != nil {
			return fmt.Errorf("%w: sync: %v", ErrIo, err)
		}
	}

	return nil
}

// Close releases the cursor's file descriptor. Close is idempotent.
func (c *Cursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	if err := c.file.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrIo, err)
	}

	return nil
}
