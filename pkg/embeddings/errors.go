package embeddings

import "errors"

// Error classification sentinels.
//
// Implementations wrap these with additional context via fmt.Errorf's %w
// verb. Callers classify errors with errors.Is, never by string matching.
var (
	// ErrBadArg indicates an invalid argument: a blob or query whose length
	// does not match the store's blob_size, a negative dim or one whose
	// blob_size exceeds MaxBlobSize, k <= 0, a Search on a dim-0 store, a
	// query norm below epsilon when normalising, a non-power-of-two system
	// page size, an unknown open mode, or a malformed config document.
	// Open itself accepts Dim 0, and an ID's length is fixed by its type.
	ErrBadArg = errors.New("embeddings: invalid argument")

	// ErrState indicates the store or cursor is closed, or that a cursor
	// update was attempted without a prior successful read.
	ErrState = errors.New("embeddings: invalid state")

	// ErrFormat indicates a header magic/version/size/dtype mismatch, an
	// invalid stored alignment, a blob_size mismatch on reopen, or a
	// non-empty file too short to hold a header. A stored alignment larger
	// than the current page size is reported as ErrAlignmentTooLarge
	// instead.
	ErrFormat = errors.New("embeddings: invalid file format")

	// ErrIo wraps an OS-level read/write/seek/lock/handle failure.
	ErrIo = errors.New("embeddings: io error")

	// ErrShortWrite indicates a write returned fewer bytes than requested.
	ErrShortWrite = errors.New("embeddings: short write")

	// ErrIDMismatch indicates a Cursor.Update target id does not match the
	// id stored at the cursor's remembered record offset.
	ErrIDMismatch = errors.New("embeddings: id mismatch")

	// ErrOutOfMemory indicates a scratch buffer allocation was rejected
	// before attempting it, e.g. because the requested size overflows the
	// platform's addressable range.
	ErrOutOfMemory = errors.New("embeddings: allocation failed")

	// ErrAlignmentTooLarge indicates a header's stored alignment exceeds
	// the current system page size, which newHeader never produces and
	// validateHeader therefore rejects as untrustworthy.
	ErrAlignmentTooLarge = errors.New("embeddings: alignment too large for this system")
)

// Cursor.Read signals end-of-stream with io.EOF, matching the io.Reader
// contract: it is a normal outcome, not a failure, and is intentionally not
// one of the sentinels above.
