package embeddings

import "fmt"

// maxBufferBytes guards against integer overflow and runaway allocation
// requests; it is far above anything a real chunk/record buffer needs.
const maxBufferBytes = 1 << 34 // 16 GiB

// newScratchBuffer allocates a zeroed buffer of exactly size bytes for use
// as a record, chunk, or carry buffer.
//
// This package performs ordinary buffered *os.File I/O rather than
// unbuffered, page-aligned reads and writes, so the byte alignment of the
// Go-managed backing array is not observable by the kernel. The alignment
// that actually matters — record boundaries landing on multiples of
// stride from HeadReserved — is guaranteed by format.go's stride
// arithmetic, not by the memory address of this slice. A plain make()
// is therefore sufficient, with no unsafe pointer arithmetic and no
// explicit free.
func newScratchBuffer(size int) ([]byte, error) {
	if size < 0 || size > maxBufferBytes {
		return nil, fmt.Errorf("%w: requested %d bytes", ErrOutOfMemory, size)
	}

	return make([]byte, size), nil
}
