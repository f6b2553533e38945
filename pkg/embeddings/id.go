package embeddings

import "encoding/hex"

// IDSize is the fixed width, in bytes, of an [ID].
const IDSize = 16

// ID is a 16-byte opaque identifier. Equality is bytewise; no interpretation
// is imposed on the contents, so callers may use UUID-shaped values or any
// other 16-byte key.
type ID [IDSize]byte

// Equal reports whether two ids are byte-for-byte identical.
func (id ID) Equal(other ID) bool {
	return id == other
}

// String renders the id as lowercase hex, for diagnostics only.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Result is a single (id, score) pair returned by [Store.Search].
type Result struct {
	ID    ID
	Score float32
}
