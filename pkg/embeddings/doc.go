// Package embeddings implements an append-only, single-file embedding
// store with a brute-force cosine top-k search.
//
// A store pairs fixed-size 16-byte identifiers with fixed-length float32
// vectors, persists them in a stable binary layout (see format.go), and
// answers nearest-neighbour queries with a linear scan over the file
// (see scanner.go). There is no indexing structure, no concurrent writer
// support, and no deletion: records are only ever appended.
//
// # Basic usage
//
//	store, err := embeddings.Open(embeddings.Options{
//	    Path: "vectors.bin",
//	    Mode: embeddings.ModeAppendOrCreate,
//	    Dim:  384,
//	})
//	if err != nil {
//	    // handle embeddings.ErrFormat / embeddings.ErrBadArg / ...
//	}
//	defer store.Close()
//
//	err = store.Append(id, blob, true)
//	results, err := store.Search(query, 10, 0, true)
//
// # Concurrency
//
// A Store is owned by a single logical writer. Any number of readers
// (Search, Cursor) may run concurrently with that writer because each
// takes its own read view of the underlying file. The only cross-view
// coordination point is the byte range [0, HeadReserved) of the file,
// which is used for exclusive header-scope locking during Open's
// bootstrap and during Cursor.Update (a read-only Open holds a shared
// OS-level lock on it instead; see lock.go).
package embeddings
