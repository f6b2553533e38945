package embeddings

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
)

// scoreEpsilon is the minimum vector norm (query or record) below which a
// cosine score cannot be meaningfully computed; such vectors are treated as
// having undefined similarity and are skipped.
const scoreEpsilon = 1e-6

// Search scans every live record in the store and returns the k
// highest-scoring matches against query, ordered by descending score.
//
// Scoring is cosine similarity accumulated in float64 and rounded to
// float32 on return. When normalise is false, both query and every record
// are assumed to already be unit-length: the score is the raw dot product
// and no per-record sqrt is computed, for callers who pre-normalise vectors
// once at write time. A store of dim 0 has nothing to score; Search on it
// returns ErrBadArg. When normalise is true, a record whose norm is
// below scoreEpsilon is skipped, as is the query itself when its norm is
// below scoreEpsilon (returns ErrBadArg).
//
// Search tolerates an id appearing more than once in the file: the later
// occurrence's record wins and any earlier scored entry for that id is
// evicted, matching the store's append-only, no-in-place-delete model.
// The one exception is a later occurrence whose norm fails the epsilon
// check (see scoreRecord): that occurrence is skipped outright and an
// earlier valid score for the same id is left in place.
//
// Search runs against an independent file descriptor positioned at the
// start of the record region; it does not use the store's append cursor
// and may run concurrently with Append and other Search calls.
func (s *Store) Search(query []float32, k int, minScore float32, normalise bool) ([]Result, error) {
	s.mu.Lock()
	closed := s.closed
	header := s.header
	stride := s.stride
	chunkRecords := s.cfg.ChunkRecords
	s.mu.Unlock()

	if closed {
		return nil, fmt.Errorf("%w: store is closed", ErrState)
	}

	wantLen := int(header.BlobSize / 4)
	if len(query) != wantLen {
		return nil, fmt.Errorf("%w: query has dim %d, store dim %d", ErrBadArg, len(query), wantLen)
	}

	if wantLen == 0 {
		return nil, fmt.Errorf("%w: store has dim 0, so there is no query to score", ErrBadArg)
	}

	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be > 0, got %d", ErrBadArg, k)
	}

	queryNorm := l2Norm64(query)
	if normalise && queryNorm < scoreEpsilon {
		return nil, fmt.Errorf("%w: query norm %g is below epsilon", ErrBadArg, queryNorm)
	}

	f, err := s.openReadHandle()
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only handle; nothing to reconcile on close failure

	if _, err := f.Seek(HeadReserved, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seek to records: %v", ErrIo, err)
	}

	acc := newTopKAccumulator(k, minScore)

	chunkBuf, err := newScratchBuffer(chunkRecords * int(stride))
	if err != nil {
		return nil, err
	}

	var carry []byte

	for {
		n, readErr := f.Read(chunkBuf)
		if n > 0 {
			data := chunkBuf[:n]

			if len(carry) > 0 {
				data = append(carry, data...) //nolint:makezero // carry is reused as the base of a fresh slice each iteration
				carry = nil
			}

			whole := (len(data) / int(stride)) * int(stride)
			leftover := data[whole:]

			for off := 0; off < whole; off += int(stride) {
				rec := data[off : off+int(stride)]
				scoreRecord(rec, query, stride, header.BlobSize, queryNorm, normalise, acc)
			}

			if len(leftover) > 0 {
				carry = append([]byte(nil), leftover...)
			}
		}

		if readErr == io.EOF {
			break
		}

		if readErr != nil {
			return nil, fmt.Errorf("%w: read records: %v", ErrIo, readErr)
		}
	}

	return acc.sorted(), nil
}

// scoreRecord decodes one stride-sized record and computes its cosine score
// against query. When normalise is false both vectors are assumed already
// unit-length: the record's norm is treated as 1 (its epsilon check never
// fires) and the score is the raw dot product, saving a sqrt per record.
//
// A record whose norm fails the epsilon check is skipped entirely, without
// touching acc: the epsilon check short circuits before the dedup-removal
// step below, so a degenerate later occurrence of an id must not evict
// that id's earlier, valid score.
// Only once a record passes the epsilon check does its id's earlier entry
// get removed from acc — unconditionally, before the new score is offered
// (offer re-adds it only if the score clears minScore) — so that a later
// generation of an id always supersedes an earlier one, whatever the new
// score turns out to be.
func scoreRecord(rec []byte, query []float32, stride, blobSize uint32, queryNorm float64, normalise bool, acc *topKAccumulator) {
	var id ID
	copy(id[:], rec[:IDSize])

	blob := rec[IDSize : IDSize+blobSize]

	var dot, sumSq float64

	for i := 0; i < len(query); i++ {
		v := math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
		fv := float64(v)
		dot += float64(query[i]) * fv
		sumSq += fv * fv
	}

	recNorm := float64(1)
	if normalise {
		recNorm = math.Sqrt(sumSq)
		if recNorm < scoreEpsilon {
			return
		}
	}

	acc.removeExisting(id)

	denom := float64(1)
	if normalise {
		denom = recNorm * queryNorm
	}

	score := float32(dot / denom)

	acc.offer(id, score)
}

func l2Norm64(v []float32) float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}

	return math.Sqrt(sumSq)
}

// topKAccumulator keeps the k highest-scoring (id, score) pairs seen so
// far, deduplicated by id, with strict greater-than replacement so that
// ties keep whichever candidate arrived first (earliest file position, for
// distinct ids at equal score).
type topKAccumulator struct {
	k        int
	minScore float32
	byID     map[ID]int // id -> index into entries
	entries  []Result
}

func newTopKAccumulator(k int, minScore float32) *topKAccumulator {
	return &topKAccumulator{
		k:        k,
		minScore: minScore,
		byID:     make(map[ID]int),
	}
}

// removeExisting removes any existing entry for id, unconditionally. Called
// once per record that clears the norm-epsilon check, before offer: a
// later generation of an id always supersedes an earlier scored entry for
// it, independent of whether the later generation's own score clears
// minScore.
func (a *topKAccumulator) removeExisting(id ID) {
	idx, ok := a.byID[id]
	if !ok {
		return
	}

	a.removeAt(idx)
}

// offer adds (id, score) to the top-k set if score clears minScore and
// either there is room or score beats the current weakest entry. The
// caller is responsible for having already removed any prior entry for id
// via removeExisting.
func (a *topKAccumulator) offer(id ID, score float32) {
	if score < a.minScore {
		return
	}

	if len(a.entries) < a.k {
		a.entries = append(a.entries, Result{ID: id, Score: score})
		a.byID[id] = len(a.entries) - 1

		return
	}

	minIdx, minVal := 0, a.entries[0].Score
	for i, e := range a.entries {
		if e.Score < minVal {
			minIdx, minVal = i, e.Score
		}
	}

	if score > minVal {
		delete(a.byID, a.entries[minIdx].ID)
		a.entries[minIdx] = Result{ID: id, Score: score}
		a.byID[id] = minIdx
	}
}

// removeAt deletes the entry at idx by swapping in the last entry, keeping
// byID consistent with the resulting slice.
func (a *topKAccumulator) removeAt(idx int) {
	removedID := a.entries[idx].ID
	last := len(a.entries) - 1

	a.entries[idx] = a.entries[last]
	a.entries = a.entries[:last]
	delete(a.byID, removedID)

	if idx < len(a.entries) {
		a.byID[a.entries[idx].ID] = idx
	}
}

func (a *topKAccumulator) sorted() []Result {
	out := append([]Result(nil), a.entries...)

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}

		return less16(out[i].ID, out[j].ID)
	})

	return out
}

// less16 breaks score ties deterministically by id, purely so Search's
// output order is stable across runs; it carries no semantic meaning.
func less16(a, b ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}

	return false
}
