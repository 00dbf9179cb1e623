// Package vectorindex stores chunk vectors per scope and answers cosine top-k queries.
//
// Each scope holds an immutable Snapshot behind an atomic pointer. Writers build a new
// snapshot off to the side and publish it with a single pointer swap, so readers always see
// a complete index and never take a lock.
package vectorindex

import (
	"fmt"
	"sort"

	"github.com/jonathan/career-fit/internal/embedding"
	"github.com/jonathan/career-fit/internal/types"
)

// Snapshot is an immutable set of embedded chunks for one scope.
type Snapshot struct {
	scope      string
	generation int64
	dims       int
	chunks     []types.Chunk
	byID       map[string]int
}

// NewSnapshot builds a snapshot from chunks in insertion order. Chunks with a repeated id
// keep their first occurrence. Every chunk must carry an embedding of the same dimension.
func NewSnapshot(scope string, generation int64, chunks []types.Chunk) (*Snapshot, error) {
	s := &Snapshot{
		scope:      scope,
		generation: generation,
		chunks:     make([]types.Chunk, 0, len(chunks)),
		byID:       make(map[string]int, len(chunks)),
	}
	for _, c := range chunks {
		if err := s.appendChunk(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func emptySnapshot(scope string) *Snapshot {
	return &Snapshot{scope: scope, byID: map[string]int{}}
}

func (s *Snapshot) appendChunk(c types.Chunk) error {
	if c.ID == "" {
		return fmt.Errorf("chunk without id in scope %s", s.scope)
	}
	if _, dup := s.byID[c.ID]; dup {
		return nil
	}
	if len(c.Embedding) == 0 {
		return fmt.Errorf("chunk %s has no embedding", c.ID)
	}
	if s.dims == 0 {
		s.dims = len(c.Embedding)
	} else if len(c.Embedding) != s.dims {
		return fmt.Errorf("chunk %s has dimension %d, index has %d", c.ID, len(c.Embedding), s.dims)
	}
	s.byID[c.ID] = len(s.chunks)
	s.chunks = append(s.chunks, c)
	return nil
}

// Scope returns the scope the snapshot belongs to
func (s *Snapshot) Scope() string { return s.scope }

// Generation returns the snapshot's generation; 0 means never written
func (s *Snapshot) Generation() int64 { return s.generation }

// Len returns the number of chunks
func (s *Snapshot) Len() int { return len(s.chunks) }

// Dims returns the vector dimension, or 0 for an empty snapshot
func (s *Snapshot) Dims() int { return s.dims }

// Chunks returns a copy of the chunk list in insertion order
func (s *Snapshot) Chunks() []types.Chunk {
	out := make([]types.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Chunk looks up a chunk by id
func (s *Snapshot) Chunk(id string) (types.Chunk, bool) {
	i, ok := s.byID[id]
	if !ok {
		return types.Chunk{}, false
	}
	return s.chunks[i], true
}

// IDs returns chunk ids in insertion order
func (s *Snapshot) IDs() []string {
	out := make([]string, len(s.chunks))
	for i, c := range s.chunks {
		out[i] = c.ID
	}
	return out
}

// Search returns the k chunks most similar to query, by descending cosine similarity.
// Equal scores keep insertion order.
func (s *Snapshot) Search(query []float32, k int) ([]types.ScoredChunk, error) {
	return s.SearchFunc(query, k, nil)
}

// SearchFunc is Search restricted to chunks accepted by keep. A nil keep accepts all.
func (s *Snapshot) SearchFunc(query []float32, k int, keep func(types.Chunk) bool) ([]types.ScoredChunk, error) {
	if k <= 0 || len(s.chunks) == 0 {
		return []types.ScoredChunk{}, nil
	}
	if len(query) != s.dims {
		return nil, fmt.Errorf("query has dimension %d, index %s has %d", len(query), s.scope, s.dims)
	}

	hits := make([]types.ScoredChunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		if keep != nil && !keep(c) {
			continue
		}
		hits = append(hits, types.ScoredChunk{Chunk: c, Score: embedding.Dot(query, c.Embedding)})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Filter returns a snapshot holding only the chunks accepted by keep, in the same order.
// The result shares chunk data with s and is not registered anywhere.
func (s *Snapshot) Filter(keep func(types.Chunk) bool) *Snapshot {
	out := emptySnapshot(s.scope)
	out.generation = s.generation
	out.dims = s.dims
	for _, c := range s.chunks {
		if keep(c) {
			out.byID[c.ID] = len(out.chunks)
			out.chunks = append(out.chunks, c)
		}
	}
	return out
}

// with returns a new snapshot holding s's chunks followed by chunks not already present
func (s *Snapshot) with(generation int64, chunks []types.Chunk) (*Snapshot, error) {
	out := &Snapshot{
		scope:      s.scope,
		generation: generation,
		dims:       s.dims,
		chunks:     make([]types.Chunk, len(s.chunks), len(s.chunks)+len(chunks)),
		byID:       make(map[string]int, len(s.chunks)+len(chunks)),
	}
	copy(out.chunks, s.chunks)
	for id, i := range s.byID {
		out.byID[id] = i
	}
	for _, c := range chunks {
		if err := out.appendChunk(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}
