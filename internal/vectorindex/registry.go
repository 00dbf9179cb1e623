package vectorindex

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/jonathan/career-fit/internal/types"
)

type scopeState struct {
	// writeMu serializes writers of this scope only; readers never take it
	writeMu sync.Mutex
	current atomic.Pointer[Snapshot]
}

// Registry holds the current snapshot of every scope. A nil store keeps indices in memory only.
type Registry struct {
	store *FileStore
	log   zerolog.Logger

	mu     sync.Mutex
	scopes map[string]*scopeState
}

// Staged is a snapshot built for a scope but not yet visible to readers.
type Staged struct {
	snap *Snapshot
	base int64
}

// Snapshot returns the staged snapshot. It can be searched before it is published.
func (s *Staged) Snapshot() *Snapshot {
	return s.snap
}

// NewRegistry creates a registry persisting to store (may be nil).
func NewRegistry(store *FileStore, log zerolog.Logger) *Registry {
	return &Registry{
		store:  store,
		log:    log.With().Str("component", "vectorindex").Logger(),
		scopes: make(map[string]*scopeState),
	}
}

func (r *Registry) state(scope string) *scopeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.scopes[scope]
	if !ok {
		st = &scopeState{}
		st.current.Store(emptySnapshot(scope))
		r.scopes[scope] = st
	}
	return st
}

// Current returns the published snapshot of scope; an empty snapshot if nothing was published.
func (r *Registry) Current(scope string) *Snapshot {
	return r.state(scope).current.Load()
}

// Search runs a top-k cosine query against the published snapshot of scope.
func (r *Registry) Search(scope string, query []float32, k int) ([]types.ScoredChunk, error) {
	return r.Current(scope).Search(query, k)
}

// Stage builds a replacement snapshot for scope holding exactly chunks. Nothing is written
// or published until Commit.
func (r *Registry) Stage(scope string, chunks []types.Chunk) (*Staged, error) {
	base := r.Current(scope).generation
	snap, err := NewSnapshot(scope, base+1, chunks)
	if err != nil {
		return nil, err
	}
	return &Staged{snap: snap, base: base}, nil
}

// Persist writes a staged snapshot's generation files without making them current.
func (r *Registry) Persist(staged *Staged) error {
	if r.store == nil {
		return nil
	}
	return r.store.WriteGeneration(staged.snap)
}

// Publish makes a persisted staged snapshot current, on disk and for readers.
func (r *Registry) Publish(staged *Staged) error {
	st := r.state(staged.snap.scope)
	st.writeMu.Lock()
	defer st.writeMu.Unlock()
	return r.publishLocked(st, staged)
}

// Commit persists and publishes a staged snapshot.
func (r *Registry) Commit(ctx context.Context, staged *Staged) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.Persist(staged); err != nil {
		return err
	}
	return r.Publish(staged)
}

func (r *Registry) publishLocked(st *scopeState, staged *Staged) error {
	cur := st.current.Load()
	if cur.generation != staged.base {
		return fmt.Errorf("%w: scope %s is at generation %d, staged from %d", ErrStaleStage, cur.scope, cur.generation, staged.base)
	}

	if r.store != nil {
		if err := r.store.SetCurrent(staged.snap.scope, staged.snap.generation); err != nil {
			return fmt.Errorf("failed to commit generation %d of %s: %w", staged.snap.generation, staged.snap.scope, err)
		}
	}
	st.current.Store(staged.snap)

	r.log.Debug().
		Str("scope", staged.snap.scope).
		Int64("generation", staged.snap.generation).
		Int("chunks", staged.snap.Len()).
		Msg("published index snapshot")

	if r.store != nil {
		if err := r.store.Prune(staged.snap.scope, staged.snap.generation); err != nil {
			r.log.Warn().Err(err).Str("scope", staged.snap.scope).Msg("failed to prune old generations")
		}
	}
	return nil
}

// Insert appends chunks to scope. Chunks whose id is already indexed are skipped.
// Concurrent searches see either the old snapshot or the one including the whole batch.
func (r *Registry) Insert(ctx context.Context, scope string, chunks []types.Chunk) (*Snapshot, error) {
	st := r.state(scope)
	st.writeMu.Lock()
	defer st.writeMu.Unlock()

	cur := st.current.Load()
	next, err := cur.with(cur.generation+1, chunks)
	if err != nil {
		return nil, err
	}
	if next.Len() == cur.Len() {
		return cur, nil
	}
	return r.writeLocked(ctx, st, &Staged{snap: next, base: cur.generation})
}

// Replace swaps the whole contents of scope for chunks.
func (r *Registry) Replace(ctx context.Context, scope string, chunks []types.Chunk) (*Snapshot, error) {
	st := r.state(scope)
	st.writeMu.Lock()
	defer st.writeMu.Unlock()

	cur := st.current.Load()
	next, err := NewSnapshot(scope, cur.generation+1, chunks)
	if err != nil {
		return nil, err
	}
	return r.writeLocked(ctx, st, &Staged{snap: next, base: cur.generation})
}

func (r *Registry) writeLocked(ctx context.Context, st *scopeState, staged *Staged) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.Persist(staged); err != nil {
		return nil, err
	}
	if err := r.publishLocked(st, staged); err != nil {
		return nil, err
	}
	return staged.snap, nil
}

// Load publishes the committed generation of scope from disk. A scope with no committed
// generation loads as empty.
func (r *Registry) Load(ctx context.Context, scope string) (*Snapshot, error) {
	if r.store == nil {
		return r.Current(scope), nil
	}
	gen, ok, err := r.store.Current(scope)
	if err != nil {
		return nil, err
	}
	if !ok {
		return r.Current(scope), nil
	}
	return r.LoadGeneration(ctx, scope, gen)
}

// LoadGeneration publishes a specific persisted generation of scope, pointing CURRENT at it.
// It is used during recovery when another record names the authoritative generation.
func (r *Registry) LoadGeneration(ctx context.Context, scope string, gen int64) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.store == nil {
		return nil, fmt.Errorf("no index store configured")
	}

	snap, err := r.store.ReadGeneration(scope, gen)
	if err != nil {
		return nil, err
	}

	st := r.state(scope)
	st.writeMu.Lock()
	defer st.writeMu.Unlock()

	if cur, ok, err := r.store.Current(scope); err != nil || !ok || cur != gen {
		if err := r.store.SetCurrent(scope, gen); err != nil {
			return nil, err
		}
	}
	st.current.Store(snap)
	r.log.Debug().Str("scope", scope).Int64("generation", gen).Int("chunks", snap.Len()).Msg("loaded index snapshot")
	return snap, nil
}

// Drop forgets scope in memory and removes its files.
func (r *Registry) Drop(scope string) error {
	r.mu.Lock()
	st, ok := r.scopes[scope]
	delete(r.scopes, scope)
	r.mu.Unlock()

	if ok {
		st.writeMu.Lock()
		defer st.writeMu.Unlock()
	}
	if r.store != nil {
		return r.store.Remove(scope)
	}
	return nil
}
