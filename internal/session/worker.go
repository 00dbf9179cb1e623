package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/career-fit/internal/db"
	"github.com/jonathan/career-fit/internal/pipeline"
	"github.com/jonathan/career-fit/internal/types"
	"github.com/jonathan/career-fit/internal/vectorindex"
)

// statusTimeout bounds status writes made outside a run's context
const statusTimeout = 5 * time.Second

// enqueue registers an upload and queues its run behind any active run of the session.
func (m *Manager) enqueue(ctx context.Context, sessionID, kind, text string, source types.Source) (string, error) {
	uploadID := uuid.New().String()
	j := &job{sessionID: sessionID, uploadID: uploadID, kind: kind, text: text, source: source}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	q, ok := m.queues[sessionID]
	// materials need a committed analysis, or a run in flight that may produce one
	if kind == KindMaterials && !ok && m.sessions[sessionID] == nil {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrSessionNotReady, sessionID)
	}
	if !ok {
		q = &queue{}
		m.queues[sessionID] = q
	}
	if len(q.pending) >= m.cfg.MaxPending {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s has %d runs queued", ErrSessionBusy, sessionID, len(q.pending))
	}
	// registered under the lock so a worker never sees a job without a status
	if err := m.deps.Tracker.Start(ctx, uploadID, sessionID, kind); err != nil {
		if !q.running && len(q.pending) == 0 {
			delete(m.queues, sessionID)
		}
		m.mu.Unlock()
		return "", fmt.Errorf("failed to register upload: %w", err)
	}
	q.pending = append(q.pending, j)
	m.known[sessionID] = true
	if !q.running {
		q.running = true
		m.ready = append(m.ready, sessionID)
		m.cond.Signal()
	}
	m.mu.Unlock()

	m.log.Info().
		Str("session_id", sessionID).
		Str("upload_id", uploadID).
		Str("kind", kind).
		Int("bytes", len(text)).
		Msg("queued run")
	return uploadID, nil
}

// worker takes the next session with queued work and runs its oldest job. A session is in
// the ready list at most once, so its runs never overlap.
func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		for len(m.ready) == 0 && !m.closed {
			m.cond.Wait()
		}
		if m.closed {
			m.mu.Unlock()
			return
		}
		sessionID := m.ready[0]
		m.ready = m.ready[1:]
		q := m.queues[sessionID]
		j := q.pending[0]
		q.pending = q.pending[1:]
		m.mu.Unlock()

		m.process(j)

		m.mu.Lock()
		if len(q.pending) > 0 && !m.closed {
			m.ready = append(m.ready, sessionID)
			m.cond.Signal()
		} else {
			q.running = false
			if len(q.pending) == 0 {
				delete(m.queues, sessionID)
			}
		}
		m.mu.Unlock()
	}
}

func (m *Manager) process(j *job) {
	ctx, cancel := context.WithTimeout(m.baseCtx, m.cfg.RunTimeout)
	defer cancel()
	log := m.log.With().Str("session_id", j.sessionID).Str("upload_id", j.uploadID).Logger()

	m.mu.RLock()
	prev := m.sessions[j.sessionID]
	m.mu.RUnlock()

	if j.kind == KindMaterials && prev == nil {
		log.Warn().Msg("materials queued behind a run that never committed")
		m.fail(j, fmt.Errorf("%w: %s", ErrSessionNotReady, j.sessionID))
		return
	}

	var previous *pipeline.Previous
	if prev != nil {
		previous = &pipeline.Previous{
			Segments:   prev.Segments,
			Extraction: prev.Extraction,
			Index:      prev.Index,
		}
	}

	res, err := pipeline.Run(ctx, pipeline.RunOptions{
		SessionID:  j.sessionID,
		Text:       j.text,
		Source:     j.source,
		Previous:   previous,
		Chunking:   m.cfg.Chunking,
		Embedder:   m.deps.Embedder,
		Extractor:  m.deps.Extractor,
		Registry:   m.deps.Registry,
		OnProgress: m.deps.OnProgress,
		Log:        m.deps.Log,
		OnStage: func(stage types.Stage, detail string) error {
			return m.deps.Tracker.Advance(ctx, j.uploadID, stage, detail)
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("run failed; session keeps its previous state")
		m.fail(j, err)
		return
	}

	state, err := m.commit(ctx, j.sessionID, res)
	if err != nil {
		log.Error().Err(err).Msg("commit failed; session keeps its previous state")
		m.fail(j, err)
		return
	}

	detail := fmt.Sprintf("generation %d, %d chunks, %d evidence units", state.Generation, len(res.Chunks), len(res.Extraction.Units))
	if res.Extraction.Incomplete {
		detail += " (extraction incomplete)"
	}
	stCtx, stCancel := context.WithTimeout(context.Background(), statusTimeout)
	defer stCancel()
	if err := m.deps.Tracker.Advance(stCtx, j.uploadID, types.StageReady, detail); err != nil {
		log.Warn().Err(err).Msg("failed to mark upload ready")
	}
}

func (m *Manager) fail(j *job, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()
	if err := m.deps.Tracker.Fail(ctx, j.uploadID, cause); err != nil {
		m.log.Warn().Err(err).Str("upload_id", j.uploadID).Msg("failed to record upload error")
	}
}

// commit makes a run's result the session's state:
//  1. write the staged index generation files
//  2. write the artifacts and advance the session generation in one transaction
//  3. point the index CURRENT file at the new generation and swap the snapshot
//  4. publish the in-memory state
//  5. prune older generations
//
// Step 2 is the commit point. Recovery trusts the database generation, so a crash between
// steps 2 and 3 still recovers the new state.
func (m *Manager) commit(ctx context.Context, sessionID string, res *pipeline.Result) (*State, error) {
	snap := res.Staged.Snapshot()
	gen := snap.Generation()

	if err := m.deps.Registry.Persist(res.Staged); err != nil {
		return nil, fmt.Errorf("failed to write index generation %d: %w", gen, err)
	}

	artifacts, err := encodeArtifacts(res)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run abandoned before commit: %w", err)
	}
	if err := m.deps.Store.CommitGeneration(ctx, db.Commit{
		SessionID:  sessionID,
		Generation: gen,
		Artifacts:  artifacts,
	}); err != nil {
		return nil, fmt.Errorf("failed to commit session generation %d: %w", gen, err)
	}

	state := &State{
		ID:         sessionID,
		Generation: gen,
		Segments:   res.Segments,
		Extraction: res.Extraction,
		Scoring:    res.Scoring,
		Clusters:   res.Clusters,
		Index:      snap,
		UpdatedAt:  time.Now().UTC(),
	}

	m.mu.Lock()
	if err := m.deps.Registry.Publish(res.Staged); err != nil {
		// the database already holds the new generation; reload it so the registry agrees
		m.log.Warn().Err(err).Str("session_id", sessionID).Int64("generation", gen).Msg("index publish failed, reloading committed generation")
		if _, lerr := m.deps.Registry.LoadGeneration(context.WithoutCancel(ctx), vectorindex.SessionScope(sessionID), gen); lerr != nil {
			m.log.Error().Err(lerr).Str("session_id", sessionID).Msg("failed to reload committed index generation")
		}
	}
	m.sessions[sessionID] = state
	m.mu.Unlock()

	if err := m.deps.Store.PruneGenerations(context.WithoutCancel(ctx), sessionID, gen); err != nil {
		m.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to prune old artifacts")
	}

	m.log.Info().
		Str("session_id", sessionID).
		Int64("generation", gen).
		Str("mode", string(res.Scoring.Mode)).
		Interface("distribution", res.Scoring.Distribution).
		Msg("committed session")
	return state, nil
}

func encodeArtifacts(res *pipeline.Result) (map[string][]byte, error) {
	values := map[string]any{
		db.KindSegments:     res.Segments,
		db.KindExtraction:   res.Extraction,
		db.KindDistribution: res.Scoring.Distribution.Complete(),
	}
	out := make(map[string][]byte, len(values))
	for kind, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", kind, err)
		}
		out[kind] = data
	}
	return out, nil
}
