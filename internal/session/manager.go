// Package session runs uploads and materials additions through the pipeline and owns each
// session's committed chunk, evidence and distribution state.
//
// A session's state is replaced as a whole: a run builds everything off to the side and the
// manager commits it in a fixed order (index files, database transaction, index pointer,
// in-memory state). A failed or abandoned run leaves the previous state in place.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jonathan/career-fit/internal/catalog"
	"github.com/jonathan/career-fit/internal/chunking"
	"github.com/jonathan/career-fit/internal/classify"
	"github.com/jonathan/career-fit/internal/db"
	"github.com/jonathan/career-fit/internal/embedding"
	"github.com/jonathan/career-fit/internal/ingestion"
	"github.com/jonathan/career-fit/internal/matching"
	"github.com/jonathan/career-fit/internal/pipeline"
	"github.com/jonathan/career-fit/internal/scoring"
	"github.com/jonathan/career-fit/internal/status"
	"github.com/jonathan/career-fit/internal/types"
	"github.com/jonathan/career-fit/internal/vectorindex"
)

// Upload kinds recorded in the status tracker
const (
	KindUpload    = "upload"
	KindMaterials = "materials"
)

// Config controls the worker pool and per-run limits.
type Config struct {
	// Workers is the number of runs processed concurrently across sessions
	Workers int
	// MaxPending is the number of runs that may wait behind the active run of one session
	MaxPending int
	// RunTimeout bounds a whole pipeline run
	RunTimeout time.Duration
	Chunking   chunking.Options
}

// DefaultConfig returns the default pool settings.
func DefaultConfig() Config {
	return Config{
		Workers:    2,
		MaxPending: 4,
		RunTimeout: 10 * time.Minute,
		Chunking:   chunking.DefaultOptions(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.MaxPending <= 0 {
		c.MaxPending = d.MaxPending
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = d.RunTimeout
	}
	if c.Chunking.Size == 0 {
		c.Chunking = d.Chunking
	}
	return c
}

// Dependencies are the collaborators a manager drives.
type Dependencies struct {
	Store     db.Store
	Registry  *vectorindex.Registry
	Tracker   status.Tracker
	Embedder  embedding.Provider
	Extractor classify.Extractor
	Engine    *matching.Engine
	// Catalog resolves job description ids; optional
	Catalog    *catalog.Catalog
	OnProgress pipeline.ProgressCallback
	Log        zerolog.Logger
}

// State is the committed, immutable state of one session.
type State struct {
	ID         string
	Generation int64
	Segments   []types.Segment
	Extraction types.Extraction
	Scoring    scoring.Result
	Clusters   []types.ClusterGroup
	Index      *vectorindex.Snapshot
	UpdatedAt  time.Time
}

// MatchRequest names the job description to match against: a catalog id or pasted text.
type MatchRequest struct {
	JDID   string
	JDText string
}

type job struct {
	sessionID string
	uploadID  string
	kind      string
	text      string
	source    types.Source
}

type queue struct {
	pending []*job
	running bool
}

// Manager owns the sessions of one process.
type Manager struct {
	deps Dependencies
	cfg  Config
	log  zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.RWMutex
	cond     *sync.Cond
	sessions map[string]*State
	known    map[string]bool
	queues   map[string]*queue
	ready    []string
	closed   bool
}

// New creates a manager and starts its workers.
func New(deps Dependencies, cfg Config) (*Manager, error) {
	if deps.Store == nil || deps.Registry == nil || deps.Tracker == nil || deps.Embedder == nil || deps.Extractor == nil || deps.Engine == nil {
		return nil, fmt.Errorf("session manager requires a store, index registry, tracker, embedder, extractor and match engine")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Chunking.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		deps:     deps,
		cfg:      cfg,
		log:      deps.Log.With().Str("component", "session").Logger(),
		baseCtx:  ctx,
		cancel:   cancel,
		sessions: make(map[string]*State),
		known:    make(map[string]bool),
		queues:   make(map[string]*queue),
	}
	m.cond = sync.NewCond(&m.mu)

	for i := 0; i < cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m, nil
}

// Upload starts a new session from resume text. Processing is asynchronous; poll Status with
// the returned upload id.
func (m *Manager) Upload(ctx context.Context, text string, source types.Source) (sessionID, uploadID string, err error) {
	if source == "" {
		source = types.SourceResume
	}
	sessionID = uuid.New().String()
	uploadID, err = m.enqueue(ctx, sessionID, KindUpload, text, source)
	if err != nil {
		return "", "", err
	}
	return sessionID, uploadID, nil
}

// AddMaterials appends supplemental text to an existing session and re-runs its analysis.
func (m *Manager) AddMaterials(ctx context.Context, sessionID, text string) (string, error) {
	m.mu.RLock()
	known := m.known[sessionID]
	m.mu.RUnlock()
	if !known {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return m.enqueue(ctx, sessionID, KindMaterials, text, types.SourceAddOn)
}

// Status returns the status of an upload or materials addition.
func (m *Manager) Status(ctx context.Context, uploadID string) (*types.UploadStatus, error) {
	return m.deps.Tracker.Get(ctx, uploadID)
}

// Wait polls an upload until it reaches a terminal stage or ctx ends.
func (m *Manager) Wait(ctx context.Context, uploadID string) (*types.UploadStatus, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		st, err := m.deps.Tracker.Get(ctx, uploadID)
		if err != nil {
			return nil, err
		}
		if st.Stage.Terminal() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Session returns the committed state of a session.
func (m *Manager) Session(sessionID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.sessions[sessionID]; ok {
		return st, nil
	}
	if m.known[sessionID] {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotReady, sessionID)
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
}

// Sessions lists the ids of committed sessions.
func (m *Manager) Sessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	return out
}

// Clusters returns the structured cluster view of a session.
func (m *Manager) Clusters(sessionID string) (*types.ClusterView, error) {
	st, err := m.Session(sessionID)
	if err != nil {
		return nil, err
	}
	return &types.ClusterView{
		SessionID:        st.ID,
		Generation:       st.Generation,
		Mode:             string(st.Scoring.Mode),
		Distribution:     st.Scoring.Distribution.Complete(),
		Clusters:         st.Clusters,
		Incomplete:       st.Extraction.Incomplete,
		IncompleteReason: st.Extraction.IncompleteReason,
	}, nil
}

// Match matches a session's committed state against a job description.
func (m *Manager) Match(ctx context.Context, sessionID string, req MatchRequest) (*types.MatchResult, error) {
	st, err := m.Session(sessionID)
	if err != nil {
		return nil, err
	}
	jd, ref, err := m.ResolveJD(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.deps.Engine.Match(ctx, matching.Input{
		SessionID:    st.ID,
		JDRef:        ref,
		Distribution: st.Scoring.Distribution,
		Units:        st.Extraction.Units,
		Clusters:     st.Clusters,
		Resume:       st.Index,
		JD:           jd,
	})
}

// ResolveJD returns the job description snapshot for a request and a reference naming it.
func (m *Manager) ResolveJD(ctx context.Context, req MatchRequest) (*vectorindex.Snapshot, string, error) {
	switch {
	case req.JDID != "":
		if m.deps.Catalog == nil {
			return nil, "", fmt.Errorf("no job description catalog configured")
		}
		snap, err := m.deps.Catalog.Document(req.JDID)
		if err != nil {
			return nil, "", err
		}
		return snap, req.JDID, nil
	case req.JDText != "":
		text, err := ingestion.ParseJobDescription(req.JDText)
		if err != nil {
			return nil, "", err
		}
		snap, err := m.deps.Engine.JDFromText(ctx, text, m.cfg.Chunking)
		if err != nil {
			return nil, "", err
		}
		return snap, "adhoc", nil
	default:
		return nil, "", matching.ErrNoJobDescription
	}
}

// Delete removes a committed session, its artifacts and its index. A session with runs in
// progress cannot be deleted.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	if q, ok := m.queues[sessionID]; ok && (q.running || len(q.pending) > 0) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s has runs in progress", ErrSessionBusy, sessionID)
	}
	if _, ok := m.sessions[sessionID]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	delete(m.sessions, sessionID)
	delete(m.known, sessionID)
	m.mu.Unlock()

	if err := m.deps.Store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	return m.deps.Registry.Drop(vectorindex.SessionScope(sessionID))
}

// Close stops accepting work, abandons in-flight runs before their commit, and waits for
// the workers to exit or ctx to end.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var abandoned []*job
	for _, q := range m.queues {
		abandoned = append(abandoned, q.pending...)
		q.pending = nil
	}
	m.cond.Broadcast()
	m.mu.Unlock()

	m.cancel()
	for _, j := range abandoned {
		m.fail(j, ErrClosed)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for session workers: %w", ctx.Err())
	}
}
