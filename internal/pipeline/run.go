// Package pipeline provides the orchestration of one upload: parse, chunk, embed and extract
// in parallel, stage the session index, and score the evidence.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/career-fit/internal/chunking"
	"github.com/jonathan/career-fit/internal/classify"
	"github.com/jonathan/career-fit/internal/embedding"
	"github.com/jonathan/career-fit/internal/ingestion"
	"github.com/jonathan/career-fit/internal/pipeline/steps"
	"github.com/jonathan/career-fit/internal/scoring"
	"github.com/jonathan/career-fit/internal/types"
	"github.com/jonathan/career-fit/internal/vectorindex"
)

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Step      string      `json:"step"`
	Stage     types.Stage `json:"stage"`
	Message   string      `json:"message"`
	SessionID string      `json:"session_id,omitempty"`
	Content   any         `json:"content,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// StageFunc reports that the run entered an upload stage. Returning an error aborts the run.
type StageFunc func(stage types.Stage, detail string) error

// Previous is the committed state a run builds on.
type Previous struct {
	Segments   []types.Segment
	Extraction types.Extraction
	Index      *vectorindex.Snapshot
}

// RunOptions holds configuration for running the pipeline
type RunOptions struct {
	SessionID string
	// Text is the raw text of the new upload or materials addition
	Text   string
	Source types.Source
	// Previous is nil for a new session
	Previous *Previous

	Chunking  chunking.Options
	Embedder  embedding.Provider
	Extractor classify.Extractor
	Registry  *vectorindex.Registry

	OnStage    StageFunc
	OnProgress ProgressCallback
	Log        zerolog.Logger
}

// Result is everything a run produced, ready to be committed.
type Result struct {
	Segments   []types.Segment
	Chunks     []types.Chunk
	Staged     *vectorindex.Staged
	Extraction types.Extraction
	Scoring    scoring.Result
	Clusters   []types.ClusterGroup

	// ReusedUnits counts evidence units carried over from the previous generation
	ReusedUnits int
	// EmbeddedChunks counts chunks sent to the embedding provider
	EmbeddedChunks int
	Duration       time.Duration
}

type run struct {
	opts    *RunOptions
	tracker *steps.Tracker
	stage   types.Stage
	log     zerolog.Logger
}

// emitProgress calls the progress callback if configured
func (r *run) emitProgress(step, message string, content any) {
	if r.opts.OnProgress != nil {
		r.opts.OnProgress(ProgressEvent{
			Step:      step,
			Stage:     r.stage,
			Message:   message,
			SessionID: r.opts.SessionID,
			Content:   content,
		})
	}
}

// begin validates step order and reports the step's stage if the run just entered it
func (r *run) begin(ctx context.Context, step, detail string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	def, err := r.tracker.Begin(step)
	if err != nil {
		return err
	}
	if def.Stage == r.stage {
		return nil
	}
	r.stage = def.Stage
	if r.opts.OnStage != nil {
		if err := r.opts.OnStage(def.Stage, detail); err != nil {
			return fmt.Errorf("failed to report stage %s: %w", def.Stage, err)
		}
	}
	return nil
}

// Run processes one upload against the previous committed state. Nothing is published:
// the staged index and the returned artifacts are committed by the caller.
func Run(ctx context.Context, opts RunOptions) (*Result, error) {
	if opts.Embedder == nil || opts.Extractor == nil || opts.Registry == nil {
		return nil, fmt.Errorf("pipeline requires an embedder, an extractor and an index registry")
	}
	start := time.Now()
	r := &run{
		opts:    &opts,
		tracker: steps.NewTracker(),
		stage:   types.StageUploading,
		log:     opts.Log.With().Str("component", "pipeline").Str("session_id", opts.SessionID).Logger(),
	}
	prev := opts.Previous
	if prev == nil {
		prev = &Previous{}
	}
	res := &Result{}

	// Step 1: parse
	if err := r.begin(ctx, steps.StepParse, ""); err != nil {
		return nil, err
	}
	text, err := ingestion.ParseResume(opts.Text)
	if err != nil {
		return nil, err
	}
	res.Segments = append(append([]types.Segment{}, prev.Segments...), types.Segment{Source: opts.Source, Text: text})
	r.tracker.Complete(steps.StepParse)
	r.emitProgress(steps.StepParse, fmt.Sprintf("Parsed %d characters (%d segments)", len(text), len(res.Segments)), nil)

	// Step 2: chunk
	if err := r.begin(ctx, steps.StepChunk, ""); err != nil {
		return nil, err
	}
	chunkOpts := opts.Chunking
	chunkOpts.Owner = vectorindex.SessionScope(opts.SessionID)
	res.Chunks, err = chunking.ChunkSegments(res.Segments, chunkOpts)
	if err != nil {
		return nil, err
	}
	r.tracker.Complete(steps.StepChunk)
	r.emitProgress(steps.StepChunk, fmt.Sprintf("Split into %d chunks", len(res.Chunks)), nil)

	// Steps 3 and 4: embed and extract in parallel
	if err := r.begin(ctx, steps.StepEmbed, fmt.Sprintf("%d chunks", len(res.Chunks))); err != nil {
		return nil, err
	}
	if err := r.begin(ctx, steps.StepExtract, ""); err != nil {
		return nil, err
	}

	g, gCtx := errgroup.WithContext(ctx)
	var fresh types.Extraction
	// copied before the embed goroutine starts writing embeddings into res.Chunks
	pending := uncovered(res.Chunks, prev.Extraction.CoveredChunkIDs)
	g.Go(func() error {
		n, err := embedChunks(gCtx, opts.Embedder, prev.Index, res.Chunks)
		if err != nil {
			return fmt.Errorf("embedding failed: %w", err)
		}
		res.EmbeddedChunks = n
		return nil
	})
	g.Go(func() error {
		ext, err := opts.Extractor.Extract(gCtx, pending)
		if err != nil {
			return err
		}
		fresh = ext
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	r.tracker.Complete(steps.StepEmbed)
	r.tracker.Complete(steps.StepExtract)

	res.Extraction, res.ReusedUnits = mergeExtraction(prev.Extraction, fresh, res.Chunks)
	r.emitProgress(steps.StepExtract,
		fmt.Sprintf("Extracted %d evidence units from %d new chunks (%d reused)", len(fresh.Units), len(pending), res.ReusedUnits),
		nil)

	// Step 5: stage the session index off to the side
	if err := r.begin(ctx, steps.StepStageIndex, ""); err != nil {
		return nil, err
	}
	res.Staged, err = opts.Registry.Stage(vectorindex.SessionScope(opts.SessionID), res.Chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to stage session index: %w", err)
	}
	r.tracker.Complete(steps.StepStageIndex)

	// Step 6: score
	if err := r.begin(ctx, steps.StepScore, ""); err != nil {
		return nil, err
	}
	res.Scoring = scoring.Compute(res.Extraction.Units)
	r.tracker.Complete(steps.StepScore)
	r.emitProgress(steps.StepScore, fmt.Sprintf("Scored %d units (%s)", len(res.Extraction.Units), res.Scoring.Mode), res.Scoring.Distribution)

	// Step 7: cluster groups
	if err := r.begin(ctx, steps.StepBuildCluster, ""); err != nil {
		return nil, err
	}
	res.Clusters = scoring.BuildClusterGroups(res.Extraction.Units, res.Scoring.Distribution, res.Chunks)
	r.tracker.Complete(steps.StepBuildCluster)

	res.Duration = time.Since(start)
	r.log.Info().
		Int("segments", len(res.Segments)).
		Int("chunks", len(res.Chunks)).
		Int("embedded", res.EmbeddedChunks).
		Int("units", len(res.Extraction.Units)).
		Int("reused_units", res.ReusedUnits).
		Str("mode", string(res.Scoring.Mode)).
		Bool("incomplete", res.Extraction.Incomplete).
		Dur("duration", res.Duration).
		Msg("pipeline run complete")
	return res, nil
}

// embedChunks fills in embeddings, copying them from prev for chunk ids it already holds.
// It returns the number of chunks sent to the provider.
func embedChunks(ctx context.Context, p embedding.Provider, prev *vectorindex.Snapshot, chunks []types.Chunk) (int, error) {
	var missing []int
	for i := range chunks {
		if prev != nil {
			if old, ok := prev.Chunk(chunks[i].ID); ok && len(old.Embedding) > 0 {
				chunks[i].Embedding = old.Embedding
				continue
			}
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return 0, nil
	}

	batch := make([]types.Chunk, len(missing))
	for j, i := range missing {
		batch[j] = chunks[i]
	}
	if err := embedding.EmbedChunks(ctx, p, batch); err != nil {
		return 0, err
	}
	for j, i := range missing {
		chunks[i].Embedding = batch[j].Embedding
	}
	return len(missing), nil
}

// uncovered returns the chunks whose ids are not in covered, in order
func uncovered(chunks []types.Chunk, covered []string) []types.Chunk {
	done := make(map[string]bool, len(covered))
	for _, id := range covered {
		done[id] = true
	}
	out := make([]types.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if !done[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// mergeExtraction keeps previous units whose originating chunks all still exist, unchanged,
// and appends the fresh units after them. A fresh unit identical to a kept one, chunk ids
// included, is dropped.
func mergeExtraction(prev, fresh types.Extraction, chunks []types.Chunk) (types.Extraction, int) {
	exists := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		exists[c.ID] = true
	}

	out := types.Extraction{
		Units:            make([]types.EvidenceUnit, 0, len(prev.Units)+len(fresh.Units)),
		Incomplete:       fresh.Incomplete,
		IncompleteReason: fresh.IncompleteReason,
	}
	kept := make(map[string]bool)

	reused := 0
	for _, u := range prev.Units {
		if !allExist(u.OriginatingChunkIDs, exists) {
			continue
		}
		kept[unitKey(u)] = true
		out.Units = append(out.Units, u)
		reused++
	}
	for _, u := range fresh.Units {
		if kept[unitKey(u)] {
			continue
		}
		out.Units = append(out.Units, u)
	}

	covered := make(map[string]bool)
	for _, id := range prev.CoveredChunkIDs {
		if exists[id] {
			covered[id] = true
		}
	}
	for _, id := range fresh.CoveredChunkIDs {
		covered[id] = true
	}
	out.CoveredChunkIDs = make([]string, 0, len(covered))
	for id := range covered {
		out.CoveredChunkIDs = append(out.CoveredChunkIDs, id)
	}
	sort.Strings(out.CoveredChunkIDs)
	return out, reused
}

// unitKey identifies a unit by text, ownership and its sorted chunk ids.
func unitKey(u types.EvidenceUnit) string {
	ids := append([]string(nil), u.OriginatingChunkIDs...)
	sort.Strings(ids)
	return u.Text + "\x00" + string(u.Ownership) + "\x00" + strings.Join(ids, ",")
}

func allExist(ids []string, exists map[string]bool) bool {
	for _, id := range ids {
		if !exists[id] {
			return false
		}
	}
	return true
}
