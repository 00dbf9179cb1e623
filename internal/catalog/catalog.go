// Package catalog maintains the global job description index.
package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/career-fit/internal/chunking"
	"github.com/jonathan/career-fit/internal/embedding"
	"github.com/jonathan/career-fit/internal/ingestion"
	"github.com/jonathan/career-fit/internal/types"
	"github.com/jonathan/career-fit/internal/vectorindex"
)

// embedConcurrency bounds concurrent embedding calls during ingest
const embedConcurrency = 4

// DocumentNotFoundError is returned when a job description id is not in the catalog.
type DocumentNotFoundError struct {
	DocID string
}

func (e *DocumentNotFoundError) Error() string {
	return fmt.Sprintf("job description %q is not in the catalog", e.DocID)
}

// IngestResult summarizes one ingest call.
type IngestResult struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	// Total is the number of chunks in the catalog afterwards
	Total int `json:"total"`
}

// Catalog ingests job descriptions into the jd-global scope and searches them.
type Catalog struct {
	registry *vectorindex.Registry
	embedder embedding.Provider
	opts     chunking.Options
	log      zerolog.Logger
	validate *validator.Validate
}

// New creates a catalog over registry's jd-global scope.
func New(registry *vectorindex.Registry, embedder embedding.Provider, opts chunking.Options, log zerolog.Logger) *Catalog {
	return &Catalog{
		registry: registry,
		embedder: embedder,
		opts:     opts,
		log:      log.With().Str("component", "catalog").Logger(),
		validate: validator.New(),
	}
}

// Ingest chunks, embeds and adds items to the catalog. Without replace, chunks already
// indexed are kept and re-ingesting an unchanged document is a no-op. With replace, every
// previously indexed chunk of an ingested document id is dropped first.
func (c *Catalog) Ingest(ctx context.Context, items []types.JDItem, replace bool) (*IngestResult, error) {
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if err := c.validate.Struct(item); err != nil {
			return nil, fmt.Errorf("job description %d (%q) is invalid: %w", i, item.ID, err)
		}
		if seen[item.ID] {
			return nil, fmt.Errorf("job description id %q appears more than once", item.ID)
		}
		seen[item.ID] = true
	}

	perItem := make([][]types.Chunk, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, item := range items {
		g.Go(func() error {
			chunks, err := c.chunkItem(gctx, item)
			if err != nil {
				return fmt.Errorf("failed to ingest job description %q: %w", item.ID, err)
			}
			perItem[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var added []types.Chunk
	for _, chunks := range perItem {
		added = append(added, chunks...)
	}

	var snap *vectorindex.Snapshot
	var err error
	if replace {
		kept := c.registry.Current(types.ScopeGlobalJD).Filter(func(ch types.Chunk) bool {
			return !seen[ch.DocID]
		}).Chunks()
		snap, err = c.registry.Replace(ctx, types.ScopeGlobalJD, append(kept, added...))
	} else {
		snap, err = c.registry.Insert(ctx, types.ScopeGlobalJD, added)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update job description index: %w", err)
	}

	c.log.Info().
		Int("documents", len(items)).
		Int("chunks", len(added)).
		Int("total", snap.Len()).
		Bool("replace", replace).
		Msg("ingested job descriptions")

	return &IngestResult{Documents: len(items), Chunks: len(added), Total: snap.Len()}, nil
}

func (c *Catalog) chunkItem(ctx context.Context, item types.JDItem) ([]types.Chunk, error) {
	text, err := ingestion.ParseJobDescription(item.Text)
	if err != nil {
		return nil, err
	}
	opts := c.opts
	opts.Owner = types.ScopeGlobalJD
	opts.DocID = item.ID
	opts.Role = item.Role
	opts.Level = item.Level
	chunks, err := chunking.Chunk(text, types.SourceJD, opts)
	if err != nil {
		return nil, err
	}
	if err := embedding.EmbedChunks(ctx, c.embedder, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// Search returns the top k catalog chunks for query, optionally restricted to one role.
func (c *Catalog) Search(ctx context.Context, query string, role types.RoleID, k int) ([]types.ScoredChunk, error) {
	vecs, err := c.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding provider returned %d vectors for one query", len(vecs))
	}

	snap := c.registry.Current(types.ScopeGlobalJD)
	if role == "" {
		return snap.Search(vecs[0], k)
	}
	return snap.SearchFunc(vecs[0], k, func(ch types.Chunk) bool {
		return ch.Role == role
	})
}

// Document returns the chunks of one job description as a standalone snapshot.
func (c *Catalog) Document(docID string) (*vectorindex.Snapshot, error) {
	snap := c.registry.Current(types.ScopeGlobalJD).Filter(func(ch types.Chunk) bool {
		return ch.DocID == docID
	})
	if snap.Len() == 0 {
		return nil, &DocumentNotFoundError{DocID: docID}
	}
	return snap, nil
}

// Documents lists the ids of all catalog documents, sorted.
func (c *Catalog) Documents() []string {
	ids := make(map[string]bool)
	for _, ch := range c.registry.Current(types.ScopeGlobalJD).Chunks() {
		ids[ch.DocID] = true
	}
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
