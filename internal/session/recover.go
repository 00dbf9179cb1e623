package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonathan/career-fit/internal/db"
	"github.com/jonathan/career-fit/internal/schemas"
	"github.com/jonathan/career-fit/internal/scoring"
	"github.com/jonathan/career-fit/internal/types"
	"github.com/jonathan/career-fit/internal/vectorindex"
)

// Recover loads every committed session from the store. The database generation is
// authoritative: the index is loaded at that generation even if its CURRENT file points
// elsewhere. Sessions that cannot be restored are logged and skipped. It returns the number
// of sessions restored.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	records, err := m.deps.Store.ListSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	restored := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return restored, err
		}
		state, err := m.restore(ctx, rec)
		if err != nil {
			m.log.Warn().Err(err).Str("session_id", rec.ID).Int64("generation", rec.CurrentGeneration).Msg("skipping unrecoverable session")
			continue
		}

		m.mu.Lock()
		if cur, ok := m.sessions[rec.ID]; !ok || cur.Generation < state.Generation {
			m.sessions[rec.ID] = state
		}
		m.known[rec.ID] = true
		m.mu.Unlock()
		restored++
	}

	m.log.Info().Int("sessions", restored).Int("records", len(records)).Msg("recovered sessions")
	return restored, nil
}

func (m *Manager) restore(ctx context.Context, rec db.SessionRecord) (*State, error) {
	artifacts, err := m.deps.Store.LoadArtifacts(ctx, rec.ID, rec.CurrentGeneration)
	if err != nil {
		return nil, err
	}

	var segments []types.Segment
	if err := decodeArtifact(artifacts, db.KindSegments, &segments); err != nil {
		return nil, err
	}
	var extraction types.Extraction
	if err := decodeArtifact(artifacts, db.KindExtraction, &extraction); err != nil {
		return nil, err
	}
	if err := schemas.Validate(schemas.Distribution, artifacts[db.KindDistribution]); err != nil {
		return nil, fmt.Errorf("stored distribution is invalid: %w", err)
	}
	var dist types.RoleFitDistribution
	if err := decodeArtifact(artifacts, db.KindDistribution, &dist); err != nil {
		return nil, err
	}

	snap, err := m.deps.Registry.LoadGeneration(ctx, vectorindex.SessionScope(rec.ID), rec.CurrentGeneration)
	if err != nil {
		return nil, fmt.Errorf("failed to load index generation %d: %w", rec.CurrentGeneration, err)
	}

	// the stored distribution is what was served; scores and mode are rebuilt from the units
	result := scoring.Compute(extraction.Units)
	result.Distribution = dist

	return &State{
		ID:         rec.ID,
		Generation: rec.CurrentGeneration,
		Segments:   segments,
		Extraction: extraction,
		Scoring:    result,
		Clusters:   scoring.BuildClusterGroups(extraction.Units, dist, snap.Chunks()),
		Index:      snap,
		UpdatedAt:  rec.UpdatedAt,
	}, nil
}

func decodeArtifact(artifacts map[string][]byte, kind string, v any) error {
	data, ok := artifacts[kind]
	if !ok {
		return fmt.Errorf("missing %s artifact", kind)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s artifact: %w", kind, err)
	}
	return nil
}
