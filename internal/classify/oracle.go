package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/career-fit/internal/llm"
	"github.com/jonathan/career-fit/internal/prompts"
	"github.com/jonathan/career-fit/internal/schemas"
	"github.com/jonathan/career-fit/internal/types"
)

const promptFile = "classify.json"

// OracleConfig controls how chunks are sent to the classification oracle.
type OracleConfig struct {
	// BatchSize is the number of chunks per extraction call
	BatchSize int
	// Concurrency bounds the number of extraction calls in flight
	Concurrency int
	// Timeout bounds each oracle call
	Timeout time.Duration
	// Tier is the model tier for first attempts; strict retries use TierStandard
	Tier llm.ModelTier
}

// DefaultOracleConfig returns the defaults used by the CLI.
func DefaultOracleConfig() OracleConfig {
	return OracleConfig{
		BatchSize:   12,
		Concurrency: 2,
		Timeout:     60 * time.Second,
		Tier:        llm.TierLite,
	}
}

func (c OracleConfig) withDefaults() OracleConfig {
	d := DefaultOracleConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Tier == "" {
		c.Tier = d.Tier
	}
	return c
}

// OracleExtractor extracts evidence units with an LLM.
type OracleExtractor struct {
	client llm.Client
	cfg    OracleConfig
	log    zerolog.Logger
}

// NewOracleExtractor creates an extractor backed by client.
func NewOracleExtractor(client llm.Client, cfg OracleConfig, log zerolog.Logger) *OracleExtractor {
	return &OracleExtractor{
		client: client,
		cfg:    cfg.withDefaults(),
		log:    log.With().Str("component", "classify").Logger(),
	}
}

// Name identifies the extractor in logs and artifacts.
func (e *OracleExtractor) Name() string {
	return "oracle"
}

type batchResult struct {
	units     []types.EvidenceUnit
	covered   []string
	schemaErr *ClassificationSchemaError
}

// Extract classifies chunks in batches. Batches whose responses stay invalid after the strict
// retry are left out of the result, and the extraction is flagged incomplete.
func (e *OracleExtractor) Extract(ctx context.Context, chunks []types.Chunk) (types.Extraction, error) {
	if len(chunks) == 0 {
		return types.Extraction{Units: []types.EvidenceUnit{}, CoveredChunkIDs: []string{}}, nil
	}

	var batches [][]types.Chunk
	for start := 0; start < len(chunks); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(chunks))
		batches = append(batches, chunks[start:end])
	}

	results := make([]batchResult, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			units, err := e.extractBatch(gctx, batch)
			var schemaErr *ClassificationSchemaError
			if errors.As(err, &schemaErr) {
				results[i] = batchResult{schemaErr: schemaErr}
				return nil
			}
			if err != nil {
				return err
			}
			ids := make([]string, len(batch))
			for j, c := range batch {
				ids[j] = c.ID
			}
			results[i] = batchResult{units: units, covered: ids}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.Extraction{}, fmt.Errorf("evidence extraction failed: %w", err)
	}

	out := types.Extraction{Units: []types.EvidenceUnit{}, CoveredChunkIDs: []string{}}
	failed := 0
	var firstErr *ClassificationSchemaError
	for _, r := range results {
		if r.schemaErr != nil {
			failed++
			if firstErr == nil {
				firstErr = r.schemaErr
			}
			continue
		}
		out.Units = append(out.Units, r.units...)
		out.CoveredChunkIDs = append(out.CoveredChunkIDs, r.covered...)
	}
	if failed > 0 {
		out.Incomplete = true
		out.IncompleteReason = fmt.Sprintf("%d of %d extraction batches failed validation: %s", failed, len(batches), firstErr.Message)
		e.log.Warn().Int("failed_batches", failed).Int("batches", len(batches)).Msg("extraction incomplete")
	}
	return out, nil
}

func (e *OracleExtractor) extractBatch(ctx context.Context, batch []types.Chunk) ([]types.EvidenceUnit, error) {
	allowed := make(map[string]bool, len(batch))
	for _, c := range batch {
		allowed[c.ID] = true
	}
	chunkText := formatChunks(batch)

	prompt, err := prompts.Render(promptFile, "extract-evidence", map[string]string{"Chunks": chunkText})
	if err != nil {
		return nil, err
	}
	raw, err := callOracle(ctx, e.client, prompt, e.cfg.Tier, e.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	units, verr := decodeUnits(raw, allowed)
	if verr == nil {
		return units, nil
	}

	e.log.Debug().Err(verr).Int("chunks", len(batch)).Msg("extraction response rejected, retrying with strict prompt")
	prompt, err = prompts.Render(promptFile, "extract-evidence-strict", map[string]string{
		"Errors": errorSummary(verr),
		"Chunks": chunkText,
	})
	if err != nil {
		return nil, err
	}
	raw, err = callOracle(ctx, e.client, prompt, llm.TierStandard, e.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	units, verr = decodeUnits(raw, allowed)
	if verr != nil {
		return nil, &ClassificationSchemaError{
			Operation: "classify_extract",
			Attempts:  2,
			Message:   "evidence units failed validation",
			Cause:     verr,
		}
	}
	return units, nil
}

type extractResponse struct {
	Units []struct {
		Text      string           `json:"text"`
		ChunkIDs  []string         `json:"chunk_ids"`
		Roles     []types.RoleTier `json:"roles"`
		Ownership types.Ownership  `json:"ownership"`
	} `json:"units"`
}

// decodeUnits validates and decodes an extraction response. Chunk ids outside the batch are
// a validation failure, not something to drop quietly.
func decodeUnits(raw string, allowed map[string]bool) ([]types.EvidenceUnit, error) {
	raw = llm.CleanJSONBlock(raw)
	if err := schemas.Validate(schemas.Evidence, []byte(raw)); err != nil {
		return nil, err
	}

	var resp extractResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, &schemas.ValidationError{Errors: []schemas.FieldError{{Field: "(root)", Message: err.Error()}}}
	}

	var fieldErrs []schemas.FieldError
	units := make([]types.EvidenceUnit, 0, len(resp.Units))
	for i, u := range resp.Units {
		for _, id := range u.ChunkIDs {
			if !allowed[id] {
				fieldErrs = append(fieldErrs, schemas.FieldError{
					Field:   fmt.Sprintf("units.%d.chunk_ids", i),
					Message: fmt.Sprintf("unknown chunk id %q", id),
				})
			}
		}
		unit := types.EvidenceUnit{
			Text:                strings.TrimSpace(u.Text),
			OriginatingChunkIDs: append([]string(nil), u.ChunkIDs...),
			RoleTiers:           u.Roles,
			Ownership:           u.Ownership,
		}
		if unit.RoleTiers == nil {
			unit.RoleTiers = []types.RoleTier{}
		}
		unit.NormalizeChunkIDs()
		if err := unit.Validate(); err != nil {
			fieldErrs = append(fieldErrs, schemas.FieldError{Field: fmt.Sprintf("units.%d", i), Message: err.Error()})
		}
		units = append(units, unit)
	}
	if len(fieldErrs) > 0 {
		return nil, &schemas.ValidationError{Errors: fieldErrs}
	}
	return units, nil
}

// OracleMatcher asks the LLM for per-cluster match fractions.
type OracleMatcher struct {
	client llm.Client
	cfg    OracleConfig
	log    zerolog.Logger
}

// NewOracleMatcher creates a matcher backed by client.
func NewOracleMatcher(client llm.Client, cfg OracleConfig, log zerolog.Logger) *OracleMatcher {
	return &OracleMatcher{
		client: client,
		cfg:    cfg.withDefaults(),
		log:    log.With().Str("component", "classify").Logger(),
	}
}

// Match returns the oracle's judgement, retrying once with the strict prompt. A response that
// is still invalid yields a *ClassificationSchemaError.
func (m *OracleMatcher) Match(ctx context.Context, clusters []types.ClusterGroup, jdChunks []types.Chunk) (*OracleMatch, error) {
	data := map[string]string{
		"Clusters": formatClusters(clusters),
		"JDChunks": formatChunks(jdChunks),
	}

	prompt, err := prompts.Render(promptFile, "match-clusters", data)
	if err != nil {
		return nil, err
	}
	raw, err := callOracle(ctx, m.client, prompt, llm.TierStandard, m.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	match, verr := decodeMatch(raw)
	if verr == nil {
		return match, nil
	}

	m.log.Debug().Err(verr).Msg("match response rejected, retrying with strict prompt")
	roles := make([]string, 0, len(clusters))
	for _, c := range clusters {
		roles = append(roles, string(c.Role))
	}
	data["Errors"] = errorSummary(verr)
	data["Roles"] = strings.Join(roles, ", ")
	prompt, err = prompts.Render(promptFile, "match-clusters-strict", data)
	if err != nil {
		return nil, err
	}
	raw, err = callOracle(ctx, m.client, prompt, llm.TierStandard, m.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	match, verr = decodeMatch(raw)
	if verr != nil {
		return nil, &ClassificationSchemaError{
			Operation: "classify_match",
			Attempts:  2,
			Message:   "cluster matches failed validation",
			Cause:     verr,
		}
	}
	return match, nil
}

func decodeMatch(raw string) (*OracleMatch, error) {
	raw = llm.CleanJSONBlock(raw)
	if err := schemas.Validate(schemas.Match, []byte(raw)); err != nil {
		return nil, err
	}
	var match OracleMatch
	if err := json.Unmarshal([]byte(raw), &match); err != nil {
		return nil, &schemas.ValidationError{Errors: []schemas.FieldError{{Field: "(root)", Message: err.Error()}}}
	}
	if match.PerCluster == nil {
		match.PerCluster = map[types.RoleID]*float64{}
	}
	return &match, nil
}

func callOracle(ctx context.Context, client llm.Client, prompt string, tier llm.ModelTier, timeout time.Duration) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := client.GenerateJSON(callCtx, prompt, tier)
	if err != nil {
		return "", fmt.Errorf("oracle call failed: %w", err)
	}
	return raw, nil
}

func formatChunks(chunks []types.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = fmt.Sprintf("[%s] %s", c.ID, c.Text)
	}
	return strings.Join(parts, "\n\n")
}

func formatClusters(clusters []types.ClusterGroup) string {
	var sb strings.Builder
	for _, c := range clusters {
		fmt.Fprintf(&sb, "## %s (%s), weight %.3f\n", c.Role, c.Label, c.Weight)
		if len(c.Items) == 0 {
			sb.WriteString("(no evidence)\n")
		}
		for _, item := range c.Items {
			fmt.Fprintf(&sb, "- %s\n", item.Text)
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

func errorSummary(err error) string {
	var ve *schemas.ValidationError
	if errors.As(err, &ve) {
		return ve.Summary()
	}
	return err.Error()
}
