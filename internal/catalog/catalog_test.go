package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/career-fit/internal/chunking"
	"github.com/jonathan/career-fit/internal/embedding"
	"github.com/jonathan/career-fit/internal/types"
	"github.com/jonathan/career-fit/internal/vectorindex"
)

func newTestCatalog(t *testing.T) (*Catalog, *vectorindex.Registry) {
	t.Helper()
	reg := vectorindex.NewRegistry(nil, zerolog.Nop())
	opts := chunking.Options{Size: 200, Overlap: 40}
	return New(reg, embedding.NewHashingProvider(256), opts, zerolog.Nop()), reg
}

var testItems = []types.JDItem{
	{ID: "mle-1", Title: "ML Engineer", Role: types.RoleMLE, Level: "senior", Text: "Train, evaluate and deploy deep learning models with PyTorch. Own model serving and feature pipelines."},
	{ID: "swe-1", Title: "Backend Engineer", Role: types.RoleSWE, Level: "mid", Text: "Design and build distributed backend services in Go. Operate Kubernetes clusters and REST APIs."},
	{ID: "qr-1", Title: "Quant Researcher", Role: types.RoleQR, Level: "senior", Text: "Research alpha signals from market data using time series statistics and stochastic calculus."},
}

func TestCatalog_IngestAndSearch(t *testing.T) {
	c, reg := newTestCatalog(t)
	ctx := context.Background()

	res, err := c.Ingest(ctx, testItems, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Documents)
	assert.Greater(t, res.Chunks, 0)
	assert.Equal(t, res.Chunks, res.Total)
	assert.Equal(t, res.Total, reg.Current(types.ScopeGlobalJD).Len())

	hits, err := c.Search(ctx, "deploy deep learning models with pytorch", "", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "mle-1", hits[0].Chunk.DocID)
	assert.Equal(t, types.SourceJD, hits[0].Chunk.Source)

	hits, err = c.Search(ctx, "deploy deep learning models with pytorch", types.RoleSWE, 3)
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, types.RoleSWE, h.Chunk.Role)
	}

	assert.Equal(t, []string{"mle-1", "qr-1", "swe-1"}, c.Documents())
}

func TestCatalog_ReingestIsIdempotent(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	first, err := c.Ingest(ctx, testItems, false)
	require.NoError(t, err)
	second, err := c.Ingest(ctx, testItems, false)
	require.NoError(t, err)
	assert.Equal(t, first.Total, second.Total)
}

func TestCatalog_ReplaceDocument(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	_, err := c.Ingest(ctx, testItems, false)
	require.NoError(t, err)

	updated := []types.JDItem{{ID: "swe-1", Role: types.RoleSWE, Text: "Maintain frontend applications in TypeScript."}}
	_, err = c.Ingest(ctx, updated, true)
	require.NoError(t, err)

	doc, err := c.Document("swe-1")
	require.NoError(t, err)
	require.Equal(t, 1, doc.Len())
	assert.Contains(t, doc.Chunks()[0].Text, "TypeScript")

	// other documents untouched
	_, err = c.Document("mle-1")
	assert.NoError(t, err)
}

func TestCatalog_RejectsInvalidItems(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	_, err := c.Ingest(ctx, []types.JDItem{{ID: "x"}}, false)
	assert.Error(t, err)

	_, err = c.Ingest(ctx, []types.JDItem{{ID: "x", Text: "a"}, {ID: "x", Text: "b"}}, false)
	assert.Error(t, err)

	_, err = c.Ingest(ctx, []types.JDItem{{ID: "x", Level: "principal", Text: "a"}}, false)
	assert.Error(t, err)
}

func TestCatalog_DocumentNotFound(t *testing.T) {
	c, _ := newTestCatalog(t)
	_, err := c.Document("nope")
	var nf *DocumentNotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestLoadItems(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "curated.json"), []byte(`[
		{"id": "mle-1", "title": "ML Engineer", "role": "MLE", "level": "senior", "text": "Ship models."}
	]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quant-dev.txt"), []byte("Build C++ execution systems.\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.csv"), []byte("ignored"), 0o644))

	items, err := LoadItems(dir)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "mle-1", items[0].ID)
	assert.Equal(t, types.RoleMLE, items[0].Role)
	assert.Equal(t, "quant-dev", items[1].ID)
	assert.Equal(t, "Build C++ execution systems.", items[1].Text)
}

func TestLoadItems_SchemaFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id": "a", "role": "CEO", "text": "x"}]`), 0o644))

	_, err := LoadItems(path)
	assert.Error(t, err)
}
