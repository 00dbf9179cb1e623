package classify

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/jonathan/career-fit/internal/types"
)

type keyword struct {
	phrase string
	weight int
}

// Keyword lexicon per role. Strong terms weigh 2, general terms 1.
var lexicon = map[types.RoleID][]keyword{
	types.RoleMLE: {
		{"pytorch", 2}, {"tensorflow", 2}, {"mlops", 2}, {"model serving", 2}, {"feature store", 2},
		{"inference", 2}, {"fine-tuning", 2}, {"fine-tuned", 2}, {"llm", 2}, {"deep learning", 2},
		{"training pipeline", 2}, {"mlflow", 2}, {"kubeflow", 2}, {"recommendation system", 2},
		{"machine learning", 1}, {"neural network", 1}, {"embeddings", 1}, {"gpu", 1}, {"models", 1},
	},
	types.RoleDS: {
		{"a/b test", 2}, {"a/b testing", 2}, {"experimentation", 2}, {"statistical analysis", 2},
		{"causal inference", 2}, {"hypothesis testing", 2}, {"regression", 2}, {"tableau", 2},
		{"dashboards", 2}, {"forecasting", 2}, {"churn", 2}, {"business insights", 2},
		{"sql", 1}, {"pandas", 1}, {"analytics", 1}, {"analysis", 1}, {"metrics", 1}, {"stakeholders", 1},
	},
	types.RoleSWE: {
		{"microservices", 2}, {"rest api", 2}, {"apis", 2}, {"backend", 2}, {"frontend", 2},
		{"distributed systems", 2}, {"kubernetes", 2}, {"ci/cd", 2}, {"golang", 2}, {"java", 2},
		{"typescript", 2}, {"react", 2}, {"grpc", 2}, {"postgresql", 2}, {"docker", 2},
		{"software", 1}, {"services", 1}, {"database", 1}, {"deployed", 1}, {"scalable", 1}, {"code review", 1},
	},
	types.RoleQR: {
		{"alpha", 2}, {"signals", 2}, {"factor model", 2}, {"factor models", 2}, {"stochastic", 2},
		{"derivatives pricing", 2}, {"option pricing", 2}, {"time series", 2}, {"portfolio optimization", 2},
		{"volatility", 2}, {"econometrics", 2}, {"statistical arbitrage", 2},
		{"quantitative research", 1}, {"quantitative", 1}, {"backtesting", 1}, {"markets", 1}, {"risk models", 1},
	},
	types.RoleQD: {
		{"low-latency", 2}, {"low latency", 2}, {"trading systems", 2}, {"trading system", 2},
		{"order book", 2}, {"execution", 2}, {"c++", 2}, {"market data", 2}, {"fpga", 2}, {"kdb", 2},
		{"high-frequency", 2}, {"order management", 2},
		{"trading", 1}, {"exchange", 1}, {"latency", 1}, {"backtester", 1}, {"pricing library", 1},
	},
}

// normalizedLexicon holds lexicon phrases in matchable form, computed once
var normalizedLexicon = func() map[types.RoleID][]keyword {
	out := make(map[types.RoleID][]keyword, len(lexicon))
	for role, kws := range lexicon {
		for _, kw := range kws {
			out[role] = append(out[role], keyword{phrase: normalizeForMatch(kw.phrase), weight: kw.weight})
		}
	}
	return out
}()

// Keywords returns the lexicon phrases for role, strongest first.
func Keywords(role types.RoleID) []string {
	kws := lexicon[role]
	out := make([]string, 0, len(kws))
	for _, w := range []int{2, 1} {
		for _, kw := range kws {
			if kw.weight == w {
				out = append(out, kw.phrase)
			}
		}
	}
	return out
}

// Section headings that change the ownership of the lines below them
var headingOwnership = []struct {
	word      string
	ownership types.Ownership
}{
	{"coursework", types.OwnershipCoursework},
	{"courses", types.OwnershipCoursework},
	{"education", types.OwnershipCoursework},
	{"projects", types.OwnershipAddOn},
	{"project", types.OwnershipAddOn},
	{"certifications", types.OwnershipAddOn},
	{"volunteer", types.OwnershipAddOn},
	{"previous", types.OwnershipEarlierCareer},
	{"earlier", types.OwnershipEarlierCareer},
	{"additional", types.OwnershipParallel},
	{"concurrent", types.OwnershipParallel},
	{"experience", types.OwnershipPrimary},
	{"employment", types.OwnershipPrimary},
}

// minUnitWords is the shortest line treated as an evidence statement
const minUnitWords = 4

// HeuristicExtractor classifies lines by keyword lexicon. It needs no network and is
// deterministic, so it backs offline runs and tests.
type HeuristicExtractor struct{}

// NewHeuristicExtractor creates a keyword extractor.
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

// Name identifies the extractor in logs and artifacts.
func (h *HeuristicExtractor) Name() string {
	return "heuristic"
}

// Extract tags each sufficiently long line with every role whose lexicon it hits. A line seen
// in several overlapping chunks becomes one unit citing all of them.
func (h *HeuristicExtractor) Extract(ctx context.Context, chunks []types.Chunk) (types.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return types.Extraction{}, err
	}

	ordered := append([]types.Chunk(nil), chunks...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].DocID != ordered[j].DocID {
			return ordered[i].DocID < ordered[j].DocID
		}
		return ordered[i].Position < ordered[j].Position
	})

	var units []types.EvidenceUnit
	index := make(map[string]int)
	covered := make([]string, 0, len(ordered))

	var section types.Ownership
	lastSource := types.Source("")
	for _, c := range ordered {
		covered = append(covered, c.ID)
		if c.Source != lastSource {
			section = defaultOwnership(c.Source)
			lastSource = c.Source
		}

		for _, line := range strings.Split(c.Text, "\n") {
			line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•·"))
			if line == "" {
				continue
			}
			if o, ok := headingSection(line); ok {
				section = o
				continue
			}
			if len(strings.Fields(line)) < minUnitWords {
				continue
			}

			tags := TagText(line)
			if len(tags) == 0 {
				continue
			}

			key := normalizeForMatch(line)
			if i, ok := index[key]; ok {
				units[i].OriginatingChunkIDs = append(units[i].OriginatingChunkIDs, c.ID)
				continue
			}
			index[key] = len(units)
			units = append(units, types.EvidenceUnit{
				Text:                line,
				OriginatingChunkIDs: []string{c.ID},
				RoleTiers:           tags,
				Ownership:           section,
			})
		}
	}

	for i := range units {
		units[i].NormalizeChunkIDs()
	}
	if units == nil {
		units = []types.EvidenceUnit{}
	}
	return types.Extraction{Units: units, CoveredChunkIDs: covered}, nil
}

// TagText scores text against every role lexicon and returns the tiered tags in canonical role order.
// Keyword weight 4 or more is tier 1, 2-3 is tier 2, 1 is tier 3.
func TagText(text string) []types.RoleTier {
	norm := normalizeForMatch(text)
	var tags []types.RoleTier
	for _, role := range types.AllRoles() {
		score := 0
		for _, kw := range normalizedLexicon[role] {
			if strings.Contains(norm, kw.phrase) {
				score += kw.weight
			}
		}
		var tier types.Tier
		switch {
		case score >= 4:
			tier = types.Tier1
		case score >= 2:
			tier = types.Tier2
		case score >= 1:
			tier = types.Tier3
		default:
			continue
		}
		tags = append(tags, types.RoleTier{Role: role, Tier: tier})
	}
	return tags
}

func defaultOwnership(source types.Source) types.Ownership {
	if source == types.SourceAddOn {
		return types.OwnershipAddOn
	}
	return types.OwnershipPrimary
}

// headingSection reports whether line is a section heading naming an ownership category.
func headingSection(line string) (types.Ownership, bool) {
	line = strings.TrimLeft(line, "# ")
	line = strings.TrimRight(line, ": ")
	words := strings.Fields(strings.ToLower(line))
	if len(words) == 0 || len(words) > 4 {
		return "", false
	}
	for _, w := range words {
		for _, h := range headingOwnership {
			if w == h.word {
				return h.ownership, true
			}
		}
	}
	return "", false
}

// normalizeForMatch lowercases text and maps separators to single spaces, padded on both
// sides so phrases match on word boundaries.
func normalizeForMatch(text string) string {
	var sb strings.Builder
	sb.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' {
			sb.WriteRune(r)
			space = false
			continue
		}
		if !space {
			sb.WriteByte(' ')
			space = true
		}
	}
	if !space {
		sb.WriteByte(' ')
	}
	return sb.String()
}
