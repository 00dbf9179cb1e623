package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// DefaultHashingDimensions is the vector size of the hashing provider
const DefaultHashingDimensions = 512

// HashingProvider is a deterministic, offline embedder based on signed feature hashing of
// word unigrams and bigrams. It needs no network access, so runs without an API key stay
// reproducible.
type HashingProvider struct {
	dims int
}

// NewHashingProvider creates a hashing provider. dims <= 0 selects the default size.
func NewHashingProvider(dims int) *HashingProvider {
	if dims <= 0 {
		dims = DefaultHashingDimensions
	}
	return &HashingProvider{dims: dims}
}

// Embed hashes each text into a normalized vector
func (p *HashingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

// Dimensions returns the vector size
func (p *HashingProvider) Dimensions() int {
	return p.dims
}

// Name returns the provider name
func (p *HashingProvider) Name() string {
	return fmt.Sprintf("hashing/%d", p.dims)
}

func (p *HashingProvider) vector(text string) []float32 {
	v := make([]float32, p.dims)
	tokens := Tokenize(text)
	for i, tok := range tokens {
		p.add(v, tok, 1.0)
		if i > 0 {
			p.add(v, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return Normalize(v)
}

func (p *HashingProvider) add(v []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(p.dims))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[idx] += weight
}

// Tokenize lowercases text and splits it into word tokens, keeping symbols that matter in
// technical vocabulary (c++, c#, .net).
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#' && r != '.'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
