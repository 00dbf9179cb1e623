// Package chunking splits source text into overlapping fixed-size chunks with stable ids.
package chunking

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/career-fit/internal/types"
)

// Default window parameters, in characters
const (
	DefaultSize    = 800
	DefaultOverlap = 120
)

// Options configures chunk boundaries and metadata.
type Options struct {
	Size    int
	Overlap int
	Owner   string
	DocID   string
	Role    types.RoleID
	Level   string
}

// DefaultOptions returns the default window size and overlap.
func DefaultOptions() Options {
	return Options{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Validate checks that 0 < overlap < size.
func (o Options) Validate() error {
	if o.Size <= 0 {
		return &OptionsError{Field: "size", Message: "must be positive"}
	}
	if o.Overlap <= 0 {
		return &OptionsError{Field: "overlap", Message: "must be positive"}
	}
	if o.Overlap >= o.Size {
		return &OptionsError{Field: "overlap", Message: "must be smaller than size"}
	}
	return nil
}

// Chunk splits text into windows of opts.Size characters advancing by Size-Overlap.
// Windows are trimmed and blank windows are skipped. Empty text yields an empty list.
func Chunk(text string, source types.Source, opts Options) ([]types.Chunk, error) {
	return chunkAt(text, 0, source, opts)
}

// ChunkSegments chunks each segment on its own, at its offset in the joined text.
// Chunks of earlier segments are unaffected by segments appended later.
func ChunkSegments(segments []types.Segment, opts Options) ([]types.Chunk, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	chunks := []types.Chunk{}
	offset := 0
	sepLen := utf8.RuneCountInString(types.SegmentSeparator)
	for i, seg := range segments {
		if i > 0 {
			offset += sepLen
		}
		segChunks, err := chunkAt(seg.Text, offset, seg.Source, opts)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, segChunks...)
		offset += utf8.RuneCountInString(seg.Text)
	}
	return chunks, nil
}

func chunkAt(text string, base int, source types.Source, opts Options) ([]types.Chunk, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	chunks := []types.Chunk{}
	if text == "" {
		return chunks, nil
	}

	runes := []rune(text)
	n := len(runes)
	step := opts.Size - opts.Overlap

	for start := 0; start < n; start += step {
		end := start + opts.Size
		if end > n {
			end = n
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			position := base + start
			chunks = append(chunks, types.Chunk{
				ID:       ChunkID(opts.DocID, position, piece),
				Owner:    opts.Owner,
				Text:     piece,
				Source:   source,
				Position: position,
				DocID:    opts.DocID,
				Role:     opts.Role,
				Level:    opts.Level,
			})
		}

		if end == n {
			break
		}
	}

	return chunks, nil
}

// ChunkID derives a stable identifier from a chunk's document, position and content.
func ChunkID(docID string, position int, text string) string {
	h := sha256.New()
	h.Write([]byte(docID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(position)))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil)[:16])
}
