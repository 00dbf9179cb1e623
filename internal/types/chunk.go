package types

// ScopeGlobalJD is the owner of chunks in the shared job description index.
const ScopeGlobalJD = "jd-global"

// Chunk is an immutable, embedded segment of source text.
type Chunk struct {
	ID        string    `json:"chunk_id"`
	Owner     string    `json:"owner"`
	Text      string    `json:"text"`
	Source    Source    `json:"source"`
	Position  int       `json:"position"`
	DocID     string    `json:"doc_id,omitempty"`
	Role      RoleID    `json:"role,omitempty"`
	Level     string    `json:"level,omitempty"`
	Embedding []float32 `json:"-"`
}

// ScoredChunk is a search hit.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Segment is one contiguous piece of a session's raw text.
type Segment struct {
	Source Source `json:"source"`
	Text   string `json:"text"`
}

// JoinSegments returns the raw text the segments were cut from.
func JoinSegments(segments []Segment) string {
	n := 0
	for i, s := range segments {
		if i > 0 {
			n += len(SegmentSeparator)
		}
		n += len(s.Text)
	}
	buf := make([]byte, 0, n)
	for i, s := range segments {
		if i > 0 {
			buf = append(buf, SegmentSeparator...)
		}
		buf = append(buf, s.Text...)
	}
	return string(buf)
}

// SegmentSeparator is placed between segments when they are concatenated.
const SegmentSeparator = "\n\n"

// EvidenceChunk is a chunk cited as evidence in a cluster or match view.
type EvidenceChunk struct {
	ChunkID string  `json:"chunk_id"`
	Text    string  `json:"text"`
	Source  Source  `json:"source"`
	Score   float64 `json:"score,omitempty"`
}

// JDItem is a job description entry in the global catalog.
type JDItem struct {
	ID    string `json:"id" validate:"required,min=1"`
	Title string `json:"title,omitempty"`
	Role  RoleID `json:"role,omitempty"`
	Level string `json:"level,omitempty" validate:"omitempty,oneof=entry junior mid senior any"`
	Text  string `json:"text" validate:"required"`
}
