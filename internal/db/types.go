package db

import (
	"errors"
	"time"
)

// Artifact kinds stored per session generation
const (
	KindSegments     = "segments"
	KindExtraction   = "extraction"
	KindDistribution = "distribution"
)

// ErrStaleGeneration is returned when a commit does not advance the session's generation.
var ErrStaleGeneration = errors.New("generation is not newer than the committed one")

// SessionRecord is the committed state pointer of one session.
type SessionRecord struct {
	ID                string    `json:"id"`
	CurrentGeneration int64     `json:"current_generation"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Commit is one generation of session artifacts, written atomically with the generation flip.
type Commit struct {
	SessionID  string
	Generation int64
	// Artifacts maps an artifact kind to its JSON content
	Artifacts map[string][]byte
}
