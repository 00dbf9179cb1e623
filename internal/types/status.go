package types

import (
	"fmt"
	"time"
)

// Stage is a step of the upload processing state machine.
type Stage string

// Upload stages, in order
const (
	StageUploading Stage = "uploading"
	StageParsing   Stage = "parsing"
	StageChunking  Stage = "chunking"
	StageEmbedding Stage = "embedding"
	StageIndexing  Stage = "indexing"
	StageReady     Stage = "ready"
	StageError     Stage = "error"
)

var stageOrder = map[Stage]int{
	StageUploading: 0,
	StageParsing:   1,
	StageChunking:  2,
	StageEmbedding: 3,
	StageIndexing:  4,
	StageReady:     5,
}

// Terminal reports whether no further transitions are allowed from s.
func (s Stage) Terminal() bool {
	return s == StageReady || s == StageError
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok || s == StageError
}

// CanTransition reports whether moving from one stage to another goes forward.
// Error is reachable from every non-terminal stage; stages may not be revisited.
func CanTransition(from, to Stage) bool {
	if from.Terminal() {
		return false
	}
	if to == StageError {
		return true
	}
	fi, ok1 := stageOrder[from]
	ti, ok2 := stageOrder[to]
	return ok1 && ok2 && ti > fi
}

// UploadStatus is the polled state of one upload or materials-addition run.
type UploadStatus struct {
	UploadID  string    `json:"upload_id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Stage     Stage     `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TransitionError reports an attempt to move an upload backwards or out of a terminal stage.
type TransitionError struct {
	UploadID string
	From     Stage
	To       Stage
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("upload %s: invalid transition %s -> %s", e.UploadID, e.From, e.To)
}
