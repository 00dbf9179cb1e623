// Package steps provides step definitions and dependency validation for the upload pipeline.
package steps

import (
	"fmt"

	"github.com/jonathan/career-fit/internal/types"
)

// Step names
const (
	StepParse        = "parse"
	StepChunk        = "chunk"
	StepEmbed        = "embed"
	StepExtract      = "extract"
	StepStageIndex   = "stage_index"
	StepScore        = "score"
	StepBuildCluster = "build_clusters"
)

// StepDefinition defines metadata for a pipeline step
type StepDefinition struct {
	Name string
	// Stage is the upload stage reported while the step runs
	Stage        types.Stage
	Dependencies []string
}

// StepRegistry holds all step definitions
var StepRegistry = map[string]StepDefinition{
	StepParse: {
		Name:         StepParse,
		Stage:        types.StageParsing,
		Dependencies: []string{},
	},
	StepChunk: {
		Name:         StepChunk,
		Stage:        types.StageChunking,
		Dependencies: []string{StepParse},
	},
	StepEmbed: {
		Name:         StepEmbed,
		Stage:        types.StageEmbedding,
		Dependencies: []string{StepChunk},
	},
	StepExtract: {
		Name:         StepExtract,
		Stage:        types.StageEmbedding,
		Dependencies: []string{StepChunk},
	},
	StepStageIndex: {
		Name:         StepStageIndex,
		Stage:        types.StageIndexing,
		Dependencies: []string{StepEmbed},
	},
	StepScore: {
		Name:         StepScore,
		Stage:        types.StageIndexing,
		Dependencies: []string{StepExtract},
	},
	StepBuildCluster: {
		Name:         StepBuildCluster,
		Stage:        types.StageIndexing,
		Dependencies: []string{StepScore, StepStageIndex},
	},
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Step                string
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("step %s: missing dependencies: %v", e.Step, e.MissingDependencies)
}

// Get returns the definition of a step
func Get(stepName string) (StepDefinition, error) {
	def, ok := StepRegistry[stepName]
	if !ok {
		return StepDefinition{}, fmt.Errorf("unknown step: %s", stepName)
	}
	return def, nil
}

// ValidateDependencies checks that every dependency of a step is in completed
func ValidateDependencies(completed map[string]bool, stepName string) error {
	def, err := Get(stepName)
	if err != nil {
		return err
	}

	var missing []string
	for _, dep := range def.Dependencies {
		if !completed[dep] {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return &DependencyError{
			Step:                stepName,
			MissingDependencies: missing,
		}
	}
	return nil
}

// Tracker records completed steps of one run and enforces dependency order
type Tracker struct {
	completed map[string]bool
}

// NewTracker returns a tracker with no completed steps
func NewTracker() *Tracker {
	return &Tracker{completed: make(map[string]bool)}
}

// Begin checks that stepName may run now
func (t *Tracker) Begin(stepName string) (StepDefinition, error) {
	def, err := Get(stepName)
	if err != nil {
		return def, err
	}
	if err := ValidateDependencies(t.completed, stepName); err != nil {
		return def, err
	}
	return def, nil
}

// Complete marks stepName done
func (t *Tracker) Complete(stepName string) {
	t.completed[stepName] = true
}
