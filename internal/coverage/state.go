package coverage

import "fmt"

// Stage is a step of an instrumentation run.
type Stage string

const (
	StageIdle          Stage = "idle"
	StageValidating    Stage = "validating"
	StageResolving     Stage = "resolving"
	StageInstrumenting Stage = "instrumenting"
	StageWriting       Stage = "writing"
	StageDone          Stage = "done"
)

// validTransitions maps from-stage to allowed to-stages. Every working
// stage may jump to Done on failure.
var validTransitions = map[Stage]map[Stage]bool{
	StageIdle: {
		StageValidating: true,
	},
	StageValidating: {
		StageResolving: true,
		StageDone:      true,
	},
	StageResolving: {
		StageInstrumenting: true,
		StageDone:          true,
	},
	StageInstrumenting: {
		StageWriting: true,
		StageDone:    true,
	},
	StageWriting: {
		StageDone: true,
	},
	StageDone: {},
}

// ValidateTransition checks if a stage transition is valid
func ValidateTransition(from, to Stage) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source stage: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal returns true if no transitions leave stage.
func IsTerminal(stage Stage) bool {
	return stage == StageDone
}
