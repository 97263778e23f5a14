package pipeline

import (
	"fmt"
	"time"
)

// Stage is one step of a run.
type Stage int

const (
	// StageSetup validates the run and opens the session.
	StageSetup Stage = iota
	// StageFetch reads the object and parses it into a dataset.
	StageFetch
	// StageTransform registers the source and runs the SQL steps.
	StageTransform
	// StagePersist commits the final dataset to the table.
	StagePersist
	// StageProfile summarises the persisted dataset.
	StageProfile
)

func (s Stage) String() string {
	switch s {
	case StageSetup:
		return "setup"
	case StageFetch:
		return "fetch"
	case StageTransform:
		return "transform"
	case StagePersist:
		return "persist"
	case StageProfile:
		return "profile"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// StageError wraps the error that aborted a run with the stage it
// happened in.
type StageError struct {
	Stage Stage
	// Step names the SQL step that failed during StageTransform.
	Step string
	Err  error
}

func (e *StageError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("%s stage, step %q: %v", e.Stage, e.Step, e.Err)
	}
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageTiming is how long a completed or failed stage took.
type StageTiming struct {
	Stage    Stage
	Duration time.Duration
}
