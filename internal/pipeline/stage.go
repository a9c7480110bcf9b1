package pipeline

import (
	"errors"
	"fmt"
)

// Stage is a step of one request's state machine. A request moves strictly
// forward from Idle to Done, or to Failed from any stage.
type Stage int

const (
	StageIdle Stage = iota
	StageLoading
	StagePreprocessing
	StageClassifying
	StageExplaining
	StageRendering
	StageDone
	StageFailed
)

var stageNames = [...]string{
	StageIdle:          "idle",
	StageLoading:       "loading",
	StagePreprocessing: "preprocessing",
	StageClassifying:   "classifying",
	StageExplaining:    "explaining",
	StageRendering:     "rendering",
	StageDone:          "done",
	StageFailed:        "error",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// StageError reports the stage a request failed in. The underlying error
// keeps its kind, so errors.Is(err, apperr.ErrDecode) and similar checks work
// through it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage recorded in err, or StageIdle and false when
// err does not come from a pipeline request.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return StageIdle, false
}
