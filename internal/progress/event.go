package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageTaskDone   Stage = "TASK_DONE"
	StageTaskFailed Stage = "TASK_FAILED"
	StageRunDone    Stage = "RUN_DONE"
)

// Event captures one step of a crawl run.
type Event struct {
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Brand, Model and URL identify the task for task stages.
	Brand string
	Model string
	URL   string
	// Total is the task count, set on RUN_START.
	Total int
	// Raw is the number of listings extracted from the page.
	Raw      int
	Parts    int
	Rejected int
	Dur      time.Duration
	// Note carries the error text of a failed task or run.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageTaskDone, StageTaskFailed:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
