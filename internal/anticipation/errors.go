package anticipation

import (
	"errors"
	"fmt"
)

var (
	// ErrTickOverrun is logged when a tick takes longer than its budget. The tick still completes.
	ErrTickOverrun = errors.New("tick overrun")

	// ErrTickInProgress is returned when a tick is requested while another one runs
	ErrTickInProgress = errors.New("tick already in progress")

	// ErrAlreadyRunning is returned by Start when the tick loop is running
	ErrAlreadyRunning = errors.New("orchestrator already running")

	// ErrInvalidAction is returned for suggestion responses other than accept, reject or dismiss
	ErrInvalidAction = errors.New("invalid suggestion action")
)

// StageError names the tick stage that failed
type StageError struct {
	Component string
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Component, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
