package taskgraph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidTask = errors.New("invalid task")
	ErrCycle       = errors.New("requirement cycle detected")
)

// ActionFailedError reports an atomic task whose action ran but left its
// asset unready. Err is the action's own error, if it returned one.
type ActionFailedError struct {
	Task string
	Err  error
}

func (e *ActionFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("action failed for task %q: %v", e.Task, e.Err)
	}
	return fmt.Sprintf("action failed for task %q: asset not ready", e.Task)
}

func (e *ActionFailedError) Unwrap() error { return e.Err }

// ExternalError reports a missing external asset.
type ExternalError struct {
	Task string
	Ref  string
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("external asset missing for task %q: %s", e.Task, e.Ref)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTask, fmt.Sprintf(format, args...))
}

func cycleError(path []string) error {
	return fmt.Errorf("%w: %s", ErrCycle, strings.Join(path, " -> "))
}
