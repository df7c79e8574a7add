// Package engine runs untrusted code jobs in disposable container
// sandboxes and streams their output back to a consumer in real time.
package engine

import (
	"context"
	"errors"

	"github.com/svenviktorjonsson/tesseracs-chat-sub000/internal/runtime"
)

// Sentinel exit codes for jobs that did not finish on their own.
const (
	// ExitTimeout is reported when a job exceeds its wall-clock limit.
	ExitTimeout = 124
	// ExitFailure is reported for internal errors and stopped jobs.
	ExitFailure = -1
)

const timeoutMessage = "Execution timed out."
const stoppedMessage = "Execution stopped."

// ErrJobActive is returned when a submitted job id is already running.
var ErrJobActive = errors.New("job id already active")

// Job is one request to execute a body of source code. It is immutable
// once launched.
type Job struct {
	ID           string
	ClientID     string
	Language     string
	Files        map[string]string // relative path -> content
	EntryCommand string
}

// EventSink receives the per-job event stream. Implementations are called
// from the job's own goroutine: Output events arrive in decode order, and
// Finished is delivered exactly once per job, on every termination path.
type EventSink interface {
	Output(stream runtime.Stream, text string)
	AwaitingInput()
	Finished(exitCode int, errMessage string, artifact []byte)
}

// Runtime is the slice of the container runtime client the engine uses.
type Runtime interface {
	Create(ctx context.Context, spec runtime.CreateSpec) (string, error)
	Attach(ctx context.Context, containerID string) (runtime.AttachStream, error)
	Start(ctx context.Context, containerID string) error
	Kill(ctx context.Context, containerID string) error
	Remove(ctx context.Context, containerID string) error
	Reload(ctx context.Context, containerID string) (runtime.Status, error)
}
