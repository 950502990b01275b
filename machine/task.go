package machine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"
)

// Kind names what a Task does.
type Kind string

const (
	KindCommand      Kind = "command"
	KindJob          Kind = "job"
	KindChoreography Kind = "choreography"
)

// Outcome is how a Task ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	Completed
	Cancelled
	TimedOut
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case TimedOut:
		return "timed out"
	case Failed:
		return "failed"
	}
	return "none"
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(data []byte) error {
	for _, v := range []Outcome{OutcomeNone, Completed, Cancelled, TimedOut, Failed} {
		if v.String() == string(data) {
			*o = v
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", data)
}

// Task is a handle on background work started by a Machine.
type Task struct {
	ID    string
	Kind  Kind
	Start time.Time

	cancel context.CancelFunc
	done   chan struct{}

	outcome Outcome
	err     error
}

func newTask(kind Kind) (*Task, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	return &Task{
		ID:     xid.New().String(),
		Kind:   kind,
		Start:  time.Now(),
		cancel: cancel,
		done:   make(chan struct{}),
	}, ctx
}

// Cancel asks the task to stop. It does not wait.
func (t *Task) Cancel() { t.cancel() }

// Done is closed once the task has ended.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task ends and returns how it ended.
func (t *Task) Wait() (Outcome, error) {
	<-t.done
	return t.outcome, t.err
}

// TaskRecord describes a finished task.
type TaskRecord struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	Outcome Outcome   `json:"outcome"`
	Err     string    `json:"error,omitempty"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// A Journal keeps finished tasks.
type Journal interface {
	Record(TaskRecord) error
}
