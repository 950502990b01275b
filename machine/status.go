package machine

import "github.com/mastercactapus/lasercard/machine/grbl"

// LinkState is the state of the actuator link.
type LinkState int

const (
	LinkDown LinkState = iota
	LinkUp

	// LinkDegraded means the actuator could not be reached at connect time.
	// It is still reported as linked.
	LinkDegraded

	// LinkReconnecting means a linked actuator dropped its connection and is
	// redialing in the background.
	LinkReconnecting
)

func (s LinkState) String() string {
	switch s {
	case LinkUp:
		return "up"
	case LinkDegraded:
		return "degraded"
	case LinkReconnecting:
		return "reconnecting"
	}
	return "down"
}

func (s LinkState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Linked reports whether the link counts as connected.
func (s LinkState) Linked() bool { return s == LinkUp || s == LinkDegraded }

// Status is an immutable snapshot of the device session.
type Status struct {
	Connected bool
	Actuator  LinkState

	// Running is true while a job or choreography runs or any command is
	// waiting for acknowledgement.
	Running bool

	// Progress of the current or last job, 0 to 100 with two decimals.
	Progress float64

	TaskID      string
	TaskKind    Kind
	LastOutcome Outcome

	Controller grbl.State

	link Actuator
}

// live folds the actuator's current connection into the snapshot.
func (st Status) live() Status {
	if st.Actuator == LinkUp && st.link != nil && !st.link.Up() {
		st.Actuator = LinkReconnecting
	}
	st.link = nil
	return st
}

// session is the mutable state behind Status. It is only touched through
// Machine.mutate.
type session struct {
	conn Adapter
	act  Actuator

	connected bool
	actuator  LinkState

	task     *Task
	commands map[*Task]struct{}
	progress float64
	last     Outcome

	controller grbl.State
}

func (s *session) running() bool { return s.task != nil || len(s.commands) > 0 }

func (s *session) status() Status {
	st := Status{
		Connected:   s.connected,
		Actuator:    s.actuator,
		Running:     s.running(),
		Progress:    s.progress,
		LastOutcome: s.last,
		Controller:  s.controller,
		link:        s.act,
	}
	if s.task != nil {
		st.TaskID = s.task.ID
		st.TaskKind = s.task.Kind
	}
	return st
}
