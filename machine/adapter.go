package machine

import (
	"context"
	"time"

	"github.com/mastercactapus/lasercard/machine/grbl"
)

// An Adapter is the controller link a Machine streams lines to.
// *grbl.Conn implements it.
type Adapter interface {
	Send(ctx context.Context, line string) (int, error)
	PollStatus(ctx context.Context, every time.Duration)
	State() grbl.State
	Close() error
}

// An Actuator moves the card handling arm. *actuator.Link implements it.
type Actuator interface {
	Height(angle int) error
	Push(angle int) error
	Close() error

	// Up reports whether the connection is currently established.
	Up() bool
}

// A Fan switches the cooling fan.
type Fan interface {
	SetFan(on bool) error
}

var _ Adapter = &grbl.Conn{}
