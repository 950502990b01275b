package machine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mastercactapus/lasercard/gcode"
	"github.com/mastercactapus/lasercard/machine/grbl"
)

// Actuator height angles.
const (
	HeightUp   = 230
	HeightDown = 255
)

// CardFeed is the feed rate of the card handling jogs.
const CardFeed = 10000

// Action is one kind of choreography step.
type Action int

const (
	SpindleOff Action = iota
	Height
	Push
	Jog
)

var actionNames = []string{"spindle-off", "height", "push", "jog"}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("Action(%d)", int(a))
	}
	return actionNames[a]
}

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Action) UnmarshalText(data []byte) error {
	for i, n := range actionNames {
		if n == string(data) {
			*a = Action(i)
			return nil
		}
	}
	return fmt.Errorf("unknown action %q", data)
}

// Step is one entry of a choreography: an action followed by a dwell.
type Step struct {
	Action Action `yaml:"action"`

	// Angle for Height and Push.
	Angle int `yaml:"angle,omitempty"`

	// X, Y and Feed of an absolute Jog.
	X    float64 `yaml:"x,omitempty"`
	Y    float64 `yaml:"y,omitempty"`
	Feed float64 `yaml:"feed,omitempty"`

	Dwell time.Duration `yaml:"dwell,omitempty"`
}

func jogTo(x, y float64, dwell time.Duration) Step {
	return Step{Action: Jog, X: x, Y: y, Feed: CardFeed, Dwell: dwell}
}

// CardInSteps moves a card from the magazine onto the bed.
var CardInSteps = []Step{
	{Action: SpindleOff},
	{Action: Height, Angle: HeightUp},
	{Action: Push, Angle: 0},
	jogTo(100, 385, 3*time.Second),
	{Action: Push, Angle: 270, Dwell: time.Second},
	{Action: Height, Angle: HeightDown, Dwell: 2 * time.Second},
	jogTo(100, 169, 3*time.Second),
	{Action: Height, Angle: HeightUp, Dwell: 2 * time.Second},
}

// CardOutSteps pushes an engraved card off the bed into the tray.
var CardOutSteps = []Step{
	{Action: SpindleOff},
	{Action: Height, Angle: HeightUp},
	jogTo(50, 142, 2*time.Second),
	{Action: Height, Angle: HeightDown + 1, Dwell: 2 * time.Second},
	jogTo(157, 142, 2*time.Second),
	{Action: Height, Angle: HeightUp, Dwell: time.Second},
	jogTo(201, 104, time.Second),
	{Action: Height, Angle: HeightDown + 1, Dwell: 2 * time.Second},
	jogTo(201, 384, 3*time.Second),
	{Action: Height, Angle: HeightUp},
	jogTo(201, 350, 0),
}

// jogLine builds a grbl jog command in absolute (90) or relative (91) mode.
func jogLine(mode float64, x, y, feed float64) string {
	return "$J=" + gcode.Block{
		{W: 'G', Arg: mode},
		{W: 'X', Arg: x},
		{W: 'Y', Arg: y},
		{W: 'F', Arg: feed},
	}.String()
}

// runSteps executes a choreography in order. Handshake timeouts and
// controller errors are logged and the sequence continues; an actuator
// failure ends it.
func runSteps(ctx context.Context, conn Adapter, act Actuator, steps []Step) (Outcome, error) {
	for i, st := range steps {
		if err := ctx.Err(); err != nil {
			return Cancelled, err
		}

		var err error
		switch st.Action {
		case SpindleOff:
			_, err = conn.Send(ctx, "M5 S0")
		case Jog:
			_, err = conn.Send(ctx, jogLine(90, st.X, st.Y, st.Feed))
		case Height, Push:
			if act == nil {
				return Failed, fmt.Errorf("step %d: %w", i, ErrActuatorDegraded)
			}
			if st.Action == Height {
				err = act.Height(st.Angle)
			} else {
				err = act.Push(st.Angle)
			}
			if err != nil {
				return Failed, fmt.Errorf("step %d %s: %w: %w", i, st.Action, ErrActuatorDown, err)
			}
		default:
			return Failed, fmt.Errorf("step %d: unknown action %d", i, st.Action)
		}
		switch {
		case errors.Is(err, context.Canceled):
			return Cancelled, err
		case errors.Is(err, grbl.ErrHandshakeTimeout), errors.Is(err, grbl.ErrProtocol):
			log.Printf("ERROR: step %d %s: %v", i, st.Action, err)
		case err != nil:
			return Failed, fmt.Errorf("step %d %s: %w", i, st.Action, err)
		}

		if st.Dwell <= 0 {
			continue
		}
		t := time.NewTimer(st.Dwell)
		select {
		case <-ctx.Done():
			t.Stop()
			return Cancelled, ctx.Err()
		case <-t.C:
		}
	}
	return Completed, nil
}

func (m *Machine) choreography(steps []Step) (*Task, error) {
	return m.start(KindChoreography, true, func(s *session) error {
		if s.actuator == LinkDown {
			return ErrActuatorDown
		}
		return nil
	}, func(ctx context.Context, conn Adapter, act Actuator) (Outcome, error) {
		return runSteps(ctx, conn, act, steps)
	})
}

// CardIn feeds a card onto the bed in the background.
func (m *Machine) CardIn() (*Task, error) { return m.choreography(m.cfg.CardIn) }

// CardOut removes the card from the bed in the background.
func (m *Machine) CardOut() (*Task, error) { return m.choreography(m.cfg.CardOut) }
