package machine

import (
	"context"
	"fmt"
	"log"
)

func (m *Machine) actuator() (Actuator, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	switch {
	case !m.sess.connected:
		return nil, ErrNotConnected
	case m.sess.actuator == LinkDown:
		return nil, ErrActuatorDown
	case m.sess.act == nil:
		return nil, ErrActuatorDegraded
	}
	return m.sess.act, nil
}

// ActuatorHeight sets the arm height angle.
func (m *Machine) ActuatorHeight(angle int) error {
	act, err := m.actuator()
	if err != nil {
		return err
	}
	if err = act.Height(angle); err != nil {
		return fmt.Errorf("%w: %w", ErrActuatorDown, err)
	}
	return nil
}

// ActuatorPush sets the arm push angle.
func (m *Machine) ActuatorPush(angle int) error {
	act, err := m.actuator()
	if err != nil {
		return err
	}
	if err = act.Push(angle); err != nil {
		return fmt.Errorf("%w: %w", ErrActuatorDown, err)
	}
	return nil
}

// MoveRelative switches the laser off, then jogs by dx, dy.
func (m *Machine) MoveRelative(dx, dy float64) (*Task, error) {
	if err := m.command("M5 S0"); err != nil {
		return nil, err
	}
	return m.SendCommand(jogLine(91, dx, dy, m.cfg.JogFeed))
}

// MoveAbsolute switches the laser off, then jogs to x, y at feed.
func (m *Machine) MoveAbsolute(x, y, feed float64) (*Task, error) {
	if err := m.command("M5 S0"); err != nil {
		return nil, err
	}
	return m.SendCommand(jogLine(90, x, y, feed))
}

// Reference lifts the arm and homes the machine.
func (m *Machine) Reference() (*Task, error) {
	if !m.Status().Connected {
		return nil, ErrNotConnected
	}
	if err := m.ActuatorHeight(HeightUp); err != nil {
		log.Println("ERROR: reference: lift arm:", err)
	}
	return m.SendCommand("$H")
}

// Pointer switches the low power pointer beam. It blocks the caller until
// nothing is running before sending the follow-up motion mode.
func (m *Machine) Pointer(ctx context.Context, on bool) error {
	cmd, follow := "M5 S0", "G0"
	if on {
		cmd, follow = "M3 S5", "G1 F1000"
	}
	if _, err := m.SendCommand(cmd); err != nil {
		return err
	}
	if err := m.WaitIdle(ctx); err != nil {
		return err
	}
	_, err := m.SendCommand(follow)
	return err
}

// SetFan switches the cooling fan.
func (m *Machine) SetFan(on bool) error { return m.cfg.Fan.SetFan(on) }
