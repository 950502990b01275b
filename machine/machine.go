// Package machine controls the laser engraver: the serial controller link,
// the card handling arm and the cooling fan.
package machine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mastercactapus/lasercard/machine/grbl"
	"github.com/mastercactapus/lasercard/programs"
)

var (
	// ErrNotConnected is returned while the serial link is down.
	ErrNotConnected = errors.New("machine: not connected")

	// ErrAlreadyRunning is returned when a job or choreography is requested
	// while another one (or a command) is running.
	ErrAlreadyRunning = errors.New("machine: already running")

	// ErrActuatorDown is returned when the actuator link is down.
	ErrActuatorDown = errors.New("machine: actuator down")

	// ErrActuatorDegraded is returned when the actuator link failed at
	// connect time and is only reported as linked.
	ErrActuatorDegraded = errors.New("machine: actuator degraded")
)

const (
	DefaultCoolDown = 5 * time.Second
	DefaultJogFeed  = 5000
)

// Config configures a Machine. Zero values select the defaults.
type Config struct {
	// Open opens the serial link to the controller.
	Open func() (io.ReadWriteCloser, error)

	// DialActuator connects to the card handling arm. Nil disables the arm.
	DialActuator func(ctx context.Context) (Actuator, error)

	Fan      Fan
	Programs *programs.Dir

	// Journal, if set, records every finished task.
	Journal Journal

	AckDeadline time.Duration
	MaxAcks     int

	// CoolDown is waited after a job before the fan is switched off.
	CoolDown time.Duration

	// JogFeed is the feed rate of relative moves.
	JogFeed float64

	// StatusPoll is the interval of controller status reports. Zero
	// disables polling.
	StatusPoll time.Duration

	CardIn  []Step
	CardOut []Step
}

// Machine is the device session. One Machine drives one controller.
type Machine struct {
	cfg Config

	cMx sync.Mutex

	mx      sync.Mutex
	sess    session
	changed chan struct{}
	stop    context.CancelFunc

	status atomic.Pointer[Status]
}

// New returns a disconnected Machine.
func New(cfg Config) *Machine {
	if cfg.Fan == nil {
		cfg.Fan = NopFan{}
	}
	if cfg.Programs == nil {
		cfg.Programs = programs.NewDir(".")
	}
	if cfg.CoolDown == 0 {
		cfg.CoolDown = DefaultCoolDown
	}
	if cfg.JogFeed == 0 {
		cfg.JogFeed = DefaultJogFeed
	}
	if cfg.CardIn == nil {
		cfg.CardIn = CardInSteps
	}
	if cfg.CardOut == nil {
		cfg.CardOut = CardOutSteps
	}

	m := &Machine{
		cfg:     cfg,
		sess:    session{commands: make(map[*Task]struct{})},
		changed: make(chan struct{}),
	}
	m.status.Store(&Status{})
	return m
}

// Status returns the last published snapshot.
func (m *Machine) Status() Status { return m.status.Load().live() }

// mutate is the only writer of the session. Every call publishes a new
// snapshot and wakes WaitIdle.
func (m *Machine) mutate(fn func(s *session)) {
	m.mx.Lock()
	defer m.mx.Unlock()
	fn(&m.sess)
	st := m.sess.status()
	m.status.Store(&st)
	close(m.changed)
	m.changed = make(chan struct{})
}

// WaitIdle blocks until nothing is running.
func (m *Machine) WaitIdle(ctx context.Context) error {
	for {
		m.mx.Lock()
		running := m.sess.running()
		ch := m.changed
		m.mx.Unlock()
		if !running {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Connect opens the serial link and, independently, the actuator link.
//
// A serial failure is returned wrapping ErrNotConnected. An actuator failure
// leaves the link LinkDegraded and is returned wrapping ErrActuatorDegraded.
// Both may be joined in one error.
func (m *Machine) Connect(ctx context.Context) error {
	m.cMx.Lock()
	defer m.cMx.Unlock()

	var errs []error
	// a reconnecting link redials itself
	st := *m.status.Load()
	if !st.Connected {
		if err := m.connectSerial(); err != nil {
			log.Println("ERROR: connect:", err)
			errs = append(errs, fmt.Errorf("%w: %w", ErrNotConnected, err))
		}
	}

	if st.Actuator != LinkUp && m.cfg.DialActuator != nil {
		act, err := m.cfg.DialActuator(ctx)
		if err != nil {
			log.Println("ERROR: connect actuator:", err)
			errs = append(errs, fmt.Errorf("%w: %w", ErrActuatorDegraded, err))
			m.mutate(func(s *session) { s.actuator = LinkDegraded })
		} else {
			m.mutate(func(s *session) {
				s.act = act
				s.actuator = LinkUp
			})
		}
	}

	return errors.Join(errs...)
}

func (m *Machine) connectSerial() error {
	if m.cfg.Open == nil {
		return errors.New("no serial port configured")
	}
	rw, err := m.cfg.Open()
	if err != nil {
		return err
	}
	conn := grbl.NewConn(rw)
	conn.AckDeadline = m.cfg.AckDeadline
	conn.MaxAcks = m.cfg.MaxAcks

	ctx, cancel := context.WithCancel(context.Background())
	m.mutate(func(s *session) {
		s.conn = conn
		s.connected = true
		m.stop = cancel
	})
	log.Println("Connected.")

	if m.cfg.StatusPoll > 0 {
		go conn.PollStatus(ctx, m.cfg.StatusPoll)
		go m.watchController(ctx, conn)
	}

	m.setFan(false)
	return nil
}

// watchController copies controller status reports into the session.
func (m *Machine) watchController(ctx context.Context, conn Adapter) {
	t := time.NewTicker(m.cfg.StatusPoll)
	defer t.Stop()

	var last grbl.State
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		st := conn.State()
		if st == last {
			continue
		}
		last = st
		m.mutate(func(s *session) { s.controller = st })
	}
}

// Disconnect cancels everything running and closes both links.
func (m *Machine) Disconnect() error {
	m.cMx.Lock()
	defer m.cMx.Unlock()

	m.Cancel()

	var conn Adapter
	var act Actuator
	m.mutate(func(s *session) {
		conn, act = s.conn, s.act
		s.conn, s.act = nil, nil
		s.connected = false
		s.actuator = LinkDown
		if m.stop != nil {
			m.stop()
			m.stop = nil
		}
	})

	var errs []error
	if conn != nil {
		errs = append(errs, conn.Close())
	}
	if act != nil {
		errs = append(errs, act.Close())
	}
	return errors.Join(errs...)
}

// Cancel stops the current job or choreography and every command waiting
// for acknowledgement. It does not wait for them to end.
func (m *Machine) Cancel() {
	var tasks []*Task
	m.mx.Lock()
	if m.sess.task != nil {
		tasks = append(tasks, m.sess.task)
	}
	for t := range m.sess.commands {
		tasks = append(tasks, t)
	}
	m.mx.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}
}

type runFunc func(ctx context.Context, conn Adapter, act Actuator) (Outcome, error)

// start claims the session for a new task and runs fn in the background.
//
// Exclusive tasks (jobs and choreographies) require that nothing is running.
func (m *Machine) start(kind Kind, exclusive bool, check func(s *session) error, fn runFunc) (*Task, error) {
	t, ctx := newTask(kind)

	var conn Adapter
	var act Actuator
	var err error
	m.mutate(func(s *session) {
		switch {
		case !s.connected:
			err = ErrNotConnected
		case exclusive && s.running():
			err = ErrAlreadyRunning
		case check != nil:
			err = check(s)
		}
		if err != nil {
			return
		}
		conn, act = s.conn, s.act
		if exclusive {
			s.task = t
			s.progress = 0
		} else {
			s.commands[t] = struct{}{}
		}
	})
	if err != nil {
		t.cancel()
		return nil, err
	}

	go func() {
		outcome, err := fn(ctx, conn, act)
		m.finish(t, outcome, err)
	}()
	return t, nil
}

func (m *Machine) finish(t *Task, outcome Outcome, err error) {
	t.outcome, t.err = outcome, err
	m.mutate(func(s *session) {
		if s.task == t {
			s.task = nil
			s.last = outcome
		}
		delete(s.commands, t)
	})
	if err != nil && outcome != Cancelled {
		log.Printf("ERROR: %s %s %s: %v", t.Kind, t.ID, outcome, err)
	}
	m.record(t, outcome, err)
	t.cancel()
	close(t.done)
}

func (m *Machine) record(t *Task, outcome Outcome, err error) {
	if m.cfg.Journal == nil {
		return
	}
	rec := TaskRecord{
		ID:      t.ID,
		Kind:    t.Kind,
		Outcome: outcome,
		Start:   t.Start,
		End:     time.Now(),
	}
	if err != nil {
		rec.Err = err.Error()
	}
	if err = m.cfg.Journal.Record(rec); err != nil {
		log.Println("ERROR: journal:", err)
	}
}

func (m *Machine) setFan(on bool) {
	if err := m.cfg.Fan.SetFan(on); err != nil {
		log.Println("ERROR: fan:", err)
	}
}

// outcomeOf classifies the error of a protocol exchange.
func outcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return Completed
	case errors.Is(err, context.Canceled):
		return Cancelled
	case errors.Is(err, grbl.ErrHandshakeTimeout):
		return TimedOut
	}
	return Failed
}
