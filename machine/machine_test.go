package machine

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mastercactapus/lasercard/machine/grbl"
	"github.com/mastercactapus/lasercard/machine/grbl/grbltest"
	"github.com/mastercactapus/lasercard/programs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

//go:generate mockgen -destination mock_machine_test.go -package $GOPACKAGE -write_package_comment=false github.com/mastercactapus/lasercard/machine Fan,Actuator

func newTestMachine(t *testing.T, dev *grbltest.Device, cfg Config) *Machine {
	t.Helper()
	cfg.Open = func() (io.ReadWriteCloser, error) { return dev, nil }
	if cfg.AckDeadline == 0 {
		cfg.AckDeadline = time.Second
	}
	if cfg.CoolDown == 0 {
		cfg.CoolDown = time.Millisecond
	}
	m := New(cfg)
	require.NoError(t, m.Connect(context.Background()))
	t.Cleanup(func() { m.Disconnect() })
	return m
}

func wait(t *testing.T, task *Task) (Outcome, error) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("task did not end")
	}
	return task.Wait()
}

func TestMachine_NotConnected(t *testing.T) {
	m := New(Config{})

	_, err := m.SendCommand("$H")
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = m.RunJob([]string{"G0 X1"})
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = m.RunFile("card.gcode")
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = m.CardIn()
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = m.MoveRelative(1, 1)
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = m.Reference()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, m.ActuatorHeight(HeightUp), ErrNotConnected)
	assert.ErrorIs(t, m.Pointer(context.Background(), true), ErrNotConnected)

	assert.Equal(t, Status{}, m.Status())
}

func TestMachine_Connect(t *testing.T) {
	ctrl := gomock.NewController(t)
	fan := NewMockFan(ctrl)
	act := NewMockActuator(ctrl)

	fan.EXPECT().SetFan(false)
	act.EXPECT().Close()
	act.EXPECT().Up().Return(true).AnyTimes()

	m := New(Config{
		Open: func() (io.ReadWriteCloser, error) { return grbltest.New(2), nil },
		DialActuator: func(context.Context) (Actuator, error) {
			return act, nil
		},
		Fan: fan,
	})
	require.NoError(t, m.Connect(context.Background()))

	st := m.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, LinkUp, st.Actuator)
	assert.False(t, st.Running)

	require.NoError(t, m.Disconnect())
	st = m.Status()
	assert.False(t, st.Connected)
	assert.Equal(t, LinkDown, st.Actuator)
}

func TestMachine_ActuatorDropped(t *testing.T) {
	ctrl := gomock.NewController(t)
	act := NewMockActuator(ctrl)
	gomock.InOrder(
		act.EXPECT().Up().Return(true),
		act.EXPECT().Up().Return(false),
		act.EXPECT().Up().Return(true),
	)
	act.EXPECT().Close()

	m := New(Config{
		Open:         func() (io.ReadWriteCloser, error) { return grbltest.New(2), nil },
		DialActuator: func(context.Context) (Actuator, error) { return act, nil },
	})
	require.NoError(t, m.Connect(context.Background()))

	assert.Equal(t, LinkUp, m.Status().Actuator)

	st := m.Status()
	assert.Equal(t, LinkReconnecting, st.Actuator)
	assert.False(t, st.Actuator.Linked())
	assert.Equal(t, "reconnecting", st.Actuator.String())
	assert.True(t, st.Connected)

	// redialed
	assert.Equal(t, LinkUp, m.Status().Actuator)

	require.NoError(t, m.Disconnect())
	assert.Equal(t, LinkDown, m.Status().Actuator)
}

func TestMachine_ConnectDegraded(t *testing.T) {
	m := New(Config{
		Open: func() (io.ReadWriteCloser, error) { return grbltest.New(2), nil },
		DialActuator: func(context.Context) (Actuator, error) {
			return nil, errors.New("no route to host")
		},
	})
	defer m.Disconnect()

	err := m.Connect(context.Background())
	assert.ErrorIs(t, err, ErrActuatorDegraded)
	assert.NotErrorIs(t, err, ErrNotConnected)

	st := m.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, LinkDegraded, st.Actuator)
	assert.True(t, st.Actuator.Linked())
	assert.Equal(t, "degraded", st.Actuator.String())

	assert.ErrorIs(t, m.ActuatorHeight(HeightUp), ErrActuatorDegraded)
	assert.ErrorIs(t, m.ActuatorPush(0), ErrActuatorDegraded)

	// passes the link check but cannot move the arm
	task, err := m.CardIn()
	require.NoError(t, err)
	outcome, err := wait(t, task)
	assert.Equal(t, Failed, outcome)
	assert.ErrorIs(t, err, ErrActuatorDegraded)
	assert.False(t, m.Status().Running)
}

func TestMachine_ConnectSerialFails(t *testing.T) {
	m := New(Config{
		Open: func() (io.ReadWriteCloser, error) { return nil, errors.New("no such device") },
	})

	err := m.Connect(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, m.Status().Connected)
	assert.Equal(t, LinkDown, m.Status().Actuator)
}

func TestMachine_RunJobProgress(t *testing.T) {
	ctrl := gomock.NewController(t)
	fan := NewMockFan(ctrl)
	gomock.InOrder(
		fan.EXPECT().SetFan(false),
		fan.EXPECT().SetFan(true),
		fan.EXPECT().SetFan(false),
	)

	var m *Machine
	var mx sync.Mutex
	var seen []float64
	dev := grbltest.New(2)
	dev.Reply = func(line string) []string {
		mx.Lock()
		seen = append(seen, m.Status().Progress)
		mx.Unlock()
		return []string{"ok", "ok"}
	}
	m = newTestMachine(t, dev, Config{Fan: fan})

	task, err := m.RunJob([]string{"G0 X1", "; comment", "   ", "G1 X2 S100", "G1 X3"})
	require.NoError(t, err)
	assert.Equal(t, KindJob, task.Kind)
	assert.NotEmpty(t, task.ID)
	assert.True(t, m.Status().Running)

	outcome, err := wait(t, task)
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)

	assert.Equal(t, []string{"G90", "G0 X1", "", "", "G1 X2 S100", "G1 X3"}, dev.Lines())
	mx.Lock()
	assert.Equal(t, []float64{25, 50, 50, 50, 75, 100}, seen)
	mx.Unlock()

	st := m.Status()
	assert.False(t, st.Running)
	assert.Equal(t, 100.0, st.Progress)
	assert.Equal(t, Completed, st.LastOutcome)
	assert.Empty(t, st.TaskID)
}

func TestMachine_CancelJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	fan := NewMockFan(ctrl)
	gomock.InOrder(
		fan.EXPECT().SetFan(false),
		fan.EXPECT().SetFan(true),
		fan.EXPECT().SetFan(false),
	)

	third := make(chan struct{}, 1)
	dev := grbltest.New(2)
	dev.Delay = 20 * time.Millisecond
	var n int
	dev.Reply = func(line string) []string {
		n++
		if n == 3 {
			third <- struct{}{}
		}
		return []string{"ok", "ok"}
	}
	m := newTestMachine(t, dev, Config{Fan: fan})

	lines := make([]string, 50)
	for i := range lines {
		lines[i] = "G1 X1"
	}
	task, err := m.RunJob(lines)
	require.NoError(t, err)

	<-third
	m.Cancel()
	m.Cancel()

	outcome, err := wait(t, task)
	assert.Equal(t, Cancelled, outcome)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, len(dev.Lines()), 51)

	st := m.Status()
	assert.False(t, st.Running)
	assert.Equal(t, Cancelled, st.LastOutcome)
	assert.Less(t, st.Progress, 100.0)
}

func TestMachine_JobTimeout(t *testing.T) {
	dev := grbltest.New(0)
	dev.Reply = func(line string) []string {
		if line == "G0 X1" {
			return nil
		}
		return []string{"ok", "ok"}
	}
	m := newTestMachine(t, dev, Config{AckDeadline: 50 * time.Millisecond})

	task, err := m.RunJob([]string{"G0 X1", "G0 X2", "G0 X3"})
	require.NoError(t, err)

	// the silent line is abandoned, the rest of the program is still sent
	outcome, err := wait(t, task)
	assert.Equal(t, TimedOut, outcome)
	assert.ErrorIs(t, err, grbl.ErrHandshakeTimeout)
	assert.Equal(t, []string{"G90", "G0 X1", "G0 X2", "G0 X3"}, dev.Lines())
	assert.Equal(t, TimedOut, m.Status().LastOutcome)
	assert.Equal(t, 100.0, m.Status().Progress)
}

func TestMachine_JobControllerErrorContinues(t *testing.T) {
	dev := grbltest.New(0)
	dev.Reply = func(line string) []string {
		if line == "G5" {
			return []string{"error:20"}
		}
		return []string{"ok"}
	}
	m := newTestMachine(t, dev, Config{MaxAcks: 1})

	task, err := m.RunJob([]string{"G5", "G0 X1"})
	require.NoError(t, err)

	outcome, err := wait(t, task)
	assert.NoError(t, err)
	assert.Equal(t, Completed, outcome)
	assert.Equal(t, []string{"G90", "G5", "G0 X1"}, dev.Lines())
}

func TestMachine_AlreadyRunning(t *testing.T) {
	dir := programs.NewDir(t.TempDir())
	require.NoError(t, dir.Write("card.gcode", []byte("G0 X1\n")))

	dev := grbltest.New(2)
	dev.Delay = 20 * time.Millisecond
	m := newTestMachine(t, dev, Config{Programs: dir})

	task, err := m.RunJob([]string{"G1 X1", "G1 X2", "G1 X3", "G1 X4", "G1 X5"})
	require.NoError(t, err)

	_, err = m.RunFile("card.gcode")
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	_, err = m.RunJob([]string{"G0 X9"})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	_, err = m.CardOut()
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, task.ID, m.Status().TaskID)

	outcome, err := wait(t, task)
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
	assert.Len(t, dev.Lines(), 6)
	assert.Equal(t, 100.0, m.Status().Progress)
}

func TestMachine_RunFile(t *testing.T) {
	dir := programs.NewDir(t.TempDir())
	require.NoError(t, dir.Write("card.gcode", []byte("G0 X1\r\nG1 X2\r\n")))

	dev := grbltest.New(2)
	m := newTestMachine(t, dev, Config{Programs: dir})
	assert.Equal(t, []string{"card.gcode"}, m.ListFiles())

	_, err := m.RunFile("missing.gcode")
	assert.ErrorIs(t, err, programs.ErrFile)

	task, err := m.RunFile("card.gcode")
	require.NoError(t, err)
	wait(t, task)
	assert.Equal(t, []string{"G90", "G0 X1", "G1 X2"}, dev.Lines())
}

func TestMachine_SendCommand(t *testing.T) {
	dev := grbltest.New(0)
	m := newTestMachine(t, dev, Config{AckDeadline: 50 * time.Millisecond})

	start := time.Now()
	task, err := m.SendCommand("  G0 X1 \n")
	require.NoError(t, err)
	assert.Equal(t, KindCommand, task.Kind)
	assert.True(t, m.Status().Running)

	outcome, err := wait(t, task)
	assert.Equal(t, TimedOut, outcome)
	assert.ErrorIs(t, err, grbl.ErrHandshakeTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, m.Status().Running)
	assert.Equal(t, []string{"G0 X1"}, dev.Lines())
}

func TestMachine_CancelCommand(t *testing.T) {
	dev := grbltest.New(0)
	m := newTestMachine(t, dev, Config{AckDeadline: time.Minute})

	task, err := m.SendCommand("$H")
	require.NoError(t, err)
	m.Cancel()

	outcome, _ := wait(t, task)
	assert.Equal(t, Cancelled, outcome)
	assert.NoError(t, m.WaitIdle(context.Background()))
}

func TestMachine_Moves(t *testing.T) {
	dev := grbltest.New(2)
	m := newTestMachine(t, dev, Config{})

	task, err := m.MoveRelative(10, -5)
	require.NoError(t, err)
	wait(t, task)

	task, err = m.MoveAbsolute(1.5, 2, 800)
	require.NoError(t, err)
	wait(t, task)

	assert.Equal(t, []string{
		"M5 S0",
		"$J=G91X10Y-5F5000",
		"M5 S0",
		"$J=G90X1.5Y2F800",
	}, dev.Lines())
}

func TestMachine_ReferenceAndActuator(t *testing.T) {
	ctrl := gomock.NewController(t)
	act := NewMockActuator(ctrl)
	gomock.InOrder(
		act.EXPECT().Height(HeightUp),
		act.EXPECT().Push(90),
		act.EXPECT().Height(12).Return(errors.New("broken pipe")),
	)
	act.EXPECT().Close()
	act.EXPECT().Up().Return(true).AnyTimes()

	dev := grbltest.New(2)
	m := newTestMachine(t, dev, Config{
		DialActuator: func(context.Context) (Actuator, error) { return act, nil },
	})

	task, err := m.Reference()
	require.NoError(t, err)
	wait(t, task)
	assert.Equal(t, []string{"$H"}, dev.Lines())

	assert.NoError(t, m.ActuatorPush(90))
	assert.ErrorIs(t, m.ActuatorHeight(12), ErrActuatorDown)
}

func TestMachine_Pointer(t *testing.T) {
	dev := grbltest.New(2)
	m := newTestMachine(t, dev, Config{})

	require.NoError(t, m.Pointer(context.Background(), true))
	require.NoError(t, m.WaitIdle(context.Background()))
	require.NoError(t, m.Pointer(context.Background(), false))
	require.NoError(t, m.WaitIdle(context.Background()))

	assert.Equal(t, []string{"M3 S5", "G1 F1000", "M5 S0", "G0"}, dev.Lines())
}

func TestMachine_PointerWaitsForJob(t *testing.T) {
	dev := grbltest.New(2)
	dev.Delay = 20 * time.Millisecond
	m := newTestMachine(t, dev, Config{})

	task, err := m.RunJob([]string{"G1 X1", "G1 X2", "G1 X3"})
	require.NoError(t, err)

	require.NoError(t, m.Pointer(context.Background(), false))
	assert.Equal(t, Completed, m.Status().LastOutcome, "pointer returned before the job ended")
	wait(t, task)
	require.NoError(t, m.WaitIdle(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	task, err = m.RunJob([]string{"G1 X1"})
	require.NoError(t, err)
	assert.ErrorIs(t, m.Pointer(ctx, true), context.Canceled)
	wait(t, task)
}

func TestMachine_CardInRequiresActuator(t *testing.T) {
	m := newTestMachine(t, grbltest.New(2), Config{})

	_, err := m.CardIn()
	assert.ErrorIs(t, err, ErrActuatorDown)
	assert.ErrorIs(t, m.ActuatorHeight(HeightUp), ErrActuatorDown)
}

func TestMachine_CardIn(t *testing.T) {
	ctrl := gomock.NewController(t)
	act := NewMockActuator(ctrl)
	act.EXPECT().Height(gomock.Any()).AnyTimes()
	act.EXPECT().Push(gomock.Any()).AnyTimes()
	act.EXPECT().Close()
	act.EXPECT().Up().Return(true).AnyTimes()

	dev := grbltest.New(2)
	m := newTestMachine(t, dev, Config{
		DialActuator: func(context.Context) (Actuator, error) { return act, nil },
		CardIn:       noDwell(CardInSteps),
	})

	task, err := m.CardIn()
	require.NoError(t, err)
	assert.Equal(t, KindChoreography, task.Kind)
	assert.True(t, m.Status().Running)

	outcome, err := wait(t, task)
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
	assert.False(t, m.Status().Running)
	assert.Equal(t, []string{"M5 S0", "$J=G90X100Y385F10000", "$J=G90X100Y169F10000"}, dev.Lines())
}

func TestMachine_StatusPoll(t *testing.T) {
	dev := grbltest.New(2)
	dev.Status = "<Idle|MPos:5.000,6.000,0.000>"
	m := newTestMachine(t, dev, Config{StatusPoll: 10 * time.Millisecond})

	assert.Eventually(t, func() bool {
		return m.Status().Controller.Status == "Idle"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 6.0, m.Status().Controller.MPos.Y)
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 33.33, progress(1, 3))
	assert.Equal(t, 66.67, progress(2, 3))
	assert.Equal(t, 100.0, progress(3, 3))
	assert.Equal(t, 100.0, progress(0, 0))
	assert.Equal(t, 3, countExecutable([]string{"G90", " ; x", "", "  ", "G0 X1", "(note)"}))
}
