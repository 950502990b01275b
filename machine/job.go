package machine

import (
	"context"
	"errors"
	"log"
	"math"
	"strings"
	"time"

	"github.com/mastercactapus/lasercard/machine/grbl"
)

// SendCommand sends one line in the background and waits for its
// acknowledgement. Commands may run alongside a job.
func (m *Machine) SendCommand(cmd string) (*Task, error) {
	cmd = strings.TrimSpace(cmd)
	return m.start(KindCommand, false, nil, func(ctx context.Context, conn Adapter, _ Actuator) (Outcome, error) {
		_, err := conn.Send(ctx, cmd)
		if errors.Is(err, grbl.ErrProtocol) {
			return Completed, err
		}
		return outcomeOf(err), err
	})
}

// command sends a line and waits for it. Handshake failures are logged, not
// returned.
func (m *Machine) command(cmd string) error {
	t, err := m.SendCommand(cmd)
	if err != nil {
		return err
	}
	t.Wait()
	return nil
}

// executable reports whether a trimmed program line is sent as-is.
func executable(line string) bool {
	return line != "" && !strings.HasPrefix(line, ";")
}

func countExecutable(lines []string) int {
	var n int
	for _, l := range lines {
		if executable(strings.TrimSpace(l)) {
			n++
		}
	}
	return n
}

func progress(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return math.Round(float64(done)/float64(total)*10000) / 100
}

// RunJob streams a motion program in the background.
//
// The program runs in absolute mode. Comment and blank lines are sent as
// empty lines. A line left without any acknowledgement or with an `error:`
// reply is logged and the job continues; a job that saw a timeout ends
// TimedOut. Once the
// job ends, for any reason, the fan is switched off after the cool-down.
func (m *Machine) RunJob(lines []string) (*Task, error) {
	prog := make([]string, 0, len(lines)+1)
	prog = append(prog, "G90")
	prog = append(prog, lines...)

	return m.start(KindJob, true, nil, func(ctx context.Context, conn Adapter, _ Actuator) (Outcome, error) {
		return m.runJob(ctx, conn, prog)
	})
}

func (m *Machine) runJob(ctx context.Context, conn Adapter, lines []string) (Outcome, error) {
	m.setFan(true)
	defer func() {
		time.Sleep(m.cfg.CoolDown)
		m.setFan(false)
	}()

	total := countExecutable(lines)
	var done int
	var timeout error
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			log.Println("Job cancelled.")
			return Cancelled, err
		}

		line = strings.TrimSpace(line)
		if executable(line) {
			done++
			p := progress(done, total)
			m.mutate(func(s *session) { s.progress = p })
		} else {
			line = ""
		}

		_, err := conn.Send(ctx, line)
		if errors.Is(err, grbl.ErrProtocol) {
			log.Printf("ERROR: line %q: %v", line, err)
			continue
		}
		if errors.Is(err, grbl.ErrHandshakeTimeout) {
			log.Printf("ERROR: line %q: %v", line, err)
			if timeout == nil {
				timeout = err
			}
			continue
		}
		if err != nil {
			return outcomeOf(err), err
		}
	}

	if timeout != nil {
		return TimedOut, timeout
	}
	return Completed, nil
}

// RunFile runs a program from the program directory.
func (m *Machine) RunFile(name string) (*Task, error) {
	st := m.Status()
	if !st.Connected {
		return nil, ErrNotConnected
	}
	if st.Running {
		return nil, ErrAlreadyRunning
	}
	lines, err := m.cfg.Programs.Lines(name)
	if err != nil {
		return nil, err
	}
	return m.RunJob(lines)
}

func (m *Machine) ListFiles() []string { return m.cfg.Programs.List() }

func (m *Machine) ReadFile(name string) (string, error) { return m.cfg.Programs.Read(name) }

func (m *Machine) WriteFile(name string, data []byte) error {
	return m.cfg.Programs.Write(name, data)
}
