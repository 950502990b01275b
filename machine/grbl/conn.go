package grbl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultAckDeadline bounds the wait for acknowledgements of one line.
	DefaultAckDeadline = 5 * time.Second

	// DefaultMaxAcks is the number of `ok` lines awaited per line. The
	// controller firmware may acknowledge a line twice.
	DefaultMaxAcks = 2
)

var (
	// ErrGrblReset will be returned from Send if a reset is encountered
	// before the line is acknowledged.
	ErrGrblReset = errors.New("grbl reset")

	// ErrHandshakeTimeout is returned when no acknowledgement arrived
	// before the deadline.
	ErrHandshakeTimeout = errors.New("grbl: handshake timeout")

	// ErrProtocol is returned when the controller answered a line with an
	// `error:` reply.
	ErrProtocol = errors.New("grbl: controller error")
)

// Conn represents a direct connection to a Grbl controller.
//
// Lines are sent one at a time; each Send blocks until the line has been
// acknowledged or the deadline expired.
type Conn struct {
	rw io.ReadWriter

	AckDeadline time.Duration
	MaxAcks     int

	ackCh   chan error
	resetCh chan struct{}
	closeCh chan struct{}
	once    sync.Once

	mx  sync.Mutex
	wMx sync.Mutex

	stMx  sync.Mutex
	state State
}

// NewConn creates a new Conn using the provided ReadWriter for data.
func NewConn(rw io.ReadWriter) *Conn {
	c := &Conn{
		rw:          rw,
		AckDeadline: DefaultAckDeadline,
		MaxAcks:     DefaultMaxAcks,
		ackCh:       make(chan error, 16),
		resetCh:     make(chan struct{}, 1),
		closeCh:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Close will abort any in-progress sends and close the
// underlying ReadWriter, if it implements io.Closer.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closeCh)
		if closer, ok := c.rw.(io.Closer); ok {
			err = closer.Close()
		}
	})
	return err
}

func (c *Conn) closed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

func (c *Conn) readLoop() {
	br := bufio.NewReader(c.rw)
	var partial string
	for {
		s, err := br.ReadString('\n')
		partial += s
		if err == nil {
			c.handleLine(partial)
			partial = ""
			continue
		}
		if c.closed() {
			return
		}
		if errors.Is(err, io.EOF) {
			// serial read timeouts surface as EOF
			time.Sleep(10 * time.Millisecond)
			continue
		}
		log.Println("ERROR: read from port:", err)
		return
	}
}

func (c *Conn) handleLine(s string) {
	s = strings.TrimSpace(s)
	switch {
	case s == "ok":
		c.ack(nil)
	case strings.HasPrefix(s, "error:"):
		c.ack(fmt.Errorf("%w: %s", ErrProtocol, s))
	case strings.HasPrefix(s, "<"):
		c.stMx.Lock()
		stat, err := parseStatus(c.state, s)
		if err == nil {
			c.state = stat
		}
		c.stMx.Unlock()
		if err != nil {
			log.Println("ERROR: parse status:", err)
		}
	case strings.HasPrefix(s, "ALARM:"):
		log.Println("ERROR: grbl:", s)
	case strings.HasPrefix(s, "Grbl"):
		log.Println("grbl:", s)
		select {
		case c.resetCh <- struct{}{}:
		default:
		}
	}
}

func (c *Conn) ack(err error) {
	select {
	case c.ackCh <- err:
	default:
	}
}

// drain discards acknowledgements left over from a previous line.
func (c *Conn) drain() {
	for {
		select {
		case <-c.ackCh:
		case <-c.resetCh:
		default:
			return
		}
	}
}

func (c *Conn) deadline() time.Duration {
	if c.AckDeadline <= 0 {
		return DefaultAckDeadline
	}
	return c.AckDeadline
}

func (c *Conn) maxAcks() int {
	if c.MaxAcks <= 0 {
		return DefaultMaxAcks
	}
	return c.MaxAcks
}

// Send writes line terminated by CRLF and waits for up to MaxAcks
// acknowledgements, or until AckDeadline passes.
//
// It returns the number of acknowledgements received. Receiving at least one
// before the deadline is a success; receiving none is ErrHandshakeTimeout.
// An `error:` reply counts as an acknowledgement and is returned wrapping
// ErrProtocol.
func (c *Conn) Send(ctx context.Context, line string) (int, error) {
	c.wMx.Lock()
	defer c.wMx.Unlock()
	if c.closed() {
		return 0, io.ErrClosedPipe
	}

	c.drain()
	c.mx.Lock()
	_, err := io.WriteString(c.rw, strings.TrimSpace(line)+"\r\n")
	c.mx.Unlock()
	if err != nil {
		return 0, err
	}

	t := time.NewTimer(c.deadline())
	defer t.Stop()

	var acks int
	var reply error
	for acks < c.maxAcks() {
		select {
		case <-ctx.Done():
			return acks, ctx.Err()
		case <-c.closeCh:
			return acks, io.ErrClosedPipe
		case <-c.resetCh:
			return acks, ErrGrblReset
		case <-t.C:
			if acks == 0 {
				return 0, ErrHandshakeTimeout
			}
			return acks, reply
		case e := <-c.ackCh:
			acks++
			if reply == nil {
				reply = e
			}
		}
	}

	return acks, reply
}

// WriteByte will write directly to the serial device without
// waiting for acknowledgement.
//
// Use for realtime commands like `!` or `?`.
func (c *Conn) WriteByte(p byte) (err error) {
	if c.closed() {
		return io.ErrClosedPipe
	}
	c.mx.Lock()
	_, err = c.rw.Write([]byte{p})
	c.mx.Unlock()
	return err
}

// State returns the last status report received.
func (c *Conn) State() State {
	c.stMx.Lock()
	defer c.stMx.Unlock()
	return c.state
}

// PollStatus requests a status report every interval until ctx is done or
// the Conn is closed.
func (c *Conn) PollStatus(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		case <-t.C:
			if err := c.WriteByte('?'); err != nil {
				log.Println("ERROR: poll status:", err)
			}
		}
	}
}
