// Package actuator drives the card handling arm over its websocket link.
//
// The arm understands two text messages, `h:<angle>` to set the height
// servo and `p:<angle>` to set the push servo. Nothing is acknowledged.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultRetry is the delay between reconnect attempts.
const DefaultRetry = 3 * time.Second

var (
	// ErrLinkDown is returned while the link is reconnecting.
	ErrLinkDown = errors.New("actuator: link down")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("actuator: closed")
)

type message struct {
	done    chan error
	payload []byte
}

// Link is a persistent connection to the actuator. A dropped connection is
// re-established in the background.
type Link struct {
	url   string
	retry time.Duration

	up       atomic.Bool
	outgoing chan message
	closeCh  chan struct{}
	loopDone chan struct{}
	once     sync.Once
}

// Dial connects to the actuator at url. The first connection attempt must
// succeed; later drops are retried every retry interval (DefaultRetry if zero).
func Dial(ctx context.Context, url string, retry time.Duration) (*Link, error) {
	if retry <= 0 {
		retry = DefaultRetry
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("actuator: dial %s: %w", url, err)
	}

	l := &Link{
		url:      url,
		retry:    retry,
		outgoing: make(chan message),
		closeCh:  make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	l.up.Store(true)
	go l.loop(ws)
	return l, nil
}

// Up reports whether the link is currently connected.
func (l *Link) Up() bool { return l.up.Load() }

// Height sets the height servo angle.
func (l *Link) Height(angle int) error { return l.send("h:" + strconv.Itoa(angle)) }

// Push sets the push servo angle.
func (l *Link) Push(angle int) error { return l.send("p:" + strconv.Itoa(angle)) }

func (l *Link) send(msg string) error {
	m := message{done: make(chan error, 1), payload: []byte(msg)}
	select {
	case l.outgoing <- m:
	case <-l.closeCh:
		return ErrClosed
	}
	return <-m.done
}

// Close shuts the link down and stops reconnecting.
func (l *Link) Close() error {
	l.once.Do(func() { close(l.closeCh) })
	<-l.loopDone
	return nil
}

func readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		// the arm may echo; nothing it says is needed
		if _, _, err := ws.ReadMessage(); err != nil {
			log.Println("ERROR: actuator read:", err)
			return
		}
	}
}

func (l *Link) loop(ws *websocket.Conn) {
	defer close(l.loopDone)

	done := make(chan struct{})
	go readLoop(ws, done)

	drop := func() {
		ws.Close()
		ws = nil
		done = nil
		l.up.Store(false)
	}

	t := time.NewTicker(l.retry)
	defer t.Stop()
	for {
		select {
		case <-l.closeCh:
			if ws != nil {
				ws.Close()
			}
			l.up.Store(false)
			return
		case <-done:
			drop()
		case <-t.C:
			if ws != nil {
				continue
			}
			log.Println("Connecting to actuator", l.url)
			c, _, err := websocket.DefaultDialer.Dial(l.url, nil)
			if err != nil {
				log.Println("ERROR: actuator connect:", err)
				continue
			}
			log.Println("Actuator connected.")
			ws = c
			done = make(chan struct{})
			go readLoop(ws, done)
			l.up.Store(true)
		case m := <-l.outgoing:
			if ws == nil {
				m.done <- ErrLinkDown
				continue
			}
			err := ws.WriteMessage(websocket.TextMessage, m.payload)
			if err != nil {
				log.Println("ERROR: actuator send:", err)
				drop()
				err = fmt.Errorf("%w: %v", ErrLinkDown, err)
			}
			m.done <- err
		}
	}
}
