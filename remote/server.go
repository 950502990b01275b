package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io/ioutil"
	"log"
	"net/http"
	"sync"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/websocket"
)

// EventsChannel is the server-sent event channel carrying variable changes.
const EventsChannel = "/events/status"

// Event is the payload of a server-sent event.
type Event struct {
	Node  string          `json:"node"`
	Value json.RawMessage `json:"value"`
}

// Server serves a Namespace to websocket clients and publishes every
// variable change as a server-sent event.
type Server struct {
	ns       *Namespace
	upgrader websocket.Upgrader
	sse      *sse.Server

	events  chan Event
	unwatch func()
	done    chan struct{}
	once    sync.Once
}

func NewServer(ns *Namespace) *Server {
	s := &Server{
		ns: ns,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(ioutil.Discard, "", 0),
		}),
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
	s.unwatch = ns.Watch(func(node string, value json.RawMessage) {
		select {
		case s.events <- Event{Node: node, Value: value}:
		default:
			log.Println("ERROR: event feed full, dropped", node)
		}
	})
	go s.eventLoop()
	return s
}

func (s *Server) eventLoop() {
	for {
		select {
		case <-s.done:
			return
		case e := <-s.events:
			data, err := json.Marshal(e)
			if err != nil {
				log.Printf("ERROR: marshal json: %+v", err)
				continue
			}
			s.sse.SendMessage(EventsChannel, sse.SimpleMessage(string(data)))
		}
	}
}

// Events serves the server-sent event feed. It must be mounted so that
// EventsChannel is its request path.
func (s *Server) Events() http.Handler { return s.sse }

// Close stops the event feed.
func (s *Server) Close() {
	s.once.Do(func() {
		s.unwatch()
		close(s.done)
		s.sse.Shutdown()
	})
}

// ServeHTTP upgrades the request and serves the namespace until the client
// disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ws, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Println("ERROR: upgrade:", err)
		return
	}
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	go func() {
		<-ctx.Done()
		ws.Close()
	}()

	c := &session{
		ns:   s.ns,
		ws:   ws,
		out:  make(chan Response, 256),
		subs: make(map[string]bool),
	}
	unwatch := s.ns.Watch(c.notify)
	defer unwatch()

	go c.writeLoop(ctx, cancel)
	c.readLoop(ctx)
}

// session is one websocket client.
type session struct {
	ns *Namespace
	ws *websocket.Conn

	out chan Response

	mx   sync.Mutex
	subs map[string]bool
}

func (c *session) notify(node string, value json.RawMessage) {
	c.mx.Lock()
	defer c.mx.Unlock()
	if !c.subs[node] {
		return
	}
	c.push(Response{Op: OpNotify, Node: node, Value: value})
}

// push queues resp without blocking.
func (c *session) push(resp Response) {
	select {
	case c.out <- resp:
	default:
		log.Println("ERROR: client too slow, dropped", resp.Node)
	}
}

func (c *session) send(ctx context.Context, resp Response) {
	select {
	case c.out <- resp:
	case <-ctx.Done():
	}
}

func (c *session) writeLoop(ctx context.Context, cancel func()) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case resp := <-c.out:
			if err := c.ws.WriteJSON(resp); err != nil {
				log.Println("ERROR: write:", err)
				return
			}
		}
	}
}

func (c *session) readLoop(ctx context.Context) {
	for {
		var req Request
		err := c.ws.ReadJSON(&req)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Println("ERROR: read:", err)
			}
			return
		}
		c.handle(ctx, req)
	}
}

func errResponse(req Request, err error) Response {
	return Response{ID: req.ID, Op: req.Op, Error: err.Error()}
}

func (c *session) handle(ctx context.Context, req Request) {
	switch req.Op {
	case OpBrowse:
		space := c.ns.Browse()
		c.send(ctx, Response{ID: req.ID, Op: req.Op, Space: &space})
	case OpRead:
		val, err := c.ns.Read(req.Node)
		if err != nil {
			c.send(ctx, errResponse(req, err))
			return
		}
		c.send(ctx, Response{ID: req.ID, Op: req.Op, Node: req.Node, Value: val})
	case OpSubscribe:
		for _, node := range req.Nodes {
			if _, err := c.ns.Read(node); err != nil {
				c.send(ctx, errResponse(req, err))
				return
			}
		}
		// current values are queued under the lock so a concurrent change
		// is always delivered after them
		c.mx.Lock()
		for _, node := range req.Nodes {
			c.subs[node] = true
			val, _ := c.ns.Read(node)
			c.push(Response{Op: OpNotify, Node: node, Value: val})
		}
		c.mx.Unlock()
		c.send(ctx, Response{ID: req.ID, Op: req.Op, Result: json.RawMessage("true")})
	case OpCall:
		// calls may block (pointer waits for the device); run them
		// concurrently so reads and notifications keep flowing
		go c.call(ctx, req)
	default:
		c.send(ctx, errResponse(req, errors.New("unknown op "+req.Op)))
	}
}

func (c *session) call(ctx context.Context, req Request) {
	res, err := c.ns.Call(ctx, req.Node, req.Args)
	if err != nil {
		c.send(ctx, errResponse(req, err))
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		c.send(ctx, errResponse(req, err))
		return
	}
	c.send(ctx, Response{ID: req.ID, Op: req.Op, Result: data})
}
