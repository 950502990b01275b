package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mastercactapus/lasercard/glyph"
	"github.com/mastercactapus/lasercard/machine"
	"github.com/mastercactapus/lasercard/orders"
)

// DefaultTimeout bounds a single client call.
const DefaultTimeout = 30 * time.Second

// ErrDisconnected is returned by Client.Call while there is no connection.
var ErrDisconnected = errors.New("remote: disconnected")

// Client is a typed proxy for a laser_module server.
//
// A Client that failed to connect, or lost its connection, stays usable:
// every call returns its failure value (-1, "", false or nil) until Connect
// succeeds again.
type Client struct {
	URL     string
	Timeout time.Duration

	// OnChange, if set, is called from the read loop for every variable
	// update.
	OnChange func(node string, value json.RawMessage)

	mx      sync.Mutex
	ws      *websocket.Conn
	nextID  int64
	pending map[int64]chan Response
	space   AddressSpace
	values  map[string]json.RawMessage

	wMx sync.Mutex
}

func NewClient(url string) *Client {
	return &Client{
		URL:     url,
		Timeout: DefaultTimeout,
		pending: make(map[int64]chan Response),
		values:  make(map[string]json.RawMessage),
	}
}

// Connect dials the server, browses the address space and subscribes to
// every variable.
func (c *Client) Connect(ctx context.Context) error {
	c.Close()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		log.Println("ERROR: dial remote:", err)
		return fmt.Errorf("remote: dial %s: %w", c.URL, err)
	}
	c.mx.Lock()
	c.ws = ws
	c.mx.Unlock()
	go c.readLoop(ws)

	resp, err := c.request(ctx, Request{Op: OpBrowse})
	if err != nil {
		c.Close()
		return fmt.Errorf("remote: browse: %w", err)
	}
	if resp.Space == nil || resp.Space.Namespace != NamespaceName {
		c.Close()
		return fmt.Errorf("remote: %s does not serve %s", c.URL, NamespaceName)
	}
	c.mx.Lock()
	c.space = *resp.Space
	c.mx.Unlock()

	_, err = c.request(ctx, Request{Op: OpSubscribe, Nodes: resp.Space.Variables("")})
	if err != nil {
		c.Close()
		return fmt.Errorf("remote: subscribe: %w", err)
	}
	return nil
}

// Connected reports whether the client holds a connection.
func (c *Client) Connected() bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.ws != nil
}

// Space returns the address space seen at connect time.
func (c *Client) Space() AddressSpace {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.space
}

// Close drops the connection.
func (c *Client) Close() error {
	c.mx.Lock()
	ws := c.ws
	c.mx.Unlock()
	if ws == nil {
		return nil
	}
	c.drop(ws)
	return ws.Close()
}

// drop forgets ws and fails every pending request.
func (c *Client) drop(ws *websocket.Conn) {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.ws != ws {
		return
	}
	c.ws = nil
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) readLoop(ws *websocket.Conn) {
	defer c.drop(ws)
	for {
		var resp Response
		if err := ws.ReadJSON(&resp); err != nil {
			if c.Connected() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Println("ERROR: remote read:", err)
			}
			return
		}

		if resp.Op == OpNotify {
			c.mx.Lock()
			c.values[resp.Node] = resp.Value
			c.mx.Unlock()
			if c.OnChange != nil {
				c.OnChange(resp.Node, resp.Value)
			}
			continue
		}

		c.mx.Lock()
		ch := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mx.Unlock()
		if ch != nil {
			ch <- resp
		}
	}
}

func (c *Client) request(ctx context.Context, req Request) (Response, error) {
	c.mx.Lock()
	ws := c.ws
	if ws == nil {
		c.mx.Unlock()
		return Response{}, ErrDisconnected
	}
	c.nextID++
	req.ID = c.nextID
	ch := make(chan Response, 1)
	c.pending[req.ID] = ch
	c.mx.Unlock()

	c.wMx.Lock()
	err := ws.WriteJSON(req)
	c.wMx.Unlock()
	if err != nil {
		c.drop(ws)
		return Response{}, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	select {
	case <-ctx.Done():
		c.mx.Lock()
		delete(c.pending, req.ID)
		c.mx.Unlock()
		return Response{}, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return Response{}, ErrDisconnected
		}
		if resp.Error != "" {
			return resp, errors.New(resp.Error)
		}
		return resp, nil
	}
}

// Call invokes a method node and returns its encoded result.
func (c *Client) Call(ctx context.Context, node string, args ...any) (json.RawMessage, error) {
	req := Request{Op: OpCall, Node: node}
	for _, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("remote: encode argument: %w", err)
		}
		req.Args = append(req.Args, data)
	}
	resp, err := c.request(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Value decodes the last known value of a variable node into v. It
// reports false if the value is unknown or the client is disconnected.
func (c *Client) Value(node string, v any) bool {
	c.mx.Lock()
	data, ok := c.values[node]
	connected := c.ws != nil
	c.mx.Unlock()
	if !ok || !connected {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func (c *Client) invoke(node string, res any, args ...any) bool {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	data, err := c.Call(ctx, node, args...)
	if err != nil {
		if !errors.Is(err, ErrDisconnected) {
			log.Printf("ERROR: call %s: %v", node, err)
		}
		return false
	}
	if res == nil {
		return true
	}
	if err := json.Unmarshal(data, res); err != nil {
		log.Printf("ERROR: call %s: decode result: %v", node, err)
		return false
	}
	return true
}

// code calls a method returning a status code. A failed call returns
// CodeNotConnected when disconnected and CodeFailed otherwise.
func (c *Client) code(node string, args ...any) int {
	if !c.Connected() {
		return CodeNotConnected
	}
	var n int
	if !c.invoke(node, &n, args...) {
		if !c.Connected() {
			return CodeNotConnected
		}
		return CodeFailed
	}
	return n
}

func (c *Client) RunFile(name string) int    { return c.code("motion.runFile", name) }
func (c *Client) RunCodes(text string) int   { return c.code("motion.runCodes", text) }
func (c *Client) RunComposed() int           { return c.code("motion.runComposed") }
func (c *Client) Reference() int             { return c.code("control.reference") }
func (c *Client) SendCommand(cmd string) int { return c.code("control.sendCommand", cmd) }
func (c *Client) Pointer(on bool) int        { return c.code("control.pointer", on) }
func (c *Client) Fan(on bool) int            { return c.code("control.fan", on) }
func (c *Client) ActuatorHeight(angle int) int {
	return c.code("move.actuatorHeight", angle)
}
func (c *Client) ActuatorPush(angle int) int { return c.code("move.actuatorPush", angle) }
func (c *Client) MoveRelative(dx, dy float64) int {
	return c.code("move.relative", dx, dy)
}
func (c *Client) MoveAbsolute(x, y, feed float64) int {
	return c.code("move.absolute", x, y, feed)
}
func (c *Client) CardIn() int  { return c.code("move.cardIn") }
func (c *Client) CardOut() int { return c.code("move.cardOut") }

// PutProgram stores data as name.gcode.
func (c *Client) PutProgram(name string, data []byte) int {
	return c.code("motion.putProgram", name, data)
}

func (c *Client) ReadFile(name string) string {
	var s string
	c.invoke("motion.readFile", &s, name)
	return s
}

func (c *Client) WriteFile(name string, data []byte) bool {
	var ok bool
	return c.invoke("motion.writeFile", &ok, name, data) && ok
}

// ComposeText composes a card program on the server, to be fetched with
// FetchComposed or run with RunComposed.
func (c *Client) ComposeText(variant string, card glyph.CardFields) bool {
	return c.invoke("motion.composeText", nil, variant,
		card.Title, card.Name, card.Division, card.JobTitle, card.Phone, card.Fax, card.Mail)
}

func (c *Client) FetchComposed() string {
	var s string
	c.invoke("motion.fetchComposed", &s)
	return s
}

// Stop cancels whatever the device is running.
func (c *Client) Stop() bool { return c.invoke("control.stop", nil) }

func (c *Client) SetAnchor(x, y float64) bool { return c.invoke("control.setAnchor", nil, x, y) }

// ConnectDevice asks the server to connect its device.
func (c *Client) ConnectDevice() bool { return c.invoke("control.connect", nil) }

// History returns up to limit finished tasks, newest first.
func (c *Client) History(limit int) []machine.TaskRecord {
	var recs []machine.TaskRecord
	c.invoke("control.history", &recs, limit)
	return recs
}

// AddOrder returns the new order number or -1.
func (c *Client) AddOrder(o orders.Order) int {
	n := -1
	if !c.invoke("orders.add", &n, o.Material, o.Variant, o.Name, o.Title, o.Phone, o.Mail) {
		return -1
	}
	return n
}

func (c *Client) MarkDone(number int) bool {
	var ok bool
	return c.invoke("orders.markDone", &ok, number) && ok
}

func (c *Client) OrderStatus(number int) orders.Status {
	var s orders.Status
	c.invoke("orders.status", &s, number)
	return s
}

func (c *Client) boolValue(node string) bool {
	var b bool
	c.Value(node, &b)
	return b
}

func (c *Client) intValue(node string) int {
	n := -1
	if !c.Value(node, &n) {
		return -1
	}
	return n
}

// IsConnected reports the device serial link as last published.
func (c *Client) IsConnected() bool    { return c.boolValue("status.connected") }
func (c *Client) ActuatorLinked() bool { return c.boolValue("status.actuatorLinked") }
func (c *Client) Running() bool        { return c.boolValue("status.running") }

// Progress returns the job progress in percent, or -1 if unknown.
func (c *Client) Progress() int  { return c.intValue("status.progress") }
func (c *Client) CountTodo() int { return c.intValue("orders.countTodo") }
func (c *Client) CountDone() int { return c.intValue("orders.countDone") }

func (c *Client) Files() []string {
	var files []string
	c.Value("status.files", &files)
	return files
}

func (c *Client) NextOrder() (orders.Order, bool) {
	var o *orders.Order
	if !c.Value("orders.next", &o) || o == nil {
		return orders.Order{}, false
	}
	return *o, true
}
