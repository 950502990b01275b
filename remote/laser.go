package remote

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/mastercactapus/lasercard/coord"
	"github.com/mastercactapus/lasercard/glyph"
	"github.com/mastercactapus/lasercard/machine"
	"github.com/mastercactapus/lasercard/orders"
	"github.com/mastercactapus/lasercard/programs"
)

// NamespaceName is the namespace of the laser address space.
const NamespaceName = "laser_module"

// DefaultPeriod is the refresh interval of Laser.Run.
const DefaultPeriod = time.Second

// DefaultAnchor is the card origin used by composeText until setAnchor is
// called.
var DefaultAnchor = coord.XY(4, 86)

// Status codes returned by methods that report an outcome.
const (
	CodeOK             = 0
	CodeNotConnected   = -1
	CodeAlreadyRunning = -2
	CodeFileError      = -3
	CodeActuator       = -4
	CodeFailed         = -5
)

// Code maps an error to a status code.
func Code(err error) int {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, machine.ErrNotConnected):
		return CodeNotConnected
	case errors.Is(err, machine.ErrAlreadyRunning):
		return CodeAlreadyRunning
	case errors.Is(err, programs.ErrFile):
		return CodeFileError
	case errors.Is(err, machine.ErrActuatorDown), errors.Is(err, machine.ErrActuatorDegraded):
		return CodeActuator
	}
	return CodeFailed
}

// Device is the machine surface exposed by Laser. It is implemented by
// *machine.Machine.
type Device interface {
	Status() machine.Status
	Connect(ctx context.Context) error
	Cancel()

	SendCommand(cmd string) (*machine.Task, error)
	RunJob(lines []string) (*machine.Task, error)
	RunFile(name string) (*machine.Task, error)
	Reference() (*machine.Task, error)
	Pointer(ctx context.Context, on bool) error
	SetFan(on bool) error

	ActuatorHeight(angle int) error
	ActuatorPush(angle int) error
	MoveRelative(dx, dy float64) (*machine.Task, error)
	MoveAbsolute(x, y, feed float64) (*machine.Task, error)
	CardIn() (*machine.Task, error)
	CardOut() (*machine.Task, error)

	ListFiles() []string
	ReadFile(name string) (string, error)
	WriteFile(name string, data []byte) error
}

// Orders is the order book. It is implemented by *orders.Store.
type Orders interface {
	Add(o orders.Order) (int, error)
	MarkDone(number int) (bool, error)
	Status(number int) orders.Status
	Next() (orders.Order, bool)
	Todo() []orders.Order
	Done() []orders.Order
}

// History lists finished tasks. It is implemented by *history.DB.
type History interface {
	Recent(limit int) ([]machine.TaskRecord, error)
}

var _ Device = &machine.Machine{}
var _ Orders = &orders.Store{}

// Laser binds a Device to the laser_module namespace.
type Laser struct {
	ns      *Namespace
	dev     Device
	comp    *glyph.Compositor
	book    Orders
	history History

	mx       sync.Mutex
	anchor   coord.Point
	composed string

	refreshMx sync.Mutex

	connected      *Variable
	actuatorLinked *Variable
	actuatorState  *Variable
	running        *Variable
	progress       *Variable
	controller     *Variable
	files          *Variable
	ordersTodo     *Variable
	ordersDone     *Variable

	next      *Variable
	todo      *Variable
	done      *Variable
	countTodo *Variable
	countDone *Variable
}

// Controller is the value of status.controller.
type Controller struct {
	Status string  `json:"status"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// NewLaser builds the namespace. comp, book and hist may be nil; the
// methods that need them then fail.
func NewLaser(dev Device, comp *glyph.Compositor, book Orders, hist History) *Laser {
	l := &Laser{
		ns:      NewNamespace(NamespaceName),
		dev:     dev,
		comp:    comp,
		book:    book,
		history: hist,
		anchor:  DefaultAnchor,
	}

	status := l.ns.AddObject("status")
	l.connected = status.AddVariable("connected", false)
	l.actuatorLinked = status.AddVariable("actuatorLinked", false)
	l.actuatorState = status.AddVariable("actuatorState", machine.LinkDown)
	l.running = status.AddVariable("running", false)
	l.progress = status.AddVariable("progress", 0)
	l.controller = status.AddVariable("controller", Controller{})
	l.files = status.AddVariable("files", []string{})
	l.ordersTodo = status.AddVariable("ordersTodo", 0)
	l.ordersDone = status.AddVariable("ordersDone", 0)

	motion := l.ns.AddObject("motion")
	motion.AddMethod("runFile", l.runFile)
	motion.AddMethod("runCodes", l.runCodes)
	motion.AddMethod("readFile", l.readFile)
	motion.AddMethod("writeFile", l.writeFile)
	motion.AddMethod("putProgram", l.putProgram)
	motion.AddMethod("composeText", l.composeText)
	motion.AddMethod("fetchComposed", l.fetchComposed)
	motion.AddMethod("runComposed", l.runComposed)

	control := l.ns.AddObject("control")
	control.AddMethod("reference", l.taskMethod(dev.Reference))
	control.AddMethod("sendCommand", l.sendCommand)
	control.AddMethod("stop", l.stop)
	control.AddMethod("pointer", l.pointer)
	control.AddMethod("fan", l.fan)
	control.AddMethod("setAnchor", l.setAnchor)
	control.AddMethod("connect", l.connect)
	control.AddMethod("history", l.recent)

	move := l.ns.AddObject("move")
	move.AddMethod("actuatorHeight", l.actuatorMethod(dev.ActuatorHeight))
	move.AddMethod("actuatorPush", l.actuatorMethod(dev.ActuatorPush))
	move.AddMethod("relative", l.relative)
	move.AddMethod("absolute", l.absolute)
	move.AddMethod("cardIn", l.taskMethod(dev.CardIn))
	move.AddMethod("cardOut", l.taskMethod(dev.CardOut))

	ord := l.ns.AddObject("orders")
	ord.AddMethod("add", l.addOrder)
	ord.AddMethod("markDone", l.markDone)
	ord.AddMethod("status", l.orderStatus)
	l.next = ord.AddVariable("next", nil)
	l.todo = ord.AddVariable("todo", []orders.Order{})
	l.done = ord.AddVariable("done", []orders.Order{})
	l.countTodo = ord.AddVariable("countTodo", 0)
	l.countDone = ord.AddVariable("countDone", 0)

	return l
}

func (l *Laser) Namespace() *Namespace { return l.ns }

// Anchor returns the card origin used by composeText.
func (l *Laser) Anchor() coord.Point {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.anchor
}

// Composed returns the last composed program.
func (l *Laser) Composed() string {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.composed
}

func write(v *Variable, val any) {
	if err := v.Write(val); err != nil {
		log.Println("ERROR:", err)
	}
}

// Refresh copies the device status, program list and order book into the
// variables.
func (l *Laser) Refresh() {
	l.refreshMx.Lock()
	defer l.refreshMx.Unlock()

	st := l.dev.Status()
	write(l.connected, st.Connected)
	write(l.actuatorLinked, st.Actuator.Linked())
	write(l.actuatorState, st.Actuator)
	write(l.progress, int(math.Round(st.Progress)))
	write(l.running, st.Running)

	pos := st.Controller.WPos()
	write(l.controller, Controller{Status: st.Controller.Status, X: pos.X, Y: pos.Y})

	files := l.dev.ListFiles()
	if files == nil {
		files = []string{}
	}
	write(l.files, files)

	if l.book == nil {
		return
	}
	todo, done := l.book.Todo(), l.book.Done()
	if todo == nil {
		todo = []orders.Order{}
	}
	if done == nil {
		done = []orders.Order{}
	}
	write(l.todo, todo)
	write(l.done, done)
	write(l.countTodo, len(todo))
	write(l.countDone, len(done))
	write(l.ordersTodo, len(todo))
	write(l.ordersDone, len(done))
	if next, ok := l.book.Next(); ok {
		write(l.next, next)
	} else {
		write(l.next, nil)
	}
}

// Run refreshes the variables every period until ctx is done.
func (l *Laser) Run(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = DefaultPeriod
	}
	t := time.NewTicker(period)
	defer t.Stop()

	l.Refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Refresh()
		}
	}
}

// codeOf logs err and returns its code.
func codeOf(op string, err error) int {
	if err != nil {
		log.Printf("ERROR: %s: %v", op, err)
	}
	return Code(err)
}

func (l *Laser) taskMethod(fn func() (*machine.Task, error)) Method {
	return func(ctx context.Context, args Args) (any, error) {
		_, err := fn()
		return codeOf("start task", err), nil
	}
}

func (l *Laser) actuatorMethod(fn func(int) error) Method {
	return func(ctx context.Context, args Args) (any, error) {
		angle, err := args.Int(0)
		if err != nil {
			return nil, err
		}
		return codeOf("actuator", fn(angle)), nil
	}
}

func (l *Laser) runFile(ctx context.Context, args Args) (any, error) {
	name, err := args.String(0)
	if err != nil {
		return nil, err
	}
	_, err = l.dev.RunFile(name)
	return codeOf("run file", err), nil
}

func (l *Laser) runCodes(ctx context.Context, args Args) (any, error) {
	text, err := args.String(0)
	if err != nil {
		return nil, err
	}
	_, err = l.dev.RunJob(programs.SplitLines(text))
	return codeOf("run codes", err), nil
}

func (l *Laser) readFile(ctx context.Context, args Args) (any, error) {
	name, err := args.String(0)
	if err != nil {
		return nil, err
	}
	data, err := l.dev.ReadFile(name)
	if err != nil {
		log.Println("ERROR: read file:", err)
		return "", nil
	}
	return data, nil
}

func (l *Laser) writeFile(ctx context.Context, args Args) (any, error) {
	name, err := args.String(0)
	if err != nil {
		return nil, err
	}
	data, err := args.Bytes(1)
	if err != nil {
		return nil, err
	}
	if err := l.dev.WriteFile(name, data); err != nil {
		log.Println("ERROR: write file:", err)
		return false, nil
	}
	return true, nil
}

// putProgram stores a program under its base name with a .gcode suffix.
func (l *Laser) putProgram(ctx context.Context, args Args) (any, error) {
	name, err := args.String(0)
	if err != nil {
		return nil, err
	}
	data, err := args.Bytes(1)
	if err != nil {
		return nil, err
	}
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if !strings.HasSuffix(name, ".gcode") {
		name += ".gcode"
	}
	return codeOf("put program", l.dev.WriteFile(name, data)), nil
}

func (l *Laser) composeText(ctx context.Context, args Args) (any, error) {
	var s [8]string
	for i := range s {
		v, err := args.String(i)
		if err != nil {
			return nil, err
		}
		s[i] = v
	}
	if l.comp == nil {
		return nil, errors.New("no glyph catalog loaded")
	}
	card := glyph.CardFields{
		Title:    s[1],
		Name:     s[2],
		Division: s[3],
		JobTitle: s[4],
		Phone:    s[5],
		Fax:      s[6],
		Mail:     s[7],
	}
	prog, err := l.comp.ComposeCard(s[0], l.Anchor(), card)
	if err != nil {
		return nil, err
	}

	l.mx.Lock()
	l.composed = prog
	l.mx.Unlock()
	return nil, nil
}

func (l *Laser) fetchComposed(ctx context.Context, args Args) (any, error) {
	return l.Composed(), nil
}

func (l *Laser) runComposed(ctx context.Context, args Args) (any, error) {
	_, err := l.dev.RunJob(programs.SplitLines(l.Composed()))
	return codeOf("run composed", err), nil
}

func (l *Laser) sendCommand(ctx context.Context, args Args) (any, error) {
	cmd, err := args.String(0)
	if err != nil {
		return nil, err
	}
	_, err = l.dev.SendCommand(cmd)
	return codeOf("send command", err), nil
}

func (l *Laser) stop(ctx context.Context, args Args) (any, error) {
	l.dev.Cancel()
	return nil, nil
}

func (l *Laser) pointer(ctx context.Context, args Args) (any, error) {
	on, err := args.Bool(0)
	if err != nil {
		return nil, err
	}
	return codeOf("pointer", l.dev.Pointer(ctx, on)), nil
}

func (l *Laser) fan(ctx context.Context, args Args) (any, error) {
	on, err := args.Bool(0)
	if err != nil {
		return nil, err
	}
	return codeOf("fan", l.dev.SetFan(on)), nil
}

func (l *Laser) setAnchor(ctx context.Context, args Args) (any, error) {
	x, err := args.Float(0)
	if err != nil {
		return nil, err
	}
	y, err := args.Float(1)
	if err != nil {
		return nil, err
	}
	l.mx.Lock()
	l.anchor = coord.XY(x, y)
	l.mx.Unlock()
	return nil, nil
}

// connect errors are logged by the device and show up in the status
// variables.
func (l *Laser) connect(ctx context.Context, args Args) (any, error) {
	_ = l.dev.Connect(ctx)
	l.Refresh()
	return nil, nil
}

func (l *Laser) recent(ctx context.Context, args Args) (any, error) {
	limit, err := args.Int(0)
	if err != nil {
		return nil, err
	}
	if l.history == nil {
		return []machine.TaskRecord{}, nil
	}
	recs, err := l.history.Recent(limit)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []machine.TaskRecord{}
	}
	return recs, nil
}

func (l *Laser) relative(ctx context.Context, args Args) (any, error) {
	dx, err := args.Float(0)
	if err != nil {
		return nil, err
	}
	dy, err := args.Float(1)
	if err != nil {
		return nil, err
	}
	_, err = l.dev.MoveRelative(dx, dy)
	return codeOf("move relative", err), nil
}

func (l *Laser) absolute(ctx context.Context, args Args) (any, error) {
	var v [3]float64
	for i := range v {
		f, err := args.Float(i)
		if err != nil {
			return nil, err
		}
		v[i] = f
	}
	_, err := l.dev.MoveAbsolute(v[0], v[1], v[2])
	return codeOf("move absolute", err), nil
}

func (l *Laser) orderBook() (Orders, error) {
	if l.book == nil {
		return nil, errors.New("no order book")
	}
	return l.book, nil
}

func (l *Laser) addOrder(ctx context.Context, args Args) (any, error) {
	book, err := l.orderBook()
	if err != nil {
		return nil, err
	}
	var s [6]string
	for i := range s {
		v, err := args.String(i)
		if err != nil {
			return nil, err
		}
		s[i] = v
	}
	n, err := book.Add(orders.Order{
		Material: s[0],
		Variant:  s[1],
		Name:     s[2],
		Title:    s[3],
		Phone:    s[4],
		Mail:     s[5],
	})
	if err != nil {
		return nil, fmt.Errorf("add order: %w", err)
	}
	l.Refresh()
	return n, nil
}

func (l *Laser) markDone(ctx context.Context, args Args) (any, error) {
	book, err := l.orderBook()
	if err != nil {
		return nil, err
	}
	n, err := args.Int(0)
	if err != nil {
		return nil, err
	}
	ok, err := book.MarkDone(n)
	if err != nil {
		log.Println("ERROR: mark done:", err)
		return false, nil
	}
	l.Refresh()
	return ok, nil
}

func (l *Laser) orderStatus(ctx context.Context, args Args) (any, error) {
	book, err := l.orderBook()
	if err != nil {
		return nil, err
	}
	n, err := args.Int(0)
	if err != nil {
		return nil, err
	}
	return book.Status(n), nil
}
