package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrUnknownNode is returned for a node that is not in the namespace.
	ErrUnknownNode = errors.New("remote: unknown node")

	// ErrBadArgs is returned when call arguments are missing or mistyped.
	ErrBadArgs = errors.New("remote: bad arguments")
)

// Method handles a call. The result is encoded as JSON; nil means void.
type Method func(ctx context.Context, args Args) (any, error)

// Args are the JSON encoded positional arguments of a call.
type Args []json.RawMessage

func (a Args) decode(i int, v any) error {
	if i >= len(a) {
		return fmt.Errorf("%w: missing argument %d", ErrBadArgs, i)
	}
	if err := json.Unmarshal(a[i], v); err != nil {
		return fmt.Errorf("%w: argument %d: %v", ErrBadArgs, i, err)
	}
	return nil
}

func (a Args) String(i int) (s string, err error) { err = a.decode(i, &s); return s, err }

func (a Args) Int(i int) (n int, err error) {
	var f float64
	err = a.decode(i, &f)
	return int(f), err
}

func (a Args) Float(i int) (f float64, err error) { err = a.decode(i, &f); return f, err }

func (a Args) Bool(i int) (b bool, err error) { err = a.decode(i, &b); return b, err }

// Bytes decodes a base64 string argument.
func (a Args) Bytes(i int) (data []byte, err error) { err = a.decode(i, &data); return data, err }

// Variable is a monitored value.
type Variable struct {
	node string
	ns   *Namespace

	// wMx orders stores and their notifications; mx guards value alone so
	// watchers may Read while a write is being delivered.
	wMx   sync.Mutex
	mx    sync.Mutex
	value json.RawMessage
}

// Write stores val. Watchers are notified only if the encoded value
// changed.
func (v *Variable) Write(val any) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("remote: write %s: %w", v.node, err)
	}
	v.wMx.Lock()
	defer v.wMx.Unlock()

	v.mx.Lock()
	if bytes.Equal(v.value, data) {
		v.mx.Unlock()
		return nil
	}
	v.value = data
	v.mx.Unlock()

	v.ns.notify(v.node, data)
	return nil
}

// Read returns the encoded value.
func (v *Variable) Read() json.RawMessage {
	v.mx.Lock()
	defer v.mx.Unlock()
	return v.value
}

// Object groups methods and variables.
type Object struct {
	name string
	ns   *Namespace

	methods map[string]Method
	vars    map[string]*Variable
}

func (o *Object) AddMethod(name string, fn Method) {
	o.ns.mx.Lock()
	defer o.ns.mx.Unlock()
	o.methods[name] = fn
}

// AddVariable creates a variable holding initial.
func (o *Object) AddVariable(name string, initial any) *Variable {
	data, err := json.Marshal(initial)
	if err != nil {
		data = []byte("null")
	}
	v := &Variable{node: o.name + "." + name, ns: o.ns, value: data}

	o.ns.mx.Lock()
	defer o.ns.mx.Unlock()
	o.vars[name] = v
	return v
}

type watcher struct {
	fn func(node string, value json.RawMessage)
}

// Namespace is an address space of objects.
type Namespace struct {
	Name string

	mx      sync.RWMutex
	objects map[string]*Object

	wMx      sync.Mutex
	watchers map[*watcher]struct{}
}

func NewNamespace(name string) *Namespace {
	return &Namespace{
		Name:     name,
		objects:  make(map[string]*Object),
		watchers: make(map[*watcher]struct{}),
	}
}

// AddObject returns the named object, creating it if needed.
func (ns *Namespace) AddObject(name string) *Object {
	ns.mx.Lock()
	defer ns.mx.Unlock()
	if o, ok := ns.objects[name]; ok {
		return o
	}
	o := &Object{
		name:    name,
		ns:      ns,
		methods: make(map[string]Method),
		vars:    make(map[string]*Variable),
	}
	ns.objects[name] = o
	return o
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Browse describes the namespace.
func (ns *Namespace) Browse() AddressSpace {
	ns.mx.RLock()
	defer ns.mx.RUnlock()

	space := AddressSpace{Namespace: ns.Name}
	for _, name := range sortedKeys(ns.objects) {
		o := ns.objects[name]
		space.Objects = append(space.Objects, ObjectInfo{
			Name:      name,
			Methods:   sortedKeys(o.methods),
			Variables: sortedKeys(o.vars),
		})
	}
	return space
}

func (ns *Namespace) lookup(node string) (*Object, string, error) {
	obj, name, ok := strings.Cut(node, ".")
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownNode, node)
	}
	o, ok := ns.objects[obj]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownNode, node)
	}
	return o, name, nil
}

// Call invokes a method node.
func (ns *Namespace) Call(ctx context.Context, node string, args Args) (any, error) {
	ns.mx.RLock()
	o, name, err := ns.lookup(node)
	var fn Method
	if err == nil {
		fn = o.methods[name]
	}
	ns.mx.RUnlock()
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, node)
	}
	return fn(ctx, args)
}

// Read returns the encoded value of a variable node.
func (ns *Namespace) Read(node string) (json.RawMessage, error) {
	ns.mx.RLock()
	o, name, err := ns.lookup(node)
	var v *Variable
	if err == nil {
		v = o.vars[name]
	}
	ns.mx.RUnlock()
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, node)
	}
	return v.Read(), nil
}

// Watch calls fn for every variable change until the returned func is
// called. fn must not block.
func (ns *Namespace) Watch(fn func(node string, value json.RawMessage)) func() {
	w := &watcher{fn: fn}
	ns.wMx.Lock()
	ns.watchers[w] = struct{}{}
	ns.wMx.Unlock()
	return func() {
		ns.wMx.Lock()
		delete(ns.watchers, w)
		ns.wMx.Unlock()
	}
}

func (ns *Namespace) notify(node string, value json.RawMessage) {
	ns.wMx.Lock()
	defer ns.wMx.Unlock()
	for w := range ns.watchers {
		w.fn(node, value)
	}
}
