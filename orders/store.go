// Package orders keeps the card order book in two JSON files, one for open
// orders and one for completed orders.
package orders

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// DateFormat is the layout of Order.Date and Order.CompletedAt.
const DateFormat = "2006-01-02 15:04:05"

// Status of an order number.
type Status string

const (
	StatusTodo     Status = "todo"
	StatusDone     Status = "done"
	StatusNotFound Status = "not found"
)

type Order struct {
	Number      int    `json:"order_number"`
	Material    string `json:"material"`
	Variant     string `json:"variant"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Phone       string `json:"phone"`
	Mail        string `json:"mail"`
	Date        string `json:"date"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// Store is the order book. It is safe for concurrent use.
type Store struct {
	todoPath string
	donePath string

	// Now is used for timestamps.
	Now func() time.Time

	mx sync.Mutex
}

// Open creates dir and the two order files if they do not exist.
func Open(dir string) (*Store, error) {
	s := &Store{
		todoPath: filepath.Join(dir, "order.json"),
		donePath: filepath.Join(dir, "done.json"),
		Now:      time.Now,
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("orders: open: %w", err)
	}
	for _, p := range []string{s.todoPath, s.donePath} {
		_, err := os.Stat(p)
		if errors.Is(err, os.ErrNotExist) {
			err = writeList(p, []Order{})
		}
		if err != nil {
			return nil, fmt.Errorf("orders: open: %w", err)
		}
	}
	return s, nil
}

// readList returns the orders of a file. A missing or corrupt file reads
// as empty.
func readList(path string) []Order {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("ERROR: read '%s': %+v", path, err)
		return nil
	}
	var list []Order
	if err = json.Unmarshal(data, &list); err != nil {
		log.Printf("ERROR: parse '%s': %+v", path, err)
		return nil
	}
	return list
}

func writeList(path string, list []Order) error {
	if list == nil {
		list = []Order{}
	}
	data, err := json.MarshalIndent(list, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func nextNumber(lists ...[]Order) int {
	var max int
	for _, l := range lists {
		for _, o := range l {
			if o.Number > max {
				max = o.Number
			}
		}
	}
	return max + 1
}

// Add stores a new open order and returns its number, one more than the
// highest number ever used.
func (s *Store) Add(o Order) (int, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	todo := readList(s.todoPath)
	o.Number = nextNumber(todo, readList(s.donePath))
	o.Date = s.Now().Format(DateFormat)
	o.CompletedAt = ""
	todo = append(todo, o)
	if err := writeList(s.todoPath, todo); err != nil {
		return 0, fmt.Errorf("orders: add: %w", err)
	}
	return o.Number, nil
}

// Next returns the oldest open order.
func (s *Store) Next() (Order, bool) {
	todo := s.Todo()
	if len(todo) == 0 {
		return Order{}, false
	}
	sort.SliceStable(todo, func(i, j int) bool { return todo[i].Date < todo[j].Date })
	return todo[0], true
}

// MarkDone moves an open order to the completed list. It reports false if
// no open order has that number.
func (s *Store) MarkDone(number int) (bool, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	todo := readList(s.todoPath)
	for i, o := range todo {
		if o.Number != number {
			continue
		}
		o.CompletedAt = s.Now().Format(DateFormat)
		done := append(readList(s.donePath), o)
		todo = append(todo[:i], todo[i+1:]...)
		if err := writeList(s.todoPath, todo); err != nil {
			return false, fmt.Errorf("orders: mark done: %w", err)
		}
		if err := writeList(s.donePath, done); err != nil {
			return false, fmt.Errorf("orders: mark done: %w", err)
		}
		return true, nil
	}
	log.Printf("order %d not found", number)
	return false, nil
}

func (s *Store) Status(number int) Status {
	s.mx.Lock()
	defer s.mx.Unlock()

	for _, o := range readList(s.todoPath) {
		if o.Number == number {
			return StatusTodo
		}
	}
	for _, o := range readList(s.donePath) {
		if o.Number == number {
			return StatusDone
		}
	}
	return StatusNotFound
}

func (s *Store) Todo() []Order {
	s.mx.Lock()
	defer s.mx.Unlock()
	return readList(s.todoPath)
}

func (s *Store) Done() []Order {
	s.mx.Lock()
	defer s.mx.Unlock()
	return readList(s.donePath)
}
