package gcode

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// LineError is a program line that does not parse.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e *LineError) Unwrap() error { return e.Err }

// Parse reads every block of a program. Controller commands (`$H`, `$J=`)
// are skipped. Lines that fail are joined as *LineError values; the blocks
// that did parse are returned either way.
func Parse(data string) ([]Block, error) {
	var blocks []Block
	var errs []error
	for i, line := range strings.Split(data, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "$") {
			continue
		}
		b, err := NewParser(strings.NewReader(line)).Read()
		if err == io.EOF {
			continue
		}
		if err != nil {
			errs = append(errs, &LineError{Line: i + 1, Err: err})
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks, errors.Join(errs...)
}

