package gcode

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBlock is returned by Block.Validate.
var ErrBlock = errors.New("invalid block")

// Block is the words of one line, in order.
type Block []Word

// Arg returns the argument of the first w word.
func (b Block) Arg(w byte) (bool, float64) {
	for _, g := range b {
		if g.W == w {
			return true, g.Arg
		}
	}
	return false, 0
}

// HasAxis returns true if any word of b addresses an axis.
func (b Block) HasAxis() bool {
	for _, g := range b {
		if g.IsAxis() {
			return true
		}
	}
	return false
}

// String renders b without separators, the way grbl echoes lines.
func (b Block) String() string {
	var sb strings.Builder
	for _, g := range b {
		sb.WriteString(g.String())
	}
	return sb.String()
}

func (b Block) Validate() error {
	var seenWord [256]bool
	var seenGroup [256]bool

	for _, g := range b {
		if !g.IsValid() {
			return fmt.Errorf("%w: bad word %q", ErrBlock, g.W)
		}
		if g.W != 'G' && g.W != 'M' && seenWord[g.W] {
			return fmt.Errorf("%w: %c repeated", ErrBlock, g.W)
		}
		seenWord[g.W] = true

		m := g.ModalGroup()
		if m != ModalGroupNone && seenGroup[m] {
			return fmt.Errorf("%w: %s shares a modal group", ErrBlock, g)
		}
		seenGroup[m] = true
	}

	return nil
}
