package gcode

import (
	"errors"

	"github.com/mastercactapus/lasercard/coord"
)

// VM will track state and interpret gcode.
//
// It understands the subset of codes found in laser glyph programs:
// rapid and linear moves, distance and unit modes, and spindle (laser)
// power. Everything else is rejected by Run.
type VM struct {
	pos coord.Point

	modal [256]float64

	speed float64
}

// NewVM constructs a new VM with default state.
func NewVM() *VM {
	vm := &VM{}

	// using grbl defaults
	vm.modal[ModalGroupMotion] = 0
	vm.modal[ModalGroupCoordinateSystem] = 54
	vm.modal[ModalGroupPlaneSelection] = 17
	vm.modal[ModalGroupDistanceMode] = 90
	vm.modal[ModalGroupArcDistanceMode] = 91.1
	vm.modal[ModalGroupFeedRateMode] = 94
	vm.modal[ModalGroupUnits] = 21
	vm.modal[ModalGroupCutterCompensationMode] = 40
	vm.modal[ModalGroupToolLength] = 49
	vm.modal[ModalGroupStopping] = 0
	vm.modal[ModalGroupSpindle] = 5
	vm.modal[ModalGroupCoolant] = 9

	return vm
}

func (vm VM) Inches() bool         { return vm.modal[ModalGroupUnits] == 20 }
func (vm VM) RelativeMotion() bool { return vm.modal[ModalGroupDistanceMode] == 91 }

// Rapid reports whether the active motion mode is G0.
func (vm VM) Rapid() bool { return vm.modal[ModalGroupMotion] == 0 }

// LaserOn reports whether the spindle is on (M3 or M4) with a non-zero power.
func (vm VM) LaserOn() bool {
	sp := vm.modal[ModalGroupSpindle]
	return (sp == 3 || sp == 4) && vm.speed > 0
}

func (vm VM) Pos() coord.Point { return vm.pos }

func isSupported(g Word) bool {
	if g.IsAxis() {
		return true
	}

	switch g.W {
	case 'G':
		switch g.Arg {
		case 0, 1, 17, 20, 21, 40, 54, 90, 91, 94:
			return true
		}
	case 'M':
		switch g.Arg {
		case 2, 3, 4, 5, 8, 9:
			return true
		}
	case 'F', 'S':
		return true
	}

	return false
}

func applyBlock(p coord.Point, b Block, mul float64) coord.Point {
	for _, g := range b {
		switch g.W {
		case 'X':
			p.X = g.Arg * mul
		case 'Y':
			p.Y = g.Arg * mul
		case 'Z':
			p.Z = g.Arg * mul
		}
	}

	return p
}

// Run applies a single block. An invalid or unsupported block leaves the
// VM untouched.
func (vm *VM) Run(b Block) error {
	err := b.Validate()
	if err != nil {
		return err
	}
	for _, g := range b {
		if !isSupported(g) {
			return errors.New("unsupported code: " + g.String())
		}
	}
	for _, g := range b {
		switch mg := g.ModalGroup(); mg {
		case ModalGroupNone, ModalGroupNonModal:
		case ModalGroupSpindleSpeed:
			vm.speed = g.Arg
		default:
			vm.modal[mg] = g.Arg
		}
	}

	if !b.HasAxis() {
		return nil
	}

	mul := 1.0
	if vm.Inches() {
		mul = 25.4
	}
	// apply motion
	if vm.RelativeMotion() {
		vm.pos = vm.pos.Add(applyBlock(coord.Point{}, b, mul))
	} else {
		vm.pos = applyBlock(vm.pos, b, mul)
	}

	return nil
}
