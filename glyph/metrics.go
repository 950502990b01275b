package glyph

import (
	"errors"
	"io"
	"log"
	"math"

	"github.com/mastercactapus/lasercard/gcode"
)

// Metrics describe how a glyph program sits on the text line.
type Metrics struct {
	// Advance is the furthest X reached by a powered cutting move.
	Advance float64

	// Baseline is the Y target of the first rapid move. Compose shifts by
	// -Baseline before the glyph and back by +Baseline after it.
	Baseline float64
}

// Measure will simulate a glyph program and derive its metrics.
//
// Lines the VM does not understand are skipped. Rapid moves never extend
// the advance width.
func Measure(r gcode.Reader) Metrics {
	vm := gcode.NewVM()

	var m Metrics
	firstRapid := true
	for {
		b, err := r.Read()
		if err == io.EOF {
			break
		}
		if errors.Is(err, gcode.ErrSyntax) {
			log.Println("skip glyph line:", err)
			continue
		}
		if err != nil {
			log.Println("ERROR: read glyph:", err)
			break
		}
		if err = vm.Run(b); err != nil {
			log.Println("skip glyph line:", err)
			continue
		}
		if !b.HasAxis() {
			continue
		}

		if vm.Rapid() {
			if ok, y := b.Arg('Y'); ok && firstRapid {
				m.Baseline = y
				firstRapid = false
			}
			continue
		}
		if vm.LaserOn() {
			m.Advance = math.Max(m.Advance, vm.Pos().X)
		}
	}

	m.Advance = round3(m.Advance)
	m.Baseline = round3(m.Baseline)
	return m
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
