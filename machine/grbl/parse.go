package grbl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mastercactapus/lasercard/coord"
)

// State is the last status report received from the controller.
type State struct {
	Status string
	MPos   coord.Point
	WCO    coord.Point
}

// WPos returns the work position.
func (s State) WPos() coord.Point { return s.MPos.Sub(s.WCO) }

// parseCoords reads an "x,y,z" triple.
func parseCoords(data string) (coord.Point, error) {
	parts := strings.Split(data, ",")
	if len(parts) != 3 {
		return coord.Point{}, fmt.Errorf("%w: want 3 coordinates in %q", ErrProtocol, data)
	}
	var v [3]float64
	for i, s := range parts {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return coord.Point{}, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		v[i] = f
	}
	return coord.Point{X: v[0], Y: v[1], Z: v[2]}, nil
}

// parseStatus applies a `<Status|MPos:...|WCO:...>` report to stat.
//
// Reports carrying WPos instead of MPos are converted using the last known
// work offset.
func parseStatus(stat State, data string) (State, error) {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, "<") || !strings.HasSuffix(data, ">") {
		return stat, fmt.Errorf("%w: not a status report: %s", ErrProtocol, data)
	}
	data = strings.TrimPrefix(data, "<")
	data = strings.TrimSuffix(data, ">")
	parts := strings.Split(data, "|")
	stat.Status = parts[0]

	var wpos *coord.Point
	var err error
	for _, s := range parts[1:] {
		sParts := strings.SplitN(s, ":", 2)
		if len(sParts) != 2 {
			continue
		}
		switch sParts[0] {
		case "MPos":
			stat.MPos, err = parseCoords(sParts[1])
		case "WPos":
			var p coord.Point
			p, err = parseCoords(sParts[1])
			wpos = &p
		case "WCO":
			stat.WCO, err = parseCoords(sParts[1])
		}
		if err != nil {
			return stat, err
		}
	}
	if wpos != nil {
		stat.MPos = wpos.Add(stat.WCO)
	}
	return stat, nil
}
