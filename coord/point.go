package coord

import (
	"math"
)

type Point struct{ X, Y, Z float64 }

func (p Point) Equal(b Point) bool {
	return p.X == b.X && p.Y == b.Y && p.Z == b.Z
}

// Add will add the target values to p.
func (p Point) Add(target Point) Point {
	p.X += target.X
	p.Y += target.Y
	p.Z += target.Z
	return p
}

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	p.Z -= target.Z
	return p
}

// Round will round every axis to prec decimal places.
func (p Point) Round(prec int) Point {
	mul := math.Pow(10, float64(prec))
	p.X = math.Round(p.X*mul) / mul
	p.Y = math.Round(p.Y*mul) / mul
	p.Z = math.Round(p.Z*mul) / mul
	return p
}

// XY returns a point on the Z=0 plane.
func XY(x, y float64) Point { return Point{X: x, Y: y} }
