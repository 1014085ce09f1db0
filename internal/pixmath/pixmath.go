// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package pixmath provides typed element-wise pixel operations.
// Operations are pure functions of a single sample and may be evaluated
// concurrently on disjoint slices.
package pixmath

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/interp"
)

// A pure element-wise pixel operation
type Op interface {
	Apply(x float64) float64
	String() string
}

// Applies the given operation in place to all elements of the slice
func ApplyTo(op Op, data []float64) {
	for i, d := range data {
		data[i] = op.Apply(d)
	}
}

// Subtracts a constant
type Subtract struct {
	Value float64
}

func (op Subtract) Apply(x float64) float64 { return x - op.Value }
func (op Subtract) String() string          { return fmt.Sprintf("$T-%.6g", op.Value) }

// Divides by a constant
type Divide struct {
	Value float64
}

func (op Divide) Apply(x float64) float64 { return x / op.Value }
func (op Divide) String() string          { return fmt.Sprintf("$T/%.6g", op.Value) }

// Multiplies with a constant
type Multiply struct {
	Value float64
}

func (op Multiply) Apply(x float64) float64 { return x * op.Value }
func (op Multiply) String() string          { return fmt.Sprintf("$T*%.6g", op.Value) }

// Raises to a constant power. Negative samples map to zero
type Power struct {
	Exponent float64
}

func (op Power) Apply(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Pow(x, op.Exponent)
}
func (op Power) String() string { return fmt.Sprintf("$T^%.6g", op.Exponent) }

// Conditional clamp to [Low, High]. NaNs map to Low
type Clamp struct {
	Low  float64
	High float64
}

// Clamp to the unit interval
var Truncate = Clamp{0, 1}

func (op Clamp) Apply(x float64) float64 {
	if x < op.Low || math.IsNaN(x) {
		return op.Low
	}
	if x > op.High {
		return op.High
	}
	return x
}
func (op Clamp) String() string {
	return fmt.Sprintf("iif($T<%.6g,%.6g,iif($T>%.6g,%.6g,$T))", op.Low, op.Low, op.High, op.High)
}

// Midtones transfer function with balance Mid in (0,1).
// MTF(0.5) is the identity, smaller values brighten, larger values darken
type MTF struct {
	Mid float64
}

func (op MTF) Apply(x float64) float64 {
	m := op.Mid
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	return (m - 1) * x / ((2*m-1)*x - m)
}
func (op MTF) String() string { return fmt.Sprintf("mtf(%.6g,$T)", op.Mid) }

// Evaluates an interpolated curve, with results clamped to [0,1]
type Curve struct {
	Name      string
	Predictor interp.Predictor
}

// Fits an Akima spline through the given points and returns it as a curve.
// Requires at least two points with strictly increasing x
func NewAkimaCurve(name string, xs, ys []float64) (Curve, error) {
	if len(xs) < 2 || len(xs) != len(ys) {
		return Curve{}, errors.New(fmt.Sprintf("curve %s needs at least two points with x and y, got %d and %d", name, len(xs), len(ys)))
	}
	for i := 1; i < len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return Curve{}, errors.New(fmt.Sprintf("curve %s has non-increasing x values %v", name, xs))
		}
	}
	spline := &interp.AkimaSpline{}
	if err := spline.Fit(xs, ys); err != nil {
		return Curve{}, err
	}
	return Curve{Name: name, Predictor: spline}, nil
}

func (op Curve) Apply(x float64) float64 {
	return Truncate.Apply(op.Predictor.Predict(x))
}
func (op Curve) String() string { return fmt.Sprintf("curve(%s,$T)", op.Name) }

// Applies several operations in order
type Sequence []Op

func (ops Sequence) Apply(x float64) float64 {
	for _, op := range ops {
		x = op.Apply(x)
	}
	return x
}

func (ops Sequence) String() string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = op.String()
	}
	return strings.Join(parts, "; ")
}
