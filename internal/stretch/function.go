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

package stretch

import (
	"fmt"
	"math"

	"github.com/dcinzona/setiastro-pixinsight/internal/img"
	"github.com/dcinzona/setiastro-pixinsight/internal/pixmath"
)

// The hyperbolic stretch (3^L x) / ((3^L - 1) x + 1) for samples in [0,1].
// Fixes 0 and 1 for any finite exponent L
type Function struct {
	L float64
	k float64 // 3^L
}

func NewFunction(l float64) Function {
	return Function{L: l, k: math.Pow(3, l)}
}

func (op Function) Apply(x float64) float64 {
	if math.IsInf(op.k, 1) {
		if x <= 0 {
			return 0
		}
		return 1
	}
	if op.k == 0 {
		if x >= 1 {
			return 1
		}
		return 0
	}
	// (k-1)x+1 rearranged as kx+(1-x) so that x=1 maps to exactly 1
	kx := op.k * x
	return kx / (kx + (1 - x))
}

func (op Function) String() string { return fmt.Sprintf("stretch(%.6g,$T)", op.L) }

// Evaluates the stretch function with exponent l at x
func StretchValue(l, x float64) float64 {
	return NewFunction(l).Apply(x)
}

// Applies the stretch function with a fixed, user-chosen exponent to every sample.
// Results are clamped to [0,1]. Operates in-place and returns the image
func RunFixedStretch(f *img.Image, exponent float64) (*img.Image, error) {
	if f.IsEmpty() {
		return nil, newInputError("no image to stretch")
	}
	if math.IsNaN(exponent) || math.IsInf(exponent, 0) {
		return nil, newInputError("fixed stretch exponent %v is not finite", exponent)
	}
	f.Apply(pixmath.Sequence{NewFunction(exponent), pixmath.Truncate})
	return f, nil
}
