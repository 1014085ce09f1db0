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

	"github.com/dcinzona/setiastro-pixinsight/internal/img"
	"github.com/dcinzona/setiastro-pixinsight/internal/pixmath"
)

// Maximum contrast boost of the finishing tone curve
const MaxCurvesBoost = 0.3

// Returns the anchor points of the tone curve for target median t and boost b
func ToneCurvePoints(t, b float64) (xs, ys []float64) {
	xs = []float64{0, 0.5 * t, t, (3*t + 1) / 4, 1}
	ys = []float64{0, 0.5 * t, t, 0.25 * (-3*b*t + 3*b + 3*t + 1), 1}
	return xs, ys
}

// Builds the tone curve for target median t and boost b. It passes through (0,0), (t,t) and (1,1)
// and lifts the upper midtones in proportion to b
func ToneCurve(t, b float64) (pixmath.Curve, error) {
	if !(t > 0 && t < 1) {
		return pixmath.Curve{}, newInputError("target median %.6g outside (0,1) for tone curve", t)
	}
	if !(b >= 0 && b <= MaxCurvesBoost) {
		return pixmath.Curve{}, newInputError("curves boost %.6g outside [0,%.2g]", b, MaxCurvesBoost)
	}
	xs, ys := ToneCurvePoints(t, b)
	curve, err := pixmath.NewAkimaCurve(fmt.Sprintf("tone(t=%.4g,b=%.4g)", t, b), xs, ys)
	if err != nil {
		return pixmath.Curve{}, &ExternalOperatorError{Op: "curve", Err: err}
	}
	return curve, nil
}

// Applies the tone curve for target median t and boost b to all samples. Operates in-place
func ApplyToneCurve(f *img.Image, t, b float64) error {
	if f.IsEmpty() {
		return newInputError("no image for tone curve")
	}
	curve, err := ToneCurve(t, b)
	if err != nil {
		return err
	}
	f.Apply(curve)
	return nil
}
