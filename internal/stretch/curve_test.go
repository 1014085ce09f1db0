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
	"math"
	"testing"

	"github.com/dcinzona/setiastro-pixinsight/internal/img"
)

func TestToneCurveAnchors(t *testing.T) {
	for _, target := range []float64{0.01, 0.1, 0.25, 0.5, 0.75, 0.99} {
		for _, boost := range []float64{0, 0.05, 0.1, 0.2, 0.3} {
			curve, err := ToneCurve(target, boost)
			if err != nil {
				t.Fatalf("t=%g b=%g: %v", target, boost, err)
			}
			if curve.Apply(0) != 0 || curve.Apply(1) != 1 {
				t.Errorf("t=%g b=%g: curve(0)=%g curve(1)=%g", target, boost, curve.Apply(0), curve.Apply(1))
			}
			if res := curve.Apply(target); math.Abs(res-target) > 1e-12 {
				t.Errorf("t=%g b=%g: median anchor moved to %g", target, boost, res)
			}
			x3 := (3*target + 1) / 4
			lift := curve.Apply(x3) - x3
			if math.Abs(lift-0.75*boost*(1-target)) > 1e-12 {
				t.Errorf("t=%g b=%g: upper midtone lifted by %g", target, boost, lift)
			}
			for i := 0; i <= 100; i++ {
				x := float64(i) / 100
				if y := curve.Apply(x); y < 0 || y > 1 {
					t.Errorf("t=%g b=%g: curve(%g)=%g out of range", target, boost, x, y)
				}
			}
		}
	}
}

func TestToneCurveMonotonic(t *testing.T) {
	const steps = 1000
	for ti := 1; ti <= 99; ti++ {
		target := float64(ti) / 100
		for _, boost := range []float64{0, 0.05, 0.1, 0.15, 0.2, 0.25, 0.3} {
			curve, err := ToneCurve(target, boost)
			if err != nil {
				t.Fatalf("t=%g b=%g: %v", target, boost, err)
			}
			prev := curve.Apply(0)
			for i := 1; i <= steps; i++ {
				x := float64(i) / steps
				y := curve.Apply(x)
				if y < prev-1e-12 {
					t.Errorf("t=%g b=%g: curve decreases from %g to %g at x=%g", target, boost, prev, y, x)
					break
				}
				prev = y
			}
		}
	}
}

func TestToneCurveWithoutBoostIsIdentity(t *testing.T) {
	curve, err := ToneCurve(0.25, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range []float64{0.05, 0.2, 0.4, 0.6, 0.95} {
		if res := curve.Apply(x); math.Abs(res-x) > 1e-12 {
			t.Errorf("curve(%g)=%g", x, res)
		}
	}
}

func TestToneCurveErrors(t *testing.T) {
	if _, err := ToneCurve(0, 0.1); !IsInputError(err) {
		t.Errorf("t=0: expected InputError, got %v", err)
	}
	if _, err := ToneCurve(0.25, 0.5); !IsInputError(err) {
		t.Errorf("b=0.5: expected InputError, got %v", err)
	}
	if err := ApplyToneCurve(&img.Image{}, 0.25, 0.1); !IsInputError(err) {
		t.Errorf("empty image: expected InputError, got %v", err)
	}
}
