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

package img

import (
	"math"
	"testing"
)

func newRGBPixel(r, g, b float64) *Image {
	return NewImageFromNaxisn([]int32{1, 1, 3}, []float64{r, g, b})
}

func TestSCNR(t *testing.T) {
	// neutral pixels are left alone
	f := newRGBPixel(0.3, 0.3, 0.3)
	f.SCNR(1)
	for c, d := range f.Data {
		if d != 0.3 {
			t.Errorf("neutral channel %d changed to %g", c, d)
		}
	}

	// pixels without green excess are left alone
	f = newRGBPixel(0.6, 0.2, 0.4)
	f.SCNR(1)
	if f.Data[0] != 0.6 || f.Data[1] != 0.2 || f.Data[2] != 0.4 {
		t.Errorf("magenta pixel changed to %v", f.Data)
	}

	// green excess is removed, lightness is kept
	f = newRGBPixel(0.2, 0.6, 0.2)
	f.SCNR(1)
	luminance := 0.2126*0.2 + 0.7152*0.6 + 0.0722*0.2
	for c, d := range f.Data {
		if math.Abs(d-luminance) > 1e-3 {
			t.Errorf("channel %d got %g expect %g", c, d, luminance)
		}
	}

	// partial amounts keep some green
	f = newRGBPixel(0.2, 0.6, 0.2)
	f.SCNR(0.5)
	if ratio := f.Data[1] / f.Data[0]; !(ratio > 1 && ratio < 3) {
		t.Errorf("half SCNR got %v", f.Data)
	}
}

func TestSaturationCurve(t *testing.T) {
	hues := []float64{0, 0.5, 1}
	amounts := []float64{0.4, 0.7, 0.4}

	f := newRGBPixel(0.5, 0.5, 0.5)
	if err := f.SaturationCurve(hues, amounts); err != nil {
		t.Fatal(err)
	}
	for c, d := range f.Data {
		if math.Abs(d-0.5) > 1e-6 {
			t.Errorf("gray channel %d changed to %g", c, d)
		}
	}

	f = newRGBPixel(0.6, 0.3, 0.2)
	if err := f.SaturationCurve(hues, amounts); err != nil {
		t.Fatal(err)
	}
	spread := math.Max(math.Max(f.Data[0], f.Data[1]), f.Data[2]) - math.Min(math.Min(f.Data[0], f.Data[1]), f.Data[2])
	if spread <= 0.4 {
		t.Errorf("saturation did not increase color spread, got %v", f.Data)
	}
	for c, d := range f.Data {
		if d < 0 || d > 1 {
			t.Errorf("channel %d out of range: %g", c, d)
		}
	}

	if err := f.SaturationCurve([]float64{0, 0}, []float64{1, 1}); err == nil {
		t.Errorf("expected error for degenerate curve")
	}
}
