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

func TestNewRGBFromChannels(t *testing.T) {
	r := NewImageFromNaxisn([]int32{2, 1}, []float64{0.1, 0.2})
	g := NewImageFromNaxisn([]int32{2, 1}, []float64{0.3, 0.4})
	b := NewImageFromNaxisn([]int32{2, 1}, []float64{0.5, 0.6})
	rgb, err := NewRGBFromChannels([]*Image{r, g, b})
	if err != nil {
		t.Fatal(err)
	}
	if !rgb.IsColor() || rgb.Channel(1)[1] != 0.4 || rgb.Channel(2)[0] != 0.5 {
		t.Errorf("got %s image with data %v", rgb.DimensionsToString(), rgb.Data)
	}

	odd := NewImageFromNaxisn([]int32{1, 2}, []float64{0.5, 0.6})
	if _, err := NewRGBFromChannels([]*Image{r, g, odd}); err == nil {
		t.Errorf("expected error for mismatched dimensions")
	}
	if _, err := NewRGBFromChannels([]*Image{r, g}); err == nil {
		t.Errorf("expected error for two channels")
	}
}

func TestNewImageWeightedSum(t *testing.T) {
	ha := NewImageFromNaxisn([]int32{2, 1}, []float64{0.2, 0.8})
	oiii := NewImageFromNaxisn([]int32{2, 1}, []float64{0.6, 0.0})
	sum, err := NewImageWeightedSum([]float64{0.3, 0.7}, []*Image{ha, oiii})
	if err != nil {
		t.Fatal(err)
	}
	expect := []float64{0.3*0.2 + 0.7*0.6, 0.3 * 0.8}
	for i, e := range expect {
		if math.Abs(sum.Data[i]-e) > 1e-12 {
			t.Errorf("pixel %d got %g expect %g", i, sum.Data[i], e)
		}
	}
	if _, err := NewImageWeightedSum([]float64{1}, []*Image{ha, oiii}); err == nil {
		t.Errorf("expected error for weight count mismatch")
	}
}
