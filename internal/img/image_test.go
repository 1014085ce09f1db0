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

	"github.com/dcinzona/setiastro-pixinsight/internal/pixmath"
)

func TestNewImageFromData(t *testing.T) {
	cases := []struct {
		w, h, c int32
		n       int
		ok      bool
	}{
		{2, 2, 1, 4, true},
		{2, 2, 3, 12, true},
		{2, 2, 3, 4, false},
		{2, 2, 2, 8, false},
		{0, 2, 1, 0, false},
	}
	for _, c := range cases {
		f, err := NewImageFromData(c.w, c.h, c.c, make([]float64, c.n))
		if (err == nil) != c.ok {
			t.Errorf("%dx%dx%d with %d samples: got err %v", c.w, c.h, c.c, c.n, err)
			continue
		}
		if err == nil && f.Channels() != int(c.c) {
			t.Errorf("%dx%dx%d: got %d channels", c.w, c.h, c.c, f.Channels())
		}
	}
}

func TestCopyDoesNotAlias(t *testing.T) {
	f := NewImageFromNaxisn([]int32{2, 1}, []float64{0.25, 0.5})
	c := f.Copy()
	c.Data[0] = 1
	c.Naxisn[0] = 7
	if f.Data[0] != 0.25 || f.Naxisn[0] != 2 {
		t.Errorf("copy shares state with original")
	}
}

func TestBinNxN(t *testing.T) {
	// 4x2 color image, channel c holds values (c+1)*(x+1)
	f := NewImageFromNaxisn([]int32{4, 2, 3}, nil)
	for c := 0; c < 3; c++ {
		ch := f.Channel(c)
		for y := 0; y < 2; y++ {
			for x := 0; x < 4; x++ {
				ch[y*4+x] = float64((c + 1) * (x + 1))
			}
		}
	}
	b := NewImageBinNxN(f, 2)
	if !EqualInt32Slice(b.Naxisn, []int32{2, 1, 3}) {
		t.Fatalf("binned dimensions %s", b.DimensionsToString())
	}
	for c := 0; c < 3; c++ {
		ch := b.Channel(c)
		expect := []float64{1.5 * float64(c+1), 3.5 * float64(c+1)}
		for i := range expect {
			if math.Abs(ch[i]-expect[i]) > 1e-12 {
				t.Errorf("channel %d pixel %d got %g expect %g", c, i, ch[i], expect[i])
			}
		}
	}
	if f.Data[0] != 1 {
		t.Errorf("binning modified its source")
	}

	// factors larger than the image fall back to the smaller dimension
	b = NewImageBinNxN(f, 16)
	if !EqualInt32Slice(b.Naxisn, []int32{2, 1, 3}) {
		t.Errorf("oversized binning gave %s", b.DimensionsToString())
	}
}

func TestApplyAndMax(t *testing.T) {
	f := NewImageFromNaxisn([]int32{1000, 3}, nil)
	for i := range f.Data {
		f.Data[i] = float64(i) / float64(len(f.Data))
	}
	f.Data[17] = 2
	f.Apply(pixmath.Truncate)
	if max := f.Max(); max != 1 {
		t.Errorf("max after truncate got %g", max)
	}
	f.Apply(pixmath.Multiply{Value: 2})
	for i, d := range f.Data {
		if i != 17 && math.Abs(d-2*float64(i)/float64(len(f.Data))) > 1e-12 {
			t.Errorf("sample %d got %g", i, d)
			break
		}
	}
}

func TestApplyToChannel(t *testing.T) {
	f := NewImageFromNaxisn([]int32{3, 3, 3}, nil)
	for i := range f.Data {
		f.Data[i] = 0.5
	}
	f.ApplyToChannel(1, pixmath.Subtract{Value: 0.5})
	for c := 0; c < 3; c++ {
		expect := 0.5
		if c == 1 {
			expect = 0
		}
		for _, d := range f.Channel(c) {
			if d != expect {
				t.Errorf("channel %d got %g expect %g", c, d, expect)
				break
			}
		}
	}
}
