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
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"testing"
)

func TestFITSRoundTrip(t *testing.T) {
	for _, naxisn := range [][]int32{{4, 3}, {4, 3, 3}} {
		f := NewImageFromNaxisn(naxisn, nil)
		for i := range f.Data {
			f.Data[i] = float64(i) / float64(len(f.Data))
		}
		buf := bytes.Buffer{}
		if err := f.WriteFITS(&buf); err != nil {
			t.Fatal(err)
		}
		if buf.Len()%fitsBlockSize != 0 {
			t.Errorf("length %d not a multiple of the block size", buf.Len())
		}
		if !IsFITS(buf.Bytes()) {
			t.Errorf("written file not recognized as FITS")
		}
		g, h, err := ReadFITS(&buf)
		if err != nil {
			t.Fatal(err)
		}
		if h.Ints["BITPIX"] != -32 {
			t.Errorf("BITPIX %d", h.Ints["BITPIX"])
		}
		if !EqualInt32Slice(g.Naxisn, f.Naxisn) {
			t.Fatalf("read back %s, wrote %s", g.DimensionsToString(), f.DimensionsToString())
		}
		for i := range f.Data {
			if math.Abs(g.Data[i]-f.Data[i]) > 1e-7 {
				t.Errorf("sample %d read back %g, wrote %g", i, g.Data[i], f.Data[i])
			}
		}
	}
}

func fitsHeaderBlock(cards ...string) []byte {
	var b bytes.Buffer
	for _, c := range cards {
		fmt.Fprintf(&b, "%-80s", c)
	}
	fmt.Fprintf(&b, "%-80s", "END")
	b.Write(bytes.Repeat([]byte(" "), padToBlock(b.Len())))
	return b.Bytes()
}

func TestReadFITSUnsigned16(t *testing.T) {
	var b bytes.Buffer
	b.Write(fitsHeaderBlock(
		"SIMPLE  =                    T / conforms",
		"BITPIX  =                   16",
		"NAXIS   =                    2",
		"NAXIS1  =                    2",
		"NAXIS2  =                    1",
		"BZERO   =              32768.0",
		"HISTORY written by a test",
	))
	binary.Write(&b, binary.BigEndian, []int16{-32768, 32767})

	f, h, err := ReadFITS(&b)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.History) != 1 || h.History[0] != "written by a test" {
		t.Errorf("history %q", h.History)
	}
	if f.Data[0] != 0 || f.Data[1] != 1 {
		t.Errorf("got %v, want [0 1]", f.Data)
	}
}

func TestReadFITSFloatRescaled(t *testing.T) {
	var b bytes.Buffer
	b.Write(fitsHeaderBlock(
		"SIMPLE  =                    T",
		"BITPIX  =                  -32",
		"NAXIS   =                    2",
		"NAXIS1  =                    2",
		"NAXIS2  =                    1",
	))
	binary.Write(&b, binary.BigEndian, []float32{500, 1000})

	f, _, err := ReadFITS(&b)
	if err != nil {
		t.Fatal(err)
	}
	if f.Data[0] != 0.5 || f.Data[1] != 1 {
		t.Errorf("got %v, want [0.5 1]", f.Data)
	}
}

func TestReadFITSErrors(t *testing.T) {
	cases := [][]string{
		{"SIMPLE  =                    F", "BITPIX  =                   16", "NAXIS   =                    2", "NAXIS1  =                    1", "NAXIS2  =                    1"},
		{"SIMPLE  =                    T", "BITPIX  =                   16", "NAXIS   =                    1", "NAXIS1  =                    1"},
		{"SIMPLE  =                    T", "BITPIX  =                   16", "NAXIS   =                    3", "NAXIS1  =                    1", "NAXIS2  =                    1", "NAXIS3  =                    2"},
		{"SIMPLE  =                    T", "BITPIX  =                   12", "NAXIS   =                    2", "NAXIS1  =                    1", "NAXIS2  =                    1"},
	}
	for i, cards := range cases {
		data := append(fitsHeaderBlock(cards...), make([]byte, fitsBlockSize)...)
		if _, _, err := ReadFITS(bytes.NewReader(data)); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
	if _, _, err := ReadFITS(bytes.NewReader([]byte("SIMPLE"))); err == nil {
		t.Errorf("truncated header: expected error")
	}
}

func TestReadFITSRejectsOversized(t *testing.T) {
	for _, side := range []string{"200000", "3100000000", "65537"} {
		data := fitsHeaderBlock(
			"SIMPLE  =                    T",
			"BITPIX  =                  -64",
			"NAXIS   =                    2",
			"NAXIS1  = "+fmt.Sprintf("%20s", side),
			"NAXIS2  = "+fmt.Sprintf("%20s", side),
		)
		if _, _, err := ReadFITS(bytes.NewReader(data)); err == nil {
			t.Errorf("NAXISn=%s: expected error", side)
		}
		h, err := ReadFITSHeader(bytes.NewReader(data))
		if err != nil {
			t.Fatal(err)
		}
		if _, _, _, err := h.Dimensions(); err == nil {
			t.Errorf("NAXISn=%s: Dimensions accepted", side)
		}
	}
}

func TestCheckDimensions(t *testing.T) {
	cases := []struct {
		w, h, c int
		ok      bool
	}{
		{1, 1, 1, true},
		{MaxImageSide, 1, 3, true},
		{40000, 40000, 1, true},
		{40000, 40000, 3, false}, // sample count exceeds int32
		{MaxImageSide + 1, 1, 1, false},
		{0, 5, 1, false},
		{5, -1, 1, false},
		{5, 5, 2, false},
	}
	for _, tc := range cases {
		err := CheckDimensions(tc.w, tc.h, tc.c)
		if (err == nil) != tc.ok {
			t.Errorf("CheckDimensions(%d,%d,%d) = %v, want ok=%v", tc.w, tc.h, tc.c, err, tc.ok)
		}
	}
	if mb := RequiredMB(1024, 1024, 1); mb != 8 {
		t.Errorf("RequiredMB(1024,1024,1) = %d, want 8", mb)
	}
	if mb := RequiredMB(1, 1, 1); mb != 1 {
		t.Errorf("RequiredMB(1,1,1) = %d, want 1", mb)
	}
}
