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
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const fitsBlockSize = 2880   // FITS files are organized in blocks of this many bytes
const fitsHeaderLineSize = 80 // Header units consist of lines of this many characters

var reFITSLine = compileFITSLineRE() // Parser for FITS header lines

// Header of a FITS primary HDU, split by value type
type FITSHeader struct {
	Bools    map[string]bool
	Ints     map[string]int64
	Floats   map[string]float64
	Strings  map[string]string
	History  []string
	Comments []string
	End      bool
}

func newFITSHeader() *FITSHeader {
	return &FITSHeader{
		Bools:   map[string]bool{},
		Ints:    map[string]int64{},
		Floats:  map[string]float64{},
		Strings: map[string]string{},
	}
}

// Returns the value of a numeric key, accepting both integer and float notation
func (h *FITSHeader) Number(key string) (float64, bool) {
	if v, ok := h.Ints[key]; ok {
		return float64(v), true
	}
	v, ok := h.Floats[key]
	return v, ok
}

// Returns the image dimensions described by the header. Accepts 2D mono and 3D images with 1 or 3 planes
func (h *FITSHeader) Dimensions() (width, height, channels int, err error) {
	if !h.Bools["SIMPLE"] {
		return 0, 0, 0, errors.New("not a valid FITS file; SIMPLE=T missing in header")
	}
	naxis, ok := h.Ints["NAXIS"]
	if !ok || naxis < 2 || naxis > 3 {
		return 0, 0, 0, errors.New(fmt.Sprintf("unsupported NAXIS %d, need 2 or 3", naxis))
	}
	dims := []int{1, 1, 1}
	for i := int64(1); i <= naxis; i++ {
		v, ok := h.Ints["NAXIS"+strconv.FormatInt(i, 10)]
		if !ok || v <= 0 {
			return 0, 0, 0, errors.New(fmt.Sprintf("missing or invalid NAXIS%d", i))
		}
		if v > MaxImageSide {
			return 0, 0, 0, errors.New(fmt.Sprintf("NAXIS%d=%d exceeds the maximum of %d", i, v, MaxImageSide))
		}
		dims[i-1] = int(v)
	}
	if dims[2] != 1 && dims[2] != 3 {
		return 0, 0, 0, errors.New(fmt.Sprintf("unsupported number of planes %d", dims[2]))
	}
	if err := CheckDimensions(dims[0], dims[1], dims[2]); err != nil {
		return 0, 0, 0, err
	}
	return dims[0], dims[1], dims[2], nil
}

// Reads the primary header of a FITS file, leaving the reader positioned at the start of the data unit
func ReadFITSHeader(r io.Reader) (*FITSHeader, error) {
	h := newFITSHeader()
	buf := make([]byte, fitsBlockSize)
	for !h.End {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errors.New(fmt.Sprintf("reading FITS header: %s", err.Error()))
		}
		for lineNo := 0; lineNo < fitsBlockSize/fitsHeaderLineSize && !h.End; lineNo++ {
			line := buf[lineNo*fitsHeaderLineSize : (lineNo+1)*fitsHeaderLineSize]
			if sub := reFITSLine.FindSubmatch(line); sub != nil {
				h.parseLine(sub)
			}
		}
	}
	return h, nil
}

func (h *FITSHeader) parseLine(sub [][]byte) {
	key := ""
	for i, name := range reFITSLine.SubexpNames() {
		if i == 0 || sub[i] == nil || len(name) != 1 {
			continue
		}
		val := string(sub[i])
		switch name[0] {
		case 'E':
			h.End = true
		case 'H':
			h.History = append(h.History, strings.TrimRight(val, " "))
		case 'C':
			h.Comments = append(h.Comments, strings.TrimRight(val, " "))
		case 'k':
			key = val
		case 'b':
			h.Bools[key] = val == "T"
		case 'i':
			if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				h.Ints[key] = v
			}
		case 'f':
			if v, err := strconv.ParseFloat(strings.Replace(val, "D", "E", 1), 64); err == nil {
				h.Floats[key] = v
			}
		case 's':
			h.Strings[key] = strings.TrimRight(val, " ")
		}
	}
}

func compileFITSLineRE() *regexp.Regexp {
	white, whiteOpt := `\s+`, `\s*`
	histLine := `HISTORY` + white + `(?P<H>.*)`
	commLine := `COMMENT` + white + `(?P<C>.*)`
	endLine := `(?P<E>END)` + whiteOpt

	key := `(?P<k>[A-Z0-9_-]+)`
	boo := `(?P<b>[TF])`
	inte := `(?P<i>[+-]?[0-9]+)`
	floa := `(?P<f>[+-]?[0-9]*\.[0-9]*(?:[ED][-+]?[0-9]+)?)`
	stri := `'(?P<s>[^']*)'`
	val := `(?:` + boo + `|` + inte + `|` + floa + `|` + stri + `)`
	keyLine := key + whiteOpt + `=` + whiteOpt + val + whiteOpt + `(?:/.*)?`

	return regexp.MustCompile(`^(?:` + white + `|` + histLine + `|` + commLine + `|` + keyLine + `|` + endLine + `)$`)
}

// Returns true if the given bytes start like a FITS primary header
func IsFITS(prefix []byte) bool {
	return bytes.HasPrefix(prefix, []byte("SIMPLE  ="))
}

// Reads a 2D or 3D FITS image. Integer samples are scaled to [0,1] by the range of their type.
// Float samples are kept if they fit [0,1], otherwise rescaled by their maximum. Returns the parsed header
func ReadFITS(reader io.Reader) (*Image, *FITSHeader, error) {
	r := bufio.NewReader(reader)
	h, err := ReadFITSHeader(r)
	if err != nil {
		return nil, nil, err
	}
	width, height, channels, err := h.Dimensions()
	if err != nil {
		return nil, nil, err
	}
	bitpix := h.Ints["BITPIX"]
	bzero, ok := h.Number("BZERO")
	if !ok {
		bzero = 0
	}
	bscale, ok := h.Number("BSCALE")
	if !ok {
		bscale = 1
	}

	switch bitpix {
	case 8, 16, 32, -32, -64:
	default:
		return nil, nil, errors.New(fmt.Sprintf("unsupported BITPIX value %d", bitpix))
	}

	n := width * height * channels
	data := make([]float64, n)
	var norm float64
	switch bitpix {
	case 8:
		raw := make([]uint8, n)
		err = binary.Read(r, binary.BigEndian, raw)
		for i, v := range raw {
			data[i] = float64(v)*bscale + bzero
		}
		norm = math.MaxUint8
	case 16:
		raw := make([]int16, n)
		err = binary.Read(r, binary.BigEndian, raw)
		for i, v := range raw {
			data[i] = float64(v)*bscale + bzero
		}
		norm = integerRange(16, bzero)
	case 32:
		raw := make([]int32, n)
		err = binary.Read(r, binary.BigEndian, raw)
		for i, v := range raw {
			data[i] = float64(v)*bscale + bzero
		}
		norm = integerRange(32, bzero)
	case -32:
		raw := make([]float32, n)
		err = binary.Read(r, binary.BigEndian, raw)
		for i, v := range raw {
			data[i] = float64(v)*bscale + bzero
		}
	case -64:
		err = binary.Read(r, binary.BigEndian, data)
		for i, v := range data {
			data[i] = v*bscale + bzero
		}
	}
	if err != nil {
		return nil, nil, errors.New(fmt.Sprintf("reading FITS data: %s", err.Error()))
	}

	if norm == 0 {
		max := 0.0
		for _, v := range data {
			if v > max {
				max = v
			}
		}
		if max > 1 {
			norm = max
		} else {
			norm = 1
		}
	}
	for i, v := range data {
		data[i] = math.Max(0, math.Min(1, v/norm))
	}

	f, err := NewImageFromData(int32(width), int32(height), int32(channels), data)
	return f, h, err
}

// Largest value of an integer sample type with the given bit count, treating the conventional BZERO offset as unsigned
func integerRange(bits uint, bzero float64) float64 {
	if bzero == math.Ldexp(1, int(bits)-1) {
		return math.Ldexp(1, int(bits)) - 1
	}
	return math.Ldexp(1, int(bits)-1) - 1
}

// Writes the image as FITS with 32-bit float samples
func (f *Image) WriteFITS(writer io.Writer) error {
	var hdr bytes.Buffer
	line := func(key, val string) {
		fmt.Fprintf(&hdr, "%-8s= %20s%-50s", key, val, "")
	}
	line("SIMPLE", "T")
	line("BITPIX", "-32")
	line("NAXIS", strconv.Itoa(len(f.Naxisn)))
	for i, n := range f.Naxisn {
		line("NAXIS"+strconv.Itoa(i+1), strconv.Itoa(int(n)))
	}
	line("BZERO", "0.0")
	line("BSCALE", "1.0")
	fmt.Fprintf(&hdr, "%-80s", "END")
	hdr.Write(bytes.Repeat([]byte(" "), padToBlock(hdr.Len())))
	if _, err := writer.Write(hdr.Bytes()); err != nil {
		return err
	}

	w := bufio.NewWriter(writer)
	raw := make([]float32, len(f.Data))
	for i, v := range f.Data {
		raw[i] = float32(v)
	}
	if err := binary.Write(w, binary.BigEndian, raw); err != nil {
		return err
	}
	if _, err := w.Write(make([]byte, padToBlock(4*len(raw)))); err != nil {
		return err
	}
	return w.Flush()
}

func padToBlock(n int) int {
	if rem := n % fitsBlockSize; rem != 0 {
		return fitsBlockSize - rem
	}
	return 0
}
