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

// Package img holds the in-memory image buffer the stretch engine operates on.
package img

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// A mono or color image with float64 samples, normally in [0,1].
// Color channels are stored in planar order, channel c at Data[c*w*h:(c+1)*w*h]
type Image struct {
	ID       int       // Sequential ID number, for log output. Counted upwards from 0
	FileName string    // Original file name, if any, for log output
	Naxisn   []int32   // Axis dimensions: [width, height] for mono, [width, height, channels] for color
	Pixels   int32     // Total number of samples across all channels
	Data     []float64 // Sample data
}

// Largest supported width or height. Files declaring more are rejected before any buffer is allocated
const MaxImageSide = 1 << 16

// Checks that an image of the given dimensions is representable, with its sample count fitting into Pixels
func CheckDimensions(width, height, channels int) error {
	if width <= 0 || height <= 0 {
		return errors.New(fmt.Sprintf("invalid image dimensions %dx%d", width, height))
	}
	if width > MaxImageSide || height > MaxImageSide {
		return errors.New(fmt.Sprintf("image dimensions %dx%d exceed the maximum of %d per side", width, height, MaxImageSide))
	}
	if channels != 1 && channels != 3 {
		return errors.New(fmt.Sprintf("unsupported number of channels %d", channels))
	}
	if int64(width)*int64(height)*int64(channels) > math.MaxInt32 {
		return errors.New(fmt.Sprintf("image %dx%dx%d has too many samples", width, height, channels))
	}
	return nil
}

// Returns the MiB needed for the float64 samples of an image. Dimensions must have passed CheckDimensions
func RequiredMB(width, height, channels int) int64 {
	return (int64(width)*int64(height)*int64(channels)*8 + 1024*1024 - 1) / 1024 / 1024
}

// Creates an image with the given dimensions. Allocates a new buffer if data is nil
func NewImageFromNaxisn(naxisn []int32, data []float64) *Image {
	numPixels := int32(1)
	for _, naxis := range naxisn {
		numPixels *= naxis
	}
	if data == nil {
		data = make([]float64, numPixels)
	}
	return &Image{
		Naxisn: append([]int32(nil), naxisn...), // clone slice
		Pixels: numPixels,
		Data:   data,
	}
}

// Creates an image from host-provided sample data, checking the dimensions
func NewImageFromData(width, height, channels int32, data []float64) (*Image, error) {
	if err := CheckDimensions(int(width), int(height), int(channels)); err != nil {
		return nil, err
	}
	if int64(len(data)) != int64(width)*int64(height)*int64(channels) {
		return nil, errors.New(fmt.Sprintf("expected %d samples for %dx%dx%d, got %d",
			width*height*channels, width, height, channels, len(data)))
	}
	naxisn := []int32{width, height}
	if channels > 1 {
		naxisn = append(naxisn, channels)
	}
	return NewImageFromNaxisn(naxisn, data), nil
}

// Returns a deep copy of the image. The copy never shares the sample buffer
func (f *Image) Copy() *Image {
	c := NewImageFromNaxisn(f.Naxisn, nil)
	c.ID, c.FileName = f.ID, f.FileName
	copy(c.Data, f.Data)
	return c
}

// Returns the image width
func (f *Image) Width() int32 { return f.Naxisn[0] }

// Returns the image height
func (f *Image) Height() int32 { return f.Naxisn[1] }

// Returns the number of channels
func (f *Image) Channels() int {
	if len(f.Naxisn) < 3 {
		return 1
	}
	return int(f.Naxisn[2])
}

// Returns true if the image is a three-channel color image
func (f *Image) IsColor() bool {
	return f.Channels() == 3
}

// Returns true if the image has no samples
func (f *Image) IsEmpty() bool {
	return f == nil || len(f.Naxisn) < 2 || len(f.Data) == 0
}

// Returns the samples of the given channel. Writes go to the image
func (f *Image) Channel(chanID int) []float64 {
	l := len(f.Data) / f.Channels()
	return f.Data[chanID*l : (chanID+1)*l]
}

// Returns the maximum sample across all channels
func (f *Image) Max() float64 {
	max := f.Data[0]
	for _, d := range f.Data[1:] {
		if d > max {
			max = d
		}
	}
	return max
}

func (f *Image) DimensionsToString() string {
	b := strings.Builder{}
	for i, naxis := range f.Naxisn {
		if i > 0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	return b.String()
}

// Creates a new image by averaging NxN pixel blocks, independently per channel.
// Trailing rows and columns which do not fill a whole block are dropped
func NewImageBinNxN(src *Image, n int32) *Image {
	if n > src.Naxisn[0] {
		n = src.Naxisn[0]
	}
	if n > src.Naxisn[1] {
		n = src.Naxisn[1]
	}
	if n <= 1 {
		return src.Copy()
	}

	// calculate binned image size
	binnedNaxisn := append([]int32(nil), src.Naxisn...)
	binnedNaxisn[0], binnedNaxisn[1] = src.Naxisn[0]/n, src.Naxisn[1]/n

	binned := NewImageFromNaxisn(binnedNaxisn, nil)
	binned.ID, binned.FileName = src.ID, src.FileName

	normalizer := 1.0 / float64(n*n)
	for c := 0; c < src.Channels(); c++ {
		srcData, binnedData := src.Channel(c), binned.Channel(c)
		for y := int32(0); y < binnedNaxisn[1]; y++ {
			for x := int32(0); x < binnedNaxisn[0]; x++ {
				sum := 0.0
				for yoff := int32(0); yoff < n; yoff++ {
					origRow := (y*n + yoff) * src.Naxisn[0]
					for xoff := int32(0); xoff < n; xoff++ {
						sum += srcData[origRow+x*n+xoff]
					}
				}
				binnedData[y*binnedNaxisn[0]+x] = sum * normalizer
			}
		}
	}
	return binned
}

// Returns true if both slices hold the same dimensions
func EqualInt32Slice(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}
