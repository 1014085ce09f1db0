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
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"

	"golang.org/x/image/tiff"
)

// Read a color or grayscale TIFF image with 8 or 16 bits per sample. Samples are scaled to [0,1].
// The dimensions are checked before pixel data is decoded
func ReadTIFF(reader io.Reader) (*Image, error) {
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	width, height, channels, err := ReadTIFFConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if err = CheckDimensions(width, height, channels); err != nil {
		return nil, err
	}
	t, err := tiff.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return NewImageFromGoImage(t)
}

// Reads the dimensions and channel count of a TIFF image without decoding its pixels
func ReadTIFFConfig(reader io.Reader) (width, height, channels int, err error) {
	cfg, err := tiff.DecodeConfig(reader)
	if err != nil {
		return 0, 0, 0, err
	}
	return cfg.Width, cfg.Height, colorModelToChannels(cfg.ColorModel), nil
}

// Converts a golang image into an image with samples scaled to [0,1]
func NewImageFromGoImage(t image.Image) (*Image, error) {
	// determine width, height and number of color channels
	bounds := t.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, errors.New(fmt.Sprintf("empty image with dimensions %dx%d", width, height))
	}
	channels := colorModelToChannels(t.ColorModel())

	naxisn := []int32{int32(width), int32(height), int32(channels)}
	if channels == 1 {
		naxisn = naxisn[:2]
	}
	f := NewImageFromNaxisn(naxisn, nil)
	size := width * height

	// read and convert pixels
	const scale = 1.0 / 65535.0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pos := y*width + x
			if channels == 1 {
				c := color.Gray16Model.Convert(t.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
				f.Data[pos] = float64(c.Y) * scale
			} else {
				c := color.RGBA64Model.Convert(t.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.RGBA64)
				f.Data[pos] = float64(c.R) * scale
				f.Data[pos+size] = float64(c.G) * scale
				f.Data[pos+2*size] = float64(c.B) * scale
			}
		}
	}
	return f, nil
}

func colorModelToChannels(m color.Model) int {
	switch m {
	case color.AlphaModel, color.Alpha16Model, color.GrayModel, color.Gray16Model:
		return 1
	default:
		return 3
	}
}

// converts a sample into a 16-bit value. NaNs and negatives map to zero, else TIFF output breaks
func toUint16(v float64) uint16 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 65535
	}
	return uint16(v*65535 + 0.5)
}

// Converts the image to a 16-bit golang image, clamping samples to [0,1]
func (f *Image) ToImage() (image.Image, error) {
	width, height := int(f.Naxisn[0]), int(f.Naxisn[1])
	rect := image.Rect(0, 0, width, height)
	switch f.Channels() {
	case 1:
		gray := image.NewGray16(rect)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				gray.SetGray16(x, y, color.Gray16{toUint16(f.Data[y*width+x])})
			}
		}
		return gray, nil
	case 3:
		size := width * height
		rgb := image.NewRGBA64(rect)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				pos := y*width + x
				rgb.SetRGBA64(x, y, color.RGBA64{
					toUint16(f.Data[pos]), toUint16(f.Data[pos+size]), toUint16(f.Data[pos+2*size]), 65535,
				})
			}
		}
		return rgb, nil
	default:
		return nil, errors.New(fmt.Sprintf("%d: Unable to convert %s pixel image", f.ID, f.DimensionsToString()))
	}
}

// Write the image as uncompressed 16-bit TIFF
func (f *Image) WriteTIFF16(writer io.Writer) error {
	t, err := f.ToImage()
	if err != nil {
		return err
	}
	return tiff.Encode(writer, t, &tiff.Options{Compression: tiff.Uncompressed, Predictor: false})
}

// Write the image as 8-bit JPEG with the given quality
func (f *Image) WriteJPG(writer io.Writer, quality int) error {
	t, err := f.ToImage()
	if err != nil {
		return err
	}
	return jpeg.Encode(writer, t, &jpeg.Options{Quality: quality})
}
