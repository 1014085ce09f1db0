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
	"runtime"

	"github.com/dcinzona/setiastro-pixinsight/internal/pixmath"
	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/interp"
)

// A three-channel pixel function. Operates in-place on equally long channel slices
type PixelFunction3Chan func(c0, c1, c2 []float64)

// Splits data into 8*NumCPU() batches and applies the function to each, limiting parallelism to NumCPU()
func parallelBatches(n int, f func(lower, upper int)) {
	numCPU := runtime.NumCPU()
	numBatches := 8 * numCPU
	batchSize := (n + numBatches - 1) / numBatches
	if batchSize < 1 {
		batchSize = 1
	}
	var g errgroup.Group
	g.SetLimit(numCPU)
	for lower := 0; lower < n; lower += batchSize {
		lower, upper := lower, lower+batchSize
		if upper > n {
			upper = n
		}
		g.Go(func() error {
			f(lower, upper)
			return nil
		})
	}
	g.Wait()
}

// Applies the given operation to all samples of the image. Uses thread parallelism across all available CPUs. Operates in-place
func (f *Image) Apply(op pixmath.Op) {
	data := f.Data
	parallelBatches(len(data), func(lower, upper int) {
		pixmath.ApplyTo(op, data[lower:upper])
	})
}

// Applies the given operation to all samples of the given channel. Operates in-place
func (f *Image) ApplyToChannel(chanID int, op pixmath.Op) {
	data := f.Channel(chanID)
	parallelBatches(len(data), func(lower, upper int) {
		pixmath.ApplyTo(op, data[lower:upper])
	})
}

// Applies the given function to all three channels of a color image. Operates in-place
func (f *Image) ApplyPixelFunction3Chan(pf PixelFunction3Chan) {
	data := f.Data
	l := len(data) / 3
	parallelBatches(l, func(lower, upper int) {
		pf(data[lower:upper], data[lower+l:upper+l], data[lower+2*l:upper+2*l])
	})
}

// default white, unfortunately defined as private in package colorful
var hSLuvD65 = [3]float64{0.95045592705167, 1.0, 1.089057750759878}

// convert HSLuv to linear RGB; with color-preserving clamping to [0,1]
func HSLuvToLinearRGB(h, s, l float64) (r, g, b float64) {
	// HSLuv -> LuvLCh -> CIELUV -> CIEXYZ -> Linear RGB
	ll, u, v := colorful.LuvLChToLuv(colorful.HSLuvToLuvLCh(h, s, l))
	r, g, b = colorful.XyzToLinearRgb(colorful.LuvToXyzWhiteRef(ll, u, v, hSLuvD65))
	return clampColor(r, g, b)
}

// color-preserving clamping, instead of default lightness-preserving
func clampColor(r, g, b float64) (float64, float64, float64) {
	r, g, b = math.Max(r, 0), math.Max(g, 0), math.Max(b, 0)
	max := math.Max(math.Max(r, g), b)
	if max > 1 {
		r /= max
		g /= max
		b /= max
	}
	return r, g, b
}

// Subtractive chroma noise reduction on the green channel, average neutral method.
// Mixes the corrected green with the original by amount, and restores the original HSLuv lightness
func pf3ChanSCNR(amount float64) PixelFunction3Chan {
	return func(rs, gs, bs []float64) {
		for i := range rs {
			r, g, b := rs[i], gs[i], bs[i]
			correctedG := math.Min(g, 0.5*(r+b)) // average neutral SCNR
			if correctedG == g {
				continue
			}
			weightedG := amount*correctedG + (1-amount)*g

			// reassemble with luminance protection
			_, _, l := colorful.LinearRgb(r, g, b).HSLuv()
			h, s, _ := colorful.LinearRgb(r, weightedG, b).HSLuv()
			rs[i], gs[i], bs[i] = HSLuvToLinearRGB(h, s, l)
		}
	}
}

// Applies subtractive chroma noise reduction to the green channel, with lightness preservation.
// Amount in [0,1]. Data must be a color image normalized to [0,1]. Operates in-place
func (f *Image) SCNR(amount float64) {
	f.ApplyPixelFunction3Chan(pf3ChanSCNR(amount))
}

// Multiplies CIE HCL chroma with 1+curve(hue), with hue in [0,1) for 0..360 degrees
func pf3ChanSaturation(curve interp.Predictor) PixelFunction3Chan {
	return func(rs, gs, bs []float64) {
		for i := range rs {
			h, c, l := colorful.LinearRgb(rs[i], gs[i], bs[i]).Hcl()
			factor := 1 + curve.Predict(h/360)
			if factor < 0 {
				factor = 0
			}
			rs[i], gs[i], bs[i] = clampColor(colorful.Hcl(h, c*factor, l).LinearRgb())
		}
	}
}

// Boosts color saturation by a hue-dependent amount, interpolated from the given
// hue points in [0,1] with an Akima spline. Data must be a color image normalized to [0,1]. Operates in-place
func (f *Image) SaturationCurve(hues, amounts []float64) error {
	curve, err := pixmath.NewAkimaCurve("saturation", hues, amounts)
	if err != nil {
		return err
	}
	f.ApplyPixelFunction3Chan(pf3ChanSaturation(curve.Predictor))
	return nil
}
