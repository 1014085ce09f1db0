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
	"errors"
	"fmt"
)

// Combine three single channel images into one color image, in the given order.
// All images must have the same dimensions
func NewRGBFromChannels(chans []*Image) (*Image, error) {
	if len(chans) != 3 {
		return nil, errors.New(fmt.Sprintf("need exactly three channels, got %d", len(chans)))
	}
	for i, ch := range chans {
		if ch.IsEmpty() || ch.Channels() != 1 {
			return nil, errors.New(fmt.Sprintf("channel %d is not a mono image", i))
		}
		if !EqualInt32Slice(ch.Naxisn, chans[0].Naxisn) {
			return nil, errors.New(fmt.Sprintf("channel %d has dimensions %s, expected %s",
				i, ch.DimensionsToString(), chans[0].DimensionsToString()))
		}
	}

	naxisn := make([]int32, len(chans[0].Naxisn)+1)
	copy(naxisn, chans[0].Naxisn)
	naxisn[len(chans[0].Naxisn)] = int32(len(chans))

	rgb := NewImageFromNaxisn(naxisn, nil)
	rgb.ID = chans[0].ID
	for id, ch := range chans {
		copy(rgb.Channel(id), ch.Data)
	}
	return rgb, nil
}

// Creates a new mono image as the weighted sum of the given mono images, sample by sample.
// All images must have the same dimensions
func NewImageWeightedSum(weights []float64, imgs []*Image) (*Image, error) {
	if len(weights) != len(imgs) || len(imgs) == 0 {
		return nil, errors.New(fmt.Sprintf("got %d weights for %d images", len(weights), len(imgs)))
	}
	for i, f := range imgs {
		if f.IsEmpty() || f.Channels() != 1 {
			return nil, errors.New(fmt.Sprintf("input %d is not a mono image", i))
		}
		if !EqualInt32Slice(f.Naxisn, imgs[0].Naxisn) {
			return nil, errors.New(fmt.Sprintf("input %d has dimensions %s, expected %s",
				i, f.DimensionsToString(), imgs[0].DimensionsToString()))
		}
	}

	sum := NewImageFromNaxisn(imgs[0].Naxisn, nil)
	sum.ID = imgs[0].ID
	data := sum.Data
	parallelBatches(len(data), func(lower, upper int) {
		for k, f := range imgs {
			w, src := weights[k], f.Data
			for i := lower; i < upper; i++ {
				data[i] += w * src[i]
			}
		}
	})
	return sum, nil
}
