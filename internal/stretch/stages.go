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
	"github.com/dcinzona/setiastro-pixinsight/internal/img"
	"github.com/dcinzona/setiastro-pixinsight/internal/pixmath"
	"github.com/dcinzona/setiastro-pixinsight/internal/stats"
)

// Moves the sigma-clipped black point of the image to zero with x -> (x-bp)/(1-bp),
// clamping results to [0,1]. Operates in-place. Returns the black point and the statistics it was derived from
func RescaleBlackPoint(f *img.Image, est stats.Estimator) (blackPoint float64, s *stats.Stats, err error) {
	s, _, err = Statistics(f, est)
	if err != nil {
		return 0, nil, err
	}
	blackPoint = stats.BlackPoint(s)
	if !(blackPoint < 1) {
		return blackPoint, s, newDomainError("black point", "black point %.6g not below 1", blackPoint)
	}
	f.Apply(pixmath.Sequence{pixmath.Subtract{Value: blackPoint}, pixmath.Divide{Value: 1 - blackPoint}, pixmath.Truncate})
	return blackPoint, s, nil
}

// Solves for the exponent which moves the current median to the target, and applies the
// stretch with it to all samples. Operates in-place. Returns the exponent and the statistics it was solved from
func StretchToMedian(f *img.Image, targetMedian float64, truncate bool, est stats.Estimator) (l float64, s *stats.Stats, err error) {
	s, _, err = Statistics(f, est)
	if err != nil {
		return 0, nil, err
	}
	l, err = SolveExponent(s.Median, targetMedian)
	if err != nil {
		return 0, s, err
	}
	if truncate {
		f.Apply(pixmath.Sequence{NewFunction(l), pixmath.Truncate})
	} else {
		f.Apply(NewFunction(l))
	}
	return l, s, nil
}

// Divides all samples by the maximum across all channels, so the brightest sample becomes 1.
// Leaves images with a maximum of 1 or a non-positive maximum unchanged. Returns the maximum found
func Normalize(f *img.Image) float64 {
	max := f.Max()
	if !(max > 0) || max == 1 {
		return max
	}
	f.Apply(pixmath.Divide{Value: max})
	return max
}
