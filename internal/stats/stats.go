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

// Package stats estimates robust sample statistics for the stretch engine.
package stats

import (
	"errors"
	"fmt"
	"math"

	"github.com/dcinzona/setiastro-pixinsight/internal/qsort"
	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/stat"
)

// Multiple of the standard deviation below the median where the black point is placed
const BlackPointSigma = 2.7

// Statistics of one channel, or the aggregate across channels of a color image
type Stats struct {
	Min    float64 `json:"min"`    // Minimum
	Max    float64 `json:"max"`    // Maximum
	Mean   float64 `json:"mean"`   // Mean (average)
	StdDev float64 `json:"stdDev"` // Standard deviation (sigma)
	Median float64 `json:"median"` // Median
}

// Pretty print stats to string
func (s *Stats) String() string {
	return fmt.Sprintf("Min %.6g Max %.6g Mean %.6g StdDev %.6g Median %.6g",
		s.Min, s.Max, s.Mean, s.StdDev, s.Median)
}

// Error returned for empty sample data
var ErrNoData = errors.New("no samples")

// An estimator computes statistics over one channel of sample data. Must not modify the data
type Estimator interface {
	Estimate(data []float64) (*Stats, error)
}

// Exact statistics over all samples
type Exact struct{}

func (Exact) Estimate(data []float64) (*Stats, error) {
	if len(data) == 0 {
		return nil, ErrNoData
	}
	s := &Stats{}
	s.Min, s.Max = minMax(data)
	s.Mean, s.StdDev = meanStdDev(data)

	tmp := append([]float64(nil), data...)
	s.Median = qsort.QSelectMedianFloat64(tmp)
	return s, nil
}

func (Exact) String() string { return "exact" }

// Approximate statistics from a random subsample of the given size. Minimum and maximum
// are always exact. Falls back to exact statistics for data not larger than the sample
type Sampled struct {
	Samples int
}

// Default sample size for previews
const DefaultSamples = 128 * 1024

func (e Sampled) Estimate(data []float64) (*Stats, error) {
	if len(data) == 0 {
		return nil, ErrNoData
	}
	numSamples := e.Samples
	if numSamples <= 0 {
		numSamples = DefaultSamples
	}
	if len(data) <= numSamples {
		return Exact{}.Estimate(data)
	}

	s := &Stats{}
	s.Min, s.Max = minMax(data)

	samples := make([]float64, numSamples)
	max := uint32(len(data))
	rng := fastrand.RNG{}
	for i := range samples {
		samples[i] = data[rng.Uint32n(max)]
	}
	s.Mean, s.StdDev = meanStdDev(samples)
	s.Median = qsort.QSelectMedianFloat64(samples)
	return s, nil
}

func (e Sampled) String() string { return fmt.Sprintf("sampled(%d)", e.Samples) }

func minMax(data []float64) (min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, d := range data {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return min, max
}

// Mean and unbiased standard deviation. Standard deviation is zero for less than two samples
func meanStdDev(data []float64) (mean, stdDev float64) {
	if len(data) < 2 {
		return data[0], 0
	}
	return stat.MeanStdDev(data, nil)
}

// Aggregates per-channel statistics of a color image into a single set:
// median, mean and standard deviation are averaged over the channels, minimum
// and maximum are taken across channels
func Aggregate(chans []*Stats) *Stats {
	if len(chans) == 0 {
		return nil
	}
	if len(chans) == 1 {
		s := *chans[0]
		return &s
	}
	s := &Stats{Min: chans[0].Min, Max: chans[0].Max}
	for _, c := range chans {
		s.Median += c.Median
		s.Mean += c.Mean
		s.StdDev += c.StdDev
		if c.Min < s.Min {
			s.Min = c.Min
		}
		if c.Max > s.Max {
			s.Max = c.Max
		}
	}
	n := float64(len(chans))
	s.Median /= n
	s.Mean /= n
	s.StdDev /= n
	return s
}

// Returns the sigma-clipped black point max(median - 2.7*stdDev, min)
func BlackPoint(s *Stats) float64 {
	return math.Max(s.Median-BlackPointSigma*s.StdDev, s.Min)
}
