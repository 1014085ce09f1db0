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

package stats

import (
	"math"
	"testing"

	"github.com/valyala/fastrand"
)

func TestExact(t *testing.T) {
	cases := []struct {
		data                       []float64
		min, max, mean, sd, median float64
	}{
		{[]float64{0.1}, 0.1, 0.1, 0.1, 0, 0.1},
		{[]float64{0.1, 0.1, 0.1, 0.1}, 0.1, 0.1, 0.1, 0, 0.1},
		{[]float64{0.4, 0.1, 0.3, 0.2}, 0.1, 0.4, 0.25, math.Sqrt(0.05 / 3), 0.25},
		{[]float64{1, 2, 3, 4, 100}, 1, 100, 22, math.Sqrt((21*21 + 20*20 + 19*19 + 18*18 + 78*78) / 4.0), 3},
	}
	for _, c := range cases {
		orig := append([]float64(nil), c.data...)
		s, err := Exact{}.Estimate(c.data)
		if err != nil {
			t.Fatal(err)
		}
		got := []float64{s.Min, s.Max, s.Mean, s.StdDev, s.Median}
		expect := []float64{c.min, c.max, c.mean, c.sd, c.median}
		for i := range got {
			if math.Abs(got[i]-expect[i]) > 1e-9 {
				t.Errorf("%v: got %v expect %v", orig, s, expect)
				break
			}
		}
		for i := range orig {
			if orig[i] != c.data[i] {
				t.Errorf("estimator reordered its input")
				break
			}
		}
	}

	if _, err := (Exact{}).Estimate(nil); err != ErrNoData {
		t.Errorf("expected ErrNoData, got %v", err)
	}
	if _, err := (Sampled{}).Estimate([]float64{}); err != ErrNoData {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}

func TestSampledCloseToExact(t *testing.T) {
	rng := fastrand.RNG{}
	data := make([]float64, 1000000)
	for i := range data {
		// sum of uniforms, roughly normal around 0.2
		data[i] = 0.1 + 0.05*(float64(rng.Uint32n(1000))+float64(rng.Uint32n(1000)))/1000
	}
	exact, err := Exact{}.Estimate(data)
	if err != nil {
		t.Fatal(err)
	}
	sampled, err := Sampled{Samples: 64 * 1024}.Estimate(data)
	if err != nil {
		t.Fatal(err)
	}
	if sampled.Min != exact.Min || sampled.Max != exact.Max {
		t.Errorf("sampled min/max differ: %v vs %v", sampled, exact)
	}
	if math.Abs(sampled.Median-exact.Median) > 0.002 || math.Abs(sampled.StdDev-exact.StdDev) > 0.002 {
		t.Errorf("sampled %v too far from exact %v", sampled, exact)
	}

	// small inputs are computed exactly
	small := []float64{0.3, 0.1, 0.2}
	s, _ := Sampled{Samples: 16}.Estimate(small)
	if s.Median != 0.2 {
		t.Errorf("small sampled median got %g", s.Median)
	}
}

func TestAggregate(t *testing.T) {
	chans := []*Stats{
		{Min: 0.1, Max: 0.9, Mean: 0.3, StdDev: 0.01, Median: 0.2},
		{Min: 0.05, Max: 0.8, Mean: 0.4, StdDev: 0.02, Median: 0.3},
		{Min: 0.2, Max: 1.2, Mean: 0.5, StdDev: 0.06, Median: 0.4},
	}
	s := Aggregate(chans)
	expect := Stats{Min: 0.05, Max: 1.2, Mean: 0.4, StdDev: 0.03, Median: 0.3}
	if math.Abs(s.Min-expect.Min) > 1e-12 || math.Abs(s.Max-expect.Max) > 1e-12 ||
		math.Abs(s.Mean-expect.Mean) > 1e-12 || math.Abs(s.StdDev-expect.StdDev) > 1e-12 ||
		math.Abs(s.Median-expect.Median) > 1e-12 {
		t.Errorf("got %v expect %v", s, &expect)
	}

	single := Aggregate(chans[:1])
	single.Min = -1
	if chans[0].Min != 0.1 {
		t.Errorf("aggregate of one channel aliases its input")
	}
}

func TestBlackPoint(t *testing.T) {
	cases := []struct {
		s      Stats
		expect float64
	}{
		{Stats{Min: 0.0, Median: 0.2, StdDev: 0.01}, 0.2 - 0.027},
		{Stats{Min: 0.19, Median: 0.2, StdDev: 0.01}, 0.19},
		{Stats{Min: 0.1, Median: 0.1, StdDev: 0}, 0.1},
	}
	for _, c := range cases {
		if bp := BlackPoint(&c.s); math.Abs(bp-c.expect) > 1e-12 {
			t.Errorf("%v: got %g expect %g", &c.s, bp, c.expect)
		}
	}

	// property: min <= black point < median for non-degenerate random images
	rng := fastrand.RNG{}
	for i := 0; i < 200; i++ {
		n := 3 + int(rng.Uint32n(500))
		data := make([]float64, n)
		for j := range data {
			data[j] = float64(rng.Uint32n(1000000)) / 1000000
		}
		s, _ := Exact{}.Estimate(data)
		if s.Median == s.Min {
			continue
		}
		bp := BlackPoint(s)
		if bp < s.Min || bp >= s.Median {
			t.Errorf("black point %g outside [%g, %g)", bp, s.Min, s.Median)
		}
	}
}

func TestHistogram(t *testing.T) {
	bins := make([]int32, 11)
	Histogram([]float64{0, 0.05, 0.5, 0.52, 0.55, 1, 1.5, -1}, 0, 1, bins)
	if bins[0] != 3 || bins[5] != 3 || bins[10] != 2 {
		t.Errorf("got bins %v", bins)
	}
	x, _ := GetPeak(bins, 0, 1)
	if x < 0 || x > 0.1 {
		t.Errorf("peak at %g", x)
	}
}

func TestModeFromHistogram(t *testing.T) {
	rng := fastrand.RNG{}
	data := make([]float64, 200000)
	for i := range data {
		sum := 0.0
		for j := 0; j < 12; j++ {
			sum += float64(rng.Uint32n(1<<20)) / (1 << 20)
		}
		data[i] = 0.3 + 0.05*(sum-6) // approximately normal(0.3, 0.05)
	}
	bins := make([]int32, 256)
	Histogram(data, 0, 1, bins)
	mode, sd, err := GetModeStdDevFromHistogram(bins, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(mode-0.3) > 0.02 || math.Abs(sd-0.05) > 0.02 {
		t.Errorf("got mode %g stddev %g, expect 0.3 and 0.05", mode, sd)
	}
}
