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
	"fmt"
	"io"

	"github.com/dcinzona/setiastro-pixinsight/internal/img"
	"github.com/dcinzona/setiastro-pixinsight/internal/stats"
)

// Maximum number of stretch iterations per run
const MaxIterations = 5

// Parameters of one statistical stretch run. Immutable during the run
type Params struct {
	TargetMedian float64 // Desired median after stretching, in (0,1)
	CurvesBoost  float64 // Contrast boost of the finishing tone curve in [0,0.3], 0 skips the curve
	Iterations   int     // Number of stretch iterations in [1,5]
	Normalize    bool    // Rescale so the brightest sample becomes 1 after each iteration
	Truncate     bool    // Clamp stretched samples to [0,1]
}

func NewParams(targetMedian, curvesBoost float64, iterations int, normalize bool) Params {
	return Params{
		TargetMedian: targetMedian,
		CurvesBoost:  curvesBoost,
		Iterations:   iterations,
		Normalize:    normalize,
		Truncate:     true,
	}
}

// Checks the parameters. Any violation is an InputError
func (p Params) Validate() error {
	if !(p.TargetMedian > 0 && p.TargetMedian < 1) {
		return newInputError("target median %.6g outside (0,1)", p.TargetMedian)
	}
	if !(p.CurvesBoost >= 0 && p.CurvesBoost <= MaxCurvesBoost) {
		return newInputError("curves boost %.6g outside [0,%.2g]", p.CurvesBoost, MaxCurvesBoost)
	}
	if p.Iterations < 1 || p.Iterations > MaxIterations {
		return newInputError("iteration count %d outside [1,%d]", p.Iterations, MaxIterations)
	}
	return nil
}

// State of a stretch controller
type State int

const (
	Idle    State = iota // Not yet run
	Running              // Iterating
	Done                 // All iterations and the optional tone curve completed
	Failed               // Aborted with an error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Results of one completed iteration
type Iteration struct {
	BlackPoint float64 // Black point moved to zero
	Median     float64 // Median after the black point rescale, from which the exponent was solved
	Exponent   float64 // Solved stretch exponent L
	Max        float64 // Maximum before normalization, 0 if not normalized
}

// Runs the statistical stretch: black point rescale, exponent solving, stretch
// and normalization, repeated for the requested iterations, optionally finished by the
// tone curve. Each iteration is computed on a working copy and committed to the image only
// on success, so an aborted run leaves the image as of its last completed iteration
type Controller struct {
	Params    Params
	Estimator stats.Estimator
	Log       io.Writer
	History   []Iteration

	state     State
	iteration int
}

func NewController(p Params, est stats.Estimator, log io.Writer) *Controller {
	if est == nil {
		est = stats.Exact{}
	}
	if log == nil {
		log = io.Discard
	}
	return &Controller{Params: p, Estimator: est, Log: log}
}

// Returns the current state
func (c *Controller) State() State { return c.state }

// Returns the current or last 1-based iteration, 0 before the first
func (c *Controller) Iteration() int { return c.iteration }

// Stretches the image in-place
func (c *Controller) Run(f *img.Image) error {
	c.state, c.iteration, c.History = Idle, 0, nil
	if f.IsEmpty() {
		c.state = Failed
		return newInputError("no image or empty image")
	}
	if f.Channels() != 1 && f.Channels() != 3 {
		c.state = Failed
		return newInputError("unsupported image with %d channels", f.Channels())
	}
	if err := c.Params.Validate(); err != nil {
		c.state = Failed
		return err
	}

	p := c.Params
	fmt.Fprintf(c.Log, "%d: Statistical stretch of %s image to median %.4g with %d iteration(s), normalize %v, curves boost %.4g\n",
		f.ID, f.DimensionsToString(), p.TargetMedian, p.Iterations, p.Normalize, p.CurvesBoost)

	c.state = Running
	work := f.Copy()
	for i := 1; i <= p.Iterations; i++ {
		c.iteration = i
		it, err := c.step(work)
		if err != nil {
			c.state = Failed
			if de, ok := err.(*DomainError); ok {
				de.Iteration = i
			}
			fmt.Fprintf(c.Log, "%d: Aborting at iteration %d: %s\n", f.ID, i, err.Error())
			return err
		}
		copy(f.Data, work.Data)
		c.History = append(c.History, it)
	}

	if p.CurvesBoost > 0 {
		fmt.Fprintf(c.Log, "%d: Applying tone curve with boost %.4g around median %.4g\n", f.ID, p.CurvesBoost, p.TargetMedian)
		if err := ApplyToneCurve(work, p.TargetMedian, p.CurvesBoost); err != nil {
			c.state = Failed
			return err
		}
		copy(f.Data, work.Data)
	}

	c.state = Done
	return nil
}

// Runs one iteration on the working image
func (c *Controller) step(work *img.Image) (it Iteration, err error) {
	p := c.Params
	bp, s, err := RescaleBlackPoint(work, c.Estimator)
	if err != nil {
		return it, err
	}
	it.BlackPoint = bp
	fmt.Fprintf(c.Log, "%d: Iteration %d: median %.6g min %.6g stddev %.6g, black point %.6g\n",
		work.ID, c.iteration, s.Median, s.Min, s.StdDev, bp)

	l, s, err := StretchToMedian(work, p.TargetMedian, p.Truncate, c.Estimator)
	if err != nil {
		return it, err
	}
	it.Median, it.Exponent = s.Median, l
	fmt.Fprintf(c.Log, "%d: Iteration %d: rescaled median %.6g, stretch exponent %.6g\n", work.ID, c.iteration, s.Median, l)

	if p.Normalize {
		it.Max = Normalize(work)
		if !(it.Max > 0) {
			fmt.Fprintf(c.Log, "%d: Warning: maximum %.4g not positive, skipping normalization\n", work.ID, it.Max)
		} else {
			fmt.Fprintf(c.Log, "%d: Iteration %d: normalized by maximum %.6g\n", work.ID, c.iteration, it.Max)
		}
	}
	return it, nil
}

// Runs the statistical stretch on the image in-place, and returns it
func RunStatisticalStretch(f *img.Image, p Params, est stats.Estimator, log io.Writer) (*img.Image, error) {
	if err := NewController(p, est, log).Run(f); err != nil {
		return nil, err
	}
	return f, nil
}

// Returns the binning factor for previewing an image of the given width at about previewWidth.
// Non-positive preview widths select a factor of 2
func PreviewFactor(width, previewWidth int32) int32 {
	if previewWidth <= 0 {
		return 2
	}
	factor := width / previewWidth
	if factor < 1 {
		factor = 1
	}
	return factor
}

// Stretches a downsampled duplicate of the image for previewing. The source is never modified,
// and the returned preview shares no state with it
func Preview(src *img.Image, p Params, factor int32, est stats.Estimator, log io.Writer) (*img.Image, error) {
	if src.IsEmpty() {
		return nil, newInputError("no image to preview")
	}
	if factor < 1 {
		factor = 1
	}
	preview := img.NewImageBinNxN(src, factor)
	if log == nil {
		log = io.Discard
	}
	fmt.Fprintf(log, "%d: Previewing %s image binned %dx%d to %s\n",
		src.ID, src.DimensionsToString(), factor, factor, preview.DimensionsToString())
	if err := NewController(p, est, log).Run(preview); err != nil {
		return nil, err
	}
	return preview, nil
}
