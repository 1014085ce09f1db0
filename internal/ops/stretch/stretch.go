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
	"encoding/json"
	"fmt"

	"github.com/dcinzona/setiastro-pixinsight/internal/img"
	"github.com/dcinzona/setiastro-pixinsight/internal/ops"
	"github.com/dcinzona/setiastro-pixinsight/internal/stats"
	st "github.com/dcinzona/setiastro-pixinsight/internal/stretch"
)

// Creates a sequence which logs statistics, optionally bins for previewing, stretches and saves the image
func NewOpStretch(opStats *OpStats, opBin *OpBin, opStatStretch *OpStatStretch, opSave, opSave2 *ops.OpSave) *ops.OpSequence {
	return ops.NewOpSequence(opStats, opBin, opStatStretch, opSave, opSave2)
}

// Logs per-channel and aggregate statistics, the black point and a histogram-based
// background estimate. Takes one input, produces one output (the unchanged input)
type OpStats struct {
	ops.OpUnaryBase
	Bins int `json:"bins"` // histogram bins for the background estimate, 0 skips it
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpStatsDefault() }) } // register the operator for JSON decoding

func NewOpStatsDefault() *OpStats { return NewOpStats(true, 256) }

func NewOpStats(active bool, bins int) *OpStats {
	op := OpStats{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "stats", Active: active}},
		Bins:        bins,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpStats) UnmarshalJSON(data []byte) error {
	type defaults OpStats
	def := defaults(*NewOpStatsDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpStats(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

func (op *OpStats) Apply(f *img.Image, c *ops.Context) (result *img.Image, err error) {
	if !op.Active {
		return f, nil
	}
	s, chans, err := st.Statistics(f, c.Estimator)
	if err != nil {
		return nil, err
	}
	if len(chans) > 1 {
		for i, cs := range chans {
			fmt.Fprintf(c.Log, "%d: Channel %d: %v\n", f.ID, i, cs)
		}
	}
	fmt.Fprintf(c.Log, "%d: %s image: %v, black point %.6g\n", f.ID, f.DimensionsToString(), s, stats.BlackPoint(s))

	if op.Bins > 0 && s.Max > s.Min {
		bins := make([]int32, op.Bins)
		stats.Histogram(f.Data, s.Min, s.Max, bins)
		mode, sd, err := stats.GetModeStdDevFromHistogram(bins, s.Min, s.Max)
		if err != nil {
			fmt.Fprintf(c.Log, "%d: Warning: histogram background estimate failed: %s\n", f.ID, err.Error())
		} else {
			fmt.Fprintf(c.Log, "%d: Histogram background at %.6g with spread %.6g\n", f.ID, mode, sd)
		}
	}
	return f, nil
}

// Iterative statistical stretch to a target median. Takes one input, produces one output
type OpStatStretch struct {
	ops.OpUnaryBase
	TargetMedian float64 `json:"targetMedian"`
	CurvesBoost  float64 `json:"curvesBoost"`
	Iterations   int     `json:"numIterations"`
	Normalize    bool    `json:"normalizeImageRange"`
	Truncate     bool    `json:"truncate"`
}

var _ ops.Operator = (*OpStatStretch)(nil) // this type is an Operator
func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpStatStretchDefault() }) } // register the operator for JSON decoding

func NewOpStatStretchDefault() *OpStatStretch {
	return NewOpStatStretch(st.NewParams(0.25, 0, 1, true))
}

func NewOpStatStretch(p st.Params) *OpStatStretch {
	op := OpStatStretch{
		OpUnaryBase:  ops.OpUnaryBase{OpBase: ops.OpBase{Type: "statStretch", Active: true}},
		TargetMedian: p.TargetMedian,
		CurvesBoost:  p.CurvesBoost,
		Iterations:   p.Iterations,
		Normalize:    p.Normalize,
		Truncate:     p.Truncate,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Creates the operator from persisted settings
func NewOpStatStretchFromSettings(s *st.Settings) *OpStatStretch {
	return NewOpStatStretch(s.Params())
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpStatStretch) UnmarshalJSON(data []byte) error {
	type defaults OpStatStretch
	def := defaults(*NewOpStatStretchDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpStatStretch(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

// Returns the engine parameters
func (op *OpStatStretch) Params() st.Params {
	return st.Params{
		TargetMedian: op.TargetMedian,
		CurvesBoost:  op.CurvesBoost,
		Iterations:   op.Iterations,
		Normalize:    op.Normalize,
		Truncate:     op.Truncate,
	}
}

// Stretches the image in-place
func (op *OpStatStretch) Apply(f *img.Image, c *ops.Context) (result *img.Image, err error) {
	if !op.Active {
		return f, nil
	}
	ctrl := st.NewController(op.Params(), c.Estimator, c.Log)
	if err = ctrl.Run(f); err != nil {
		return nil, err
	}
	return f, nil
}

// Stretch with a fixed exponent. Takes one input, produces one output
type OpFixedStretch struct {
	ops.OpUnaryBase
	Exponent float64 `json:"exponent"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpFixedStretchDefault() }) } // register the operator for JSON decoding

func NewOpFixedStretchDefault() *OpFixedStretch { return NewOpFixedStretch(5) }

func NewOpFixedStretch(exponent float64) *OpFixedStretch {
	op := OpFixedStretch{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "fixedStretch", Active: exponent != 0}},
		Exponent:    exponent,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpFixedStretch) UnmarshalJSON(data []byte) error {
	type defaults OpFixedStretch
	def := defaults(*NewOpFixedStretchDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpFixedStretch(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

func (op *OpFixedStretch) Apply(f *img.Image, c *ops.Context) (result *img.Image, err error) {
	if !op.Active {
		return f, nil
	}
	fmt.Fprintf(c.Log, "%d: Fixed stretch with exponent %.4g\n", f.ID, op.Exponent)
	return st.RunFixedStretch(f, op.Exponent)
}

// Bins the image NxN for previewing. Takes one input, produces one output
type OpBin struct {
	ops.OpUnaryBase
	Factor int32 `json:"factor"` // binning factor, used if width is zero
	Width  int32 `json:"width"`  // desired preview width, selects the factor
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpBinDefault() }) } // register the operator for JSON decoding

func NewOpBinDefault() *OpBin { return NewOpBin(0, 0) }

func NewOpBin(factor, width int32) *OpBin {
	op := OpBin{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "bin", Active: factor > 1 || width > 0}},
		Factor:      factor,
		Width:       width,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpBin) UnmarshalJSON(data []byte) error {
	type defaults OpBin
	def := defaults(*NewOpBinDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpBin(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

// Returns the binning factor for the given image
func (op *OpBin) FactorFor(f *img.Image) int32 {
	if op.Width > 0 {
		return st.PreviewFactor(f.Width(), op.Width)
	}
	return op.Factor
}

// Returns a binned duplicate of the image. The input is left unchanged
func (op *OpBin) Apply(f *img.Image, c *ops.Context) (result *img.Image, err error) {
	if !op.Active {
		return f, nil
	}
	factor := op.FactorFor(f)
	if factor <= 1 {
		return f, nil
	}
	result = img.NewImageBinNxN(f, factor)
	fmt.Fprintf(c.Log, "%d: Binned %s image %dx%d to %s\n", f.ID, f.DimensionsToString(), factor, factor, result.DimensionsToString())
	return result, nil
}
