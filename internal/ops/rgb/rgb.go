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

package rgb

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dcinzona/setiastro-pixinsight/internal/img"
	"github.com/dcinzona/setiastro-pixinsight/internal/ops"
	opstretch "github.com/dcinzona/setiastro-pixinsight/internal/ops/stretch"
	"github.com/dcinzona/setiastro-pixinsight/internal/pixmath"
	st "github.com/dcinzona/setiastro-pixinsight/internal/stretch"
)

// Maximum color boost of the narrowband star workflow
const MaxColorBoost = 3

// Stretches a star image with a fixed exponent. Color images then get a hue-dependent
// saturation boost and full green removal
func NewOpStarStretch(amount, satAmount float64) (*ops.OpSequence, error) {
	if !(amount >= 0 && amount <= st.MaxAmount) {
		return nil, &st.InputError{Msg: fmt.Sprintf("stretch amount %.6g outside [0,%d]", amount, st.MaxAmount)}
	}
	if !(satAmount >= 0 && satAmount <= st.MaxSatAmount) {
		return nil, &st.InputError{Msg: fmt.Sprintf("saturation amount %.6g outside [0,%d]", satAmount, st.MaxSatAmount)}
	}
	return ops.NewOpSequence(
		opstretch.NewOpFixedStretch(amount),
		NewOpSaturation(satAmount),
		NewOpSCNR(1),
	), nil
}

// Combines Ha, OIII and optional SII star images into an RGB star image, removes the
// green cast and optionally stretches and saturates the result
func NewOpNBToRGBStars(applyStretch bool, stretchFactor, colorBoost float64) (*ops.OpSequence, error) {
	if !(stretchFactor >= 0 && stretchFactor <= st.MaxAmount) {
		return nil, &st.InputError{Msg: fmt.Sprintf("stretch factor %.6g outside [0,%d]", stretchFactor, st.MaxAmount)}
	}
	if !(colorBoost >= 0 && colorBoost <= MaxColorBoost) {
		return nil, &st.InputError{Msg: fmt.Sprintf("color boost %.6g outside [0,%d]", colorBoost, MaxColorBoost)}
	}
	seq := ops.NewOpSequence(
		NewOpNBCombine(),
		NewOpSCNR(1),
		NewOpMTF(0.01),
		NewOpSCNR(1), // clean up green introduced by the midtones transfer
		NewOpMTF(0.99),
	)
	if applyStretch {
		seq.Append(opstretch.NewOpFixedStretch(stretchFactor), NewOpSaturation(colorBoost))
	}
	return seq, nil
}

// Combines narrowband channels into RGB. Takes Ha, OIII and optionally SII as inputs, produces one output
type OpNBCombine struct {
	ops.OpBase
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpNBCombineDefault() }) } // register the operator for JSON decoding

func NewOpNBCombineDefault() *OpNBCombine { return NewOpNBCombine() }

func NewOpNBCombine() *OpNBCombine {
	return &OpNBCombine{
		OpBase: ops.OpBase{Type: "nbCombine", Active: true},
	}
}

func (op *OpNBCombine) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if len(ins) < 2 || len(ins) > 3 {
		return nil, errors.New(fmt.Sprintf("%s operator with %d inputs", op.Type, len(ins)))
	}
	out := func() (fOut *img.Image, err error) {
		fs, err := ops.MaterializeAll(ins, c.MaxThreads, false)
		if err != nil {
			return nil, err
		}
		return op.Apply(fs, c)
	}
	return []ops.Promise{out}, nil
}

// Combines R=0.5*Ha+0.5*SII, G=0.3*Ha+0.7*OIII and B=OIII, truncated to [0,1].
// Without SII, Ha takes its place
func (op *OpNBCombine) Apply(fs []*img.Image, c *ops.Context) (fOut *img.Image, err error) {
	if len(fs) < 2 || len(fs) > 3 {
		return nil, errors.New(fmt.Sprintf("invalid number of channels for narrowband combination: %d", len(fs)))
	}
	ha, oiii, sii, siiName := fs[0], fs[1], fs[0], "Ha for SII"
	if len(fs) == 3 {
		sii, siiName = fs[2], "SII"
	}
	fmt.Fprintf(c.Log, "%d: Combining %s narrowband channels Ha, OIII and %s into RGB...\n",
		ha.ID, ha.DimensionsToString(), siiName)

	r, err := img.NewImageWeightedSum([]float64{0.5, 0.5}, []*img.Image{ha, sii})
	if err != nil {
		return nil, err
	}
	g, err := img.NewImageWeightedSum([]float64{0.3, 0.7}, []*img.Image{ha, oiii})
	if err != nil {
		return nil, err
	}
	fOut, err = img.NewRGBFromChannels([]*img.Image{r, g, oiii})
	if err != nil {
		return nil, err
	}
	fOut.FileName = ha.FileName
	fOut.Apply(pixmath.Truncate)
	return fOut, nil
}

// Removes green noise with average neutral SCNR. Takes one input, produces one output
type OpSCNR struct {
	ops.OpUnaryBase
	Amount float64 `json:"amount"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpSCNRDefault() }) } // register the operator for JSON decoding

func NewOpSCNRDefault() *OpSCNR { return NewOpSCNR(1) }

func NewOpSCNR(amount float64) *OpSCNR {
	op := &OpSCNR{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "scnr", Active: amount > 0}},
		Amount:      amount,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpSCNR) UnmarshalJSON(data []byte) error {
	type defaults OpSCNR
	def := defaults(*NewOpSCNRDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpSCNR(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpSCNR) Apply(f *img.Image, c *ops.Context) (fOut *img.Image, err error) {
	if !op.Active {
		return f, nil
	}
	if !f.IsColor() {
		fmt.Fprintf(c.Log, "%d: Skipping SCNR for %s image\n", f.ID, f.DimensionsToString())
		return f, nil
	}
	if !(op.Amount >= 0 && op.Amount <= 1) {
		return nil, &st.InputError{Msg: fmt.Sprintf("SCNR amount %.6g outside [0,1]", op.Amount)}
	}
	fmt.Fprintf(c.Log, "%d: Applying SCNR to green with amount %.4g\n", f.ID, op.Amount)
	f.SCNR(op.Amount)
	return f, nil
}

// Boosts color saturation by hue. Takes one input, produces one output
type OpSaturation struct {
	ops.OpUnaryBase
	Amount float64 `json:"amount"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpSaturationDefault() }) } // register the operator for JSON decoding

func NewOpSaturationDefault() *OpSaturation { return NewOpSaturation(1) }

func NewOpSaturation(amount float64) *OpSaturation {
	op := &OpSaturation{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "saturation", Active: amount != 0}},
		Amount:      amount,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpSaturation) UnmarshalJSON(data []byte) error {
	type defaults OpSaturation
	def := defaults(*NewOpSaturationDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpSaturation(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

// Returns the hue points and saturation boosts of the curve
func (op *OpSaturation) Points() (hues, amounts []float64) {
	return []float64{0, 0.5, 1}, []float64{0.4 * op.Amount, 0.7 * op.Amount, 0.4 * op.Amount}
}

func (op *OpSaturation) Apply(f *img.Image, c *ops.Context) (fOut *img.Image, err error) {
	if !op.Active {
		return f, nil
	}
	if !f.IsColor() {
		fmt.Fprintf(c.Log, "%d: Skipping saturation for %s image\n", f.ID, f.DimensionsToString())
		return f, nil
	}
	hues, amounts := op.Points()
	fmt.Fprintf(c.Log, "%d: Boosting saturation with %v at hues %v\n", f.ID, amounts, hues)
	if err = f.SaturationCurve(hues, amounts); err != nil {
		return nil, &st.ExternalOperatorError{Op: "saturation", Err: err}
	}
	return f, nil
}

// Midtones transfer function. Takes one input, produces one output
type OpMTF struct {
	ops.OpUnaryBase
	Mid float64 `json:"mid"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpMTFDefault() }) } // register the operator for JSON decoding

func NewOpMTFDefault() *OpMTF { return NewOpMTF(0.5) }

func NewOpMTF(mid float64) *OpMTF {
	op := &OpMTF{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "mtf", Active: mid != 0.5}},
		Mid:         mid,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpMTF) UnmarshalJSON(data []byte) error {
	type defaults OpMTF
	def := defaults(*NewOpMTFDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpMTF(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpMTF) Apply(f *img.Image, c *ops.Context) (fOut *img.Image, err error) {
	if !op.Active {
		return f, nil
	}
	if !(op.Mid > 0 && op.Mid < 1) {
		return nil, &st.InputError{Msg: fmt.Sprintf("midtones balance %.6g outside (0,1)", op.Mid)}
	}
	mtf := pixmath.MTF{Mid: op.Mid}
	fmt.Fprintf(c.Log, "%d: Applying %v\n", f.ID, mtf)
	f.Apply(mtf)
	return f, nil
}
