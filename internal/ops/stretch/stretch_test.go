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
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/dcinzona/setiastro-pixinsight/internal/img"
	"github.com/dcinzona/setiastro-pixinsight/internal/ops"
	"github.com/dcinzona/setiastro-pixinsight/internal/qsort"
	st "github.com/dcinzona/setiastro-pixinsight/internal/stretch"
	"github.com/valyala/fastrand"
)

func newLinearImage(width, height int32) *img.Image {
	f := img.NewImageFromNaxisn([]int32{width, height}, nil)
	rng := fastrand.RNG{}
	rng.Seed(7)
	for i := range f.Data {
		f.Data[i] = 0.02 + 0.01*float64(rng.Uint32n(1000))/1000
	}
	f.Data[0] = 1
	return f
}

func run(t *testing.T, op ops.Operator, f *img.Image, log *bytes.Buffer) *img.Image {
	outs, err := op.MakePromises([]ops.Promise{ops.PromiseImage(f)}, ops.NewContext(log, nil))
	if err != nil {
		t.Fatal(err)
	}
	g, err := outs[0]()
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestOpStatStretch(t *testing.T) {
	f := newLinearImage(31, 21)
	log := bytes.Buffer{}
	g := run(t, NewOpStatStretch(st.NewParams(0.2, 0, 1, true)), f, &log)
	m := qsort.QSelectMedianFloat64(append([]float64(nil), g.Data...))
	if math.Abs(m-0.2) > 1e-9 {
		t.Errorf("median %g after stretch", m)
	}
	if !strings.Contains(log.String(), "Statistical stretch") {
		t.Errorf("log:\n%s", log.String())
	}

	_, err := NewOpStatStretch(st.NewParams(0.2, 0, 7, true)).Apply(newLinearImage(3, 3), ops.NewContext(nil, nil))
	if !st.IsInputError(err) {
		t.Errorf("expected input error, got %v", err)
	}
}

func TestOpStatStretchJSONDefaults(t *testing.T) {
	var op OpStatStretch
	if err := json.Unmarshal([]byte(`{"type":"statStretch","targetMedian":0.1}`), &op); err != nil {
		t.Fatal(err)
	}
	p := op.Params()
	if p.TargetMedian != 0.1 || p.Iterations != 1 || !p.Normalize || !p.Truncate || !op.Active || op.OpUnaryBase.Apply == nil {
		t.Errorf("got %+v", op)
	}

	s := st.NewSettingsDefault()
	s.CurvesBoost = 0.1
	if q := NewOpStatStretchFromSettings(s).Params(); q.CurvesBoost != 0.1 || q.TargetMedian != 0.25 {
		t.Errorf("from settings %+v", q)
	}
}

func TestOpFixedStretch(t *testing.T) {
	f := img.NewImageFromNaxisn([]int32{1, 1}, []float64{0.5})
	g := run(t, NewOpFixedStretch(5), f, &bytes.Buffer{})
	expected := (math.Pow(3, 5) * 0.5) / ((math.Pow(3, 5)-1)*0.5 + 1)
	if g.Data[0] != expected {
		t.Errorf("got %.17g, expect %.17g", g.Data[0], expected)
	}
	if NewOpFixedStretch(0).Active {
		t.Errorf("zero exponent should be inactive")
	}
}

func TestOpBin(t *testing.T) {
	f := newLinearImage(40, 30)
	g := run(t, NewOpBin(0, 10), f, &bytes.Buffer{})
	if !img.EqualInt32Slice(g.Naxisn, []int32{10, 7}) {
		t.Errorf("binned to %s", g.DimensionsToString())
	}
	if !img.EqualInt32Slice(f.Naxisn, []int32{40, 30}) {
		t.Errorf("input changed to %s", f.DimensionsToString())
	}
	if h := run(t, NewOpBin(2, 0), f, &bytes.Buffer{}); h.Width() != 20 {
		t.Errorf("factor 2 gave width %d", h.Width())
	}
	if NewOpBin(1, 0).Active {
		t.Errorf("unit binning should be inactive")
	}
}

func TestOpStats(t *testing.T) {
	log := bytes.Buffer{}
	f := newLinearImage(64, 64)
	g := run(t, NewOpStatsDefault(), f, &log)
	if g != f {
		t.Errorf("stats operator changed the image")
	}
	out := log.String()
	if !strings.Contains(out, "black point") || !strings.Contains(strings.ToLower(out), "histogram background") {
		t.Errorf("log:\n%s", out)
	}
}

func TestStretchSequenceJSON(t *testing.T) {
	seq := NewOpStretch(NewOpStatsDefault(), NewOpBin(2, 0), NewOpStatStretchDefault(), ops.NewOpSave("out.tif"), ops.NewOpSave(""))
	data, err := json.Marshal(seq)
	if err != nil {
		t.Fatal(err)
	}
	var back ops.OpSequence
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	types := []string{"stats", "bin", "statStretch", "save", "save"}
	if len(back.Steps) != len(types) {
		t.Fatalf("got %d steps from %s", len(back.Steps), string(data))
	}
	for i, step := range back.Steps {
		if step.GetType() != types[i] {
			t.Errorf("step %d has type %s, expect %s", i, step.GetType(), types[i])
		}
	}
	if back.Steps[4].IsActive() {
		t.Errorf("save without file name should stay inactive")
	}
}
