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

package ops

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dcinzona/setiastro-pixinsight/internal/img"
	"github.com/dcinzona/setiastro-pixinsight/internal/stats"
	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
)

// An execution context for operators
type Context struct {
	Log        io.Writer
	Estimator  stats.Estimator // statistics provider for the stretch operators
	MemoryMB   int             // memory.TotalMemory()/1024/1024
	MaxThreads int             `json:"maxThreads"`
}

func NewContext(log io.Writer, est stats.Estimator) *Context {
	if log == nil {
		log = io.Discard
	}
	if est == nil {
		est = stats.Exact{}
	}
	maxThreads := cpuid.CPU.LogicalCores
	if maxThreads <= 0 {
		maxThreads = runtime.GOMAXPROCS(0)
	}
	return &Context{
		Log:        log,
		Estimator:  est,
		MemoryMB:   int(memory.TotalMemory() / 1024 / 1024),
		MaxThreads: maxThreads,
	}
}

// Describes the host CPU and memory available to the context
func (c *Context) HostInfo() string {
	return fmt.Sprintf("%s with %d physical and %d logical cores, AVX2 %v, %d MiB physical memory, %d threads",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, cpuid.CPU.AVX2(),
		c.MemoryMB, c.MaxThreads)
}

// Checks that an image with the given dimensions is supported and fits into the memory of the context
func (c *Context) CheckImageSize(width, height, channels int) error {
	if err := img.CheckDimensions(width, height, channels); err != nil {
		return err
	}
	requiredMB := img.RequiredMB(width, height, channels)
	if c.MemoryMB > 0 && requiredMB > int64(c.MemoryMB) {
		return errors.New(fmt.Sprintf("image %dx%dx%d needs %d MiB, more than the %d MiB available",
			width, height, channels, requiredMB, c.MemoryMB))
	}
	return nil
}

// A promise for an image. Returns a materialized image, or an error
type Promise func() (f *img.Image, err error)

// Materializes all promises with given concurrency limit. If forget is set, results are not retained
func MaterializeAll(ins []Promise, maxThreads int, forget bool) (outs []*img.Image, err error) {
	if len(ins) == 0 {
		return nil, nil
	}
	if maxThreads < 1 {
		maxThreads = 1
	}
	if !forget {
		outs = make([]*img.Image, len(ins))
	}
	limiter := make(chan bool, maxThreads)
	errs := make(chan error, len(ins))
	for i, in := range ins {
		limiter <- true
		go func(i int, theIn Promise) {
			defer func() { <-limiter }()
			f, err := theIn() // materialize the promise
			if err != nil {
				errs <- err
				return
			}
			if !forget {
				outs[i] = f
			}
			errs <- nil
		}(i, in)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	for i := 0; i < len(ins); i++ { // collect errors
		if e := <-errs; e != nil {
			if err == nil {
				err = e
			} else {
				err = errors.New(fmt.Sprintf("%s; %s", err.Error(), e.Error()))
			}
		}
	}
	return RemoveNils(outs), err
}

// Remove nils from an array of images, editing the underlying array in place
func RemoveNils(fs []*img.Image) []*img.Image {
	o := 0
	for i := 0; i < len(fs); i++ {
		if fs[i] != nil {
			fs[o] = fs[i]
			o++
		}
	}
	for i := o; i < len(fs); i++ {
		fs[i] = nil
	}
	return fs[:o]
}

// Wraps an already materialized image into a promise
func PromiseImage(f *img.Image) Promise {
	return func() (*img.Image, error) { return f, nil }
}

// An general image processing operator: takes n promises as inputs,
// and produces m promises as output or an error
type Operator interface {
	GetType() string
	IsActive() bool
	MakePromises(ins []Promise, c *Context) (outs []Promise, err error)
}

// Base type for operators, including type information for JSON serializing/deserializing
type OpBase struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

func (op *OpBase) GetType() string { return op.Type }
func (op *OpBase) IsActive() bool  { return op.Active }

// Factory method for operators. For JSON serializing/deserializing
type OperatorFactory func() Operator

// Mapping from operator type strings to factory method for the type
var operatorFactories = map[string]OperatorFactory{}

// Returns the operator factory for a given type string
func GetOperatorFactory(t string) OperatorFactory {
	return operatorFactories[t]
}

// Registers a given type string for a given type of operator, identified via an exemplar generator
func SetOperatorFactory(f OperatorFactory) {
	op := f()
	t := op.GetType()
	if GetOperatorFactory(t) != nil {
		panic(fmt.Sprintf("error: re-registering operator key %s\n", t))
	}
	operatorFactories[t] = f
}

// Abstract base type for unary operators, which apply themselves to each of their
// n input promises individually and return n output promises
type OpUnaryBase struct {
	OpBase
	Apply func(f *img.Image, c *Context) (fOut *img.Image, err error) `json:"-"`
}

func (op *OpUnaryBase) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return nil, errors.New(fmt.Sprintf("%s operator with %d inputs", op.Type, len(ins)))
	}
	outs = make([]Promise, len(ins))
	for i, in := range ins {
		outs[i] = op.MakePromise(in, c)
	}
	return outs, nil
}

func (op *OpUnaryBase) MakePromise(in Promise, c *Context) (out Promise) {
	return func() (f *img.Image, err error) {
		if f, err = in(); err != nil {
			return nil, err
		}
		if !op.Active {
			return f, nil
		}
		return op.Apply(f, c)
	}
}

// Load a single TIFF or FITS image, optionally gzipped, from a single filename. Takes zero inputs, produces one output
type OpLoad struct {
	OpBase
	ID       int    `json:"id"`
	FileName string `json:"fileName"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadDefault() }) } // register the operator for JSON decoding

func NewOpLoadDefault() *OpLoad { return NewOpLoad(0, "") }

func NewOpLoad(id int, fileName string) *OpLoad {
	return &OpLoad{
		OpBase:   OpBase{Type: "load", Active: true},
		ID:       id,
		FileName: fileName,
	}
}

func (op *OpLoad) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, errors.New(fmt.Sprintf("%s operator with non-zero input", op.Type))
	}
	if !isPathAllowed(op.FileName) {
		return nil, errors.New(fmt.Sprintf("filename %s outside current directory tree, aborting", op.FileName))
	}
	out := func() (f *img.Image, err error) {
		return op.Apply(c)
	}
	return []Promise{out}, nil
}

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory
func isPathAllowed(p string) bool {
	if filepath.IsAbs(p) {
		return false
	}
	if strings.Contains(p, "..") {
		return false
	}
	return true
}

// Opens an image file, decompressing gzip if a .gz or .gzip suffix is present.
// Reports whether the contents are FITS rather than TIFF, based on the remaining suffix
func openImageFile(fileName string) (r io.Reader, closer func(), isFITS bool, err error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, nil, false, err
	}
	r, closer = file, func() { file.Close() }
	lower := strings.ToLower(fileName)
	if ext := filepath.Ext(lower); ext == ".gz" || ext == ".gzip" {
		gz, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, nil, false, err
		}
		r, closer = gz, func() { gz.Close(); file.Close() }
		lower = strings.TrimSuffix(lower, ext)
	}
	switch filepath.Ext(lower) {
	case ".fits", ".fit", ".fts":
		isFITS = true
	}
	return r, closer, isFITS, nil
}

// Reads image dimensions without decoding the pixels
func readImageConfig(fileName string) (width, height, channels int, err error) {
	r, closer, isFITS, err := openImageFile(fileName)
	if err != nil {
		return 0, 0, 0, err
	}
	defer closer()
	if isFITS {
		h, err := img.ReadFITSHeader(r)
		if err != nil {
			return 0, 0, 0, err
		}
		return h.Dimensions()
	}
	return img.ReadTIFFConfig(r)
}

func readImageFile(fileName string) (*img.Image, error) {
	r, closer, isFITS, err := openImageFile(fileName)
	if err != nil {
		return nil, err
	}
	defer closer()
	if isFITS {
		f, _, err := img.ReadFITS(r)
		return f, err
	}
	return img.ReadTIFF(r)
}

// Loads the image, refusing images which would not fit into the physical memory of the context
func (op *OpLoad) Apply(c *Context) (f *img.Image, err error) {
	width, height, channels, err := readImageConfig(op.FileName)
	if err != nil {
		return nil, errors.New(fmt.Sprintf("%d: error reading %s: %s", op.ID, op.FileName, err.Error()))
	}
	if err = c.CheckImageSize(width, height, channels); err != nil {
		return nil, errors.New(fmt.Sprintf("%d: cannot load %s: %s", op.ID, op.FileName, err.Error()))
	}

	f, err = readImageFile(op.FileName)
	if err != nil {
		return nil, errors.New(fmt.Sprintf("%d: error reading %s: %s", op.ID, op.FileName, err.Error()))
	}
	f.ID, f.FileName = op.ID, op.FileName

	s, err := c.Estimator.Estimate(f.Data)
	if err != nil {
		return nil, err
	}
	warning := ""
	if s.Max-s.Min < 1e-8 {
		warning = "; WARNING low dynamic range"
	}
	fmt.Fprintf(c.Log, "%d: Loaded %s image with %v from %s%s\n", f.ID, f.DimensionsToString(), s, f.FileName, warning)
	return f, nil
}

// Load many TIFF or FITS images from a slice of filename patterns with wildcards.
// Takes zero inputs, produces n outputs
type OpLoadMany struct {
	OpBase
	FilePatterns []string `json:"filePatterns"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadManyDefault() }) } // register the operator for JSON decoding

func NewOpLoadManyDefault() *OpLoadMany { return NewOpLoadMany(nil) }

func NewOpLoadMany(filePatterns []string) *OpLoadMany {
	return &OpLoadMany{
		OpBase:       OpBase{Type: "loadMany", Active: true},
		FilePatterns: filePatterns,
	}
}

// Turn filename wildcards into list of file load operators
func (op *OpLoadMany) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, errors.New(fmt.Sprintf("%s operator with non-zero input", op.Type))
	}
	for _, pattern := range op.FilePatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			if !isPathAllowed(match) {
				fmt.Fprintf(c.Log, "Pattern match %s outside current directory tree, skipping\n", match)
				continue
			}
			promises, err := NewOpLoad(len(outs), match).MakePromises(nil, c)
			if err != nil {
				return nil, err
			}
			outs = append(outs, promises...)
		}
	}
	if len(outs) == 0 {
		return nil, errors.New(fmt.Sprintf("%s operator with no files to load from pattern %v", op.Type, op.FilePatterns))
	}
	fmt.Fprintf(c.Log, "Found %d files.\n", len(outs))
	return outs, nil
}

// Saves given promise under a given filename, with pattern expansion for %d based on the image id.
// Takes one input, produces one output (the materialized but unchanged input)
type OpSave struct {
	OpUnaryBase
	FilePattern string `json:"filePattern"`
	Quality     int    `json:"quality"` // JPEG quality
}

func init() { SetOperatorFactory(func() Operator { return NewOpSaveDefault() }) } // register the operator for JSON decoding

func NewOpSaveDefault() *OpSave { return NewOpSave("") }

func NewOpSave(filePattern string) *OpSave {
	op := OpSave{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "save", Active: filePattern != ""}},
		FilePattern: filePattern,
		Quality:     95,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpSave) UnmarshalJSON(data []byte) error {
	type defaults OpSave
	def := defaults(*NewOpSaveDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpSave(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

// Returns the file name for the given image
func (op *OpSave) FileName(f *img.Image) string {
	if strings.Contains(op.FilePattern, "%d") {
		return fmt.Sprintf(op.FilePattern, f.ID)
	}
	return op.FilePattern
}

// Makes a save pattern distinct per image ID when several images are saved with it.
// A pattern without %d gets -%d inserted before its suffix, so out.tif becomes out-%d.tif
func UniqueFilePattern(pattern string, numImages int) string {
	if pattern == "" || numImages <= 1 || strings.Contains(pattern, "%d") {
		return pattern
	}
	ext := filepath.Ext(pattern)
	base := strings.ReplaceAll(strings.TrimSuffix(pattern, ext), "%", "%%")
	return base + "-%d" + strings.ReplaceAll(ext, "%", "%%")
}

func (op *OpSave) Apply(f *img.Image, c *Context) (result *img.Image, err error) {
	if !op.Active || op.FilePattern == "" {
		return f, nil
	}
	fileName := op.FileName(f)
	fnLower := strings.ToLower(fileName)
	isTIFF := strings.HasSuffix(fnLower, ".tif") || strings.HasSuffix(fnLower, ".tiff")
	isJPG := strings.HasSuffix(fnLower, ".jpeg") || strings.HasSuffix(fnLower, ".jpg")
	isFITS := strings.HasSuffix(fnLower, ".fits") || strings.HasSuffix(fnLower, ".fit") || strings.HasSuffix(fnLower, ".fts")
	if !isTIFF && !isJPG && !isFITS {
		return nil, errors.New(fmt.Sprintf("%d: unknown suffix for file %s", f.ID, fileName))
	}

	buf := bytes.Buffer{}
	if isTIFF {
		fmt.Fprintf(c.Log, "%d: Writing %s pixel 16-bit TIFF to %s\n", f.ID, f.DimensionsToString(), fileName)
		err = f.WriteTIFF16(&buf)
	} else if isFITS {
		fmt.Fprintf(c.Log, "%d: Writing %s pixel float FITS to %s\n", f.ID, f.DimensionsToString(), fileName)
		err = f.WriteFITS(&buf)
	} else {
		fmt.Fprintf(c.Log, "%d: Writing %s pixel JPEG to %s\n", f.ID, f.DimensionsToString(), fileName)
		err = f.WriteJPG(&buf, op.Quality)
	}
	if err == nil {
		err = os.WriteFile(fileName, buf.Bytes(), 0666)
	}
	if err != nil {
		return nil, errors.New(fmt.Sprintf("%d: error writing to file %s: %s", f.ID, fileName, err.Error()))
	}
	return f, nil
}

// Applies a sequence of operators to a promise. Number of inputs, outputs as per the chained steps
type OpSequence struct {
	OpBase
	Steps    []Operator        `json:"-"`     // the actual steps
	StepsRaw []json.RawMessage `json:"steps"` // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpSequenceDefault() }) } // register the operator for JSON decoding

func NewOpSequenceDefault() *OpSequence { return NewOpSequence() }

func NewOpSequence(steps ...Operator) *OpSequence {
	return &OpSequence{
		OpBase: OpBase{Type: "seq", Active: true},
		Steps:  steps,
	}
}

// Unmarshals a sequence of polymorphic operators from JSON.
// Uses temporary op.StepsRaw inspired by https://alexkappa.medium.com/json-polymorphism-in-go-4cade1e58ed1
func (op *OpSequence) UnmarshalJSON(b []byte) error {
	type alias OpSequence
	def := alias(*NewOpSequenceDefault())
	if err := json.Unmarshal(b, &def); err != nil {
		return err
	}
	*op = OpSequence(def)

	for _, raw := range op.StepsRaw {
		var step OpBase
		if err := json.Unmarshal(raw, &step); err != nil {
			return err
		}
		factory := GetOperatorFactory(step.Type)
		if factory == nil {
			return errors.New(fmt.Sprintf("unknown operator type '%s' in raw JSON message '%s'", step.Type, string(raw)))
		}
		i := factory()
		if err := json.Unmarshal(raw, i); err != nil {
			return err
		}
		op.Steps = append(op.Steps, i)
	}
	op.StepsRaw = nil
	return nil
}

// Appends one or more operators to the existing sequence
func (op *OpSequence) Append(steps ...Operator) {
	op.Steps = append(op.Steps, steps...)
}

// Marshals a sequence with polymorphic operators to JSON.
// Uses the actual op.Steps with label "steps", and ignores op.StepsRaw
func (op *OpSequence) MarshalJSON() (bs []byte, err error) {
	buf := bytes.Buffer{}
	buf.WriteString("{\"type\":")
	inner, err := json.Marshal(op.Type)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	fmt.Fprintf(&buf, ", \"active\":%v, \"steps\":", op.Active)
	if op.Steps == nil {
		inner = []byte("[]")
	} else if inner, err = json.Marshal(op.Steps); err != nil {
		return nil, err
	}
	buf.Write(inner)
	buf.WriteRune('}')
	return buf.Bytes(), nil
}

func (op *OpSequence) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if !op.Active {
		return ins, nil
	}
	return op.applyRecursive(op.Steps, ins, c)
}

func (op *OpSequence) applyRecursive(steps []Operator, ins []Promise, c *Context) (outs []Promise, err error) {
	if len(steps) == 0 {
		return ins, nil
	}
	if steps[0].IsActive() {
		if ins, err = steps[0].MakePromises(ins, c); err != nil {
			return nil, err
		}
	}
	return op.applyRecursive(steps[1:], ins, c)
}

// Applies a single operator to each input. Takes n inputs, produces n outputs
type OpForEach struct {
	OpBase
	Operation Operator `json:"operation"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpForEachDefault() }) } // register the operator for JSON decoding

func NewOpForEachDefault() *OpForEach { return NewOpForEach(nil) }

func NewOpForEach(operation Operator) *OpForEach {
	return &OpForEach{
		OpBase:    OpBase{Type: "forEach", Active: operation != nil},
		Operation: operation,
	}
}

// Unmarshals the polymorphic operation from JSON
func (op *OpForEach) UnmarshalJSON(b []byte) error {
	var raw struct {
		OpBase
		Operation json.RawMessage `json:"operation"`
	}
	raw.OpBase = NewOpForEachDefault().OpBase
	raw.Active = true
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	op.OpBase, op.Operation = raw.OpBase, nil
	if len(raw.Operation) == 0 || string(raw.Operation) == "null" {
		return nil
	}
	var base OpBase
	if err := json.Unmarshal(raw.Operation, &base); err != nil {
		return err
	}
	factory := GetOperatorFactory(base.Type)
	if factory == nil {
		return errors.New(fmt.Sprintf("unknown operator type '%s' in raw JSON message '%s'", base.Type, string(raw.Operation)))
	}
	op.Operation = factory()
	return json.Unmarshal(raw.Operation, op.Operation)
}

// Applies the operation to each input individually
func (op *OpForEach) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return ins, nil
	}
	if op.Operation == nil {
		return nil, errors.New(fmt.Sprintf("%s operator has no operation to apply", op.Type))
	}
	for _, in := range ins {
		out, err := op.Operation.MakePromises([]Promise{in}, c)
		if err != nil {
			return nil, err
		}
		if len(out) != 1 {
			return nil, errors.New(fmt.Sprintf("%s operator needs exactly one promise from embedded operation", op.Type))
		}
		outs = append(outs, out[0])
	}
	return outs, nil
}
