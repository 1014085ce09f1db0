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

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/dcinzona/setiastro-pixinsight/internal/logging"
	"github.com/dcinzona/setiastro-pixinsight/internal/ops"
	"github.com/dcinzona/setiastro-pixinsight/internal/ops/rgb"
	opstretch "github.com/dcinzona/setiastro-pixinsight/internal/ops/stretch"
	"github.com/dcinzona/setiastro-pixinsight/internal/rest"
	"github.com/dcinzona/setiastro-pixinsight/internal/stats"
	st "github.com/dcinzona/setiastro-pixinsight/internal/stretch"
)

const version = "0.3.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out = flag.String("out", "out.tif", "save output to `file`, as 16-bit TIFF, float FITS or JPEG depending on suffix. %d is replaced by the image ID, and added before the suffix when several files are processed")
var jpg = flag.String("jpg", "%auto", "save 8bit preview of output as JPEG to `file`. `%auto` replaces suffix of output file with .jpg")
var logName = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output file with .log")
var logMaxSize = flag.Int("logMaxSize", 10, "rotate the log file of the serve command after `MB` megabytes, 0=never")

var settingsFile = flag.String("settings", "", "load stretch settings from JSON or YAML `file`")
var saveSettings = flag.String("saveSettings", "", "save the effective stretch settings to JSON or YAML `file`")

var targetMedian = flag.Float64("targetMedian", 0.25, "target median after stretching, in (0,1)")
var curvesBoost = flag.Float64("curvesBoost", 0, "contrast boost of the finishing tone curve in [0,0.3], 0=off")
var numIterations = flag.Int("iterations", 1, "number of stretch iterations in [1,5]")
var normalize = flag.Bool("normalize", true, "normalize the image range to [0,1] after each iteration")
var amount = flag.Float64("amount", 5, "star stretch amount in [0,8]")
var satAmount = flag.Float64("satAmount", 1, "star stretch saturation boost in [0,2]")

var previewWidth = flag.Int("previewWidth", rest.DefaultPreviewWidth, "approximate width of previews in pixels")
var sampled = flag.Bool("sampled", false, "estimate statistics from a random sample instead of all pixels")

var nbStretch = flag.Bool("nbStretch", false, "stretch and saturate the narrowband star composite")
var stretchFactor = flag.Float64("stretchFactor", 5, "narrowband star stretch factor in [0,8]")
var colorBoost = flag.Float64("colorBoost", 1, "narrowband star color boost in [0,3]")

var addr = flag.String("addr", ":8080", "listen address for the REST server")
var chroot = flag.String("chroot", "", "change filesystem root to `dir` before serving (requires root)")
var setuid = flag.Int("setuid", -1, "change user id to `uid` before serving, -1=don't")

func main() {
	log := logging.New(os.Stdout)
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(log, `Statstretch Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (stats|stretch|preview|starstretch|nbstars|job|serve|legal|version) (img0.tif|fits ... imgn.tif|fits)

Commands:
  stats       Show input image statistics
  stretch     Statistical stretch of each image to the target median
  preview     Stretch a binned copy of each image and save it as JPEG
  starstretch Fixed stretch of star images, with saturation boost and green removal for color
  nbstars     Combine Ha, OIII and optional SII star images into RGB, in that order
  job         Run the JSON operator sequence from the given file
  serve       Serve the REST API
  legal       Show license and attribution information
  version     Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Initialize logging to file in addition to stdout, if selected
	if *logName == "%auto" {
		*logName = ""
		if *out != "" {
			*logName = strings.TrimSuffix(*out, filepath.Ext(*out)) + ".log"
		}
	}
	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}
	if *logName != "" && args[0] != "legal" && args[0] != "version" && args[0] != "help" {
		var err error
		if args[0] == "serve" && *logMaxSize > 0 {
			err = log.AlsoToRotatingFile(*logName, *logMaxSize)
		} else {
			err = log.AlsoToFile(*logName)
		}
		if err != nil {
			log.Fatalf("Unable to open logfile '%s': %s\n", *logName, err.Error())
		}
	}
	defer log.Close()

	// Also auto-select JPEG output target
	if *jpg == "%auto" {
		*jpg = ""
		if *out != "" && !strings.HasSuffix(strings.ToLower(*out), ".jpg") {
			*jpg = strings.TrimSuffix(*out, filepath.Ext(*out)) + ".jpg"
		}
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatalf("Could not create CPU profile: %s\n", err.Error())
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatalf("Could not start CPU profile: %s\n", err.Error())
		}
		defer pprof.StopCPUProfile()
	}

	var est stats.Estimator = stats.Exact{}
	if *sampled {
		est = stats.Sampled{Samples: stats.DefaultSamples}
	}
	c := ops.NewContext(log, est)

	settings, err := loadSettings()
	if err != nil {
		fmt.Fprintf(log, "Error: %s\n", err.Error())
		log.Close()
		os.Exit(-1)
	}

	// run actions
	switch args[0] {
	case "stats":
		err = runOnFiles(c, args[1:], func() ops.Operator { return opstretch.NewOpStatsDefault() })

	case "stretch":
		fmt.Fprintf(log, "Using %s statistics on %s\n", est, c.HostInfo())
		err = runOnFiles(c, args[1:], func() ops.Operator {
			return opstretch.NewOpStretch(
				opstretch.NewOpStats(true, 0),
				opstretch.NewOpBin(0, 0),
				opstretch.NewOpStatStretchFromSettings(settings),
				ops.NewOpSave(*out),
				ops.NewOpSave(*jpg),
			)
		})

	case "preview":
		err = runOnFiles(c, args[1:], func() ops.Operator {
			previewName := *jpg
			if previewName == "" {
				previewName = *out
			}
			return ops.NewOpSequence(
				opstretch.NewOpBin(0, int32(*previewWidth)),
				opstretch.NewOpStatStretchFromSettings(settings),
				ops.NewOpSave(previewName),
			)
		})

	case "starstretch":
		var seq *ops.OpSequence
		if seq, err = rgb.NewOpStarStretch(settings.Amount, settings.SatAmount); err == nil {
			err = runOnFiles(c, args[1:], func() ops.Operator {
				seq.Append(ops.NewOpSave(*out), ops.NewOpSave(*jpg))
				return seq
			})
		}

	case "nbstars":
		err = cmdNBStars(c, args[1:])

	case "job":
		err = cmdJob(c, args[1:])

	case "serve":
		if err = rest.MakeSandbox(*chroot, *setuid, log); err == nil {
			fmt.Fprintf(log, "Running on %s\n", c.HostInfo())
			err = rest.Serve(*addr, c)
		}

	case "legal":
		fmt.Fprint(log, legal)

	case "version":
		fmt.Fprintf(log, "Version %s on %s\n", version, c.HostInfo())

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(log, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	if err == nil && *saveSettings != "" {
		err = writeSettings(settings, *saveSettings)
	}

	fmt.Fprintf(log, "\nDone after %v\n", time.Since(start))

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			log.Fatalf("Could not create memory profile: %s\n", err.Error())
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			log.Fatalf("Could not write allocation profile: %s\n", err.Error())
		}
	}

	if err != nil {
		fmt.Fprintf(log, "Error: %s\n", err.Error())
		log.Close()
		os.Exit(-1)
	}
}

// Loads settings from the settings file if given, then applies explicitly set flags
func loadSettings() (*st.Settings, error) {
	settings := st.NewSettingsDefault()
	if *settingsFile != "" {
		f, err := os.Open(*settingsFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if settings, err = st.LoadSettings(f, *settingsFile); err != nil {
			return nil, err
		}
	}
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "targetMedian":
			settings.TargetMedian = *targetMedian
		case "curvesBoost":
			settings.CurvesBoost = *curvesBoost
		case "iterations":
			settings.NumIterations = *numIterations
		case "normalize":
			settings.NormalizeImageRange = *normalize
		case "amount":
			settings.Amount = *amount
		case "satAmount":
			settings.SatAmount = *satAmount
		}
	})
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func writeSettings(settings *st.Settings, fileName string) error {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	if err = settings.Save(f, fileName); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Loads all files matching the patterns, applies the operator built by newOp to each and saves results as per the operator.
// With several inputs, output names without %d are made distinct per image before newOp is called
func runOnFiles(c *ops.Context, patterns []string, newOp func() ops.Operator) error {
	if len(patterns) == 0 {
		return errors.New("no input files")
	}
	ins, err := ops.NewOpLoadMany(patterns).MakePromises(nil, c)
	if err != nil {
		return err
	}
	if o := ops.UniqueFilePattern(*out, len(ins)); o != *out {
		fmt.Fprintf(c.Log, "%d inputs, saving to %s\n", len(ins), o)
		*out = o
	}
	*jpg = ops.UniqueFilePattern(*jpg, len(ins))
	outs, err := ops.NewOpForEach(newOp()).MakePromises(ins, c)
	if err != nil {
		return err
	}
	_, err = ops.MaterializeAll(outs, c.MaxThreads, true)
	return err
}

// Combines narrowband star images given in the order Ha, OIII and optional SII
func cmdNBStars(c *ops.Context, fileNames []string) error {
	if len(fileNames) < 2 || len(fileNames) > 3 {
		return errors.New(fmt.Sprintf("need Ha, OIII and optional SII files, got %d", len(fileNames)))
	}
	seq, err := rgb.NewOpNBToRGBStars(*nbStretch, *stretchFactor, *colorBoost)
	if err != nil {
		return err
	}
	seq.Append(ops.NewOpSave(*out), ops.NewOpSave(*jpg))

	var ins []ops.Promise
	for i, fileName := range fileNames {
		promises, err := ops.NewOpLoad(i, fileName).MakePromises(nil, c)
		if err != nil {
			return err
		}
		ins = append(ins, promises...)
	}
	outs, err := seq.MakePromises(ins, c)
	if err != nil {
		return err
	}
	_, err = ops.MaterializeAll(outs, c.MaxThreads, true)
	return err
}

// Runs the operator sequence described in the given JSON file
func cmdJob(c *ops.Context, args []string) error {
	if len(args) != 1 {
		return errors.New(fmt.Sprintf("need exactly one job file, got %d", len(args)))
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var seq ops.OpSequence
	if err = json.Unmarshal(data, &seq); err != nil {
		return errors.New(fmt.Sprintf("error parsing job %s: %s", args[0], err.Error()))
	}
	m, err := json.MarshalIndent(&seq, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Log, "Running job with these steps:\n%s\n", string(m))

	outs, err := seq.MakePromises(nil, c)
	if err != nil {
		return err
	}
	_, err = ops.MaterializeAll(outs, c.MaxThreads, true)
	return err
}
