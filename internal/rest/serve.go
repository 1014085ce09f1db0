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

package rest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dcinzona/setiastro-pixinsight/internal/img"
	"github.com/dcinzona/setiastro-pixinsight/internal/ops"
	"github.com/dcinzona/setiastro-pixinsight/internal/ops/rgb"
	"github.com/dcinzona/setiastro-pixinsight/internal/stats"
	st "github.com/dcinzona/setiastro-pixinsight/internal/stretch"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nfnt/resize"
)

// Default width of preview JPEGs
const DefaultPreviewWidth = 512

type server struct {
	c *ops.Context
}

// Creates the router for the REST API. Request logs and processing logs go to the context log
func NewRouter(c *ops.Context) *gin.Engine {
	s := &server{c: c}
	r := gin.New()
	r.Use(requestID(), gin.LoggerWithWriter(c.Log), gin.Recovery())
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/stats", s.postStats)
			v1.POST("/stretch", s.postStretch)
			v1.POST("/preview", s.postPreview)
			v1.POST("/starstretch", s.postStarStretch)
			v1.POST("/nbstars", s.postNBStars)
		}
	}
	return r
}

// Header carrying the request ID. Set by the client, or generated if absent
const RequestIDHeader = "X-Request-Id"

// Tags each request with an ID, echoed in the response header
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("requestID", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// Listens and serves the REST API on the given address, e.g. ":8080"
func Serve(addr string, c *ops.Context) error {
	fmt.Fprintf(c.Log, "Serving REST API on %s\n", addr)
	return NewRouter(c).Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

// Maps errors to HTTP status codes: input errors are the client's fault,
// domain errors mean the image cannot be processed as requested
func statusFor(err error) int {
	switch {
	case st.IsInputError(err):
		return http.StatusBadRequest
	case st.IsDomainError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error(), "requestId": c.GetString("requestID")})
}

// Reads a TIFF or FITS image from the given multipart form file, detecting FITS by its header.
// Dimensions are checked against the memory of the context before any pixels are decoded
func (s *server) readImage(fh *multipart.FileHeader, id int) (*img.Image, error) {
	file, err := fh.Open()
	if err != nil {
		return nil, &st.InputError{Msg: fmt.Sprintf("cannot open upload %s: %s", fh.Filename, err.Error())}
	}
	defer file.Close()

	r := bufio.NewReader(file)
	prefix, _ := r.Peek(9)
	isFITS := img.IsFITS(prefix)
	var width, height, channels int
	if isFITS {
		var h *img.FITSHeader
		if h, err = img.ReadFITSHeader(r); err == nil {
			width, height, channels, err = h.Dimensions()
		}
	} else {
		width, height, channels, err = img.ReadTIFFConfig(r)
	}
	if err != nil {
		return nil, &st.InputError{Msg: fmt.Sprintf("cannot decode %s: %s", fh.Filename, err.Error())}
	}
	if err = s.c.CheckImageSize(width, height, channels); err != nil {
		return nil, &st.InputError{Msg: fmt.Sprintf("cannot accept %s: %s", fh.Filename, err.Error())}
	}
	if _, err = file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	r = bufio.NewReader(file)
	var f *img.Image
	if isFITS {
		f, _, err = img.ReadFITS(r)
	} else {
		f, err = img.ReadTIFF(r)
	}
	if err != nil {
		return nil, &st.InputError{Msg: fmt.Sprintf("cannot decode %s: %s", fh.Filename, err.Error())}
	}
	f.ID, f.FileName = id, fh.Filename
	return f, nil
}

// Reads the mandatory image upload of the given form field
func (s *server) formImage(c *gin.Context, field string, id int) (*img.Image, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, &st.InputError{Msg: fmt.Sprintf("missing image upload '%s'", field)}
	}
	return s.readImage(fh, id)
}

// Reads the optional settings form field, defaulting absent values
func formSettings(c *gin.Context) (*st.Settings, error) {
	s, err := st.LoadSettings(strings.NewReader(c.PostForm("settings")), "settings.json")
	if err != nil {
		return nil, err
	}
	if err = s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Writes the image in the requested format, 16-bit TIFF by default
func writeImage(c *gin.Context, f *img.Image, format string) {
	buf := bytes.Buffer{}
	var err error
	contentType := "image/tiff"
	switch strings.ToLower(format) {
	case "", "tif", "tiff":
		err = f.WriteTIFF16(&buf)
	case "jpg", "jpeg":
		contentType = "image/jpeg"
		err = f.WriteJPG(&buf, 95)
	case "fits", "fit":
		contentType = "image/fits"
		err = f.WriteFITS(&buf)
	default:
		err = &st.InputError{Msg: fmt.Sprintf("unknown format '%s'", format)}
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

type statsResponse struct {
	Dimensions string         `json:"dimensions"`
	Channels   []*stats.Stats `json:"channels"`
	Aggregate  *stats.Stats   `json:"aggregate"`
	BlackPoint float64        `json:"blackPoint"`
}

func (s *server) postStats(c *gin.Context) {
	f, err := s.formImage(c, "image", 0)
	if err != nil {
		abortWithError(c, err)
		return
	}
	agg, chans, err := st.Statistics(f, s.c.Estimator)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, statsResponse{
		Dimensions: f.DimensionsToString(),
		Channels:   chans,
		Aggregate:  agg,
		BlackPoint: stats.BlackPoint(agg),
	})
}

func (s *server) postStretch(c *gin.Context) {
	f, err := s.formImage(c, "image", 0)
	if err != nil {
		abortWithError(c, err)
		return
	}
	settings, err := formSettings(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if _, err = st.RunStatisticalStretch(f, settings.Params(), s.c.Estimator, s.c.Log); err != nil {
		abortWithError(c, err)
		return
	}
	writeImage(c, f, c.PostForm("format"))
}

type previewArgs struct {
	Width int `form:"width,default=512"`
}

// Stretches a binned copy of the image with sampled statistics, and returns it as JPEG of the requested width
func (s *server) postPreview(c *gin.Context) {
	var args previewArgs
	if err := c.ShouldBind(&args); err != nil {
		abortWithError(c, &st.InputError{Msg: err.Error()})
		return
	}
	if args.Width <= 0 {
		abortWithError(c, &st.InputError{Msg: fmt.Sprintf("preview width %d not positive", args.Width)})
		return
	}
	f, err := s.formImage(c, "image", 0)
	if err != nil {
		abortWithError(c, err)
		return
	}
	settings, err := formSettings(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	factor := st.PreviewFactor(f.Width(), int32(args.Width))
	preview, err := st.Preview(f, settings.Params(), factor, stats.Sampled{Samples: stats.DefaultSamples}, s.c.Log)
	if err != nil {
		abortWithError(c, err)
		return
	}
	goImg, err := preview.ToImage()
	if err != nil {
		abortWithError(c, err)
		return
	}
	resized := resize.Resize(uint(args.Width), 0, goImg, resize.Lanczos3)

	buf := bytes.Buffer{}
	if err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 90}); err != nil {
		abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", buf.Bytes())
}

// Runs the operator sequence on the given inputs and returns the single result
func (s *server) runSequence(seq *ops.OpSequence, ins ...*img.Image) (*img.Image, error) {
	promises := make([]ops.Promise, len(ins))
	for i, f := range ins {
		promises[i] = ops.PromiseImage(f)
	}
	outs, err := seq.MakePromises(promises, s.c)
	if err != nil {
		return nil, err
	}
	if len(outs) != 1 {
		return nil, errors.New(fmt.Sprintf("expected one result, got %d", len(outs)))
	}
	return outs[0]()
}

func (s *server) postStarStretch(c *gin.Context) {
	f, err := s.formImage(c, "image", 0)
	if err != nil {
		abortWithError(c, err)
		return
	}
	settings, err := formSettings(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	seq, err := rgb.NewOpStarStretch(settings.Amount, settings.SatAmount)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if f, err = s.runSequence(seq, f); err != nil {
		abortWithError(c, err)
		return
	}
	writeImage(c, f, c.PostForm("format"))
}

type nbStarsArgs struct {
	Stretch       bool    `form:"stretch"`
	StretchFactor float64 `form:"stretchFactor,default=5"`
	ColorBoost    float64 `form:"colorBoost,default=1"`
	Format        string  `form:"format"`
}

func (s *server) postNBStars(c *gin.Context) {
	var args nbStarsArgs
	if err := c.ShouldBind(&args); err != nil {
		abortWithError(c, &st.InputError{Msg: err.Error()})
		return
	}
	seq, err := rgb.NewOpNBToRGBStars(args.Stretch, args.StretchFactor, args.ColorBoost)
	if err != nil {
		abortWithError(c, err)
		return
	}
	printArgs(s.c.Log, "Narrowband stars with arguments ", "\n", args)

	fields := []string{"ha", "oiii", "sii"}
	var ins []*img.Image
	for i, field := range fields {
		fh, err := c.FormFile(field)
		if err != nil {
			if field == "sii" {
				break
			}
			abortWithError(c, &st.InputError{Msg: fmt.Sprintf("missing image upload '%s'", field)})
			return
		}
		f, err := s.readImage(fh, i)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if f.Channels() != 1 {
			abortWithError(c, &st.InputError{Msg: fmt.Sprintf("%s channel must be a mono image, got %s", field, f.DimensionsToString())})
			return
		}
		if len(ins) > 0 && !img.EqualInt32Slice(f.Naxisn, ins[0].Naxisn) {
			abortWithError(c, &st.InputError{Msg: fmt.Sprintf("%s channel has dimensions %s, expected %s",
				field, f.DimensionsToString(), ins[0].DimensionsToString())})
			return
		}
		ins = append(ins, f)
	}

	f, err := s.runSequence(seq, ins...)
	if err != nil {
		abortWithError(c, err)
		return
	}
	writeImage(c, f, args.Format)
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.Marshal(args)
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}
