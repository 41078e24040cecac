// Command centernet runs CenterNet detection on images, image sequences or video files.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/nvr-ai/go-centernet/config"
	"github.com/nvr-ai/go-centernet/images"
	"github.com/nvr-ai/go-centernet/inference"
	"github.com/nvr-ai/go-centernet/logger"
	"github.com/nvr-ai/go-centernet/models"
	"github.com/nvr-ai/go-centernet/models/model"
	"github.com/nvr-ai/go-centernet/models/postprocess"
	"github.com/nvr-ai/go-centernet/profiler"
	"github.com/nvr-ai/go-centernet/util"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// frame is a decoded input image kept both as a Mat for drawing and as an image.Image for the
// engine.
type frame struct {
	name string
	mat  gocv.Mat
	img  image.Image
}

func main() {
	var (
		configPath = flag.String("config", "", "path to the YAML configuration")
		modelPath  = flag.String("model", "", "path to the ONNX model, overrides the configuration")
		imagePath  = flag.String("image", "", "single image to detect on")
		dirPath    = flag.String("dir", "", "directory of consecutive frames")
		videoPath  = flag.String("video", "", "video file to detect on")
		outputPath = flag.String("output", "", "annotated image (with -image) or directory (with -dir/-video)")
		logLevel   = flag.String("log-level", "", "debug, info, warn or error, overrides the configuration")
		plotThresh = flag.Float64("plot-thresh", -1, "minimum score of drawn boxes, overrides the configuration")
	)
	flag.Parse()

	if err := run(*configPath, *modelPath, *imagePath, *dirPath, *videoPath, *outputPath, *logLevel, *plotThresh); err != nil {
		logger.Error("centernet failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, modelPath, imagePath, dirPath, videoPath, outputPath, logLevel string, plotThresh float64) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if modelPath != "" {
		cfg.Model.Path = modelPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if plotThresh >= 0 {
		cfg.PlotThresh = float32(plotThresh)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Init(cfg.LogLevel)

	inputs := 0
	for _, p := range []string{imagePath, dirPath, videoPath} {
		if p != "" {
			inputs++
		}
	}
	if inputs != 1 {
		return errors.New("exactly one of -image, -dir or -video is required")
	}

	timings := profiler.NewTracker()
	defer timings.Report(logger.L())

	engine, err := inference.NewEngineBuilder().
		WithRuntime(cfg.Runtime).
		WithProfiler(timings).
		WithModel(cfg.ModelArgs()).
		WithNormalization(cfg.Model.Mean, cfg.Model.Std).
		Build()
	if err != nil {
		return errors.Wrap(err, "can't build engine")
	}
	defer engine.Close()

	logger.Info("engine ready",
		"model", cfg.Model.Path,
		"input", fmt.Sprintf("%dx%d", cfg.Model.InputWidth, cfg.Model.InputHeight),
		"frames", cfg.Model.InputFrames,
		"top_k", cfg.Decoder.TopK,
		"nms", cfg.Decoder.NMS,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	d := &detector{engine: engine, cfg: cfg}
	switch {
	case imagePath != "":
		return d.detectImage(ctx, imagePath, outputPath)
	case dirPath != "":
		return d.detectDirectory(ctx, dirPath, outputPath)
	default:
		return d.detectVideo(ctx, videoPath, outputPath)
	}
}

type detector struct {
	engine inference.Engine
	cfg    config.Config
}

// detectImage detects on a single picture repeated to fill the frame window.
func (d *detector) detectImage(ctx context.Context, path, output string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "can't read image %s", path)
	}
	f, err := decodeFrame(filepath.Base(path), data)
	if err != nil {
		return err
	}
	defer f.mat.Close()

	window := util.Windows([]*frame{f}, d.cfg.Model.InputFrames)[0]
	return d.detect(ctx, window, output)
}

// detectDirectory detects on every window of consecutive frames in dir.
func (d *detector) detectDirectory(ctx context.Context, dir, output string) error {
	files, err := util.LoadDirectoryImageFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.Errorf("no images in %s", dir)
	}
	if err := makeDir(output); err != nil {
		return err
	}

	frames := make([]*frame, 0, len(files))
	defer func() {
		for _, f := range frames {
			f.mat.Close()
		}
	}()
	for _, file := range files {
		f, err := decodeFrame(filepath.Base(file.Path), file.Data)
		if err != nil {
			logger.Warn("skipping unreadable image", "path", file.Path, "error", err)
			continue
		}
		frames = append(frames, f)
	}

	for _, window := range util.Windows(frames, d.cfg.Model.InputFrames) {
		target := ""
		if output != "" {
			target = filepath.Join(output, window[len(window)-1].name)
		}
		if err := d.detect(ctx, window, target); err != nil {
			return err
		}
	}
	return nil
}

// detectVideo detects on a sliding window over the frames of a video file.
func (d *detector) detectVideo(ctx context.Context, path, output string) error {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return errors.Wrapf(err, "can't open video %s", path)
	}
	defer capture.Close()

	if err := makeDir(output); err != nil {
		return err
	}

	size := d.cfg.Model.InputFrames
	var window []*frame
	defer func() {
		for _, f := range window {
			f.mat.Close()
		}
	}()

	for n := 0; ; n++ {
		mat := gocv.NewMat()
		if ok := capture.Read(&mat); !ok || mat.Empty() {
			mat.Close()
			break
		}
		f, err := newFrame(fmt.Sprintf("frame-%06d.jpg", n), mat)
		if err != nil {
			mat.Close()
			return err
		}

		window = append(window, f)
		if len(window) > size {
			window[0].mat.Close()
			window = window[1:]
		}

		target := ""
		if output != "" {
			target = filepath.Join(output, f.name)
		}
		if err := d.detect(ctx, util.Windows(window, size)[0], target); err != nil {
			return err
		}
	}
	return nil
}

// detect runs one window, logs the detections and optionally writes the annotated newest frame.
func (d *detector) detect(ctx context.Context, window []*frame, output string) error {
	imgs := make([]image.Image, len(window))
	for i, f := range window {
		imgs[i] = f.img
	}
	newest := window[len(window)-1]

	set, err := d.engine.Predict(ctx, imgs)
	if err != nil {
		return errors.Wrapf(err, "can't detect on %s", newest.name)
	}

	logger.Info("detected", "frame", newest.name, "count", set.CountValid())
	for _, r := range set.Valid() {
		logger.Debug("detection",
			"frame", newest.name,
			"class", models.LookupName(d.cfg.Model.Family, r.Class),
			"score", r.Score,
			"box", r.Box.String(),
		)
	}

	if output == "" {
		return nil
	}

	annotated := newest.mat.Clone()
	defer annotated.Close()
	annotate(&annotated, set, d.cfg.Model.Family, d.cfg.PlotThresh)
	if ok := gocv.IMWrite(output, annotated); !ok {
		return errors.Errorf("can't write %s", output)
	}
	return nil
}

// annotate draws every valid detection scoring at least thresh.
func annotate(mat *gocv.Mat, set postprocess.DetectionSet, family model.Family, thresh float32) {
	green := color.RGBA{0, 255, 0, 0}
	for _, r := range set.Valid() {
		if r.Score < thresh {
			continue
		}
		rect := image.Rect(int(r.Box.X1), int(r.Box.Y1), int(r.Box.X2), int(r.Box.Y2))
		gocv.Rectangle(mat, rect, green, 2)

		label := fmt.Sprintf("%s %.2f", models.LookupName(family, r.Class), r.Score)
		gocv.PutText(mat, label, image.Pt(rect.Min.X, max(rect.Min.Y-4, 12)), gocv.FontHersheyPlain, 1.2, green, 2)
	}
}

// decodeFrame decodes an encoded image and converts it to a Mat for drawing.
func decodeFrame(name string, data []byte) (*frame, error) {
	img, err := images.Decode(data, images.FormatFromPath(name))
	if err != nil {
		return nil, err
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, errors.Wrapf(err, "can't convert %s", name)
	}
	return &frame{name: name, mat: mat, img: img}, nil
}

// newFrame wraps a decoded video Mat.
func newFrame(name string, mat gocv.Mat) (*frame, error) {
	img, err := mat.ToImage()
	if err != nil {
		return nil, errors.Wrapf(err, "can't convert %s", name)
	}
	return &frame{name: name, mat: mat, img: img}, nil
}

func makeDir(dir string) error {
	if dir == "" {
		return nil
	}
	return errors.Wrapf(os.MkdirAll(dir, 0o755), "can't create %s", dir)
}
