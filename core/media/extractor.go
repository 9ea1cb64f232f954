package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"io"
	"math"
	"os"

	"go.uber.org/zap"
)

// ThumbnailQuality is the JPEG quality of extracted video thumbnails.
const ThumbnailQuality = 80

// thumbnailOffset is the fraction of the duration the thumbnail is taken at.
const thumbnailOffset = 0.1

// ProbeResult is what a decoder reports about a media file.
type ProbeResult struct {
	Duration      float64 // seconds
	Width, Height int     // zero for audio
}

// Prober reads media metadata from a local file.
type Prober interface {
	Probe(ctx context.Context, path string) (ProbeResult, error)
}

// FrameGrabber decodes a single video frame from a local file.
type FrameGrabber interface {
	GrabFrame(ctx context.Context, path string, at float64) (image.Image, error)
}

// VideoMetadata is the result of VideoMetadata. Thumbnail is a JPEG data URI
// and is empty when no frame could be rendered.
type VideoMetadata struct {
	Duration  int    `json:"duration"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Extractor derives duration and thumbnails locally; it never touches the network.
type Extractor struct {
	prober   Prober
	grabber  FrameGrabber // nil when frames cannot be rendered
	spoolDir string
	log      *zap.Logger
}

// NewExtractor creates an Extractor. grabber may be nil, in which case video
// metadata is returned without thumbnails.
func NewExtractor(prober Prober, grabber FrameGrabber, spoolDir string, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{
		prober:   prober,
		grabber:  grabber,
		spoolDir: spoolDir,
		log:      log.With(zap.String("component", "extractor")),
	}
}

// AudioDuration returns the file's duration rounded to whole seconds.
func (e *Extractor) AudioDuration(ctx context.Context, file File) (int, error) {
	path, release, err := e.localPath(ctx, file)
	if err != nil {
		return 0, newError(CodeMediaLoadError, err, "Failed to load audio file")
	}
	defer release()

	probe, err := e.prober.Probe(ctx, path)
	if err != nil {
		return 0, newError(CodeMediaLoadError, err, "Failed to load audio file")
	}
	return roundDuration(probe.Duration, "audio")
}

// VideoMetadata returns the video duration and, when a frame can be rendered,
// a JPEG thumbnail taken at 10% of the duration.
func (e *Extractor) VideoMetadata(ctx context.Context, file File) (VideoMetadata, error) {
	path, release, err := e.localPath(ctx, file)
	if err != nil {
		return VideoMetadata{}, newError(CodeMediaLoadError, err, "Failed to load video file")
	}
	defer release()

	probe, err := e.prober.Probe(ctx, path)
	if err != nil {
		return VideoMetadata{}, newError(CodeMediaLoadError, err, "Failed to load video file")
	}
	duration, err := roundDuration(probe.Duration, "video")
	if err != nil {
		return VideoMetadata{}, err
	}

	meta := VideoMetadata{Duration: duration}
	if e.grabber == nil {
		return meta, nil
	}

	frame, err := e.grabber.GrabFrame(ctx, path, probe.Duration*thumbnailOffset)
	if err != nil {
		e.log.Warn("thumbnail unavailable", zap.String("file", file.Name), zap.Error(err))
		return meta, nil
	}
	thumb, err := encodeThumbnail(frame, probe.Width, probe.Height)
	if err != nil {
		e.log.Warn("thumbnail encoding failed", zap.String("file", file.Name), zap.Error(err))
		return meta, nil
	}
	meta.Thumbnail = thumb
	return meta, nil
}

func roundDuration(seconds float64, what string) (int, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0, newError(CodeMediaLoadError, nil, "Failed to load %s file: invalid duration", what)
	}
	return int(math.Round(seconds)), nil
}

// encodeThumbnail draws frame onto a canvas of the native video size and
// encodes it as a JPEG data URI.
func encodeThumbnail(frame image.Image, width, height int) (string, error) {
	if width <= 0 || height <= 0 {
		b := frame.Bounds()
		width, height = b.Dx(), b.Dy()
	}
	if width <= 0 || height <= 0 {
		return "", fmt.Errorf("empty frame")
	}
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), frame, frame.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: ThumbnailQuality}); err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// localPath returns a filesystem path holding the file's bytes. Files already
// on disk are used in place; anything else is spooled to a temp file that the
// returned release func removes.
func (e *Extractor) localPath(ctx context.Context, file File) (string, func(), error) {
	if named, ok := file.Data.(interface{ Name() string }); ok {
		if fi, err := os.Stat(named.Name()); err == nil && fi.Mode().IsRegular() && fi.Size() == file.Size {
			return named.Name(), func() {}, nil
		}
	}

	tmp, err := os.CreateTemp(e.spoolDir, "probe-*."+file.Extension())
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	release := func() {
		tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			e.log.Warn("failed to remove temp file", zap.String("path", tmp.Name()), zap.Error(err))
		}
	}

	if _, err := io.Copy(tmp, ctxReader{ctx: ctx, r: file.Reader()}); err != nil {
		release()
		return "", nil, fmt.Errorf("spool %s: %w", file.Name, err)
	}
	if err := tmp.Close(); err != nil {
		release()
		return "", nil, fmt.Errorf("spool %s: %w", file.Name, err)
	}
	return tmp.Name(), release, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
