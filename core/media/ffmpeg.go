package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
)

// FFmpeg probes and decodes media with the ffprobe and ffmpeg binaries.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg creates a decoder backend for the given binaries.
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// CanProbe reports whether ffprobe is installed.
func (f *FFmpeg) CanProbe() bool {
	_, err := exec.LookPath(f.ffprobePath)
	return err == nil
}

// CanGrabFrames reports whether ffmpeg is installed.
func (f *FFmpeg) CanGrabFrames() bool {
	_, err := exec.LookPath(f.ffmpegPath)
	return err == nil
}

// ffprobeOutput is the subset of ffprobe's JSON output we read.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe reads the container duration and the first video stream's resolution.
func (f *FFmpeg) Probe(ctx context.Context, inputFile string) (ProbeResult, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration:stream=codec_type,width,height",
		"-of", "json",
		inputFile,
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe execution failed for %s: %w\nFFprobe Error: %s", inputFile, err, stderr.String())
	}
	return parseProbe(out.Bytes())
}

func parseProbe(data []byte) (ProbeResult, error) {
	var probeData ffprobeOutput
	if err := json.Unmarshal(data, &probeData); err != nil {
		return ProbeResult{}, fmt.Errorf("failed to unmarshal ffprobe output: %w", err)
	}
	if probeData.Format.Duration == "" {
		return ProbeResult{}, fmt.Errorf("duration not found in ffprobe output: %s", data)
	}

	duration, err := strconv.ParseFloat(probeData.Format.Duration, 64)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("failed to parse duration string %q: %w", probeData.Format.Duration, err)
	}

	result := ProbeResult{Duration: duration}
	for _, s := range probeData.Streams {
		if s.CodecType == "video" {
			result.Width, result.Height = s.Width, s.Height
			break
		}
	}
	return result, nil
}

// GrabFrame decodes the frame at the given offset (seconds) at native resolution.
func (f *FFmpeg) GrabFrame(ctx context.Context, inputFile string, at float64) (image.Image, error) {
	args := []string{
		"-v", "error",
		"-ss", strconv.FormatFloat(at, 'f', 3, 64),
		"-i", inputFile,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame grab failed for %s: %w\nFFmpeg Error: %s", inputFile, err, stderr.String())
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame for %s at %.3fs", inputFile, at)
	}
	img, err := png.Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("decode grabbed frame: %w", err)
	}
	return img, nil
}
