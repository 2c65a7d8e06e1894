package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// DurationProber returns the length of an audio file in seconds.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// FFprobe implements DurationProber with the ffprobe binary that ships next to ffmpeg.
type FFprobe struct {
	ffprobePath string
}

// NewFFprobe derives the ffprobe path from the configured ffmpeg path.
func NewFFprobe(ffmpegPath string) *FFprobe {
	return &FFprobe{ffprobePath: strings.Replace(ffmpegPath, "ffmpeg", "ffprobe", 1)}
}

// ffprobeOutput defines the structure for ffprobe JSON output.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration uses ffprobe to get the duration of an audio file in seconds.
func (p *FFprobe) Duration(ctx context.Context, inputFile string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		inputFile,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe execution failed for %s: %w\nFFprobe Error: %s", inputFile, err, stderr.String())
	}
	return parseProbeOutput(out.Bytes())
}

func parseProbeOutput(data []byte) (float64, error) {
	var probeData ffprobeOutput
	if err := json.Unmarshal(data, &probeData); err != nil {
		return 0, fmt.Errorf("failed to unmarshal ffprobe output: %w", err)
	}
	if probeData.Format.Duration == "" {
		return 0, fmt.Errorf("duration not found in ffprobe output")
	}
	duration, err := strconv.ParseFloat(probeData.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration string %q: %w", probeData.Format.Duration, err)
	}
	return duration, nil
}

// SizeEstimator guesses a duration from the file size at a fixed bitrate.
type SizeEstimator struct {
	BitrateKbps int
}

// Duration implements DurationProber.
func (e SizeEstimator) Duration(_ context.Context, path string) (float64, error) {
	if e.BitrateKbps <= 0 {
		return 0, fmt.Errorf("invalid bitrate %d", e.BitrateKbps)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return EstimateDuration(info.Size(), e.BitrateKbps), nil
}

// EstimateDuration converts bytes to seconds at bitrateKbps.
func EstimateDuration(size int64, bitrateKbps int) float64 {
	if bitrateKbps <= 0 {
		return 0
	}
	return float64(size) * 8 / float64(bitrateKbps*1000)
}

// Fallback tries each prober in turn and returns the first success.
type Fallback []DurationProber

// Duration implements DurationProber.
func (f Fallback) Duration(ctx context.Context, path string) (float64, error) {
	var lastErr error
	for _, p := range f {
		d, err := p.Duration(ctx, path)
		if err == nil {
			return d, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no duration prober configured")
	}
	return 0, lastErr
}
