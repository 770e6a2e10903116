// ============================================================================
// voicebridge - Swedish speech processing
// ============================================================================
//
// Package:     audio
// Description: ffmpeg conversion and decoding
// License:     MIT
// ============================================================================

package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// FFmpeg wraps the ffmpeg binary used for decoding and transcoding
type FFmpeg struct {
	Binary  string
	Timeout time.Duration
}

// NewFFmpeg creates an ffmpeg wrapper with defaults for empty fields
func NewFFmpeg(binary string, timeout time.Duration) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FFmpeg{Binary: binary, Timeout: timeout}
}

// Available reports whether the ffmpeg binary can be found
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.Binary)
	return err == nil
}

// Convert converts in to out, the container chosen by out's extension
func (f *FFmpeg) Convert(ctx context.Context, in, out string) error {
	_, err := f.run(ctx, "-i", in, "-y", out)
	return err
}

// DecodeFile decodes any input ffmpeg understands into mono float32 samples
func (f *FFmpeg) DecodeFile(ctx context.Context, path string, sampleRate int) ([]float32, error) {
	raw, err := f.run(ctx,
		"-nostdin", "-loglevel", "error",
		"-i", path,
		"-f", "s16le", "-acodec", "pcm_s16le",
		"-ac", "1", "-ar", strconv.Itoa(sampleRate),
		"-",
	)
	if err != nil {
		return nil, err
	}

	samples := make([]float32, len(raw)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768.0
	}
	return samples, nil
}

func (f *FFmpeg) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("ffmpeg timed out after %s", f.Timeout)
		}
		return nil, fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
