package audio

import (
	"context"
	"fmt"
	"os"
)

// LoadFile decodes an audio file into mono float32 samples at sampleRate.
// PCM WAV files are decoded in-process; everything else goes through ffmpeg.
func LoadFile(ctx context.Context, path string, sampleRate int, ff *FFmpeg) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}

	if IsWAV(data) {
		samples, rate, err := DecodeWAV(data)
		if err == nil {
			return Resample(samples, rate, sampleRate), nil
		}
		if ff == nil {
			return nil, err
		}
	}

	if ff == nil {
		return nil, fmt.Errorf("cannot decode %s without ffmpeg", path)
	}
	return ff.DecodeFile(ctx, path, sampleRate)
}
