// ============================================================================
// voicebridge - Swedish speech processing
// ============================================================================
//
// Package:     audio
// Description: WAV encoding and decoding for 16-bit PCM
// License:     MIT
// ============================================================================

package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrNotWAV is returned when data does not carry a RIFF/WAVE header
var ErrNotWAV = errors.New("not a valid WAVE file")

// WAVInfo describes the format of a parsed WAV file
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	AudioFormat   int
}

// IsWAV reports whether data starts with a RIFF/WAVE header
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// ParseWAV walks the RIFF chunks and returns the format and the raw data chunk
func ParseWAV(data []byte) (WAVInfo, []byte, error) {
	var info WAVInfo

	if len(data) < 44 {
		return info, nil, fmt.Errorf("file too small to be a valid WAV")
	}
	if !IsWAV(data) {
		return info, nil, ErrNotWAV
	}

	pos := 12
	dataStart := -1
	dataSize := 0

	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && pos+24 <= len(data) {
				info.AudioFormat = int(binary.LittleEndian.Uint16(data[pos+8 : pos+10]))
				info.Channels = int(binary.LittleEndian.Uint16(data[pos+10 : pos+12]))
				info.SampleRate = int(binary.LittleEndian.Uint32(data[pos+12 : pos+16]))
				info.BitsPerSample = int(binary.LittleEndian.Uint16(data[pos+22 : pos+24]))
			}
		case "data":
			dataStart = pos + 8
			dataSize = chunkSize
		}

		if dataStart >= 0 && info.SampleRate != 0 {
			break
		}

		pos += 8 + chunkSize
		if pos%2 != 0 {
			pos++ // Word alignment
		}
	}

	if info.SampleRate == 0 || dataStart < 0 {
		return info, nil, fmt.Errorf("missing required WAV chunks")
	}

	// Streams written to a pipe carry a placeholder size
	if dataStart+dataSize > len(data) || dataSize == 0 {
		dataSize = len(data) - dataStart
	}

	return info, data[dataStart : dataStart+dataSize], nil
}

// DecodeWAV decodes a WAV file into mono float32 samples in [-1, 1].
// Multi-channel audio is mixed down by averaging.
func DecodeWAV(data []byte) ([]float32, int, error) {
	info, pcm, err := ParseWAV(data)
	if err != nil {
		return nil, 0, err
	}
	if info.Channels < 1 {
		info.Channels = 1
	}

	var frames [][]float32
	switch {
	case info.AudioFormat == 1 && info.BitsPerSample == 16:
		frames = deinterleave(len(pcm)/2, info.Channels, func(i int) float32 {
			return float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
		})
	case info.AudioFormat == 1 && info.BitsPerSample == 8:
		frames = deinterleave(len(pcm), info.Channels, func(i int) float32 {
			return (float32(pcm[i]) - 128) / 128.0
		})
	case info.AudioFormat == 3 && info.BitsPerSample == 32:
		frames = deinterleave(len(pcm)/4, info.Channels, func(i int) float32 {
			return math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*4:]))
		})
	default:
		return nil, 0, fmt.Errorf("unsupported WAV encoding: format %d, %d bits", info.AudioFormat, info.BitsPerSample)
	}

	return mixDown(frames), info.SampleRate, nil
}

func deinterleave(total, channels int, sample func(i int) float32) [][]float32 {
	n := total / channels
	frames := make([][]float32, n)
	for f := 0; f < n; f++ {
		frame := make([]float32, channels)
		for c := 0; c < channels; c++ {
			frame[c] = sample(f*channels + c)
		}
		frames[f] = frame
	}
	return frames
}

func mixDown(frames [][]float32) []float32 {
	out := make([]float32, len(frames))
	for i, frame := range frames {
		var sum float32
		for _, s := range frame {
			sum += s
		}
		out[i] = sum / float32(len(frame))
	}
	return out
}

// WriteWAV writes mono float32 samples as a 16-bit PCM WAV file
func WriteWAV(w io.Writer, samples []float32, sampleRate int) error {
	numChannels := uint16(1)
	bitsPerSample := uint16(16)
	byteRate := uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8
	blockAlign := numChannels * bitsPerSample / 8
	dataSize := uint32(len(samples) * 2)

	var buf bytes.Buffer
	buf.Grow(44 + int(dataSize))

	// RIFF header
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	// fmt chunk
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16)) // chunk size
	binary.Write(&buf, binary.LittleEndian, uint16(1))  // audio format (PCM)
	binary.Write(&buf, binary.LittleEndian, numChannels)
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, bitsPerSample)

	// data chunk
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)

	pcm := make([]byte, 2)
	for _, s := range samples {
		binary.LittleEndian.PutUint16(pcm, uint16(floatToInt16(s)))
		buf.Write(pcm)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// EncodeWAV returns mono float32 samples as 16-bit PCM WAV bytes
func EncodeWAV(samples []float32, sampleRate int) []byte {
	var buf bytes.Buffer
	WriteWAV(&buf, samples, sampleRate)
	return buf.Bytes()
}

// Int16Samples converts float32 samples to clamped 16-bit integers
func Int16Samples(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = floatToInt16(s)
	}
	return out
}

func floatToInt16(s float32) int16 {
	if s > 1.0 {
		s = 1.0
	}
	if s < -1.0 {
		s = -1.0
	}
	return int16(s * 32767)
}
