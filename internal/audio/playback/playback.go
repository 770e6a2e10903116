// ============================================================================
// voicebridge - Swedish speech processing
// ============================================================================
//
// Package:     playback
// Description: Audio playback of synthesized speech using PortAudio
// License:     MIT
// ============================================================================

package playback

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/msto63/voicebridge/internal/audio"
)

// ErrBusy is returned when a playback is already running
var ErrBusy = errors.New("already playing")

// Player handles audio output to speakers
type Player struct {
	mu         sync.Mutex
	bufferSize int
	playing    bool
}

// New creates a new player
func New() *Player {
	return &Player{bufferSize: 1024}
}

// PlayWAV plays a 16-bit PCM WAV file held in memory
func (p *Player) PlayWAV(data []byte) error {
	info, pcm, err := audio.ParseWAV(data)
	if err != nil {
		return fmt.Errorf("failed to parse WAV: %w", err)
	}
	if info.AudioFormat != 1 || info.BitsPerSample != 16 {
		return fmt.Errorf("unsupported WAV encoding: format %d, %d bits", info.AudioFormat, info.BitsPerSample)
	}
	return p.PlayRaw(pcm, info.SampleRate, info.Channels)
}

// PlayRaw plays interleaved 16-bit little-endian PCM
func (p *Player) PlayRaw(pcm []byte, sampleRate, channels int) error {
	if !p.begin() {
		return ErrBusy
	}
	defer p.end()

	if channels < 1 {
		channels = 1
	}

	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}

	return p.playFloat32(samples, float64(sampleRate), channels)
}

func (p *Player) begin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return false
	}
	p.playing = true
	return true
}

func (p *Player) end() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
}

// playFloat32 plays interleaved float32 audio samples
func (p *Player) playFloat32(samples []float32, sampleRate float64, channels int) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	framesPerBuffer := p.bufferSize
	buffer := make([]float32, framesPerBuffer*channels)

	stream, err := portaudio.OpenDefaultStream(0, channels, sampleRate, framesPerBuffer, &buffer)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	defer stream.Stop()

	for position := 0; position < len(samples); position += len(buffer) {
		n := copy(buffer, samples[position:])
		for i := n; i < len(buffer); i++ {
			buffer[i] = 0
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("failed to write to stream: %w", err)
		}
	}

	return nil
}

// IsPlaying returns whether audio is currently playing
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}
