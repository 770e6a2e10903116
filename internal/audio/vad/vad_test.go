package vad

import (
	"math"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestRegionsFromFrames(t *testing.T) {
	const T, F = true, false

	tests := []struct {
		name  string
		flags []bool
		want  []Region
	}{
		{"empty", nil, nil},
		{"all silence", []bool{F, F, F, F}, nil},
		{"single region", []bool{F, T, T, T, F, F, F}, []Region{{10, 40}}},
		{"too short", []bool{F, T, F, F, F, F}, nil},
		{"short gap bridged", []bool{T, T, F, T, T}, []Region{{0, 50}}},
		{"long gap splits", []bool{T, T, T, F, F, F, T, T, T}, []Region{{0, 30}, {60, 90}}},
		{"speech to the end", []bool{F, F, T, T}, []Region{{20, 40}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// frame size 10, min speech 2 frames, min silence 3 frames
			got := regionsFromFrames(tt.flags, 10, 2, 3)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("regionsFromFrames() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDurationToFrames(t *testing.T) {
	frame := 30 * time.Millisecond
	if got := durationToFrames(250*time.Millisecond, frame); got != 9 {
		t.Errorf("250ms = %d frames, want 9", got)
	}
	if got := durationToFrames(500*time.Millisecond, frame); got != 17 {
		t.Errorf("500ms = %d frames, want 17", got)
	}
	if got := durationToFrames(0, frame); got != 1 {
		t.Errorf("0ms = %d frames, want 1", got)
	}
}

func TestNewFilter_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad rate", func(c *Config) { c.SampleRate = 22050 }},
		{"bad frame", func(c *Config) { c.FrameDuration = 25 * time.Millisecond }},
		{"bad mode", func(c *Config) { c.Mode = 4 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if _, err := NewFilter(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFilter_Silence(t *testing.T) {
	f, err := NewFilter(DefaultConfig())
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	defer f.Close()

	out, err := f.Apply(make([]float32, 16000))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(out) != 0 {
		t.Errorf("silence produced %d samples", len(out))
	}
}

func TestFilter_ConcurrentClassify(t *testing.T) {
	f, err := NewFilter(DefaultConfig())
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	defer f.Close()

	// half a second of silence, one second of a voiced-like tone, half a second of silence
	samples := make([]float32, 32000)
	for i := 8000; i < 24000; i++ {
		samples[i] = 0.5 * float32(math.Sin(2*math.Pi*220*float64(i)/16000))
	}

	want, err := f.Classify(samples)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.Classify(samples)
			if err != nil {
				errs <- err
				return
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("concurrent Classify() diverged from sequential result")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Classify() error = %v", err)
	}
}
