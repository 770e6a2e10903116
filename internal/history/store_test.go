package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "history.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	entries := []*Entry{
		{Kind: KindSynthesize, CreatedAt: base, Provider: "espeak", Input: "Hej.", AudioBytes: 4410, Success: true},
		{Kind: KindTranscribe, CreatedAt: base.Add(time.Second), Language: "sv", Output: "Hej.", Duration: 1.2, Success: true,
			Metadata: map[string]interface{}{"model": "whisper-base"}},
		{Kind: KindDetectLanguage, CreatedAt: base.Add(2 * time.Second), Language: "sv", Error: "audio buffer too small"},
	}
	for _, e := range entries {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if e.ID == "" {
			t.Error("Record() should assign an ID")
		}
	}

	all, err := s.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List() returned %d entries, want 3", len(all))
	}
	if all[0].Kind != KindDetectLanguage || all[2].Kind != KindSynthesize {
		t.Errorf("entries not newest first: %s, %s", all[0].Kind, all[2].Kind)
	}
	if all[0].Success || all[0].Error != "audio buffer too small" {
		t.Errorf("failed entry = %+v", all[0])
	}
	if all[1].Metadata["model"] != "whisper-base" {
		t.Errorf("Metadata = %v", all[1].Metadata)
	}
	if all[2].AudioBytes != 4410 || all[2].Provider != "espeak" {
		t.Errorf("synthesis entry = %+v", all[2])
	}

	transcriptions, err := s.List(ctx, Filter{Kind: KindTranscribe})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(transcriptions) != 1 || transcriptions[0].Output != "Hej." {
		t.Errorf("List(kind) = %+v", transcriptions)
	}

	limited, _ := s.List(ctx, Filter{Limit: 2})
	if len(limited) != 2 {
		t.Errorf("List(limit 2) returned %d entries", len(limited))
	}
	page, _ := s.List(ctx, Filter{Limit: 2, Offset: 2})
	if len(page) != 1 || page[0].Kind != KindSynthesize {
		t.Errorf("List(offset 2) = %+v", page)
	}
}

func TestStore_Stats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	empty, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if empty.Total != 0 || empty.Oldest != nil {
		t.Errorf("empty stats = %+v", empty)
	}

	s.Record(ctx, &Entry{Kind: KindSynthesize, Success: true})
	s.Record(ctx, &Entry{Kind: KindSynthesize, Error: "piper failed"})
	s.Record(ctx, &Entry{Kind: KindTranscribe, Success: true})

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 3 || stats.Failed != 1 {
		t.Errorf("Total/Failed = %d/%d, want 3/1", stats.Total, stats.Failed)
	}
	if stats.ByKind[KindSynthesize] != 2 || stats.ByKind[KindTranscribe] != 1 {
		t.Errorf("ByKind = %v", stats.ByKind)
	}
	if stats.Oldest == nil || stats.Newest == nil {
		t.Error("expected oldest and newest timestamps")
	}
}

func TestStore_Prune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.Record(ctx, &Entry{Kind: KindSynthesize, CreatedAt: time.Now().Add(-48 * time.Hour), Success: true})
	s.Record(ctx, &Entry{Kind: KindTranscribe, CreatedAt: time.Now().Add(-2 * time.Hour), Success: true})
	s.Record(ctx, &Entry{Kind: KindTranscribe, Success: true})

	removed, err := s.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Prune() removed %d, want 1", removed)
	}

	remaining, _ := s.List(ctx, Filter{})
	if len(remaining) != 2 {
		t.Errorf("remaining = %d, want 2", len(remaining))
	}
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	s.Record(ctx, &Entry{Kind: KindSynthesize, Input: "persisted", Success: true})
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	entries, _ := s.List(ctx, Filter{})
	if len(entries) != 1 || entries[0].Input != "persisted" {
		t.Errorf("entries after reopen = %+v", entries)
	}
}
