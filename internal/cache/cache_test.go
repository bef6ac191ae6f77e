package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetCacheDir(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", tmpDir)

	dir, err := GetCacheDir()
	if err != nil {
		t.Fatalf("GetCacheDir() error = %v", err)
	}
	expected := filepath.Join(tmpDir, "gomarks")
	if dir != expected {
		t.Errorf("GetCacheDir() = %q, want %q", dir, expected)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("cache directory was not created: %v", err)
	}
}

func TestGetCacheFileRequiresOwner(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	if _, err := GetCacheFile(""); err == nil {
		t.Error("GetCacheFile(\"\") should fail")
	}
}

func TestSaveAndLoad(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	want := Names{Collections: []string{"Unsorted", "Work"}, Tags: []string{"go"}}
	if err := Save("owner-1", want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := Load("owner-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.Collections) != 2 || got.Collections[1] != "Work" {
		t.Errorf("Collections = %v, want %v", got.Collections, want.Collections)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "go" {
		t.Errorf("Tags = %v, want %v", got.Tags, want.Tags)
	}
	if !got.Fresh(time.Now(), MaxAge) {
		t.Error("just-saved names should be fresh")
	}

	if _, err := Load("owner-2"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() for another owner error = %v, want not exist", err)
	}
}

func TestFresh(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"new", 0, true},
		{"almost stale", MaxAge - time.Second, true},
		{"stale", MaxAge, false},
		{"old", time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &Names{Timestamp: now.Add(-tt.age).Unix()}
			if got := n.Fresh(now, MaxAge); got != tt.want {
				t.Errorf("Fresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInvalidate(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	if err := Invalidate("owner-1"); err != nil {
		t.Fatalf("Invalidate() on missing cache error = %v", err)
	}
	if err := Save("owner-1", Names{Tags: []string{"go"}}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := Invalidate("owner-1"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, err := Load("owner-1"); err == nil {
		t.Error("Load() after Invalidate() should fail")
	}
}

func TestLoadWithFallback(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	calls := 0
	fetch := func() (*Names, error) {
		calls++
		return &Names{Collections: []string{"Unsorted"}}, nil
	}

	for i := 0; i < 2; i++ {
		names, err := LoadWithFallback("owner-1", fetch)
		if err != nil {
			t.Fatalf("LoadWithFallback() error = %v", err)
		}
		if len(names.Collections) != 1 {
			t.Errorf("Collections = %v", names.Collections)
		}
	}
	if calls != 1 {
		t.Errorf("fetch called %d times, want 1", calls)
	}

	// a stale cache is refetched
	file, _ := GetCacheFile("owner-1")
	stale, _ := json.Marshal(Names{Collections: []string{"Old"}, Timestamp: time.Now().Add(-time.Hour).Unix()})
	if err := os.WriteFile(file, stale, 0644); err != nil {
		t.Fatalf("Failed to write stale cache: %v", err)
	}
	names, err := LoadWithFallback("owner-1", fetch)
	if err != nil {
		t.Fatalf("LoadWithFallback() error = %v", err)
	}
	if calls != 2 || names.Collections[0] != "Unsorted" {
		t.Errorf("stale cache was used: calls=%d names=%v", calls, names.Collections)
	}

	if _, err := LoadWithFallback("owner-2", func() (*Names, error) {
		return nil, errors.New("store unavailable")
	}); err == nil {
		t.Error("fetch error should be returned")
	}
}
