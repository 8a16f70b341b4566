package storage

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"testing"
)

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{name: "plain", key: "renders/b/j.png", want: "renders/b/j.png"},
		{name: "leading slash", key: "/renders/j.png", want: "renders/j.png"},
		{name: "backslashes", key: `renders\b\j.png`, want: "renders/b/j.png"},
		{name: "dot segments", key: "renders/../renders/j.png", want: "renders/j.png"},
		{name: "escape", key: "../etc/passwd", wantErr: true},
		{name: "empty", key: "  ", wantErr: true},
		{name: "dot", key: ".", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := sanitizeKey(tc.key)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("sanitizeKey(%q) expected error, got %q", tc.key, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("sanitizeKey(%q) error: %v", tc.key, err)
			}
			if got != tc.want {
				t.Fatalf("sanitizeKey(%q) = %q, want %q", tc.key, got, tc.want)
			}
		})
	}
}

func TestFileStoreWriteReadURL(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "https://cdn.example.com/static/")
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	ctx := context.Background()
	key, err := store.Write(ctx, OutputKey("b1", "j1", "image/png"), []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if key != "renders/b1/j1.png" {
		t.Fatalf("key = %q", key)
	}
	data, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("data = %q", data)
	}
	if got := store.URL(key); got != "https://cdn.example.com/static/renders/b1/j1.png" {
		t.Fatalf("URL = %q", got)
	}
	if _, err := store.Read(ctx, "renders/missing.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read missing err = %v, want ErrNotFound", err)
	}
}

func TestOutputKeyJPEG(t *testing.T) {
	if got := OutputKey("b", "j", "image/jpeg"); got != "renders/b/j.jpg" {
		t.Fatalf("OutputKey = %q", got)
	}
}

func TestFileStoreConcurrentWritesSameKey(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "")
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	ctx := context.Background()
	payloads := []string{"first-writer", "second-writer", "third-writer"}
	var wg sync.WaitGroup
	errs := make(chan error, len(payloads))
	for _, p := range payloads {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			_, err := store.Write(ctx, "renders/b1/j1.png", []byte(p))
			errs <- err
		}(p)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}
	data, err := store.Read(ctx, "renders/b1/j1.png")
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if !slices.Contains(payloads, string(data)) {
		t.Fatalf("data = %q, want one complete payload", data)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "renders", "b1", "*.tmp"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}
