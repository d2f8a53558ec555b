package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestWatcher_DebounceAndExtensionFilter(t *testing.T) {
	dir := t.TempDir()

	var uploaded []string
	var mu sync.Mutex
	onUpload := func(path string) {
		mu.Lock()
		uploaded = append(uploaded, path)
		mu.Unlock()
	}
	w := New(dir, []string{".stl"}, true, onUpload, WithDebounce(100*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := writeFile(filepath.Join(dir, "bracket.stl"), "solid"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "notes.txt"), "skip"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(400 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(uploaded) != 1 || !strings.HasSuffix(uploaded[0], "bracket.stl") {
		t.Errorf("uploaded = %v, want just bracket.stl", uploaded)
	}
}

func TestWatcher_NewDirectoryPickedUpRecursively(t *testing.T) {
	dir := t.TempDir()

	var uploaded []string
	var mu sync.Mutex
	onUpload := func(path string) {
		mu.Lock()
		uploaded = append(uploaded, path)
		mu.Unlock()
	}
	w := New(dir, []string{".stl"}, true, onUpload, WithDebounce(100*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	nested := filepath.Join(dir, "batch", "rev2")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(nested, "deep.stl"), "solid"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(800 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, p := range uploaded {
		if strings.HasSuffix(p, "deep.stl") {
			found = true
		}
	}
	if !found {
		t.Errorf("deep.stl not uploaded: %v", uploaded)
	}
}

func TestWatcher_UploadExisting(t *testing.T) {
	dir := t.TempDir()
	if err := writeFile(filepath.Join(dir, "a.stl"), "solid"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "ignore.xyz"), "x"); err != nil {
		t.Fatal(err)
	}

	var uploaded []string
	var mu sync.Mutex
	onUpload := func(path string) {
		mu.Lock()
		uploaded = append(uploaded, path)
		mu.Unlock()
	}
	w := New(dir, []string{".stl"}, true, onUpload)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	w.UploadExisting()

	mu.Lock()
	defer mu.Unlock()
	if len(uploaded) != 1 || !strings.HasSuffix(uploaded[0], "a.stl") {
		t.Errorf("uploaded = %v, want just a.stl", uploaded)
	}
}

func TestWatcher_Start_createsMissingRoot(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "drop", "inbox")

	w := New(root, []string{".stl"}, true, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root should exist after Start: %v", err)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.stl", []string{".stl"}, true},
		{"/a/b.STL", []string{".stl"}, true},
		{"/a/b.step", []string{".stl"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		got := matchExtension(tt.path, tt.extensions)
		if got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.stl", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		got := inDir(tt.dir, tt.path)
		if got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
