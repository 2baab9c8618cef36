package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileRepublishesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("# v1"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	published := make(chan []byte, 8)
	done := make(chan error, 1)
	go func() {
		done <- File(ctx, path, func(data []byte) { published <- data }, discardLogger())
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("# v2"), 0o644))

	select {
	case data := <-published:
		assert.Equal(t, "# v2", string(data))
	case <-time.After(3 * time.Second):
		t.Fatal("no publish after file write")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}

func TestFileSurvivesRenameOverSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("# v1"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	published := make(chan []byte, 8)
	go func() {
		_ = File(ctx, path, func(data []byte) { published <- data }, discardLogger())
	}()

	time.Sleep(100 * time.Millisecond)

	// Editor-style save: write a sibling temp file, rename it into place.
	tmp := filepath.Join(dir, ".doc.md.swp")
	require.NoError(t, os.WriteFile(tmp, []byte("# v2"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	deadline := time.After(3 * time.Second)
	for {
		select {
		case data := <-published:
			if string(data) == "# v2" {
				return
			}
		case <-deadline:
			t.Fatal("no publish after rename-over save")
		}
	}
}

func TestFileIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("# v1"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	published := make(chan []byte, 8)
	go func() {
		_ = File(ctx, path, func(data []byte) { published <- data }, discardLogger())
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.md"), []byte("ignored"), 0o644))

	select {
	case data := <-published:
		t.Fatalf("unexpected publish %q for sibling file", data)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestFileMissingDirectory(t *testing.T) {
	err := File(context.Background(), "/nonexistent/dir/doc.md", func([]byte) {}, discardLogger())
	assert.Error(t, err)
}
