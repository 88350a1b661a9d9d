package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSinkWritesAndFlushes(t *testing.T) {
	dir := t.TempDir()

	s, err := NewSink(Config{
		Dir:         dir,
		BaseName:    "test.log",
		BackupCount: 3,
	})
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	defer s.Close()

	for i := 0; i < 10; i++ {
		if _, err := s.Write([]byte("line\n")); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	time.Sleep(200 * time.Millisecond)

	if _, err := os.Stat(filepath.Join(dir, "test.log")); err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
}

func TestSinkWriteDoesNotBlockPastQueueCapacity(t *testing.T) {
	dir := t.TempDir()

	s, err := NewSink(Config{Dir: dir, BaseName: "full.log"})
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	defer s.Close()

	// Queue capacity is large; this just exercises the non-blocking path
	// without asserting drop behavior deterministically.
	for i := 0; i < queueCapacity+10; i++ {
		if _, err := s.Write([]byte("x\n")); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
}

func TestCleanupStaleRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "app.log.2020-01-01")
	if err := os.WriteFile(old, []byte("old"), 0o644); err != nil {
		t.Fatalf("write old file: %v", err)
	}
	staleTime := time.Now().AddDate(0, 0, -100)
	if err := os.Chtimes(old, staleTime, staleTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	s, err := NewSink(Config{
		Dir:           dir,
		BaseName:      "app.log",
		RetentionDays: 90,
	})
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected stale file removed, stat err = %v", err)
	}
}
