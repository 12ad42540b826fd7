package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpen_Stderr(t *testing.T) {
	out := Open(Config{})
	defer out.Close()

	if out.Writer() != os.Stderr {
		t.Errorf("Writer() = %v, want os.Stderr", out.Writer())
	}
	if err := out.Rotate(); err != nil {
		t.Errorf("Rotate() on stderr failed: %v", err)
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "lexisync.log")
	out := Open(Config{File: path, MaxSizeMB: 1})

	out.Logger("sync").Printf("Applied %d envelopes", 3)
	out.Logger("api").Println("GET /health")

	if err := out.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "[sync] ") || !strings.Contains(content, "Applied 3 envelopes") {
		t.Errorf("log file missing sync line: %q", content)
	}
	if !strings.Contains(content, "[api] ") || !strings.Contains(content, "GET /health") {
		t.Errorf("log file missing api line: %q", content)
	}
}
