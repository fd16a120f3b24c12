package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDocumentID(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"docs/GDPR Article 5.md", "gdpr-article-5"},
		{"/abs/path/csrd.txt", "csrd"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := documentID(tt.path); got != tt.want {
			t.Errorf("documentID(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "a.md"), "# a")
	mustWrite(t, filepath.Join(dir, "b.txt"), "b")
	mustWrite(t, filepath.Join(dir, "skip.pdf"), "binary")
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(sub, "c.MD"), "# c")

	files, err := collectFiles([]string{dir})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Errorf("collectFiles = %v, want 3 files", files)
	}

	// A single file path is accepted directly.
	files, err = collectFiles([]string{filepath.Join(dir, "a.md")})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Errorf("single file = %v", files)
	}

	// Missing paths are reported.
	if _, err := collectFiles([]string{filepath.Join(dir, "missing.md")}); err == nil {
		t.Error("expected error for missing path")
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
