package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFiles writes every name → content pair below a fresh temporary
// directory and returns that directory. Names may contain subdirectories.
func WriteFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}

// WriteRoundFile writes content as round.hcl in a temporary directory and
// returns the file's path.
func WriteRoundFile(t *testing.T, content string) string {
	t.Helper()
	return filepath.Join(WriteFiles(t, map[string]string{"round.hcl": content}), "round.hcl")
}
