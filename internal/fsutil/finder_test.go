package fsutil

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/passgrid/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestFindFilesByExtension(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := testutil.WriteFiles(t, map[string]string{
		"b.hcl":        "",
		"a.hcl":        "",
		"notes.md":     "",
		"nested/c.hcl": "",
	})
	single := filepath.Join(dir, "a.hcl")

	// --- Act ---
	got, err := FindFilesByExtension([]string{dir, single, filepath.Join(dir, "notes.md")}, ".hcl")

	// --- Assert ---
	require.NoError(t, err)
	want := []string{
		filepath.Join(dir, "a.hcl"),
		filepath.Join(dir, "b.hcl"),
		filepath.Join(dir, "nested", "c.hcl"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestFindFilesByExtension_MissingPath(t *testing.T) {
	t.Parallel()

	_, err := FindFilesByExtension([]string{filepath.Join(t.TempDir(), "gone")}, ".hcl")
	require.ErrorContains(t, err, "error accessing path")
}

func TestFindFilesByExtension_PanicsWithoutExtension(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { _, _ = FindFilesByExtension(nil, "") })
}
