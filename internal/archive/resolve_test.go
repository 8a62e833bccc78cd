package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFile creates a file (and parents) under dir and returns its path.
func writeFile(t *testing.T, dir string, parts ...string) string {
	t.Helper()

	path := filepath.Join(append([]string{dir}, parts...)...)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("mail"), 0o644))
	return path
}

func TestResolveRelative(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "alice", "INBOX", "2024", "03", "07", "42_abc.eml")

	rel, err := filepath.Rel(root, path)
	require.NoError(t, err)

	resolved, ok := Resolve(rel, root, nil)
	assert.True(t, ok)
	assert.Equal(t, path, resolved)
}

func TestResolveAbsoluteInsideRoot(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "alice", "INBOX", "2024", "03", "07", "42_abc.eml")

	resolved, ok := Resolve(path, root, nil)
	assert.True(t, ok)
	assert.Equal(t, path, resolved)
}

func TestResolveRejectsTraversal(t *testing.T) {
	root := t.TempDir()

	// The escape is rejected lexically, whether or not the target exists.
	_, ok := Resolve("../../etc/passwd", root, nil)
	assert.False(t, ok)

	_, ok = Resolve("alice/../../secret.eml", root, nil)
	assert.False(t, ok)

	// An absolute path outside the root is rejected even if it exists.
	outside := writeFile(t, t.TempDir(), "outside.eml")
	_, ok = Resolve(outside, root, nil)
	assert.False(t, ok)
}

func TestResolveRerootsLegacyPath(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "INBOX", "2024", "03", "07", "42_abc.eml")

	// A legacy absolute path recorded under an old root resolves via
	// the recognized folder component.
	legacy := filepath.Join("/old/data", "INBOX", "2024", "03", "07", "42_abc.eml")
	resolved, ok := Resolve(legacy, root, []string{"INBOX", "Sent"})
	assert.True(t, ok)
	assert.Equal(t, path, resolved)

	// Without the folder in the known set, resolution fails.
	_, ok = Resolve(legacy, root, []string{"Sent"})
	assert.False(t, ok)
}

func TestResolveRerootsSanitizedFolder(t *testing.T) {
	root := t.TempDir()

	// On disk the folder component is sanitized, while the configured
	// name stays raw; re-rooting must recognize the sanitized form.
	path := writeFile(t, root, "Sent_2024", "2024", "03", "07", "42_abc.eml")

	legacy := filepath.Join("/old/data", "Sent_2024", "2024", "03", "07", "42_abc.eml")
	resolved, ok := Resolve(legacy, root, []string{"Sent/2024"})
	assert.True(t, ok)
	assert.Equal(t, path, resolved)
}

func TestResolveMissingFile(t *testing.T) {
	root := t.TempDir()

	_, ok := Resolve("alice/INBOX/2024/03/07/42_abc.eml", root, nil)
	assert.False(t, ok)

	_, ok = Resolve("", root, nil)
	assert.False(t, ok)
}
