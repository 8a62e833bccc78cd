package archive

import (
	"os"
	"path/filepath"
	"strings"
)

// Resolve maps a stored index path to a real file under root.
//
// Resolution order:
//  1. a relative path is joined to root;
//  2. an absolute path is accepted as-is if it already lies inside
//     root;
//  3. otherwise the path components are scanned for a recognized
//     folder name and the suffix starting at that component is
//     re-rooted under root. This tolerates archive roots that moved
//     between runs and legacy absolute paths recorded before a
//     relocation.
//
// A candidate is accepted only if it is lexically inside root and the
// file exists. Every other outcome reports not-found; callers never
// learn why.
func Resolve(storedPath, root string, knownFolders []string) (string, bool) {
	if storedPath == "" || root == "" {
		return "", false
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}

	var candidate string
	if filepath.IsAbs(storedPath) {
		candidate = filepath.Clean(storedPath)
	} else {
		candidate = filepath.Join(rootAbs, storedPath)
	}
	if inside(rootAbs, candidate) && isFile(candidate) {
		return candidate, true
	}

	// Legacy layout: re-root the suffix starting at a known folder
	// component. Pre-partitioning paths had no account directory.
	// Archived paths carry the sanitized folder component, so match
	// both the raw configured name and its sanitized form.
	known := make(map[string]struct{}, len(knownFolders)*2)
	for _, f := range knownFolders {
		known[f] = struct{}{}
		known[sanitizeFolder(f)] = struct{}{}
	}

	parts := strings.Split(filepath.ToSlash(filepath.Clean(storedPath)), "/")
	for i, part := range parts {
		if _, ok := known[part]; !ok {
			continue
		}
		rerooted := filepath.Join(rootAbs, filepath.Join(parts[i:]...))
		if inside(rootAbs, rerooted) && isFile(rerooted) {
			return rerooted, true
		}
	}

	return "", false
}

// inside reports whether path is lexically contained in root.
func inside(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
