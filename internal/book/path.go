package book

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CanonicalizePath trims trailing path separators. A root of exactly "/"
// becomes the empty string so that composed paths do not start with a double
// slash.
func CanonicalizePath(path string) string {
	if path == "/" {
		return ""
	}
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}

// ComposePath joins up to three components under a root using the platform
// separator.
func ComposePath(components ...string) string {
	return filepath.Join(components...)
}

// FindFileName looks for base inside dir the way EB readers must: the match
// is case-insensitive, an ISO-9660 `;1` version suffix is ignored, and the
// ebzip `.ebz` and `.org` suffixes are accepted. The name as it appears on
// disk is returned so that callers can open it verbatim.
func FindFileName(dir, base string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	want := strings.ToLower(base)
	// Prefer the bare name over suffixed variants, matching the order an
	// uncompressed disc is searched in.
	for _, suffix := range []string{"", ".org", ".ebz"} {
		for _, entry := range entries {
			name := strings.ToLower(entry.Name())
			name = strings.TrimSuffix(name, ";1")
			if name == want+suffix {
				return entry.Name(), nil
			}
		}
	}
	return "", fmt.Errorf("no such file in %s: %s", dir, base)
}

// FindDirectoryName resolves base against dir case-insensitively and
// reports the on-disk name of the subdirectory.
func FindDirectoryName(dir, base string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.EqualFold(entry.Name(), base) {
			return entry.Name(), nil
		}
	}
	return "", fmt.Errorf("no such directory in %s: %s", dir, base)
}
