// Package archive implements the archive extractors (C3): VSIX/ZIP
// extraction with path filtering, and orchestration of MSI extraction
// via the archive/cfb, archive/cab and archive/msi subpackages.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xwin-go/xwin/internal/log"
)

// vsixFilterSubstrings are the case-sensitive substrings a zip member
// path must contain at least one of to be extracted, per §4.3.
var vsixFilterSubstrings = []string{"lib", "src", "include", "crt"}

// ExtractVSIX opens a VSIX (zip) archive at src and extracts every
// member whose path contains one of the filter substrings into dest,
// preserving archive-relative paths. Unfiltered members are silently
// skipped.
func ExtractVSIX(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("opening vsix %s: %w", src, err)
	}
	defer r.Close()

	logger := log.Default()
	for _, f := range r.File {
		if !matchesVSIXFilter(f.Name) {
			continue
		}
		if err := extractZipEntry(f, dest); err != nil {
			return fmt.Errorf("extracting %s from %s: %w", f.Name, src, err)
		}
	}
	logger.Debug("extracted vsix", "src", src, "dest", dest)
	return nil
}

func matchesVSIXFilter(name string) bool {
	for _, substr := range vsixFilterSubstrings {
		if strings.Contains(name, substr) {
			return true
		}
	}
	return false
}

func extractZipEntry(f *zip.File, dest string) error {
	target := filepath.Join(dest, filepath.FromSlash(f.Name))
	if !isPathWithinDirectory(dest, target) {
		return fmt.Errorf("zip entry %q escapes destination directory", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

// isPathWithinDirectory reports whether target is contained within
// dir, guarding against zip-slip path traversal.
func isPathWithinDirectory(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
