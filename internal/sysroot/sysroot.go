// Package sysroot reduces an extracted unpack tree into a flat,
// cross-compile-friendly directory (C8): only the directories a
// cross-compiler actually needs survive, each source's copy merged
// into one shared tree rather than left scattered under Microsoft's
// versioned, noisy installer paths.
package sysroot

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Kind selects which top-level directory names survive reduction.
type Kind int

const (
	KindCRT Kind = iota
	KindSDK
)

var crtKeepDirs = map[string]bool{"include": true, "lib": true, "src": true, "crt": true}
var sdkKeepDirs = map[string]bool{"include": true, "lib": true, "source": true, "bin": true}

func keepSet(kind Kind) map[string]bool {
	if kind == KindSDK {
		return sdkKeepDirs
	}
	return crtKeepDirs
}

// Reduce walks unpackRoot and copies every directory whose (lowercased)
// name is in the kind's keep-set wholesale into reducedRoot under that
// same name, merging contents across however many source directories
// match. It does not descend into a directory once it has been copied.
func Reduce(unpackRoot, reducedRoot string, kind Kind) error {
	keep := keepSet(kind)

	entries, err := os.ReadDir(unpackRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("sysroot: reading %s: %w", unpackRoot, err)
	}

	for _, e := range entries {
		path := filepath.Join(unpackRoot, e.Name())
		if !e.IsDir() {
			continue
		}
		lower := strings.ToLower(e.Name())
		if keep[lower] {
			if err := copyTree(path, filepath.Join(reducedRoot, lower)); err != nil {
				return fmt.Errorf("sysroot: copying %s: %w", path, err)
			}
			continue
		}
		if err := Reduce(path, reducedRoot, kind); err != nil {
			return err
		}
	}
	return nil
}

// copyTree copies every file under src into dst, creating directories
// as needed and merging into any existing contents at dst.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
