package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"
)

// ExtractTarXZ unpacks a .tar.xz archive into dest. A handful of SDK
// redistributable payloads ship this way instead of as VSIX or MSI;
// every regular file entry is written relative to dest, with the same
// zip-slip guard the VSIX and MSI extractors use.
func ExtractTarXZ(src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("tarxz: opening %s: %w", src, err)
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		return fmt.Errorf("tarxz: reading xz header of %s: %w", src, err)
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("tarxz: creating %s: %w", dest, err)
	}

	tr := tar.NewReader(xr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tarxz: reading tar entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		target := filepath.Join(dest, filepath.FromSlash(hdr.Name))
		if !isPathWithinDirectory(dest, target) {
			return fmt.Errorf("tarxz: entry %q escapes destination directory", hdr.Name)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return fmt.Errorf("tarxz: writing %s: %w", target, err)
		}
		out.Close()
	}
}
