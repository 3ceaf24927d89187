package archive

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func buildTarXZ(t *testing.T, files map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	xzw, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	tw := tar.NewWriter(xzw)

	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, xzw.Close())

	path := filepath.Join(t.TempDir(), "payload.tar.xz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestExtractTarXZWritesRegularFiles(t *testing.T) {
	src := buildTarXZ(t, map[string]string{
		"include/foo.h":   "foo header",
		"lib/x64/bar.lib": "lib bytes",
	})
	dest := t.TempDir()

	require.NoError(t, ExtractTarXZ(src, dest))

	data, err := os.ReadFile(filepath.Join(dest, "include", "foo.h"))
	require.NoError(t, err)
	assert.Equal(t, "foo header", string(data))

	data, err = os.ReadFile(filepath.Join(dest, "lib", "x64", "bar.lib"))
	require.NoError(t, err)
	assert.Equal(t, "lib bytes", string(data))
}

func TestExtractTarXZRejectsPathEscape(t *testing.T) {
	src := buildTarXZ(t, map[string]string{
		"../escaped.txt": "nope",
	})
	dest := t.TempDir()

	err := ExtractTarXZ(src, dest)
	assert.Error(t, err)
}
