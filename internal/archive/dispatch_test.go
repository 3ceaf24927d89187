package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiExtractVSIXRunsAllJobs(t *testing.T) {
	src1 := buildVSIX(t, map[string]string{"include/a.h": "a"})
	src2 := buildVSIX(t, map[string]string{"include/b.h": "b"})
	dest1, dest2 := t.TempDir(), t.TempDir()

	err := MultiExtractVSIX(t.Context(), []ExtractJob{
		{Src: src1, Dest: dest1},
		{Src: src2, Dest: dest2},
	})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dest1, "include/a.h"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dest2, "include/b.h"))
	assert.NoError(t, err)
}

func TestMultiExtractVSIXPropagatesFailure(t *testing.T) {
	err := MultiExtractVSIX(t.Context(), []ExtractJob{
		{Src: "/nonexistent/does-not-exist.vsix", Dest: t.TempDir()},
	})
	require.Error(t, err)
}
