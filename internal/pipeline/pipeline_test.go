package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xwin-go/xwin/internal/config"
	"github.com/xwin-go/xwin/internal/manifest"
	"github.com/xwin-go/xwin/internal/selector"
)

func newTestConfig(t *testing.T) *config.Configuration {
	t.Helper()
	cfg, err := config.New()
	require.NoError(t, err)
	cfg.CacheDir = t.TempDir()
	return cfg
}

func TestPlanDownloadsBuildsTargetsAndGroupsByPackageDir(t *testing.T) {
	cfg := newTestConfig(t)

	result := &selector.Result{
		Order: []string{"crt-headers", "sdk-cab"},
		Items: map[string]manifest.SelectedPayload{
			"crt-headers": manifest.CRTPayload{
				Filename: "crt-headers.vsix", Kind: manifest.PayloadCrtHeaders,
				SHA256: "abc", URL: "http://x/crt-headers.vsix", Version: "14.44.17.14",
			},
			"sdk-cab": manifest.SDKPayload{
				Filename: "cab1.cab", Kind: manifest.PayloadCabFile,
				SHA256: "def", URL: "http://x/cab1.cab", Version: "10.0.26100",
			},
		},
	}

	targets, planned := planDownloads(cfg, result)
	require.Len(t, targets, 2)
	require.Len(t, planned, 2)

	assert.Equal(t, "http://x/crt-headers.vsix", targets[0].URL)
	assert.Equal(t, filepath.Join(cfg.DownloadsDir(), "CRT_14.44.17.14", "crt-headers.vsix"), targets[0].Path)
	assert.True(t, planned[0].isCRT)
	assert.Equal(t, "CRT_14.44.17.14", planned[0].packageDir)

	assert.False(t, planned[1].isCRT)
	assert.Equal(t, "SDK_10.0.26100", planned[1].packageDir)
}
