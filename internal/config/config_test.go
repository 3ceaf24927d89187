package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xwin-go/xwin/internal/manifest"
)

func TestNewDefaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, 18, cfg.ManifestVersion)
	assert.Equal(t, manifest.ChannelStable, cfg.Channel)
	assert.Contains(t, cfg.Arch, manifest.ArchX86_64)
	assert.Contains(t, cfg.Variant, manifest.VariantDesktop)
	assert.True(t, len(cfg.CacheDir) > 0)
}

func TestValidateChannelGating(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	cfg.ManifestVersion = 18
	cfg.Channel = manifest.ChannelRelease
	assert.Error(t, cfg.Validate())

	cfg.ManifestVersion = 17
	cfg.Channel = manifest.ChannelStable
	assert.Error(t, cfg.Validate())

	cfg.ManifestVersion = 17
	cfg.Channel = manifest.ChannelRelease
	assert.NoError(t, cfg.Validate())
}

func TestValidateVersionPatterns(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	cfg.CRTVersion = "14.44.17.14"
	assert.NoError(t, cfg.Validate())

	cfg.CRTVersion = "not-a-version"
	assert.Error(t, cfg.Validate())

	cfg.CRTVersion = ""
	cfg.SDKVersion = "Win11SDK_10.0.26100"
	assert.NoError(t, cfg.Validate())

	cfg.SDKVersion = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestVariantSetExpandsAll(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)
	cfg.Variant = map[manifest.Variant]struct{}{manifest.VariantAll: {}}

	variants := cfg.VariantSet()
	assert.ElementsMatch(t, []manifest.Variant{manifest.VariantDesktop, manifest.VariantOneCore, manifest.VariantStore}, variants)
}

func TestEmptyArchRejected(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)
	cfg.Arch = map[manifest.Architecture]struct{}{}
	assert.Error(t, cfg.Validate())
}
