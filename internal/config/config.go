// Package config defines the Configuration singleton consumed by the
// manifest loader, package selector, downloader and tree reducer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/xwin-go/xwin/internal/manifest"
	"github.com/xwin-go/xwin/internal/xwinerr"
)

// EnvAcceptLicense is the environment variable that, when truthy,
// substitutes for the interactive Microsoft EULA prompt.
const EnvAcceptLicense = "PYXWIN_ACCEPT_LICENSE"

var (
	crtVersionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+$`)
	sdkVersionPattern = regexp.MustCompile(`^Win\d+SDK_\d+\.\d+\.\d+$`)
)

// Configuration is the validated, frozen-after-startup options object
// described in spec §3/§6. Construct it with New, which validates it
// once. Fields are plain exported values with no setters: assigning a
// field does not re-validate the struct, and a caller that changes
// fields after construction calls Validate to check them.
type Configuration struct {
	ChannelManifestPath string
	ManifestVersion     int
	Channel             manifest.Channel
	Arch                map[manifest.Architecture]struct{}
	Variant             map[manifest.Variant]struct{}
	CacheDir            string
	CRTVersion          string
	SDKVersion          string
	IncludeATL          bool
	IncludeSpectre      bool
}

// New builds a Configuration with spec-mandated defaults (manifest
// version 18, channel stable, arch {x86_64}, variant {Desktop}, and a
// platform-standard cache directory) and validates it.
func New() (*Configuration, error) {
	cacheDir, err := defaultCacheDir()
	if err != nil {
		return nil, err
	}
	cfg := &Configuration{
		ManifestVersion: 18,
		Channel:         manifest.ChannelStable,
		Arch:            map[manifest.Architecture]struct{}{manifest.ArchX86_64: {}},
		Variant:         map[manifest.Variant]struct{}{manifest.VariantDesktop: {}},
		CacheDir:        cacheDir,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultCacheDir rooted at the process's platform-standard user cache
// directory.
func defaultCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve user cache dir: %w", err)
	}
	return filepath.Join(base, "xwin", "msvcrt"), nil
}

// Validate checks every Configuration invariant from spec §3 and
// returns an InvalidInputDataError describing the first violation.
func (c *Configuration) Validate() error {
	if c.ManifestVersion <= 0 {
		return &xwinerr.InvalidInputDataError{Message: "manifest_version must be a positive integer"}
	}
	if !c.Channel.LegalForManifestVersion(c.ManifestVersion) {
		if c.ManifestVersion >= 18 {
			return &xwinerr.InvalidInputDataError{
				Message: "for manifest version 18 or higher, channel must be 'stable' or 'insiders'",
			}
		}
		return &xwinerr.InvalidInputDataError{
			Message: "for manifest version 17 or lower, channel must be 'release' or 'pre'",
		}
	}
	if len(c.Arch) == 0 {
		return &xwinerr.InvalidInputDataError{Message: "arch must be a non-empty set"}
	}
	if len(c.Variant) == 0 {
		return &xwinerr.InvalidInputDataError{Message: "variant must be a non-empty set"}
	}
	if !filepath.IsAbs(c.CacheDir) {
		return &xwinerr.InvalidInputDataError{Message: "cache_dir must be an absolute path"}
	}
	if c.CRTVersion != "" && !crtVersionPattern.MatchString(c.CRTVersion) {
		return &xwinerr.InvalidInputDataError{Message: "crt_version must match ^\\d+\\.\\d+\\.\\d+\\.\\d+$"}
	}
	if c.SDKVersion != "" && !sdkVersionPattern.MatchString(c.SDKVersion) {
		return &xwinerr.InvalidInputDataError{Message: "sdk_version must match ^Win\\d+SDK_\\d+\\.\\d+\\.\\d+$"}
	}
	if c.ChannelManifestPath != "" {
		if _, err := os.Stat(c.ChannelManifestPath); err != nil {
			return &xwinerr.InvalidInputDataError{Message: "channel_manifest_path: " + err.Error()}
		}
	}
	return nil
}

// ArchSet returns a deterministically ordered slice of the configured
// architectures.
func (c *Configuration) ArchSet() []manifest.Architecture {
	out := make([]manifest.Architecture, 0, len(c.Arch))
	for a := range c.Arch {
		out = append(out, a)
	}
	sortArchitectures(out)
	return out
}

// VariantSet expands Variant.All into {Desktop, OneCore, Store} and
// returns a deterministic slice of the concrete variants requested.
func (c *Configuration) VariantSet() []manifest.Variant {
	seen := make(map[manifest.Variant]struct{})
	var out []manifest.Variant
	for v := range c.Variant {
		for _, cv := range v.ConcreteVariants() {
			if _, ok := seen[cv]; ok {
				continue
			}
			seen[cv] = struct{}{}
			out = append(out, cv)
		}
	}
	sortVariants(out)
	return out
}

func sortArchitectures(a []manifest.Architecture) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j] < a[j-1]; j-- {
			a[j], a[j-1] = a[j-1], a[j]
		}
	}
}

func sortVariants(v []manifest.Variant) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}

// AcceptLicenseFromEnv reports whether the Microsoft EULA has been
// accepted via the PYXWIN_ACCEPT_LICENSE environment variable.
func AcceptLicenseFromEnv() bool {
	v := os.Getenv(EnvAcceptLicense)
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

// ManifestCacheDir returns cache_dir/manifest_{version}/{channel}, the
// directory housing both cached manifest documents for this run.
func (c *Configuration) ManifestCacheDir() string {
	return filepath.Join(c.CacheDir, fmt.Sprintf("manifest_%d", c.ManifestVersion), c.Channel.String())
}

// DownloadsDir returns cache_dir/downloads.
func (c *Configuration) DownloadsDir() string {
	return filepath.Join(c.CacheDir, "downloads")
}

// UnpackDir returns cache_dir/unpack.
func (c *Configuration) UnpackDir() string {
	return filepath.Join(c.CacheDir, "unpack")
}

// ReducedDir returns cache_dir/reduced.
func (c *Configuration) ReducedDir() string {
	return filepath.Join(c.CacheDir, "reduced")
}

// RunStatePath returns cache_dir/.run-state.toml, the optional
// stage-completion bookkeeping file.
func (c *Configuration) RunStatePath() string {
	return filepath.Join(c.CacheDir, ".run-state.toml")
}
