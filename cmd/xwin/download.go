package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xwin-go/xwin/internal/config"
	"github.com/xwin-go/xwin/internal/log"
	"github.com/xwin-go/xwin/internal/manifest"
	"github.com/xwin-go/xwin/internal/pipeline"
)

var (
	downloadAcceptLicense  bool
	downloadManifestPath   string
	downloadCacheDir       string
	downloadManifestVer    int
	downloadChannel        string
	downloadArches         []string
	downloadVariants       []string
	downloadCRTVersion     string
	downloadSDKVersion     string
	downloadIncludeATL     bool
	downloadIncludeSpectre bool
)

var wincrtCmd = &cobra.Command{
	Use:   "wincrt",
	Short: "Acquire the MSVC build toolchain",
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download and assemble the MSVC CRT and Windows SDK into a sysroot",
	Long: `download resolves the Microsoft channel and installer manifests,
selects the CRT, optional ATL, and Windows SDK/UCRT payloads matching the
requested architectures and variants, downloads and integrity-checks them,
unpacks the VSIX/MSI/CAB archives, and reduces the result into a flat
cross-compilation sysroot under --cache-dir/reduced.

Acquiring these components requires accepting Microsoft's EULA for the
Visual Studio Build Tools. Pass --accept-license, or set
PYXWIN_ACCEPT_LICENSE=1, to confirm you accept it.`,
	RunE: runDownload,
}

func init() {
	flags := downloadCmd.Flags()
	flags.BoolVar(&downloadAcceptLicense, "accept-license", false, "Accept the Microsoft EULA for the Visual Studio Build Tools")
	flags.StringVar(&downloadManifestPath, "manifest-path", "", "Use a local channel manifest file instead of fetching one")
	flags.StringVar(&downloadCacheDir, "cache-dir", "", "Directory for downloads, unpack trees, and the reduced sysroot (default: platform cache dir)")
	flags.IntVar(&downloadManifestVer, "manifest-version", 18, "Channel manifest schema version")
	flags.StringVar(&downloadChannel, "channel", "stable", "Distribution channel (stable, insiders, release, pre)")
	flags.StringArrayVarP(&downloadArches, "arch", "a", []string{"x86_64"}, "Target architecture (repeatable): x86, x86_64, arm, arm64")
	flags.StringArrayVarP(&downloadVariants, "variant", "v", []string{"Desktop"}, "Runtime variant (repeatable): Desktop, OneCore, Store, All")
	flags.StringVar(&downloadCRTVersion, "crt-version", "", "Pin an exact CRT version instead of selecting the newest available")
	flags.StringVar(&downloadSDKVersion, "sdk-version", "", "Pin an exact Windows SDK version instead of selecting the newest available")
	flags.BoolVar(&downloadIncludeATL, "include-atl", false, "Also download the ATL headers and libraries")
	flags.BoolVar(&downloadIncludeSpectre, "include-spectre", false, "Also download the Spectre-hardened CRT/ATL libraries alongside the regular ones")
}

func runDownload(cmd *cobra.Command, args []string) error {
	if !downloadAcceptLicense && !config.AcceptLicenseFromEnv() {
		return fmt.Errorf("acquiring the MSVC CRT and Windows SDK requires accepting Microsoft's EULA: pass --accept-license or set %s=1", config.EnvAcceptLicense)
	}

	cfg, err := buildConfiguration()
	if err != nil {
		return err
	}

	logger := log.Default()
	logger.Info("starting acquisition", "channel", cfg.Channel.String(), "manifest_version", cfg.ManifestVersion, "cache_dir", cfg.CacheDir)

	if err := pipeline.Run(globalCtx, cfg); err != nil {
		return err
	}

	fmt.Printf("sysroot assembled at %s\n", cfg.ReducedDir())
	return nil
}

// buildConfiguration translates the download command's flags into a
// validated config.Configuration, overriding config.New's defaults
// only where the user supplied a value.
func buildConfiguration() (*config.Configuration, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}

	cfg.ChannelManifestPath = downloadManifestPath
	cfg.ManifestVersion = downloadManifestVer
	cfg.CRTVersion = downloadCRTVersion
	cfg.SDKVersion = downloadSDKVersion
	cfg.IncludeATL = downloadIncludeATL
	cfg.IncludeSpectre = downloadIncludeSpectre
	if downloadCacheDir != "" {
		cfg.CacheDir = downloadCacheDir
	}

	channel, ok := manifest.ParseChannel(downloadChannel)
	if !ok {
		return nil, fmt.Errorf("unrecognized --channel %q", downloadChannel)
	}
	cfg.Channel = channel

	arches := make(map[manifest.Architecture]struct{}, len(downloadArches))
	for _, a := range downloadArches {
		parsed, ok := manifest.ParseArchitecture(a)
		if !ok {
			return nil, fmt.Errorf("unrecognized --arch %q", a)
		}
		arches[parsed] = struct{}{}
	}
	cfg.Arch = arches

	variants := make(map[manifest.Variant]struct{}, len(downloadVariants))
	for _, v := range downloadVariants {
		parsed, ok := manifest.ParseVariant(v)
		if !ok {
			return nil, fmt.Errorf("unrecognized --variant %q", v)
		}
		variants[parsed] = struct{}{}
	}
	cfg.Variant = variants

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
