package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/xwin-go/xwin/internal/config"
)

var (
	cleanCacheDir     string
	cleanCacheDirOnly bool
)

var cleanCacheCmd = &cobra.Command{
	Use:   "clean-cache",
	Short: "Remove cached manifests, downloads, and unpack trees",
	Long: `clean-cache removes xwin's on-disk cache.

By default it removes the parent of --cache-dir, which takes
--cache-dir (holding the manifest cache, downloads, unpack trees, and
reduced sysroot) and anything beside it under the same parent. Pass
--cache-dir-only to remove only --cache-dir itself and leave any
sibling state alone.`,
	RunE: runCleanCache,
}

func init() {
	flags := cleanCacheCmd.Flags()
	flags.StringVar(&cleanCacheDir, "cache-dir", "", "Cache directory to remove (default: platform cache dir)")
	flags.BoolVar(&cleanCacheDirOnly, "cache-dir-only", false, "Remove only --cache-dir, not its parent")
}

func runCleanCache(cmd *cobra.Command, args []string) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	if cleanCacheDir != "" {
		cfg.CacheDir = cleanCacheDir
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	target := filepath.Dir(cfg.CacheDir)
	if cleanCacheDirOnly {
		target = cfg.CacheDir
	}

	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("clean-cache: removing %s: %w", target, err)
	}
	fmt.Printf("removed %s\n", target)
	return nil
}
