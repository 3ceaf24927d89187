// Package manifestio implements the manifest loader (C5): cache-first
// fetch of the channel manifest, then the installer manifest it points
// to, with the canonical on-disk layout under cache_dir.
package manifestio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/xwin-go/xwin/internal/config"
	"github.com/xwin-go/xwin/internal/fetch"
	"github.com/xwin-go/xwin/internal/log"
	"github.com/xwin-go/xwin/internal/manifest"
	"github.com/xwin-go/xwin/internal/xwinerr"
)

// Loader loads the channel and installer manifests, fetching from
// Microsoft's distribution endpoint only when no cached copy exists.
type Loader struct {
	fetcher *fetch.Fetcher
	logger  log.Logger
}

// New builds a Loader backed by a fresh Fetcher.
func New() *Loader {
	return &Loader{fetcher: fetch.New(), logger: log.Default()}
}

// LoadChannelManifest implements §4.5 step 1: if cfg.ChannelManifestPath
// is set, read and parse that local file; otherwise fetch-or-read-cache
// from cache_dir/manifest_{version}/{channel}/vs_channel_manifest.json.
func (l *Loader) LoadChannelManifest(ctx context.Context, cfg *config.Configuration) (*manifest.ChannelManifest, error) {
	if cfg.ChannelManifestPath != "" {
		data, err := os.ReadFile(cfg.ChannelManifestPath)
		if err != nil {
			return nil, &xwinerr.MissingFieldError{Field: "channel_manifest_path", Message: err.Error()}
		}
		return decodeChannelManifest(data)
	}

	dest := filepath.Join(cfg.ManifestCacheDir(), "vs_channel_manifest.json")
	if data, err := os.ReadFile(dest); err == nil {
		l.logger.Debug("channel manifest cache hit", "path", dest)
		return decodeChannelManifest(data)
	}

	channelURL := fmt.Sprintf("https://aka.ms/vs/%s/%s/channel",
		url.PathEscape(fmt.Sprintf("%d", cfg.ManifestVersion)), url.PathEscape(cfg.Channel.String()))

	l.logger.Debug("fetching channel manifest", "url", log.SanitizeURL(channelURL))
	data, err := l.fetcher.FetchBytes(ctx, channelURL)
	if err != nil {
		return nil, err
	}

	if err := persist(dest, data); err != nil {
		return nil, err
	}
	return decodeChannelManifest(data)
}

// LoadInstallerManifest implements §4.5's second stage: find the
// first channel item of type Manifest, fetch its first payload's URL
// (the installer manifest's own sha256 is known-unreliable and is not
// verified), persist it, and bucket its packages into a PackageIndex.
func (l *Loader) LoadInstallerManifest(ctx context.Context, cm *manifest.ChannelManifest, cfg *config.Configuration) (manifest.PackageIndex, error) {
	var manifestItem *manifest.ManifestItem
	for i := range cm.ChannelItems {
		if cm.ChannelItems[i].Type == manifest.ItemTypeManifest {
			manifestItem = &cm.ChannelItems[i]
			break
		}
	}
	if manifestItem == nil {
		return nil, &xwinerr.MalformedJSONError{Message: "no channel item of type Manifest found"}
	}
	if len(manifestItem.Payloads) == 0 {
		return nil, &xwinerr.MissingFieldError{Field: "payloads", Message: "installer manifest item has no payloads"}
	}

	installerURL := manifestItem.Payloads[0].URL

	dest := filepath.Join(cfg.ManifestCacheDir(), "vs_installer_manifest.json")
	var data []byte
	if cached, err := os.ReadFile(dest); err == nil {
		l.logger.Debug("installer manifest cache hit", "path", dest)
		data = cached
	} else {
		l.logger.Debug("fetching installer manifest", "url", log.SanitizeURL(installerURL))
		fetched, err := l.fetcher.FetchBytes(ctx, installerURL)
		if err != nil {
			return nil, err
		}
		if err := persist(dest, fetched); err != nil {
			return nil, err
		}
		data = fetched
	}

	var im manifest.InstallerManifest
	if err := json.Unmarshal(data, &im); err != nil {
		return nil, &xwinerr.MalformedJSONError{Message: err.Error()}
	}
	return manifest.NewPackageIndex(&im), nil
}

func decodeChannelManifest(data []byte) (*manifest.ChannelManifest, error) {
	var cm manifest.ChannelManifest
	if err := json.Unmarshal(data, &cm); err != nil {
		return nil, &xwinerr.MalformedJSONError{Message: err.Error()}
	}
	return &cm, nil
}

func persist(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating manifest cache dir: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest cache file %s: %w", dest, err)
	}
	return nil
}
