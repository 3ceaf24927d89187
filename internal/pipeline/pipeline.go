// Package pipeline drives the acquisition pipeline end to end (C7):
// load manifests, select payloads, download, extract, and reduce into
// a sysroot, honoring the happens-before ordering between stages.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/xwin-go/xwin/internal/archive"
	"github.com/xwin-go/xwin/internal/config"
	"github.com/xwin-go/xwin/internal/download"
	"github.com/xwin-go/xwin/internal/log"
	"github.com/xwin-go/xwin/internal/manifest"
	"github.com/xwin-go/xwin/internal/manifestio"
	"github.com/xwin-go/xwin/internal/runstate"
	"github.com/xwin-go/xwin/internal/selector"
	"github.com/xwin-go/xwin/internal/sysroot"
)

// Run executes the full pipeline against cfg: load both manifests,
// select payloads, download and verify them, extract archives, and
// reduce the unpack tree into cache_dir/reduced.
func Run(ctx context.Context, cfg *config.Configuration) error {
	logger := log.Default()
	loader := manifestio.New()

	channelManifest, err := loader.LoadChannelManifest(ctx, cfg)
	if err != nil {
		return fmt.Errorf("pipeline: loading channel manifest: %w", err)
	}
	_ = runstate.Record(cfg.RunStatePath(), runstate.StageChannelManifest)

	idx, err := loader.LoadInstallerManifest(ctx, channelManifest, cfg)
	if err != nil {
		return fmt.Errorf("pipeline: loading installer manifest: %w", err)
	}
	_ = runstate.Record(cfg.RunStatePath(), runstate.StageInstallerManifest)

	result, err := selector.Select(idx, cfg)
	if err != nil {
		return fmt.Errorf("pipeline: selecting packages: %w", err)
	}
	_ = runstate.Record(cfg.RunStatePath(), runstate.StageSelect)
	logger.Info("selected packages", "count", len(result.Order))

	targets, paths := planDownloads(cfg, result)
	writer := download.New()
	if err := writer.MultiDownload(ctx, targets); err != nil {
		return fmt.Errorf("pipeline: downloading payloads: %w", err)
	}
	_ = runstate.Record(cfg.RunStatePath(), runstate.StageDownload)

	if err := extractAll(ctx, cfg, paths); err != nil {
		return fmt.Errorf("pipeline: extracting archives: %w", err)
	}
	_ = runstate.Record(cfg.RunStatePath(), runstate.StageExtract)

	if err := reduceAll(cfg, paths); err != nil {
		return fmt.Errorf("pipeline: reducing sysroot: %w", err)
	}
	_ = runstate.Record(cfg.RunStatePath(), runstate.StageReduce)

	return nil
}

// plannedPayload tracks one selected payload's on-disk path alongside
// the package directory name it belongs under, needed by both the
// extraction and reduction stages.
type plannedPayload struct {
	packageDir string
	path       string
	isCRT      bool
}

func planDownloads(cfg *config.Configuration, result *selector.Result) ([]download.Target, []plannedPayload) {
	targets := make([]download.Target, 0, len(result.Order))
	planned := make([]plannedPayload, 0, len(result.Order))

	for _, id := range result.Order {
		payload := result.Items[id]
		suggested := filepath.FromSlash(payload.SuggestedPath())
		path := filepath.Join(cfg.DownloadsDir(), suggested)
		packageDir := suggested[:strings.IndexByte(suggested, filepath.Separator)]

		_, isCRT := payload.(manifest.CRTPayload)

		targets = append(targets, download.Target{
			URL:         payload.DownloadURL(),
			Path:        path,
			ExpectedSHA: payload.ExpectedSHA256(),
		})
		planned = append(planned, plannedPayload{
			packageDir: packageDir,
			path:       path,
			isCRT:      isCRT,
		})
	}
	return targets, planned
}

// extractAll groups downloaded files by archive type and dispatches
// them to the VSIX and MSI extractors concurrently; .cab files are
// left in place since their owning MSI opens them by relative path.
func extractAll(ctx context.Context, cfg *config.Configuration, planned []plannedPayload) error {
	var vsixJobs, msiJobs, tarXZJobs []archive.ExtractJob

	for _, p := range planned {
		lower := strings.ToLower(p.path)
		dest := filepath.Join(cfg.UnpackDir(), p.packageDir, filepath.Base(p.path))
		switch {
		case strings.HasSuffix(lower, ".vsix"):
			vsixJobs = append(vsixJobs, archive.ExtractJob{Src: p.path, Dest: dest})
		case strings.HasSuffix(lower, ".msi"):
			msiJobs = append(msiJobs, archive.ExtractJob{Src: p.path, Dest: dest})
		case strings.HasSuffix(lower, ".tar.xz"):
			tarXZJobs = append(tarXZJobs, archive.ExtractJob{Src: p.path, Dest: dest})
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return archive.MultiExtractVSIX(ctx, vsixJobs) })
	g.Go(func() error { return archive.MultiExtractMSI(ctx, msiJobs) })
	g.Go(func() error { return archive.MultiExtractTarXZ(ctx, tarXZJobs) })
	return g.Wait()
}

// reduceAll runs the tree reducer once per distinct package directory
// seen during planning, using CRT vs SDK keep-sets based on payload kind.
func reduceAll(cfg *config.Configuration, planned []plannedPayload) error {
	seen := make(map[string]bool)
	for _, p := range planned {
		if seen[p.packageDir] {
			continue
		}
		seen[p.packageDir] = true

		kind := sysroot.KindSDK
		if p.isCRT {
			kind = sysroot.KindCRT
		}
		unpackRoot := filepath.Join(cfg.UnpackDir(), p.packageDir)
		reducedRoot := filepath.Join(cfg.ReducedDir(), p.packageDir)
		if err := sysroot.Reduce(unpackRoot, reducedRoot, kind); err != nil {
			return err
		}
	}
	return nil
}
