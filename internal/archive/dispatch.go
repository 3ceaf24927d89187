package archive

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// maxExtractWorkers bounds how many extractions run at once so CPU-
// bound decompression never blocks the surrounding async layer.
const maxExtractWorkers = 4

// ExtractJob names one archive to extract and where its contents land.
type ExtractJob struct {
	Src  string
	Dest string
}

// MultiExtractVSIX extracts every job's VSIX archive, running up to
// maxExtractWorkers extractions concurrently.
func MultiExtractVSIX(ctx context.Context, jobs []ExtractJob) error {
	return runBounded(ctx, jobs, func(j ExtractJob) error {
		return ExtractVSIX(j.Src, j.Dest)
	})
}

// MultiExtractMSI extracts every job's MSI database, running up to
// maxExtractWorkers extractions concurrently.
func MultiExtractMSI(ctx context.Context, jobs []ExtractJob) error {
	return runBounded(ctx, jobs, func(j ExtractJob) error {
		return ExtractMSI(j.Src, j.Dest)
	})
}

// MultiExtractTarXZ extracts every job's .tar.xz archive, running up
// to maxExtractWorkers extractions concurrently.
func MultiExtractTarXZ(ctx context.Context, jobs []ExtractJob) error {
	return runBounded(ctx, jobs, func(j ExtractJob) error {
		return ExtractTarXZ(j.Src, j.Dest)
	})
}

func runBounded(ctx context.Context, jobs []ExtractJob, fn func(ExtractJob) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxExtractWorkers)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return fn(job)
		})
	}
	return g.Wait()
}
