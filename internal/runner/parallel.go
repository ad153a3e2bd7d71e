package runner

import (
	"context"
	"errors"

	"uiverify/internal/report"
	"uiverify/internal/script"

	"golang.org/x/sync/errgroup"
)

// RunAll runs scripts with at most parallel sessions open at once. A failing
// script does not stop the others. Reports are returned in script order; the
// error joins every run failure.
func (r *Runner) RunAll(ctx context.Context, scripts []*script.Script, parallel int) ([]*report.Report, error) {
	if parallel < 1 {
		parallel = 1
	}
	reports := make([]*report.Report, len(scripts))
	errs := make([]error, len(scripts))

	eg := new(errgroup.Group)
	eg.SetLimit(parallel)
	for i, s := range scripts {
		i, s := i, s
		eg.Go(func() error {
			reports[i], errs[i] = r.Run(ctx, s)
			return nil
		})
	}
	_ = eg.Wait()
	return reports, errors.Join(errs...)
}
