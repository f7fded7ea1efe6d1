package schedule

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragvoice/internal/usecase/ingest"
)

// Rescanner ingests new or changed files from the raw documents directory.
type Rescanner interface {
	Rescan(ctx context.Context) (ingest.RescanReport, error)
}

// RescanJob periodically picks up documents dropped into the raw directory.
type RescanJob struct {
	rescanner Rescanner
	logger    *zap.Logger
}

// NewRescanJob creates a rescan job.
func NewRescanJob(r Rescanner, logger *zap.Logger) *RescanJob {
	return &RescanJob{rescanner: r, logger: logger}
}

// Name implements Job.
func (j *RescanJob) Name() string { return "rescan" }

// Run implements Job.
func (j *RescanJob) Run(ctx context.Context) error {
	report, err := j.rescanner.Rescan(ctx)
	if err != nil {
		return fmt.Errorf("rescan: %w", err)
	}
	j.logger.Info("Rescan complete",
		zap.Int("indexed", report.Indexed),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("failed", report.Failed),
	)
	return nil
}
