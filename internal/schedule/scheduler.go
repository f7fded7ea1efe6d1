package schedule

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// CronScheduler runs jobs on standard five-field cron expressions.
// A job whose previous run is still active skips its turn.
type CronScheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	logger  *zap.Logger
	ctx     context.Context
}

// NewCronScheduler creates a stopped scheduler.
func NewCronScheduler(logger *zap.Logger) *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &CronScheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
		logger:  logger,
		ctx:     context.Background(),
	}
}

// AddJob registers job under spec. Must be called before Start.
func (c *CronScheduler) AddJob(job Job, spec string) error {
	log := c.logger.With(zap.String("job", job.Name()), zap.String("spec", spec))
	id, err := c.cron.AddFunc(spec, c.wrap(job, log))
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", job.Name(), err)
	}
	c.entries[job.Name()] = id
	log.Info("Job scheduled")
	return nil
}

// Start begins running jobs; ctx is passed to every run.
func (c *CronScheduler) Start(ctx context.Context) {
	if ctx != nil {
		c.ctx = ctx
	}
	c.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (c *CronScheduler) Stop() {
	<-c.cron.Stop().Done()
}

// Next returns the next activation time of a job, or zero if unknown.
func (c *CronScheduler) Next(name string) time.Time {
	id, ok := c.entries[name]
	if !ok {
		return time.Time{}
	}
	return c.cron.Entry(id).Next
}

func (c *CronScheduler) wrap(job Job, log *zap.Logger) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			log.Info("Job skipped: previous run still active")
			return
		}
		defer running.Store(false)

		start := time.Now()
		if err := job.Run(c.ctx); err != nil {
			log.Error("Job failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
			return
		}
		log.Info("Job finished", zap.Duration("duration", time.Since(start)))
	}
}
