package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-pipeline/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultFormerInterval = 2 * time.Second
	DefaultSenderInterval = 5 * time.Second
)

// Job is a unit of periodic work. Runs of one job never overlap.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// FormerJob runs one enrichment batch per tick.
func FormerJob(former *FormerService, interval time.Duration) Job {
	if interval <= 0 {
		interval = DefaultFormerInterval
	}
	return Job{
		Name:     stageFormer,
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := former.RunBatch(ctx)
			return err
		},
	}
}

// SenderJob runs one delivery batch per tick.
func SenderJob(sender *SenderService, interval time.Duration) Job {
	if interval <= 0 {
		interval = DefaultSenderInterval
	}
	return Job{
		Name:     stageSender,
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := sender.RunBatch(ctx)
			return err
		},
	}
}

// Scheduler runs every job on its own goroutine: once immediately, then on
// each tick of the job's interval.
type Scheduler struct {
	jobs   []Job
	logger *zap.Logger
}

func NewScheduler(logger *zap.Logger, jobs ...Job) (*Scheduler, error) {
	if len(jobs) == 0 {
		return nil, fmt.Errorf("at least one job is required")
	}
	for _, job := range jobs {
		if job.Name == "" || job.Run == nil {
			return nil, fmt.Errorf("job name and run function are required")
		}
		if job.Interval <= 0 {
			return nil, fmt.Errorf("job %q interval must be positive", job.Name)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{jobs: jobs, logger: logger}, nil
}

// Start blocks until ctx is canceled and returns nil on shutdown.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		g.Go(func() error {
			s.logger.Info("scheduled job started",
				zap.String("job", job.Name),
				zap.Duration("interval", job.Interval),
			)
			s.loop(groupCtx, job)
			s.logger.Info("scheduled job stopped", zap.String("job", job.Name))
			return nil
		})
	}

	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	s.runOnce(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}

	runCtx := observability.WithTraceID(ctx, uuid.NewString())
	if err := job.Run(runCtx); err != nil {
		if ctx.Err() != nil {
			return
		}
		observability.WithContextLogger(s.logger, runCtx).Error("scheduled job run failed",
			zap.String("job", job.Name),
			zap.Error(err),
		)
	}
}
