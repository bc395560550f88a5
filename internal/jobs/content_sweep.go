// File: internal/jobs/content_sweep.go
package jobs

import (
	"context"
	"time"

	"live_learning_backend/internal/config"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper closes content whose scheduled time has passed.
type Sweeper interface {
	SweepEnded(ctx context.Context, grace time.Duration) (int, error)
}

// ContentSweepJob holds dependencies for the content sweep job.
type ContentSweepJob struct {
	sweeper       Sweeper
	logger        *zap.Logger
	cfg           *config.Config
	cronScheduler *cron.Cron
}

// NewContentSweepJob creates a new ContentSweepJob.
func NewContentSweepJob(
	sweeper Sweeper,
	logger *zap.Logger,
	cfg *config.Config,
) *ContentSweepJob {
	// Overlapping runs would page over the same documents.
	scheduler := cron.New(
		cron.WithLogger(NewCronLogger(logger.Named("cron"))),
		cron.WithChain(cron.SkipIfStillRunning(NewCronLogger(logger.Named("cron")))),
	)

	return &ContentSweepJob{
		sweeper:       sweeper,
		logger:        logger.Named("ContentSweepJob"),
		cfg:           cfg,
		cronScheduler: scheduler,
	}
}

// SetupAndStart schedules and starts the cron job.
func (j *ContentSweepJob) SetupAndStart() error {
	jobSpec := j.cfg.ContentSweepSchedule // e.g. "@hourly", "*/15 * * * *"
	if jobSpec == "" {
		j.logger.Warn("Content sweep schedule not defined (CONTENT_SWEEP_SCHEDULE). Job will not run.")
		return nil
	}

	jobID, err := j.cronScheduler.AddFunc(jobSpec, j.runJob)
	if err != nil {
		j.logger.Error("Failed to schedule content sweep job", zap.String("spec", jobSpec), zap.Error(err))
		return err
	}

	j.logger.Info("Content sweep job scheduled", zap.String("spec", jobSpec), zap.Any("jobID", jobID))
	j.cronScheduler.Start()
	return nil
}

func (j *ContentSweepJob) grace() time.Duration {
	return time.Duration(j.cfg.ContentEndedGraceHours) * time.Hour
}

// runJob is the work performed on every tick.
func (j *ContentSweepJob) runJob() {
	j.logger.Info("Starting content sweep run...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	closed, err := j.sweeper.SweepEnded(ctx, j.grace())
	if err != nil {
		j.logger.Error("Content sweep run failed", zap.Int("content_closed", closed), zap.Error(err))
	} else {
		j.logger.Info("Content sweep run completed", zap.Int("content_closed", closed))
	}
}

// Stop gracefully stops the cron scheduler.
func (j *ContentSweepJob) Stop() {
	if j.cronScheduler != nil {
		j.logger.Info("Stopping content sweep scheduler...")
		stopCtx := j.cronScheduler.Stop()
		select {
		case <-stopCtx.Done():
			j.logger.Info("Content sweep scheduler stopped gracefully.")
		case <-time.After(10 * time.Second):
			j.logger.Warn("Content sweep scheduler stop timed out.")
		}
	}
}
