package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/robfig/cron/v3"
	"github.com/semmidev/snapkeep/internal/domain"
	"github.com/semmidev/snapkeep/internal/infrastructure/logger"
	"github.com/semmidev/snapkeep/internal/usecase"
	"golang.org/x/sync/errgroup"
)

type BackupRunner interface {
	Run(ctx context.Context, req usecase.Request) *domain.BackupMetadata
}

type RetentionCleaner interface {
	Execute(ctx context.Context, schedule *domain.BackupSchedule) (int, error)
}

type RunRecorder interface {
	RecordRun(ctx context.Context, schedule *domain.BackupSchedule, ranAt time.Time) error
}

// Scheduler polls for due schedules on a fixed interval and drives each
// one through run, retention, rescheduling and notification.
type Scheduler struct {
	cron        *cron.Cron
	interval    time.Duration
	concurrency int

	schedules domain.ScheduleRepository
	backups   domain.BackupRepository
	runner    BackupRunner
	cleanup   RetentionCleaner
	recorder  RunRecorder
	notifier  domain.Notifier
	clock     clock.Clock
	logger    *logger.Logger

	cancel context.CancelFunc
}

func New(
	interval time.Duration,
	concurrency int,
	schedules domain.ScheduleRepository,
	backups domain.BackupRepository,
	runner BackupRunner,
	cleanup RetentionCleaner,
	recorder RunRecorder,
	notifier domain.Notifier,
	clk clock.Clock,
	log *logger.Logger,
) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(log.Cron()),
			cron.WithChain(cron.Recover(log.Cron()), cron.SkipIfStillRunning(log.Cron())),
		),
		interval:    interval,
		concurrency: concurrency,
		schedules:   schedules,
		backups:     backups,
		runner:      runner,
		cleanup:     cleanup,
		recorder:    recorder,
		notifier:    notifier,
		clock:       clk,
		logger:      log,
	}
}

// Start begins ticking. Runs started by a tick inherit ctx.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		if err := s.Tick(ctx); err != nil {
			s.logger.Errorf("[scheduler] Tick failed: %v", err)
		}
	}))
	s.cron.Start()
	s.logger.Infof("[scheduler] Started, checking for due schedules every %s", s.interval)
}

// Stop cancels in-flight runs and waits for the current tick to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Tick processes every schedule due at the current clock time.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.clock.Now()
	due, err := s.schedules.FindDue(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to load due schedules: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, schedule := range due {
		schedule := schedule
		active, err := s.backups.HasActiveRun(ctx, schedule.ID)
		if err != nil {
			s.logger.Errorf("[%s] Failed to check for an active run: %v", schedule.Name, err)
			continue
		}
		if active {
			s.logger.Warnf("[%s] Previous run still in progress, skipping this tick", schedule.Name)
			continue
		}

		g.Go(func() error {
			s.process(ctx, schedule)
			return nil
		})
	}

	return g.Wait()
}

func (s *Scheduler) process(ctx context.Context, schedule *domain.BackupSchedule) {
	s.logger.Infof("[%s] Starting scheduled %s backup", schedule.Name, schedule.BackupType)

	meta := s.runner.Run(ctx, usecase.Request{
		ScheduleID:  schedule.ID,
		Type:        schedule.BackupType,
		Collections: schedule.Collections,
		Compression: schedule.Compression,
		Providers:   schedule.StorageProviders,
	})
	if meta.ID == "" && strings.Contains(meta.Error, domain.ErrRunInProgress.Error()) {
		s.logger.Warnf("[%s] Run not started: %s", schedule.Name, meta.Error)
		return
	}

	current, ok := s.reload(ctx, schedule)
	if !ok {
		return
	}

	if meta.ID != "" {
		if _, err := s.cleanup.Execute(ctx, current); err != nil {
			s.logger.Errorf("[%s] Retention cleanup failed: %v", current.Name, err)
		}
	}

	if err := s.recorder.RecordRun(context.WithoutCancel(ctx), current, meta.CreatedAt); err != nil {
		s.logger.Errorf("[%s] Failed to reschedule: %v", current.Name, err)
	}

	s.notify(ctx, current, meta)
}

// reload fetches the schedule as stored now, since it may have been edited
// or deleted while the run was in flight.
func (s *Scheduler) reload(ctx context.Context, schedule *domain.BackupSchedule) (*domain.BackupSchedule, bool) {
	current, err := s.schedules.FindByID(context.WithoutCancel(ctx), schedule.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.logger.Infof("[%s] Schedule deleted during its run, not rescheduling", schedule.Name)
		return nil, false
	case err != nil:
		s.logger.Errorf("[%s] Failed to reload schedule, using the tick snapshot: %v", schedule.Name, err)
		return schedule, true
	}
	return current, true
}

func (s *Scheduler) notify(ctx context.Context, schedule *domain.BackupSchedule, meta *domain.BackupMetadata) {
	if s.notifier == nil {
		return
	}

	wanted := schedule.Notifications.OnFailure
	if meta.Status == domain.StatusSuccess {
		wanted = schedule.Notifications.OnSuccess
	}
	if !wanted {
		return
	}

	event := domain.Event{
		ScheduleID:   schedule.ID,
		ScheduleName: schedule.Name,
		BackupID:     meta.ID,
		Outcome:      meta.Status,
		Error:        meta.Error,
		Emails:       schedule.Notifications.Emails,
	}
	if err := s.notifier.Notify(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warnf("[%s] Failed to send notification: %v", schedule.Name, err)
	}
}
