package usecase

import (
	"context"
	"fmt"

	"github.com/semmidev/snapkeep/internal/domain"
	"github.com/semmidev/snapkeep/internal/infrastructure/metrics"
)

type BackupDeleter interface {
	DeleteBackup(ctx context.Context, id string) error
}

// Cleanup applies a schedule's retention policy to its recorded backups.
type Cleanup struct {
	repo    domain.BackupRepository
	engine  *RetentionEngine
	deleter BackupDeleter
	logger  Logger
}

func NewCleanup(
	repo domain.BackupRepository,
	engine *RetentionEngine,
	deleter BackupDeleter,
	logger Logger,
) *Cleanup {
	return &Cleanup{
		repo:    repo,
		engine:  engine,
		deleter: deleter,
		logger:  logger,
	}
}

// Execute sweeps the schedule's backups and returns how many were deleted.
// Individual delete failures are logged and do not stop the sweep.
func (uc *Cleanup) Execute(ctx context.Context, schedule *domain.BackupSchedule) (int, error) {
	scheduleID := schedule.ID
	backups, err := uc.repo.List(ctx, domain.BackupFilter{ScheduleID: &scheduleID})
	if err != nil {
		return 0, fmt.Errorf("failed to list backups: %w", err)
	}

	drop := uc.engine.Sweep(schedule.RetentionPolicy, backups)
	if len(drop) == 0 {
		return 0, nil
	}

	uc.logger.Infof("[%s] Retention sweep removing %d of %d backup(s)", schedule.Name, len(drop), len(backups))

	deleted := 0
	for _, id := range drop {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if err := uc.deleter.DeleteBackup(ctx, id); err != nil {
			uc.logger.Errorf("[%s] Failed to delete backup %s: %v", schedule.Name, id, err)
			continue
		}
		deleted++
	}

	metrics.RecordRetentionDeleted(deleted)
	uc.logger.Infof("[%s] Cleanup completed, deleted %d backup(s)", schedule.Name, deleted)
	return deleted, nil
}
