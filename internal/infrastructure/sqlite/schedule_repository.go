package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/semmidev/snapkeep/internal/domain"
)

type scheduleRow struct {
	ID               string        `db:"id"`
	Name             string        `db:"name"`
	Enabled          bool          `db:"enabled"`
	Frequency        string        `db:"frequency"`
	Time             string        `db:"time"`
	DayOfWeek        int           `db:"day_of_week"`
	Timezone         string        `db:"timezone"`
	CronExpression   string        `db:"cron_expression"`
	BackupType       string        `db:"backup_type"`
	Collections      string        `db:"collections"`
	Compression      string        `db:"compression"`
	StorageProviders string        `db:"storage_providers"`
	RetentionPolicy  string        `db:"retention_policy"`
	Notifications    string        `db:"notifications"`
	LastRunAt        sql.NullInt64 `db:"last_run_at"`
	NextRunAt        sql.NullInt64 `db:"next_run_at"`
	CreatedAt        int64         `db:"created_at"`
	UpdatedAt        int64         `db:"updated_at"`
}

const scheduleColumns = `id, name, enabled, frequency, time, day_of_week, timezone, cron_expression,
	backup_type, collections, compression, storage_providers, retention_policy, notifications,
	last_run_at, next_run_at, created_at, updated_at`

type scheduleRepository struct {
	db *DB
}

func NewScheduleRepository(db *DB) domain.ScheduleRepository {
	return &scheduleRepository{db: db}
}

func toScheduleRow(s *domain.BackupSchedule) (*scheduleRow, error) {
	collections, err := marshalJSON(nonNilStrings(s.Collections))
	if err != nil {
		return nil, fmt.Errorf("failed to encode collections: %w", err)
	}
	providers, err := marshalJSON(nonNilStrings(s.StorageProviders))
	if err != nil {
		return nil, fmt.Errorf("failed to encode storage providers: %w", err)
	}
	retention, err := marshalJSON(s.RetentionPolicy)
	if err != nil {
		return nil, fmt.Errorf("failed to encode retention policy: %w", err)
	}
	notifications, err := marshalJSON(s.Notifications)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notifications: %w", err)
	}

	return &scheduleRow{
		ID:               s.ID,
		Name:             s.Name,
		Enabled:          s.Enabled,
		Frequency:        string(s.Frequency),
		Time:             s.Time,
		DayOfWeek:        s.DayOfWeek,
		Timezone:         s.Timezone,
		CronExpression:   s.CronExpression,
		BackupType:       string(s.BackupType),
		Collections:      collections,
		Compression:      string(s.Compression),
		StorageProviders: providers,
		RetentionPolicy:  retention,
		Notifications:    notifications,
		LastRunAt:        NullTime(s.LastRunAt),
		NextRunAt:        NullTime(s.NextRunAt),
		CreatedAt:        unixNano(s.CreatedAt),
		UpdatedAt:        unixNano(s.UpdatedAt),
	}, nil
}

func (row *scheduleRow) toDomain() (*domain.BackupSchedule, error) {
	s := &domain.BackupSchedule{
		ID:      row.ID,
		Name:    row.Name,
		Enabled: row.Enabled,
		Timing: domain.Timing{
			Frequency: domain.Frequency(row.Frequency),
			Time:      row.Time,
			DayOfWeek: row.DayOfWeek,
			Timezone:  row.Timezone,
		},
		CronExpression: row.CronExpression,
		BackupType:     domain.BackupType(row.BackupType),
		Compression:    domain.Compression(row.Compression),
		LastRunAt:      timePtr(row.LastRunAt),
		NextRunAt:      timePtr(row.NextRunAt),
		CreatedAt:      fromUnixNano(row.CreatedAt),
		UpdatedAt:      fromUnixNano(row.UpdatedAt),
	}
	if err := unmarshalJSON(row.Collections, &s.Collections); err != nil {
		return nil, fmt.Errorf("failed to decode collections: %w", err)
	}
	if err := unmarshalJSON(row.StorageProviders, &s.StorageProviders); err != nil {
		return nil, fmt.Errorf("failed to decode storage providers: %w", err)
	}
	if err := unmarshalJSON(row.RetentionPolicy, &s.RetentionPolicy); err != nil {
		return nil, fmt.Errorf("failed to decode retention policy: %w", err)
	}
	if err := unmarshalJSON(row.Notifications, &s.Notifications); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return s, nil
}

func (r *scheduleRepository) Create(ctx context.Context, schedule *domain.BackupSchedule) error {
	row, err := toScheduleRow(schedule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO schedule (` + scheduleColumns + `)
		VALUES (:id, :name, :enabled, :frequency, :time, :day_of_week, :timezone, :cron_expression,
			:backup_type, :collections, :compression, :storage_providers, :retention_policy, :notifications,
			:last_run_at, :next_run_at, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

func (r *scheduleRepository) Update(ctx context.Context, schedule *domain.BackupSchedule) error {
	row, err := toScheduleRow(schedule)
	if err != nil {
		return err
	}

	query := `
		UPDATE schedule
		SET name = :name, enabled = :enabled, frequency = :frequency, time = :time,
			day_of_week = :day_of_week, timezone = :timezone, cron_expression = :cron_expression,
			backup_type = :backup_type, collections = :collections, compression = :compression,
			storage_providers = :storage_providers, retention_policy = :retention_policy,
			notifications = :notifications, last_run_at = :last_run_at, next_run_at = :next_run_at,
			updated_at = :updated_at
		WHERE id = :id
	`
	result, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	return checkAffected(result, "schedule", schedule.ID)
}

func (r *scheduleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM schedule WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return checkAffected(result, "schedule", id)
}

func (r *scheduleRepository) FindByID(ctx context.Context, id string) (*domain.BackupSchedule, error) {
	var row scheduleRow
	err := r.db.GetContext(ctx, &row, `SELECT `+scheduleColumns+` FROM schedule WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return row.toDomain()
}

func (r *scheduleRepository) List(ctx context.Context, filter domain.ScheduleFilter) ([]*domain.BackupSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedule WHERE 1=1`
	args := []interface{}{}

	if filter.Enabled != nil {
		query += " AND enabled = ?"
		args = append(args, *filter.Enabled)
	}

	query += " ORDER BY created_at ASC, id ASC"
	query, args = paginate(query, args, filter.Limit, filter.Offset)

	return r.selectSchedules(ctx, query, args...)
}

func (r *scheduleRepository) FindDue(ctx context.Context, now time.Time) ([]*domain.BackupSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedule
		WHERE enabled = 1 AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at ASC`
	return r.selectSchedules(ctx, query, unixNano(now))
}

func (r *scheduleRepository) selectSchedules(ctx context.Context, query string, args ...interface{}) ([]*domain.BackupSchedule, error) {
	var rows []scheduleRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	schedules := make([]*domain.BackupSchedule, 0, len(rows))
	for i := range rows {
		s, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, nil
}
