package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/semmidev/snapkeep/internal/domain"
)

type backupRow struct {
	ID             string        `db:"id"`
	ScheduleID     string        `db:"schedule_id"`
	Type           string        `db:"type"`
	Status         string        `db:"status"`
	Compression    string        `db:"compression"`
	Collections    string        `db:"collections"`
	DocumentCounts string        `db:"document_counts"`
	Size           int64         `db:"size"`
	Duration       int64         `db:"duration"`
	Error          string        `db:"error"`
	ArchivePath    string        `db:"archive_path"`
	RemoteObjects  string        `db:"remote_objects"`
	Since          sql.NullInt64 `db:"since"`
	Progress       int           `db:"progress"`
	CreatedAt      int64         `db:"created_at"`
	CompletedAt    sql.NullInt64 `db:"completed_at"`
}

const backupColumns = `id, schedule_id, type, status, compression, collections, document_counts,
	size, duration, error, archive_path, remote_objects, since, progress, created_at, completed_at`

type backupRepository struct {
	db *DB
}

func NewBackupRepository(db *DB) domain.BackupRepository {
	return &backupRepository{db: db}
}

func toBackupRow(b *domain.BackupMetadata) (*backupRow, error) {
	collections, err := marshalJSON(nonNilStrings(b.Collections))
	if err != nil {
		return nil, fmt.Errorf("failed to encode collections: %w", err)
	}
	counts := b.DocumentCounts
	if counts == nil {
		counts = map[string]int64{}
	}
	documentCounts, err := marshalJSON(counts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document counts: %w", err)
	}
	objects := b.RemoteObjects
	if objects == nil {
		objects = map[string]string{}
	}
	remoteObjects, err := marshalJSON(objects)
	if err != nil {
		return nil, fmt.Errorf("failed to encode remote objects: %w", err)
	}

	return &backupRow{
		ID:             b.ID,
		ScheduleID:     b.ScheduleID,
		Type:           string(b.Type),
		Status:         string(b.Status),
		Compression:    string(b.Compression),
		Collections:    collections,
		DocumentCounts: documentCounts,
		Size:           b.Size,
		Duration:       b.Duration,
		Error:          b.Error,
		ArchivePath:    b.ArchivePath,
		RemoteObjects:  remoteObjects,
		Since:          NullTime(b.Since),
		Progress:       b.Progress,
		CreatedAt:      unixNano(b.CreatedAt),
		CompletedAt:    NullTime(b.CompletedAt),
	}, nil
}

func (row *backupRow) toDomain() (*domain.BackupMetadata, error) {
	b := &domain.BackupMetadata{
		ID:          row.ID,
		ScheduleID:  row.ScheduleID,
		Type:        domain.BackupType(row.Type),
		Status:      domain.BackupStatus(row.Status),
		Compression: domain.Compression(row.Compression),
		Size:        row.Size,
		Duration:    row.Duration,
		Error:       row.Error,
		ArchivePath: row.ArchivePath,
		Since:       timePtr(row.Since),
		Progress:    row.Progress,
		CreatedAt:   fromUnixNano(row.CreatedAt),
		CompletedAt: timePtr(row.CompletedAt),
	}
	if err := unmarshalJSON(row.Collections, &b.Collections); err != nil {
		return nil, fmt.Errorf("failed to decode collections: %w", err)
	}
	if err := unmarshalJSON(row.DocumentCounts, &b.DocumentCounts); err != nil {
		return nil, fmt.Errorf("failed to decode document counts: %w", err)
	}
	if err := unmarshalJSON(row.RemoteObjects, &b.RemoteObjects); err != nil {
		return nil, fmt.Errorf("failed to decode remote objects: %w", err)
	}
	return b, nil
}

func (r *backupRepository) Create(ctx context.Context, backup *domain.BackupMetadata) error {
	row, err := toBackupRow(backup)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO backup (` + backupColumns + `)
		VALUES (:id, :schedule_id, :type, :status, :compression, :collections, :document_counts,
			:size, :duration, :error, :archive_path, :remote_objects, :since, :progress, :created_at, :completed_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	return nil
}

func (r *backupRepository) Update(ctx context.Context, backup *domain.BackupMetadata) error {
	row, err := toBackupRow(backup)
	if err != nil {
		return err
	}

	query := `
		UPDATE backup
		SET status = :status, compression = :compression, collections = :collections,
			document_counts = :document_counts, size = :size, duration = :duration, error = :error,
			archive_path = :archive_path, remote_objects = :remote_objects, since = :since,
			progress = :progress, completed_at = :completed_at
		WHERE id = :id
	`
	result, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("failed to update backup: %w", err)
	}
	return checkAffected(result, "backup", backup.ID)
}

func (r *backupRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM backup WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}
	return checkAffected(result, "backup", id)
}

func (r *backupRepository) FindByID(ctx context.Context, id string) (*domain.BackupMetadata, error) {
	var row backupRow
	err := r.db.GetContext(ctx, &row, `SELECT `+backupColumns+` FROM backup WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("backup %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backup: %w", err)
	}
	return row.toDomain()
}

func (r *backupRepository) List(ctx context.Context, filter domain.BackupFilter) ([]*domain.BackupMetadata, error) {
	query := `SELECT ` + backupColumns + ` FROM backup WHERE 1=1`
	args := []interface{}{}

	if filter.ScheduleID != nil {
		query += " AND schedule_id = ?"
		args = append(args, *filter.ScheduleID)
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}

	query += " ORDER BY created_at DESC, id DESC"
	query, args = paginate(query, args, filter.Limit, filter.Offset)

	return r.selectBackups(ctx, query, args...)
}

func (r *backupRepository) LastSuccessful(ctx context.Context, scheduleID string) (*domain.BackupMetadata, error) {
	query := `SELECT ` + backupColumns + ` FROM backup
		WHERE schedule_id = ? AND status = ?
		ORDER BY created_at DESC LIMIT 1`

	backups, err := r.selectBackups(ctx, query, scheduleID, string(domain.StatusSuccess))
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		return nil, nil
	}
	return backups[0], nil
}

func (r *backupRepository) HasActiveRun(ctx context.Context, scheduleID string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(1) FROM backup WHERE schedule_id = ? AND status IN (?, ?)`,
		scheduleID, string(domain.StatusPending), string(domain.StatusInProgress))
	if err != nil {
		return false, fmt.Errorf("failed to count active backups: %w", err)
	}
	return count > 0, nil
}

func (r *backupRepository) FailInterrupted(ctx context.Context, reason string, at time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE backup SET status = ?, error = ?, completed_at = ? WHERE status IN (?, ?)`,
		string(domain.StatusFailed), reason, unixNano(at),
		string(domain.StatusPending), string(domain.StatusInProgress))
	if err != nil {
		return 0, fmt.Errorf("failed to fail interrupted backups: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

func (r *backupRepository) selectBackups(ctx context.Context, query string, args ...interface{}) ([]*domain.BackupMetadata, error) {
	var rows []backupRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]*domain.BackupMetadata, 0, len(rows))
	for i := range rows {
		b, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		backups = append(backups, b)
	}
	return backups, nil
}

func paginate(query string, args []interface{}, limit, offset int) (string, []interface{}) {
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	} else if offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, offset)
	}
	return query, args
}

func checkAffected(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	return nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
