package domain

import (
	"context"
	"time"
)

type BackupType string

const (
	BackupTypeFull        BackupType = "full"
	BackupTypeIncremental BackupType = "incremental"
	BackupTypeCollections BackupType = "collections"
)

func (t BackupType) Valid() bool {
	switch t {
	case BackupTypeFull, BackupTypeIncremental, BackupTypeCollections:
		return true
	}
	return false
}

type BackupStatus string

const (
	StatusPending    BackupStatus = "pending"
	StatusInProgress BackupStatus = "in_progress"
	StatusSuccess    BackupStatus = "success"
	StatusPartial    BackupStatus = "partial"
	StatusFailed     BackupStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s BackupStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusPartial || s == StatusFailed
}

type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZip  Compression = "zip"
	CompressionZstd Compression = "zstd"
)

// BackupMetadata is the record of one executed run.
type BackupMetadata struct {
	ID             string            `json:"id"`
	ScheduleID     string            `json:"scheduleId,omitempty"`
	Type           BackupType        `json:"type"`
	Status         BackupStatus      `json:"status"`
	Compression    Compression       `json:"compression"`
	Collections    []string          `json:"collections"`
	DocumentCounts map[string]int64  `json:"documentCounts"`
	Size           int64             `json:"size"`
	Duration       int64             `json:"duration"`
	Error          string            `json:"error,omitempty"`
	ArchivePath    string            `json:"-"`
	RemoteObjects  map[string]string `json:"remoteObjects,omitempty"`
	Since          *time.Time        `json:"since,omitempty"`
	Progress       int               `json:"progress"`
	CreatedAt      time.Time         `json:"createdAt"`
	CompletedAt    *time.Time        `json:"completedAt,omitempty"`
}

type BackupFilter struct {
	ScheduleID *string
	Status     *BackupStatus
	Limit      int
	Offset     int
}

type BackupRepository interface {
	Create(ctx context.Context, backup *BackupMetadata) error
	Update(ctx context.Context, backup *BackupMetadata) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*BackupMetadata, error)
	List(ctx context.Context, filter BackupFilter) ([]*BackupMetadata, error)
	// LastSuccessful returns nil, nil when the schedule has no successful run.
	// An empty scheduleID selects ad-hoc runs.
	LastSuccessful(ctx context.Context, scheduleID string) (*BackupMetadata, error)
	HasActiveRun(ctx context.Context, scheduleID string) (bool, error)
	// FailInterrupted marks every non-terminal record as failed and returns how many changed.
	FailInterrupted(ctx context.Context, reason string, at time.Time) (int, error)
}
