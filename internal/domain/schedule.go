package domain

import (
	"context"
	"time"
)

type Frequency string

const (
	FrequencyHourly  Frequency = "hourly"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

type RetentionPolicy struct {
	KeepLast       int `json:"keepLast" validate:"min=0"`
	KeepDailyFor   int `json:"keepDailyFor" validate:"min=0"`
	KeepWeeklyFor  int `json:"keepWeeklyFor" validate:"min=0"`
	KeepMonthlyFor int `json:"keepMonthlyFor" validate:"min=0"`
}

type NotificationSettings struct {
	OnSuccess bool     `json:"onSuccess"`
	OnFailure bool     `json:"onFailure"`
	Emails    []string `json:"emails" validate:"dive,email"`
}

// Timing holds the schedule fields that determine when it fires.
type Timing struct {
	Frequency Frequency `json:"frequency" validate:"required,oneof=hourly daily weekly monthly"`
	Time      string    `json:"time" validate:"required_unless=Frequency hourly,omitempty,datetime=15:04"`
	DayOfWeek int       `json:"dayOfWeek" validate:"min=0,max=6"`
	Timezone  string    `json:"timezone" validate:"required,timezone"`
}

type BackupSchedule struct {
	ID      string `json:"id"`
	Name    string `json:"name" validate:"required,max=128"`
	Enabled bool   `json:"enabled"`
	Timing
	CronExpression   string               `json:"cronExpression"`
	BackupType       BackupType           `json:"backupType" validate:"required,oneof=full incremental collections"`
	Collections      []string             `json:"collections" validate:"required_if=BackupType collections,dive,required"`
	Compression      Compression          `json:"compression" validate:"omitempty,oneof=none gzip zip zstd"`
	StorageProviders []string             `json:"storageProviders" validate:"unique,dive,required"`
	RetentionPolicy  RetentionPolicy      `json:"retentionPolicy"`
	Notifications    NotificationSettings `json:"notifications"`
	LastRunAt        *time.Time           `json:"lastRunAt,omitempty"`
	NextRunAt        *time.Time           `json:"nextRunAt,omitempty"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`
}

type ScheduleFilter struct {
	Enabled *bool
	Limit   int
	Offset  int
}

type ScheduleRepository interface {
	Create(ctx context.Context, schedule *BackupSchedule) error
	Update(ctx context.Context, schedule *BackupSchedule) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*BackupSchedule, error)
	List(ctx context.Context, filter ScheduleFilter) ([]*BackupSchedule, error)
	// FindDue returns enabled schedules whose NextRunAt is at or before now.
	FindDue(ctx context.Context, now time.Time) ([]*BackupSchedule, error)
}
