package dto

import "github.com/semmidev/snapkeep/internal/domain"

// ScheduleRequest carries the caller-editable schedule fields. The cron
// expression and run times are always derived server-side.
type ScheduleRequest struct {
	Name             string                      `json:"name"`
	Enabled          *bool                       `json:"enabled"`
	Frequency        string                      `json:"frequency"`
	Time             string                      `json:"time"`
	DayOfWeek        int                         `json:"dayOfWeek"`
	Timezone         string                      `json:"timezone"`
	BackupType       string                      `json:"backupType"`
	Collections      []string                    `json:"collections"`
	Compression      string                      `json:"compression"`
	StorageProviders []string                    `json:"storageProviders"`
	RetentionPolicy  domain.RetentionPolicy      `json:"retentionPolicy"`
	Notifications    domain.NotificationSettings `json:"notifications"`
}

func (r *ScheduleRequest) ToDomain() *domain.BackupSchedule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}

	return &domain.BackupSchedule{
		Name:    r.Name,
		Enabled: enabled,
		Timing: domain.Timing{
			Frequency: domain.Frequency(r.Frequency),
			Time:      r.Time,
			DayOfWeek: r.DayOfWeek,
			Timezone:  r.Timezone,
		},
		BackupType:       domain.BackupType(r.BackupType),
		Collections:      r.Collections,
		Compression:      domain.Compression(r.Compression),
		StorageProviders: r.StorageProviders,
		RetentionPolicy:  r.RetentionPolicy,
		Notifications:    r.Notifications,
	}
}

type ScheduleResponse struct {
	*domain.BackupSchedule
	Description string `json:"description"`
}

type ScheduleListResponse struct {
	Items      []ScheduleResponse `json:"items"`
	Pagination PaginationInfo     `json:"pagination"`
}
