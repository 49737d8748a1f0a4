package dto

import "github.com/semmidev/snapkeep/internal/domain"

// CreateBackupRequest starts an ad-hoc run. When ScheduleID is set the
// schedule's own parameters are used and the other fields are ignored.
type CreateBackupRequest struct {
	ScheduleID  string   `json:"scheduleId"`
	Type        string   `json:"type"`
	Collections []string `json:"collections"`
	Compression string   `json:"compression"`
	Providers   []string `json:"providers"`
}

type BackupResponse struct {
	*domain.BackupMetadata
	Running bool `json:"running"`
}

type BackupListResponse struct {
	Items      []BackupResponse `json:"items"`
	Pagination PaginationInfo   `json:"pagination"`
}
