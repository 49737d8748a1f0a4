package domain

import "errors"

var (
	ErrInvalidSelection      = errors.New("invalid selection")
	ErrProviderNotConfigured = errors.New("provider not configured")
	ErrExchangeFailed        = errors.New("authorization code exchange failed")
	ErrNotConnected          = errors.New("storage provider not connected")
	ErrUploadFailed          = errors.New("upload failed")
	ErrDatabaseUnavailable   = errors.New("database unavailable")
	ErrTimeout               = errors.New("backup timed out")

	ErrRunInProgress   = errors.New("a run is already in progress for this schedule")
	ErrNotFound        = errors.New("not found")
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrUnknownProvider = errors.New("unknown storage provider")
)
