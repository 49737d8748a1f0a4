package domain

import "context"

type Event struct {
	ScheduleID   string
	ScheduleName string
	BackupID     string
	Outcome      BackupStatus
	Error        string
	Emails       []string
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
