package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/semmidev/snapkeep/internal/domain"
)

// Multi fans an event out to every notifier and joins their errors.
type Multi []domain.Notifier

func (m Multi) Notify(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func subject(event domain.Event) string {
	name := event.ScheduleName
	if name == "" {
		name = "ad-hoc backup"
	}
	return fmt.Sprintf("[snapkeep] %s: %s", name, event.Outcome)
}

func body(event domain.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Schedule: %s\n", valueOr(event.ScheduleName, "-"))
	fmt.Fprintf(&b, "Backup: %s\n", event.BackupID)
	fmt.Fprintf(&b, "Outcome: %s\n", event.Outcome)
	if event.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", event.Error)
	}
	return b.String()
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
