package usecase

import (
	"fmt"
	"sort"
	"time"

	"github.com/semmidev/snapkeep/internal/domain"
)

// RetentionEngine decides which successful backups a policy no longer keeps.
// Calendar buckets are computed in the engine's location.
type RetentionEngine struct {
	loc *time.Location
}

func NewRetentionEngine(loc *time.Location) *RetentionEngine {
	if loc == nil {
		loc = time.UTC
	}
	return &RetentionEngine{loc: loc}
}

// Sweep returns the ids of the backups to delete, oldest first. Backups
// that are not successful are never returned.
func (e *RetentionEngine) Sweep(policy domain.RetentionPolicy, backups []*domain.BackupMetadata) []string {
	candidates := make([]*domain.BackupMetadata, 0, len(backups))
	for _, b := range backups {
		if b.Status == domain.StatusSuccess {
			candidates = append(candidates, b)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
		}
		return candidates[i].ID > candidates[j].ID
	})

	keep := make(map[string]bool, len(candidates))

	keepLast := policy.KeepLast
	if keepLast > len(candidates) {
		keepLast = len(candidates)
	}
	for _, b := range candidates[:max(keepLast, 0)] {
		keep[b.ID] = true
	}
	remainder := candidates[max(keepLast, 0):]

	e.keepNewestPerBucket(remainder, policy.KeepDailyFor, keep, func(t time.Time) string {
		return t.Format("2006-01-02")
	})
	e.keepNewestPerBucket(remainder, policy.KeepWeeklyFor, keep, func(t time.Time) string {
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-%02d", year, week)
	})
	e.keepNewestPerBucket(remainder, policy.KeepMonthlyFor, keep, func(t time.Time) string {
		return t.Format("2006-01")
	})

	var drop []string
	for i := len(candidates) - 1; i >= 0; i-- {
		if !keep[candidates[i].ID] {
			drop = append(drop, candidates[i].ID)
		}
	}
	return drop
}

// keepNewestPerBucket keeps the newest backup of each of the n most recent
// buckets that contain backups. backups must be sorted newest first.
func (e *RetentionEngine) keepNewestPerBucket(backups []*domain.BackupMetadata, n int, keep map[string]bool, bucket func(time.Time) string) {
	if n <= 0 {
		return
	}

	seen := make(map[string]bool, n)
	for _, b := range backups {
		key := bucket(b.CreatedAt.In(e.loc))
		if seen[key] {
			continue
		}
		if len(seen) == n {
			return
		}
		seen[key] = true
		keep[b.ID] = true
	}
}
