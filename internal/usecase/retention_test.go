package usecase

import (
	"fmt"
	"testing"
	"time"

	"github.com/semmidev/snapkeep/internal/domain"
	. "github.com/smartystreets/goconvey/convey"
)

func backupAt(id string, at time.Time) *domain.BackupMetadata {
	return &domain.BackupMetadata{ID: id, Status: domain.StatusSuccess, CreatedAt: at}
}

func without(backups []*domain.BackupMetadata, ids []string) []*domain.BackupMetadata {
	drop := toSet(ids)
	var kept []*domain.BackupMetadata
	for _, b := range backups {
		if !drop[b.ID] {
			kept = append(kept, b)
		}
	}
	return kept
}

func TestRetentionEngine(t *testing.T) {
	Convey("RetentionEngine", t, func() {
		engine := NewRetentionEngine(time.UTC)
		base := time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)

		Convey("an all-zero policy deletes every successful backup", func() {
			backups := []*domain.BackupMetadata{
				backupAt("b1", base.Add(-48*time.Hour)),
				backupAt("b2", base.Add(-24*time.Hour)),
				backupAt("b3", base),
			}
			failed := backupAt("f1", base.Add(-time.Hour))
			failed.Status = domain.StatusFailed
			partial := backupAt("p1", base.Add(-2*time.Hour))
			partial.Status = domain.StatusPartial
			running := backupAt("r1", base.Add(time.Hour))
			running.Status = domain.StatusInProgress
			backups = append(backups, failed, partial, running)

			drop := engine.Sweep(domain.RetentionPolicy{}, backups)
			So(drop, ShouldResemble, []string{"b1", "b2", "b3"})
		})

		Convey("keepLast keeps the newest backups", func() {
			var backups []*domain.BackupMetadata
			for i := 0; i < 5; i++ {
				backups = append(backups, backupAt(fmt.Sprintf("b%d", i), base.Add(time.Duration(i)*time.Minute)))
			}

			drop := engine.Sweep(domain.RetentionPolicy{KeepLast: 2}, backups)
			So(drop, ShouldResemble, []string{"b0", "b1", "b2"})

			So(engine.Sweep(domain.RetentionPolicy{KeepLast: 10}, backups), ShouldBeEmpty)
		})

		Convey("keepDailyFor keeps the newest backup of each recent day", func() {
			backups := []*domain.BackupMetadata{
				backupAt("d1-early", time.Date(2025, 3, 29, 1, 0, 0, 0, time.UTC)),
				backupAt("d1-late", time.Date(2025, 3, 29, 23, 0, 0, 0, time.UTC)),
				backupAt("d2-early", time.Date(2025, 3, 30, 1, 0, 0, 0, time.UTC)),
				backupAt("d2-late", time.Date(2025, 3, 30, 13, 0, 0, 0, time.UTC)),
				backupAt("d3", time.Date(2025, 3, 31, 6, 0, 0, 0, time.UTC)),
				backupAt("d0", time.Date(2025, 3, 28, 6, 0, 0, 0, time.UTC)),
			}

			drop := engine.Sweep(domain.RetentionPolicy{KeepDailyFor: 3}, backups)
			So(drop, ShouldResemble, []string{"d0", "d1-early", "d2-early"})
		})

		Convey("keepDailyFor counts days that have backups, not calendar days", func() {
			backups := []*domain.BackupMetadata{
				backupAt("old", base.AddDate(0, 0, -30)),
				backupAt("new", base),
			}
			So(engine.Sweep(domain.RetentionPolicy{KeepDailyFor: 2}, backups), ShouldBeEmpty)
		})

		Convey("keepWeeklyFor buckets by ISO week", func() {
			backups := []*domain.BackupMetadata{
				// 2025-03-23 is a Sunday and closes ISO week 12.
				backupAt("w12-mon", time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC)),
				backupAt("w12-sun", time.Date(2025, 3, 23, 9, 0, 0, 0, time.UTC)),
				backupAt("w13-mon", time.Date(2025, 3, 24, 9, 0, 0, 0, time.UTC)),
				backupAt("w11", time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)),
			}

			drop := engine.Sweep(domain.RetentionPolicy{KeepWeeklyFor: 2}, backups)
			So(drop, ShouldResemble, []string{"w11", "w12-mon"})
		})

		Convey("keepMonthlyFor buckets by calendar month", func() {
			backups := []*domain.BackupMetadata{
				backupAt("jan", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)),
				backupAt("feb-1", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)),
				backupAt("feb-28", time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)),
				backupAt("mar", time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)),
			}

			drop := engine.Sweep(domain.RetentionPolicy{KeepMonthlyFor: 2}, backups)
			So(drop, ShouldResemble, []string{"jan", "feb-1"})
		})

		Convey("rules apply to what keepLast leaves over", func() {
			backups := []*domain.BackupMetadata{
				backupAt("mon-1", time.Date(2025, 3, 31, 1, 0, 0, 0, time.UTC)),
				backupAt("mon-2", time.Date(2025, 3, 31, 2, 0, 0, 0, time.UTC)),
				backupAt("sun", time.Date(2025, 3, 30, 2, 0, 0, 0, time.UTC)),
				backupAt("sat", time.Date(2025, 3, 29, 2, 0, 0, 0, time.UTC)),
			}

			drop := engine.Sweep(domain.RetentionPolicy{KeepLast: 1, KeepDailyFor: 2}, backups)
			So(drop, ShouldResemble, []string{"sat"})
		})

		Convey("equal timestamps are ordered by id", func() {
			backups := []*domain.BackupMetadata{
				backupAt("a", base),
				backupAt("c", base),
				backupAt("b", base),
			}
			So(engine.Sweep(domain.RetentionPolicy{KeepLast: 1}, backups), ShouldResemble, []string{"a", "b"})
		})

		Convey("buckets follow the engine's location", func() {
			backups := []*domain.BackupMetadata{
				backupAt("x", time.Date(2025, 3, 2, 0, 30, 0, 0, time.UTC)),
				backupAt("y", time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC)),
				backupAt("z", time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC)),
			}
			policy := domain.RetentionPolicy{KeepDailyFor: 2}

			So(engine.Sweep(policy, backups), ShouldResemble, []string{"z"})

			ny, err := time.LoadLocation("America/New_York")
			So(err, ShouldBeNil)
			So(NewRetentionEngine(ny).Sweep(policy, backups), ShouldResemble, []string{"y"})
		})

		Convey("a sweep is idempotent", func() {
			var backups []*domain.BackupMetadata
			start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			for i := 0; i < 360; i++ {
				backups = append(backups, backupAt(fmt.Sprintf("b%03d", i), start.Add(time.Duration(i)*6*time.Hour)))
			}
			policy := domain.RetentionPolicy{KeepLast: 2, KeepDailyFor: 7, KeepWeeklyFor: 4, KeepMonthlyFor: 3}

			drop := engine.Sweep(policy, backups)
			So(drop, ShouldNotBeEmpty)
			So(drop[0], ShouldEqual, "b000")

			remaining := without(backups, drop)
			So(len(remaining), ShouldBeLessThanOrEqualTo, 2+7+4+3)
			So(engine.Sweep(policy, remaining), ShouldBeEmpty)
		})
	})
}
