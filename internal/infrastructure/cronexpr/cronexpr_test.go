package cronexpr

import (
	"testing"
	"time"

	"github.com/semmidev/snapkeep/internal/domain"

	. "github.com/smartystreets/goconvey/convey"
)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func TestToCron(t *testing.T) {
	Convey("Given schedule timings", t, func() {
		Convey("Each frequency should map to its cron shape", func() {
			cases := []struct {
				timing domain.Timing
				want   string
			}{
				{domain.Timing{Frequency: domain.FrequencyHourly, Timezone: "UTC"}, "CRON_TZ=UTC 0 * * * *"},
				{domain.Timing{Frequency: domain.FrequencyDaily, Time: "02:30", Timezone: "Europe/Berlin"}, "CRON_TZ=Europe/Berlin 30 2 * * *"},
				{domain.Timing{Frequency: domain.FrequencyWeekly, Time: "02:00", DayOfWeek: 1, Timezone: "America/New_York"}, "CRON_TZ=America/New_York 0 2 * * 1"},
				{domain.Timing{Frequency: domain.FrequencyMonthly, Time: "23:15", Timezone: "Asia/Tokyo"}, "CRON_TZ=Asia/Tokyo 15 23 1 * *"},
			}
			for _, c := range cases {
				got, err := ToCron(c.timing)
				So(err, ShouldBeNil)
				So(got, ShouldEqual, c.want)
			}
		})

		Convey("Hourly should ignore the time of day", func() {
			got, err := ToCron(domain.Timing{Frequency: domain.FrequencyHourly, Time: "07:45", Timezone: "UTC"})
			So(err, ShouldBeNil)
			So(got, ShouldEqual, "CRON_TZ=UTC 0 * * * *")
		})

		Convey("Invalid input should be rejected", func() {
			_, err := ToCron(domain.Timing{Frequency: domain.FrequencyDaily, Time: "25:00", Timezone: "UTC"})
			So(err, ShouldNotBeNil)

			_, err = ToCron(domain.Timing{Frequency: domain.FrequencyWeekly, Time: "02:00", DayOfWeek: 7, Timezone: "UTC"})
			So(err, ShouldNotBeNil)

			_, err = ToCron(domain.Timing{Frequency: domain.FrequencyDaily, Time: "02:00", Timezone: "Mars/Olympus"})
			So(err, ShouldNotBeNil)

			_, err = ToCron(domain.Timing{Frequency: "yearly", Time: "02:00", Timezone: "UTC"})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestParseAndDescribe(t *testing.T) {
	Convey("Given canonical expressions", t, func() {
		Convey("Parse should invert ToCron", func() {
			timings := []domain.Timing{
				{Frequency: domain.FrequencyHourly, Timezone: "UTC"},
				{Frequency: domain.FrequencyDaily, Time: "00:05", Timezone: "Europe/Berlin"},
				{Frequency: domain.FrequencyWeekly, Time: "02:00", DayOfWeek: 0, Timezone: "America/New_York"},
				{Frequency: domain.FrequencyWeekly, Time: "18:45", DayOfWeek: 6, Timezone: "UTC"},
				{Frequency: domain.FrequencyMonthly, Time: "03:00", Timezone: "Australia/Sydney"},
			}
			for _, timing := range timings {
				expr, err := ToCron(timing)
				So(err, ShouldBeNil)

				parsed, err := Parse(expr)
				So(err, ShouldBeNil)
				So(parsed, ShouldResemble, timing)
			}
		})

		Convey("Describe should name the frequency, time and zone", func() {
			desc, err := Describe("CRON_TZ=America/New_York 0 2 * * 1")
			So(err, ShouldBeNil)
			So(desc, ShouldEqual, "Weekly on Monday at 02:00 (America/New_York)")

			desc, err = Describe("CRON_TZ=UTC 0 * * * *")
			So(err, ShouldBeNil)
			So(desc, ShouldEqual, "Hourly at minute 00 (UTC)")

			desc, err = Describe("30 4 1 * *")
			So(err, ShouldBeNil)
			So(desc, ShouldEqual, "Monthly on day 1 at 04:30 (UTC)")
		})

		Convey("Unsupported or malformed expressions should error", func() {
			_, err := Describe("*/5 * * * *")
			So(err, ShouldNotBeNil)

			_, err = Describe("not a cron")
			So(err, ShouldNotBeNil)

			_, err = Parse("0 2 15 * *")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestNextFireTime(t *testing.T) {
	Convey("Given a weekly Monday 02:00 New York schedule", t, func() {
		ny := mustLoad("America/New_York")
		expr := "CRON_TZ=America/New_York 0 2 * * 1"

		Convey("After Sunday 23:00 ET it should fire the next Monday at 02:00 ET", func() {
			after := time.Date(2025, 3, 16, 23, 0, 0, 0, ny)
			next, err := NextFireTime(expr, "America/New_York", after)
			So(err, ShouldBeNil)
			So(next.Equal(time.Date(2025, 3, 17, 2, 0, 0, 0, ny)), ShouldBeTrue)
		})

		Convey("Exactly at a fire time it should move to the following week", func() {
			at := time.Date(2025, 3, 17, 2, 0, 0, 0, ny)
			next, err := NextFireTime(expr, "", at)
			So(err, ShouldBeNil)
			So(next.Equal(time.Date(2025, 3, 24, 2, 0, 0, 0, ny)), ShouldBeTrue)
		})

		Convey("The timezone argument should win over the expression's zone", func() {
			after := time.Date(2025, 3, 16, 23, 0, 0, 0, time.UTC)
			next, err := NextFireTime(expr, "UTC", after)
			So(err, ShouldBeNil)
			So(next.Equal(time.Date(2025, 3, 17, 2, 0, 0, 0, time.UTC)), ShouldBeTrue)
		})
	})

	Convey("Given any schedule", t, func() {
		Convey("Successive fire times should strictly increase", func() {
			exprs := []string{
				"CRON_TZ=America/New_York 0 * * * *",
				"CRON_TZ=America/New_York 30 1 * * *",
				"CRON_TZ=Europe/London 0 2 * * 0",
				"CRON_TZ=Australia/Sydney 0 3 1 * *",
			}
			for _, expr := range exprs {
				at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
				for i := 0; i < 200; i++ {
					next, err := NextFireTime(expr, "", at)
					So(err, ShouldBeNil)
					So(next.After(at), ShouldBeTrue)
					at = next
				}
			}
		})

		Convey("An unknown zone should error", func() {
			_, err := NextFireTime("0 2 * * *", "Nowhere/City", time.Now())
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given DST transitions in New York", t, func() {
		ny := mustLoad("America/New_York")

		Convey("A daily 01:30 run should fire once on the fall-back day", func() {
			expr := "CRON_TZ=America/New_York 30 1 * * *"
			first, err := NextFireTime(expr, "", time.Date(2025, 11, 2, 0, 0, 0, 0, ny))
			So(err, ShouldBeNil)
			So(first.In(ny).Hour(), ShouldEqual, 1)
			So(first.In(ny).Day(), ShouldEqual, 2)

			second, err := NextFireTime(expr, "", first)
			So(err, ShouldBeNil)
			So(second.In(ny).Day(), ShouldEqual, 3)
			So(second.In(ny).Hour(), ShouldEqual, 1)
			So(second.In(ny).Minute(), ShouldEqual, 30)
		})

		Convey("An hourly run should not repeat 01:00 on the fall-back day", func() {
			expr := "CRON_TZ=America/New_York 0 * * * *"
			seen := map[string]bool{}
			at := time.Date(2025, 11, 2, 0, 30, 0, 0, ny)
			for i := 0; i < 4; i++ {
				next, err := NextFireTime(expr, "", at)
				So(err, ShouldBeNil)
				key := next.In(ny).Format("2006-01-02 15:04")
				So(seen[key], ShouldBeFalse)
				seen[key] = true
				at = next
			}
			So(seen["2025-11-02 01:00"], ShouldBeTrue)
			So(seen["2025-11-02 02:00"], ShouldBeTrue)
		})

		Convey("A daily 02:30 run should fire at the end of the spring-forward gap", func() {
			expr := "CRON_TZ=America/New_York 30 2 * * *"
			next, err := NextFireTime(expr, "", time.Date(2025, 3, 8, 12, 0, 0, 0, ny))
			So(err, ShouldBeNil)
			So(next.Equal(time.Date(2025, 3, 9, 3, 0, 0, 0, ny)), ShouldBeTrue)

			following, err := NextFireTime(expr, "", next)
			So(err, ShouldBeNil)
			So(following.Equal(time.Date(2025, 3, 10, 2, 30, 0, 0, ny)), ShouldBeTrue)
		})

		Convey("A weekly run inside the gap should not lose its week", func() {
			expr := "CRON_TZ=America/New_York 15 2 * * 0"
			next, err := NextFireTime(expr, "", time.Date(2025, 3, 5, 0, 0, 0, 0, ny))
			So(err, ShouldBeNil)
			So(next.Equal(time.Date(2025, 3, 9, 3, 0, 0, 0, ny)), ShouldBeTrue)
		})

		Convey("An hourly run should fire once across the gap", func() {
			expr := "CRON_TZ=America/New_York 0 * * * *"
			next, err := NextFireTime(expr, "", time.Date(2025, 3, 9, 1, 0, 0, 0, ny))
			So(err, ShouldBeNil)
			So(next.Equal(time.Date(2025, 3, 9, 3, 0, 0, 0, ny)), ShouldBeTrue)

			following, err := NextFireTime(expr, "", next)
			So(err, ShouldBeNil)
			So(following.Equal(time.Date(2025, 3, 9, 4, 0, 0, 0, ny)), ShouldBeTrue)
		})

		Convey("A run outside the gap is unaffected on the transition day", func() {
			expr := "CRON_TZ=America/New_York 0 5 * * *"
			next, err := NextFireTime(expr, "", time.Date(2025, 3, 9, 0, 0, 0, 0, ny))
			So(err, ShouldBeNil)
			So(next.Equal(time.Date(2025, 3, 9, 5, 0, 0, 0, ny)), ShouldBeTrue)
		})
	})
}
