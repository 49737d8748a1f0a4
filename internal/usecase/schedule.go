package usecase

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/semmidev/snapkeep/internal/domain"
	"github.com/semmidev/snapkeep/internal/infrastructure/cronexpr"
)

// ScheduleService validates schedules and keeps their derived cron
// expression and next run time consistent with their timing.
type ScheduleService struct {
	repo        domain.ScheduleRepository
	validate    *validator.Validate
	collections map[string]bool
	providers   map[string]bool
	clock       clock.Clock
	logger      Logger
}

func NewScheduleService(
	repo domain.ScheduleRepository,
	collections []string,
	providers []string,
	clk clock.Clock,
	logger Logger,
) *ScheduleService {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &ScheduleService{
		repo:        repo,
		validate:    v,
		collections: toSet(collections),
		providers:   toSet(providers),
		clock:       clk,
		logger:      logger,
	}
}

func (s *ScheduleService) Create(ctx context.Context, in *domain.BackupSchedule) (*domain.BackupSchedule, error) {
	schedule := *in
	schedule.ID = uuid.NewString()
	schedule.LastRunAt = nil

	if err := s.check(&schedule); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	if err := s.retime(&schedule, now); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, &schedule); err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}

	s.logger.Infof("[schedule] Created %q (%s), next run %s", schedule.Name, schedule.CronExpression, formatNext(schedule.NextRunAt))
	return &schedule, nil
}

// Update replaces the caller-editable fields of an existing schedule. Run
// history and the derived cron expression are never taken from the input.
func (s *ScheduleService) Update(ctx context.Context, id string, in *domain.BackupSchedule) (*domain.BackupSchedule, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	schedule := *in
	schedule.ID = existing.ID
	schedule.LastRunAt = existing.LastRunAt
	schedule.NextRunAt = existing.NextRunAt
	schedule.CronExpression = existing.CronExpression
	schedule.CreatedAt = existing.CreatedAt

	if err := s.check(&schedule); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	schedule.UpdatedAt = now
	if schedule.Timing != existing.Timing || schedule.Enabled != existing.Enabled || schedule.NextRunAt == nil {
		if err := s.retime(&schedule, now); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, &schedule); err != nil {
		return nil, fmt.Errorf("failed to update schedule: %w", err)
	}

	s.logger.Infof("[schedule] Updated %q (%s), next run %s", schedule.Name, schedule.CronExpression, formatNext(schedule.NextRunAt))
	return &schedule, nil
}

func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Infof("[schedule] Deleted %s", id)
	return nil
}

func (s *ScheduleService) Get(ctx context.Context, id string) (*domain.BackupSchedule, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *ScheduleService) List(ctx context.Context, filter domain.ScheduleFilter) ([]*domain.BackupSchedule, error) {
	return s.repo.List(ctx, filter)
}

// RecordRun stores the run time and advances NextRunAt past now, whatever
// the run's outcome was. Only the run history of the stored schedule is
// written, so edits made while the run was in flight survive; schedule is
// refreshed from the store. A schedule deleted mid-run is left deleted.
func (s *ScheduleService) RecordRun(ctx context.Context, schedule *domain.BackupSchedule, ranAt time.Time) error {
	current, err := s.repo.FindByID(ctx, schedule.ID)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Infof("[schedule] %s was deleted before its run was recorded", schedule.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	current.LastRunAt = &ranAt
	if err := s.retime(current, s.clock.Now()); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, current); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to record run: %w", err)
	}

	*schedule = *current
	return nil
}

// Describe renders the schedule's cron expression for humans.
func (s *ScheduleService) Describe(schedule *domain.BackupSchedule) string {
	desc, err := cronexpr.Describe(schedule.CronExpression)
	if err != nil {
		return schedule.CronExpression
	}
	return desc
}

func (s *ScheduleService) retime(schedule *domain.BackupSchedule, now time.Time) error {
	expr, err := cronexpr.ToCron(schedule.Timing)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidSchedule, err)
	}
	schedule.CronExpression = expr

	if !schedule.Enabled {
		schedule.NextRunAt = nil
		return nil
	}

	next, err := cronexpr.NextFireTime(expr, schedule.Timezone, now)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidSchedule, err)
	}
	schedule.NextRunAt = &next
	return nil
}

func (s *ScheduleService) check(schedule *domain.BackupSchedule) error {
	if schedule.Compression == "" {
		schedule.Compression = domain.CompressionGzip
	}
	if schedule.Frequency == domain.FrequencyHourly {
		schedule.Time = ""
	}
	if schedule.Frequency != domain.FrequencyWeekly {
		schedule.DayOfWeek = 0
	}

	if err := s.validate.Struct(schedule); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidSchedule, describeValidation(err))
	}

	if schedule.BackupType == domain.BackupTypeCollections {
		if len(schedule.Collections) == 0 {
			return fmt.Errorf("%w: collections is required for a collections backup", domain.ErrInvalidSchedule)
		}
		for _, name := range schedule.Collections {
			if !s.collections[name] {
				return fmt.Errorf("%w: unknown collection %q", domain.ErrInvalidSchedule, name)
			}
		}
	} else {
		schedule.Collections = nil
	}

	for _, p := range schedule.StorageProviders {
		if !s.providers[p] {
			return fmt.Errorf("%w: %w %q", domain.ErrInvalidSchedule, domain.ErrUnknownProvider, p)
		}
	}

	return nil
}

func describeValidation(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err.Error()
	}

	messages := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required", "required_if", "required_unless":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		case "datetime":
			messages = append(messages, fmt.Sprintf("%s must be HH:MM", field))
		case "timezone":
			messages = append(messages, fmt.Sprintf("%s must be an IANA timezone", field))
		case "email":
			messages = append(messages, fmt.Sprintf("%s must be a valid email address", field))
		case "unique":
			messages = append(messages, fmt.Sprintf("%s must not contain duplicates", field))
		case "min", "max":
			messages = append(messages, fmt.Sprintf("%s must be %s %s", field, map[string]string{"min": "at least", "max": "at most"}[fe.Tag()], fe.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return strings.Join(messages, "; ")
}

func formatNext(t *time.Time) string {
	if t == nil {
		return "never (disabled)"
	}
	return t.Format(time.RFC3339)
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
