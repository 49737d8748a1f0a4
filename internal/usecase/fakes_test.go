package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/semmidev/snapkeep/internal/domain"
)

type fakeSource struct {
	mu       sync.Mutex
	docs     map[string][]domain.Document
	failures map[string]error
	pingErr  error
	sinces   map[string]*time.Time
	reads    []string

	// blockOn makes ListDocuments wait for release or ctx cancellation
	// when it reaches that collection.
	blockOn string
	entered chan struct{}
	release chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		docs: map[string][]domain.Document{
			"users":  {{"_id": "u1", "name": "ada"}, {"_id": "u2", "name": "grace"}},
			"orders": {{"_id": "o1", "total": 42.5}},
			"audit":  {},
		},
		failures: map[string]error{},
		sinces:   map[string]*time.Time{},
	}
}

func (f *fakeSource) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeSource) ListDocuments(ctx context.Context, collection string, since *time.Time) ([]domain.Document, error) {
	f.mu.Lock()
	f.sinces[collection] = since
	f.reads = append(f.reads, collection)
	blockOn, entered, release := f.blockOn, f.entered, f.release
	err := f.failures[collection]
	docs := f.docs[collection]
	f.mu.Unlock()

	if collection == blockOn {
		if entered != nil {
			close(entered)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
		}
	}

	if err != nil {
		return nil, err
	}
	return docs, nil
}

type memBackupRepo struct {
	mu      sync.Mutex
	backups map[string]*domain.BackupMetadata
	history map[string][]domain.BackupStatus
}

func newMemBackupRepo() *memBackupRepo {
	return &memBackupRepo{
		backups: map[string]*domain.BackupMetadata{},
		history: map[string][]domain.BackupStatus{},
	}
}

func (m *memBackupRepo) Create(ctx context.Context, b *domain.BackupMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.backups[b.ID]; ok {
		return fmt.Errorf("duplicate backup %s", b.ID)
	}
	m.backups[b.ID] = cloneBackup(b)
	m.history[b.ID] = append(m.history[b.ID], b.Status)
	return nil
}

func (m *memBackupRepo) Update(ctx context.Context, b *domain.BackupMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.backups[b.ID]; !ok {
		return domain.ErrNotFound
	}
	m.backups[b.ID] = cloneBackup(b)
	m.history[b.ID] = append(m.history[b.ID], b.Status)
	return nil
}

func (m *memBackupRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.backups[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.backups, id)
	return nil
}

func (m *memBackupRepo) FindByID(ctx context.Context, id string) (*domain.BackupMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.backups[id]
	if !ok {
		return nil, fmt.Errorf("backup %s: %w", id, domain.ErrNotFound)
	}
	return cloneBackup(b), nil
}

func (m *memBackupRepo) List(ctx context.Context, filter domain.BackupFilter) ([]*domain.BackupMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.BackupMetadata
	for _, b := range m.backups {
		if filter.ScheduleID != nil && b.ScheduleID != *filter.ScheduleID {
			continue
		}
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		out = append(out, cloneBackup(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memBackupRepo) LastSuccessful(ctx context.Context, scheduleID string) (*domain.BackupMetadata, error) {
	status := domain.StatusSuccess
	list, _ := m.List(ctx, domain.BackupFilter{ScheduleID: &scheduleID, Status: &status})
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (m *memBackupRepo) HasActiveRun(ctx context.Context, scheduleID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.backups {
		if b.ScheduleID == scheduleID && !b.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memBackupRepo) FailInterrupted(ctx context.Context, reason string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.backups {
		if !b.Status.Terminal() {
			b.Status = domain.StatusFailed
			b.Error = reason
			b.CompletedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *memBackupRepo) get(id string) *domain.BackupMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.backups[id]; ok {
		return cloneBackup(b)
	}
	return nil
}

type fakeUploader struct {
	mu       sync.Mutex
	err      error
	deleteErr error
	uploads  []string
	deleted  []string
}

func (f *fakeUploader) Upload(ctx context.Context, archivePath string, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if _, err := os.Stat(archivePath); err != nil {
		return "", err
	}
	f.uploads = append(f.uploads, name)
	return "remote/" + name, nil
}

func (f *fakeUploader) Delete(ctx context.Context, objectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, objectID)
	return f.deleteErr
}

type memScheduleRepo struct {
	mu        sync.Mutex
	schedules map[string]domain.BackupSchedule
	updateErr error
}

func newMemScheduleRepo() *memScheduleRepo {
	return &memScheduleRepo{schedules: map[string]domain.BackupSchedule{}}
}

func (m *memScheduleRepo) Create(ctx context.Context, s *domain.BackupSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = *s
	return nil
}

func (m *memScheduleRepo) Update(ctx context.Context, s *domain.BackupSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.schedules[s.ID]; !ok {
		return domain.ErrNotFound
	}
	m.schedules[s.ID] = *s
	return nil
}

func (m *memScheduleRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[id]; !ok {
		return fmt.Errorf("schedule %s: %w", id, domain.ErrNotFound)
	}
	delete(m.schedules, id)
	return nil
}

func (m *memScheduleRepo) FindByID(ctx context.Context, id string) (*domain.BackupSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, fmt.Errorf("schedule %s: %w", id, domain.ErrNotFound)
	}
	return &s, nil
}

func (m *memScheduleRepo) List(ctx context.Context, filter domain.ScheduleFilter) ([]*domain.BackupSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.BackupSchedule
	for _, s := range m.schedules {
		if filter.Enabled != nil && s.Enabled != *filter.Enabled {
			continue
		}
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memScheduleRepo) FindDue(ctx context.Context, now time.Time) ([]*domain.BackupSchedule, error) {
	return nil, errors.New("not used")
}
