package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/semmidev/snapkeep/internal/domain"
	"github.com/semmidev/snapkeep/internal/infrastructure/metrics"
)

type UploadTarget struct {
	Name     string
	Uploader domain.Uploader
}

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// Request asks the runner for one backup run.
type Request struct {
	ScheduleID  string
	Type        domain.BackupType
	Collections []string
	Compression domain.Compression
	Providers   []string
}

// Runner executes backup runs for both the scheduler and the API. It owns
// every BackupMetadata record it creates.
type Runner struct {
	db            domain.DocumentSource
	repo          domain.BackupRepository
	builder       *ArchiveBuilder
	uploadTargets map[string]domain.Uploader
	clock         clock.Clock
	maxDuration   time.Duration
	logger        Logger

	mu       sync.Mutex
	inflight map[string]string
	progress map[string]int
	wg       sync.WaitGroup
}

func NewRunner(
	db domain.DocumentSource,
	repo domain.BackupRepository,
	builder *ArchiveBuilder,
	uploadTargets []UploadTarget,
	clk clock.Clock,
	maxDuration time.Duration,
	logger Logger,
) *Runner {
	targets := make(map[string]domain.Uploader, len(uploadTargets))
	for _, t := range uploadTargets {
		targets[t.Name] = t.Uploader
	}

	return &Runner{
		db:            db,
		repo:          repo,
		builder:       builder,
		uploadTargets: targets,
		clock:         clk,
		maxDuration:   maxDuration,
		logger:        logger,
		inflight:      make(map[string]string),
		progress:      make(map[string]int),
	}
}

// HasProvider reports whether an upload target with this name is wired.
func (r *Runner) HasProvider(name string) bool {
	_, ok := r.uploadTargets[name]
	return ok
}

// Check validates a request without creating a record.
func (r *Runner) Check(req Request) error {
	if _, err := r.builder.Resolve(Selection{Type: req.Type, Collections: req.Collections}); err != nil {
		return err
	}
	if _, err := r.builder.compressors(req.Compression); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidSelection, err)
	}
	for _, p := range req.Providers {
		if !r.HasProvider(p) {
			return fmt.Errorf("%w: %w %q", domain.ErrInvalidSelection, domain.ErrUnknownProvider, p)
		}
	}
	return nil
}

// Run executes a backup synchronously. It never returns an error: every
// failure is recorded in the returned metadata.
func (r *Runner) Run(ctx context.Context, req Request) *domain.BackupMetadata {
	meta, release, err := r.begin(ctx, req)
	if err != nil {
		r.logger.Warnf("[runner] Run for schedule %q rejected: %v", req.ScheduleID, err)
		now := r.clock.Now()
		return &domain.BackupMetadata{
			ScheduleID:  req.ScheduleID,
			Type:        req.Type,
			Status:      domain.StatusFailed,
			Compression: req.Compression,
			Error:       err.Error(),
			CreatedAt:   now,
			CompletedAt: &now,
		}
	}

	r.execute(ctx, meta, req, release)
	return meta
}

// Start creates the pending record and executes the run in the background.
// It returns a snapshot of the pending record.
func (r *Runner) Start(ctx context.Context, req Request) (*domain.BackupMetadata, error) {
	meta, release, err := r.begin(ctx, req)
	if err != nil {
		return nil, err
	}

	snapshot := cloneBackup(meta)
	bg := context.WithoutCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(bg, meta, req, release)
	}()

	return snapshot, nil
}

// Wait blocks until every background run started with Start has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Progress returns the number of collections processed so far by a live run.
func (r *Runner) Progress(id string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.progress[id]
	return n, ok
}

// RecoverInterrupted fails every run left non-terminal by a previous process.
func (r *Runner) RecoverInterrupted(ctx context.Context) (int, error) {
	n, err := r.repo.FailInterrupted(ctx, "interrupted: service restarted before the run finished", r.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to recover interrupted runs: %w", err)
	}
	if n > 0 {
		r.logger.Warnf("[runner] Marked %d interrupted run(s) as failed", n)
	}
	return n, nil
}

func (r *Runner) begin(ctx context.Context, req Request) (*domain.BackupMetadata, func(), error) {
	id := uuid.NewString()

	release := func() {}
	if req.ScheduleID != "" {
		r.mu.Lock()
		if running, ok := r.inflight[req.ScheduleID]; ok {
			r.mu.Unlock()
			return nil, nil, fmt.Errorf("%w: schedule %s (backup %s)", domain.ErrRunInProgress, req.ScheduleID, running)
		}
		r.inflight[req.ScheduleID] = id
		r.mu.Unlock()

		release = func() {
			r.mu.Lock()
			delete(r.inflight, req.ScheduleID)
			r.mu.Unlock()
		}

		// Another process sharing the store may own a run of this schedule.
		active, err := r.repo.HasActiveRun(ctx, req.ScheduleID)
		if err != nil {
			release()
			return nil, nil, fmt.Errorf("failed to check for an active run: %w", err)
		}
		if active {
			release()
			return nil, nil, fmt.Errorf("%w: schedule %s (recorded by another process)", domain.ErrRunInProgress, req.ScheduleID)
		}
	}

	meta := &domain.BackupMetadata{
		ID:             id,
		ScheduleID:     req.ScheduleID,
		Type:           req.Type,
		Status:         domain.StatusPending,
		Compression:    req.Compression,
		Collections:    []string{},
		DocumentCounts: map[string]int64{},
		RemoteObjects:  map[string]string{},
		CreatedAt:      r.clock.Now(),
	}

	if err := r.repo.Create(ctx, meta); err != nil {
		release()
		return nil, nil, fmt.Errorf("failed to create backup record: %w", err)
	}

	r.mu.Lock()
	r.progress[id] = 0
	r.mu.Unlock()

	return meta, release, nil
}

func (r *Runner) execute(ctx context.Context, meta *domain.BackupMetadata, req Request, release func()) {
	defer release()
	defer func() {
		r.mu.Lock()
		delete(r.progress, meta.ID)
		r.mu.Unlock()
	}()
	defer metrics.TrackInFlight()()

	start := r.clock.Now()
	r.logger.Infof("[runner] Starting %s backup %s", meta.Type, meta.ID)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timedOut atomic.Bool
	if r.maxDuration > 0 {
		timer := r.clock.AfterFunc(r.maxDuration, func() {
			timedOut.Store(true)
			cancel()
		})
		defer timer.Stop()
	}

	meta.Status = domain.StatusInProgress
	r.save(ctx, meta)

	fail := func(err error) {
		if timedOut.Load() {
			err = fmt.Errorf("%w after %s", domain.ErrTimeout, r.maxDuration)
		}
		meta.Status = domain.StatusFailed
		meta.Error = err.Error()
	}

	r.run(runCtx, meta, req, &timedOut, fail)

	completed := r.clock.Now()
	meta.CompletedAt = &completed
	meta.Duration = completed.Sub(start).Milliseconds()
	r.save(ctx, meta)

	metrics.RecordRun(string(meta.Status), completed.Sub(start), meta.Size)

	switch meta.Status {
	case domain.StatusSuccess:
		r.logger.Infof("[runner] Backup %s completed in %s, size: %.2f MB",
			meta.ID, completed.Sub(start).Round(time.Millisecond), float64(meta.Size)/(1024*1024))
	default:
		r.logger.Errorf("[runner] Backup %s finished %s: %s", meta.ID, meta.Status, meta.Error)
	}
}

func (r *Runner) run(ctx context.Context, meta *domain.BackupMetadata, req Request, timedOut *atomic.Bool, fail func(error)) {
	if err := r.db.Ping(ctx); err != nil {
		if !errors.Is(err, domain.ErrDatabaseUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrDatabaseUnavailable, err)
		}
		fail(err)
		return
	}

	sel := Selection{
		Type:        req.Type,
		Collections: req.Collections,
		Compression: req.Compression,
		Name:        fmt.Sprintf("backup_%s_%s", r.clock.Now().UTC().Format("20060102_150405"), meta.ID[:8]),
		OnProgress: func(done int) {
			meta.Progress = done
			r.mu.Lock()
			r.progress[meta.ID] = done
			r.mu.Unlock()
		},
	}

	if req.Type == domain.BackupTypeIncremental {
		last, err := r.repo.LastSuccessful(ctx, req.ScheduleID)
		if err != nil {
			fail(fmt.Errorf("failed to find previous backup: %w", err))
			return
		}
		if last != nil {
			since := last.CreatedAt
			sel.Since = &since
			meta.Since = &since
		}
	}

	result, err := r.builder.Build(ctx, sel)
	if result != nil {
		meta.Collections = result.Collections
		meta.DocumentCounts = result.DocumentCounts
		meta.Size = result.SizeBytes
		meta.ArchivePath = result.ArchivePath
		meta.Progress = len(result.Collections) + len(result.Errors)
	}
	if err != nil {
		fail(err)
		return
	}

	var problems []string
	for _, name := range sortedKeys(result.Errors) {
		problems = append(problems, fmt.Sprintf("collection %s: %v", name, result.Errors[name]))
	}

	if len(result.Collections) == 0 {
		fail(fmt.Errorf("no collections archived: %s", strings.Join(problems, "; ")))
		return
	}

	for _, provider := range req.Providers {
		if ctx.Err() != nil {
			fail(ctx.Err())
			return
		}

		objectID, err := r.upload(ctx, provider, result.ArchivePath)
		if err != nil {
			if timedOut.Load() {
				fail(err)
				return
			}
			problems = append(problems, fmt.Sprintf("upload %s: %v", provider, err))
			continue
		}
		meta.RemoteObjects[provider] = objectID
	}

	if len(problems) == 0 {
		meta.Status = domain.StatusSuccess
		meta.Error = ""
		return
	}

	meta.Status = domain.StatusPartial
	meta.Error = strings.Join(problems, "; ")
}

func (r *Runner) upload(ctx context.Context, provider, archivePath string) (string, error) {
	uploader, ok := r.uploadTargets[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownProvider, provider)
	}

	r.logger.Infof("[runner] Uploading %s to %s...", filepath.Base(archivePath), provider)
	objectID, err := uploader.Upload(ctx, archivePath, filepath.Base(archivePath))
	metrics.RecordUpload(provider, err)
	if err != nil {
		r.logger.Errorf("[runner] Failed to upload to %s: %v", provider, err)
		return "", err
	}
	r.logger.Infof("[runner] Successfully uploaded to %s", provider)
	return objectID, nil
}

func (r *Runner) save(ctx context.Context, meta *domain.BackupMetadata) {
	if err := r.repo.Update(context.WithoutCancel(ctx), meta); err != nil {
		r.logger.Errorf("[runner] Failed to save backup %s: %v", meta.ID, err)
	}
}

// DeleteBackup removes a backup's remote objects and local archive on a
// best-effort basis, then its metadata record.
func (r *Runner) DeleteBackup(ctx context.Context, id string) error {
	meta, err := r.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !meta.Status.Terminal() {
		return fmt.Errorf("%w: backup %s is %s", domain.ErrRunInProgress, id, meta.Status)
	}

	for _, provider := range sortedKeys(meta.RemoteObjects) {
		uploader, ok := r.uploadTargets[provider]
		if !ok {
			r.logger.Warnf("[runner] Cannot delete %s from %s: provider not configured", meta.RemoteObjects[provider], provider)
			continue
		}
		if err := uploader.Delete(ctx, meta.RemoteObjects[provider]); err != nil {
			r.logger.Warnf("[runner] Failed to delete %s from %s: %v", meta.RemoteObjects[provider], provider, err)
		}
	}

	if meta.ArchivePath != "" {
		if err := os.Remove(meta.ArchivePath); err != nil && !os.IsNotExist(err) {
			r.logger.Warnf("[runner] Failed to delete local archive %s: %v", meta.ArchivePath, err)
		}
	}

	if err := r.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete backup record: %w", err)
	}

	r.logger.Infof("[runner] Deleted backup %s", id)
	return nil
}

func cloneBackup(b *domain.BackupMetadata) *domain.BackupMetadata {
	c := *b
	c.Collections = append([]string(nil), b.Collections...)
	c.DocumentCounts = make(map[string]int64, len(b.DocumentCounts))
	for k, v := range b.DocumentCounts {
		c.DocumentCounts[k] = v
	}
	c.RemoteObjects = make(map[string]string, len(b.RemoteObjects))
	for k, v := range b.RemoteObjects {
		c.RemoteObjects[k] = v
	}
	return &c
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
