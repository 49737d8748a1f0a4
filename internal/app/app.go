package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/juju/clock"
	"github.com/semmidev/snapkeep/internal/adapter/compressor"
	"github.com/semmidev/snapkeep/internal/adapter/database"
	"github.com/semmidev/snapkeep/internal/adapter/notifier"
	"github.com/semmidev/snapkeep/internal/adapter/storage"
	"github.com/semmidev/snapkeep/internal/api"
	"github.com/semmidev/snapkeep/internal/config"
	"github.com/semmidev/snapkeep/internal/domain"
	"github.com/semmidev/snapkeep/internal/infrastructure/logger"
	"github.com/semmidev/snapkeep/internal/infrastructure/scheduler"
	"github.com/semmidev/snapkeep/internal/infrastructure/sqlite"
	"github.com/semmidev/snapkeep/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

type App struct {
	config     *config.Config
	logger     *logger.Logger
	store      *sqlite.DB
	source     *database.MongoDBDatabase
	runner     *usecase.Runner
	scheduler  *scheduler.Scheduler
	server     *api.Server
	providers  []string
	scheduleUC *usecase.ScheduleService
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Initialize logger
	log, err := logger.New(cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Infof("Starting %s", cfg.App.Name)
	log.Infof("Found %d collection(s) registered in %s", len(cfg.Database.Collections), cfg.Database.Name)

	// Initialize metadata store
	store, err := sqlite.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	backupRepo := sqlite.NewBackupRepository(store)
	scheduleRepo := sqlite.NewScheduleRepository(store)
	connectionStore := sqlite.NewConnectionRepository(store)

	clk := clock.WallClock
	source := database.NewMongoDB(&cfg.Database)

	// Initialize upload targets
	uploadTargets, gdrive := initializeUploadTargets(ctx, cfg, connectionStore, clk, log)
	providers := make([]string, 0, len(uploadTargets))
	for _, t := range uploadTargets {
		providers = append(providers, t.Name)
	}

	builder := usecase.NewArchiveBuilder(source, cfg.Database.Collections, cfg.Backup.LocalPath, compressor.New, log)
	runner := usecase.NewRunner(source, backupRepo, builder, uploadTargets, clk, cfg.Backup.MaxDuration, log)

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load scheduler timezone: %w", err)
	}
	cleanupUC := usecase.NewCleanup(backupRepo, usecase.NewRetentionEngine(loc), runner, log)
	scheduleUC := usecase.NewScheduleService(scheduleRepo, cfg.Database.Collections, providers, clk, log)

	notifiers := initializeNotifiers(cfg, log)

	// Initialize scheduler
	sched := scheduler.New(
		cfg.Scheduler.TickInterval,
		cfg.Scheduler.Concurrency,
		scheduleRepo,
		backupRepo,
		runner,
		cleanupUC,
		scheduleUC,
		notifiers,
		clk,
		log,
	)

	connectors := map[string]domain.Connector{}
	if gdrive != nil {
		connectors[storage.ProviderGDrive] = gdrive
	}
	server := api.NewServer(&cfg.Server, scheduleUC, runner, backupRepo, providers, connectors, log)

	return &App{
		config:     cfg,
		logger:     log,
		store:      store,
		source:     source,
		runner:     runner,
		scheduler:  sched,
		server:     server,
		providers:  providers,
		scheduleUC: scheduleUC,
	}, nil
}

func initializeUploadTargets(
	ctx context.Context,
	cfg *config.Config,
	connectionStore domain.ConnectionStore,
	clk clock.Clock,
	log *logger.Logger,
) ([]usecase.UploadTarget, *storage.GDriveConnector) {
	var targets []usecase.UploadTarget
	var gdrive *storage.GDriveConnector

	for _, provider := range cfg.GetEnabledProviders() {
		var uploader domain.Uploader

		switch provider {
		case storage.ProviderGDrive:
			connector, err := storage.NewGDrive(&cfg.Storage.GDrive, connectionStore, log, clk)
			if err != nil {
				log.Errorf("Failed to initialize Google Drive: %v", err)
				continue
			}
			if err := connector.Restore(ctx); err != nil {
				log.Warnf("Failed to restore Google Drive connection: %v", err)
			}
			gdrive = connector
			uploader = connector
			log.Infof("✓ Google Drive upload enabled (%s)", connector.Status().State)

		case storage.ProviderS3:
			s3, err := storage.NewS3(ctx, &cfg.Storage.S3)
			if err != nil {
				log.Errorf("Failed to initialize S3: %v", err)
				continue
			}
			uploader = s3
			log.Infof("✓ AWS S3 upload enabled (bucket: %s)", cfg.Storage.S3.Bucket)

		case storage.ProviderLocal:
			local, err := storage.NewLocal(cfg.Storage.Local.Path)
			if err != nil {
				log.Errorf("Failed to initialize local storage: %v", err)
				continue
			}
			uploader = local
			log.Infof("✓ Local copy enabled (%s)", cfg.Storage.Local.Path)

		default:
			log.Warnf("Unknown storage provider: %s", provider)
			continue
		}

		targets = append(targets, usecase.UploadTarget{
			Name:     provider,
			Uploader: uploader,
		})
	}

	return targets, gdrive
}

func initializeNotifiers(cfg *config.Config, log *logger.Logger) notifier.Multi {
	var notifiers notifier.Multi

	if cfg.Notifications.Telegram.Enabled {
		tg, err := notifier.NewTelegram(&cfg.Notifications.Telegram)
		if err != nil {
			log.Errorf("Failed to initialize Telegram: %v", err)
		} else {
			notifiers = append(notifiers, tg)
			log.Infof("✓ Telegram notifications enabled")
		}
	}

	if cfg.Notifications.SMTP.Enabled {
		notifiers = append(notifiers, notifier.NewEmail(&cfg.Notifications.SMTP))
		log.Infof("✓ Email notifications enabled (%s)", cfg.Notifications.SMTP.Host)
	}

	return notifiers
}

// Run serves the API and drives the scheduler until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if _, err := a.runner.RecoverInterrupted(ctx); err != nil {
		return err
	}

	a.scheduler.Start(ctx)
	a.logger.Infof("Backup destinations: local staging + %d provider(s) %v", len(a.providers), a.providers)

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("api server failed: %w", err)
	}
}

// Backup executes one ad-hoc run in the foreground.
func (a *App) Backup(ctx context.Context, req usecase.Request) (*domain.BackupMetadata, error) {
	if err := a.runner.Check(req); err != nil {
		return nil, err
	}
	return a.runner.Run(ctx, req), nil
}

// RunSchedule executes a stored schedule once, outside its timing.
func (a *App) RunSchedule(ctx context.Context, scheduleID string) (*domain.BackupMetadata, error) {
	schedule, err := a.scheduleUC.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	return a.Backup(ctx, usecase.Request{
		ScheduleID:  schedule.ID,
		Type:        schedule.BackupType,
		Collections: schedule.Collections,
		Compression: schedule.Compression,
		Providers:   schedule.StorageProviders,
	})
}

func (a *App) Shutdown() {
	a.logger.Infof("Shutting down application...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Errorf("Failed to stop API server: %v", err)
	}
	a.scheduler.Stop()

	done := make(chan struct{})
	go func() {
		a.runner.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warnf("Backups still running after %s; they will be marked interrupted on next start", shutdownTimeout)
	}

	a.source.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Errorf("Failed to close metadata store: %v", err)
	}
	a.logger.Close()
}
