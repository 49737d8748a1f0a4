package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/semmidev/snapkeep/internal/adapter/compressor"
	"github.com/semmidev/snapkeep/internal/app"
	"github.com/semmidev/snapkeep/internal/config"
	"github.com/semmidev/snapkeep/internal/domain"
	"github.com/semmidev/snapkeep/internal/usecase"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "snapkeep",
		Short:         "Scheduled document database backups with retention",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newBackupCmd(&configPath))
	root.AddCommand(newInspectCmd())
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			application, err := app.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			defer application.Shutdown()

			return application.Run(ctx)
		},
	}
}

func newBackupCmd(configPath *string) *cobra.Command {
	var (
		scheduleID  string
		backupType  string
		collections []string
		compression string
		providers   []string
	)

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Run one backup now and wait for it to finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			application, err := app.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			defer application.Shutdown()

			var meta *domain.BackupMetadata
			if scheduleID != "" {
				meta, err = application.RunSchedule(ctx, scheduleID)
			} else {
				if compression == "" {
					compression = cfg.Backup.Compression
				}
				meta, err = application.Backup(ctx, usecase.Request{
					Type:        domain.BackupType(backupType),
					Collections: collections,
					Compression: domain.Compression(compression),
					Providers:   providers,
				})
			}
			if err != nil {
				return err
			}

			printBackup(cmd.OutOrStdout(), meta)
			if meta.Status == domain.StatusFailed {
				return fmt.Errorf("backup %s failed: %s", meta.ID, meta.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scheduleID, "schedule", "", "run a stored schedule instead of an ad-hoc selection")
	cmd.Flags().StringVarP(&backupType, "type", "t", string(domain.BackupTypeFull), "full, incremental or collections")
	cmd.Flags().StringSliceVar(&collections, "collections", nil, "collections to archive for --type collections")
	cmd.Flags().StringVar(&compression, "compression", "", "none, gzip, zip or zstd (defaults to backup.compression)")
	cmd.Flags().StringSliceVarP(&providers, "provider", "p", nil, "storage providers to upload to")
	return cmd
}

func newInspectCmd() *cobra.Command {
	var (
		compression string
		dump        string
	)

	cmd := &cobra.Command{
		Use:   "inspect <archive>",
		Short: "List the collections stored in an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			comp := domain.Compression(compression)
			if comp == "" {
				detected, err := compressor.Detect(path)
				if err != nil {
					return err
				}
				comp = detected
			}

			entries, err := compressor.ReadArchive(path, comp)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dump != "" {
				docs, ok := entries[dump]
				if !ok {
					return fmt.Errorf("collection %q not found in archive", dump)
				}
				enc := json.NewEncoder(out)
				for _, doc := range docs {
					if err := enc.Encode(doc); err != nil {
						return err
					}
				}
				return nil
			}

			names := make([]string, 0, len(entries))
			for name := range entries {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "COLLECTION\tDOCUMENTS")
			for _, name := range names {
				fmt.Fprintf(w, "%s\t%d\n", name, len(entries[name]))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&compression, "compression", "", "archive compression (detected from the extension by default)")
	cmd.Flags().StringVar(&dump, "dump", "", "print every document of this collection as JSON lines")
	return cmd
}

func printBackup(out io.Writer, meta *domain.BackupMetadata) {
	fmt.Fprintf(out, "Backup %s: %s\n", meta.ID, meta.Status)
	for _, name := range meta.Collections {
		fmt.Fprintf(out, "  %-24s %d document(s)\n", name, meta.DocumentCounts[name])
	}
	if meta.ArchivePath != "" {
		fmt.Fprintf(out, "  archive: %s (%d bytes)\n", meta.ArchivePath, meta.Size)
	}
	for _, provider := range sortedProviders(meta.RemoteObjects) {
		fmt.Fprintf(out, "  %s: %s\n", provider, meta.RemoteObjects[provider])
	}
	if meta.Error != "" {
		fmt.Fprintf(out, "  error: %s\n", meta.Error)
	}
}

func sortedProviders(objects map[string]string) []string {
	providers := make([]string, 0, len(objects))
	for p := range objects {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers
}
