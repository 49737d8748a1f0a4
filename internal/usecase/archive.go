package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/semmidev/snapkeep/internal/domain"
)

// Selection describes what one archive should contain.
type Selection struct {
	Type        domain.BackupType
	Collections []string
	Compression domain.Compression
	// Since bounds incremental reads; ignored for other types.
	Since *time.Time
	// Name is the archive file name without extension.
	Name string
	// OnProgress is called after each collection with the number processed.
	OnProgress func(done int)
}

type ArchiveResult struct {
	Collections    []string
	DocumentCounts map[string]int64
	SizeBytes      int64
	ArchivePath    string
	Errors         map[string]error
}

type CompressorFactory func(domain.Compression) (domain.Compressor, error)

// ArchiveBuilder snapshots collections from the document source into one
// archive file in the staging directory.
type ArchiveBuilder struct {
	source      domain.DocumentSource
	registered  []string
	stagingDir  string
	compressors CompressorFactory
	logger      Logger
}

func NewArchiveBuilder(
	source domain.DocumentSource,
	registered []string,
	stagingDir string,
	compressors CompressorFactory,
	logger Logger,
) *ArchiveBuilder {
	return &ArchiveBuilder{
		source:      source,
		registered:  registered,
		stagingDir:  stagingDir,
		compressors: compressors,
		logger:      logger,
	}
}

// Resolve returns the ordered collection list a selection covers.
func (b *ArchiveBuilder) Resolve(sel Selection) ([]string, error) {
	switch sel.Type {
	case domain.BackupTypeFull, domain.BackupTypeIncremental:
		return append([]string(nil), b.registered...), nil
	case domain.BackupTypeCollections:
		if len(sel.Collections) == 0 {
			return nil, fmt.Errorf("%w: no collections selected", domain.ErrInvalidSelection)
		}
		known := make(map[string]bool, len(b.registered))
		for _, name := range b.registered {
			known[name] = true
		}
		seen := make(map[string]bool, len(sel.Collections))
		collections := make([]string, 0, len(sel.Collections))
		for _, name := range sel.Collections {
			if !known[name] {
				return nil, fmt.Errorf("%w: unknown collection %q", domain.ErrInvalidSelection, name)
			}
			if seen[name] {
				continue
			}
			seen[name] = true
			collections = append(collections, name)
		}
		return collections, nil
	default:
		return nil, fmt.Errorf("%w: unknown backup type %q", domain.ErrInvalidSelection, sel.Type)
	}
}

// Build writes the archive. A failed collection read is recorded in
// Errors and the build continues. On cancellation the partial result is
// returned together with the context error.
func (b *ArchiveBuilder) Build(ctx context.Context, sel Selection) (*ArchiveResult, error) {
	collections, err := b.Resolve(sel)
	if err != nil {
		return nil, err
	}

	comp, err := b.compressors(sel.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSelection, err)
	}

	if err := os.MkdirAll(b.stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	name := sel.Name
	if name == "" {
		name = fmt.Sprintf("backup_%s", time.Now().Format("20060102_150405"))
	}
	archivePath := filepath.Join(b.stagingDir, name+comp.Extension())

	file, err := os.Create(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	writer, err := comp.NewWriter(file)
	if err != nil {
		file.Close()
		os.Remove(archivePath)
		return nil, fmt.Errorf("failed to create archive writer: %w", err)
	}

	var since *time.Time
	if sel.Type == domain.BackupTypeIncremental {
		since = sel.Since
	}

	result := &ArchiveResult{
		Collections:    []string{},
		DocumentCounts: make(map[string]int64),
		ArchivePath:    archivePath,
		Errors:         make(map[string]error),
	}

	buildErr := b.writeCollections(ctx, writer, collections, since, sel.OnProgress, result)

	if err := writer.Close(); err != nil && buildErr == nil {
		buildErr = fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := file.Close(); err != nil && buildErr == nil {
		buildErr = fmt.Errorf("failed to close archive: %w", err)
	}

	if len(result.Collections) == 0 {
		os.Remove(archivePath)
		result.ArchivePath = ""
		return result, buildErr
	}

	if info, err := os.Stat(archivePath); err == nil {
		result.SizeBytes = info.Size()
	}

	return result, buildErr
}

func (b *ArchiveBuilder) writeCollections(
	ctx context.Context,
	writer domain.ArchiveWriter,
	collections []string,
	since *time.Time,
	onProgress func(int),
	result *ArchiveResult,
) error {
	for i, name := range collections {
		if err := ctx.Err(); err != nil {
			return err
		}

		docs, err := b.source.ListDocuments(ctx, name, since)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			b.logger.Warnf("[archive] Failed to read %s: %v", name, err)
			result.Errors[name] = err
		} else {
			if err := writer.WriteEntry(name, docs); err != nil {
				return fmt.Errorf("failed to write %s: %w", name, err)
			}
			result.Collections = append(result.Collections, name)
			result.DocumentCounts[name] = int64(len(docs))
		}

		if onProgress != nil {
			onProgress(i + 1)
		}
	}
	return nil
}
