package compressor

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/semmidev/snapkeep/internal/domain"
)

type GzipCompressor struct {
	level int
}

func NewGzip() *GzipCompressor {
	return &GzipCompressor{level: gzip.BestCompression}
}

func (g *GzipCompressor) Name() domain.Compression { return domain.CompressionGzip }

func (g *GzipCompressor) Extension() string { return ".ndjson.gz" }

func (g *GzipCompressor) NewWriter(dst io.Writer) (domain.ArchiveWriter, error) {
	gzipWriter, err := gzip.NewWriterLevel(dst, g.level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	return newStreamWriter(gzipWriter, gzipWriter.Close), nil
}

func readGzip(r io.Reader) (map[string][]domain.Document, error) {
	gzipReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	return readStream(gzipReader)
}
