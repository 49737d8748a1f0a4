package compressor

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/semmidev/snapkeep/internal/domain"
)

type ZstdCompressor struct{}

func NewZstd() *ZstdCompressor {
	return &ZstdCompressor{}
}

func (z *ZstdCompressor) Name() domain.Compression { return domain.CompressionZstd }

func (z *ZstdCompressor) Extension() string { return ".ndjson.zst" }

func (z *ZstdCompressor) NewWriter(dst io.Writer) (domain.ArchiveWriter, error) {
	encoder, err := zstd.NewWriter(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	return newStreamWriter(encoder, encoder.Close), nil
}

func readZstd(r io.Reader) (map[string][]domain.Document, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer decoder.Close()

	return readStream(decoder)
}
