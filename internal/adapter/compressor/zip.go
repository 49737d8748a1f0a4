package compressor

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zip"
	"github.com/semmidev/snapkeep/internal/domain"
)

const zipEntrySuffix = ".ndjson"

// ZipCompressor stores one deflated <collection>.ndjson entry per collection.
type ZipCompressor struct{}

func NewZip() *ZipCompressor {
	return &ZipCompressor{}
}

func (z *ZipCompressor) Name() domain.Compression { return domain.CompressionZip }

func (z *ZipCompressor) Extension() string { return ".zip" }

func (z *ZipCompressor) NewWriter(dst io.Writer) (domain.ArchiveWriter, error) {
	return &zipWriter{zw: zip.NewWriter(dst)}, nil
}

type zipWriter struct {
	zw *zip.Writer
}

func (w *zipWriter) WriteEntry(collection string, docs []domain.Document) error {
	entry, err := w.zw.Create(collection + zipEntrySuffix)
	if err != nil {
		return fmt.Errorf("failed to create zip entry %s: %w", collection, err)
	}

	enc := json.NewEncoder(entry)
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
	}
	return nil
}

func (w *zipWriter) Close() error {
	return w.zw.Close()
}

func readZip(r io.ReaderAt, size int64) (map[string][]domain.Document, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to create zip reader: %w", err)
	}

	entries := make(map[string][]domain.Document)
	for _, f := range zr.File {
		collection := strings.TrimSuffix(f.Name, zipEntrySuffix)
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open zip entry %s: %w", f.Name, err)
		}

		dec := json.NewDecoder(rc)
		docs := []domain.Document{}
		for {
			var doc domain.Document
			if err := dec.Decode(&doc); err == io.EOF {
				break
			} else if err != nil {
				rc.Close()
				return nil, fmt.Errorf("failed to decode zip entry %s: %w", f.Name, err)
			}
			docs = append(docs, doc)
		}
		rc.Close()
		entries[collection] = docs
	}
	return entries, nil
}
