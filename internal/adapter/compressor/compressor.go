package compressor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/semmidev/snapkeep/internal/domain"
)

// New returns the compressor registered for the given name. An empty name
// selects gzip.
func New(name domain.Compression) (domain.Compressor, error) {
	switch name {
	case domain.CompressionNone:
		return NewNone(), nil
	case domain.CompressionGzip, "":
		return NewGzip(), nil
	case domain.CompressionZip:
		return NewZip(), nil
	case domain.CompressionZstd:
		return NewZstd(), nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", name)
	}
}

type streamLine struct {
	Collection string          `json:"collection"`
	Document   domain.Document `json:"document"`
}

// streamWriter writes every document as one JSON line tagged with its collection.
type streamWriter struct {
	enc   *json.Encoder
	close func() error
}

func newStreamWriter(w io.Writer, closeFn func() error) *streamWriter {
	return &streamWriter{enc: json.NewEncoder(w), close: closeFn}
}

func (s *streamWriter) WriteEntry(collection string, docs []domain.Document) error {
	for _, doc := range docs {
		if err := s.enc.Encode(streamLine{Collection: collection, Document: doc}); err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
	}
	return nil
}

func (s *streamWriter) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func readStream(r io.Reader) (map[string][]domain.Document, error) {
	entries := make(map[string][]domain.Document)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		var line streamLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		entries[line.Collection] = append(entries[line.Collection], line.Document)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	return entries, nil
}

// ReadArchive decodes an archive written by one of the compressors back into
// its per-collection documents.
func ReadArchive(path string, compression domain.Compression) (map[string][]domain.Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	switch compression {
	case domain.CompressionNone:
		return readStream(file)
	case domain.CompressionGzip, "":
		return readGzip(file)
	case domain.CompressionZip:
		info, err := file.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat archive: %w", err)
		}
		return readZip(file, info.Size())
	case domain.CompressionZstd:
		return readZstd(file)
	default:
		return nil, fmt.Errorf("unsupported compression %q", compression)
	}
}

// Detect infers an archive's compression from its file name.
func Detect(path string) (domain.Compression, error) {
	for _, c := range []domain.Compressor{NewGzip(), NewZstd(), NewZip(), NewNone()} {
		if strings.HasSuffix(path, c.Extension()) {
			return c.Name(), nil
		}
	}
	return "", fmt.Errorf("cannot detect compression of %s", filepath.Base(path))
}

type None struct{}

func NewNone() *None {
	return &None{}
}

func (n *None) Name() domain.Compression { return domain.CompressionNone }

func (n *None) Extension() string { return ".ndjson" }

func (n *None) NewWriter(dst io.Writer) (domain.ArchiveWriter, error) {
	return newStreamWriter(dst, nil), nil
}
