package domain

import "io"

// ArchiveWriter receives one entry per collection. Close flushes the
// underlying format but does not close the destination writer. Documents
// arrive with database-specific values already in extended JSON form, so a
// writer only needs plain JSON. An encrypting writer would wrap this one.
type ArchiveWriter interface {
	WriteEntry(collection string, docs []Document) error
	Close() error
}

type Compressor interface {
	Name() Compression
	Extension() string
	NewWriter(dst io.Writer) (ArchiveWriter, error)
}
