package domain

import (
	"context"
	"time"
)

type Document map[string]any

// DocumentSource is the read side of the application database.
type DocumentSource interface {
	Ping(ctx context.Context) error
	// ListDocuments returns every document of the collection, or only those
	// modified after since when it is non-nil.
	ListDocuments(ctx context.Context, collection string, since *time.Time) ([]Document, error)
}
