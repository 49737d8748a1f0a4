package domain

import (
	"context"
	"time"
)

// Uploader sends a finished archive to one remote destination.
type Uploader interface {
	Upload(ctx context.Context, archivePath string, name string) (string, error)
	Delete(ctx context.Context, objectID string) error
}

type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateAuthorizing  ConnectionState = "authorizing"
	StateConnected    ConnectionState = "connected"
)

// Connection is the caller-visible view of a provider connection. Tokens are
// held by the connector and never copied into it.
type Connection struct {
	Provider          string          `json:"provider"`
	State             ConnectionState `json:"state"`
	AccountIdentifier string          `json:"accountIdentifier,omitempty"`
	FolderReference   string          `json:"folderReference,omitempty"`
	LastSyncAt        *time.Time      `json:"lastSyncAt,omitempty"`
}

// Connector is an Uploader that needs an interactive OAuth2 grant first.
type Connector interface {
	Uploader
	AuthorizationURL(redirectURI string) (string, error)
	ExchangeCode(ctx context.Context, code, redirectURI string) (*Connection, error)
	Disconnect(ctx context.Context) error
	Status() Connection
}

// StoredConnection is the persisted form of a connection, tokens included.
type StoredConnection struct {
	Connection
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
}

type ConnectionStore interface {
	SaveConnection(ctx context.Context, conn *StoredConnection) error
	LoadConnection(ctx context.Context, provider string) (*StoredConnection, error)
	DeleteConnection(ctx context.Context, provider string) error
}
