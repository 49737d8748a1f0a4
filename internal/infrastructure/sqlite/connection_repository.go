package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/semmidev/snapkeep/internal/domain"
)

type connectionRow struct {
	Provider          string        `db:"provider"`
	State             string        `db:"state"`
	AccountIdentifier string        `db:"account_identifier"`
	FolderReference   string        `db:"folder_reference"`
	AccessToken       string        `db:"access_token"`
	RefreshToken      string        `db:"refresh_token"`
	TokenType         string        `db:"token_type"`
	Expiry            sql.NullInt64 `db:"expiry"`
	LastSyncAt        sql.NullInt64 `db:"last_sync_at"`
}

type connectionRepository struct {
	db *DB
}

func NewConnectionRepository(db *DB) domain.ConnectionStore {
	return &connectionRepository{db: db}
}

func (r *connectionRepository) SaveConnection(ctx context.Context, conn *domain.StoredConnection) error {
	row := connectionRow{
		Provider:          conn.Provider,
		State:             string(conn.State),
		AccountIdentifier: conn.AccountIdentifier,
		FolderReference:   conn.FolderReference,
		AccessToken:       conn.AccessToken,
		RefreshToken:      conn.RefreshToken,
		TokenType:         conn.TokenType,
		LastSyncAt:        NullTime(conn.LastSyncAt),
	}
	if !conn.Expiry.IsZero() {
		row.Expiry = NullTime(&conn.Expiry)
	}

	query := `
		INSERT INTO connection (provider, state, account_identifier, folder_reference,
			access_token, refresh_token, token_type, expiry, last_sync_at)
		VALUES (:provider, :state, :account_identifier, :folder_reference,
			:access_token, :refresh_token, :token_type, :expiry, :last_sync_at)
		ON CONFLICT(provider) DO UPDATE SET
			state = excluded.state,
			account_identifier = excluded.account_identifier,
			folder_reference = excluded.folder_reference,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expiry = excluded.expiry,
			last_sync_at = excluded.last_sync_at
	`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	return nil
}

func (r *connectionRepository) LoadConnection(ctx context.Context, provider string) (*domain.StoredConnection, error) {
	var row connectionRow
	err := r.db.GetContext(ctx, &row, `
		SELECT provider, state, account_identifier, folder_reference,
			access_token, refresh_token, token_type, expiry, last_sync_at
		FROM connection WHERE provider = ?`, provider)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("connection %s: %w", provider, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}

	conn := &domain.StoredConnection{
		Connection: domain.Connection{
			Provider:          row.Provider,
			State:             domain.ConnectionState(row.State),
			AccountIdentifier: row.AccountIdentifier,
			FolderReference:   row.FolderReference,
			LastSyncAt:        timePtr(row.LastSyncAt),
		},
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		TokenType:    row.TokenType,
	}
	if expiry := timePtr(row.Expiry); expiry != nil {
		conn.Expiry = *expiry
	}
	return conn, nil
}

func (r *connectionRepository) DeleteConnection(ctx context.Context, provider string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM connection WHERE provider = ?`, provider); err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}
