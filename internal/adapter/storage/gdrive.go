package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/semmidev/snapkeep/internal/config"
	"github.com/semmidev/snapkeep/internal/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	ProviderGDrive = "gdrive"

	folderMimeType = "application/vnd.google-apps.folder"
	expiryDelta    = 30 * time.Second
)

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// driveAPI is the subset of the Drive v3 API the connector talks to.
type driveAPI interface {
	AccountEmail(ctx context.Context) (string, error)
	FindFolder(ctx context.Context, name string) (string, error)
	CreateFolder(ctx context.Context, name string) (string, error)
	Upload(ctx context.Context, folderID, name string, media io.Reader) (string, error)
	Delete(ctx context.Context, fileID string) error
}

type driveFactory func(ctx context.Context, ts oauth2.TokenSource) (driveAPI, error)

// GDriveConnector owns the OAuth2 connection to one Google Drive account and
// uploads archives into a dedicated folder.
type GDriveConnector struct {
	oauth      oauth2.Config
	folderName string
	revokeURL  string
	state      string

	store    domain.ConnectionStore
	logger   Logger
	clock    clock.Clock
	newDrive driveFactory
	client   *http.Client
	refresh  singleflight.Group

	mu    sync.Mutex
	conn  domain.Connection
	token *oauth2.Token
}

func NewGDrive(cfg *config.GDriveConfig, store domain.ConnectionStore, logger Logger, clk clock.Clock) (*GDriveConnector, error) {
	oauthCfg := oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{drive.DriveFileScope},
	}

	if cfg.CredentialsFile != "" {
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read client secret file: %w", err)
		}
		parsed, err := google.ConfigFromJSON(b, drive.DriveFileScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse client secret: %w", err)
		}
		oauthCfg = *parsed
		if cfg.RedirectURL != "" {
			oauthCfg.RedirectURL = cfg.RedirectURL
		}
	}

	return &GDriveConnector{
		oauth:      oauthCfg,
		folderName: cfg.FolderName,
		revokeURL:  cfg.RevokeURL,
		state:      cfg.State,
		store:      store,
		logger:     logger,
		clock:      clk,
		newDrive:   newDriveService,
		client:     http.DefaultClient,
		conn: domain.Connection{
			Provider: ProviderGDrive,
			State:    domain.StateDisconnected,
		},
	}, nil
}

func (g *GDriveConnector) configured() bool {
	return g.oauth.ClientID != "" && g.oauth.ClientSecret != ""
}

func (g *GDriveConnector) config(redirectURI string) *oauth2.Config {
	cfg := g.oauth
	if redirectURI != "" {
		cfg.RedirectURL = redirectURI
	}
	return &cfg
}

// Restore loads a previously persisted connection.
func (g *GDriveConnector) Restore(ctx context.Context) error {
	if g.store == nil {
		return nil
	}

	stored, err := g.store.LoadConnection(ctx, ProviderGDrive)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load gdrive connection: %w", err)
	}
	if stored.State != domain.StateConnected || stored.RefreshToken == "" {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.conn = stored.Connection
	g.conn.Provider = ProviderGDrive
	g.token = &oauth2.Token{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		TokenType:    stored.TokenType,
		Expiry:       stored.Expiry,
	}
	g.logger.Infof("[gdrive] Restored connection for %s", g.conn.AccountIdentifier)
	return nil
}

func (g *GDriveConnector) AuthorizationURL(redirectURI string) (string, error) {
	if !g.configured() {
		return "", domain.ErrProviderNotConfigured
	}

	authURL := g.config(redirectURI).AuthCodeURL(g.state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	g.mu.Lock()
	if g.conn.State == domain.StateDisconnected {
		g.conn.State = domain.StateAuthorizing
	}
	g.mu.Unlock()

	return authURL, nil
}

func (g *GDriveConnector) ExchangeCode(ctx context.Context, code, redirectURI string) (*domain.Connection, error) {
	if !g.configured() {
		return nil, domain.ErrProviderNotConfigured
	}
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", domain.ErrExchangeFailed)
	}

	token, err := g.config(redirectURI).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrExchangeFailed, err)
	}
	g.stampExpiry(token)

	api, err := g.newDrive(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	email, err := api.AccountEmail(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve account: %w", err)
	}

	folderID, err := g.ensureFolder(ctx, api)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.token = token
	g.conn.State = domain.StateConnected
	g.conn.AccountIdentifier = email
	g.conn.FolderReference = folderID
	conn := g.conn
	g.mu.Unlock()

	g.persist(ctx)
	g.logger.Infof("[gdrive] Connected as %s (folder %s)", email, folderID)

	return &conn, nil
}

func (g *GDriveConnector) ensureFolder(ctx context.Context, api driveAPI) (string, error) {
	folderID, err := api.FindFolder(ctx, g.folderName)
	if err != nil {
		return "", fmt.Errorf("failed to find folder %q: %w", g.folderName, err)
	}
	if folderID != "" {
		return folderID, nil
	}

	folderID, err = api.CreateFolder(ctx, g.folderName)
	if err != nil {
		return "", fmt.Errorf("failed to create folder %q: %w", g.folderName, err)
	}
	return folderID, nil
}

func (g *GDriveConnector) Upload(ctx context.Context, archivePath string, name string) (string, error) {
	token, folderID, err := g.validToken(ctx)
	if err != nil {
		return "", err
	}

	fileID, err := g.upload(ctx, token, folderID, archivePath, name)
	if err != nil && isUnauthorized(err) {
		g.logger.Warnf("[gdrive] Upload rejected with 401, refreshing token")
		token, err = g.refreshToken(ctx, token)
		if err != nil {
			return "", fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
		}
		fileID, err = g.upload(ctx, token, folderID, archivePath, name)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
	}

	now := g.clock.Now()
	g.mu.Lock()
	g.conn.LastSyncAt = &now
	g.mu.Unlock()
	g.persist(ctx)

	return fileID, nil
}

func (g *GDriveConnector) upload(ctx context.Context, token *oauth2.Token, folderID, archivePath, name string) (string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	api, err := g.newDrive(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return "", fmt.Errorf("failed to create drive service: %w", err)
	}

	return api.Upload(ctx, folderID, name, file)
}

func (g *GDriveConnector) Delete(ctx context.Context, objectID string) error {
	token, _, err := g.validToken(ctx)
	if err != nil {
		return err
	}

	api, err := g.newDrive(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return fmt.Errorf("failed to create drive service: %w", err)
	}

	if err := api.Delete(ctx, objectID); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// validToken returns an unexpired access token, refreshing it first when needed.
func (g *GDriveConnector) validToken(ctx context.Context) (*oauth2.Token, string, error) {
	g.mu.Lock()
	if g.conn.State != domain.StateConnected || g.token == nil {
		g.mu.Unlock()
		return nil, "", domain.ErrNotConnected
	}
	token := g.token
	folderID := g.conn.FolderReference
	g.mu.Unlock()

	if !g.expired(token) {
		return token, folderID, nil
	}

	token, err := g.refreshToken(ctx, token)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
	}
	return token, folderID, nil
}

func (g *GDriveConnector) expired(token *oauth2.Token) bool {
	if token.AccessToken == "" {
		return true
	}
	if token.Expiry.IsZero() {
		return false
	}
	return !g.clock.Now().Add(expiryDelta).Before(token.Expiry)
}

// stampExpiry measures the token lifetime against the connector clock.
func (g *GDriveConnector) stampExpiry(token *oauth2.Token) {
	if token.ExpiresIn > 0 {
		token.Expiry = g.clock.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	}
}

// refreshToken exchanges the refresh token for a new access token. Concurrent
// callers share the same round trip, and a caller whose stale token was
// already replaced by a fresh one gets that token without a new round trip.
func (g *GDriveConnector) refreshToken(ctx context.Context, stale *oauth2.Token) (*oauth2.Token, error) {
	v, err, _ := g.refresh.Do("token", func() (interface{}, error) {
		g.mu.Lock()
		if g.token == nil {
			g.mu.Unlock()
			return nil, domain.ErrNotConnected
		}
		if stale != nil && g.token.AccessToken != stale.AccessToken && !g.expired(g.token) {
			current := g.token
			g.mu.Unlock()
			return current, nil
		}
		refreshToken := g.token.RefreshToken
		g.mu.Unlock()

		fresh, err := g.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
		if err != nil {
			return nil, fmt.Errorf("failed to refresh token: %w", err)
		}
		if fresh.RefreshToken == "" {
			fresh.RefreshToken = refreshToken
		}
		g.stampExpiry(fresh)

		g.mu.Lock()
		if g.conn.State != domain.StateConnected {
			g.mu.Unlock()
			return nil, domain.ErrNotConnected
		}
		g.token = fresh
		g.mu.Unlock()

		g.persist(ctx)
		g.logger.Infof("[gdrive] Access token refreshed")
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth2.Token), nil
}

func (g *GDriveConnector) Disconnect(ctx context.Context) error {
	g.mu.Lock()
	token := g.token
	wasConnected := g.conn.State != domain.StateDisconnected
	g.token = nil
	g.conn = domain.Connection{
		Provider: ProviderGDrive,
		State:    domain.StateDisconnected,
	}
	g.mu.Unlock()

	if !wasConnected && token == nil {
		return nil
	}

	if token != nil {
		if err := g.revoke(ctx, token); err != nil {
			g.logger.Warnf("[gdrive] Token revocation failed: %v", err)
		}
	}

	if g.store != nil {
		if err := g.store.DeleteConnection(ctx, ProviderGDrive); err != nil && !errors.Is(err, domain.ErrNotFound) {
			g.logger.Errorf("[gdrive] Failed to delete stored connection: %v", err)
		}
	}

	g.logger.Infof("[gdrive] Disconnected")
	return nil
}

func (g *GDriveConnector) revoke(ctx context.Context, token *oauth2.Token) error {
	if g.revokeURL == "" {
		return nil
	}

	value := token.RefreshToken
	if value == "" {
		value = token.AccessToken
	}

	form := url.Values{"token": {value}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("revoke endpoint returned %s", resp.Status)
	}
	return nil
}

func (g *GDriveConnector) Status() domain.Connection {
	g.mu.Lock()
	defer g.mu.Unlock()

	conn := g.conn
	if conn.LastSyncAt != nil {
		at := *conn.LastSyncAt
		conn.LastSyncAt = &at
	}
	return conn
}

func (g *GDriveConnector) persist(ctx context.Context) {
	if g.store == nil {
		return
	}

	g.mu.Lock()
	if g.token == nil {
		g.mu.Unlock()
		return
	}
	stored := &domain.StoredConnection{
		Connection:   g.conn,
		AccessToken:  g.token.AccessToken,
		RefreshToken: g.token.RefreshToken,
		TokenType:    g.token.TokenType,
		Expiry:       g.token.Expiry,
	}
	g.mu.Unlock()

	if err := g.store.SaveConnection(ctx, stored); err != nil {
		g.logger.Errorf("[gdrive] Failed to persist connection: %v", err)
	}
}

func isUnauthorized(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized
}

type driveService struct {
	service *drive.Service
}

func newDriveService(ctx context.Context, ts oauth2.TokenSource) (driveAPI, error) {
	service, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, err
	}
	return &driveService{service: service}, nil
}

func (d *driveService) AccountEmail(ctx context.Context) (string, error) {
	about, err := d.service.About.Get().Fields("user(emailAddress)").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if about.User == nil {
		return "", nil
	}
	return about.User.EmailAddress, nil
}

func (d *driveService) FindFolder(ctx context.Context, name string) (string, error) {
	query := fmt.Sprintf("mimeType='%s' and name='%s' and trashed=false",
		folderMimeType, strings.ReplaceAll(name, "'", `\'`))

	fileList, err := d.service.Files.List().
		Q(query).
		Fields("files(id)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	if len(fileList.Files) == 0 {
		return "", nil
	}
	return fileList.Files[0].Id, nil
}

func (d *driveService) CreateFolder(ctx context.Context, name string) (string, error) {
	folder, err := d.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return folder.Id, nil
}

func (d *driveService) Upload(ctx context.Context, folderID, name string, media io.Reader) (string, error) {
	fileMetadata := &drive.File{
		Name:    name,
		Parents: []string{folderID},
	}

	file, err := d.service.Files.Create(fileMetadata).
		Media(media).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return file.Id, nil
}

func (d *driveService) Delete(ctx context.Context, fileID string) error {
	return d.service.Files.Delete(fileID).Context(ctx).Do()
}
