package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shelflife/shelflife/internal/domain"
	"golang.org/x/oauth2"
)

// CalendarScope is the fixed read/write scope every remote calendar call
// requires.
const CalendarScope = "https://www.googleapis.com/auth/calendar"

const (
	authURL       = "https://accounts.google.com/o/oauth2/auth"
	tokenURL      = "https://oauth2.googleapis.com/token"
	deviceAuthURL = "https://oauth2.googleapis.com/device/code"
	userinfoURL   = "https://www.googleapis.com/oauth2/v2/userinfo"

	userinfoTimeout = 10 * time.Second
)

// PersistFunc stores the current token so silent reauthentication survives a
// restart. A nil token means the account was signed out.
type PersistFunc func(tok *oauth2.Token, email string) error

// Broker yields the one signed-in Google account, a cached silent
// reauthentication result, or a typed failure. It implements
// domain.IdentityBroker and domain.CredentialSource.
type Broker struct {
	cfg     oauth2.Config
	persist PersistFunc
	logger  *slog.Logger

	mu      sync.Mutex
	token   *oauth2.Token
	scope   string
	account *domain.Account
}

// NewBroker creates a broker for the given OAuth client. stored may carry a
// token restored from configuration; pass nil when no account is signed in.
func NewBroker(clientID, clientSecret string, stored *oauth2.Token, scope, email string, persist PersistFunc, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	if persist == nil {
		persist = func(*oauth2.Token, string) error { return nil }
	}

	b := &Broker{
		cfg: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:       authURL,
				TokenURL:      tokenURL,
				DeviceAuthURL: deviceAuthURL,
			},
			Scopes: []string{CalendarScope, "email"},
		},
		persist: persist,
		logger:  logger,
	}
	if stored != nil && (stored.AccessToken != "" || stored.RefreshToken != "") {
		b.token = stored
		b.scope = scope
		if email != "" {
			b.account = &domain.Account{Email: email}
		} else {
			b.account = &domain.Account{}
		}
	}
	return b
}

// RestoreToken rebuilds an oauth2 token from persisted configuration fields.
func RestoreToken(accessToken, refreshToken, expiry string) *oauth2.Token {
	if accessToken == "" && refreshToken == "" {
		return nil
	}
	tok := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
	}
	if t, err := time.Parse(time.RFC3339, expiry); err == nil {
		tok.Expiry = t
	}
	return tok
}

// IsSignedIn reports whether the broker holds an account with the calendar
// scope. Pure read, no network call.
func (b *Broker) IsSignedIn() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token != nil && b.hasCalendarScopeLocked()
}

func (b *Broker) hasCalendarScopeLocked() bool {
	// Tokens persisted before scope tracking carry an empty scope string;
	// the broker only ever requests the calendar scope, so treat empty as
	// granted.
	return b.scope == "" || strings.Contains(b.scope, CalendarScope)
}

// CurrentAccount returns the signed-in account, or nil.
func (b *Broker) CurrentAccount() *domain.Account {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token == nil {
		return nil
	}
	acc := *b.account
	return &acc
}

// TrySilentSignIn attempts cached reauthentication. A still-valid access
// token succeeds without any network call; otherwise one refresh attempt is
// made. ErrInteractiveSignInRequired means the caller must run DeviceSignIn.
func (b *Broker) TrySilentSignIn(ctx context.Context) (*domain.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.token == nil {
		return nil, domain.ErrInteractiveSignInRequired
	}
	if b.token.Valid() {
		acc := *b.account
		return &acc, nil
	}
	if b.token.RefreshToken == "" {
		return nil, domain.ErrInteractiveSignInRequired
	}

	tok, err := b.cfg.TokenSource(ctx, b.token).Token()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCancelled, err)
		}
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.ErrorCode == "invalid_grant" {
			// Refresh token revoked or expired; only an interactive
			// sign-in can recover.
			b.logger.Warn("refresh token rejected", "error", rerr.ErrorCode)
			return nil, domain.ErrInteractiveSignInRequired
		}
		return nil, fmt.Errorf("silent sign-in failed: %w", err)
	}

	b.setTokenLocked(tok)
	acc := *b.account
	return &acc, nil
}

// DeviceSignIn runs the OAuth device authorization flow: onCode receives the
// user code and verification URL to display, then the broker polls until the
// user approves, the code expires, or ctx is cancelled.
func (b *Broker) DeviceSignIn(ctx context.Context, onCode func(userCode, verificationURL string)) (*domain.Account, error) {
	da, err := b.cfg.DeviceAuth(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCancelled, err)
		}
		return nil, fmt.Errorf("device authorization failed: %w", err)
	}

	if onCode != nil {
		url := da.VerificationURIComplete
		if url == "" {
			url = da.VerificationURI
		}
		onCode(da.UserCode, url)
	}

	tok, err := b.cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCancelled, err)
		}
		return nil, fmt.Errorf("device sign-in failed: %w", err)
	}

	email := b.fetchEmail(ctx, tok.AccessToken)

	b.mu.Lock()
	b.account = &domain.Account{Email: email}
	b.setTokenLocked(tok)
	acc := *b.account
	b.mu.Unlock()

	b.logger.Info("signed in", "account", acc.String())
	return &acc, nil
}

// setTokenLocked stores the token and persists it best-effort.
func (b *Broker) setTokenLocked(tok *oauth2.Token) {
	b.token = tok
	if s, ok := tok.Extra("scope").(string); ok && s != "" {
		b.scope = s
	}
	if b.account == nil {
		b.account = &domain.Account{}
	}
	if err := b.persist(tok, b.account.Email); err != nil {
		b.logger.Warn("failed to persist token", "error", err)
	}
}

// fetchEmail resolves the account email for display. Best-effort: a failure
// leaves the email blank and the sign-in still succeeds.
func (b *Broker) fetchEmail(ctx context.Context, accessToken string) string {
	ctx, cancel := context.WithTimeout(ctx, userinfoTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userinfoURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		b.logger.Warn("failed to fetch account info", "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}
	var info struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return ""
	}
	return info.Email
}

// AccessToken returns a bearer credential for remote calendar calls,
// refreshing silently when needed. Implements domain.CredentialSource.
func (b *Broker) AccessToken(ctx context.Context) (string, error) {
	b.mu.Lock()
	if b.token == nil {
		b.mu.Unlock()
		return "", domain.ErrNotSignedIn
	}
	if b.token.Valid() {
		tok := b.token.AccessToken
		b.mu.Unlock()
		return tok, nil
	}
	b.mu.Unlock()

	if _, err := b.TrySilentSignIn(ctx); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token.AccessToken, nil
}

// SignOut revokes the cached identity. It does not touch any remote state.
func (b *Broker) SignOut() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = nil
	b.scope = ""
	b.account = nil
	if err := b.persist(nil, ""); err != nil {
		b.logger.Warn("failed to clear persisted token", "error", err)
	}
}
