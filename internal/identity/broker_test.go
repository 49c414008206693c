package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shelflife/shelflife/internal/domain"
	"github.com/shelflife/shelflife/internal/log"
	"golang.org/x/oauth2"
)

func validToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "access-abc",
		RefreshToken: "refresh-xyz",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}
}

func newTestBroker(stored *oauth2.Token, scope, email string, persist PersistFunc) *Broker {
	return NewBroker("client-id", "client-secret", stored, scope, email, persist, log.NullLogger())
}

func TestIsSignedIn(t *testing.T) {
	cases := []struct {
		name   string
		stored *oauth2.Token
		scope  string
		want   bool
	}{
		{"no stored token", nil, "", false},
		{"token with calendar scope", validToken(), CalendarScope, true},
		{"token with compound scope", validToken(), CalendarScope + " email", true},
		{"token missing calendar scope", validToken(), "email", false},
		{"token with legacy empty scope", validToken(), "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBroker(tc.stored, tc.scope, "user@example.com", nil)
			if got := b.IsSignedIn(); got != tc.want {
				t.Errorf("IsSignedIn() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTrySilentSignInWithoutTokenRequiresInteractive(t *testing.T) {
	b := newTestBroker(nil, "", "", nil)

	_, err := b.TrySilentSignIn(context.Background())
	if !errors.Is(err, domain.ErrInteractiveSignInRequired) {
		t.Fatalf("err = %v, want ErrInteractiveSignInRequired", err)
	}
}

func TestTrySilentSignInWithValidTokenSucceedsOffline(t *testing.T) {
	b := newTestBroker(validToken(), CalendarScope, "user@example.com", nil)

	acc, err := b.TrySilentSignIn(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc == nil || acc.Email != "user@example.com" {
		t.Errorf("account = %v, want the stored account", acc)
	}
}

func TestTrySilentSignInExpiredWithoutRefreshToken(t *testing.T) {
	expired := &oauth2.Token{
		AccessToken: "stale",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(-time.Hour),
	}
	b := newTestBroker(expired, CalendarScope, "user@example.com", nil)

	_, err := b.TrySilentSignIn(context.Background())
	if !errors.Is(err, domain.ErrInteractiveSignInRequired) {
		t.Fatalf("err = %v, want ErrInteractiveSignInRequired", err)
	}
}

func TestAccessTokenReturnsValidTokenWithoutRefresh(t *testing.T) {
	b := newTestBroker(validToken(), CalendarScope, "user@example.com", nil)

	tok, err := b.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "access-abc" {
		t.Errorf("token = %q, want access-abc", tok)
	}
}

func TestAccessTokenWithoutAccount(t *testing.T) {
	b := newTestBroker(nil, "", "", nil)

	_, err := b.AccessToken(context.Background())
	if !errors.Is(err, domain.ErrNotSignedIn) {
		t.Fatalf("err = %v, want ErrNotSignedIn", err)
	}
}

func TestCurrentAccountReturnsCopy(t *testing.T) {
	b := newTestBroker(validToken(), CalendarScope, "user@example.com", nil)

	acc := b.CurrentAccount()
	if acc == nil || acc.Email != "user@example.com" {
		t.Fatalf("account = %v, want the stored account", acc)
	}
	acc.Email = "mutated@example.com"
	if again := b.CurrentAccount(); again.Email != "user@example.com" {
		t.Error("CurrentAccount must return a copy, not shared state")
	}
}

func TestCurrentAccountNilWhenSignedOut(t *testing.T) {
	b := newTestBroker(nil, "", "", nil)
	if acc := b.CurrentAccount(); acc != nil {
		t.Errorf("account = %v, want nil", acc)
	}
}

func TestSignOutClearsStateAndPersistsNil(t *testing.T) {
	persisted := validToken()
	persistCalls := 0
	persist := func(tok *oauth2.Token, email string) error {
		persistCalls++
		persisted = tok
		return nil
	}
	b := newTestBroker(validToken(), CalendarScope, "user@example.com", persist)

	b.SignOut()

	if b.IsSignedIn() {
		t.Error("IsSignedIn must be false after sign-out")
	}
	if b.CurrentAccount() != nil {
		t.Error("CurrentAccount must be nil after sign-out")
	}
	if persistCalls != 1 || persisted != nil {
		t.Errorf("persist called %d times with %v, want once with nil", persistCalls, persisted)
	}

	if _, err := b.AccessToken(context.Background()); !errors.Is(err, domain.ErrNotSignedIn) {
		t.Errorf("err = %v, want ErrNotSignedIn after sign-out", err)
	}
}

func TestRestoreToken(t *testing.T) {
	expiry := time.Date(2026, time.January, 2, 15, 4, 5, 0, time.UTC)

	tok := RestoreToken("acc", "ref", expiry.Format(time.RFC3339))
	if tok == nil {
		t.Fatal("expected a restored token")
	}
	if tok.AccessToken != "acc" || tok.RefreshToken != "ref" {
		t.Errorf("token = %+v, want the stored credentials", tok)
	}
	if !tok.Expiry.Equal(expiry) {
		t.Errorf("expiry = %v, want %v", tok.Expiry, expiry)
	}

	if tok := RestoreToken("", "", ""); tok != nil {
		t.Errorf("empty fields restored %+v, want nil", tok)
	}

	// A refresh token alone is enough to restore a signed-in account.
	if tok := RestoreToken("", "ref-only", "garbage"); tok == nil || tok.RefreshToken != "ref-only" {
		t.Errorf("token = %+v, want a refresh-only token", tok)
	}
}
