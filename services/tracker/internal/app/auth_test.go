package app

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	a, _ := newTestApp(t)
	mustRegister(t, a, "alice")

	_, err := a.Register(Registration{Username: "alice", Password: "other"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestRegisterEmailHandling(t *testing.T) {
	a, _ := newTestApp(t)

	u := mustRegister(t, a, "Bob")
	if u.Email != "Bob@users.booktracker.local" {
		t.Fatalf("placeholder email = %q", u.Email)
	}
	if u.PasswordHash == "" || u.PasswordHash == "Bob-pw" {
		t.Fatalf("expected hashed password, got %q", u.PasswordHash)
	}

	carol, err := a.Register(Registration{Username: "carol", Email: " Carol@Example.com ", Password: "pw"})
	if err != nil {
		t.Fatalf("register carol: %v", err)
	}
	if carol.Email != "carol@example.com" {
		t.Fatalf("email = %q, want normalized", carol.Email)
	}
	if _, err := a.Register(Registration{Username: "dave", Email: "carol@example.com", Password: "pw"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterUsernamesDifferingInCase(t *testing.T) {
	a, _ := newTestApp(t)
	upper := mustRegister(t, a, "Bob")
	lower, err := a.Register(Registration{Username: "bob", Password: "pw"})
	if err != nil {
		t.Fatalf("register bob: %v", err)
	}
	if upper.ID == lower.ID || upper.Email == lower.Email {
		t.Fatalf("expected distinct users, got %+v and %+v", upper, lower)
	}
	if _, err := a.Login("bob", "pw"); err != nil {
		t.Fatalf("login bob: %v", err)
	}
}

func TestRegisterRejectsPlaceholderDomain(t *testing.T) {
	a, _ := newTestApp(t)
	mustRegister(t, a, "bob")
	_, err := a.Register(Registration{Username: "mallory", Email: "Bob@Users.Booktracker.Local", Password: "pw"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := a.Register(Registration{Username: "Bob", Password: "pw"}); err != nil {
		t.Fatalf("placeholder for Bob should still be free: %v", err)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	a, _ := newTestApp(t)
	cases := []Registration{
		{Username: "", Password: "pw"},
		{Username: "alice", Password: ""},
		{Username: strings.Repeat("a", 51), Password: "pw"},
		{Username: "alice", Password: strings.Repeat("p", 73)},
		{Username: "alice", Email: "not-an-email", Password: "pw"},
	}
	for _, reg := range cases {
		if _, err := a.Register(reg); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("Register(%+v): expected ErrInvalidInput, got %v", reg, err)
		}
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	a, _ := newTestApp(t)
	mustRegister(t, a, "alice")

	_, wrongPassword := a.Login("alice", "nope")
	_, unknownUser := a.Login("mallory", "alice-pw")
	if !errors.Is(wrongPassword, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", wrongPassword)
	}
	if !errors.Is(unknownUser, ErrInvalidCredentials) {
		t.Fatalf("unknown user: expected ErrInvalidCredentials, got %v", unknownUser)
	}
	if wrongPassword.Error() != unknownUser.Error() {
		t.Fatalf("messages differ: %q vs %q", wrongPassword, unknownUser)
	}
}

func TestTokenResolvesUntilExpiry(t *testing.T) {
	a, clock := newTestApp(t)
	alice := mustRegister(t, a, "alice")

	token, err := a.Login("alice", "alice-pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	got, err := a.UserFromToken(token.AccessToken)
	if err != nil {
		t.Fatalf("resolve token: %v", err)
	}
	if got.ID != alice.ID || got.Username != "alice" {
		t.Fatalf("resolved %+v, want alice", got)
	}

	clock.Advance(29 * time.Minute)
	if _, err := a.UserFromToken(token.AccessToken); err != nil {
		t.Fatalf("expected token valid before expiry: %v", err)
	}
	clock.Advance(2 * time.Minute)
	if _, err := a.UserFromToken(token.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after expiry, got %v", err)
	}
}

func TestUserFromTokenRejectsGarbageAndForeignSecrets(t *testing.T) {
	a, _ := newTestApp(t)
	other, _ := newTestApp(t, func(c *Config) { c.JWTSecret = "another-secret" })
	mustRegister(t, a, "alice")
	mustRegister(t, other, "alice")

	foreign, err := other.Login("alice", "alice-pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	for _, token := range []string{"", "garbage", foreign.AccessToken} {
		if _, err := a.UserFromToken(token); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("token %q: expected ErrUnauthorized, got %v", token, err)
		}
	}
}

func TestUserFromTokenRejectsUnknownSubject(t *testing.T) {
	a, _ := newTestApp(t)
	token, err := a.sessions.NewSession("ghost")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, err := a.UserFromToken(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unknown subject, got %v", err)
	}
}

func TestLogoutIsStateless(t *testing.T) {
	a, _ := newTestApp(t)
	mustRegister(t, a, "alice")
	token, err := a.Login("alice", "alice-pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := a.Logout(token.AccessToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := a.UserFromToken(token.AccessToken); err != nil {
		t.Fatalf("token should remain valid until expiry: %v", err)
	}
}
