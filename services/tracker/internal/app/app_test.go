package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"booktracker/pkg/domain"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestApp(t *testing.T, mutate ...func(*Config)) (*App, *testClock) {
	t.Helper()
	dir := t.TempDir()
	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	cfg := Config{
		DatabaseURL:        filepath.Join(dir, "books.db"),
		DBSlowThreshold:    500 * time.Millisecond,
		JWTSecret:          "test-secret",
		SessionTTL:         30 * time.Minute,
		BcryptCost:         4,
		StorageBackend:     "local",
		UploadDir:          filepath.Join(dir, "uploads"),
		PublicPDFDownloads: true,
		Now:                clock.Now,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a, clock
}

func mustRegister(t *testing.T, a *App, username string) domain.User {
	t.Helper()
	u, err := a.Register(Registration{Username: username, Password: username + "-pw"})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return u
}

func mustCreateBook(t *testing.T, a *App, owner domain.User, totalPages int) domain.Book {
	t.Helper()
	b, err := a.CreateBook(context.Background(), owner, NewBook{Title: "Dune", Author: "Herbert", TotalPages: totalPages})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	return b
}

func TestNewRequiresDatabaseAndSecret(t *testing.T) {
	dir := t.TempDir()
	if _, err := New(Config{JWTSecret: "s", UploadDir: dir}); err == nil {
		t.Fatalf("expected missing database url to fail")
	}
	if _, err := New(Config{DatabaseURL: filepath.Join(dir, "a.db"), UploadDir: dir}); err == nil {
		t.Fatalf("expected missing jwt secret to fail")
	}
	if _, err := New(Config{DatabaseURL: filepath.Join(dir, "b.db"), JWTSecret: "s", StorageBackend: "ftp"}); err == nil {
		t.Fatalf("expected unknown storage backend to fail")
	}
}

func TestEndToEndReadingFlow(t *testing.T) {
	a, _ := newTestApp(t)

	if _, err := a.Register(Registration{Username: "alice", Password: "pw"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	token, err := a.Login("alice", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token.TokenType != "bearer" || token.AccessToken == "" {
		t.Fatalf("unexpected token: %+v", token)
	}
	alice, err := a.UserFromToken(token.AccessToken)
	if err != nil {
		t.Fatalf("resolve token: %v", err)
	}
	book, err := a.CreateBook(context.Background(), alice, NewBook{Title: "Dune", Author: "Herbert", TotalPages: 200})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	if _, err := a.UpdateProgress(alice, book.ID, 200); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	got, err := a.GetProgress(alice, book.ID)
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if got.CurrentPage != 200 || !got.IsFinished {
		t.Fatalf("progress = %+v, want page 200 finished", got)
	}
}
