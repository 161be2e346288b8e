package app

import (
	"errors"
	"fmt"
	"strings"

	"booktracker/pkg/domain"
	"booktracker/pkg/store"
)

const (
	maxUsernameLen = 50
	maxEmailLen    = 100
	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
)

// Registration is the input of Register. Email is optional.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// Token is the bearer credential issued by Login.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Register creates a user with a bcrypt-hashed password. When no email is
// given a placeholder derived from the username is stored.
func (a *App) Register(reg Registration) (domain.User, error) {
	username := strings.TrimSpace(reg.Username)
	email := strings.TrimSpace(strings.ToLower(reg.Email))
	if username == "" || reg.Password == "" {
		return domain.User{}, invalidf("username and password required")
	}
	if len(username) > maxUsernameLen {
		return domain.User{}, invalidf("username must be at most %d characters", maxUsernameLen)
	}
	if len(reg.Password) > maxPasswordBytes {
		return domain.User{}, invalidf("password must be at most %d bytes", maxPasswordBytes)
	}
	explicitEmail := email != ""
	if explicitEmail {
		if len(email) > maxEmailLen {
			return domain.User{}, invalidf("email must be at most %d characters", maxEmailLen)
		}
		if !strings.Contains(email, "@") {
			return domain.User{}, invalidf("email is not valid")
		}
		// The placeholder domain is reserved so placeholders never collide.
		if strings.HasSuffix(email, "@"+strings.ToLower(a.emailDomain)) {
			return domain.User{}, invalidf("email domain %s is reserved", a.emailDomain)
		}
	} else {
		email = a.placeholderEmail(username)
	}

	exists, err := a.store.HasUsername(username)
	if err != nil {
		return domain.User{}, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return domain.User{}, ErrUsernameTaken
	}
	if explicitEmail {
		taken, err := a.store.HasUserEmail(email)
		if err != nil {
			return domain.User{}, fmt.Errorf("check email: %w", err)
		}
		if taken {
			return domain.User{}, ErrEmailTaken
		}
	}

	passwordHash, err := a.hasher.HashPassword(reg.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := a.store.CreateUser(domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    a.now().UTC(),
	})
	if err != nil {
		// Lost a race with a concurrent registration.
		if errors.Is(err, store.ErrDuplicate) {
			return domain.User{}, a.duplicateUserError(username)
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and issues a bearer token whose subject is the
// username. Unknown users and wrong passwords fail identically.
func (a *App) Login(username, password string) (Token, error) {
	username = strings.TrimSpace(username)
	user, ok, err := a.store.GetUserByUsername(username)
	if err != nil {
		return Token{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		a.hasher.CheckPassword(password, a.dummyHash)
		return Token{}, ErrInvalidCredentials
	}
	if !a.hasher.CheckPassword(password, user.PasswordHash) {
		return Token{}, ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.Username)
	if err != nil {
		return Token{}, fmt.Errorf("issue token: %w", err)
	}
	return Token{AccessToken: token, TokenType: "bearer"}, nil
}

// UserFromToken resolves a bearer token to its user. Any failure, including
// a subject that no longer names a user, yields ErrUnauthorized.
func (a *App) UserFromToken(token string) (domain.User, error) {
	username, err := a.sessions.SubjectFromToken(token)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	user, found, err := a.store.GetUserByUsername(username)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !found {
		return domain.User{}, ErrUnauthorized
	}
	return user, nil
}

// Logout acknowledges a logout. Tokens are stateless and stay valid until
// they expire.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// placeholderEmail keeps the username's case: usernames are unique
// case-sensitively, so placeholders are too.
func (a *App) placeholderEmail(username string) string {
	return username + "@" + a.emailDomain
}

func (a *App) duplicateUserError(username string) error {
	if exists, err := a.store.HasUsername(username); err == nil && exists {
		return ErrUsernameTaken
	}
	return ErrEmailTaken
}
