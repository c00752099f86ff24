package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"budget/internal/core"
	"budget/internal/ledger"
)

// DefaultSessionTTL is how long a session lives without activity (30 days).
const DefaultSessionTTL = 30 * 24 * time.Hour

// Store is the persistence the auth service needs.
type Store interface {
	ledger.UserStore
	ledger.SessionStore
}

// Identity is a resolved caller.
type Identity struct {
	UserID string
	Token  string
	// Renewed is set when the session expiry was pushed forward during resolution.
	Renewed   bool
	ExpiresAt time.Time
}

type Service struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewService(store Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{store: store, ttl: ttl, now: time.Now}
}

// TTL returns the session lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }

// Register creates a user account. A duplicate email fails with
// core.ErrDuplicateEmail and leaves the existing account untouched.
func (s *Service) Register(ctx context.Context, name, email, password string) (core.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))

	if name == "" {
		return core.User{}, core.NewValidationError("name", "name is required")
	}
	if email == "" {
		return core.User{}, core.NewValidationError("email", "email is required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return core.User{}, core.NewValidationError("email", "email is not valid")
	}
	if len(password) < MinPasswordLen {
		return core.User{}, core.NewValidationError("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLen))
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return core.User{}, core.ErrDuplicateEmail
	} else if !errors.Is(err, core.ErrNotFound) {
		return core.User{}, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return core.User{}, err
	}

	u, err := s.store.CreateUser(ctx, core.User{Name: name, Email: email, PasswordHash: hash})
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	slog.InfoContext(ctx, "User registered", "user_id", u.ID)
	return u, nil
}

// Login checks credentials and opens a session. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (core.User, core.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return core.User{}, core.Session{}, core.NewValidationError("", "email and password are required")
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, core.Session{}, core.ErrUnauthorized
	}
	if err != nil {
		return core.User{}, core.Session{}, err
	}
	if !CheckPassword(password, u.PasswordHash) {
		return core.User{}, core.Session{}, core.ErrUnauthorized
	}

	token, err := GenerateSessionToken()
	if err != nil {
		return core.User{}, core.Session{}, err
	}
	now := s.now().UTC()
	sess := core.Session{Token: token, UserID: u.ID, ExpiresAt: now.Add(s.ttl), LastActivity: now}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return core.User{}, core.Session{}, fmt.Errorf("create session: %w", err)
	}
	return u, sess, nil
}

// Authenticate resolves a session token to the caller identity. Sessions in
// the second half of their lifetime are renewed so active users stay signed in.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, core.ErrUnauthorized
	}
	now := s.now().UTC()
	sess, err := s.store.GetSession(ctx, token, now)
	if errors.Is(err, core.ErrNotFound) {
		return Identity{}, core.ErrUnauthorized
	}
	if err != nil {
		return Identity{}, err
	}

	id := Identity{UserID: sess.UserID, Token: token, ExpiresAt: sess.ExpiresAt}
	if sess.ExpiresAt.Sub(now) < s.ttl/2 {
		newExpiry := now.Add(s.ttl)
		if err := s.store.RenewSession(ctx, token, now, newExpiry); err != nil {
			// the current session is still valid, keep going
			slog.WarnContext(ctx, "Failed to renew session", "user_id", sess.UserID, "error", err)
		} else {
			id.Renewed = true
			id.ExpiresAt = newExpiry
		}
	}
	return id, nil
}

// User returns the account behind an identity.
func (s *Service) User(ctx context.Context, id Identity) (core.User, error) {
	return s.store.GetUserByID(ctx, id.UserID)
}

// Logout deletes the session. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	return s.store.DeleteSession(ctx, token)
}

// SweepExpired removes expired sessions.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSessions(ctx, s.now().UTC())
}
