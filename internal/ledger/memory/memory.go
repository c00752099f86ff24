package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"budget/internal/core"
	"budget/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

// Store keeps users, sessions and transactions in process memory. It is the
// default backend for tests and local runs without a database file.
type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	users    map[string]core.User
	byEmail  map[string]string
	sessions map[string]core.Session
	txs      map[string]core.Transaction
	seq      map[string]int64
	nextSeq  int64
}

func New() *Store {
	return &Store{
		now:      time.Now,
		users:    map[string]core.User{},
		byEmail:  map[string]string{},
		sessions: map[string]core.Session{},
		txs:      map[string]core.Transaction{},
		seq:      map[string]int64{},
	}
}

// Insert stores the transaction and returns it with a fresh id.
func (s *Store) Insert(_ context.Context, ownerID string, in core.NewTransaction) (core.Transaction, error) {
	now := s.now().UTC()
	in = in.Normalize(now)
	if err := in.Validate(ownerID); err != nil {
		return core.Transaction{}, err
	}
	t := core.Transaction{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Kind:        in.Kind,
		Amount:      in.Amount,
		Category:    in.Category,
		Description: in.Description,
		OccurredAt:  in.OccurredAt,
		CreatedAt:   now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[ownerID]; !ok {
		return core.Transaction{}, core.NewValidationError("owner", "unknown owner")
	}
	s.nextSeq++
	s.txs[t.ID] = t
	s.seq[t.ID] = s.nextSeq
	return t, nil
}

func (s *Store) ListByOwner(_ context.Context, ownerID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0)
	for _, t := range s.txs {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return s.seq[out[i].ID] > s.seq[out[j].ID]
	})
	return out, nil
}

func (s *Store) DeleteByIDForOwner(_ context.Context, id, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok || t.OwnerID != ownerID {
		return false, nil
	}
	delete(s.txs, id)
	delete(s.seq, id)
	return true, nil
}

// GetTransaction returns a transaction regardless of owner. It backs the
// export worker, which acts on ids taken from its own event stream.
func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, core.ErrNotFound
	}
	return t, nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[email]; taken {
		return core.User{}, core.ErrDuplicateEmail
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = email
	u.CreatedAt = s.now().UTC()
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

func (s *Store) CreateSession(_ context.Context, sess core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Token] = sess
	return nil
}

func (s *Store) GetSession(_ context.Context, token string, now time.Time) (core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok || !sess.ExpiresAt.After(now) {
		return core.Session{}, core.ErrNotFound
	}
	if _, ok := s.users[sess.UserID]; !ok {
		return core.Session{}, core.ErrNotFound
	}
	return sess, nil
}

func (s *Store) RenewSession(_ context.Context, token string, lastActivity, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return core.ErrNotFound
	}
	sess.LastActivity = lastActivity
	sess.ExpiresAt = expiresAt
	s.sessions[token] = sess
	return nil
}

func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for token, sess := range s.sessions {
		if !sess.ExpiresAt.After(now) {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
