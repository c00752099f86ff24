// Package ledger defines the outbound ports of the application. Every
// transaction operation takes the owner id as an explicit argument; no store
// call ever reads the caller identity from ambient state.
package ledger

import (
	"context"
	"time"

	"budget/internal/core"
)

// Ports for outbound adapters.
type (
	TransactionWriter interface {
		// Insert validates and stores a transaction for ownerID.
		Insert(ctx context.Context, ownerID string, t core.NewTransaction) (core.Transaction, error)
	}

	TransactionLister interface {
		// ListByOwner returns ownerID's transactions, most recent occurrence first.
		ListByOwner(ctx context.Context, ownerID string) ([]core.Transaction, error)
	}

	TransactionDeleter interface {
		// DeleteByIDForOwner removes the transaction only when it belongs to
		// ownerID. It reports false, without error, when no such record exists.
		DeleteByIDForOwner(ctx context.Context, id, ownerID string) (bool, error)
	}

	UserStore interface {
		// CreateUser fails with core.ErrDuplicateEmail when the email is taken.
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		GetUserByID(ctx context.Context, id string) (core.User, error)
	}

	SessionStore interface {
		CreateSession(ctx context.Context, s core.Session) error
		// GetSession returns core.ErrNotFound for unknown or expired tokens.
		GetSession(ctx context.Context, token string, now time.Time) (core.Session, error)
		RenewSession(ctx context.Context, token string, lastActivity, expiresAt time.Time) error
		DeleteSession(ctx context.Context, token string) error
		DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	}

	// TransactionExporter mirrors transactions to an external ledger.
	TransactionExporter interface {
		Export(ctx context.Context, t core.Transaction) (ref string, err error)
		Remove(ctx context.Context, id string) error
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}
)

// Store is everything the API server needs from a backend.
type Store interface {
	TransactionWriter
	TransactionLister
	TransactionDeleter
	UserStore
	SessionStore
	Pinger
}
