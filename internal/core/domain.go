package core

import (
	"strings"
	"time"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

const (
	MaxDescriptionLen = 200
	MaxCategoryLen    = 64
)

type (
	// Kind discriminates income from expense transactions.
	Kind string

	User struct {
		ID           string
		Name         string
		Email        string
		PasswordHash string
		CreatedAt    time.Time
	}

	Transaction struct {
		ID          string
		OwnerID     string
		Kind        Kind
		Amount      Money
		Category    string
		Description string
		OccurredAt  time.Time
		CreatedAt   time.Time
	}

	// NewTransaction is the caller-supplied part of a transaction. The owner is
	// never part of it; stores receive the owner id as a separate argument.
	NewTransaction struct {
		Kind        Kind
		Amount      Money
		Category    string
		Description string
		OccurredAt  time.Time
	}

	Session struct {
		Token        string
		UserID       string
		ExpiresAt    time.Time
		LastActivity time.Time
	}
)

// ParseKind normalises a client supplied kind. Unknown values are returned
// as-is so that Valid can reject them.
func ParseKind(s string) Kind {
	return Kind(strings.ToLower(strings.TrimSpace(s)))
}

// Valid reports whether k is income or expense.
func (k Kind) Valid() bool {
	return k == Income || k == Expense
}

func (k Kind) String() string {
	return string(k)
}

// Normalize trims free-text fields and applies the creation-time default for
// OccurredAt.
func (t NewTransaction) Normalize(now time.Time) NewTransaction {
	t.Kind = ParseKind(string(t.Kind))
	t.Category = strings.TrimSpace(t.Category)
	t.Description = strings.TrimSpace(t.Description)
	if t.OccurredAt.IsZero() {
		t.OccurredAt = now
	}
	t.OccurredAt = t.OccurredAt.UTC()
	return t
}

// Validate checks a transaction about to be stored for ownerID.
func (t NewTransaction) Validate(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return NewValidationError("owner", "owner is required")
	}
	if !t.Kind.Valid() {
		return NewValidationError("type", "type must be income or expense")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.Kind == Expense && t.Category == "" {
		return NewValidationError("category", "category is required for expenses")
	}
	if len(t.Category) > MaxCategoryLen {
		return NewValidationError("category", "category too long (max 64 characters)")
	}
	if len(t.Description) > MaxDescriptionLen {
		return NewValidationError("description", "description too long (max 200 characters)")
	}
	return nil
}

// InMonth reports whether the transaction occurred in the given calendar month (UTC).
func (t Transaction) InMonth(year, month int) bool {
	occurred := t.OccurredAt.UTC()
	return occurred.Year() == year && int(occurred.Month()) == month
}

// FilterByMonth returns the transactions that occurred in year/month, keeping order.
func FilterByMonth(txs []Transaction, year, month int) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if t.InMonth(year, month) {
			out = append(out, t)
		}
	}
	return out
}
