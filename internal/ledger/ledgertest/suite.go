// Package ledgertest holds the behavioural test suite every ledger.Store
// implementation must pass.
package ledgertest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget/internal/core"
	"budget/internal/ledger"
)

// Run exercises newStore against the store contract. newStore must return an
// empty store on every call.
func Run(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	t.Run("InsertThenListOnce", func(t *testing.T) { testInsertThenList(t, newStore(t)) })
	t.Run("InsertValidation", func(t *testing.T) { testInsertValidation(t, newStore(t)) })
	t.Run("UnknownOwner", func(t *testing.T) { testUnknownOwner(t, newStore(t)) })
	t.Run("RecencyOrder", func(t *testing.T) { testRecencyOrder(t, newStore(t)) })
	t.Run("OwnershipIsolation", func(t *testing.T) { testOwnershipIsolation(t, newStore(t)) })
	t.Run("DeleteMissing", func(t *testing.T) { testDeleteMissing(t, newStore(t)) })
	t.Run("DuplicateEmail", func(t *testing.T) { testDuplicateEmail(t, newStore(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newStore(t)) })
	t.Run("ConcurrentInserts", func(t *testing.T) { testConcurrentInserts(t, newStore(t)) })
}

func mustUser(t *testing.T, s ledger.Store, email string) core.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), core.User{Name: "n", Email: email, PasswordHash: "h"})
	require.NoError(t, err)
	return u
}

func testInsertThenList(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "a@example.com")

	created, err := s.Insert(ctx, u.ID, core.NewTransaction{
		Kind: core.Expense, Amount: core.Money{Cents: 1250}, Category: "food", Description: "lunch",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, u.ID, created.OwnerID)
	assert.False(t, created.OccurredAt.IsZero(), "occurredAt defaults to creation time")

	list, err := s.ListByOwner(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	got := list[0]
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, core.Expense, got.Kind)
	assert.Equal(t, int64(1250), got.Amount.Cents)
	assert.Equal(t, "food", got.Category)
	assert.Equal(t, "lunch", got.Description)
	assert.WithinDuration(t, created.OccurredAt, got.OccurredAt, time.Millisecond)
}

func testInsertValidation(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "v@example.com")
	bad := []struct {
		owner string
		tx    core.NewTransaction
	}{
		{"", core.NewTransaction{Kind: core.Income, Amount: core.Money{Cents: 1}}},
		{u.ID, core.NewTransaction{Kind: "transfer", Amount: core.Money{Cents: 1}}},
		{u.ID, core.NewTransaction{Kind: core.Income, Amount: core.Money{Cents: -1}}},
		{u.ID, core.NewTransaction{Kind: core.Expense, Amount: core.Money{Cents: 1}}},
	}
	for _, b := range bad {
		_, err := s.Insert(ctx, b.owner, b.tx)
		assert.ErrorIs(t, err, core.ErrValidation)
	}
	list, err := s.ListByOwner(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testUnknownOwner(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	_, err := s.Insert(ctx, "ghost", core.NewTransaction{Kind: core.Income, Amount: core.Money{Cents: 1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)

	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "owner", verr.Field)

	list, err := s.ListByOwner(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testRecencyOrder(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "r@example.com")
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, d := range []int{2, 0, 5, 1} {
		_, err := s.Insert(ctx, u.ID, core.NewTransaction{
			Kind: core.Income, Amount: core.Money{Cents: int64(d)}, OccurredAt: base.AddDate(0, 0, d),
		})
		require.NoError(t, err)
	}
	list, err := s.ListByOwner(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 4)
	var got []int64
	for _, tx := range list {
		got = append(got, tx.Amount.Cents)
	}
	assert.Equal(t, []int64{5, 2, 1, 0}, got)
}

func testOwnershipIsolation(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice@example.com")
	bob := mustUser(t, s, "bob@example.com")

	tx, err := s.Insert(ctx, alice.ID, core.NewTransaction{Kind: core.Expense, Amount: core.Money{Cents: 100}, Category: "rent"})
	require.NoError(t, err)

	bobList, err := s.ListByOwner(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, bobList)

	ok, err := s.DeleteByIDForOwner(ctx, tx.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	aliceList, err := s.ListByOwner(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, aliceList, 1)

	ok, err = s.DeleteByIDForOwner(ctx, tx.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	aliceList, err = s.ListByOwner(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, aliceList)
}

func testDeleteMissing(t *testing.T, s ledger.Store) {
	u := mustUser(t, s, "m@example.com")
	ok, err := s.DeleteByIDForOwner(context.Background(), "does-not-exist", u.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testDuplicateEmail(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	first, err := s.CreateUser(ctx, core.User{Name: "First", Email: "dup@example.com", PasswordHash: "hash-1"})
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, core.User{Name: "Second", Email: " DUP@example.com ", PasswordHash: "hash-2"})
	assert.ErrorIs(t, err, core.ErrDuplicateEmail)

	stored, err := s.GetUserByEmail(ctx, "dup@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
	assert.Equal(t, "hash-1", stored.PasswordHash)
	assert.Equal(t, "First", stored.Name)

	byID, err := s.GetUserByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "dup@example.com", byID.Email)

	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testSessions(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "s@example.com")
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.CreateSession(ctx, core.Session{Token: "live", UserID: u.ID, ExpiresAt: now.Add(time.Hour), LastActivity: now}))
	require.NoError(t, s.CreateSession(ctx, core.Session{Token: "dead", UserID: u.ID, ExpiresAt: now.Add(-time.Minute), LastActivity: now}))

	got, err := s.GetSession(ctx, "live", now)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.UserID)

	_, err = s.GetSession(ctx, "dead", now)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.GetSession(ctx, "unknown", now)
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, s.RenewSession(ctx, "live", now, now.Add(48*time.Hour)))
	got, err = s.GetSession(ctx, "live", now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(48*time.Hour), got.ExpiresAt, time.Second)

	n, err := s.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.DeleteSession(ctx, "live"))
	_, err = s.GetSession(ctx, "live", now)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testConcurrentInserts(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "c@example.com")

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Insert(ctx, u.ID, core.NewTransaction{Kind: core.Income, Amount: core.Money{Cents: 1}})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	list, err := s.ListByOwner(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, list, n)
	assert.Equal(t, int64(n), core.Aggregate(list).TotalIncome.Cents)
}
