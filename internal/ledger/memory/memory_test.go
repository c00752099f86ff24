package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget/internal/core"
	"budget/internal/ledger"
	"budget/internal/ledger/ledgertest"
)

func TestStoreContract(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store { return New() })
}

func TestGetTransaction(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, err := s.CreateUser(ctx, core.User{Name: "n", Email: "n@example.com", PasswordHash: "h"})
	require.NoError(t, err)
	tx, err := s.Insert(ctx, u.ID, core.NewTransaction{Kind: core.Income, Amount: core.Money{Cents: 5}})
	require.NoError(t, err)

	got, err := s.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx, got)

	_, err = s.GetTransaction(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
