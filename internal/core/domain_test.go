package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	assert.Equal(t, Income, ParseKind(" Income "))
	assert.Equal(t, Expense, ParseKind("EXPENSE"))
	assert.False(t, ParseKind("refund").Valid())
	assert.False(t, ParseKind("").Valid())
}

func TestNewTransactionValidate(t *testing.T) {
	good := NewTransaction{Kind: Expense, Amount: Money{Cents: 100}, Category: "food"}
	require.NoError(t, good.Validate("u1"))

	incomeNoCategory := NewTransaction{Kind: Income, Amount: Money{Cents: 100}}
	require.NoError(t, incomeNoCategory.Validate("u1"))

	zero := NewTransaction{Kind: Income, Amount: Money{}}
	require.NoError(t, zero.Validate("u1"))

	cases := []struct {
		name  string
		owner string
		tx    NewTransaction
		field string
	}{
		{"missing owner", "", good, "owner"},
		{"blank owner", "   ", good, "owner"},
		{"bad kind", "u1", NewTransaction{Kind: "refund", Amount: Money{Cents: 1}, Category: "x"}, "type"},
		{"negative amount", "u1", NewTransaction{Kind: Income, Amount: Money{Cents: -1}}, "amount"},
		{"expense without category", "u1", NewTransaction{Kind: Expense, Amount: Money{Cents: 1}}, "category"},
		{"long category", "u1", NewTransaction{Kind: Expense, Amount: Money{Cents: 1}, Category: strings.Repeat("c", 65)}, "category"},
		{"long description", "u1", NewTransaction{Kind: Income, Amount: Money{Cents: 1}, Description: strings.Repeat("d", 201)}, "description"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tx.Validate(tc.owner)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestNewTransactionNormalize(t *testing.T) {
	now := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	n := NewTransaction{Kind: " Expense", Category: " food ", Description: " lunch "}.Normalize(now)
	assert.Equal(t, Expense, n.Kind)
	assert.Equal(t, "food", n.Category)
	assert.Equal(t, "lunch", n.Description)
	assert.Equal(t, now, n.OccurredAt)

	when := time.Date(2024, 12, 31, 23, 0, 0, 0, time.FixedZone("X", 3600))
	n = NewTransaction{Kind: Income, OccurredAt: when}.Normalize(now)
	assert.True(t, n.OccurredAt.Equal(when))
	assert.Equal(t, time.UTC, n.OccurredAt.Location())
}

func TestFilterByMonth(t *testing.T) {
	txs := []Transaction{
		{ID: "a", OccurredAt: time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC)},
		{ID: "b", OccurredAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "c", OccurredAt: time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)},
	}
	got := FilterByMonth(txs, 2025, 2)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
	assert.Empty(t, FilterByMonth(nil, 2025, 2))
}
