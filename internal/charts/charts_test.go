package charts

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget/internal/core"
)

func cents(c int64) core.Money { return core.Money{Cents: c} }

func TestCategoryValuesEmpty(t *testing.T) {
	assert.Nil(t, CategoryValues(core.Aggregate(nil)))

	png, err := CategoryPie(core.Aggregate(nil))
	require.NoError(t, err)
	assert.Nil(t, png)
}

func TestCategoryValuesFoldsSmallCategories(t *testing.T) {
	s := core.Summary{
		TotalExpense: cents(100000),
		CategoryTotals: map[string]core.Money{
			"rent":  cents(70000),
			"food":  cents(29950),
			"gum":   cents(50),
			"empty": cents(0),
		},
	}

	values := CategoryValues(s)
	require.Len(t, values, 3)
	assert.Equal(t, 700.0, values[0].Value)
	assert.Contains(t, values[0].Label, "rent")
	assert.Equal(t, 299.5, values[1].Value)
	assert.Contains(t, values[2].Label, "other")
	assert.Equal(t, 0.5, values[2].Value)
}

func TestCategoryPieRendersPNG(t *testing.T) {
	s := core.Summary{
		TotalExpense:   cents(3000),
		CategoryTotals: map[string]core.Money{"food": cents(2000), "fuel": cents(1000)},
	}

	png, err := CategoryPie(s)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}
