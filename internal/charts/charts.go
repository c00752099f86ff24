// Package charts renders dashboard images.
package charts

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"

	"budget/internal/core"
)

const (
	width  = 900
	height = 600
	// categories below this share of total expenses are folded into "other"
	minShare = 0.01
)

// CategoryValues turns a summary into pie slices, largest first. Tiny
// categories are merged into a single "other" slice. Zero-valued categories
// are skipped since a pie cannot draw them.
func CategoryValues(s core.Summary) []chart.Value {
	total := s.TotalExpense.Float()
	if total <= 0 {
		return nil
	}

	var values []chart.Value
	var other float64
	for _, cat := range s.SortedCategories() {
		amount := cat.Amount.Float()
		if amount <= 0 {
			continue
		}
		share := amount / total
		if share < minShare {
			other += amount
			continue
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s: %s (%.1f%%)", cat.Name, cat.Amount, share*100),
			Value: amount,
		})
	}
	if other > 0 {
		values = append(values, chart.Value{
			Label: fmt.Sprintf("other (%.1f%%)", other/total*100),
			Value: other,
		})
	}
	return values
}

// CategoryPie renders the expense breakdown as a PNG. It returns nil, nil
// when there is nothing to draw.
func CategoryPie(s core.Summary) ([]byte, error) {
	values := CategoryValues(s)
	if len(values) == 0 {
		return nil, nil
	}

	pie := chart.PieChart{
		Width:  width,
		Height: height,
		Values: values,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    40,
				Left:   40,
				Right:  40,
				Bottom: 40,
			},
			FillColor: chart.ColorWhite,
		},
	}

	buffer := bytes.NewBuffer(nil)
	if err := pie.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("render category pie: %w", err)
	}
	return buffer.Bytes(), nil
}
