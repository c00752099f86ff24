package sheets

import (
	"context"
	"fmt"
	"sync"

	"budget/internal/core"
	"budget/internal/ledger"
)

var _ ledger.TransactionExporter = (*Recorder)(nil)

// Recorder is an in-process exporter used when no spreadsheet is configured.
// It keeps rows in export order.
type Recorder struct {
	mu   sync.Mutex
	rows []core.Transaction
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Export(_ context.Context, t core.Transaction) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, row := range r.rows {
		if row.ID == t.ID {
			return fmt.Sprintf("mem:%d", i+1), nil
		}
	}
	r.rows = append(r.rows, t)
	return fmt.Sprintf("mem:%d", len(r.rows)), nil
}

func (r *Recorder) Remove(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, row := range r.rows {
		if row.ID == id {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

// Rows returns a copy of the exported transactions.
func (r *Recorder) Rows() []core.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Transaction(nil), r.rows...)
}
