package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"budget/internal/amqp"
	"budget/internal/cache"
	"budget/internal/charts"
	"budget/internal/core"
	"budget/internal/ledger"
)

const dashboardLoadTimeout = 30 * time.Second

// EventPublisher announces transaction changes to downstream consumers.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, ev *amqp.TransactionEvent) error
}

// TransactionStore is the subset of the ledger the service needs.
type TransactionStore interface {
	ledger.TransactionWriter
	ledger.TransactionLister
	ledger.TransactionDeleter
}

// Period selects a calendar month. The zero value means all time.
type Period struct {
	Year  int
	Month int
}

// ParsePeriod reads optional year and month query values. Both must be
// present together.
func ParsePeriod(year, month string) (Period, error) {
	year, month = strings.TrimSpace(year), strings.TrimSpace(month)
	if year == "" && month == "" {
		return Period{}, nil
	}
	if year == "" || month == "" {
		return Period{}, core.NewValidationError("period", "year and month must be given together")
	}
	y, err := strconv.Atoi(year)
	if err != nil || y < 1 || y > 9999 {
		return Period{}, core.NewValidationError("year", "invalid year")
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return Period{}, core.NewValidationError("month", "month must be between 1 and 12")
	}
	return Period{Year: y, Month: m}, nil
}

func (p Period) IsZero() bool { return p.Year == 0 && p.Month == 0 }

func (p Period) String() string {
	if p.IsZero() {
		return "all"
	}
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

func (p Period) apply(txs []core.Transaction) []core.Transaction {
	if p.IsZero() {
		return txs
	}
	return core.FilterByMonth(txs, p.Year, p.Month)
}

// TransactionService orchestrates transaction operations across the store,
// the dashboard cache and the event queue.
type TransactionService struct {
	store      TransactionStore
	publisher  EventPublisher
	dashboards cache.Cache[core.Summary]
	group      singleflight.Group

	mu  sync.Mutex
	gen map[string]uint64
}

// NewTransactionService wires a service. publisher and dashboards may be nil.
func NewTransactionService(store TransactionStore, publisher EventPublisher, dashboards cache.Cache[core.Summary]) *TransactionService {
	return &TransactionService{
		store:      store,
		publisher:  publisher,
		dashboards: dashboards,
		gen:        make(map[string]uint64),
	}
}

// Create stores a transaction for ownerID. The dashboard cache is invalidated
// before returning so the caller's next read sees the new row.
func (s *TransactionService) Create(ctx context.Context, ownerID string, in core.NewTransaction) (core.Transaction, error) {
	tx, err := s.store.Insert(ctx, ownerID, in)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	s.invalidate(ownerID)

	slog.InfoContext(ctx, "Transaction created",
		"transaction_id", tx.ID,
		"owner_id", ownerID,
		"type", tx.Kind,
		"amount_cents", tx.Amount.Cents)

	// Don't fail the request - the transaction is saved locally
	if err := s.publish(ctx, amqp.NewCreatedEvent(tx.ID, ownerID)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish created event", "transaction_id", tx.ID, "error", err)
	}
	return tx, nil
}

// List returns ownerID's transactions, most recent first, optionally limited
// to one month.
func (s *TransactionService) List(ctx context.Context, ownerID string, p Period) ([]core.Transaction, error) {
	txs, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return p.apply(txs), nil
}

// Delete removes a transaction owned by ownerID. It reports false when the id
// does not exist or belongs to someone else.
func (s *TransactionService) Delete(ctx context.Context, ownerID, id string) (bool, error) {
	deleted, err := s.store.DeleteByIDForOwner(ctx, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete transaction: %w", err)
	}
	if !deleted {
		return false, nil
	}
	s.invalidate(ownerID)

	slog.InfoContext(ctx, "Transaction deleted", "transaction_id", id, "owner_id", ownerID)

	if err := s.publish(ctx, amqp.NewDeletedEvent(id, ownerID)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish deleted event", "transaction_id", id, "error", err)
	}
	return true, nil
}

// Dashboard aggregates ownerID's transactions for the period. Results are
// cached per owner and period; concurrent misses share one computation.
func (s *TransactionService) Dashboard(ctx context.Context, ownerID string, p Period) (core.Summary, error) {
	key := cacheKey(ownerID, p)
	if s.dashboards != nil {
		if summary, ok := s.dashboards.Get(key); ok {
			return summary, nil
		}
	}

	gen := s.generation(ownerID)
	ch := s.group.DoChan(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		// the flight is shared, so one caller going away must not fail the rest
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dashboardLoadTimeout)
		defer cancel()

		txs, err := s.List(loadCtx, ownerID, p)
		if err != nil {
			return nil, err
		}
		summary := core.Aggregate(txs)
		s.storeIfCurrent(ownerID, gen, key, summary)
		return summary, nil
	})

	select {
	case <-ctx.Done():
		return core.Summary{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return core.Summary{}, res.Err
		}
		return res.Val.(core.Summary), nil
	}
}

// DashboardChart renders the expense category breakdown as a PNG. It returns
// nil when the period has no expenses.
func (s *TransactionService) DashboardChart(ctx context.Context, ownerID string, p Period) ([]byte, error) {
	summary, err := s.Dashboard(ctx, ownerID, p)
	if err != nil {
		return nil, err
	}
	return charts.CategoryPie(summary)
}

func (s *TransactionService) publish(ctx context.Context, ev *amqp.TransactionEvent) error {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not configured, skipping event", "event", ev.Event)
		return nil
	}
	return s.publisher.PublishTransactionEvent(ctx, ev)
}

func (s *TransactionService) generation(ownerID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen[ownerID]
}

// storeIfCurrent caches summary unless a write for ownerID happened after
// gen was read. The check and the Set share s.mu with invalidate.
func (s *TransactionService) storeIfCurrent(ownerID string, gen uint64, key string, summary core.Summary) {
	if s.dashboards == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen[ownerID] == gen {
		s.dashboards.Set(key, summary)
	}
}

func (s *TransactionService) invalidate(ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen[ownerID]++
	if s.dashboards != nil {
		s.dashboards.DeletePrefix(ownerID + "|")
	}
}

func cacheKey(ownerID string, p Period) string {
	return ownerID + "|" + p.String()
}
