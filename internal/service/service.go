// Package service holds the ledger's business operations: the transfer
// orchestrator, account lifecycle, single-sided transactions, statements
// and the consistency audit.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/ledgerbank/internal/domain"
	"github.com/punchamoorthee/ledgerbank/internal/store"
)

var (
	transfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transfers_total",
		Help: "Transfers processed, labeled by outcome",
	}, []string{"outcome"})

	txConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_tx_conflicts_total",
		Help: "Account version conflicts that caused a retry",
	})
)

// Notifier receives committed money movements. Implementations must not
// block and must not report failure back to the caller.
type Notifier interface {
	NotifyTransfer(n domain.TransferNotice)
	NotifyTransaction(t domain.Transaction, account domain.Account)
}

type noopNotifier struct{}

func (noopNotifier) NotifyTransfer(domain.TransferNotice) {}
func (noopNotifier) NotifyTransaction(domain.Transaction, domain.Account) {}

type Ledger struct {
	store    store.Store
	notifier Notifier
	log      *slog.Logger
	retries  int
	now      func() time.Time
}

type Option func(*Ledger)

func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithRetries sets how many times a unit of work is attempted when it loses
// a version race.
func WithRetries(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.retries = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func NewLedger(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:    s,
		notifier: noopNotifier{},
		log:      slog.Default(),
		retries:  3,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// inTx runs fn in a store transaction, retrying on version conflicts.
func (l *Ledger) inTx(ctx context.Context, fn func(store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= l.retries; attempt++ {
		err = l.store.WithTx(ctx, fn)
		if !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		txConflictsTotal.Inc()
		l.log.Debug("Version conflict, retrying", "attempt", attempt)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return domain.ErrRetriesExhausted
}
