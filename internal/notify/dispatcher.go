// Package notify is the Notification Emitter. Money movements are queued
// after they commit and turned into notification rows by background
// workers; a failure here is logged and counted, never returned.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/ledgerbank/internal/domain"
)

var notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_notifications_total",
	Help: "Notifications processed, labeled by outcome",
}, []string{"outcome"})

const (
	TypeTransferSent     = "transfer_sent"
	TypeTransferReceived = "transfer_received"
	TypeTransaction      = "transaction"

	writeTimeout = 5 * time.Second
)

// Writer persists notification rows.
type Writer interface {
	InsertNotification(ctx context.Context, n *domain.Notification) error
}

// ProfileReader resolves the sender's display name.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
}

type job func(ctx context.Context) error

type Dispatcher struct {
	writer   Writer
	profiles ProfileReader
	log      *slog.Logger
	jobs     chan job
	workers  int
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

func NewDispatcher(w Writer, p ProfileReader, workers, queue int, log *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		writer:   w,
		profiles: p,
		log:      log,
		jobs:     make(chan job, queue),
		workers:  workers,
	}
}

func (d *Dispatcher) Start() {
	d.log.Info("Notification workers started", "workers", d.workers)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				d.run(j)
			}
		}()
	}
}

// Close stops accepting work and waits for queued jobs to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := j(ctx); err != nil {
		notificationsTotal.WithLabelValues("failed").Inc()
		d.log.Error("Notification failed", "error", err)
	}
}

// enqueue never blocks: when the queue is full the job is dropped.
func (d *Dispatcher) enqueue(j job) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		notificationsTotal.WithLabelValues("dropped").Inc()
		return
	}
	select {
	case d.jobs <- j:
	default:
		notificationsTotal.WithLabelValues("dropped").Inc()
		d.log.Warn("Notification queue full, dropping notification")
	}
}

func (d *Dispatcher) NotifyTransfer(n domain.TransferNotice) {
	d.enqueue(func(ctx context.Context) error {
		return d.writeTransfer(ctx, n)
	})
}

func (d *Dispatcher) NotifyTransaction(t domain.Transaction, account domain.Account) {
	d.enqueue(func(ctx context.Context) error {
		return d.write(ctx, TransactionNotification(t, account))
	})
}

func (d *Dispatcher) writeTransfer(ctx context.Context, n domain.TransferNotice) error {
	senderName := n.Source.Name
	if d.profiles != nil {
		p, err := d.profiles.GetProfile(ctx, n.SenderID)
		if err == nil && p.FullName != "" {
			senderName = p.FullName
		} else if err != nil {
			d.log.Warn("Sender profile unavailable", "user_id", n.SenderID, "error", err)
		}
	}
	sent, received := TransferNotifications(n, senderName)
	// Each party's notification is independent; one failing does not stop
	// the other.
	errSent := d.write(ctx, sent)
	errReceived := d.write(ctx, received)
	if errSent != nil {
		return errSent
	}
	return errReceived
}

func (d *Dispatcher) write(ctx context.Context, n *domain.Notification) error {
	if err := d.writer.InsertNotification(ctx, n); err != nil {
		return fmt.Errorf("insert %s notification for %s: %w", n.Type, n.UserID, err)
	}
	notificationsTotal.WithLabelValues("written").Inc()
	return nil
}

// TransferNotifications builds the sender's "sent" and the receiver's
// "received" notifications for one transfer.
func TransferNotifications(n domain.TransferNotice, senderName string) (sent, received *domain.Notification) {
	amount := domain.FormatMoney(n.Result.Amount)
	currency := n.Source.Currency
	ref := n.Result.Reference

	sent = &domain.Notification{
		UserID: n.SenderID,
		Type:   TypeTransferSent,
		Title:  "Money sent",
		Message: fmt.Sprintf("You sent %s %s to %s (%s). Reference: %s",
			amount, currency, n.Destination.Name, n.Destination.MaskedNumber(), ref),
		Data: payload(domain.NotificationData{
			Amount:               amount,
			Currency:             currency,
			CounterpartyName:     n.Destination.Name,
			CounterpartyAccount:  n.Destination.MaskedNumber(),
			TransactionReference: ref,
			Timestamp:            n.CreatedAt,
		}),
		Status: domain.NotificationUnread,
	}
	received = &domain.Notification{
		UserID: n.Destination.UserID,
		Type:   TypeTransferReceived,
		Title:  "Money received",
		Message: fmt.Sprintf("You received %s %s from %s. Reference: %s",
			amount, currency, senderName, ref),
		Data: payload(domain.NotificationData{
			Amount:               amount,
			Currency:             currency,
			CounterpartyName:     senderName,
			CounterpartyAccount:  n.Source.MaskedNumber(),
			TransactionReference: ref,
			Timestamp:            n.CreatedAt,
		}),
		Status: domain.NotificationUnread,
	}
	return sent, received
}

// TransactionNotification describes a single-sided entry to its owner.
func TransactionNotification(t domain.Transaction, account domain.Account) *domain.Notification {
	amount := domain.FormatMoney(t.Amount)
	verb, title := "credited to", "Account credited"
	if t.Type.IsExpense() {
		verb, title = "debited from", "Account debited"
	}
	return &domain.Notification{
		UserID: t.UserID,
		Type:   TypeTransaction,
		Title:  title,
		Message: fmt.Sprintf("%s %s was %s %s (%s). Reference: %s",
			amount, t.Currency, verb, account.Name, account.MaskedNumber(), t.Reference),
		Data: payload(domain.NotificationData{
			Amount:               amount,
			Currency:             t.Currency,
			CounterpartyName:     account.Name,
			CounterpartyAccount:  account.MaskedNumber(),
			TransactionReference: t.Reference,
			Timestamp:            t.CreatedAt,
		}),
		Status: domain.NotificationUnread,
	}
}

func payload(data domain.NotificationData) json.RawMessage {
	b, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	return b
}
