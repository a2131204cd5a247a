package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/punchamoorthee/ledgerbank/internal/domain"
	"github.com/punchamoorthee/ledgerbank/internal/store"
)

const (
	DefaultInboxLimit = 50
	MaxInboxLimit     = 200
)

// Inbox is the owner-scoped view over a user's notifications.
type Inbox struct {
	store store.NotificationStore
}

func NewInbox(s store.NotificationStore) *Inbox {
	return &Inbox{store: s}
}

func (i *Inbox) List(ctx context.Context, userID uuid.UUID, status domain.NotificationStatus, limit int) ([]domain.Notification, error) {
	if userID == uuid.Nil {
		return nil, domain.ErrUnauthenticated
	}
	if status != "" && !status.Valid() {
		return nil, domain.Validation("status must be unread or read")
	}
	if limit <= 0 {
		limit = DefaultInboxLimit
	}
	if limit > MaxInboxLimit {
		limit = MaxInboxLimit
	}
	return i.store.ListNotifications(ctx, userID, status, limit)
}

func (i *Inbox) Mark(ctx context.Context, userID, id uuid.UUID, status domain.NotificationStatus) error {
	if userID == uuid.Nil {
		return domain.ErrUnauthenticated
	}
	if !status.Valid() {
		return domain.Validation("status must be unread or read")
	}
	return i.store.SetNotificationStatus(ctx, id, userID, status)
}

// MarkAllRead returns how many notifications changed.
func (i *Inbox) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, domain.ErrUnauthenticated
	}
	return i.store.MarkAllNotificationsRead(ctx, userID)
}

func (i *Inbox) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if userID == uuid.Nil {
		return domain.ErrUnauthenticated
	}
	return i.store.DeleteNotification(ctx, id, userID)
}
