package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotClaimable is returned by ClaimForUpdate when the item is locked by
// another worker or already terminal.
var ErrNotClaimable = errors.New("notification: item not claimable")

// Repository defines the data access interface for the pending queue and the
// sent log.
type Repository interface {
	// SentSince reports a successful send of ruleID to recipientID at or
	// after since.
	SentSince(ctx context.Context, ruleID, recipientID uuid.UUID, since time.Time) (bool, error)
	HasOpenPending(ctx context.Context, ruleID, recipientID uuid.UUID, day time.Time) (bool, error)
	// Enqueue inserts p unless an open item exists for the same rule,
	// recipient and day. It reports whether a row was written.
	Enqueue(ctx context.Context, p *Pending) (bool, error)

	ListDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	// ClaimForUpdate row-locks an open item; it must run inside a
	// transaction.
	ClaimForUpdate(ctx context.Context, id uuid.UUID) (*Pending, error)
	Update(ctx context.Context, p *Pending) error
	AppendSentLog(ctx context.Context, l *SentLog) error

	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)

	ListPending(ctx context.Context, f Filter) ([]*Pending, int, error)
	ListSent(ctx context.Context, f Filter) ([]*SentLog, int, error)
	Stats(ctx context.Context, today time.Time) (*Stats, error)
}
