package repository

import (
	"context"
	"time"
)

// ExpiryRepository drops rows that can no longer be used.
type ExpiryRepository interface {
	// PurgeExpired removes spent or expired tokens and handshakes as of now,
	// and login failures older than failuresBefore. It returns the rows removed.
	PurgeExpired(ctx context.Context, now, failuresBefore time.Time) (int64, error)
}
