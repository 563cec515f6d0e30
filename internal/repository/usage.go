package repository

import (
	"context"
	"time"

	"promptgate/internal/domain"
)

// UsageRepository defines persistence operations for anonymous usage records.
type UsageRepository interface {
	Init(ctx context.Context) error
	// FindActive returns the newest record created after cutoff whose session
	// key or IP address matches, or nil when none exists. Empty keys never
	// match.
	FindActive(ctx context.Context, sessionKey, ipAddress string, cutoff time.Time) (*domain.UsageRecord, error)
	Record(ctx context.Context, rec *domain.UsageRecord) (int64, error)
	// ListBefore returns records created at or before cutoff so callers can
	// archive them ahead of deletion.
	ListBefore(ctx context.Context, cutoff time.Time) ([]domain.UsageRecord, error)
	// DeleteBefore removes records created at or before cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) error
	ClearAll(ctx context.Context) error
}
