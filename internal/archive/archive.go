package archive

import (
	"context"
	"time"

	"promptgate/internal/domain"
)

// ExportOptions conveys upload destination metadata.
type ExportOptions struct {
	Bucket    string
	KeyPrefix string
}

// ObjectInfo describes a stored export object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified *time.Time
}

// Service persists swept usage records to remote object storage so the audit
// trail outlives the ledger's retention window.
type Service interface {
	ExportRecords(ctx context.Context, records []domain.UsageRecord, opts ExportOptions) (string, error)
	ListExports(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}
