package sweeper

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"promptgate/internal/archive"
	"promptgate/internal/domain"
)

type memoryUsageRepo struct {
	mu      sync.Mutex
	records []domain.UsageRecord
}

func (r *memoryUsageRepo) Init(context.Context) error { return nil }

func (r *memoryUsageRepo) FindActive(_ context.Context, sessionKey, ipAddress string, cutoff time.Time) (*domain.UsageRecord, error) {
	return nil, nil
}

func (r *memoryUsageRepo) Record(_ context.Context, rec *domain.UsageRecord) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *rec)
	return int64(len(r.records)), nil
}

func (r *memoryUsageRepo) ListBefore(_ context.Context, cutoff time.Time) ([]domain.UsageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []domain.UsageRecord
	for _, rec := range r.records {
		if !rec.CreatedAt.After(cutoff) {
			expired = append(expired, rec)
		}
	}
	return expired, nil
}

func (r *memoryUsageRepo) DeleteBefore(_ context.Context, cutoff time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []domain.UsageRecord
	for _, rec := range r.records {
		if rec.CreatedAt.After(cutoff) {
			kept = append(kept, rec)
		}
	}
	r.records = kept
	return nil
}

func (r *memoryUsageRepo) ClearAll(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
	return nil
}

func (r *memoryUsageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type memoryArchive struct {
	mu       sync.Mutex
	fail     bool
	exported []domain.UsageRecord
}

func (a *memoryArchive) ExportRecords(_ context.Context, records []domain.UsageRecord, _ archive.ExportOptions) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return "", errors.New("upload failed")
	}
	a.exported = append(a.exported, records...)
	return "s3://test/usage.json", nil
}

func (a *memoryArchive) ListExports(context.Context, string, string) ([]archive.ObjectInfo, error) {
	return nil, nil
}

func (a *memoryArchive) exportedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.exported)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestSweeper_ArchivesAndPurgesExpired(t *testing.T) {
	t.Parallel()

	repo := &memoryUsageRepo{}
	now := time.Now().UTC()
	repo.records = []domain.UsageRecord{
		{SessionKey: "old", Prompt: "p", CreatedAt: now.Add(-30 * time.Hour)},
		{SessionKey: "live", Prompt: "p", CreatedAt: now},
	}
	store := &memoryArchive{}

	s := New(Config{
		Retention:      24 * time.Hour,
		Interval:       10 * time.Millisecond,
		ArchiveOptions: archive.ExportOptions{Bucket: "test"},
		Logger:         quietLogger(),
	}, repo, store)

	s.Start(context.Background())
	defer s.Shutdown()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if repo.count() == 1 && store.exportedCount() == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("sweep did not purge: %d records remain, %d archived", repo.count(), store.exportedCount())
}

func TestSweeper_KeepsRecordsWhenArchiveFails(t *testing.T) {
	t.Parallel()

	repo := &memoryUsageRepo{}
	now := time.Now().UTC()
	repo.records = []domain.UsageRecord{
		{SessionKey: "old", Prompt: "p", CreatedAt: now.Add(-30 * time.Hour)},
	}
	store := &memoryArchive{fail: true}

	s := New(Config{
		Retention:      24 * time.Hour,
		Interval:       time.Hour,
		ArchiveOptions: archive.ExportOptions{Bucket: "test"},
		Logger:         quietLogger(),
	}, repo, store).(*sweeper)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	defer s.cancel()

	// a failed export must leave the rows in place for the next tick
	s.sweep()
	if repo.count() != 1 {
		t.Fatalf("expired record was deleted despite failed export, %d records remain", repo.count())
	}
	if store.exportedCount() != 0 {
		t.Fatalf("expected no exports, got %d", store.exportedCount())
	}

	// once the archive recovers the same rows are archived and purged
	store.mu.Lock()
	store.fail = false
	store.mu.Unlock()
	s.sweep()
	if repo.count() != 0 {
		t.Fatalf("expected record purged after successful export, %d remain", repo.count())
	}
	if store.exportedCount() != 1 {
		t.Fatalf("expected 1 exported record, got %d", store.exportedCount())
	}
}

func TestSweeper_ShutdownStopsLoop(t *testing.T) {
	t.Parallel()

	repo := &memoryUsageRepo{}
	s := New(Config{
		Retention: 24 * time.Hour,
		Interval:  10 * time.Millisecond,
		Logger:    quietLogger(),
	}, repo, nil)

	s.Start(context.Background())
	s.Shutdown()

	// a second shutdown is a no-op
	s.Shutdown()
}
