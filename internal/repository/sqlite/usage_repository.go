package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"promptgate/internal/domain"
	"promptgate/internal/repository"
)

const createUsageTable = `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_key TEXT NOT NULL DEFAULT '',
	ip_address TEXT NOT NULL DEFAULT '',
	fingerprint TEXT NOT NULL DEFAULT '',
	prompt TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_session_created ON usage_records (session_key, created_at);
CREATE INDEX IF NOT EXISTS idx_usage_ip_created ON usage_records (ip_address, created_at);
CREATE INDEX IF NOT EXISTS idx_usage_created ON usage_records (created_at);
`

type UsageRepository struct {
	db *sql.DB
}

func NewUsageRepository(db *sql.DB) repository.UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createUsageTable); err != nil {
		return fmt.Errorf("create usage table: %w", err)
	}
	return nil
}

func (r *UsageRepository) FindActive(ctx context.Context, sessionKey, ipAddress string, cutoff time.Time) (*domain.UsageRecord, error) {
	// empty keys must not match anything, hence the <> '' guards
	row := r.db.QueryRowContext(ctx, `
SELECT id, session_key, ip_address, fingerprint, prompt, created_at
FROM usage_records
WHERE created_at > ?
  AND ((session_key <> '' AND session_key = ?) OR (ip_address <> '' AND ip_address = ?))
ORDER BY created_at DESC
LIMIT 1`,
		cutoff,
		sessionKey,
		ipAddress,
	)

	rec, err := scanUsage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (r *UsageRepository) Record(ctx context.Context, rec *domain.UsageRecord) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
INSERT INTO usage_records (session_key, ip_address, fingerprint, prompt, created_at)
VALUES (?, ?, ?, ?, ?)`,
		rec.SessionKey,
		rec.IPAddress,
		rec.Fingerprint,
		rec.Prompt,
		rec.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert usage record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("usage last insert id: %w", err)
	}
	rec.ID = id
	return id, nil
}

func (r *UsageRepository) ListBefore(ctx context.Context, cutoff time.Time) ([]domain.UsageRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, session_key, ip_address, fingerprint, prompt, created_at
FROM usage_records
WHERE created_at <= ?`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("select expired usage records: %w", err)
	}
	defer rows.Close()

	var expired []domain.UsageRecord
	for rows.Next() {
		rec, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired usage records: %w", err)
	}
	return expired, nil
}

func (r *UsageRepository) DeleteBefore(ctx context.Context, cutoff time.Time) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM usage_records WHERE created_at <= ?`, cutoff); err != nil {
		return fmt.Errorf("delete expired usage records: %w", err)
	}
	return nil
}

func (r *UsageRepository) ClearAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM usage_records`); err != nil {
		return fmt.Errorf("clear usage records: %w", err)
	}
	return nil
}

func scanUsage(row interface {
	Scan(dest ...any) error
}) (*domain.UsageRecord, error) {
	var rec domain.UsageRecord
	if err := row.Scan(
		&rec.ID,
		&rec.SessionKey,
		&rec.IPAddress,
		&rec.Fingerprint,
		&rec.Prompt,
		&rec.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan usage record: %w", err)
	}
	return &rec, nil
}
