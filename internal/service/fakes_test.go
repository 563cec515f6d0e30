package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"promptgate/internal/domain"
)

// in-memory repositories mirroring the sqlite implementations' contracts

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  []domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{nextID: 1}
}

func (r *fakeUserRepo) Init(context.Context) error { return nil }

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username || u.Email == user.Email {
			return 0, fmt.Errorf("user already exists")
		}
	}
	user.ID = r.nextID
	user.CreatedAt = time.Now().UTC()
	r.nextID++
	r.users = append(r.users, *user)
	return user.ID, nil
}

func (r *fakeUserRepo) GetByUsernameOrEmail(_ context.Context, login string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == login || u.Email == login {
			copied := u
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("user not found")
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			copied := u
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("user not found")
}

func (r *fakeUserRepo) UpdateLastLogin(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.users {
		if r.users[i].ID == id {
			now := time.Now().UTC()
			r.users[i].LastLoginAt = &now
			return nil
		}
	}
	return fmt.Errorf("user not found")
}

type fakeUsageRepo struct {
	mu      sync.Mutex
	nextID  int64
	records []domain.UsageRecord
}

func newFakeUsageRepo() *fakeUsageRepo {
	return &fakeUsageRepo{nextID: 1}
}

func (r *fakeUsageRepo) Init(context.Context) error { return nil }

func (r *fakeUsageRepo) FindActive(_ context.Context, sessionKey, ipAddress string, cutoff time.Time) (*domain.UsageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest *domain.UsageRecord
	for i := range r.records {
		rec := r.records[i]
		if !rec.CreatedAt.After(cutoff) {
			continue
		}
		match := (rec.SessionKey != "" && rec.SessionKey == sessionKey) ||
			(rec.IPAddress != "" && rec.IPAddress == ipAddress)
		if !match {
			continue
		}
		if newest == nil || rec.CreatedAt.After(newest.CreatedAt) {
			copied := rec
			newest = &copied
		}
	}
	return newest, nil
}

func (r *fakeUsageRepo) Record(_ context.Context, rec *domain.UsageRecord) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.ID = r.nextID
	r.nextID++
	r.records = append(r.records, *rec)
	return rec.ID, nil
}

func (r *fakeUsageRepo) ListBefore(_ context.Context, cutoff time.Time) ([]domain.UsageRecord, error) {
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

func (r *fakeUsageRepo) DeleteBefore(_ context.Context, cutoff time.Time) error {
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

func (r *fakeUsageRepo) ClearAll(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
	return nil
}

func (r *fakeUsageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
