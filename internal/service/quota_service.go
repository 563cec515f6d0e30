package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"promptgate/internal/domain"
	"promptgate/internal/repository"
)

// ErrQuotaExceeded is returned when an anonymous caller has already used the
// free generation within the active window.
var ErrQuotaExceeded = errors.New("quota exceeded")

// QuotaStatus reports the exhaustion state of an anonymous identity.
type QuotaStatus struct {
	Exhausted bool
	Remaining int
}

// QuotaService enforces the one-free-generation policy for anonymous callers.
// An identity is exhausted when an active record matches its session key OR
// its network address; the fingerprint is kept for audit only. A caller with
// neither signal is treated as fresh - missing signals never block, which is
// a known weakness of the policy, not an oversight.
type QuotaService interface {
	Check(ctx context.Context, sessionKey, ipAddress string) (QuotaStatus, error)
	Consume(ctx context.Context, sessionKey, ipAddress, fingerprint, prompt string) error
	Reset(ctx context.Context) error
}

type quotaService struct {
	usage  repository.UsageRepository
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*identityLock
}

type identityLock struct {
	mu   sync.Mutex
	refs int
}

// NewQuotaService builds a QuotaService over the given ledger. The window is
// the rolling duration during which one usage record blocks further calls.
func NewQuotaService(usage repository.UsageRepository, window time.Duration) QuotaService {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &quotaService{
		usage:  usage,
		window: window,
		now:    func() time.Time { return time.Now().UTC() },
		locks:  make(map[string]*identityLock),
	}
}

func (s *quotaService) Check(ctx context.Context, sessionKey, ipAddress string) (QuotaStatus, error) {
	if sessionKey == "" && ipAddress == "" {
		return QuotaStatus{Exhausted: false, Remaining: 1}, nil
	}

	cutoff := domain.ActiveCutoff(s.now(), s.window)
	rec, err := s.usage.FindActive(ctx, sessionKey, ipAddress, cutoff)
	if err != nil {
		return QuotaStatus{}, err
	}
	if rec != nil {
		return QuotaStatus{Exhausted: true, Remaining: 0}, nil
	}
	return QuotaStatus{Exhausted: false, Remaining: 1}, nil
}

// Consume re-checks exhaustion and records usage as one atomic step. The
// check and the insert run under every per-identity lock the caller's
// signals map to, so two concurrent requests sharing a session key or an
// address cannot both pass the check.
func (s *quotaService) Consume(ctx context.Context, sessionKey, ipAddress, fingerprint, prompt string) error {
	unlock := s.lockIdentity(sessionKey, ipAddress)
	defer unlock()

	status, err := s.Check(ctx, sessionKey, ipAddress)
	if err != nil {
		return err
	}
	if status.Exhausted {
		return ErrQuotaExceeded
	}

	rec := &domain.UsageRecord{
		SessionKey:  sessionKey,
		IPAddress:   ipAddress,
		Fingerprint: fingerprint,
		Prompt:      prompt,
		CreatedAt:   s.now(),
	}
	if _, err := s.usage.Record(ctx, rec); err != nil {
		return err
	}
	return nil
}

func (s *quotaService) Reset(ctx context.Context) error {
	return s.usage.ClearAll(ctx)
}

// lockIdentity acquires the locks for every non-empty identity key in a
// stable order and returns a func releasing them in reverse. Lock entries
// are reference counted and dropped from the table once the last holder
// releases, so the table only holds keys with in-flight requests.
func (s *quotaService) lockIdentity(sessionKey, ipAddress string) func() {
	keys := make([]string, 0, 2)
	if sessionKey != "" {
		keys = append(keys, "s:"+sessionKey)
	}
	if ipAddress != "" {
		keys = append(keys, "a:"+ipAddress)
	}
	sort.Strings(keys)

	locks := make([]*identityLock, 0, len(keys))
	s.mu.Lock()
	for _, key := range keys {
		lock, ok := s.locks[key]
		if !ok {
			lock = &identityLock{}
			s.locks[key] = lock
		}
		lock.refs++
		locks = append(locks, lock)
	}
	s.mu.Unlock()

	for _, lock := range locks {
		lock.mu.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].mu.Unlock()
		}
		s.mu.Lock()
		for i, lock := range locks {
			lock.refs--
			if lock.refs == 0 {
				delete(s.locks, keys[i])
			}
		}
		s.mu.Unlock()
	}
}
