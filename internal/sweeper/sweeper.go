package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"promptgate/internal/archive"
	"promptgate/internal/domain"
	"promptgate/internal/repository"
)

// Sweeper periodically archives and physically deletes usage records that
// have aged out of the retention window. Correctness never depends on it:
// every ledger query applies the window cutoff itself.
type Sweeper interface {
	Start(ctx context.Context)
	Shutdown()
}

type Config struct {
	Retention      time.Duration
	Interval       time.Duration
	ArchiveOptions archive.ExportOptions
	Logger         *logrus.Logger
}

type sweeper struct {
	cfg     Config
	usage   repository.UsageRepository
	archive archive.Service

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New builds a Sweeper. The archive service may be nil, in which case swept
// records are simply dropped.
func New(cfg Config, usage repository.UsageRepository, archiveSvc archive.Service) Sweeper {
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &sweeper{
		cfg:     cfg,
		usage:   usage,
		archive: archiveSvc,
	}
}

func (s *sweeper) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *sweeper) Shutdown() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

func (s *sweeper) sweep() {
	ctx, cancel := context.WithTimeout(s.ctx, time.Minute)
	defer cancel()

	cutoff := domain.ActiveCutoff(time.Now().UTC(), s.cfg.Retention)
	expired, err := s.usage.ListBefore(ctx, cutoff)
	if err != nil {
		s.cfg.Logger.Warnf("list expired usage records: %v", err)
		return
	}
	if len(expired) == 0 {
		return
	}

	// archive before deleting; a failed export keeps the rows in the ledger
	// so the next tick retries them
	if s.archive != nil && s.cfg.ArchiveOptions.Bucket != "" {
		location, err := s.archive.ExportRecords(ctx, expired, s.cfg.ArchiveOptions)
		if err != nil {
			s.cfg.Logger.Warnf("archive swept records: %v", err)
			return
		}
		s.cfg.Logger.Infof("archived %d usage records to %s", len(expired), location)
	}

	if err := s.usage.DeleteBefore(ctx, cutoff); err != nil {
		s.cfg.Logger.Warnf("delete expired usage records: %v", err)
		return
	}

	s.cfg.Logger.Infof("swept %d expired usage records", len(expired))
}
