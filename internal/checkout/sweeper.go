package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/atelier/internal"
	enrollmentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/enrollment"
	"github.com/robfig/cron/v3"
)

type SweepRepository interface {
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*enrollmentDatamodel.PendingEnrollment, error)
	MarkExpired(ctx context.Context, id int64) (bool, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// IntentCanceler voids a gateway payment so an expired checkout can no
// longer be paid.
type IntentCanceler interface {
	CancelIntent(ctx context.Context, externalID string) error
}

const sweepBatchSize = 100

// Sweeper expires lapsed pending enrollments and purges old expired rows on
// a cron schedule.
type Sweeper struct {
	repo      SweepRepository
	cancelers map[string]IntentCanceler
	schedule  string
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
	cron      *cron.Cron
}

func NewSweeper(repo SweepRepository, cfg internal.PaymentConfig, logger *slog.Logger) *Sweeper {
	schedule := cfg.SweepSchedule
	if schedule == "" {
		schedule = "@every 5m"
	}
	return &Sweeper{
		repo:      repo,
		cancelers: make(map[string]IntentCanceler),
		schedule:  schedule,
		retention: cfg.ExpiredRetention,
		logger:    logger,
		now:       time.Now,
	}
}

// WithIntentCanceler cancels the gateway intent of every row of the given
// payment method that a sweep expires. Methods without one (Khalti) rely on
// the gateway's own expiry.
func (s *Sweeper) WithIntentCanceler(method string, c IntentCanceler) *Sweeper {
	s.cancelers[method] = c
	return s
}

// Sweep runs one pass. A zero retention disables purging.
func (s *Sweeper) Sweep(ctx context.Context) (expired, purged int64, err error) {
	now := s.now().UTC()

	expired, err = s.expireOverdue(ctx, now)
	if err != nil {
		return expired, 0, fmt.Errorf("failed to expire overdue pending enrollments: %w", err)
	}

	if s.retention > 0 {
		purged, err = s.repo.PurgeExpired(ctx, now.Add(-s.retention))
		if err != nil {
			return expired, 0, fmt.Errorf("failed to purge expired pending enrollments: %w", err)
		}
	}

	if expired > 0 || purged > 0 {
		s.logger.Info("pending enrollment sweep finished", "expired", expired, "purged", purged)
	}
	return expired, purged, nil
}

// expireOverdue moves overdue rows to expired one at a time so a row that a
// webhook settles mid-sweep is left alone and never has its intent canceled.
func (s *Sweeper) expireOverdue(ctx context.Context, now time.Time) (int64, error) {
	var expired int64
	for {
		rows, err := s.repo.ListOverdue(ctx, now, sweepBatchSize)
		if err != nil {
			return expired, err
		}

		for _, row := range rows {
			applied, err := s.repo.MarkExpired(ctx, row.ID)
			if err != nil {
				return expired, err
			}
			if !applied {
				continue
			}
			expired++
			s.cancelIntent(ctx, row)
		}

		if len(rows) < sweepBatchSize {
			return expired, nil
		}
	}
}

// cancelIntent is best effort. The row stays expired either way, and a
// payment that still lands afterwards only reaches the committer's
// no-pending warning, so the failure is logged with the external id.
func (s *Sweeper) cancelIntent(ctx context.Context, row *enrollmentDatamodel.PendingEnrollment) {
	canceler, ok := s.cancelers[row.PaymentMethod]
	if !ok {
		return
	}
	if err := canceler.CancelIntent(ctx, row.ExternalID()); err != nil {
		s.logger.Warn("failed to cancel intent of expired pending enrollment",
			"pending_id", row.ID,
			"payment_method", row.PaymentMethod,
			"external_id", row.ExternalID(),
			"error", err)
	}
}

// Start schedules Sweep. Overlapping runs are skipped.
func (s *Sweeper) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(s.schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if _, _, err := s.Sweep(runCtx); err != nil {
			s.logger.Error("pending enrollment sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	s.cron = c
	c.Start()
	s.logger.Info("pending enrollment sweeper started", "schedule", s.schedule, "retention", s.retention)
	return nil
}

// Stop halts scheduling and returns a context done when the running pass ends.
func (s *Sweeper) Stop() context.Context {
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return s.cron.Stop()
}
