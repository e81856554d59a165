package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/frahmantamala/atelier/internal/checkout"
	enrollmentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/enrollment"
	"github.com/jmoiron/sqlx"
)

const statusCountsQuery = `
SELECT payment_method, status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount
FROM pending_enrollments
GROUP BY payment_method, status
ORDER BY payment_method, status`

const stalePendingQuery = `
SELECT id, COALESCE(payment_intent_id, pidx, '') AS external_id, course_id, user_id, payment_method, expires_at
FROM pending_enrollments
WHERE status = ? AND expires_at <= ?
ORDER BY expires_at
LIMIT ?`

// ReportRepository serves read-only reconciliation queries over sqlx.
type ReportRepository struct {
	db         *sqlx.DB
	staleLimit int
	now        func() time.Time
}

func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{
		db:         db,
		staleLimit: 100,
		now:        time.Now,
	}
}

func (r *ReportRepository) StatusCounts(ctx context.Context) ([]checkout.StatusCount, error) {
	counts := []checkout.StatusCount{}
	if err := r.db.SelectContext(ctx, &counts, statusCountsQuery); err != nil {
		return nil, fmt.Errorf("failed to query status counts: %w", err)
	}
	return counts, nil
}

// StalePending lists rows still pending past their expiry, which the
// sweeper has not reached yet.
func (r *ReportRepository) StalePending(ctx context.Context) ([]checkout.StaleRow, error) {
	rows := []checkout.StaleRow{}
	query := r.db.Rebind(stalePendingQuery)
	if err := r.db.SelectContext(ctx, &rows, query, enrollmentDatamodel.StatusPending, r.now().UTC(), r.staleLimit); err != nil {
		return nil, fmt.Errorf("failed to query stale pending enrollments: %w", err)
	}
	return rows, nil
}

func (r *ReportRepository) Summary(ctx context.Context) (*checkout.Summary, error) {
	counts, err := r.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	stale, err := r.StalePending(ctx)
	if err != nil {
		return nil, err
	}
	return &checkout.Summary{Counts: counts, StalePending: stale}, nil
}
