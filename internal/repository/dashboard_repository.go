package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hostel-api/internal/models"
)

// DashboardRepository computes aggregate counters across modules.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository constructs the repository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// Stats returns the counters for the given day and billing month.
func (r *DashboardRepository) Stats(ctx context.Context, today time.Time, month, year int) (*models.DashboardStats, error) {
	const query = `SELECT
    (SELECT COUNT(*) FROM users WHERE role = 'student' AND is_active = TRUE) AS students,
    (SELECT COUNT(*) FROM users WHERE role = 'warden' AND is_active = TRUE) AS wardens,
    (SELECT COUNT(*) FROM users WHERE approval_status = 'pending') AS pending_accounts,
    (SELECT COUNT(*) FROM attendance WHERE approval_status = 'pending') AS pending_attendance,
    (SELECT COUNT(*) FROM attendance WHERE date = $1 AND status = 'present') AS today_present,
    (SELECT COUNT(*) FROM complaints WHERE status IN ('pending', 'in_progress')) AS open_complaints,
    (SELECT COUNT(*) FROM warden_requests WHERE status = 'pending') AS pending_warden_requests,
    (SELECT COUNT(*) FROM rooms WHERE occupied < capacity) AS rooms_available,
    (SELECT COALESCE(SUM(total_amount), 0) FROM mess_bills WHERE month = $2 AND year = $3) AS month_billed,
    (SELECT COALESCE(SUM(GREATEST(total_amount - amount_paid, 0)), 0) FROM mess_bills WHERE month = $2 AND year = $3 AND payment_status <> 'paid') AS month_outstanding`
	var stats models.DashboardStats
	if err := r.db.GetContext(ctx, &stats, query, today, month, year); err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	stats.Month = month
	stats.Year = year
	return &stats, nil
}
