package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hostel-api/internal/models"
	"github.com/noah-isme/hostel-api/pkg/database"
)

const messRateColumns = `id, month, year, daily_rate, breakfast_rate, lunch_rate, dinner_rate, updated_by, created_at, updated_at`

const messBillColumns = `b.id, b.student_id, b.month, b.year, b.total_days, b.rate, b.extra_charges, b.deductions, b.total_amount, b.payment_status, b.amount_paid, b.paid_at, b.remarks, b.generated_by, b.created_at, b.updated_at,
    u.name AS student_name, u.college_id AS student_college_id`

const messBillFrom = `FROM mess_bills b JOIN users u ON u.id = b.student_id`

// MessRepository persists mess rates and bills.
type MessRepository struct {
	db *sqlx.DB
}

// NewMessRepository constructs the repository.
func NewMessRepository(db *sqlx.DB) *MessRepository {
	return &MessRepository{db: db}
}

// CreateRate inserts a monthly rate. A second rate for the same month yields ErrDuplicate.
func (r *MessRepository) CreateRate(ctx context.Context, rate *models.MessRate) error {
	now := time.Now().UTC()
	if rate.ID == "" {
		rate.ID = uuid.NewString()
	}
	rate.CreatedAt = now
	rate.UpdatedAt = now
	const query = `INSERT INTO mess_rates (id, month, year, daily_rate, breakfast_rate, lunch_rate, dinner_rate, updated_by, created_at, updated_at)
VALUES (:id, :month, :year, :daily_rate, :breakfast_rate, :lunch_rate, :dinner_rate, :updated_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rate); err != nil {
		return wrapWrite("create mess rate", err)
	}
	return nil
}

// FindRateByID returns a rate by id.
func (r *MessRepository) FindRateByID(ctx context.Context, id string) (*models.MessRate, error) {
	return r.getRate(ctx, "find mess rate", "id = $1", id)
}

// FindRateByPeriod returns the rate for a month.
func (r *MessRepository) FindRateByPeriod(ctx context.Context, month, year int) (*models.MessRate, error) {
	return r.getRate(ctx, "find mess rate by period", "month = $1 AND year = $2", month, year)
}

func (r *MessRepository) getRate(ctx context.Context, op, where string, args ...interface{}) (*models.MessRate, error) {
	query := fmt.Sprintf("SELECT %s FROM mess_rates WHERE %s", messRateColumns, where)
	var rate models.MessRate
	if err := r.db.GetContext(ctx, &rate, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &rate, nil
}

// ListRates returns rates, newest period first, optionally limited to one year.
func (r *MessRepository) ListRates(ctx context.Context, year int) ([]models.MessRate, error) {
	query := fmt.Sprintf("SELECT %s FROM mess_rates", messRateColumns)
	var args []interface{}
	if year > 0 {
		query += " WHERE year = $1"
		args = append(args, year)
	}
	query += " ORDER BY year DESC, month DESC"
	var rates []models.MessRate
	if err := r.db.SelectContext(ctx, &rates, query, args...); err != nil {
		return nil, fmt.Errorf("list mess rates: %w", err)
	}
	return rates, nil
}

// UpdateRateCascade saves the rate and rewrites every bill of its period in one transaction.
// recompute is applied to each locked bill before it is written back.
func (r *MessRepository) UpdateRateCascade(ctx context.Context, rate *models.MessRate, recompute func(*models.MessBill)) (int, error) {
	var updated int
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		rate.UpdatedAt = time.Now().UTC()
		const updateRate = `UPDATE mess_rates SET daily_rate = :daily_rate, breakfast_rate = :breakfast_rate, lunch_rate = :lunch_rate, dinner_rate = :dinner_rate, updated_by = :updated_by, updated_at = :updated_at WHERE id = :id`
		res, err := tx.NamedExecContext(ctx, updateRate, rate)
		if err != nil {
			return fmt.Errorf("update mess rate: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return sql.ErrNoRows
		}

		const selectBills = `SELECT id, student_id, month, year, total_days, rate, extra_charges, deductions, total_amount, payment_status, amount_paid, paid_at, remarks, generated_by, created_at, updated_at
FROM mess_bills WHERE month = $1 AND year = $2 FOR UPDATE`
		var bills []models.MessBill
		if err := tx.SelectContext(ctx, &bills, selectBills, rate.Month, rate.Year); err != nil {
			return fmt.Errorf("lock period bills: %w", err)
		}

		const updateBill = `UPDATE mess_bills SET rate = $2, total_amount = $3, payment_status = $4, paid_at = $5, updated_at = $6 WHERE id = $1`
		for i := range bills {
			recompute(&bills[i])
			b := bills[i]
			if _, err := tx.ExecContext(ctx, updateBill, b.ID, b.Rate, b.TotalAmount, b.PaymentStatus, b.PaidAt, rate.UpdatedAt); err != nil {
				return fmt.Errorf("recompute bill %s: %w", bills[i].ID, err)
			}
		}
		updated = len(bills)
		return nil
	})
	return updated, err
}

// CreateBill inserts a bill. A second bill for the same student and month yields ErrDuplicate.
func (r *MessRepository) CreateBill(ctx context.Context, bill *models.MessBill) error {
	now := time.Now().UTC()
	if bill.ID == "" {
		bill.ID = uuid.NewString()
	}
	bill.CreatedAt = now
	bill.UpdatedAt = now
	const query = `INSERT INTO mess_bills (id, student_id, month, year, total_days, rate, extra_charges, deductions, total_amount, payment_status, amount_paid, remarks, generated_by, created_at, updated_at)
VALUES (:id, :student_id, :month, :year, :total_days, :rate, :extra_charges, :deductions, :total_amount, :payment_status, :amount_paid, :remarks, :generated_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, bill); err != nil {
		return wrapWrite("create mess bill", err)
	}
	return nil
}

// FindBillByID returns a bill by id.
func (r *MessRepository) FindBillByID(ctx context.Context, id string) (*models.MessBill, error) {
	return r.getBill(ctx, "find mess bill", "b.id = $1", id)
}

// FindBill returns a student's bill for a month.
func (r *MessRepository) FindBill(ctx context.Context, studentID string, month, year int) (*models.MessBill, error) {
	return r.getBill(ctx, "find mess bill by period", "b.student_id = $1 AND b.month = $2 AND b.year = $3", studentID, month, year)
}

func (r *MessRepository) getBill(ctx context.Context, op, where string, args ...interface{}) (*models.MessBill, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE %s", messBillColumns, messBillFrom, where)
	var bill models.MessBill
	if err := r.db.GetContext(ctx, &bill, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &bill, nil
}

// UpdateBill writes edited inputs together with the recomputed total.
func (r *MessRepository) UpdateBill(ctx context.Context, bill *models.MessBill) error {
	bill.UpdatedAt = time.Now().UTC()
	const query = `UPDATE mess_bills SET total_days = :total_days, rate = :rate, extra_charges = :extra_charges, deductions = :deductions, total_amount = :total_amount, payment_status = :payment_status, paid_at = :paid_at, remarks = :remarks, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, bill)
	if err != nil {
		return fmt.Errorf("update mess bill: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdatePayment records a payment change if the bill is still in the expected state.
// Returns sql.ErrNoRows when a concurrent update moved the bill first.
func (r *MessRepository) UpdatePayment(ctx context.Context, bill *models.MessBill, expected models.PaymentStatus) error {
	bill.UpdatedAt = time.Now().UTC()
	const query = `UPDATE mess_bills SET payment_status = $2, amount_paid = $3, paid_at = $4, updated_at = $5 WHERE id = $1 AND payment_status = $6`
	return execOne(ctx, r.db, "update bill payment", query, bill.ID, bill.PaymentStatus, bill.AmountPaid, bill.PaidAt, bill.UpdatedAt, expected)
}

func billWhere(filter models.MessBillFilter) (string, []interface{}) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("b.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Month > 0 {
		where = append(where, fmt.Sprintf("b.month = $%d", len(args)+1))
		args = append(args, filter.Month)
	}
	if filter.Year > 0 {
		where = append(where, fmt.Sprintf("b.year = $%d", len(args)+1))
		args = append(args, filter.Year)
	}
	if filter.PaymentStatus != nil {
		where = append(where, fmt.Sprintf("b.payment_status = $%d", len(args)+1))
		args = append(args, *filter.PaymentStatus)
	}
	return strings.Join(where, " AND "), args
}

// ListBills returns a page of bills and the total count.
func (r *MessRepository) ListBills(ctx context.Context, filter models.MessBillFilter) ([]models.MessBill, int, error) {
	whereClause, args := billWhere(filter)
	_, size, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY b.year DESC, b.month DESC, u.college_id LIMIT %d OFFSET %d", messBillColumns, messBillFrom, whereClause, size, offset)
	var bills []models.MessBill
	if err := r.db.SelectContext(ctx, &bills, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list mess bills: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", messBillFrom, whereClause), args...); err != nil {
		return nil, 0, fmt.Errorf("count mess bills: %w", err)
	}
	return bills, total, nil
}

// ListAllBills returns every bill matching the filter without paging, for exports.
func (r *MessRepository) ListAllBills(ctx context.Context, filter models.MessBillFilter) ([]models.MessBill, error) {
	whereClause, args := billWhere(filter)
	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY u.college_id", messBillColumns, messBillFrom, whereClause)
	var bills []models.MessBill
	if err := r.db.SelectContext(ctx, &bills, query, args...); err != nil {
		return nil, fmt.Errorf("list mess bills for export: %w", err)
	}
	return bills, nil
}

// Totals aggregates amounts over the filtered bills.
func (r *MessRepository) Totals(ctx context.Context, filter models.MessBillFilter) (*models.MessBillTotals, error) {
	whereClause, args := billWhere(filter)
	query := fmt.Sprintf(`SELECT COUNT(*) AS count,
    COALESCE(SUM(b.total_amount), 0) AS total_amount,
    COALESCE(SUM(b.amount_paid), 0) AS amount_paid,
    COALESCE(SUM(GREATEST(b.total_amount - b.amount_paid, 0)), 0) AS outstanding
%s WHERE %s`, messBillFrom, whereClause)
	var totals models.MessBillTotals
	if err := r.db.GetContext(ctx, &totals, query, args...); err != nil {
		return nil, fmt.Errorf("sum mess bills: %w", err)
	}
	return &totals, nil
}
