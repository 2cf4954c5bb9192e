package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostel-api/internal/models"
)

func TestMessRateCascadeRecomputesBillsInTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE mess_rates SET daily_rate").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM mess_bills WHERE month = $1 AND year = $2 FOR UPDATE")).
		WithArgs(10, 2026).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "month", "year", "total_days", "rate", "extra_charges", "deductions", "total_amount", "payment_status", "amount_paid", "generated_by", "created_at", "updated_at"}).
			AddRow("b1", "s1", 10, 2026, 22, 100.0, `[]`, `[]`, 2200.0, "pending", 0.0, "w1", now, now).
			AddRow("b2", "s2", 10, 2026, 10, 100.0, `[{"description":"guest","amount":50}]`, `[]`, 1050.0, "pending", 0.0, "w1", now, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE mess_bills SET rate = $2, total_amount = $3")).
		WithArgs("b1", 120.0, 2640.0, models.PaymentPending, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE mess_bills SET rate = $2, total_amount = $3")).
		WithArgs("b2", 120.0, 1250.0, models.PaymentPending, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rate := &models.MessRate{ID: "r1", Month: 10, Year: 2026, DailyRate: 120}
	updated, err := repo.UpdateRateCascade(context.Background(), rate, func(b *models.MessBill) {
		b.Rate = rate.DailyRate
		b.TotalAmount = float64(b.TotalDays)*b.Rate + b.ExtraCharges.Sum() - b.Deductions.Sum()
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessRateCascadeRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE mess_rates SET daily_rate").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FOR UPDATE").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.UpdateRateCascade(context.Background(), &models.MessRate{ID: "r1", Month: 10, Year: 2026, DailyRate: 120}, func(*models.MessBill) {})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBillDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessRepository(db)

	mock.ExpectExec("INSERT INTO mess_bills").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "mess_bills_student_month_year_key"})

	err := repo.CreateBill(context.Background(), &models.MessBill{StudentID: "s1", Month: 10, Year: 2026, PaymentStatus: models.PaymentPending})
	assert.True(t, errors.Is(err, ErrDuplicate))
}

func TestMessTotals(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(SUM(b.total_amount), 0) AS total_amount")).
		WithArgs(10, 2026).
		WillReturnRows(sqlmock.NewRows([]string{"count", "total_amount", "amount_paid", "outstanding"}).AddRow(2, 3250.0, 1000.0, 2250.0))

	totals, err := repo.Totals(context.Background(), models.MessBillFilter{Month: 10, Year: 2026})
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Count)
	assert.InDelta(t, 2250.0, totals.Outstanding, 0.001)
}
