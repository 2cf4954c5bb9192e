package repository

import (
	"context"
	"database/sql"
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

func TestAttendanceCreateDuplicateDay(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("INSERT INTO attendance").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "attendance_student_date_key"})

	err := repo.Create(context.Background(), &models.Attendance{StudentID: "s1", Date: time.Now(), Status: models.AttendancePresent, ApprovalStatus: models.ApprovalPending, MarkedBy: "s1"})
	assert.True(t, errors.Is(err, ErrDuplicate))
}

func TestAttendanceDecideOnlyFromPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND approval_status = 'pending'")).
		WithArgs("a1", models.ApprovalApproved, "w1", sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Decide(context.Background(), "a1", models.ApprovalApproved, "w1", time.Now(), nil)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceCountPresentDays(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.Local)
	to := from.AddDate(0, 1, 0)
	mock.ExpectQuery(regexp.QuoteMeta("status = 'present' AND approval_status <> 'rejected'")).
		WithArgs("s1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(22))

	count, err := repo.CountPresentDays(context.Background(), "s1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 22, count)
}

func TestAttendanceListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	pending := models.ApprovalPending
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND a.approval_status = $1 ORDER BY a.date DESC, u.college_id LIMIT 20 OFFSET 0")).
		WithArgs(pending).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "date", "status", "approval_status", "marked_by", "is_edited", "created_at", "updated_at", "student_name", "student_college_id"}).
			AddRow("a1", "s1", now, "present", "pending", "s1", false, now, now, "Asha", "CS001"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance a JOIN users u ON u.id = a.student_id WHERE 1=1 AND a.approval_status = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rows, total, err := repo.List(context.Background(), models.AttendanceFilter{ApprovalStatus: &pending})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Asha", rows[0].StudentName)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
