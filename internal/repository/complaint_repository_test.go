package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostel-api/internal/models"
)

func TestComplaintAppendStatusResolved(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewComplaintRepository(db)

	at := time.Date(2026, 10, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("status_history = status_history || $3::jsonb")).
		WithArgs("c1", models.ComplaintResolved, sqlmock.AnyArg(), true, "w1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AppendStatus(context.Background(), "c1", models.StatusChange{Status: models.ComplaintResolved, UpdatedBy: "w1", UpdatedAt: at})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComplaintCountByStatusIgnoresStatusFilter(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewComplaintRepository(db)

	status := models.ComplaintPending
	mock.ExpectQuery(regexp.QuoteMeta("SELECT c.status AS key, COUNT(*) AS count FROM complaints c JOIN users u ON u.id = c.student_id WHERE 1=1 AND c.student_id = $1 GROUP BY c.status")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"key", "count"}).AddRow("pending", 2).AddRow("resolved", 1))

	counts, err := repo.CountBy(context.Background(), "status", models.ComplaintFilter{StudentID: "s1", Status: &status})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"pending": 2, "resolved": 1}, counts)

	_, err = repo.CountBy(context.Background(), "title", models.ComplaintFilter{})
	assert.Error(t, err)
}

func TestComplaintListDateRangeBounds(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewComplaintRepository(db)

	from := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND c.created_at >= $1 AND c.created_at < $2 ORDER BY c.created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.ComplaintFilter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
