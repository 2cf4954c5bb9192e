package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostel-api/internal/models"
)

func TestAnnouncementMarkReadIsIdempotent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnnouncementRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("array_append(read_by, $2::text)")).
		WithArgs("a1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	marked, err := repo.MarkRead(context.Background(), "a1", "u1")
	require.NoError(t, err)
	assert.True(t, marked)

	mock.ExpectExec(regexp.QuoteMeta("array_append(read_by, $2::text)")).
		WithArgs("a1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM announcements WHERE id = $1)")).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	marked, err = repo.MarkRead(context.Background(), "a1", "u1")
	require.NoError(t, err)
	assert.False(t, marked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementMarkReadMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnnouncementRepository(db)

	mock.ExpectExec("array_append").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := repo.MarkRead(context.Background(), "missing", "u1")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestAnnouncementListAudienceFilter(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnnouncementRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("(cardinality(a.target_blocks) = 0 OR $2 = ANY(a.target_blocks))")).
		WithArgs("H1", "B", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "content", "category", "priority", "target_hostels", "target_blocks", "read_by", "created_by", "creator_name"}).
			AddRow("a1", "Water cut", "No water 2-4pm", "maintenance", "high", "{}", "{B}", "{u1}", "w1", "Warden"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM announcements a")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.AnnouncementFilter{Audience: true, Hostel: "H1", Block: "B"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, []string{"B"}, []string(items[0].TargetBlocks))
	assert.True(t, items[0].ReadByUser("u1"))
	assert.Equal(t, 1, total)
}
