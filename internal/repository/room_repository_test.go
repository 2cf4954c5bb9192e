package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var roomRowColumns = []string{"id", "hostel", "block", "number", "capacity", "occupied", "room_type", "created_at", "updated_at"}

func TestRoomAllocateRespectsCapacity(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRoomRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM rooms WHERE id = $1 FOR UPDATE")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(roomRowColumns).AddRow("r1", "H1", "A", "101", 2, 2, "double", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT room_id FROM users WHERE id = $1 FOR UPDATE")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"room_id"}).AddRow(nil))
	mock.ExpectRollback()

	_, err := repo.Allocate(context.Background(), "r1", "s1")
	assert.True(t, errors.Is(err, ErrRoomFull))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoomAllocateMovesStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRoomRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(roomRowColumns).AddRow("r2", "H1", "B", "201", 2, 1, "double", now, now))
	mock.ExpectQuery("SELECT room_id FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"room_id"}).AddRow("r1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE rooms SET occupied = occupied - 1")).
		WithArgs("r1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET room_id = $2")).
		WithArgs("s1", "r2", "201", "H1", "B", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE rooms SET occupied = occupied + 1")).
		WithArgs("r2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	room, err := repo.Allocate(context.Background(), "r2", "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, room.Occupied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoomVacateNonOccupant(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRoomRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(roomRowColumns).AddRow("r1", "H1", "A", "101", 2, 1, "double", now, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET room_id = NULL")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Vacate(context.Background(), "r1", "s9")
	assert.True(t, errors.Is(err, ErrNotOccupant))
	assert.NoError(t, mock.ExpectationsWereMet())
}
