package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostel-api/internal/models"
	"github.com/noah-isme/hostel-api/internal/repository"
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
)

const (
	roomStudent = "33333333-3333-3333-3333-333333333333"
	roomWarden  = "44444444-4444-4444-4444-444444444444"
)

type roomRepoStub struct {
	rooms     map[string]*models.Room
	occupants map[string]string
	createErr error
}

func newRoomRepoStub() *roomRepoStub {
	return &roomRepoStub{
		rooms:     map[string]*models.Room{"r1": {ID: "r1", Hostel: "North", Block: "A", Number: "101", Capacity: 1}},
		occupants: map[string]string{},
	}
}

func (s *roomRepoStub) Create(_ context.Context, room *models.Room) error {
	if s.createErr != nil {
		return s.createErr
	}
	room.ID = "new-room"
	s.rooms[room.ID] = room
	return nil
}

func (s *roomRepoStub) FindByID(_ context.Context, id string) (*models.Room, error) {
	if room, ok := s.rooms[id]; ok {
		return room, nil
	}
	return nil, sql.ErrNoRows
}

func (s *roomRepoStub) List(_ context.Context, filter models.RoomFilter) ([]models.Room, int, error) {
	var out []models.Room
	for _, room := range s.rooms {
		if filter.AvailableOnly && !room.Available() {
			continue
		}
		out = append(out, *room)
	}
	return out, len(out), nil
}

func (s *roomRepoStub) Allocate(_ context.Context, roomID, studentID string) (*models.Room, error) {
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if s.occupants[studentID] == roomID {
		return nil, repository.ErrAlreadyAllocated
	}
	if !room.Available() {
		return nil, repository.ErrRoomFull
	}
	room.Occupied++
	s.occupants[studentID] = roomID
	return room, nil
}

func (s *roomRepoStub) Vacate(_ context.Context, roomID, studentID string) (*models.Room, error) {
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if s.occupants[studentID] != roomID {
		return nil, repository.ErrNotOccupant
	}
	room.Occupied--
	delete(s.occupants, studentID)
	return room, nil
}

func newTestRoomService(repo *roomRepoStub) *RoomService {
	users := userLookupStub{
		roomStudent: {ID: roomStudent, Role: models.RoleStudent, IsActive: true},
		roomWarden:  {ID: roomWarden, Role: models.RoleWarden, IsActive: true},
	}
	return NewRoomService(repo, users, nil, nil)
}

func TestRoomCreateDefaultsTypeAndMapsDuplicate(t *testing.T) {
	repo := newRoomRepoStub()
	svc := newTestRoomService(repo)

	room, err := svc.Create(context.Background(), models.CreateRoomRequest{Hostel: " North ", Block: "A", Number: "102", Capacity: 2})
	require.NoError(t, err)
	assert.Equal(t, "shared", room.RoomType)
	assert.Equal(t, "North", room.Hostel)

	repo.createErr = repository.ErrDuplicate
	_, err = svc.Create(context.Background(), models.CreateRoomRequest{Hostel: "North", Block: "A", Number: "102", Capacity: 2})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = svc.Create(context.Background(), models.CreateRoomRequest{Hostel: "North", Block: "A", Number: "103", Capacity: 0})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestRoomAllocateRespectsCapacity(t *testing.T) {
	repo := newRoomRepoStub()
	svc := newTestRoomService(repo)
	ctx := context.Background()

	room, err := svc.Allocate(ctx, "r1", models.RoomOccupantRequest{StudentID: roomStudent})
	require.NoError(t, err)
	assert.Equal(t, 1, room.Occupied)

	_, err = svc.Allocate(ctx, "r1", models.RoomOccupantRequest{StudentID: roomStudent})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	repo.occupants = map[string]string{}
	_, err = svc.Allocate(ctx, "r1", models.RoomOccupantRequest{StudentID: roomStudent})
	require.Error(t, err)
	assert.Equal(t, "room is at capacity", appErrors.FromError(err).Message)
}

func TestRoomAllocateRejectsNonStudents(t *testing.T) {
	svc := newTestRoomService(newRoomRepoStub())

	_, err := svc.Allocate(context.Background(), "r1", models.RoomOccupantRequest{StudentID: roomWarden})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Allocate(context.Background(), "r1", models.RoomOccupantRequest{StudentID: "55555555-5555-5555-5555-555555555555"})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Allocate(context.Background(), "missing", models.RoomOccupantRequest{StudentID: roomStudent})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestRoomVacate(t *testing.T) {
	repo := newRoomRepoStub()
	svc := newTestRoomService(repo)
	ctx := context.Background()

	_, err := svc.Vacate(ctx, "r1", models.RoomOccupantRequest{StudentID: roomStudent})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = svc.Allocate(ctx, "r1", models.RoomOccupantRequest{StudentID: roomStudent})
	require.NoError(t, err)
	room, err := svc.Vacate(ctx, "r1", models.RoomOccupantRequest{StudentID: roomStudent})
	require.NoError(t, err)
	assert.Equal(t, 0, room.Occupied)

	rooms, page, err := svc.List(ctx, models.RoomFilter{AvailableOnly: true})
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
	assert.Equal(t, 1, page.TotalCount)
}
