package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hostel-api/internal/models"
	"github.com/noah-isme/hostel-api/internal/repository"
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
)

type roomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	FindByID(ctx context.Context, id string) (*models.Room, error)
	List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error)
	Allocate(ctx context.Context, roomID, studentID string) (*models.Room, error)
	Vacate(ctx context.Context, roomID, studentID string) (*models.Room, error)
}

// RoomService manages rooms and their occupants.
type RoomService struct {
	repo      roomRepository
	users     userLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRoomService constructs the service.
func NewRoomService(repo roomRepository, users userLookup, validate *validator.Validate, logger *zap.Logger) *RoomService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomService{repo: repo, users: users, validator: validate, logger: logger}
}

// Create registers a room.
func (s *RoomService) Create(ctx context.Context, req models.CreateRoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room payload")
	}
	room := &models.Room{
		Hostel:   strings.TrimSpace(req.Hostel),
		Block:    strings.TrimSpace(req.Block),
		Number:   strings.TrimSpace(req.Number),
		Capacity: req.Capacity,
		RoomType: orDefault(req.RoomType, "shared"),
	}
	if err := s.repo.Create(ctx, room); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "room number already exists in this hostel")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create room")
	}
	s.logger.Info("room created", zap.String("room_id", room.ID), zap.String("hostel", room.Hostel), zap.String("number", room.Number))
	return room, nil
}

// Get loads a room.
func (s *RoomService) Get(ctx context.Context, id string) (*models.Room, error) {
	room, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	return room, nil
}

// List returns rooms matching the filter.
func (s *RoomService) List(ctx context.Context, filter models.RoomFilter) ([]models.Room, *models.Pagination, error) {
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	rooms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	return rooms, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Allocate moves a student into the room, releasing any room they held.
func (s *RoomService) Allocate(ctx context.Context, roomID string, req models.RoomOccupantRequest) (*models.Room, error) {
	if err := s.checkStudent(ctx, req); err != nil {
		return nil, err
	}
	room, err := s.repo.Allocate(ctx, roomID, req.StudentID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRoomFull):
			return nil, appErrors.Clone(appErrors.ErrConflict, "room is at capacity")
		case errors.Is(err, repository.ErrAlreadyAllocated):
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already occupies this room")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate room")
	}
	s.logger.Info("room allocated", zap.String("room_id", roomID), zap.String("student_id", req.StudentID), zap.Int("occupied", room.Occupied))
	return room, nil
}

// Vacate removes a student from the room.
func (s *RoomService) Vacate(ctx context.Context, roomID string, req models.RoomOccupantRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid occupant payload")
	}
	room, err := s.repo.Vacate(ctx, roomID, req.StudentID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotOccupant):
			return nil, appErrors.Clone(appErrors.ErrConflict, "student does not occupy this room")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to vacate room")
	}
	return room, nil
}

func (s *RoomService) checkStudent(ctx context.Context, req models.RoomOccupantRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid occupant payload")
	}
	user, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if user.Role != models.RoleStudent {
		return appErrors.Clone(appErrors.ErrValidation, "only students can be allocated rooms")
	}
	if !user.IsActive {
		return appErrors.Clone(appErrors.ErrValidation, "inactive accounts cannot be allocated rooms")
	}
	return nil
}
