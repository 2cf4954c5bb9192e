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

// Room allocation failures.
var (
	ErrRoomFull         = errors.New("room is full")
	ErrAlreadyAllocated = errors.New("student already occupies this room")
	ErrNotOccupant      = errors.New("student does not occupy this room")
)

const roomColumns = `id, hostel, block, number, capacity, occupied, room_type, created_at, updated_at`

// RoomRepository persists rooms and occupant links.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository constructs the repository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// Create inserts a room. A duplicate (hostel, number) yields ErrDuplicate.
func (r *RoomRepository) Create(ctx context.Context, room *models.Room) error {
	now := time.Now().UTC()
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	room.CreatedAt = now
	room.UpdatedAt = now
	const query = `INSERT INTO rooms (id, hostel, block, number, capacity, occupied, room_type, created_at, updated_at)
VALUES (:id, :hostel, :block, :number, :capacity, :occupied, :room_type, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, room); err != nil {
		return wrapWrite("create room", err)
	}
	return nil
}

// FindByID returns a room by id.
func (r *RoomRepository) FindByID(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	if err := r.db.GetContext(ctx, &room, fmt.Sprintf("SELECT %s FROM rooms WHERE id = $1", roomColumns), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find room: %w", err)
	}
	return &room, nil
}

// List returns a page of rooms and the total count.
func (r *RoomRepository) List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Hostel != "" {
		where = append(where, fmt.Sprintf("hostel = $%d", len(args)+1))
		args = append(args, filter.Hostel)
	}
	if filter.Block != "" {
		where = append(where, fmt.Sprintf("block = $%d", len(args)+1))
		args = append(args, filter.Block)
	}
	if filter.AvailableOnly {
		where = append(where, "occupied < capacity")
	}
	whereClause := strings.Join(where, " AND ")
	_, size, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM rooms WHERE %s ORDER BY hostel, block, number LIMIT %d OFFSET %d", roomColumns, whereClause, size, offset)
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list rooms: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM rooms WHERE %s", whereClause), args...); err != nil {
		return nil, 0, fmt.Errorf("count rooms: %w", err)
	}
	return rooms, total, nil
}

type occupant struct {
	RoomID *string `db:"room_id"`
}

// Allocate moves a student into a room, releasing any previous room, in one transaction.
func (r *RoomRepository) Allocate(ctx context.Context, roomID, studentID string) (*models.Room, error) {
	var result models.Room
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		room, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		var current occupant
		if err := tx.GetContext(ctx, &current, `SELECT room_id FROM users WHERE id = $1 FOR UPDATE`, studentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("lock student: %w", err)
		}
		if current.RoomID != nil && *current.RoomID == roomID {
			return ErrAlreadyAllocated
		}
		if !room.Available() {
			return ErrRoomFull
		}
		now := time.Now().UTC()
		if current.RoomID != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE rooms SET occupied = occupied - 1, updated_at = $2 WHERE id = $1 AND occupied > 0`, *current.RoomID, now); err != nil {
				return fmt.Errorf("release previous room: %w", err)
			}
		}
		const assign = `UPDATE users SET room_id = $2, room_number = $3, hostel = $4, block = $5, updated_at = $6 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, assign, studentID, room.ID, room.Number, room.Hostel, room.Block, now); err != nil {
			return fmt.Errorf("assign room: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE rooms SET occupied = occupied + 1, updated_at = $2 WHERE id = $1`, room.ID, now); err != nil {
			return fmt.Errorf("increment occupancy: %w", err)
		}
		room.Occupied++
		room.UpdatedAt = now
		result = *room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Vacate removes a student from a room in one transaction.
func (r *RoomRepository) Vacate(ctx context.Context, roomID, studentID string) (*models.Room, error) {
	var result models.Room
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		room, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		const release = `UPDATE users SET room_id = NULL, room_number = NULL, updated_at = $3 WHERE id = $1 AND room_id = $2`
		if err := execOne(ctx, tx, "release student", release, studentID, roomID, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotOccupant
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE rooms SET occupied = occupied - 1, updated_at = $2 WHERE id = $1 AND occupied > 0`, roomID, now); err != nil {
			return fmt.Errorf("decrement occupancy: %w", err)
		}
		if room.Occupied > 0 {
			room.Occupied--
		}
		room.UpdatedAt = now
		result = *room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func lockRoom(ctx context.Context, tx *sqlx.Tx, id string) (*models.Room, error) {
	var room models.Room
	if err := tx.GetContext(ctx, &room, fmt.Sprintf("SELECT %s FROM rooms WHERE id = $1 FOR UPDATE", roomColumns), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock room: %w", err)
	}
	return &room, nil
}
