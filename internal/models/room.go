package models

import "time"

// Room is an allocatable hostel room.
type Room struct {
	ID        string    `db:"id" json:"id"`
	Hostel    string    `db:"hostel" json:"hostel"`
	Block     string    `db:"block" json:"block"`
	Number    string    `db:"number" json:"number"`
	Capacity  int       `db:"capacity" json:"capacity"`
	Occupied  int       `db:"occupied" json:"occupied"`
	RoomType  string    `db:"room_type" json:"roomType"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Available reports whether another occupant fits.
func (r *Room) Available() bool {
	return r.Occupied < r.Capacity
}

// RoomFilter narrows room listings.
type RoomFilter struct {
	Hostel        string
	Block         string
	AvailableOnly bool
	Page          int
	PageSize      int
}

// CreateRoomRequest registers a room.
type CreateRoomRequest struct {
	Hostel   string `json:"hostel" validate:"required,max=50"`
	Block    string `json:"block" validate:"required,max=20"`
	Number   string `json:"number" validate:"required,max=20"`
	Capacity int    `json:"capacity" validate:"required,min=1,max=12"`
	RoomType string `json:"roomType" validate:"omitempty,oneof=single double shared"`
}

// RoomOccupantRequest names the student to allocate or vacate.
type RoomOccupantRequest struct {
	StudentID string `json:"studentId" validate:"required,uuid"`
}
