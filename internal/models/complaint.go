package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ComplaintStatus is the lifecycle state of a ticket.
type ComplaintStatus string

const (
	ComplaintPending    ComplaintStatus = "pending"
	ComplaintInProgress ComplaintStatus = "in_progress"
	ComplaintResolved   ComplaintStatus = "resolved"
	ComplaintRejected   ComplaintStatus = "rejected"
)

// ComplaintStatuses lists every status in display order.
var ComplaintStatuses = []ComplaintStatus{ComplaintPending, ComplaintInProgress, ComplaintResolved, ComplaintRejected}

// ComplaintCategories is the closed set of ticket categories.
var ComplaintCategories = []string{"maintenance", "electrical", "plumbing", "cleanliness", "food", "security", "internet", "other"}

// StatusChange is one entry of a ticket's append-only history.
type StatusChange struct {
	Status    ComplaintStatus `json:"status"`
	UpdatedBy string          `json:"updatedBy"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Remarks   string          `json:"remarks,omitempty"`
}

// StatusHistory is stored as a JSONB array.
type StatusHistory []StatusChange

// Value implements driver.Valuer.
func (h StatusHistory) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h)
}

// Scan implements sql.Scanner.
func (h *StatusHistory) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*h = StatusHistory{}
		return nil
	case []byte:
		return json.Unmarshal(v, h)
	case string:
		return json.Unmarshal([]byte(v), h)
	default:
		return fmt.Errorf("status history: unsupported type %T", src)
	}
}

// Complaint is a student-submitted ticket.
type Complaint struct {
	ID            string          `db:"id" json:"id"`
	TicketID      string          `db:"ticket_id" json:"ticketId"`
	StudentID     string          `db:"student_id" json:"studentId"`
	Title         string          `db:"title" json:"title"`
	Description   string          `db:"description" json:"description"`
	Category      string          `db:"category" json:"category"`
	Priority      string          `db:"priority" json:"priority"`
	Status        ComplaintStatus `db:"status" json:"status"`
	StatusHistory StatusHistory   `db:"status_history" json:"statusHistory"`
	ResolvedBy    *string         `db:"resolved_by" json:"resolvedBy,omitempty"`
	ResolvedAt    *time.Time      `db:"resolved_at" json:"resolvedAt,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`

	StudentName string `db:"student_name" json:"studentName,omitempty"`
}

// ComplaintFilter narrows complaint listings.
type ComplaintFilter struct {
	StudentID string
	Status    *ComplaintStatus
	Category  string
	Priority  string
	From      *time.Time
	To        *time.Time // exclusive
	Page      int
	PageSize  int
}

// CreateComplaintRequest opens a ticket.
type CreateComplaintRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=200"`
	Description string `json:"description" validate:"required,min=5,max=2000"`
	Category    string `json:"category" validate:"required,oneof=maintenance electrical plumbing cleanliness food security internet other"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
}

// UpdateComplaintStatusRequest advances a ticket.
type UpdateComplaintStatusRequest struct {
	Status  ComplaintStatus `json:"status" validate:"required,oneof=pending in_progress resolved rejected"`
	Remarks string          `json:"remarks" validate:"omitempty,max=1000"`
}

// ComplaintList is a filtered page plus aggregate counts.
type ComplaintList struct {
	Complaints     []Complaint    `json:"complaints"`
	StatusCounts   map[string]int `json:"statusCounts"`
	CategoryCounts map[string]int `json:"categoryCounts,omitempty"`
	Pagination     *Pagination    `json:"-"`
}
