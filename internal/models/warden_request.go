package models

import "time"

// WardenRequest asks an admin to promote a student to warden.
type WardenRequest struct {
	ID         string         `db:"id" json:"id"`
	UserID     string         `db:"user_id" json:"userId"`
	Reason     string         `db:"reason" json:"reason"`
	Experience *string        `db:"experience" json:"experience,omitempty"`
	Status     ApprovalStatus `db:"status" json:"status"`
	ReviewedBy *string        `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt *time.Time     `db:"reviewed_at" json:"reviewedAt,omitempty"`
	ReviewNote *string        `db:"review_note" json:"reviewNote,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updatedAt"`

	UserName      string `db:"user_name" json:"userName,omitempty"`
	UserEmail     string `db:"user_email" json:"userEmail,omitempty"`
	UserCollegeID string `db:"user_college_id" json:"userCollegeId,omitempty"`
}

// WardenRequestFilter narrows request listings.
type WardenRequestFilter struct {
	Status   *ApprovalStatus
	Page     int
	PageSize int
}

// CreateWardenRequest is a student's promotion request.
type CreateWardenRequest struct {
	Reason     string `json:"reason" validate:"required,min=10,max=1000"`
	Experience string `json:"experience" validate:"omitempty,max=1000"`
}

// ReviewWardenRequest carries the admin's note for a decision.
type ReviewWardenRequest struct {
	Note string `json:"note" validate:"omitempty,max=1000"`
}
