package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleWarden  UserRole = "warden"
	RoleAdmin   UserRole = "admin"
)

// ApprovalStatus gates accounts and attendance records before they take effect.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Valid reports whether r is one of the declared roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleWarden, RoleAdmin:
		return true
	}
	return false
}

// IsPrivileged reports whether the role may act on other students' records.
func (r UserRole) IsPrivileged() bool {
	switch r {
	case RoleWarden, RoleAdmin:
		return true
	case RoleStudent:
		return false
	}
	return false
}

// InitialApproval returns the approval state a freshly registered account starts in.
func (r UserRole) InitialApproval() ApprovalStatus {
	switch r {
	case RoleWarden:
		return ApprovalPending
	case RoleStudent, RoleAdmin:
		return ApprovalApproved
	}
	return ApprovalPending
}

// RequiresApproval reports whether login is gated on approval_status for the role.
func (r UserRole) RequiresApproval() bool {
	switch r {
	case RoleStudent, RoleWarden:
		return true
	case RoleAdmin:
		return false
	}
	return true
}

// User represents an application user stored in the users table.
type User struct {
	ID                    string         `db:"id" json:"id"`
	Name                  string         `db:"name" json:"name"`
	CollegeID             string         `db:"college_id" json:"collegeId"`
	Email                 string         `db:"email" json:"email"`
	PasswordHash          *string        `db:"password_hash" json:"-"`
	GoogleID              *string        `db:"google_id" json:"-"`
	Role                  UserRole       `db:"role" json:"role"`
	ApprovalStatus        ApprovalStatus `db:"approval_status" json:"approvalStatus"`
	RejectionReason       *string        `db:"rejection_reason" json:"rejectionReason,omitempty"`
	IsActive              bool           `db:"is_active" json:"isActive"`
	IsEmailVerified       bool           `db:"is_email_verified" json:"isEmailVerified"`
	VerificationCode      *string        `db:"verification_code" json:"-"`
	VerificationExpiresAt *time.Time     `db:"verification_expires_at" json:"-"`
	Phone                 *string        `db:"phone" json:"phone,omitempty"`
	Hostel                *string        `db:"hostel" json:"hostel,omitempty"`
	Block                 *string        `db:"block" json:"block,omitempty"`
	RoomID                *string        `db:"room_id" json:"roomId,omitempty"`
	RoomNumber            *string        `db:"room_number" json:"roomNumber,omitempty"`
	LastLogin             *time.Time     `db:"last_login" json:"lastLogin,omitempty"`
	CreatedAt             time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time      `db:"updated_at" json:"updatedAt"`
}

// BlockValue returns the user's block or an empty string.
func (u *User) BlockValue() string {
	if u == nil || u.Block == nil {
		return ""
	}
	return *u.Block
}

// HostelValue returns the user's hostel or an empty string.
func (u *User) HostelValue() string {
	if u == nil || u.Hostel == nil {
		return ""
	}
	return *u.Hostel
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role           *UserRole
	ApprovalStatus *ApprovalStatus
	Active         *bool
	Hostel         string
	Block          string
	Search         string
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// UpdateProfileRequest carries the fields a user may change on their own record.
type UpdateProfileRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=2,max=100"`
	Phone *string `json:"phone" validate:"omitempty,max=20"`
}

// RejectUserRequest records why an account was rejected.
type RejectUserRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// UpdateUserStatusRequest toggles the activity flag.
type UpdateUserStatusRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

// UpdateUserRoleRequest changes a user's role.
type UpdateUserRoleRequest struct {
	Role UserRole `json:"role" validate:"required,oneof=student warden admin"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"limit"`
	TotalCount int `json:"total"`
	TotalPages int `json:"pages"`
}

// NewPagination derives the page count from the totals.
func NewPagination(page, pageSize, total int) *Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pages := total / pageSize
	if total%pageSize != 0 {
		pages++
	}
	return &Pagination{Page: page, PageSize: pageSize, TotalCount: total, TotalPages: pages}
}

// Paging defaults shared by every list endpoint.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NormalizePage clamps page and size into the supported range.
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > MaxPageSize {
		size = DefaultPageSize
	}
	return page, size
}
