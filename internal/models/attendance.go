package models

import "time"

// AttendanceStatus is the daily presence state of a student.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceLeave   AttendanceStatus = "leave"
)

// DefaultAttendanceRejection is stored when a reviewer rejects without a reason.
const DefaultAttendanceRejection = "Rejected by warden"

// Attendance is one record per student per calendar day.
type Attendance struct {
	ID              string           `db:"id" json:"id"`
	StudentID       string           `db:"student_id" json:"studentId"`
	Date            time.Time        `db:"date" json:"date"`
	Status          AttendanceStatus `db:"status" json:"status"`
	Remarks         *string          `db:"remarks" json:"remarks,omitempty"`
	ApprovalStatus  ApprovalStatus   `db:"approval_status" json:"approvalStatus"`
	ApprovedBy      *string          `db:"approved_by" json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time       `db:"approved_at" json:"approvedAt,omitempty"`
	RejectionReason *string          `db:"rejection_reason" json:"rejectionReason,omitempty"`
	MarkedBy        string           `db:"marked_by" json:"markedBy"`
	IsEdited        bool             `db:"is_edited" json:"isEdited"`
	EditedBy        *string          `db:"edited_by" json:"editedBy,omitempty"`
	EditedAt        *time.Time       `db:"edited_at" json:"editedAt,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updatedAt"`

	StudentName      string `db:"student_name" json:"studentName,omitempty"`
	StudentCollegeID string `db:"student_college_id" json:"studentCollegeId,omitempty"`
}

// AttendanceFilter narrows attendance listings.
type AttendanceFilter struct {
	StudentID      string
	Status         *AttendanceStatus
	ApprovalStatus *ApprovalStatus
	From           *time.Time
	To             *time.Time
	Page           int
	PageSize       int
	SortOrder      string
}

// SelfMarkRequest is a student's mark for today.
type SelfMarkRequest struct {
	Status  AttendanceStatus `json:"status" validate:"required,oneof=present absent late leave"`
	Remarks string           `json:"remarks" validate:"omitempty,max=500"`
}

// MarkAttendanceRequest is a privileged mark for any student and date.
type MarkAttendanceRequest struct {
	StudentID string           `json:"studentId" validate:"required,uuid"`
	Date      string           `json:"date" validate:"required,datetime=2006-01-02"`
	Status    AttendanceStatus `json:"status" validate:"required,oneof=present absent late leave"`
	Remarks   string           `json:"remarks" validate:"omitempty,max=500"`
}

// UpdateAttendanceRequest edits status and remarks of an existing record.
type UpdateAttendanceRequest struct {
	Status  *AttendanceStatus `json:"status" validate:"omitempty,oneof=present absent late leave"`
	Remarks *string           `json:"remarks" validate:"omitempty,max=500"`
}

// RejectAttendanceRequest carries an optional rejection reason.
type RejectAttendanceRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// BulkApproveRequest approves several pending records at once.
type BulkApproveRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=200,dive,uuid"`
}

// BulkApproveResult partitions the requested ids by outcome.
type BulkApproveResult struct {
	Approved []string          `json:"approved"`
	Skipped  []string          `json:"skipped"`
	Failed   map[string]string `json:"failed"`
}

// AttendanceSummary counts a student's records by status.
type AttendanceSummary struct {
	Total   int `json:"total"`
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
	Leave   int `json:"leave"`
	Pending int `json:"pending"`
}

// StudentAttendance bundles a student's records and summary.
type StudentAttendance struct {
	Records []Attendance      `json:"records"`
	Summary AttendanceSummary `json:"summary"`
}
