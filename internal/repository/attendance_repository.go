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
)

const attendanceColumns = `a.id, a.student_id, a.date, a.status, a.remarks, a.approval_status, a.approved_by, a.approved_at, a.rejection_reason, a.marked_by, a.is_edited, a.edited_by, a.edited_at, a.created_at, a.updated_at,
    u.name AS student_name, u.college_id AS student_college_id`

const attendanceFrom = `FROM attendance a JOIN users u ON u.id = a.student_id`

// AttendanceRepository persists daily attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Create inserts a record. A second record for the same student and day yields ErrDuplicate.
func (r *AttendanceRepository) Create(ctx context.Context, record *models.Attendance) error {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO attendance (id, student_id, date, status, remarks, approval_status, approved_by, approved_at, marked_by, is_edited, created_at, updated_at)
VALUES (:id, :student_id, :date, :status, :remarks, :approval_status, :approved_by, :approved_at, :marked_by, :is_edited, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return wrapWrite("create attendance", err)
	}
	return nil
}

// FindByID returns a record by id.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE a.id = $1", attendanceColumns, attendanceFrom)
	return r.getOne(ctx, "find attendance", query, id)
}

// FindByStudentAndDate returns the record for a student on a given day.
func (r *AttendanceRepository) FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.Attendance, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE a.student_id = $1 AND a.date = $2", attendanceColumns, attendanceFrom)
	return r.getOne(ctx, "find attendance by date", query, studentID, date)
}

func (r *AttendanceRepository) getOne(ctx context.Context, op, query string, args ...interface{}) (*models.Attendance, error) {
	var record models.Attendance
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &record, nil
}

// UpdateEdit stores a privileged edit. Approval columns are left untouched.
func (r *AttendanceRepository) UpdateEdit(ctx context.Context, record *models.Attendance) error {
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE attendance SET status = :status, remarks = :remarks, is_edited = :is_edited, edited_by = :edited_by, edited_at = :edited_at, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return fmt.Errorf("update attendance: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Decide moves a pending record to approved or rejected.
// Returns sql.ErrNoRows when the record is missing or no longer pending.
func (r *AttendanceRepository) Decide(ctx context.Context, id string, status models.ApprovalStatus, reviewerID string, at time.Time, reason *string) error {
	query := fmt.Sprintf(`UPDATE attendance SET approval_status = $2, approved_by = $3, approved_at = $4, rejection_reason = $5, updated_at = $4
WHERE id = $1 AND approval_status = '%s'`, models.ApprovalPending)
	return execOne(ctx, r.db, "decide attendance", query, id, status, reviewerID, at, reason)
}

// List returns attendance rows matching the filter.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.ApprovalStatus != nil {
		where = append(where, fmt.Sprintf("a.approval_status = $%d", len(args)+1))
		args = append(args, *filter.ApprovalStatus)
	}
	if filter.From != nil {
		where = append(where, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		where = append(where, fmt.Sprintf("a.date <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	whereClause := strings.Join(where, " AND ")

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	_, size, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY a.date %s, u.college_id LIMIT %d OFFSET %d", attendanceColumns, attendanceFrom, whereClause, order, size, offset)
	var rows []models.Attendance
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", attendanceFrom, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return rows, total, nil
}

// ListByStudent returns every record for a student within the optional range.
func (r *AttendanceRepository) ListByStudent(ctx context.Context, studentID string, from, to *time.Time) ([]models.Attendance, error) {
	where := []string{"a.student_id = $1"}
	args := []interface{}{studentID}
	if from != nil {
		where = append(where, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, *from)
	}
	if to != nil {
		where = append(where, fmt.Sprintf("a.date <= $%d", len(args)+1))
		args = append(args, *to)
	}
	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY a.date DESC", attendanceColumns, attendanceFrom, strings.Join(where, " AND "))
	var rows []models.Attendance
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list student attendance: %w", err)
	}
	return rows, nil
}

// CountPresentDays counts present days in [from, to) that were not rejected.
func (r *AttendanceRepository) CountPresentDays(ctx context.Context, studentID string, from, to time.Time) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM attendance WHERE student_id = $1 AND date >= $2 AND date < $3 AND status = '%s' AND approval_status <> '%s'`,
		models.AttendancePresent, models.ApprovalRejected)
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, from, to); err != nil {
		return 0, fmt.Errorf("count present days: %w", err)
	}
	return count, nil
}
