package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hostel-api/internal/models"
	"github.com/noah-isme/hostel-api/internal/repository"
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
)

type attendanceRepository interface {
	Create(ctx context.Context, record *models.Attendance) error
	FindByID(ctx context.Context, id string) (*models.Attendance, error)
	FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.Attendance, error)
	UpdateEdit(ctx context.Context, record *models.Attendance) error
	Decide(ctx context.Context, id string, status models.ApprovalStatus, reviewerID string, at time.Time, reason *string) error
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error)
	ListByStudent(ctx context.Context, studentID string, from, to *time.Time) ([]models.Attendance, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// AttendanceService coordinates attendance marking and approval.
type AttendanceService struct {
	repo      attendanceRepository
	users     userLookup
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, users userLookup, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{repo: repo, users: users, metrics: metrics, validator: validate, logger: logger, now: time.Now}
}

// Day normalises t to midnight in server-local time.
func Day(t time.Time) time.Time {
	local := t.In(time.Local)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.Local)
}

// MarkSelf records today's attendance for the calling student. A second mark for the same
// day fails with the existing record attached.
func (s *AttendanceService) MarkSelf(ctx context.Context, studentID string, req models.SelfMarkRequest) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	today := Day(s.now())

	existing, err := s.repo.FindByStudentAndDate(ctx, studentID, today)
	if err == nil {
		return nil, appErrors.WithDetails(appErrors.ErrConflict, "attendance already marked for today", existing)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check attendance")
	}

	record := &models.Attendance{
		StudentID:      studentID,
		Date:           today,
		Status:         req.Status,
		Remarks:        nullableString(req.Remarks),
		ApprovalStatus: models.ApprovalPending,
		MarkedBy:       studentID,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			existing, findErr := s.repo.FindByStudentAndDate(ctx, studentID, today)
			if findErr != nil {
				existing = nil
			}
			return nil, appErrors.WithDetails(appErrors.ErrConflict, "attendance already marked for today", existing)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
	}
	return record, nil
}

// Mark records attendance for any student on a past or current day. When a record already
// exists it is edited instead and its approval state is preserved. The boolean reports
// whether a new record was created.
func (s *AttendanceService) Mark(ctx context.Context, actor *models.JWTClaims, req models.MarkAttendanceRequest) (*models.Attendance, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	parsed, err := time.ParseInLocation("2006-01-02", req.Date, time.Local)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date")
	}
	date := Day(parsed)
	if date.After(Day(s.now())) {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "attendance cannot be marked for a future date")
	}
	if err := s.ensureStudent(ctx, req.StudentID); err != nil {
		return nil, false, err
	}

	existing, err := s.repo.FindByStudentAndDate(ctx, req.StudentID, date)
	switch {
	case err == nil:
		status := req.Status
		edited, err := s.applyEdit(ctx, existing, actor, models.UpdateAttendanceRequest{Status: &status, Remarks: &req.Remarks})
		return edited, false, err
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check attendance")
	}

	now := s.now().UTC()
	record := &models.Attendance{
		StudentID:      req.StudentID,
		Date:           date,
		Status:         req.Status,
		Remarks:        nullableString(req.Remarks),
		ApprovalStatus: models.ApprovalApproved,
		ApprovedBy:     strPtr(actor.UserID),
		ApprovedAt:     &now,
		MarkedBy:       actor.UserID,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, false, appErrors.Clone(appErrors.ErrConflict, "attendance was marked concurrently, retry to edit it")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
	}
	return record, true, nil
}

// Update edits status and remarks of a record without touching its approval state.
func (s *AttendanceService) Update(ctx context.Context, id string, actor *models.JWTClaims, req models.UpdateAttendanceRequest) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	record, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.applyEdit(ctx, record, actor, req)
}

func (s *AttendanceService) applyEdit(ctx context.Context, record *models.Attendance, actor *models.JWTClaims, req models.UpdateAttendanceRequest) (*models.Attendance, error) {
	if req.Status != nil {
		record.Status = *req.Status
	}
	if req.Remarks != nil {
		record.Remarks = nullableString(*req.Remarks)
	}
	now := s.now().UTC()
	record.IsEdited = true
	record.EditedBy = strPtr(actor.UserID)
	record.EditedAt = &now
	if err := s.repo.UpdateEdit(ctx, record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance")
	}
	return record, nil
}

// Approve moves a pending record to approved.
func (s *AttendanceService) Approve(ctx context.Context, id string, actor *models.JWTClaims) (*models.Attendance, error) {
	record, err := s.decide(ctx, id, actor, models.ApprovalApproved, nil)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAttendanceDecision("approved", 1)
	return record, nil
}

// Reject moves a pending record to rejected. An empty reason falls back to the default.
func (s *AttendanceService) Reject(ctx context.Context, id string, actor *models.JWTClaims, req models.RejectAttendanceRequest) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rejection payload")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = models.DefaultAttendanceRejection
	}
	record, err := s.decide(ctx, id, actor, models.ApprovalRejected, &reason)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAttendanceDecision("rejected", 1)
	return record, nil
}

func (s *AttendanceService) decide(ctx context.Context, id string, actor *models.JWTClaims, status models.ApprovalStatus, reason *string) (*models.Attendance, error) {
	record, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.ApprovalStatus != models.ApprovalPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "attendance record has already been "+string(record.ApprovalStatus))
	}
	now := s.now().UTC()
	if err := s.repo.Decide(ctx, id, status, actor.UserID, now, reason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "attendance record is no longer pending")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update approval")
	}
	record.ApprovalStatus = status
	record.ApprovedBy = strPtr(actor.UserID)
	record.ApprovedAt = &now
	record.RejectionReason = reason
	return record, nil
}

// BulkApprove approves every pending record in ids. Records that are not pending are
// skipped; lookups or writes that fail are reported per id without stopping the batch.
func (s *AttendanceService) BulkApprove(ctx context.Context, actor *models.JWTClaims, req models.BulkApproveRequest) (*models.BulkApproveResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk approval payload")
	}
	result := &models.BulkApproveResult{Approved: []string{}, Skipped: []string{}, Failed: map[string]string{}}
	seen := make(map[string]struct{}, len(req.IDs))
	for _, id := range req.IDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		_, err := s.decide(ctx, id, actor, models.ApprovalApproved, nil)
		switch {
		case err == nil:
			result.Approved = append(result.Approved, id)
		case errors.Is(err, appErrors.ErrInvalidTransition):
			result.Skipped = append(result.Skipped, id)
		default:
			result.Failed[id] = appErrors.FromError(err).Message
			if appErrors.FromError(err).Status >= 500 {
				s.logger.Warn("bulk approve failed", zap.String("attendance_id", id), zap.Error(err))
			}
		}
	}
	s.metrics.RecordAttendanceDecision("approved", len(result.Approved))
	return result, nil
}

// List returns attendance rows with pagination.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, *models.Pagination, error) {
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return rows, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Pending lists records awaiting a decision, oldest first.
func (s *AttendanceService) Pending(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, *models.Pagination, error) {
	pending := models.ApprovalPending
	filter.ApprovalStatus = &pending
	filter.SortOrder = "ASC"
	return s.List(ctx, filter)
}

// ForStudent returns a student's records with per-status counts.
func (s *AttendanceService) ForStudent(ctx context.Context, studentID string, from, to *time.Time) (*models.StudentAttendance, error) {
	records, err := s.repo.ListByStudent(ctx, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	if records == nil {
		records = []models.Attendance{}
	}
	return &models.StudentAttendance{Records: records, Summary: Summarize(records)}, nil
}

// Summarize counts records by status. Rejected records are excluded from the status buckets.
func Summarize(records []models.Attendance) models.AttendanceSummary {
	var summary models.AttendanceSummary
	for _, r := range records {
		summary.Total++
		if r.ApprovalStatus == models.ApprovalPending {
			summary.Pending++
		}
		if r.ApprovalStatus == models.ApprovalRejected {
			continue
		}
		switch r.Status {
		case models.AttendancePresent:
			summary.Present++
		case models.AttendanceAbsent:
			summary.Absent++
		case models.AttendanceLate:
			summary.Late++
		case models.AttendanceLeave:
			summary.Leave++
		}
	}
	return summary
}

func (s *AttendanceService) get(ctx context.Context, id string) (*models.Attendance, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	return record, nil
}

func (s *AttendanceService) ensureStudent(ctx context.Context, id string) error {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if user.Role != models.RoleStudent {
		return appErrors.Clone(appErrors.ErrValidation, "attendance can only be marked for students")
	}
	return nil
}
