package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostel-api/internal/models"
	"github.com/noah-isme/hostel-api/internal/repository"
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
)

type attendanceRepoStub struct {
	records   map[string]*models.Attendance
	decideErr error
	decided   []string
}

func newAttendanceRepoStub(records ...*models.Attendance) *attendanceRepoStub {
	stub := &attendanceRepoStub{records: map[string]*models.Attendance{}}
	for _, r := range records {
		stub.records[r.ID] = r
	}
	return stub
}

func (s *attendanceRepoStub) Create(ctx context.Context, record *models.Attendance) error {
	for _, r := range s.records {
		if r.StudentID == record.StudentID && r.Date.Equal(record.Date) {
			return repository.ErrDuplicate
		}
	}
	if record.ID == "" {
		record.ID = "att-" + record.StudentID + "-" + record.Date.Format("20060102")
	}
	clone := *record
	s.records[record.ID] = &clone
	return nil
}

func (s *attendanceRepoStub) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	if r, ok := s.records[id]; ok {
		clone := *r
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (s *attendanceRepoStub) FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.Attendance, error) {
	for _, r := range s.records {
		if r.StudentID == studentID && r.Date.Equal(date) {
			clone := *r
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *attendanceRepoStub) UpdateEdit(ctx context.Context, record *models.Attendance) error {
	existing, ok := s.records[record.ID]
	if !ok {
		return sql.ErrNoRows
	}
	existing.Status = record.Status
	existing.Remarks = record.Remarks
	existing.IsEdited = true
	existing.EditedBy = record.EditedBy
	existing.EditedAt = record.EditedAt
	return nil
}

func (s *attendanceRepoStub) Decide(ctx context.Context, id string, status models.ApprovalStatus, reviewerID string, at time.Time, reason *string) error {
	if s.decideErr != nil {
		return s.decideErr
	}
	r, ok := s.records[id]
	if !ok || r.ApprovalStatus != models.ApprovalPending {
		return sql.ErrNoRows
	}
	r.ApprovalStatus = status
	r.ApprovedBy = &reviewerID
	r.ApprovedAt = &at
	r.RejectionReason = reason
	s.decided = append(s.decided, id)
	return nil
}

func (s *attendanceRepoStub) List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error) {
	var out []models.Attendance
	for _, r := range s.records {
		if filter.ApprovalStatus != nil && r.ApprovalStatus != *filter.ApprovalStatus {
			continue
		}
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (s *attendanceRepoStub) ListByStudent(ctx context.Context, studentID string, from, to *time.Time) ([]models.Attendance, error) {
	var out []models.Attendance
	for _, r := range s.records {
		if r.StudentID == studentID {
			out = append(out, *r)
		}
	}
	return out, nil
}

type userLookupStub map[string]*models.User

func (s userLookupStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

var attendanceNow = time.Date(2024, time.March, 14, 15, 30, 0, 0, time.Local)

func newTestAttendanceService(repo *attendanceRepoStub) *AttendanceService {
	users := userLookupStub{
		"11111111-1111-1111-1111-111111111111": {ID: "11111111-1111-1111-1111-111111111111", Role: models.RoleStudent},
		"22222222-2222-2222-2222-222222222222": {ID: "22222222-2222-2222-2222-222222222222", Role: models.RoleWarden},
	}
	svc := NewAttendanceService(repo, users, nil, nil, nil)
	svc.now = func() time.Time { return attendanceNow }
	return svc
}

func pendingRecord(id string) *models.Attendance {
	return &models.Attendance{ID: id, StudentID: "s1", Date: Day(attendanceNow), Status: models.AttendancePresent, ApprovalStatus: models.ApprovalPending, MarkedBy: "s1"}
}

func TestDayNormalisesToLocalMidnight(t *testing.T) {
	day := Day(time.Date(2024, time.March, 14, 23, 59, 59, 0, time.Local))
	assert.Equal(t, time.Date(2024, time.March, 14, 0, 0, 0, 0, time.Local), day)
}

func TestMarkSelfCreatesPendingRecord(t *testing.T) {
	repo := newAttendanceRepoStub()
	svc := newTestAttendanceService(repo)

	record, err := svc.MarkSelf(context.Background(), "s1", models.SelfMarkRequest{Status: models.AttendancePresent, Remarks: "  in hostel "})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, record.ApprovalStatus)
	assert.Equal(t, Day(attendanceNow), record.Date)
	assert.Equal(t, "s1", record.MarkedBy)
	require.NotNil(t, record.Remarks)
	assert.Equal(t, "in hostel", *record.Remarks)
}

func TestMarkSelfTwiceReturnsExistingRecord(t *testing.T) {
	repo := newAttendanceRepoStub()
	svc := newTestAttendanceService(repo)

	first, err := svc.MarkSelf(context.Background(), "s1", models.SelfMarkRequest{Status: models.AttendancePresent})
	require.NoError(t, err)

	_, err = svc.MarkSelf(context.Background(), "s1", models.SelfMarkRequest{Status: models.AttendanceAbsent})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	existing, ok := appErr.Details.(*models.Attendance)
	require.True(t, ok)
	assert.Equal(t, first.ID, existing.ID)
	assert.Equal(t, models.AttendancePresent, existing.Status)
}

func TestMarkSelfRejectsUnknownStatus(t *testing.T) {
	svc := newTestAttendanceService(newAttendanceRepoStub())
	_, err := svc.MarkSelf(context.Background(), "s1", models.SelfMarkRequest{Status: "sleeping"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestMarkCreatesApprovedRecordForStudent(t *testing.T) {
	repo := newAttendanceRepoStub()
	svc := newTestAttendanceService(repo)
	actor := &models.JWTClaims{UserID: "w1", Role: models.RoleWarden}

	record, created, err := svc.Mark(context.Background(), actor, models.MarkAttendanceRequest{
		StudentID: "11111111-1111-1111-1111-111111111111",
		Date:      "2024-03-12",
		Status:    models.AttendanceLate,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.ApprovalApproved, record.ApprovalStatus)
	require.NotNil(t, record.ApprovedBy)
	assert.Equal(t, "w1", *record.ApprovedBy)
	assert.Equal(t, "w1", record.MarkedBy)
}

func TestMarkEditsExistingRecordAndKeepsApproval(t *testing.T) {
	studentID := "11111111-1111-1111-1111-111111111111"
	existing := &models.Attendance{ID: "a1", StudentID: studentID, Date: Day(attendanceNow), Status: models.AttendancePresent, ApprovalStatus: models.ApprovalPending, MarkedBy: studentID}
	repo := newAttendanceRepoStub(existing)
	svc := newTestAttendanceService(repo)
	actor := &models.JWTClaims{UserID: "w1", Role: models.RoleWarden}

	record, created, err := svc.Mark(context.Background(), actor, models.MarkAttendanceRequest{
		StudentID: studentID,
		Date:      "2024-03-14",
		Status:    models.AttendanceAbsent,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "a1", record.ID)
	assert.Equal(t, models.AttendanceAbsent, repo.records["a1"].Status)
	assert.Equal(t, models.ApprovalPending, repo.records["a1"].ApprovalStatus)
	assert.True(t, repo.records["a1"].IsEdited)
}

func TestMarkRejectsFutureDateAndNonStudent(t *testing.T) {
	svc := newTestAttendanceService(newAttendanceRepoStub())
	actor := &models.JWTClaims{UserID: "w1", Role: models.RoleWarden}

	_, _, err := svc.Mark(context.Background(), actor, models.MarkAttendanceRequest{StudentID: "11111111-1111-1111-1111-111111111111", Date: "2024-03-15", Status: models.AttendancePresent})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, _, err = svc.Mark(context.Background(), actor, models.MarkAttendanceRequest{StudentID: "22222222-2222-2222-2222-222222222222", Date: "2024-03-14", Status: models.AttendancePresent})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, _, err = svc.Mark(context.Background(), actor, models.MarkAttendanceRequest{StudentID: "33333333-3333-3333-3333-333333333333", Date: "2024-03-14", Status: models.AttendancePresent})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestUpdateMarksRecordEdited(t *testing.T) {
	approvedAt := attendanceNow.Add(-time.Hour)
	record := &models.Attendance{ID: "a1", StudentID: "s1", Status: models.AttendancePresent, ApprovalStatus: models.ApprovalApproved, ApprovedAt: &approvedAt}
	repo := newAttendanceRepoStub(record)
	svc := newTestAttendanceService(repo)
	leave := models.AttendanceLeave

	updated, err := svc.Update(context.Background(), "a1", &models.JWTClaims{UserID: "w1"}, models.UpdateAttendanceRequest{Status: &leave})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceLeave, updated.Status)
	assert.Equal(t, models.ApprovalApproved, updated.ApprovalStatus)
	require.NotNil(t, updated.EditedBy)
	assert.Equal(t, "w1", *updated.EditedBy)

	_, err = svc.Update(context.Background(), "missing", &models.JWTClaims{UserID: "w1"}, models.UpdateAttendanceRequest{Status: &leave})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestApproveAndRejectAreOneWay(t *testing.T) {
	repo := newAttendanceRepoStub(pendingRecord("a1"), pendingRecord("a2"))
	svc := newTestAttendanceService(repo)
	actor := &models.JWTClaims{UserID: "w1", Role: models.RoleWarden}

	approved, err := svc.Approve(context.Background(), "a1", actor)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, approved.ApprovalStatus)
	assert.Nil(t, approved.RejectionReason)

	_, err = svc.Reject(context.Background(), "a1", actor, models.RejectAttendanceRequest{})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	rejected, err := svc.Reject(context.Background(), "a2", actor, models.RejectAttendanceRequest{Reason: " "})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalRejected, rejected.ApprovalStatus)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, models.DefaultAttendanceRejection, *rejected.RejectionReason)
	assert.NotNil(t, rejected.ApprovedAt)

	_, err = svc.Approve(context.Background(), "a2", actor)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	_, err = svc.Approve(context.Background(), "nope", actor)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestApproveLosesRaceToConcurrentDecision(t *testing.T) {
	repo := newAttendanceRepoStub(pendingRecord("a1"))
	repo.decideErr = sql.ErrNoRows
	svc := newTestAttendanceService(repo)

	_, err := svc.Approve(context.Background(), "a1", &models.JWTClaims{UserID: "w1"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
}

func TestBulkApprovePartitionsOutcomes(t *testing.T) {
	done := pendingRecord("22222222-0000-0000-0000-000000000002")
	done.ApprovalStatus = models.ApprovalRejected
	repo := newAttendanceRepoStub(pendingRecord("22222222-0000-0000-0000-000000000001"), done)
	svc := newTestAttendanceService(repo)

	result, err := svc.BulkApprove(context.Background(), &models.JWTClaims{UserID: "w1"}, models.BulkApproveRequest{IDs: []string{
		"22222222-0000-0000-0000-000000000001",
		"22222222-0000-0000-0000-000000000002",
		"22222222-0000-0000-0000-000000000003",
		"22222222-0000-0000-0000-000000000001",
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"22222222-0000-0000-0000-000000000001"}, result.Approved)
	assert.Equal(t, []string{"22222222-0000-0000-0000-000000000002"}, result.Skipped)
	assert.Contains(t, result.Failed, "22222222-0000-0000-0000-000000000003")
	assert.Len(t, repo.decided, 1)
}

func TestBulkApproveValidatesIDs(t *testing.T) {
	svc := newTestAttendanceService(newAttendanceRepoStub())
	_, err := svc.BulkApprove(context.Background(), &models.JWTClaims{UserID: "w1"}, models.BulkApproveRequest{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestSummarizeSkipsRejectedRecords(t *testing.T) {
	summary := Summarize([]models.Attendance{
		{Status: models.AttendancePresent, ApprovalStatus: models.ApprovalApproved},
		{Status: models.AttendancePresent, ApprovalStatus: models.ApprovalPending},
		{Status: models.AttendanceAbsent, ApprovalStatus: models.ApprovalApproved},
		{Status: models.AttendancePresent, ApprovalStatus: models.ApprovalRejected},
		{Status: models.AttendanceLeave, ApprovalStatus: models.ApprovalApproved},
	})
	assert.Equal(t, models.AttendanceSummary{Total: 5, Present: 2, Absent: 1, Leave: 1, Pending: 1}, summary)
}

func TestPendingForcesFilter(t *testing.T) {
	done := pendingRecord("a2")
	done.ApprovalStatus = models.ApprovalApproved
	svc := newTestAttendanceService(newAttendanceRepoStub(pendingRecord("a1"), done))

	rows, pagination, err := svc.Pending(context.Background(), models.AttendanceFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a1", rows[0].ID)
	assert.Equal(t, 1, pagination.TotalCount)
}
