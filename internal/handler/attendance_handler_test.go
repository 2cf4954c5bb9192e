package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostel-api/internal/models"
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
)

type fakeAttendanceSrv struct {
	attendanceService
	existing   *models.Attendance
	created    bool
	lastFilter models.AttendanceFilter
	lastFrom   *time.Time
}

func (f *fakeAttendanceSrv) MarkSelf(_ context.Context, studentID string, req models.SelfMarkRequest) (*models.Attendance, error) {
	if f.existing != nil {
		return nil, appErrors.WithDetails(appErrors.ErrConflict, "attendance already marked for today", f.existing)
	}
	return &models.Attendance{ID: "a1", StudentID: studentID, Status: req.Status, ApprovalStatus: models.ApprovalPending}, nil
}

func (f *fakeAttendanceSrv) Mark(_ context.Context, _ *models.JWTClaims, req models.MarkAttendanceRequest) (*models.Attendance, bool, error) {
	return &models.Attendance{ID: "a2", StudentID: req.StudentID, Status: req.Status}, f.created, nil
}

func (f *fakeAttendanceSrv) List(_ context.Context, filter models.AttendanceFilter) ([]models.Attendance, *models.Pagination, error) {
	f.lastFilter = filter
	return []models.Attendance{}, models.NewPagination(1, 20, 0), nil
}

func (f *fakeAttendanceSrv) ForStudent(_ context.Context, _ string, from, _ *time.Time) (*models.StudentAttendance, error) {
	f.lastFrom = from
	return &models.StudentAttendance{Records: []models.Attendance{}}, nil
}

func TestAttendanceMarkSelfConflictCarriesExistingRecord(t *testing.T) {
	srv := &fakeAttendanceSrv{existing: &models.Attendance{ID: "existing", Status: models.AttendancePresent}}
	handler := NewAttendanceHandler(srv)

	c, w := newGinContext(http.MethodPost, "/attendance/mark", map[string]string{"status": "present"})
	asUser(c, "s1", models.RoleStudent)
	handler.MarkSelf(c)

	require.Equal(t, http.StatusConflict, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, appErrors.ErrConflict.Code, env.Error)
	var record models.Attendance
	decodeData(t, env, &record)
	assert.Equal(t, "existing", record.ID)
}

func TestAttendanceMarkSelfCreated(t *testing.T) {
	handler := NewAttendanceHandler(&fakeAttendanceSrv{})

	c, w := newGinContext(http.MethodPost, "/attendance/mark", map[string]string{"status": "late"})
	asUser(c, "s1", models.RoleStudent)
	handler.MarkSelf(c)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestAttendanceMarkSelfRequiresCaller(t *testing.T) {
	handler := NewAttendanceHandler(&fakeAttendanceSrv{})
	c, w := newGinContext(http.MethodPost, "/attendance/mark", map[string]string{"status": "late"})
	handler.MarkSelf(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAttendanceMarkDistinguishesCreateFromEdit(t *testing.T) {
	payload := map[string]string{"studentId": "11111111-1111-1111-1111-111111111111", "date": "2024-03-14", "status": "absent"}

	srv := &fakeAttendanceSrv{created: true}
	c, w := newGinContext(http.MethodPost, "/attendance", payload)
	asUser(c, "w1", models.RoleWarden)
	NewAttendanceHandler(srv).Mark(c)
	assert.Equal(t, http.StatusCreated, w.Code)

	srv.created = false
	c, w = newGinContext(http.MethodPost, "/attendance", payload)
	asUser(c, "w1", models.RoleWarden)
	NewAttendanceHandler(srv).Mark(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "attendance updated", decodeEnvelope(t, w).Message)
}

func TestAttendanceListParsesFilters(t *testing.T) {
	srv := &fakeAttendanceSrv{}
	c, w := newGinContext(http.MethodGet, "/attendance?studentId=s1&status=present&approvalStatus=pending&from=2024-03-01&page=2&limit=5", nil)
	NewAttendanceHandler(srv).List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1", srv.lastFilter.StudentID)
	require.NotNil(t, srv.lastFilter.Status)
	assert.Equal(t, models.AttendancePresent, *srv.lastFilter.Status)
	require.NotNil(t, srv.lastFilter.From)
	assert.Equal(t, 2024, srv.lastFilter.From.Year())
	assert.Equal(t, 2, srv.lastFilter.Page)
	assert.Equal(t, 5, srv.lastFilter.PageSize)
}

func TestAttendanceForStudentRejectsBadDate(t *testing.T) {
	srv := &fakeAttendanceSrv{}
	c, w := newGinContext(http.MethodGet, "/attendance/student/s1?from=14-03-2024", nil)
	NewAttendanceHandler(srv).ForStudent(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, srv.lastFrom)
}
