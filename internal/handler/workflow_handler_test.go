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

type fakeComplaintSrv struct {
	complaintService
	lastFilter models.ComplaintFilter
}

func (f *fakeComplaintSrv) Create(_ context.Context, studentID string, req models.CreateComplaintRequest) (*models.Complaint, error) {
	return &models.Complaint{ID: "c1", TicketID: "TKT-20240314-ABCDEF0123", StudentID: studentID, Title: req.Title}, nil
}

func (f *fakeComplaintSrv) List(_ context.Context, filter models.ComplaintFilter) (*models.ComplaintList, error) {
	f.lastFilter = filter
	return &models.ComplaintList{
		Complaints:   []models.Complaint{},
		StatusCounts: map[string]int{"pending": 2},
		Pagination:   models.NewPagination(1, 20, 2),
	}, nil
}

func TestComplaintCreateReportsTicket(t *testing.T) {
	c, w := newGinContext(http.MethodPost, "/complaints", map[string]string{"title": "Leaking tap", "description": "Bathroom tap leaks", "category": "plumbing"})
	asUser(c, "s1", models.RoleStudent)
	NewComplaintHandler(&fakeComplaintSrv{}).Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, decodeEnvelope(t, w).Message, "TKT-20240314-ABCDEF0123")
}

func TestComplaintListCarriesCountsAndPagination(t *testing.T) {
	srv := &fakeComplaintSrv{}
	c, w := newGinContext(http.MethodGet, "/complaints?status=pending&category=food&studentId=s9", nil)
	NewComplaintHandler(srv).List(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.EqualValues(t, 2, env.Pagination["total"])
	var list models.ComplaintList
	decodeData(t, env, &list)
	assert.Equal(t, 2, list.StatusCounts["pending"])
	assert.Equal(t, "food", srv.lastFilter.Category)
	assert.Equal(t, "s9", srv.lastFilter.StudentID)
}

func TestComplaintListSameDayRangeCoversWholeDay(t *testing.T) {
	srv := &fakeComplaintSrv{}
	c, w := newGinContext(http.MethodGet, "/complaints?from=2026-10-17&to=2026-10-17", nil)
	NewComplaintHandler(srv).List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, srv.lastFilter.From)
	require.NotNil(t, srv.lastFilter.To)
	filed := time.Date(2026, 10, 17, 10, 0, 0, 0, time.Local)
	assert.False(t, filed.Before(*srv.lastFilter.From))
	assert.True(t, filed.Before(*srv.lastFilter.To))
	assert.Equal(t, time.Date(2026, 10, 18, 0, 0, 0, 0, time.Local), *srv.lastFilter.To)
}

func TestListRejectsMalformedPaging(t *testing.T) {
	for _, path := range []string{"/complaints?page=two", "/complaints?limit=ten", "/complaints?page_size=x"} {
		srv := &fakeComplaintSrv{}
		c, w := newGinContext(http.MethodGet, path, nil)
		NewComplaintHandler(srv).List(c)

		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, appErrors.ErrValidation.Code, decodeEnvelope(t, w).Error, path)
	}

	srv := &fakeComplaintSrv{}
	c, w := newGinContext(http.MethodGet, "/complaints?page=3&page_size=15", nil)
	NewComplaintHandler(srv).List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, srv.lastFilter.Page)
	assert.Equal(t, 15, srv.lastFilter.PageSize)
}

type fakeWardenRequestSrv struct {
	wardenRequestService
	note string
}

func (f *fakeWardenRequestSrv) Reject(_ context.Context, id string, _ *models.JWTClaims, req models.ReviewWardenRequest) (*models.WardenRequest, error) {
	f.note = req.Note
	if id == "done" {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request has already been reviewed")
	}
	return &models.WardenRequest{ID: id, Status: models.ApprovalRejected}, nil
}

func TestWardenRequestRejectWithoutBody(t *testing.T) {
	srv := &fakeWardenRequestSrv{}
	c, w := newGinContext(http.MethodPatch, "/warden-requests/r1/reject", nil)
	c.AddParam("id", "r1")
	asUser(c, "admin-1", models.RoleAdmin)
	NewWardenRequestHandler(srv).Reject(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, srv.note)
}

func TestWardenRequestRejectReviewedIsTransitionError(t *testing.T) {
	c, w := newGinContext(http.MethodPatch, "/warden-requests/done/reject", map[string]string{"note": "no vacancy"})
	c.AddParam("id", "done")
	asUser(c, "admin-1", models.RoleAdmin)
	srv := &fakeWardenRequestSrv{}
	NewWardenRequestHandler(srv).Reject(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "no vacancy", srv.note)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, decodeEnvelope(t, w).Error)
}

type fakeAnnouncementSrv struct {
	announcementService
	read map[string]bool
}

func (f *fakeAnnouncementSrv) MarkRead(_ context.Context, id string, _ *models.JWTClaims) (bool, error) {
	if f.read[id] {
		return false, nil
	}
	f.read[id] = true
	return true, nil
}

func TestAnnouncementMarkReadIsIdempotent(t *testing.T) {
	srv := &fakeAnnouncementSrv{read: map[string]bool{}}
	handler := NewAnnouncementHandler(srv)

	for _, want := range []string{"marked as read", "already read"} {
		c, w := newGinContext(http.MethodPost, "/announcements/a1/read", nil)
		c.AddParam("id", "a1")
		asUser(c, "s1", models.RoleStudent)
		handler.MarkRead(c)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, want, decodeEnvelope(t, w).Message)
	}
}

type fakeRoomSrv struct {
	roomService
}

func (fakeRoomSrv) Allocate(context.Context, string, models.RoomOccupantRequest) (*models.Room, error) {
	return nil, appErrors.Clone(appErrors.ErrConflict, "room is at capacity")
}

func TestRoomAllocateFullRoom(t *testing.T) {
	c, w := newGinContext(http.MethodPost, "/rooms/r1/allocate", map[string]string{"studentId": "33333333-3333-3333-3333-333333333333"})
	c.AddParam("id", "r1")
	NewRoomHandler(fakeRoomSrv{}).Allocate(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "room is at capacity", decodeEnvelope(t, w).Message)
}

func TestRoomAllocateRejectsMalformedBody(t *testing.T) {
	c, w := newGinContext(http.MethodPost, "/rooms/r1/allocate", []byte("{"))
	NewRoomHandler(fakeRoomSrv{}).Allocate(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type fakeUserSrv struct {
	userService
	updated string
}

func (f *fakeUserSrv) UpdateProfile(_ context.Context, id string, _ models.UpdateProfileRequest) (*models.User, error) {
	f.updated = id
	return &models.User{ID: id}, nil
}

func TestUserProfileOnlySelf(t *testing.T) {
	srv := &fakeUserSrv{}
	handler := NewUserHandler(srv)

	c, w := newGinContext(http.MethodPut, "/users/u2/profile", map[string]string{"name": "Asha"})
	c.AddParam("id", "u2")
	asUser(c, "u1", models.RoleAdmin)
	handler.UpdateProfile(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, srv.updated)

	c, w = newGinContext(http.MethodPut, "/users/u1/profile", map[string]string{"name": "Asha"})
	c.AddParam("id", "u1")
	asUser(c, "u1", models.RoleStudent)
	handler.UpdateProfile(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", srv.updated)
}

func TestUserListRejectsUnknownRole(t *testing.T) {
	c, w := newGinContext(http.MethodGet, "/users?role=janitor", nil)
	asUser(c, "admin-1", models.RoleAdmin)
	NewUserHandler(&fakeUserSrv{}).List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type fakeAuthSrv struct {
	authService
}

func (fakeAuthSrv) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if req.IP == "" {
		return nil, appErrors.ErrInternal
	}
	return nil, appErrors.ErrInvalidCredentials
}

func TestAuthLoginPassesClientMetaAndMapsErrors(t *testing.T) {
	c, w := newGinContext(http.MethodPost, "/auth/login", map[string]string{"email": "a@college.edu", "password": "x"})
	NewAuthHandler(fakeAuthSrv{}).Login(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid email or password", decodeEnvelope(t, w).Message)
}

func TestAuthGoogleCallbackRequiresCode(t *testing.T) {
	c, w := newGinContext(http.MethodGet, "/auth/google/callback?state=abc", nil)
	NewAuthHandler(fakeAuthSrv{}).GoogleCallback(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
