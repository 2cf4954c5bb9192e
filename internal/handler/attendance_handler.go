package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostel-api/internal/models"
	"github.com/noah-isme/hostel-api/pkg/response"
)

type attendanceService interface {
	MarkSelf(ctx context.Context, studentID string, req models.SelfMarkRequest) (*models.Attendance, error)
	Mark(ctx context.Context, actor *models.JWTClaims, req models.MarkAttendanceRequest) (*models.Attendance, bool, error)
	Update(ctx context.Context, id string, actor *models.JWTClaims, req models.UpdateAttendanceRequest) (*models.Attendance, error)
	Approve(ctx context.Context, id string, actor *models.JWTClaims) (*models.Attendance, error)
	Reject(ctx context.Context, id string, actor *models.JWTClaims, req models.RejectAttendanceRequest) (*models.Attendance, error)
	BulkApprove(ctx context.Context, actor *models.JWTClaims, req models.BulkApproveRequest) (*models.BulkApproveResult, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, *models.Pagination, error)
	Pending(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, *models.Pagination, error)
	ForStudent(ctx context.Context, studentID string, from, to *time.Time) (*models.StudentAttendance, error)
}

// AttendanceHandler exposes daily attendance marking and approval.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(svc attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// MarkSelf godoc
// @Summary Mark own attendance for today
// @Description A second mark for the same day returns 409 with the existing record in data.
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.SelfMarkRequest true "Status"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/mark [post]
func (h *AttendanceHandler) MarkSelf(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.SelfMarkRequest
	if !bindJSON(c, &req, "invalid attendance payload") {
		return
	}
	record, err := h.service.MarkSelf(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "attendance marked, awaiting approval", record)
}

// Mark godoc
// @Summary Mark attendance for a student
// @Description Edits the existing record for that day when one exists.
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.MarkAttendanceRequest true "Attendance"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Router /attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.MarkAttendanceRequest
	if !bindJSON(c, &req, "invalid attendance payload") {
		return
	}
	record, created, err := h.service.Mark(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if created {
		response.Created(c, "attendance marked", record)
		return
	}
	response.Message(c, http.StatusOK, "attendance updated", record)
}

// Update godoc
// @Summary Edit an attendance record
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Attendance ID"
// @Param payload body models.UpdateAttendanceRequest true "Fields"
// @Success 200 {object} response.Envelope
// @Router /attendance/{id} [put]
func (h *AttendanceHandler) Update(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.UpdateAttendanceRequest
	if !bindJSON(c, &req, "invalid attendance payload") {
		return
	}
	record, err := h.service.Update(c.Request.Context(), c.Param("id"), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "attendance updated", record)
}

// Approve godoc
// @Summary Approve a pending record
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param id path string true "Attendance ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/{id}/approve [patch]
func (h *AttendanceHandler) Approve(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	record, err := h.service.Approve(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "attendance approved", record)
}

// Reject godoc
// @Summary Reject a pending record
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Attendance ID"
// @Param payload body models.RejectAttendanceRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/{id}/reject [patch]
func (h *AttendanceHandler) Reject(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.RejectAttendanceRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "invalid rejection payload") {
		return
	}
	record, err := h.service.Reject(c.Request.Context(), c.Param("id"), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "attendance rejected", record)
}

// BulkApprove godoc
// @Summary Approve many pending records
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.BulkApproveRequest true "Record ids"
// @Success 200 {object} response.Envelope
// @Router /attendance/bulk-approve [post]
func (h *AttendanceHandler) BulkApprove(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.BulkApproveRequest
	if !bindJSON(c, &req, "invalid bulk approval payload") {
		return
	}
	result, err := h.service.BulkApprove(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List attendance
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param studentId query string false "Student"
// @Param status query string false "present, absent, late or leave"
// @Param approvalStatus query string false "pending, approved or rejected"
// @Param from query string false "YYYY-MM-DD"
// @Param to query string false "YYYY-MM-DD"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	filter, err := attendanceFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	rows, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// Pending godoc
// @Summary List records awaiting approval
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance/pending [get]
func (h *AttendanceHandler) Pending(c *gin.Context) {
	filter, err := attendanceFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	rows, pagination, err := h.service.Pending(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// ForStudent godoc
// @Summary A student's attendance with summary counts
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Param from query string false "YYYY-MM-DD"
// @Param to query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /attendance/student/{studentId} [get]
func (h *AttendanceHandler) ForStudent(c *gin.Context) {
	from, err := queryDate(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := queryDate(c, "to")
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.ForStudent(c.Request.Context(), c.Param("studentId"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func attendanceFilter(c *gin.Context) (models.AttendanceFilter, error) {
	var filter models.AttendanceFilter
	var err error
	if filter.Page, filter.PageSize, err = pageParams(c); err != nil {
		return filter, err
	}
	filter.StudentID = c.Query("studentId")
	if status := c.Query("status"); status != "" {
		s := models.AttendanceStatus(status)
		filter.Status = &s
	}
	if approval := c.Query("approvalStatus"); approval != "" {
		a := models.ApprovalStatus(approval)
		filter.ApprovalStatus = &a
	}
	if filter.From, err = queryDate(c, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = queryDate(c, "to"); err != nil {
		return filter, err
	}
	return filter, nil
}
