package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostel-api/internal/models"
	"github.com/noah-isme/hostel-api/pkg/response"
)

type complaintService interface {
	Create(ctx context.Context, studentID string, req models.CreateComplaintRequest) (*models.Complaint, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Complaint, error)
	UpdateStatus(ctx context.Context, id string, actor *models.JWTClaims, req models.UpdateComplaintStatusRequest) (*models.Complaint, error)
	Mine(ctx context.Context, studentID string, filter models.ComplaintFilter) (*models.ComplaintList, error)
	List(ctx context.Context, filter models.ComplaintFilter) (*models.ComplaintList, error)
}

// ComplaintHandler exposes complaint tickets.
type ComplaintHandler struct {
	service complaintService
}

// NewComplaintHandler constructs the handler.
func NewComplaintHandler(svc complaintService) *ComplaintHandler {
	return &ComplaintHandler{service: svc}
}

// Create godoc
// @Summary File a complaint
// @Tags Complaints
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateComplaintRequest true "Complaint"
// @Success 201 {object} response.Envelope
// @Router /complaints [post]
func (h *ComplaintHandler) Create(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.CreateComplaintRequest
	if !bindJSON(c, &req, "invalid complaint payload") {
		return
	}
	complaint, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "complaint filed as "+complaint.TicketID, complaint)
}

// Mine godoc
// @Summary Own complaints with status counts
// @Tags Complaints
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /complaints/mine [get]
func (h *ComplaintHandler) Mine(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	filter, err := complaintFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	list, err := h.service.Mine(c.Request.Context(), claims.UserID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, list.Pagination)
}

// List godoc
// @Summary List complaints with status and category counts
// @Tags Complaints
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status"
// @Param category query string false "Category"
// @Param priority query string false "Priority"
// @Param studentId query string false "Student"
// @Param from query string false "YYYY-MM-DD"
// @Param to query string false "YYYY-MM-DD"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /complaints [get]
func (h *ComplaintHandler) List(c *gin.Context) {
	filter, err := complaintFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.StudentID = c.Query("studentId")
	list, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, list.Pagination)
}

// Get godoc
// @Summary Get a complaint
// @Tags Complaints
// @Produce json
// @Security BearerAuth
// @Param id path string true "Complaint ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /complaints/{id} [get]
func (h *ComplaintHandler) Get(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	complaint, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, complaint, nil)
}

// UpdateStatus godoc
// @Summary Change complaint status
// @Tags Complaints
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Complaint ID"
// @Param payload body models.UpdateComplaintStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Router /complaints/{id}/status [patch]
func (h *ComplaintHandler) UpdateStatus(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.UpdateComplaintStatusRequest
	if !bindJSON(c, &req, "invalid status payload") {
		return
	}
	complaint, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "complaint updated", complaint)
}

func complaintFilter(c *gin.Context) (models.ComplaintFilter, error) {
	var filter models.ComplaintFilter
	var err error
	if filter.Page, filter.PageSize, err = pageParams(c); err != nil {
		return filter, err
	}
	if status := c.Query("status"); status != "" {
		s := models.ComplaintStatus(status)
		filter.Status = &s
	}
	filter.Category = c.Query("category")
	filter.Priority = c.Query("priority")
	if filter.From, err = queryDate(c, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = queryDate(c, "to"); err != nil {
		return filter, err
	}
	if filter.To != nil {
		// created_at is a timestamp; include the whole "to" day.
		end := filter.To.AddDate(0, 0, 1)
		filter.To = &end
	}
	return filter, nil
}
