package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostel-api/internal/models"
	"github.com/noah-isme/hostel-api/pkg/response"
)

type wardenRequestService interface {
	Submit(ctx context.Context, userID string, req models.CreateWardenRequest) (*models.WardenRequest, error)
	Mine(ctx context.Context, userID string) ([]models.WardenRequest, error)
	List(ctx context.Context, filter models.WardenRequestFilter) ([]models.WardenRequest, *models.Pagination, error)
	Approve(ctx context.Context, id string, actor *models.JWTClaims, req models.ReviewWardenRequest) (*models.WardenRequest, error)
	Reject(ctx context.Context, id string, actor *models.JWTClaims, req models.ReviewWardenRequest) (*models.WardenRequest, error)
}

// WardenRequestHandler exposes the student-to-warden promotion workflow.
type WardenRequestHandler struct {
	service wardenRequestService
}

// NewWardenRequestHandler constructs the handler.
func NewWardenRequestHandler(svc wardenRequestService) *WardenRequestHandler {
	return &WardenRequestHandler{service: svc}
}

// Submit godoc
// @Summary Request promotion to warden
// @Tags Warden Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateWardenRequest true "Request"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /warden-requests [post]
func (h *WardenRequestHandler) Submit(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.CreateWardenRequest
	if !bindJSON(c, &req, "invalid warden request payload") {
		return
	}
	request, err := h.service.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "warden request submitted", request)
}

// Mine godoc
// @Summary Own warden requests
// @Tags Warden Requests
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /warden-requests/mine [get]
func (h *WardenRequestHandler) Mine(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	requests, err := h.service.Mine(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// List godoc
// @Summary List warden requests
// @Tags Warden Requests
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending, approved or rejected"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /warden-requests [get]
func (h *WardenRequestHandler) List(c *gin.Context) {
	var filter models.WardenRequestFilter
	var err error
	if filter.Page, filter.PageSize, err = pageParams(c); err != nil {
		response.Error(c, err)
		return
	}
	if status := c.Query("status"); status != "" {
		s := models.ApprovalStatus(status)
		filter.Status = &s
	}
	requests, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Approve godoc
// @Summary Approve a warden request and promote the user
// @Tags Warden Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Param payload body models.ReviewWardenRequest false "Note"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /warden-requests/{id}/approve [patch]
func (h *WardenRequestHandler) Approve(c *gin.Context) {
	h.review(c, h.service.Approve, "warden request approved")
}

// Reject godoc
// @Summary Reject a warden request
// @Tags Warden Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Param payload body models.ReviewWardenRequest false "Note"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /warden-requests/{id}/reject [patch]
func (h *WardenRequestHandler) Reject(c *gin.Context) {
	h.review(c, h.service.Reject, "warden request rejected")
}

type reviewFunc func(ctx context.Context, id string, actor *models.JWTClaims, req models.ReviewWardenRequest) (*models.WardenRequest, error)

func (h *WardenRequestHandler) review(c *gin.Context, decide reviewFunc, message string) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.ReviewWardenRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "invalid review payload") {
		return
	}
	request, err := decide(c.Request.Context(), c.Param("id"), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, message, request)
}
