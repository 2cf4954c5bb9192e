package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostel-api/internal/models"
	"github.com/noah-isme/hostel-api/pkg/response"
)

type announcementService interface {
	Create(ctx context.Context, actor *models.JWTClaims, req models.CreateAnnouncementRequest) (*models.Announcement, error)
	List(ctx context.Context, actor *models.JWTClaims, filter models.AnnouncementFilter) (*models.AnnouncementList, *models.Pagination, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Announcement, error)
	Update(ctx context.Context, id string, actor *models.JWTClaims, req models.UpdateAnnouncementRequest) (*models.Announcement, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
	MarkRead(ctx context.Context, id string, actor *models.JWTClaims) (bool, error)
}

// AnnouncementHandler exposes hostel announcements.
type AnnouncementHandler struct {
	service announcementService
}

// NewAnnouncementHandler constructs the handler.
func NewAnnouncementHandler(svc announcementService) *AnnouncementHandler {
	return &AnnouncementHandler{service: svc}
}

// Create godoc
// @Summary Publish an announcement
// @Tags Announcements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateAnnouncementRequest true "Announcement"
// @Success 201 {object} response.Envelope
// @Router /announcements [post]
func (h *AnnouncementHandler) Create(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.CreateAnnouncementRequest
	if !bindJSON(c, &req, "invalid announcement payload") {
		return
	}
	a, err := h.service.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "announcement published", a)
}

// List godoc
// @Summary List announcements
// @Description Students only see live announcements targeted at their hostel and block.
// @Tags Announcements
// @Produce json
// @Security BearerAuth
// @Param category query string false "Category"
// @Param priority query string false "Priority"
// @Param hostel query string false "Hostel (staff only)"
// @Param block query string false "Block (staff only)"
// @Param includeExpired query bool false "Include expired (staff only)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /announcements [get]
func (h *AnnouncementHandler) List(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var filter models.AnnouncementFilter
	var err error
	if filter.Page, filter.PageSize, err = pageParams(c); err != nil {
		response.Error(c, err)
		return
	}
	filter.Category = c.Query("category")
	filter.Priority = c.Query("priority")
	filter.Hostel = c.Query("hostel")
	filter.Block = c.Query("block")
	filter.IncludeExpired, _ = strconv.ParseBool(c.Query("includeExpired"))

	list, pagination, err := h.service.List(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, pagination)
}

// Get godoc
// @Summary Get an announcement
// @Tags Announcements
// @Produce json
// @Security BearerAuth
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /announcements/{id} [get]
func (h *AnnouncementHandler) Get(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	a, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, a, nil)
}

// Update godoc
// @Summary Edit an announcement
// @Tags Announcements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Announcement ID"
// @Param payload body models.UpdateAnnouncementRequest true "Fields"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /announcements/{id} [put]
func (h *AnnouncementHandler) Update(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.UpdateAnnouncementRequest
	if !bindJSON(c, &req, "invalid announcement payload") {
		return
	}
	a, err := h.service.Update(c.Request.Context(), c.Param("id"), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "announcement updated", a)
}

// Delete godoc
// @Summary Delete an announcement
// @Tags Announcements
// @Produce json
// @Security BearerAuth
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /announcements/{id} [delete]
func (h *AnnouncementHandler) Delete(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "announcement deleted", nil)
}

// MarkRead godoc
// @Summary Mark an announcement as read
// @Tags Announcements
// @Produce json
// @Security BearerAuth
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Router /announcements/{id}/read [post]
func (h *AnnouncementHandler) MarkRead(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	added, err := h.service.MarkRead(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	message := "marked as read"
	if !added {
		message = "already read"
	}
	response.Message(c, http.StatusOK, message, gin.H{"read": true})
}
