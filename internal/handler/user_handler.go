package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostel-api/internal/models"
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
	"github.com/noah-isme/hostel-api/pkg/response"
)

type userService interface {
	List(ctx context.Context, actor *models.JWTClaims, filter models.UserFilter) ([]models.User, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, req models.UpdateProfileRequest) (*models.User, error)
	Approve(ctx context.Context, id string, actor *models.JWTClaims, meta models.LoginRequest) (*models.User, error)
	Reject(ctx context.Context, id string, req models.RejectUserRequest, actor *models.JWTClaims, meta models.LoginRequest) (*models.User, error)
	SetActive(ctx context.Context, id string, req models.UpdateUserStatusRequest, actor *models.JWTClaims, meta models.LoginRequest) (*models.User, error)
	ChangeRole(ctx context.Context, id string, req models.UpdateUserRoleRequest, actor *models.JWTClaims, meta models.LoginRequest) (*models.User, error)
}

// UserHandler handles account administration endpoints.
type UserHandler struct {
	service userService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc userService) *UserHandler {
	return &UserHandler{service: svc}
}

// List godoc
// @Summary List users
// @Description Wardens only see students.
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Param role query string false "Role filter"
// @Param approvalStatus query string false "Approval status filter"
// @Param active query bool false "Active filter"
// @Param hostel query string false "Hostel"
// @Param block query string false "Block"
// @Param search query string false "Name, email or college id"
// @Param sort_by query string false "Sort by"
// @Param sort_order query string false "Sort order"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var filter models.UserFilter
	var err error
	if filter.Page, filter.PageSize, err = pageParams(c); err != nil {
		response.Error(c, err)
		return
	}
	if role := c.Query("role"); role != "" {
		r := models.UserRole(role)
		if !r.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown role"))
			return
		}
		filter.Role = &r
	}
	if status := c.Query("approvalStatus"); status != "" {
		s := models.ApprovalStatus(status)
		filter.ApprovalStatus = &s
	}
	if active := c.Query("active"); active != "" {
		if val, err := strconv.ParseBool(active); err == nil {
			filter.Active = &val
		}
	}
	filter.Hostel = c.Query("hostel")
	filter.Block = c.Query("block")
	filter.Search = c.Query("search")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	users, pagination, err := h.service.List(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// Get godoc
// @Summary Get user
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// UpdateProfile godoc
// @Summary Update own profile
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param payload body models.UpdateProfileRequest true "Profile fields"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users/{id}/profile [put]
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	if claims.UserID != c.Param("id") {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "you can only edit your own profile"))
		return
	}
	var req models.UpdateProfileRequest
	if !bindJSON(c, &req, "invalid profile payload") {
		return
	}
	user, err := h.service.UpdateProfile(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "profile updated", user)
}

// Approve godoc
// @Summary Approve account
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /users/{id}/approve [patch]
func (h *UserHandler) Approve(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	user, err := h.service.Approve(c.Request.Context(), c.Param("id"), claims, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "account approved", user)
}

// Reject godoc
// @Summary Reject account
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param payload body models.RejectUserRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/reject [patch]
func (h *UserHandler) Reject(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.RejectUserRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "invalid rejection payload") {
		return
	}
	user, err := h.service.Reject(c.Request.Context(), c.Param("id"), req, claims, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "account rejected", user)
}

// SetStatus godoc
// @Summary Activate or deactivate account
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param payload body models.UpdateUserStatusRequest true "Active flag"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/status [patch]
func (h *UserHandler) SetStatus(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.UpdateUserStatusRequest
	if !bindJSON(c, &req, "invalid status payload") {
		return
	}
	user, err := h.service.SetActive(c.Request.Context(), c.Param("id"), req, claims, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "account status updated", user)
}

// ChangeRole godoc
// @Summary Change account role
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param payload body models.UpdateUserRoleRequest true "Role"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/role [patch]
func (h *UserHandler) ChangeRole(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.UpdateUserRoleRequest
	if !bindJSON(c, &req, "invalid role payload") {
		return
	}
	user, err := h.service.ChangeRole(c.Request.Context(), c.Param("id"), req, claims, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "role updated", user)
}
