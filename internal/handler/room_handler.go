package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostel-api/internal/models"
	"github.com/noah-isme/hostel-api/pkg/response"
)

type roomService interface {
	Create(ctx context.Context, req models.CreateRoomRequest) (*models.Room, error)
	Get(ctx context.Context, id string) (*models.Room, error)
	List(ctx context.Context, filter models.RoomFilter) ([]models.Room, *models.Pagination, error)
	Allocate(ctx context.Context, roomID string, req models.RoomOccupantRequest) (*models.Room, error)
	Vacate(ctx context.Context, roomID string, req models.RoomOccupantRequest) (*models.Room, error)
}

// RoomHandler exposes rooms and allocation.
type RoomHandler struct {
	service roomService
}

// NewRoomHandler constructs the handler.
func NewRoomHandler(svc roomService) *RoomHandler {
	return &RoomHandler{service: svc}
}

// Create godoc
// @Summary Register a room
// @Tags Rooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateRoomRequest true "Room"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /rooms [post]
func (h *RoomHandler) Create(c *gin.Context) {
	var req models.CreateRoomRequest
	if !bindJSON(c, &req, "invalid room payload") {
		return
	}
	room, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "room created", room)
}

// List godoc
// @Summary List rooms
// @Tags Rooms
// @Produce json
// @Security BearerAuth
// @Param hostel query string false "Hostel"
// @Param block query string false "Block"
// @Param available query bool false "Only rooms with a free bed"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /rooms [get]
func (h *RoomHandler) List(c *gin.Context) {
	var filter models.RoomFilter
	var err error
	if filter.Page, filter.PageSize, err = pageParams(c); err != nil {
		response.Error(c, err)
		return
	}
	filter.Hostel = c.Query("hostel")
	filter.Block = c.Query("block")
	filter.AvailableOnly, _ = strconv.ParseBool(c.Query("available"))

	rooms, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rooms, pagination)
}

// Get godoc
// @Summary Get a room
// @Tags Rooms
// @Produce json
// @Security BearerAuth
// @Param id path string true "Room ID"
// @Success 200 {object} response.Envelope
// @Router /rooms/{id} [get]
func (h *RoomHandler) Get(c *gin.Context) {
	room, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, room, nil)
}

// Allocate godoc
// @Summary Move a student into a room
// @Tags Rooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Room ID"
// @Param payload body models.RoomOccupantRequest true "Student"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /rooms/{id}/allocate [post]
func (h *RoomHandler) Allocate(c *gin.Context) {
	var req models.RoomOccupantRequest
	if !bindJSON(c, &req, "invalid occupant payload") {
		return
	}
	room, err := h.service.Allocate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "room allocated", room)
}

// Vacate godoc
// @Summary Remove a student from a room
// @Tags Rooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Room ID"
// @Param payload body models.RoomOccupantRequest true "Student"
// @Success 200 {object} response.Envelope
// @Router /rooms/{id}/vacate [post]
func (h *RoomHandler) Vacate(c *gin.Context) {
	var req models.RoomOccupantRequest
	if !bindJSON(c, &req, "invalid occupant payload") {
		return
	}
	room, err := h.service.Vacate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "room vacated", room)
}
