package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostel-api/internal/models"
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
	"github.com/noah-isme/hostel-api/pkg/export"
	"github.com/noah-isme/hostel-api/pkg/response"
)

type messService interface {
	CreateRate(ctx context.Context, actor *models.JWTClaims, req models.UpsertMessRateRequest) (*models.MessRate, error)
	UpdateRate(ctx context.Context, id string, actor *models.JWTClaims, req models.UpdateMessRateRequest) (*models.RateUpdateResult, error)
	ListRates(ctx context.Context, year int) ([]models.MessRate, error)
	EffectiveRate(ctx context.Context, month, year int) (*models.MessRate, error)
	GenerateBill(ctx context.Context, actor *models.JWTClaims, req models.GenerateBillRequest) (*models.MessBill, error)
	GenerateBulk(ctx context.Context, actor *models.JWTClaims, req models.BulkGenerateRequest) (*models.BulkGenerateResult, error)
	UpdateBill(ctx context.Context, id string, req models.UpdateBillRequest) (*models.MessBill, error)
	UpdatePayment(ctx context.Context, id string, req models.UpdatePaymentRequest) (*models.MessBill, error)
	GetBill(ctx context.Context, id string) (*models.MessBill, error)
	ListBills(ctx context.Context, filter models.MessBillFilter) ([]models.MessBill, *models.Pagination, *models.MessBillTotals, error)
	StudentBills(ctx context.Context, studentID string) ([]models.MessBill, error)
}

type billExporter interface {
	ExportBills(ctx context.Context, actor *models.JWTClaims, req models.ExportBillsRequest) (*models.ExportResult, error)
	ParseToken(token string) (ownerID, relPath string, err error)
	Open(relPath string) (*os.File, error)
}

// MessHandler exposes mess rates, bills and statement exports.
type MessHandler struct {
	service messService
	exports billExporter
}

// NewMessHandler constructs the handler. exports may be nil when exports are disabled.
func NewMessHandler(svc messService, exports billExporter) *MessHandler {
	return &MessHandler{service: svc, exports: exports}
}

// CreateRate godoc
// @Summary Create a month's mess rate
// @Tags Mess
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.UpsertMessRateRequest true "Rate"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /mess/rates [post]
func (h *MessHandler) CreateRate(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.UpsertMessRateRequest
	if !bindJSON(c, &req, "invalid rate payload") {
		return
	}
	rate, err := h.service.CreateRate(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "mess rate created", rate)
}

// UpdateRate godoc
// @Summary Update a rate and recompute unpaid bills of that month
// @Tags Mess
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Rate ID"
// @Param payload body models.UpdateMessRateRequest true "Rate fields"
// @Success 200 {object} response.Envelope
// @Router /mess/rates/{id} [put]
func (h *MessHandler) UpdateRate(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.UpdateMessRateRequest
	if !bindJSON(c, &req, "invalid rate payload") {
		return
	}
	result, err := h.service.UpdateRate(c.Request.Context(), c.Param("id"), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, fmt.Sprintf("mess rate updated, %d bills recomputed", result.BillsUpdated), result)
}

// ListRates godoc
// @Summary List mess rates
// @Tags Mess
// @Produce json
// @Security BearerAuth
// @Param year query int false "Year"
// @Success 200 {object} response.Envelope
// @Router /mess/rates [get]
func (h *MessHandler) ListRates(c *gin.Context) {
	year, err := queryInt(c, "year")
	if err != nil {
		response.Error(c, err)
		return
	}
	rates, err := h.service.ListRates(c.Request.Context(), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rates, nil)
}

// EffectiveRate godoc
// @Summary Rate in force for a month
// @Description Falls back to the configured default, flagged isDefault.
// @Tags Mess
// @Produce json
// @Security BearerAuth
// @Param month query int true "Month"
// @Param year query int true "Year"
// @Success 200 {object} response.Envelope
// @Router /mess/rates/effective [get]
func (h *MessHandler) EffectiveRate(c *gin.Context) {
	month, err := queryInt(c, "month")
	if err != nil {
		response.Error(c, err)
		return
	}
	year, err := queryInt(c, "year")
	if err != nil {
		response.Error(c, err)
		return
	}
	rate, err := h.service.EffectiveRate(c.Request.Context(), month, year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rate, nil)
}

// GenerateBill godoc
// @Summary Generate one student's bill
// @Tags Mess
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.GenerateBillRequest true "Bill"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /mess/bills/generate [post]
func (h *MessHandler) GenerateBill(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.GenerateBillRequest
	if !bindJSON(c, &req, "invalid bill payload") {
		return
	}
	bill, err := h.service.GenerateBill(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "bill generated", bill)
}

// GenerateBulk godoc
// @Summary Generate bills for every active student
// @Tags Mess
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.BulkGenerateRequest true "Period"
// @Success 200 {object} response.Envelope
// @Router /mess/bills/generate-bulk [post]
func (h *MessHandler) GenerateBulk(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.BulkGenerateRequest
	if !bindJSON(c, &req, "invalid bulk payload") {
		return
	}
	result, err := h.service.GenerateBulk(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	msg := fmt.Sprintf("generated %d, skipped %d, failed %d", result.Counts.Generated, result.Counts.Skipped, result.Counts.Failed)
	response.Message(c, http.StatusOK, msg, result)
}

// UpdateBill godoc
// @Summary Edit a bill and recompute its total
// @Tags Mess
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Bill ID"
// @Param payload body models.UpdateBillRequest true "Fields"
// @Success 200 {object} response.Envelope
// @Router /mess/bills/{id} [put]
func (h *MessHandler) UpdateBill(c *gin.Context) {
	var req models.UpdateBillRequest
	if !bindJSON(c, &req, "invalid bill payload") {
		return
	}
	bill, err := h.service.UpdateBill(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "bill updated", bill)
}

// UpdatePayment godoc
// @Summary Record a payment
// @Description Payment status never moves backwards.
// @Tags Mess
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Bill ID"
// @Param payload body models.UpdatePaymentRequest true "Payment"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /mess/bills/{id}/payment [patch]
func (h *MessHandler) UpdatePayment(c *gin.Context) {
	var req models.UpdatePaymentRequest
	if !bindJSON(c, &req, "invalid payment payload") {
		return
	}
	bill, err := h.service.UpdatePayment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "payment recorded", bill)
}

// ListBills godoc
// @Summary List bills with totals
// @Tags Mess
// @Produce json
// @Security BearerAuth
// @Param month query int false "Month"
// @Param year query int false "Year"
// @Param studentId query string false "Student"
// @Param paymentStatus query string false "pending, partial or paid"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /mess/bills [get]
func (h *MessHandler) ListBills(c *gin.Context) {
	var filter models.MessBillFilter
	var err error
	if filter.Month, err = queryInt(c, "month"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.Year, err = queryInt(c, "year"); err != nil {
		response.Error(c, err)
		return
	}
	filter.StudentID = c.Query("studentId")
	if status := c.Query("paymentStatus"); status != "" {
		s := models.PaymentStatus(status)
		filter.PaymentStatus = &s
	}
	if filter.Page, filter.PageSize, err = pageParams(c); err != nil {
		response.Error(c, err)
		return
	}

	bills, pagination, totals, err := h.service.ListBills(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bills, pagination, map[string]interface{}{"totals": totals})
}

// GetBill godoc
// @Summary Get a bill
// @Description Students can only read their own bills.
// @Tags Mess
// @Produce json
// @Security BearerAuth
// @Param id path string true "Bill ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /mess/bills/{id} [get]
func (h *MessHandler) GetBill(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	bill, err := h.service.GetBill(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !claims.Role.IsPrivileged() && bill.StudentID != claims.UserID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "you can only view your own bills"))
		return
	}
	response.JSON(c, http.StatusOK, bill, nil)
}

// StudentBills godoc
// @Summary A student's bills
// @Tags Mess
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /mess/bills/student/{studentId} [get]
func (h *MessHandler) StudentBills(c *gin.Context) {
	bills, err := h.service.StudentBills(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bills, nil)
}

// ExportBills godoc
// @Summary Export a month's bill statement
// @Tags Mess
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.ExportBillsRequest true "Period and format"
// @Success 201 {object} response.Envelope
// @Router /mess/bills/export [post]
func (h *MessHandler) ExportBills(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.ExportBillsRequest
	if !bindJSON(c, &req, "invalid export payload") {
		return
	}
	result, err := h.exports.ExportBills(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "statement ready", result)
}

// Download godoc
// @Summary Download an exported statement via signed token
// @Tags Mess
// @Produce octet-stream
// @Security BearerAuth
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /mess/bills/download [get]
func (h *MessHandler) Download(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	owner, relPath, err := h.exports.ParseToken(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	if owner != claims.UserID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "download link belongs to another user"))
		return
	}
	file, err := h.exports.Open(relPath)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to read export"))
		return
	}
	contentType := "application/octet-stream"
	if format, err := export.ParseFormat(strings.TrimPrefix(filepath.Ext(relPath), ".")); err == nil {
		if renderer, err := export.RendererFor(format); err == nil {
			contentType = renderer.ContentType()
		}
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(relPath)))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
