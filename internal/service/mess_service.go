package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hostel-api/internal/models"
	"github.com/noah-isme/hostel-api/internal/repository"
	"github.com/noah-isme/hostel-api/pkg/config"
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
)

type messRepository interface {
	CreateRate(ctx context.Context, rate *models.MessRate) error
	FindRateByID(ctx context.Context, id string) (*models.MessRate, error)
	FindRateByPeriod(ctx context.Context, month, year int) (*models.MessRate, error)
	ListRates(ctx context.Context, year int) ([]models.MessRate, error)
	UpdateRateCascade(ctx context.Context, rate *models.MessRate, recompute func(*models.MessBill)) (int, error)
	CreateBill(ctx context.Context, bill *models.MessBill) error
	FindBillByID(ctx context.Context, id string) (*models.MessBill, error)
	FindBill(ctx context.Context, studentID string, month, year int) (*models.MessBill, error)
	UpdateBill(ctx context.Context, bill *models.MessBill) error
	UpdatePayment(ctx context.Context, bill *models.MessBill, expected models.PaymentStatus) error
	ListBills(ctx context.Context, filter models.MessBillFilter) ([]models.MessBill, int, error)
	ListAllBills(ctx context.Context, filter models.MessBillFilter) ([]models.MessBill, error)
	Totals(ctx context.Context, filter models.MessBillFilter) (*models.MessBillTotals, error)
}

type presentDayCounter interface {
	CountPresentDays(ctx context.Context, studentID string, from, to time.Time) (int, error)
}

type studentDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListActiveStudents(ctx context.Context) ([]models.User, error)
}

// ComputeBill returns totalDays*rate plus extras minus deductions, never below zero.
// Amounts are rounded to cents.
func ComputeBill(totalDays int, rate float64, extraCharges, deductions []models.Charge) float64 {
	total := float64(totalDays)*rate + models.Charges(extraCharges).Sum() - models.Charges(deductions).Sum()
	if total < 0 {
		return 0
	}
	return math.Round(total*100) / 100
}

// MessService runs rate management and bill generation.
type MessService struct {
	repo       messRepository
	attendance presentDayCounter
	students   studentDirectory
	defaults   config.MessConfig
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewMessService wires the billing engine. defaults supplies the rate used for months without a rate record.
func NewMessService(repo messRepository, attendance presentDayCounter, students studentDirectory, defaults config.MessConfig, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *MessService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessService{
		repo:       repo,
		attendance: attendance,
		students:   students,
		defaults:   defaults,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateRate stores the rate for a month. One rate exists per month.
func (s *MessService) CreateRate(ctx context.Context, actor *models.JWTClaims, req models.UpsertMessRateRequest) (*models.MessRate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid mess rate payload")
	}
	rate := &models.MessRate{
		Month:         req.Month,
		Year:          req.Year,
		DailyRate:     req.DailyRate,
		BreakfastRate: req.BreakfastRate,
		LunchRate:     req.LunchRate,
		DinnerRate:    req.DinnerRate,
		UpdatedBy:     userIDPtr(actor),
	}
	if err := s.repo.CreateRate(ctx, rate); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("mess rate for %02d/%d already exists", req.Month, req.Year))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create mess rate")
	}
	return rate, nil
}

// UpdateRate edits a rate and recomputes every bill of its month in the same transaction.
func (s *MessService) UpdateRate(ctx context.Context, id string, actor *models.JWTClaims, req models.UpdateMessRateRequest) (*models.RateUpdateResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid mess rate payload")
	}
	rate, err := s.repo.FindRateByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "mess rate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load mess rate")
	}
	if req.DailyRate != nil {
		rate.DailyRate = *req.DailyRate
	}
	if req.BreakfastRate != nil {
		rate.BreakfastRate = *req.BreakfastRate
	}
	if req.LunchRate != nil {
		rate.LunchRate = *req.LunchRate
	}
	if req.DinnerRate != nil {
		rate.DinnerRate = *req.DinnerRate
	}
	rate.UpdatedBy = userIDPtr(actor)

	now := s.now().UTC()
	updated, err := s.repo.UpdateRateCascade(ctx, rate, func(bill *models.MessBill) {
		bill.Rate = rate.DailyRate
		bill.TotalAmount = ComputeBill(bill.TotalDays, bill.Rate, bill.ExtraCharges, bill.Deductions)
		reconcilePayment(bill, now)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "mess rate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update mess rate")
	}
	s.logger.Info("mess rate updated", zap.String("rate_id", rate.ID), zap.Int("month", rate.Month), zap.Int("year", rate.Year), zap.Int("bills_recomputed", updated))
	return &models.RateUpdateResult{Rate: rate, BillsUpdated: updated}, nil
}

// ListRates returns stored rates, optionally for a single year.
func (s *MessService) ListRates(ctx context.Context, year int) ([]models.MessRate, error) {
	rates, err := s.repo.ListRates(ctx, year)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list mess rates")
	}
	if rates == nil {
		rates = []models.MessRate{}
	}
	return rates, nil
}

// EffectiveRate returns the month's rate, or the configured default flagged IsDefault.
func (s *MessService) EffectiveRate(ctx context.Context, month, year int) (*models.MessRate, error) {
	if month < 1 || month > 12 || year < 2000 || year > 2100 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "month must be 1-12 and year 2000-2100")
	}
	rate, err := s.repo.FindRateByPeriod(ctx, month, year)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load mess rate")
	}
	return &models.MessRate{
		Month:         month,
		Year:          year,
		DailyRate:     s.defaults.DefaultDailyRate,
		BreakfastRate: s.defaults.DefaultBreakfastRate,
		LunchRate:     s.defaults.DefaultLunchRate,
		DinnerRate:    s.defaults.DefaultDinnerRate,
		IsDefault:     true,
	}, nil
}

// GenerateBill creates one student's bill for a month. An existing bill is a conflict;
// edits go through UpdateBill.
func (s *MessService) GenerateBill(ctx context.Context, actor *models.JWTClaims, req models.GenerateBillRequest) (*models.MessBill, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bill payload")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "bills can only be generated for students")
	}

	if _, err := s.repo.FindBill(ctx, req.StudentID, req.Month, req.Year); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "bill already exists for this period; update it instead")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing bill")
	}

	rate, err := s.EffectiveRate(ctx, req.Month, req.Year)
	if err != nil {
		return nil, err
	}
	bill, err := s.createBill(ctx, actor, req.StudentID, rate, req.ExtraCharges, req.Deductions, nullableString(req.Remarks))
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "bill already exists for this period; update it instead")
		}
		s.metrics.RecordBillOutcome("failed", 1)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate bill")
	}
	s.metrics.RecordBillOutcome("generated", 1)
	return bill, nil
}

// GenerateBulk generates the month's bill for every active student. Each student is handled
// on its own: an existing bill is skipped, an error is recorded, and neither stops the run.
func (s *MessService) GenerateBulk(ctx context.Context, actor *models.JWTClaims, req models.BulkGenerateRequest) (*models.BulkGenerateResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk generation payload")
	}
	students, err := s.students.ListActiveStudents(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	rate, err := s.EffectiveRate(ctx, req.Month, req.Year)
	if err != nil {
		return nil, err
	}

	result := &models.BulkGenerateResult{
		Generated: []models.MessBill{},
		Skipped:   []string{},
		Failed:    []models.BulkFailure{},
	}
	for _, student := range students {
		if err := ctx.Err(); err != nil {
			result.Failed = append(result.Failed, models.BulkFailure{StudentID: student.ID, Error: err.Error()})
			continue
		}
		_, err := s.repo.FindBill(ctx, student.ID, req.Month, req.Year)
		switch {
		case err == nil:
			result.Skipped = append(result.Skipped, student.ID)
			continue
		case !errors.Is(err, sql.ErrNoRows):
			result.Failed = append(result.Failed, models.BulkFailure{StudentID: student.ID, Error: err.Error()})
			continue
		}

		bill, err := s.createBill(ctx, actor, student.ID, rate, nil, nil, nil)
		switch {
		case err == nil:
			result.Generated = append(result.Generated, *bill)
		case errors.Is(err, repository.ErrDuplicate):
			result.Skipped = append(result.Skipped, student.ID)
		default:
			s.logger.Warn("bill generation failed", zap.String("student_id", student.ID), zap.Error(err))
			result.Failed = append(result.Failed, models.BulkFailure{StudentID: student.ID, Error: err.Error()})
		}
	}

	result.Counts = models.BulkCounts{
		Total:     len(students),
		Generated: len(result.Generated),
		Skipped:   len(result.Skipped),
		Failed:    len(result.Failed),
	}
	s.metrics.RecordBillOutcome("generated", result.Counts.Generated)
	s.metrics.RecordBillOutcome("skipped", result.Counts.Skipped)
	s.metrics.RecordBillOutcome("failed", result.Counts.Failed)
	s.logger.Info("bulk bill generation finished",
		zap.Int("month", req.Month), zap.Int("year", req.Year),
		zap.Int("generated", result.Counts.Generated), zap.Int("skipped", result.Counts.Skipped), zap.Int("failed", result.Counts.Failed))
	return result, nil
}

func (s *MessService) createBill(ctx context.Context, actor *models.JWTClaims, studentID string, rate *models.MessRate, extra, deductions []models.Charge, remarks *string) (*models.MessBill, error) {
	from := time.Date(rate.Year, time.Month(rate.Month), 1, 0, 0, 0, 0, time.Local)
	days, err := s.attendance.CountPresentDays(ctx, studentID, from, from.AddDate(0, 1, 0))
	if err != nil {
		return nil, err
	}
	bill := &models.MessBill{
		StudentID:     studentID,
		Month:         rate.Month,
		Year:          rate.Year,
		TotalDays:     days,
		Rate:          rate.DailyRate,
		ExtraCharges:  models.Charges(extra),
		Deductions:    models.Charges(deductions),
		PaymentStatus: models.PaymentPending,
		Remarks:       remarks,
		GeneratedBy:   actor.UserID,
	}
	if bill.ExtraCharges == nil {
		bill.ExtraCharges = models.Charges{}
	}
	if bill.Deductions == nil {
		bill.Deductions = models.Charges{}
	}
	bill.TotalAmount = ComputeBill(bill.TotalDays, bill.Rate, bill.ExtraCharges, bill.Deductions)
	if err := s.repo.CreateBill(ctx, bill); err != nil {
		return nil, err
	}
	return bill, nil
}

// UpdateBill edits bill inputs and recomputes the total.
func (s *MessService) UpdateBill(ctx context.Context, id string, req models.UpdateBillRequest) (*models.MessBill, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bill payload")
	}
	bill, err := s.GetBill(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.TotalDays != nil {
		bill.TotalDays = *req.TotalDays
	}
	if req.Rate != nil {
		bill.Rate = *req.Rate
	}
	if req.ExtraCharges != nil {
		bill.ExtraCharges = models.Charges(*req.ExtraCharges)
	}
	if req.Deductions != nil {
		bill.Deductions = models.Charges(*req.Deductions)
	}
	if req.Remarks != nil {
		bill.Remarks = nullableString(*req.Remarks)
	}
	bill.TotalAmount = ComputeBill(bill.TotalDays, bill.Rate, bill.ExtraCharges, bill.Deductions)
	reconcilePayment(bill, s.now().UTC())

	if err := s.repo.UpdateBill(ctx, bill); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "bill not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update bill")
	}
	return bill, nil
}

// reconcilePayment re-derives the payment status of a recomputed bill from the
// amount already paid. A paid bill whose total grew reopens as partial; a partial
// bill whose total fell to the amount paid becomes paid.
func reconcilePayment(bill *models.MessBill, now time.Time) {
	if bill.PaymentStatus == models.PaymentPending {
		return
	}
	switch {
	case bill.AmountPaid >= bill.TotalAmount:
		bill.PaymentStatus = models.PaymentPaid
		if bill.PaidAt == nil {
			bill.PaidAt = &now
		}
	case bill.AmountPaid > 0:
		bill.PaymentStatus = models.PaymentPartial
		bill.PaidAt = nil
	default:
		bill.PaymentStatus = models.PaymentPending
		bill.PaidAt = nil
	}
}

// UpdatePayment moves a bill forward along pending -> partial -> paid. Paid bills are final
// and a partial payment may only grow.
func (s *MessService) UpdatePayment(ctx context.Context, id string, req models.UpdatePaymentRequest) (*models.MessBill, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	bill, err := s.GetBill(ctx, id)
	if err != nil {
		return nil, err
	}
	current := bill.PaymentStatus
	if current == models.PaymentPaid {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "bill is already paid")
	}
	if req.PaymentStatus.Rank() < current.Rank() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("payment status cannot move from %s to %s", current, req.PaymentStatus))
	}

	switch req.PaymentStatus {
	case models.PaymentPending:
		return bill, nil
	case models.PaymentPartial:
		if req.AmountPaid == nil || *req.AmountPaid <= 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "amountPaid is required for a partial payment")
		}
		if *req.AmountPaid >= bill.TotalAmount {
			return nil, appErrors.Clone(appErrors.ErrValidation, "amountPaid covers the bill; mark it paid instead")
		}
		if *req.AmountPaid < bill.AmountPaid {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "amountPaid cannot decrease")
		}
		bill.AmountPaid = *req.AmountPaid
	case models.PaymentPaid:
		bill.AmountPaid = bill.TotalAmount
		now := s.now().UTC()
		bill.PaidAt = &now
	}
	bill.PaymentStatus = req.PaymentStatus

	if err := s.repo.UpdatePayment(ctx, bill, current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "bill payment was changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment")
	}
	return bill, nil
}

// GetBill loads a bill by id.
func (s *MessService) GetBill(ctx context.Context, id string) (*models.MessBill, error) {
	bill, err := s.repo.FindBillByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "bill not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bill")
	}
	return bill, nil
}

// ListBills returns a page of bills plus totals over the whole filtered set.
func (s *MessService) ListBills(ctx context.Context, filter models.MessBillFilter) ([]models.MessBill, *models.Pagination, *models.MessBillTotals, error) {
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	bills, total, err := s.repo.ListBills(ctx, filter)
	if err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bills")
	}
	totals, err := s.repo.Totals(ctx, filter)
	if err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to total bills")
	}
	if bills == nil {
		bills = []models.MessBill{}
	}
	return bills, models.NewPagination(filter.Page, filter.PageSize, total), totals, nil
}

// StudentBills returns every bill of one student.
func (s *MessService) StudentBills(ctx context.Context, studentID string) ([]models.MessBill, error) {
	bills, err := s.repo.ListAllBills(ctx, models.MessBillFilter{StudentID: studentID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bills")
	}
	if bills == nil {
		bills = []models.MessBill{}
	}
	return bills, nil
}
