package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/hostel-api/internal/models"
	"github.com/noah-isme/hostel-api/internal/repository"
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
)

const (
	defaultComplaintPriority = "medium"
	ticketAttempts           = 3
)

type complaintRepository interface {
	Create(ctx context.Context, complaint *models.Complaint) error
	FindByID(ctx context.Context, id string) (*models.Complaint, error)
	AppendStatus(ctx context.Context, id string, change models.StatusChange) error
	List(ctx context.Context, filter models.ComplaintFilter) ([]models.Complaint, int, error)
	CountBy(ctx context.Context, column string, filter models.ComplaintFilter) (map[string]int, error)
}

// ComplaintService manages tickets and their status history.
type ComplaintService struct {
	repo      complaintRepository
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
	newTicket func(time.Time) string
}

// NewComplaintService constructs the ticketing service.
func NewComplaintService(repo complaintRepository, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ComplaintService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ComplaintService{
		repo:      repo,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
		newTicket: NewTicketID,
	}
}

// NewTicketID returns TKT-YYYYMMDD-XXXXXXXXXX with a random suffix.
func NewTicketID(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:10]
	return "TKT-" + at.Format("20060102") + "-" + suffix
}

// Create opens a ticket for the student with its first history entry.
func (s *ComplaintService) Create(ctx context.Context, studentID string, req models.CreateComplaintRequest) (*models.Complaint, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid complaint payload")
	}
	priority := req.Priority
	if priority == "" {
		priority = defaultComplaintPriority
	}
	now := s.now().UTC()
	complaint := &models.Complaint{
		StudentID:   studentID,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Category:    req.Category,
		Priority:    priority,
		Status:      models.ComplaintPending,
		StatusHistory: models.StatusHistory{{
			Status:    models.ComplaintPending,
			UpdatedBy: studentID,
			UpdatedAt: now,
		}},
	}

	var err error
	for attempt := 0; attempt < ticketAttempts; attempt++ {
		complaint.ID = ""
		complaint.TicketID = s.newTicket(now)
		if err = s.repo.Create(ctx, complaint); !errors.Is(err, repository.ErrDuplicate) {
			break
		}
		s.logger.Warn("ticket id collision, retrying", zap.String("ticket_id", complaint.TicketID))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create complaint")
	}
	s.metrics.RecordComplaintCreated()
	return complaint, nil
}

// Get returns a ticket. Students may only read their own.
func (s *ComplaintService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Complaint, error) {
	complaint, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleStudent && complaint.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "complaint belongs to another student")
	}
	return complaint, nil
}

// UpdateStatus sets the status and appends a history entry. Any status may follow any other;
// resolvedBy and resolvedAt are stamped the first time the ticket is resolved.
func (s *ComplaintService) UpdateStatus(ctx context.Context, id string, actor *models.JWTClaims, req models.UpdateComplaintStatusRequest) (*models.Complaint, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	change := models.StatusChange{
		Status:    req.Status,
		UpdatedBy: actor.UserID,
		UpdatedAt: s.now().UTC(),
		Remarks:   strings.TrimSpace(req.Remarks),
	}
	if err := s.repo.AppendStatus(ctx, id, change); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "complaint not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update complaint")
	}
	return s.load(ctx, id)
}

// Mine lists the student's tickets with per-status counts.
func (s *ComplaintService) Mine(ctx context.Context, studentID string, filter models.ComplaintFilter) (*models.ComplaintList, error) {
	filter.StudentID = studentID
	return s.list(ctx, filter, false)
}

// List returns tickets across all students with per-status and per-category counts.
func (s *ComplaintService) List(ctx context.Context, filter models.ComplaintFilter) (*models.ComplaintList, error) {
	return s.list(ctx, filter, true)
}

func (s *ComplaintService) list(ctx context.Context, filter models.ComplaintFilter, withCategories bool) (*models.ComplaintList, error) {
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	complaints, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list complaints")
	}
	if complaints == nil {
		complaints = []models.Complaint{}
	}

	statusCounts, err := s.repo.CountBy(ctx, "status", filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count complaints")
	}
	result := &models.ComplaintList{
		Complaints:   complaints,
		StatusCounts: make(map[string]int, len(models.ComplaintStatuses)),
		Pagination:   models.NewPagination(filter.Page, filter.PageSize, total),
	}
	for _, status := range models.ComplaintStatuses {
		result.StatusCounts[string(status)] = statusCounts[string(status)]
	}

	if withCategories {
		categoryCounts, err := s.repo.CountBy(ctx, "category", filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count complaints")
		}
		result.CategoryCounts = make(map[string]int, len(models.ComplaintCategories))
		for _, category := range models.ComplaintCategories {
			result.CategoryCounts[category] = categoryCounts[category]
		}
	}
	return result, nil
}

func (s *ComplaintService) load(ctx context.Context, id string) (*models.Complaint, error) {
	complaint, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "complaint not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load complaint")
	}
	return complaint, nil
}
