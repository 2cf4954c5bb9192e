package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hostel-api/internal/models"
	"github.com/noah-isme/hostel-api/internal/repository"
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
)

// DefaultWardenRequestRejection is recorded when an admin rejects without a note.
const DefaultWardenRequestRejection = "Warden request rejected by admin"

type wardenRequestRepository interface {
	Create(ctx context.Context, req *models.WardenRequest) error
	FindByID(ctx context.Context, id string) (*models.WardenRequest, error)
	HasPending(ctx context.Context, userID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]models.WardenRequest, error)
	List(ctx context.Context, filter models.WardenRequestFilter) ([]models.WardenRequest, int, error)
	Approve(ctx context.Context, id, reviewerID, note string, at time.Time) error
	Reject(ctx context.Context, id, reviewerID, note string, at time.Time) error
}

// WardenRequestService runs the student to warden promotion workflow.
type WardenRequestService struct {
	repo      wardenRequestRepository
	users     userLookup
	notifier  approvalNotifier
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewWardenRequestService constructs the service. notifier may be nil.
func NewWardenRequestService(repo wardenRequestRepository, users userLookup, notifier approvalNotifier, validate *validator.Validate, logger *zap.Logger) *WardenRequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WardenRequestService{repo: repo, users: users, notifier: notifier, validator: validate, logger: logger, now: time.Now}
}

// Submit files a promotion request. Wardens cannot apply and a user holds at most one pending request.
func (s *WardenRequestService) Submit(ctx context.Context, userID string, req models.CreateWardenRequest) (*models.WardenRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid warden request payload")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only students can request warden access")
	}

	pending, err := s.repo.HasPending(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending requests")
	}
	if pending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a warden request is already pending")
	}

	request := &models.WardenRequest{
		UserID:     userID,
		Reason:     strings.TrimSpace(req.Reason),
		Experience: nullableString(req.Experience),
		Status:     models.ApprovalPending,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a warden request is already pending")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create warden request")
	}
	return request, nil
}

// Mine lists the user's own requests.
func (s *WardenRequestService) Mine(ctx context.Context, userID string) ([]models.WardenRequest, error) {
	reqs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list warden requests")
	}
	if reqs == nil {
		reqs = []models.WardenRequest{}
	}
	return reqs, nil
}

// List returns requests across all users.
func (s *WardenRequestService) List(ctx context.Context, filter models.WardenRequestFilter) ([]models.WardenRequest, *models.Pagination, error) {
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	reqs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list warden requests")
	}
	if reqs == nil {
		reqs = []models.WardenRequest{}
	}
	return reqs, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Approve promotes the requesting user to an approved warden.
func (s *WardenRequestService) Approve(ctx context.Context, id string, actor *models.JWTClaims, req models.ReviewWardenRequest) (*models.WardenRequest, error) {
	return s.decide(ctx, id, actor, req, true)
}

// Reject closes the request and records the rejection on the user account.
func (s *WardenRequestService) Reject(ctx context.Context, id string, actor *models.JWTClaims, req models.ReviewWardenRequest) (*models.WardenRequest, error) {
	return s.decide(ctx, id, actor, req, false)
}

func (s *WardenRequestService) decide(ctx context.Context, id string, actor *models.JWTClaims, req models.ReviewWardenRequest, approve bool) (*models.WardenRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.ApprovalPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "warden request has already been "+string(request.Status))
	}

	note := strings.TrimSpace(req.Note)
	if !approve && note == "" {
		note = DefaultWardenRequestRejection
	}
	at := s.now().UTC()
	if approve {
		err = s.repo.Approve(ctx, id, actor.UserID, note, at)
	} else {
		err = s.repo.Reject(ctx, id, actor.UserID, note, at)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "warden request is no longer pending")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}
	s.logger.Info("warden request decided", zap.String("request_id", id), zap.Bool("approved", approve), zap.String("reviewer_id", actor.UserID))

	s.notify(ctx, request.UserID, approve, note)
	return s.load(ctx, id)
}

func (s *WardenRequestService) notify(ctx context.Context, userID string, approved bool, reason string) {
	if s.notifier == nil {
		return
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logger.Warn("skip warden decision email", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if err := s.notifier.QueueApprovalDecision(user, approved, reason); err != nil {
		s.logger.Warn("queue warden decision email", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *WardenRequestService) load(ctx context.Context, id string) (*models.WardenRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "warden request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load warden request")
	}
	return request, nil
}
