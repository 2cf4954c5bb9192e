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
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
)

type announcementRepository interface {
	Create(ctx context.Context, a *models.Announcement) error
	FindByID(ctx context.Context, id string) (*models.Announcement, error)
	Update(ctx context.Context, a *models.Announcement) error
	Delete(ctx context.Context, id string) error
	MarkRead(ctx context.Context, id, userID string) (bool, error)
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	CountUnread(ctx context.Context, filter models.AnnouncementFilter, userID string) (int, error)
}

// AnnouncementService handles announcement workflows.
type AnnouncementService struct {
	repo      announcementRepository
	users     userLookup
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAnnouncementService constructs the service.
func NewAnnouncementService(repo announcementRepository, users userLookup, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementService{repo: repo, users: users, validator: validate, logger: logger, now: time.Now}
}

// Create publishes an announcement.
func (s *AnnouncementService) Create(ctx context.Context, actor *models.JWTClaims, req models.CreateAnnouncementRequest) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}
	if err := s.checkExpiry(req.ExpiresAt); err != nil {
		return nil, err
	}
	a := &models.Announcement{
		Title:         strings.TrimSpace(req.Title),
		Content:       strings.TrimSpace(req.Content),
		Category:      orDefault(req.Category, "general"),
		Priority:      orDefault(req.Priority, "normal"),
		TargetHostels: cleanTargets(req.TargetHostels),
		TargetBlocks:  cleanTargets(req.TargetBlocks),
		ExpiresAt:     req.ExpiresAt,
		CreatedBy:     actor.UserID,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}
	return a, nil
}

// List returns announcements visible to the actor with read flags and an unread count.
// Students only see live announcements targeted at their hostel and block.
func (s *AnnouncementService) List(ctx context.Context, actor *models.JWTClaims, filter models.AnnouncementFilter) (*models.AnnouncementList, *models.Pagination, error) {
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	filter.Audience = false
	if actor.Role == models.RoleStudent {
		reader, err := s.reader(ctx, actor.UserID)
		if err != nil {
			return nil, nil, err
		}
		filter.Audience = true
		filter.Hostel = reader.HostelValue()
		filter.Block = reader.BlockValue()
		filter.IncludeExpired = false
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	unread, err := s.repo.CountUnread(ctx, filter, actor.UserID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread announcements")
	}
	if items == nil {
		items = []models.Announcement{}
	}
	for i := range items {
		decorate(&items[i], actor.UserID)
	}
	return &models.AnnouncementList{Announcements: items, UnreadCount: unread}, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns one announcement. Students get NOT_FOUND for announcements not meant for them.
func (s *AnnouncementService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Announcement, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkVisible(ctx, a, actor); err != nil {
		return nil, err
	}
	decorate(a, actor.UserID)
	return a, nil
}

// Update edits an announcement. Only its creator or an admin may do so.
func (s *AnnouncementService) Update(ctx context.Context, id string, actor *models.JWTClaims, req models.UpdateAnnouncementRequest) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}
	a, err := s.loadOwned(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		a.Title = strings.TrimSpace(*req.Title)
	}
	if req.Content != nil {
		a.Content = strings.TrimSpace(*req.Content)
	}
	if req.Category != nil {
		a.Category = *req.Category
	}
	if req.Priority != nil {
		a.Priority = *req.Priority
	}
	if req.TargetHostels != nil {
		a.TargetHostels = cleanTargets(*req.TargetHostels)
	}
	if req.TargetBlocks != nil {
		a.TargetBlocks = cleanTargets(*req.TargetBlocks)
	}
	if req.ExpiresAt != nil {
		if err := s.checkExpiry(req.ExpiresAt); err != nil {
			return nil, err
		}
		a.ExpiresAt = req.ExpiresAt
	}
	if err := s.repo.Update(ctx, a); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update announcement")
	}
	decorate(a, actor.UserID)
	return a, nil
}

// Delete removes an announcement. Only its creator or an admin may do so.
func (s *AnnouncementService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if _, err := s.loadOwned(ctx, id, actor); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete announcement")
	}
	return nil
}

// MarkRead records the actor as a reader. Repeated calls are no-ops; the boolean reports
// whether this call added the receipt.
func (s *AnnouncementService) MarkRead(ctx context.Context, id string, actor *models.JWTClaims) (bool, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}
	if err := s.checkVisible(ctx, a, actor); err != nil {
		return false, err
	}
	added, err := s.repo.MarkRead(ctx, id, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark announcement read")
	}
	return added, nil
}

func (s *AnnouncementService) checkVisible(ctx context.Context, a *models.Announcement, actor *models.JWTClaims) error {
	if actor.Role != models.RoleStudent {
		return nil
	}
	reader, err := s.reader(ctx, actor.UserID)
	if err != nil {
		return err
	}
	expired := a.ExpiresAt != nil && !a.ExpiresAt.After(s.now())
	if expired || !a.VisibleTo(reader.HostelValue(), reader.BlockValue()) {
		return appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
	}
	return nil
}

func (s *AnnouncementService) checkExpiry(expiresAt *time.Time) error {
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return appErrors.Clone(appErrors.ErrValidation, "expiresAt must be in the future")
	}
	return nil
}

func (s *AnnouncementService) reader(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func (s *AnnouncementService) load(ctx context.Context, id string) (*models.Announcement, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	return a, nil
}

func (s *AnnouncementService) loadOwned(ctx context.Context, id string, actor *models.JWTClaims) (*models.Announcement, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && a.CreatedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the author or an admin can change this announcement")
	}
	return a, nil
}

func decorate(a *models.Announcement, userID string) {
	a.IsRead = a.ReadByUser(userID)
	a.ReadCount = len(a.ReadBy)
}

func cleanTargets(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
