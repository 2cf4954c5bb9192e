package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/hostel-api/internal/models"
	"github.com/noah-isme/hostel-api/internal/repository"
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
)

// DefaultAccountRejection is stored when an admin rejects an account without a reason.
const DefaultAccountRejection = "Rejected by admin"

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsByEmailOrCollegeID(ctx context.Context, email, collegeID string) (bool, bool, error)
	Create(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, user *models.User) error
	UpdateApproval(ctx context.Context, id string, status models.ApprovalStatus, reason *string) error
	UpdateActive(ctx context.Context, id string, active bool) error
	UpdateRole(ctx context.Context, id string, role models.UserRole, approval models.ApprovalStatus) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	HardDelete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type approvalNotifier interface {
	QueueApprovalDecision(user *models.User, approved bool, reason string) error
}

// CreateAdminRequest bootstraps an administrator outside self-registration.
type CreateAdminRequest struct {
	Name      string `validate:"required,min=2,max=100"`
	CollegeID string `validate:"required,max=50"`
	Email     string `validate:"required,email"`
	Password  string `validate:"required,min=8,max=72"`
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	notifier  approvalNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, notifier approvalNotifier, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, notifier: notifier, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata. Wardens only see students.
func (s *UserService) List(ctx context.Context, actor *models.JWTClaims, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if actor != nil && actor.Role == models.RoleWarden {
		role := models.RoleStudent
		filter.Role = &role
	}
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// UpdateProfile changes the caller's own name and phone.
func (s *UserService) UpdateProfile(ctx context.Context, id string, req models.UpdateProfileRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		user.Phone = nullableString(*req.Phone)
	}
	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return user, nil
}

// Approve moves a pending or rejected account to approved.
func (s *UserService) Approve(ctx context.Context, id string, actor *models.JWTClaims, meta models.LoginRequest) (*models.User, error) {
	user, err := s.loadOther(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if user.ApprovalStatus == models.ApprovalApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "account is already approved")
	}
	old := user.ApprovalStatus
	if err := s.repo.UpdateApproval(ctx, id, models.ApprovalApproved, nil); err != nil {
		return nil, s.writeError(err, "failed to approve user")
	}
	user.ApprovalStatus = models.ApprovalApproved
	user.RejectionReason = nil

	s.notifyDecision(user, true, "")
	s.audit(ctx, actor, meta, models.AuditActionUserApprove, user.ID,
		map[string]interface{}{"approvalStatus": old},
		map[string]interface{}{"approvalStatus": user.ApprovalStatus})
	return user, nil
}

// Reject moves a pending account to rejected with a reason.
func (s *UserService) Reject(ctx context.Context, id string, req models.RejectUserRequest, actor *models.JWTClaims, meta models.LoginRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rejection payload")
	}
	user, err := s.loadOther(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if user.ApprovalStatus != models.ApprovalPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only pending accounts can be rejected")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = DefaultAccountRejection
	}
	if err := s.repo.UpdateApproval(ctx, id, models.ApprovalRejected, &reason); err != nil {
		return nil, s.writeError(err, "failed to reject user")
	}
	user.ApprovalStatus = models.ApprovalRejected
	user.RejectionReason = &reason

	s.notifyDecision(user, false, reason)
	s.audit(ctx, actor, meta, models.AuditActionUserReject, user.ID,
		map[string]interface{}{"approvalStatus": models.ApprovalPending},
		map[string]interface{}{"approvalStatus": user.ApprovalStatus, "reason": reason})
	return user, nil
}

// SetActive activates or deactivates an account. Wardens may only toggle students.
// Deactivation revokes every refresh token so the account is signed out everywhere.
func (s *UserService) SetActive(ctx context.Context, id string, req models.UpdateUserStatusRequest, actor *models.JWTClaims, meta models.LoginRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	user, err := s.loadOther(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if actor != nil && actor.Role == models.RoleWarden && user.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "wardens can only change student accounts")
	}
	active := *req.IsActive
	if err := s.repo.UpdateActive(ctx, id, active); err != nil {
		return nil, s.writeError(err, "failed to update account status")
	}
	if !active {
		if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
			s.logger.Warn("failed to revoke sessions of deactivated user", zap.String("user_id", id), zap.Error(err))
		}
	}
	old := user.IsActive
	user.IsActive = active
	s.audit(ctx, actor, meta, models.AuditActionUserStatus, user.ID,
		map[string]interface{}{"isActive": old},
		map[string]interface{}{"isActive": active})
	return user, nil
}

// ChangeRole assigns a new role. Promotion to warden through this path counts as approval.
func (s *UserService) ChangeRole(ctx context.Context, id string, req models.UpdateUserRoleRequest, actor *models.JWTClaims, meta models.LoginRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}
	user, err := s.loadOther(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if user.Role == req.Role {
		return user, nil
	}
	old := user.Role
	if err := s.repo.UpdateRole(ctx, id, req.Role, models.ApprovalApproved); err != nil {
		return nil, s.writeError(err, "failed to change role")
	}
	user.Role = req.Role
	user.ApprovalStatus = models.ApprovalApproved
	s.audit(ctx, actor, meta, models.AuditActionUserRole, user.ID,
		map[string]interface{}{"role": old},
		map[string]interface{}{"role": user.Role})
	return user, nil
}

// CreateAdmin provisions a verified, approved administrator. Used by the admin CLI.
func (s *UserService) CreateAdmin(ctx context.Context, req CreateAdminRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid admin payload")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	emailTaken, collegeTaken, err := s.repo.ExistsByEmailOrCollegeID(ctx, email, req.CollegeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing accounts")
	}
	if emailTaken || collegeTaken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email or college id is already registered")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	user := &models.User{
		Name:            req.Name,
		CollegeID:       req.CollegeID,
		Email:           email,
		PasswordHash:    strPtr(string(hash)),
		Role:            models.RoleAdmin,
		ApprovalStatus:  models.RoleAdmin.InitialApproval(),
		IsActive:        true,
		IsEmailVerified: true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, s.writeError(err, "failed to create admin")
	}
	return user, nil
}

// Delete permanently removes a user and everything owned by it. Used by the admin CLI.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := s.repo.HardDelete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	s.logger.Info("user deleted", zap.String("user_id", id))
	return nil
}

func (s *UserService) loadOther(ctx context.Context, id string, actor *models.JWTClaims) (*models.User, error) {
	if actor != nil && actor.UserID == id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you cannot change your own account this way")
	}
	return s.Get(ctx, id)
}

func (s *UserService) writeError(err error, message string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "user not found")
	case errors.Is(err, repository.ErrDuplicate):
		return appErrors.Clone(appErrors.ErrConflict, "email or college id is already registered")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func (s *UserService) notifyDecision(user *models.User, approved bool, reason string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.QueueApprovalDecision(user, approved, reason); err != nil {
		s.logger.Warn("approval email not queued", zap.String("user_id", user.ID), zap.Error(err))
	}
}

func (s *UserService) audit(ctx context.Context, actor *models.JWTClaims, meta models.LoginRequest, action, userID string, oldValues, newValues map[string]interface{}) {
	oldPayload, _ := json.Marshal(oldValues)
	newPayload, _ := json.Marshal(newValues)
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userIDPtr(actor),
		Action:     action,
		Resource:   "users",
		ResourceID: &userID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record user audit log", zap.String("action", action), zap.Error(err))
	}
}
