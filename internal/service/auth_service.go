package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/hostel-api/internal/models"
	"github.com/noah-isme/hostel-api/internal/repository"
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	ExistsByEmailOrCollegeID(ctx context.Context, email, collegeID string) (bool, bool, error)
	Create(ctx context.Context, user *models.User) error
	SetVerificationCode(ctx context.Context, id, code string, expiresAt time.Time) error
	MarkEmailVerified(ctx context.Context, id string) error
	LinkGoogleID(ctx context.Context, id, googleID string) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type verificationNotifier interface {
	SendVerification(ctx context.Context, user *models.User, code string) error
	QueueVerification(user *models.User, code string) error
}

type identityProvider interface {
	AuthURL() (string, error)
	Exchange(ctx context.Context, state, code string) (*models.GoogleProfile, error)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
	Audience           []string
	SingleSession      bool
	OrgEmailDomain     string
	OTPTTL             time.Duration
}

// AuthService provides authentication use cases.
type AuthService struct {
	repo      authUserRepository
	notifier  verificationNotifier
	google    identityProvider
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance. google may be nil when OAuth is disabled.
func NewAuthService(repo authUserRepository, notifier verificationNotifier, google identityProvider, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.OTPTTL <= 0 {
		config.OTPTTL = 10 * time.Minute
	}
	return &AuthService{repo: repo, notifier: notifier, google: google, validator: validate, logger: logger, config: config, now: time.Now}
}

// Register creates an unverified account and dispatches its verification code.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	if req.Role == "" {
		req.Role = models.RoleStudent
	}
	if req.Role == models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin accounts cannot be self-registered")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !s.inOrgDomain(email) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("email must end with %s", s.config.OrgEmailDomain))
	}

	emailTaken, collegeTaken, err := s.repo.ExistsByEmailOrCollegeID(ctx, email, req.CollegeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing accounts")
	}
	switch {
	case emailTaken:
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	case collegeTaken:
		return nil, appErrors.Clone(appErrors.ErrConflict, "college id is already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	code, err := generateOTP()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate verification code")
	}
	expires := s.now().UTC().Add(s.config.OTPTTL)

	user := &models.User{
		Name:                  strings.TrimSpace(req.Name),
		CollegeID:             strings.TrimSpace(req.CollegeID),
		Email:                 email,
		PasswordHash:          strPtr(string(hash)),
		Role:                  req.Role,
		ApprovalStatus:        req.Role.InitialApproval(),
		IsActive:              true,
		VerificationCode:      &code,
		VerificationExpiresAt: &expires,
		Phone:                 nullableString(req.Phone),
		Hostel:                nullableString(req.Hostel),
		Block:                 nullableString(req.Block),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email or college id is already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}

	if s.notifier != nil {
		if err := s.notifier.QueueVerification(user, code); err != nil {
			s.logger.Warn("verification email not queued", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	s.audit(ctx, user.ID, models.AuditActionRegister, map[string]string{"role": string(user.Role)})

	return &models.RegisterResponse{
		User:                 models.NewUserInfo(user),
		VerificationRequired: true,
		ApprovalRequired:     user.ApprovalStatus != models.ApprovalApproved,
	}, nil
}

// VerifyEmail consumes a one-time code. Any missing, expired or mismatched state fails.
func (s *AuthService) VerifyEmail(ctx context.Context, req models.VerifyEmailRequest) (*models.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}
	invalid := appErrors.Clone(appErrors.ErrValidation, "invalid or expired verification code")

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invalid
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if user.IsEmailVerified {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already verified")
	}
	if user.VerificationCode == nil || user.VerificationExpiresAt == nil {
		return nil, invalid
	}
	if s.now().After(*user.VerificationExpiresAt) {
		return nil, invalid
	}
	if !subtleEqual(*user.VerificationCode, req.Code) {
		return nil, invalid
	}

	if err := s.repo.MarkEmailVerified(ctx, user.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email is already verified")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify email")
	}
	user.IsEmailVerified = true
	user.VerificationCode = nil
	user.VerificationExpiresAt = nil
	s.audit(ctx, user.ID, models.AuditActionVerifyEmail, nil)

	info := models.NewUserInfo(user)
	return &info, nil
}

// ResendOTP issues a fresh code and delivers it before returning.
func (s *AuthService) ResendOTP(ctx context.Context, req models.ResendOTPRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resend payload")
	}
	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if user.IsEmailVerified {
		return appErrors.Clone(appErrors.ErrConflict, "email is already verified")
	}
	code, err := generateOTP()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate verification code")
	}
	if err := s.repo.SetVerificationCode(ctx, user.ID, code, s.now().UTC().Add(s.config.OTPTTL)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "email is already verified")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store verification code")
	}
	if s.notifier == nil {
		return nil
	}
	if err := s.notifier.SendVerification(ctx, user, code); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send verification email")
	}
	return nil
}

// Login authenticates a user and returns issued tokens.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if user.PasswordHash == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}
	if err := checkSignInAllowed(user); err != nil {
		return nil, err
	}

	return s.issueSession(ctx, user, req.IP, req.UserAgent, models.AuditActionLogin)
}

// RefreshToken exchanges a refresh token for a new access token pair.
func (s *AuthService) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	storedToken, err := s.repo.FindRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}

	if storedToken.Expired(s.now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token is expired or revoked")
	}

	user, err := s.repo.FindByID(ctx, storedToken.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "associated user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if err := checkSignInAllowed(user); err != nil {
		return nil, err
	}

	if err := s.repo.RevokeRefreshToken(ctx, storedToken.ID, s.now().UTC()); err != nil {
		s.logger.Warn("failed to revoke used refresh token", zap.Error(err))
	}

	accessToken, _, err := s.generateAccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate access token")
	}
	newRefresh, err := s.newRefreshToken(user.ID, req.IP, req.UserAgent)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}
	if err := s.repo.CreateRefreshToken(ctx, newRefresh); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	return &models.RefreshTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefresh.Token,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     s.now().UTC(),
	}, nil
}

// Logout revokes the provided refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, userID string, meta models.LoginRequest) error {
	storedToken, err := s.repo.FindRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load refresh token")
	}

	if storedToken.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to user")
	}

	if err := s.repo.RevokeRefreshToken(ctx, storedToken.ID, s.now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh token")
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionLogout,
		Resource:   "auth",
		ResourceID: &userID,
		NewValues:  []byte(`{"status":"logout"}`),
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record logout audit log", zap.Error(err))
	}

	return nil
}

// ChangePassword changes the password for the given user ID.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if user.PasswordHash == nil {
		return appErrors.Clone(appErrors.ErrForbidden, "account signs in with Google and has no password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.repo.UpdatePassword(ctx, userID, string(newHash), s.now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	if err := s.repo.RevokeUserRefreshTokens(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after password change", zap.Error(err))
	}
	s.audit(ctx, userID, models.AuditActionPasswordChange, map[string]string{"status": "changed"})
	return nil
}

// Me returns the current user's public profile.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	info := models.NewUserInfo(user)
	return &info, nil
}

// GoogleAuthURL returns the consent URL for Google sign-in.
func (s *AuthService) GoogleAuthURL() (*models.OAuthURLResponse, error) {
	if s.google == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "google sign-in is not enabled")
	}
	url, err := s.google.AuthURL()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build google sign-in url")
	}
	return &models.OAuthURLResponse{URL: url}, nil
}

// GoogleCallback completes Google sign-in. First-time identities are provisioned as unverified
// students; known emails get the Google identity linked. Tokens are issued only for accounts
// that pass the normal sign-in gate.
func (s *AuthService) GoogleCallback(ctx context.Context, state, code, ip, userAgent string) (*models.LoginResponse, error) {
	if s.google == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "google sign-in is not enabled")
	}
	if code == "" || state == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "missing authorization code or state")
	}
	profile, err := s.google.Exchange(ctx, state, code)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "google sign-in failed")
	}
	email := strings.ToLower(strings.TrimSpace(profile.Email))
	if !s.inOrgDomain(email) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("only %s accounts may sign in", s.config.OrgEmailDomain))
	}

	user, err := s.repo.FindByGoogleID(ctx, profile.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if user == nil {
		user, err = s.linkOrProvision(ctx, profile, email)
		if err != nil {
			return nil, err
		}
	}

	if err := checkSignInAllowed(user); err != nil {
		return nil, err
	}
	return s.issueSession(ctx, user, ip, userAgent, models.AuditActionOAuthLogin)
}

func (s *AuthService) linkOrProvision(ctx context.Context, profile *models.GoogleProfile, email string) (*models.User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.repo.LinkGoogleID(ctx, user.ID, profile.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link google account")
		}
		user.GoogleID = strPtr(profile.ID)
		return user, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	code, err := generateOTP()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate verification code")
	}
	expires := s.now().UTC().Add(s.config.OTPTTL)
	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	user = &models.User{
		Name:                  name,
		CollegeID:             "G-" + profile.ID,
		Email:                 email,
		GoogleID:              strPtr(profile.ID),
		Role:                  models.RoleStudent,
		ApprovalStatus:        models.RoleStudent.InitialApproval(),
		IsActive:              true,
		VerificationCode:      &code,
		VerificationExpiresAt: &expires,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "account already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}
	if s.notifier != nil {
		if err := s.notifier.QueueVerification(user, code); err != nil {
			s.logger.Warn("verification email not queued", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	s.audit(ctx, user.ID, models.AuditActionRegister, map[string]string{"role": string(user.Role), "provider": "google"})
	return user, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}

// Authenticate validates an access token and re-checks the account behind it, so role
// changes and deactivation apply to tokens already issued.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	if !user.IsActive {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}
	if err := checkApproval(user); err != nil {
		return nil, err
	}
	claims.Role = user.Role
	claims.Name = user.Name
	claims.Email = user.Email
	return claims, nil
}

// checkSignInAllowed applies the account gate in the order users can act on it.
func checkSignInAllowed(user *models.User) error {
	if !user.IsEmailVerified {
		return appErrors.Clone(appErrors.ErrEmailNotVerified, "please verify your email before signing in")
	}
	if !user.IsActive {
		return appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}
	return checkApproval(user)
}

func checkApproval(user *models.User) error {
	if !user.Role.RequiresApproval() {
		return nil
	}
	switch user.ApprovalStatus {
	case models.ApprovalApproved:
		return nil
	case models.ApprovalRejected:
		msg := "account request was rejected"
		if user.RejectionReason != nil && *user.RejectionReason != "" {
			msg += ": " + *user.RejectionReason
		}
		return appErrors.Clone(appErrors.ErrApprovalPending, msg)
	default:
		return appErrors.Clone(appErrors.ErrApprovalPending, "account is awaiting approval")
	}
}

func (s *AuthService) issueSession(ctx context.Context, user *models.User, ip, userAgent, action string) (*models.LoginResponse, error) {
	if s.config.SingleSession {
		if err := s.repo.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
			s.logger.Warn("failed to revoke previous refresh tokens", zap.Error(err))
		}
	}

	accessToken, _, err := s.generateAccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	refreshToken, err := s.newRefreshToken(user.ID, ip, userAgent)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}
	if err := s.repo.CreateRefreshToken(ctx, refreshToken); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	now := s.now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     action,
		Resource:   "auth",
		ResourceID: &user.ID,
		NewValues:  []byte(`{"status":"success"}`),
		IPAddress:  ip,
		UserAgent:  userAgent,
	}); err != nil {
		s.logger.Warn("failed to record login audit log", zap.Error(err))
	}

	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken.Token,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     now,
		User:         models.NewUserInfo(user),
	}, nil
}

func (s *AuthService) audit(ctx context.Context, userID, action string, values interface{}) {
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "auth",
		ResourceID: &userID,
		NewValues:  auditValues(values),
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *AuthService) inOrgDomain(email string) bool {
	return s.config.OrgEmailDomain != "" && strings.HasSuffix(strings.ToLower(email), s.config.OrgEmailDomain)
}

func (s *AuthService) generateAccessToken(user *models.User) (string, time.Time, error) {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		UserID: user.ID,
		Role:   user.Role,
		Email:  user.Email,
		Name:   user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			Audience:  s.config.Audience,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *AuthService) newRefreshToken(userID, ip, userAgent string) (*models.RefreshToken, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	return &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     base64.RawURLEncoding.EncodeToString(buf),
		ExpiresAt: now.Add(s.config.RefreshTokenExpiry),
		CreatedAt: now,
		IPAddress: ip,
		UserAgent: userAgent,
	}, nil
}

// generateOTP returns a uniformly random 6-digit code.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func subtleEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
