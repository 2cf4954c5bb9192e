package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/hostel-api/internal/models"
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
)

type mockAuthRepo struct {
	users         map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
	auditLogs     []*models.AuditLog
	created       []*models.User
	linked        map[string]string
	createErr     error
}

func newMockAuthRepo(users ...*models.User) *mockAuthRepo {
	m := &mockAuthRepo{users: map[string]*models.User{}, refreshTokens: map[string]*models.RefreshToken{}, linked: map[string]string{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	for _, u := range m.users {
		if u.GoogleID != nil && *u.GoogleID == googleID {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) ExistsByEmailOrCollegeID(ctx context.Context, email, collegeID string) (bool, bool, error) {
	var emailTaken, collegeTaken bool
	for _, u := range m.users {
		emailTaken = emailTaken || strings.EqualFold(u.Email, email)
		collegeTaken = collegeTaken || u.CollegeID == collegeID
	}
	return emailTaken, collegeTaken, nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	if user.ID == "" {
		user.ID = "user-" + user.CollegeID
	}
	m.users[user.ID] = user
	m.created = append(m.created, user)
	return nil
}

func (m *mockAuthRepo) SetVerificationCode(ctx context.Context, id, code string, expiresAt time.Time) error {
	u := m.users[id]
	if u == nil || u.IsEmailVerified {
		return sql.ErrNoRows
	}
	u.VerificationCode = &code
	u.VerificationExpiresAt = &expiresAt
	return nil
}

func (m *mockAuthRepo) MarkEmailVerified(ctx context.Context, id string) error {
	u := m.users[id]
	if u == nil || u.IsEmailVerified {
		return sql.ErrNoRows
	}
	u.IsEmailVerified = true
	u.VerificationCode = nil
	u.VerificationExpiresAt = nil
	return nil
}

func (m *mockAuthRepo) LinkGoogleID(ctx context.Context, id, googleID string) error {
	m.linked[id] = googleID
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if u := m.users[id]; u != nil {
		u.PasswordHash = &passwordHash
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	for _, t := range m.refreshTokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.refreshTokens[token]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, t := range m.refreshTokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

type notifierStub struct {
	queued  map[string]string
	sent    map[string]string
	sendErr error
}

func newNotifierStub() *notifierStub {
	return &notifierStub{queued: map[string]string{}, sent: map[string]string{}}
}

func (n *notifierStub) SendVerification(ctx context.Context, user *models.User, code string) error {
	if n.sendErr != nil {
		return n.sendErr
	}
	n.sent[user.Email] = code
	return nil
}

func (n *notifierStub) QueueVerification(user *models.User, code string) error {
	n.queued[user.Email] = code
	return nil
}

type googleStub struct {
	profile *models.GoogleProfile
	err     error
}

func (g *googleStub) AuthURL() (string, error) { return "https://accounts.example/consent", nil }

func (g *googleStub) Exchange(ctx context.Context, state, code string) (*models.GoogleProfile, error) {
	return g.profile, g.err
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "hostel-api",
		OrgEmailDomain:     "@college.edu",
		OTPTTL:             10 * time.Minute,
	}
}

func newTestAuthService(repo *mockAuthRepo, notifier verificationNotifier, google identityProvider) *AuthService {
	return NewAuthService(repo, notifier, google, validator.New(), zap.NewNop(), testAuthConfig())
}

func hashed(t *testing.T, password string) *string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return strPtr(string(h))
}

func activeUser(t *testing.T, id string, role models.UserRole) *models.User {
	return &models.User{
		ID:              id,
		Name:            "User " + id,
		CollegeID:       "C-" + id,
		Email:           id + "@college.edu",
		PasswordHash:    hashed(t, "password123"),
		Role:            role,
		ApprovalStatus:  models.ApprovalApproved,
		IsActive:        true,
		IsEmailVerified: true,
	}
}

func registerRequest(email string, role models.UserRole) models.RegisterRequest {
	return models.RegisterRequest{Name: "Asha Rao", CollegeID: "CS2026001", Email: email, Password: "password123", Role: role}
}

func TestRegisterRejectsForeignDomain(t *testing.T) {
	repo := newMockAuthRepo()
	svc := newTestAuthService(repo, newNotifierStub(), nil)

	_, err := svc.Register(context.Background(), registerRequest("asha@gmail.com", models.RoleStudent))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, repo.created)
}

func TestRegisterRejectsAdmin(t *testing.T) {
	repo := newMockAuthRepo()
	svc := newTestAuthService(repo, newNotifierStub(), nil)

	_, err := svc.Register(context.Background(), registerRequest("boss@college.edu", models.RoleAdmin))
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Empty(t, repo.created)
}

func TestRegisterRejectsDuplicateBeforeWrite(t *testing.T) {
	existing := activeUser(t, "u1", models.RoleStudent)
	repo := newMockAuthRepo(existing)
	svc := newTestAuthService(repo, newNotifierStub(), nil)

	req := registerRequest("fresh@college.edu", models.RoleStudent)
	req.CollegeID = existing.CollegeID
	_, err := svc.Register(context.Background(), req)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	assert.Empty(t, repo.created)
}

func TestRegisterCreatesUnverifiedAccountAndQueuesCode(t *testing.T) {
	repo := newMockAuthRepo()
	notifier := newNotifierStub()
	svc := newTestAuthService(repo, notifier, nil)

	resp, err := svc.Register(context.Background(), registerRequest("Asha@College.edu", models.RoleWarden))
	require.NoError(t, err)
	assert.True(t, resp.VerificationRequired)
	assert.True(t, resp.ApprovalRequired)

	require.Len(t, repo.created, 1)
	user := repo.created[0]
	assert.Equal(t, "asha@college.edu", user.Email)
	assert.False(t, user.IsEmailVerified)
	assert.Equal(t, models.ApprovalPending, user.ApprovalStatus)
	require.NotNil(t, user.VerificationCode)
	assert.Len(t, *user.VerificationCode, 6)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), *user.VerificationExpiresAt, time.Minute)
	assert.Equal(t, *user.VerificationCode, notifier.queued["asha@college.edu"])
}

func TestRegisterStudentSkipsApproval(t *testing.T) {
	svc := newTestAuthService(newMockAuthRepo(), newNotifierStub(), nil)
	resp, err := svc.Register(context.Background(), registerRequest("student@college.edu", ""))
	require.NoError(t, err)
	assert.False(t, resp.ApprovalRequired)
	assert.Equal(t, models.RoleStudent, resp.User.Role)
}

func unverifiedUser(t *testing.T, code string, expires time.Time) *models.User {
	u := activeUser(t, "u1", models.RoleStudent)
	u.IsEmailVerified = false
	u.VerificationCode = &code
	u.VerificationExpiresAt = &expires
	return u
}

func TestVerifyEmailFailsClosed(t *testing.T) {
	ctx := context.Background()

	t.Run("mismatch", func(t *testing.T) {
		repo := newMockAuthRepo(unverifiedUser(t, "123456", time.Now().Add(time.Minute)))
		_, err := newTestAuthService(repo, nil, nil).VerifyEmail(ctx, models.VerifyEmailRequest{Email: "u1@college.edu", Code: "654321"})
		assert.True(t, errors.Is(err, appErrors.ErrValidation))
		assert.False(t, repo.users["u1"].IsEmailVerified)
	})

	t.Run("expired", func(t *testing.T) {
		repo := newMockAuthRepo(unverifiedUser(t, "123456", time.Now().Add(-time.Second)))
		_, err := newTestAuthService(repo, nil, nil).VerifyEmail(ctx, models.VerifyEmailRequest{Email: "u1@college.edu", Code: "123456"})
		assert.True(t, errors.Is(err, appErrors.ErrValidation))
	})

	t.Run("no code on record", func(t *testing.T) {
		u := unverifiedUser(t, "123456", time.Now().Add(time.Minute))
		u.VerificationCode = nil
		_, err := newTestAuthService(newMockAuthRepo(u), nil, nil).VerifyEmail(ctx, models.VerifyEmailRequest{Email: "u1@college.edu", Code: "123456"})
		assert.True(t, errors.Is(err, appErrors.ErrValidation))
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := newTestAuthService(newMockAuthRepo(), nil, nil).VerifyEmail(ctx, models.VerifyEmailRequest{Email: "nobody@college.edu", Code: "123456"})
		assert.True(t, errors.Is(err, appErrors.ErrValidation))
	})
}

func TestVerifyEmailSucceedsOnceThenRejects(t *testing.T) {
	repo := newMockAuthRepo(unverifiedUser(t, "123456", time.Now().Add(time.Minute)))
	svc := newTestAuthService(repo, nil, nil)

	info, err := svc.VerifyEmail(context.Background(), models.VerifyEmailRequest{Email: "u1@college.edu", Code: "123456"})
	require.NoError(t, err)
	assert.True(t, info.IsEmailVerified)
	assert.Nil(t, repo.users["u1"].VerificationCode)

	_, err = svc.VerifyEmail(context.Background(), models.VerifyEmailRequest{Email: "u1@college.edu", Code: "123456"})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestResendOTPSendsSynchronously(t *testing.T) {
	repo := newMockAuthRepo(unverifiedUser(t, "111111", time.Now().Add(-time.Minute)))
	notifier := newNotifierStub()
	svc := newTestAuthService(repo, notifier, nil)

	require.NoError(t, svc.ResendOTP(context.Background(), models.ResendOTPRequest{Email: "u1@college.edu"}))
	code := notifier.sent["u1@college.edu"]
	assert.Len(t, code, 6)
	assert.Equal(t, code, *repo.users["u1"].VerificationCode)

	notifier.sendErr = errors.New("smtp down")
	err := svc.ResendOTP(context.Background(), models.ResendOTPRequest{Email: "u1@college.edu"})
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}

func TestLoginGate(t *testing.T) {
	ctx := context.Background()
	login := models.LoginRequest{Email: "u1@college.edu", Password: "password123"}

	cases := []struct {
		name   string
		mutate func(u *models.User)
		want   *appErrors.Error
	}{
		{"wrong password", func(u *models.User) { u.PasswordHash = hashed(t, "other") }, appErrors.ErrInvalidCredentials},
		{"oauth only", func(u *models.User) { u.PasswordHash = nil }, appErrors.ErrInvalidCredentials},
		{"unverified", func(u *models.User) { u.IsEmailVerified = false }, appErrors.ErrEmailNotVerified},
		{"inactive", func(u *models.User) { u.IsActive = false }, appErrors.ErrInactiveAccount},
		{"pending warden", func(u *models.User) { u.Role = models.RoleWarden; u.ApprovalStatus = models.ApprovalPending }, appErrors.ErrApprovalPending},
		{"rejected student", func(u *models.User) { u.ApprovalStatus = models.ApprovalRejected }, appErrors.ErrApprovalPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u := activeUser(t, "u1", models.RoleStudent)
			tc.mutate(u)
			_, err := newTestAuthService(newMockAuthRepo(u), nil, nil).Login(ctx, login)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}

	t.Run("unknown email matches wrong password message", func(t *testing.T) {
		_, err := newTestAuthService(newMockAuthRepo(), nil, nil).Login(ctx, login)
		require.Error(t, err)
		assert.Equal(t, "invalid email or password", appErrors.FromError(err).Message)
	})
}

func TestLoginIssuesValidTokens(t *testing.T) {
	admin := activeUser(t, "a1", models.RoleAdmin)
	admin.ApprovalStatus = models.ApprovalPending
	repo := newMockAuthRepo(admin)
	svc := newTestAuthService(repo, nil, nil)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "a1@college.edu", Password: "password123", IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.RefreshToken)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "a1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	require.NotEmpty(t, repo.auditLogs)
	assert.Equal(t, models.AuditActionLogin, repo.auditLogs[len(repo.auditLogs)-1].Action)
}

func TestRefreshTokenRotates(t *testing.T) {
	repo := newMockAuthRepo(activeUser(t, "u1", models.RoleStudent))
	svc := newTestAuthService(repo, nil, nil)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "u1@college.edu", Password: "password123"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.True(t, repo.refreshTokens[login.RefreshToken].Revoked)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestChangePasswordRequiresOldPassword(t *testing.T) {
	repo := newMockAuthRepo(activeUser(t, "u1", models.RoleStudent))
	svc := newTestAuthService(repo, nil, nil)

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "nope", NewPassword: "newpass123"})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	require.NoError(t, svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "password123", NewPassword: "newpass123"}))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*repo.users["u1"].PasswordHash), []byte("newpass123")))
}

func TestGoogleCallbackRejectsForeignDomain(t *testing.T) {
	repo := newMockAuthRepo()
	google := &googleStub{profile: &models.GoogleProfile{ID: "g1", Email: "someone@gmail.com", VerifiedEmail: true}}
	svc := newTestAuthService(repo, newNotifierStub(), google)

	_, err := svc.GoogleCallback(context.Background(), "state", "code", "", "")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Empty(t, repo.created)
}

func TestGoogleCallbackProvisionsUnverifiedStudent(t *testing.T) {
	repo := newMockAuthRepo()
	notifier := newNotifierStub()
	google := &googleStub{profile: &models.GoogleProfile{ID: "g1", Email: "new@college.edu", Name: "New Student"}}
	svc := newTestAuthService(repo, notifier, google)

	_, err := svc.GoogleCallback(context.Background(), "state", "code", "", "")
	assert.True(t, errors.Is(err, appErrors.ErrEmailNotVerified))

	require.Len(t, repo.created, 1)
	user := repo.created[0]
	assert.Equal(t, models.RoleStudent, user.Role)
	assert.False(t, user.IsEmailVerified)
	assert.Equal(t, "g1", *user.GoogleID)
	assert.NotEmpty(t, notifier.queued["new@college.edu"])
}

func TestGoogleCallbackLinksExistingAccount(t *testing.T) {
	existing := activeUser(t, "u1", models.RoleStudent)
	repo := newMockAuthRepo(existing)
	google := &googleStub{profile: &models.GoogleProfile{ID: "g-77", Email: "u1@college.edu"}}
	svc := newTestAuthService(repo, nil, google)

	resp, err := svc.GoogleCallback(context.Background(), "state", "code", "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "g-77", repo.linked["u1"])
	assert.Empty(t, repo.created)
}

func TestGoogleDisabled(t *testing.T) {
	svc := newTestAuthService(newMockAuthRepo(), nil, nil)
	_, err := svc.GoogleAuthURL()
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestAuthenticateReloadsAccount(t *testing.T) {
	user := activeUser(t, "u1", models.RoleStudent)
	repo := newMockAuthRepo(user)
	svc := newTestAuthService(repo, nil, nil)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "u1@college.edu", Password: "password123"})
	require.NoError(t, err)

	user.Role = models.RoleWarden
	claims, err := svc.Authenticate(context.Background(), login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleWarden, claims.Role)

	user.IsActive = false
	_, err = svc.Authenticate(context.Background(), login.AccessToken)
	assert.True(t, errors.Is(err, appErrors.ErrInactiveAccount))

	user.IsActive = true
	user.ApprovalStatus = models.ApprovalPending
	_, err = svc.Authenticate(context.Background(), login.AccessToken)
	assert.True(t, errors.Is(err, appErrors.ErrApprovalPending))

	delete(repo.users, "u1")
	_, err = svc.Authenticate(context.Background(), login.AccessToken)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	_, err = svc.Authenticate(context.Background(), "not-a-token")
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}
