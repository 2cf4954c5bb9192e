package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hostel-api/internal/models"
)

const userColumns = `id, name, college_id, email, password_hash, google_id, role, approval_status, rejection_reason, is_active, is_email_verified, verification_code, verification_expires_at, phone, hostel, block, room_id, room_number, last_login, created_at, updated_at`

// UserRepository provides database access for user management.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) findOne(ctx context.Context, op, where string, arg interface{}) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE %s LIMIT 1", userColumns, where)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &user, nil
}

// FindByEmail returns a user by email address, case-insensitively.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "find user by email", "LOWER(email) = LOWER($1)", email)
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, "find user by id", "id = $1", id)
}

// FindByGoogleID returns the user linked to a Google account.
func (r *UserRepository) FindByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	return r.findOne(ctx, "find user by google id", "google_id = $1", googleID)
}

// ExistsByEmailOrCollegeID reports which identity fields are already taken.
func (r *UserRepository) ExistsByEmailOrCollegeID(ctx context.Context, email, collegeID string) (bool, bool, error) {
	const query = `SELECT
    COALESCE(BOOL_OR(LOWER(email) = LOWER($1)), FALSE) AS email_taken,
    COALESCE(BOOL_OR(college_id = $2), FALSE) AS college_taken
FROM users WHERE LOWER(email) = LOWER($1) OR college_id = $2`
	var row struct {
		EmailTaken   bool `db:"email_taken"`
		CollegeTaken bool `db:"college_taken"`
	}
	if err := r.db.GetContext(ctx, &row, query, email, collegeID); err != nil {
		return false, false, fmt.Errorf("check user identity: %w", err)
	}
	return row.EmailTaken, row.CollegeTaken, nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	const query = `INSERT INTO users (id, name, college_id, email, password_hash, google_id, role, approval_status, is_active, is_email_verified, verification_code, verification_expires_at, phone, hostel, block, created_at, updated_at)
VALUES (:id, :name, :college_id, :email, :password_hash, :google_id, :role, :approval_status, :is_active, :is_email_verified, :verification_code, :verification_expires_at, :phone, :hostel, :block, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return wrapWrite("create user", err)
	}
	return nil
}

// SetVerificationCode stores a fresh one-time code for an unverified account.
func (r *UserRepository) SetVerificationCode(ctx context.Context, id, code string, expiresAt time.Time) error {
	const query = `UPDATE users SET verification_code = $2, verification_expires_at = $3, updated_at = $4 WHERE id = $1 AND is_email_verified = FALSE`
	return execOne(ctx, r.db, "set verification code", query, id, code, expiresAt, time.Now().UTC())
}

// MarkEmailVerified flips the verified flag and clears the one-time code.
// Returns sql.ErrNoRows when the account was already verified.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	const query = `UPDATE users SET is_email_verified = TRUE, verification_code = NULL, verification_expires_at = NULL, updated_at = $2 WHERE id = $1 AND is_email_verified = FALSE`
	return execOne(ctx, r.db, "mark email verified", query, id, time.Now().UTC())
}

// LinkGoogleID attaches a Google identity to an existing account.
func (r *UserRepository) LinkGoogleID(ctx context.Context, id, googleID string) error {
	const query = `UPDATE users SET google_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, googleID, time.Now().UTC()); err != nil {
		return wrapWrite("link google id", err)
	}
	return nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// UpdateProfile changes self-service fields.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	const query = `UPDATE users SET name = :name, phone = :phone, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// UpdateApproval sets the approval status and reason.
func (r *UserRepository) UpdateApproval(ctx context.Context, id string, status models.ApprovalStatus, reason *string) error {
	const query = `UPDATE users SET approval_status = $2, rejection_reason = $3, updated_at = $4 WHERE id = $1`
	return execOne(ctx, r.db, "update approval", query, id, status, reason, time.Now().UTC())
}

// UpdateActive toggles the activity flag.
func (r *UserRepository) UpdateActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE users SET is_active = $2, updated_at = $3 WHERE id = $1`
	return execOne(ctx, r.db, "update active flag", query, id, active, time.Now().UTC())
}

// UpdateRole changes a user's role together with the approval state that role implies.
func (r *UserRepository) UpdateRole(ctx context.Context, id string, role models.UserRole, approval models.ApprovalStatus) error {
	const query = `UPDATE users SET role = $2, approval_status = $3, updated_at = $4 WHERE id = $1`
	return execOne(ctx, r.db, "update role", query, id, role, approval, time.Now().UTC())
}

// List returns users based on filters with total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	baseQuery := `FROM users WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.ApprovalStatus != nil {
		conditions = append(conditions, fmt.Sprintf("approval_status = $%d", len(args)+1))
		args = append(args, *filter.ApprovalStatus)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Hostel != "" {
		conditions = append(conditions, fmt.Sprintf("hostel = $%d", len(args)+1))
		args = append(args, filter.Hostel)
	}
	if filter.Block != "" {
		conditions = append(conditions, fmt.Sprintf("block = $%d", len(args)+1))
		args = append(args, filter.Block)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(email) LIKE $%d OR LOWER(name) LIKE $%d OR LOWER(college_id) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":       true,
		"email":      true,
		"college_id": true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	_, pageSize, offset := pageBounds(filter.Page, filter.PageSize)

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", userColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	return users, total, nil
}

// ListActiveStudents returns every active, approved student ordered by college id.
func (r *UserRepository) ListActiveStudents(ctx context.Context) ([]models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE role = $1 AND is_active = TRUE AND approval_status = $2 ORDER BY college_id", userColumns)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, models.RoleStudent, models.ApprovalApproved); err != nil {
		return nil, fmt.Errorf("list active students: %w", err)
	}
	return users, nil
}

// HardDelete removes a user row and everything cascading from it.
func (r *UserRepository) HardDelete(ctx context.Context, id string) error {
	return execOne(ctx, r.db, "delete user", `DELETE FROM users WHERE id = $1`, id)
}

// CreateRefreshToken persists a refresh token entry.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent) VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :revoked_at, :ip_address, :user_agent)`
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken returns a refresh token by token string.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// RevokeRefreshToken marks a token as revoked.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes all refresh tokens for a user.
func (r *UserRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

// CreateAuditLog stores an audit log entry.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
