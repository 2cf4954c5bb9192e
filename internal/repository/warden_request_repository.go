package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hostel-api/internal/models"
	"github.com/noah-isme/hostel-api/pkg/database"
)

const wardenRequestColumns = `w.id, w.user_id, w.reason, w.experience, w.status, w.reviewed_by, w.reviewed_at, w.review_note, w.created_at, w.updated_at,
    u.name AS user_name, u.email AS user_email, u.college_id AS user_college_id`

const wardenRequestFrom = `FROM warden_requests w JOIN users u ON u.id = w.user_id`

// WardenRequestRepository persists warden promotion requests.
type WardenRequestRepository struct {
	db *sqlx.DB
}

// NewWardenRequestRepository constructs the repository.
func NewWardenRequestRepository(db *sqlx.DB) *WardenRequestRepository {
	return &WardenRequestRepository{db: db}
}

// Create inserts a request. A second pending request for the same user yields ErrDuplicate.
func (r *WardenRequestRepository) Create(ctx context.Context, req *models.WardenRequest) error {
	now := time.Now().UTC()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.CreatedAt = now
	req.UpdatedAt = now
	const query = `INSERT INTO warden_requests (id, user_id, reason, experience, status, created_at, updated_at)
VALUES (:id, :user_id, :reason, :experience, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return wrapWrite("create warden request", err)
	}
	return nil
}

// FindByID returns a request by id.
func (r *WardenRequestRepository) FindByID(ctx context.Context, id string) (*models.WardenRequest, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE w.id = $1", wardenRequestColumns, wardenRequestFrom)
	var req models.WardenRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find warden request: %w", err)
	}
	return &req, nil
}

// HasPending reports whether the user already has a pending request.
func (r *WardenRequestRepository) HasPending(ctx context.Context, userID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM warden_requests WHERE user_id = $1 AND status = 'pending')`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID); err != nil {
		return false, fmt.Errorf("check pending warden request: %w", err)
	}
	return exists, nil
}

// ListByUser returns a user's requests, newest first.
func (r *WardenRequestRepository) ListByUser(ctx context.Context, userID string) ([]models.WardenRequest, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE w.user_id = $1 ORDER BY w.created_at DESC", wardenRequestColumns, wardenRequestFrom)
	var reqs []models.WardenRequest
	if err := r.db.SelectContext(ctx, &reqs, query, userID); err != nil {
		return nil, fmt.Errorf("list user warden requests: %w", err)
	}
	return reqs, nil
}

// List returns a page of requests and the total count.
func (r *WardenRequestRepository) List(ctx context.Context, filter models.WardenRequestFilter) ([]models.WardenRequest, int, error) {
	where := "1=1"
	var args []interface{}
	if filter.Status != nil {
		where = "w.status = $1"
		args = append(args, *filter.Status)
	}
	_, size, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY w.created_at DESC LIMIT %d OFFSET %d", wardenRequestColumns, wardenRequestFrom, where, size, offset)
	var reqs []models.WardenRequest
	if err := r.db.SelectContext(ctx, &reqs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list warden requests: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", wardenRequestFrom, where), args...); err != nil {
		return nil, 0, fmt.Errorf("count warden requests: %w", err)
	}
	return reqs, total, nil
}

// Approve closes a pending request and promotes its user to an approved warden atomically.
// Returns sql.ErrNoRows when the request is missing or no longer pending.
func (r *WardenRequestRepository) Approve(ctx context.Context, id, reviewerID, note string, at time.Time) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		userID, err := closeRequest(ctx, tx, id, models.ApprovalApproved, reviewerID, note, at)
		if err != nil {
			return err
		}
		const promote = `UPDATE users SET role = $2, approval_status = $3, rejection_reason = NULL, updated_at = $4 WHERE id = $1`
		return execOne(ctx, tx, "promote user to warden", promote, userID, models.RoleWarden, models.ApprovalApproved, at)
	})
}

// Reject closes a pending request and records the rejection on its user atomically.
func (r *WardenRequestRepository) Reject(ctx context.Context, id, reviewerID, note string, at time.Time) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		userID, err := closeRequest(ctx, tx, id, models.ApprovalRejected, reviewerID, note, at)
		if err != nil {
			return err
		}
		const reject = `UPDATE users SET approval_status = $2, rejection_reason = $3, updated_at = $4 WHERE id = $1`
		return execOne(ctx, tx, "record warden rejection", reject, userID, models.ApprovalRejected, note, at)
	})
}

func closeRequest(ctx context.Context, tx *sqlx.Tx, id string, status models.ApprovalStatus, reviewerID, note string, at time.Time) (string, error) {
	const query = `UPDATE warden_requests SET status = $2, reviewed_by = $3, reviewed_at = $4, review_note = NULLIF($5, ''), updated_at = $4
WHERE id = $1 AND status = 'pending' RETURNING user_id`
	var userID string
	if err := tx.GetContext(ctx, &userID, query, id, status, reviewerID, at, note); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("close warden request: %w", err)
	}
	return userID, nil
}
