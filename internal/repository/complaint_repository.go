package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hostel-api/internal/models"
)

const complaintColumns = `c.id, c.ticket_id, c.student_id, c.title, c.description, c.category, c.priority, c.status, c.status_history, c.resolved_by, c.resolved_at, c.created_at, c.updated_at,
    u.name AS student_name`

const complaintFrom = `FROM complaints c JOIN users u ON u.id = c.student_id`

// ComplaintRepository persists complaint tickets.
type ComplaintRepository struct {
	db *sqlx.DB
}

// NewComplaintRepository constructs the repository.
func NewComplaintRepository(db *sqlx.DB) *ComplaintRepository {
	return &ComplaintRepository{db: db}
}

// Create inserts a ticket. A ticket id collision yields ErrDuplicate.
func (r *ComplaintRepository) Create(ctx context.Context, complaint *models.Complaint) error {
	now := time.Now().UTC()
	if complaint.ID == "" {
		complaint.ID = uuid.NewString()
	}
	complaint.CreatedAt = now
	complaint.UpdatedAt = now
	const query = `INSERT INTO complaints (id, ticket_id, student_id, title, description, category, priority, status, status_history, created_at, updated_at)
VALUES (:id, :ticket_id, :student_id, :title, :description, :category, :priority, :status, :status_history, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, complaint); err != nil {
		return wrapWrite("create complaint", err)
	}
	return nil
}

// FindByID returns a ticket by id.
func (r *ComplaintRepository) FindByID(ctx context.Context, id string) (*models.Complaint, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE c.id = $1", complaintColumns, complaintFrom)
	var complaint models.Complaint
	if err := r.db.GetContext(ctx, &complaint, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find complaint: %w", err)
	}
	return &complaint, nil
}

// AppendStatus sets the status and appends one history entry in a single statement.
// When the new status is resolved, resolved_by and resolved_at are stamped only if still unset.
func (r *ComplaintRepository) AppendStatus(ctx context.Context, id string, change models.StatusChange) error {
	entry, err := json.Marshal([]models.StatusChange{change})
	if err != nil {
		return fmt.Errorf("encode status change: %w", err)
	}
	resolved := change.Status == models.ComplaintResolved
	const query = `UPDATE complaints SET
    status = $2,
    status_history = status_history || $3::jsonb,
    resolved_by = CASE WHEN $4::boolean AND resolved_at IS NULL THEN $5::uuid ELSE resolved_by END,
    resolved_at = CASE WHEN $4::boolean THEN COALESCE(resolved_at, $6) ELSE resolved_at END,
    updated_at = $6
WHERE id = $1`
	return execOne(ctx, r.db, "append complaint status", query, id, change.Status, string(entry), resolved, change.UpdatedBy, change.UpdatedAt)
}

func complaintWhere(filter models.ComplaintFilter, withStatus bool) (string, []interface{}) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("c.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if withStatus && filter.Status != nil {
		where = append(where, fmt.Sprintf("c.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Category != "" {
		where = append(where, fmt.Sprintf("c.category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Priority != "" {
		where = append(where, fmt.Sprintf("c.priority = $%d", len(args)+1))
		args = append(args, filter.Priority)
	}
	if filter.From != nil {
		where = append(where, fmt.Sprintf("c.created_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		where = append(where, fmt.Sprintf("c.created_at < $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	return strings.Join(where, " AND "), args
}

// List returns a page of tickets and the total count.
func (r *ComplaintRepository) List(ctx context.Context, filter models.ComplaintFilter) ([]models.Complaint, int, error) {
	whereClause, args := complaintWhere(filter, true)
	_, size, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY c.created_at DESC LIMIT %d OFFSET %d", complaintColumns, complaintFrom, whereClause, size, offset)
	var complaints []models.Complaint
	if err := r.db.SelectContext(ctx, &complaints, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list complaints: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", complaintFrom, whereClause), args...); err != nil {
		return nil, 0, fmt.Errorf("count complaints: %w", err)
	}
	return complaints, total, nil
}

// CountBy groups the filtered tickets by column ("status" or "category").
// The status filter is ignored so every bucket stays visible.
func (r *ComplaintRepository) CountBy(ctx context.Context, column string, filter models.ComplaintFilter) (map[string]int, error) {
	switch column {
	case "status", "category":
	default:
		return nil, fmt.Errorf("count complaints: unsupported column %q", column)
	}
	whereClause, args := complaintWhere(filter, false)
	query := fmt.Sprintf("SELECT c.%s AS key, COUNT(*) AS count %s WHERE %s GROUP BY c.%s", column, complaintFrom, whereClause, column)
	var rows []struct {
		Key   string `db:"key"`
		Count int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count complaints by %s: %w", column, err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Key] = row.Count
	}
	return counts, nil
}
