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

const announcementColumns = `a.id, a.title, a.content, a.category, a.priority, a.target_hostels, a.target_blocks, a.read_by, a.expires_at, a.created_by, a.created_at, a.updated_at,
    COALESCE(u.name, '') AS creator_name`

const announcementFrom = `FROM announcements a LEFT JOIN users u ON u.id = a.created_by`

// AnnouncementRepository persists announcements and read receipts.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository constructs the repository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

// Create inserts an announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, a *models.Announcement) error {
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.TargetHostels == nil {
		a.TargetHostels = []string{}
	}
	if a.TargetBlocks == nil {
		a.TargetBlocks = []string{}
	}
	if a.ReadBy == nil {
		a.ReadBy = []string{}
	}
	const query = `INSERT INTO announcements (id, title, content, category, priority, target_hostels, target_blocks, read_by, expires_at, created_by, created_at, updated_at)
VALUES (:id, :title, :content, :category, :priority, :target_hostels, :target_blocks, :read_by, :expires_at, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return wrapWrite("create announcement", err)
	}
	return nil
}

// FindByID returns an announcement by id.
func (r *AnnouncementRepository) FindByID(ctx context.Context, id string) (*models.Announcement, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE a.id = $1", announcementColumns, announcementFrom)
	var a models.Announcement
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find announcement: %w", err)
	}
	return &a, nil
}

// Update writes editable fields.
func (r *AnnouncementRepository) Update(ctx context.Context, a *models.Announcement) error {
	a.UpdatedAt = time.Now().UTC()
	const query = `UPDATE announcements SET title = :title, content = :content, category = :category, priority = :priority, target_hostels = :target_hostels, target_blocks = :target_blocks, expires_at = :expires_at, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, a)
	if err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an announcement.
func (r *AnnouncementRepository) Delete(ctx context.Context, id string) error {
	return execOne(ctx, r.db, "delete announcement", `DELETE FROM announcements WHERE id = $1`, id)
}

// MarkRead appends userID to the read set unless already present.
// It reports false when the reader was already recorded.
func (r *AnnouncementRepository) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	const query = `UPDATE announcements SET read_by = array_append(read_by, $2::text) WHERE id = $1 AND NOT ($2::text = ANY(read_by))`
	err := execOne(ctx, r.db, "mark announcement read", query, id, userID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM announcements WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("check announcement: %w", err)
	}
	if !exists {
		return false, sql.ErrNoRows
	}
	return false, nil
}

func announcementWhere(filter models.AnnouncementFilter, now time.Time) (string, []interface{}) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Category != "" {
		where = append(where, fmt.Sprintf("a.category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Priority != "" {
		where = append(where, fmt.Sprintf("a.priority = $%d", len(args)+1))
		args = append(args, filter.Priority)
	}
	if filter.Audience {
		where = append(where, fmt.Sprintf("(cardinality(a.target_hostels) = 0 OR $%d = ANY(a.target_hostels))", len(args)+1))
		args = append(args, filter.Hostel)
		where = append(where, fmt.Sprintf("(cardinality(a.target_blocks) = 0 OR $%d = ANY(a.target_blocks))", len(args)+1))
		args = append(args, filter.Block)
	}
	if !filter.IncludeExpired {
		where = append(where, fmt.Sprintf("(a.expires_at IS NULL OR a.expires_at > $%d)", len(args)+1))
		args = append(args, now)
	}
	return strings.Join(where, " AND "), args
}

// List returns a page of announcements, newest first, and the total count.
func (r *AnnouncementRepository) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	whereClause, args := announcementWhere(filter, time.Now().UTC())
	_, size, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY a.created_at DESC LIMIT %d OFFSET %d", announcementColumns, announcementFrom, whereClause, size, offset)
	var items []models.Announcement
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", announcementFrom, whereClause), args...); err != nil {
		return nil, 0, fmt.Errorf("count announcements: %w", err)
	}
	return items, total, nil
}

// CountUnread counts announcements matching the filter that userID has not read.
func (r *AnnouncementRepository) CountUnread(ctx context.Context, filter models.AnnouncementFilter, userID string) (int, error) {
	whereClause, args := announcementWhere(filter, time.Now().UTC())
	query := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s AND NOT ($%d = ANY(a.read_by))", announcementFrom, whereClause, len(args)+1)
	args = append(args, userID)
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count unread announcements: %w", err)
	}
	return count, nil
}
