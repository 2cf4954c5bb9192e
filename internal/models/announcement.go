package models

import (
	"time"

	"github.com/lib/pq"
)

// AnnouncementCategories is the closed set of announcement categories.
var AnnouncementCategories = []string{"general", "mess", "maintenance", "event", "emergency", "rules"}

// Announcement is a targeted broadcast message.
type Announcement struct {
	ID            string         `db:"id" json:"id"`
	Title         string         `db:"title" json:"title"`
	Content       string         `db:"content" json:"content"`
	Category      string         `db:"category" json:"category"`
	Priority      string         `db:"priority" json:"priority"`
	TargetHostels pq.StringArray `db:"target_hostels" json:"targetHostels"`
	TargetBlocks  pq.StringArray `db:"target_blocks" json:"targetBlocks"`
	ReadBy        pq.StringArray `db:"read_by" json:"-"`
	ExpiresAt     *time.Time     `db:"expires_at" json:"expiresAt,omitempty"`
	CreatedBy     string         `db:"created_by" json:"createdBy"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updatedAt"`

	CreatorName string `db:"creator_name" json:"creatorName,omitempty"`
	IsRead      bool   `db:"-" json:"isRead"`
	ReadCount   int    `db:"-" json:"readCount"`
}

// VisibleTo reports whether a reader in hostel/block is targeted. Empty target lists broadcast to all.
func (a *Announcement) VisibleTo(hostel, block string) bool {
	return matchesTarget(a.TargetHostels, hostel) && matchesTarget(a.TargetBlocks, block)
}

// ReadByUser reports whether userID is in the read set.
func (a *Announcement) ReadByUser(userID string) bool {
	for _, id := range a.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

func matchesTarget(targets []string, value string) bool {
	if len(targets) == 0 {
		return true
	}
	for _, t := range targets {
		if t == value {
			return true
		}
	}
	return false
}

// AnnouncementFilter narrows announcement listings.
type AnnouncementFilter struct {
	Category       string
	Priority       string
	Hostel         string
	Block          string
	Audience       bool
	IncludeExpired bool
	Page           int
	PageSize       int
}

// CreateAnnouncementRequest creates an announcement.
type CreateAnnouncementRequest struct {
	Title         string     `json:"title" validate:"required,min=3,max=200"`
	Content       string     `json:"content" validate:"required,min=3,max=5000"`
	Category      string     `json:"category" validate:"omitempty,oneof=general mess maintenance event emergency rules"`
	Priority      string     `json:"priority" validate:"omitempty,oneof=low normal high"`
	TargetHostels []string   `json:"targetHostels" validate:"omitempty,dive,max=50"`
	TargetBlocks  []string   `json:"targetBlocks" validate:"omitempty,dive,max=20"`
	ExpiresAt     *time.Time `json:"expiresAt"`
}

// UpdateAnnouncementRequest edits an announcement.
type UpdateAnnouncementRequest struct {
	Title         *string    `json:"title" validate:"omitempty,min=3,max=200"`
	Content       *string    `json:"content" validate:"omitempty,min=3,max=5000"`
	Category      *string    `json:"category" validate:"omitempty,oneof=general mess maintenance event emergency rules"`
	Priority      *string    `json:"priority" validate:"omitempty,oneof=low normal high"`
	TargetHostels *[]string  `json:"targetHostels" validate:"omitempty,dive,max=50"`
	TargetBlocks  *[]string  `json:"targetBlocks" validate:"omitempty,dive,max=20"`
	ExpiresAt     *time.Time `json:"expiresAt"`
}

// AnnouncementList is a page of announcements with the caller's unread count.
type AnnouncementList struct {
	Announcements []Announcement `json:"announcements"`
	UnreadCount   int            `json:"unreadCount"`
}
