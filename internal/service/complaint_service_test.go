package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostel-api/internal/models"
	"github.com/noah-isme/hostel-api/internal/repository"
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
)

type complaintRepoStub struct {
	items      map[string]*models.Complaint
	tickets    map[string]bool
	createCall int
}

func newComplaintRepoStub() *complaintRepoStub {
	return &complaintRepoStub{items: map[string]*models.Complaint{}, tickets: map[string]bool{}}
}

func (c *complaintRepoStub) Create(ctx context.Context, complaint *models.Complaint) error {
	c.createCall++
	if c.tickets[complaint.TicketID] {
		return repository.ErrDuplicate
	}
	c.tickets[complaint.TicketID] = true
	complaint.ID = "c" + complaint.TicketID
	clone := *complaint
	clone.StatusHistory = append(models.StatusHistory{}, complaint.StatusHistory...)
	c.items[complaint.ID] = &clone
	return nil
}

func (c *complaintRepoStub) FindByID(ctx context.Context, id string) (*models.Complaint, error) {
	if item, ok := c.items[id]; ok {
		clone := *item
		clone.StatusHistory = append(models.StatusHistory{}, item.StatusHistory...)
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (c *complaintRepoStub) AppendStatus(ctx context.Context, id string, change models.StatusChange) error {
	item, ok := c.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	item.Status = change.Status
	item.StatusHistory = append(item.StatusHistory, change)
	if change.Status == models.ComplaintResolved && item.ResolvedAt == nil {
		at := change.UpdatedAt
		by := change.UpdatedBy
		item.ResolvedAt = &at
		item.ResolvedBy = &by
	}
	return nil
}

func (c *complaintRepoStub) List(ctx context.Context, filter models.ComplaintFilter) ([]models.Complaint, int, error) {
	var out []models.Complaint
	for _, item := range c.items {
		if filter.StudentID != "" && item.StudentID != filter.StudentID {
			continue
		}
		out = append(out, *item)
	}
	return out, len(out), nil
}

func (c *complaintRepoStub) CountBy(ctx context.Context, column string, filter models.ComplaintFilter) (map[string]int, error) {
	items, _, _ := c.List(ctx, filter)
	counts := map[string]int{}
	for _, item := range items {
		if column == "status" {
			counts[string(item.Status)]++
		} else {
			counts[item.Category]++
		}
	}
	return counts, nil
}

func newTestComplaintService(repo *complaintRepoStub) *ComplaintService {
	svc := NewComplaintService(repo, nil, nil, nil)
	clock := time.Date(2024, time.March, 14, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return svc
}

func TestNewTicketIDFormat(t *testing.T) {
	id := NewTicketID(time.Date(2024, time.March, 14, 0, 0, 0, 0, time.UTC))
	assert.Regexp(t, regexp.MustCompile(`^TKT-20240314-[0-9A-F]{10}$`), id)
	assert.NotEqual(t, id, NewTicketID(time.Date(2024, time.March, 14, 0, 0, 0, 0, time.UTC)))
}

func TestCreateComplaintStartsHistory(t *testing.T) {
	repo := newComplaintRepoStub()
	svc := newTestComplaintService(repo)

	complaint, err := svc.Create(context.Background(), "s1", models.CreateComplaintRequest{Title: "Leaking tap", Description: "Bathroom tap leaks all night", Category: "plumbing"})
	require.NoError(t, err)
	assert.Equal(t, models.ComplaintPending, complaint.Status)
	assert.Equal(t, "medium", complaint.Priority)
	require.Len(t, complaint.StatusHistory, 1)
	assert.Equal(t, "s1", complaint.StatusHistory[0].UpdatedBy)
}

func TestCreateComplaintRetriesTicketCollision(t *testing.T) {
	repo := newComplaintRepoStub()
	repo.tickets["TKT-FIXED"] = true
	svc := newTestComplaintService(repo)
	calls := 0
	svc.newTicket = func(time.Time) string {
		calls++
		if calls == 1 {
			return "TKT-FIXED"
		}
		return "TKT-FRESH"
	}

	complaint, err := svc.Create(context.Background(), "s1", models.CreateComplaintRequest{Title: "Fan", Description: "Ceiling fan broken", Category: "electrical"})
	require.NoError(t, err)
	assert.Equal(t, "TKT-FRESH", complaint.TicketID)
	assert.Equal(t, 2, repo.createCall)
}

func TestComplaintLifecycleHistory(t *testing.T) {
	repo := newComplaintRepoStub()
	svc := newTestComplaintService(repo)
	ctx := context.Background()
	actor := &models.JWTClaims{UserID: "w1", Role: models.RoleWarden}

	created, err := svc.Create(ctx, "s1", models.CreateComplaintRequest{Title: "Wifi down", Description: "No internet in block B", Category: "internet"})
	require.NoError(t, err)

	inProgress, err := svc.UpdateStatus(ctx, created.ID, actor, models.UpdateComplaintStatusRequest{Status: models.ComplaintInProgress})
	require.NoError(t, err)
	assert.Nil(t, inProgress.ResolvedAt)

	resolved, err := svc.UpdateStatus(ctx, created.ID, actor, models.UpdateComplaintStatusRequest{Status: models.ComplaintResolved, Remarks: "router replaced"})
	require.NoError(t, err)

	require.Len(t, resolved.StatusHistory, 3)
	assert.Equal(t, []models.ComplaintStatus{models.ComplaintPending, models.ComplaintInProgress, models.ComplaintResolved},
		[]models.ComplaintStatus{resolved.StatusHistory[0].Status, resolved.StatusHistory[1].Status, resolved.StatusHistory[2].Status})
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, resolved.StatusHistory[2].UpdatedAt, *resolved.ResolvedAt)
	assert.Equal(t, "router replaced", resolved.StatusHistory[2].Remarks)

	reopened, err := svc.UpdateStatus(ctx, created.ID, actor, models.UpdateComplaintStatusRequest{Status: models.ComplaintInProgress})
	require.NoError(t, err)
	resolvedAgain, err := svc.UpdateStatus(ctx, created.ID, actor, models.UpdateComplaintStatusRequest{Status: models.ComplaintResolved})
	require.NoError(t, err)
	assert.Len(t, reopened.StatusHistory, 4)
	assert.Equal(t, *resolved.ResolvedAt, *resolvedAgain.ResolvedAt)
}

func TestUpdateStatusMissingComplaint(t *testing.T) {
	svc := newTestComplaintService(newComplaintRepoStub())
	_, err := svc.UpdateStatus(context.Background(), "missing", &models.JWTClaims{UserID: "w1"}, models.UpdateComplaintStatusRequest{Status: models.ComplaintResolved})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestGetComplaintOwnership(t *testing.T) {
	repo := newComplaintRepoStub()
	svc := newTestComplaintService(repo)
	created, err := svc.Create(context.Background(), "s1", models.CreateComplaintRequest{Title: "Noise", Description: "Loud music at night", Category: "other"})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), created.ID, &models.JWTClaims{UserID: "s2", Role: models.RoleStudent})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	got, err := svc.Get(context.Background(), created.ID, &models.JWTClaims{UserID: "w1", Role: models.RoleWarden})
	require.NoError(t, err)
	assert.Equal(t, created.TicketID, got.TicketID)
}

func TestComplaintListsIncludeCounts(t *testing.T) {
	repo := newComplaintRepoStub()
	svc := newTestComplaintService(repo)
	ctx := context.Background()
	_, err := svc.Create(ctx, "s1", models.CreateComplaintRequest{Title: "Tap", Description: "Leaking tap", Category: "plumbing"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "s2", models.CreateComplaintRequest{Title: "Food", Description: "Cold dinner", Category: "food"})
	require.NoError(t, err)

	mine, err := svc.Mine(ctx, "s1", models.ComplaintFilter{})
	require.NoError(t, err)
	assert.Len(t, mine.Complaints, 1)
	assert.Equal(t, map[string]int{"pending": 1, "in_progress": 0, "resolved": 0, "rejected": 0}, mine.StatusCounts)
	assert.Nil(t, mine.CategoryCounts)

	all, err := svc.List(ctx, models.ComplaintFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, all.StatusCounts["pending"])
	assert.Equal(t, 1, all.CategoryCounts["food"])
	assert.Equal(t, 0, all.CategoryCounts["security"])
	assert.Equal(t, 2, all.Pagination.TotalCount)
}
