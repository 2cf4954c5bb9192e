package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostel-api/internal/models"
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
)

type fakeMessSrv struct {
	messService
	bill       *models.MessBill
	lastFilter models.MessBillFilter
}

func (f *fakeMessSrv) GetBill(_ context.Context, id string) (*models.MessBill, error) {
	if f.bill == nil || f.bill.ID != id {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "bill not found")
	}
	return f.bill, nil
}

func (f *fakeMessSrv) ListBills(_ context.Context, filter models.MessBillFilter) ([]models.MessBill, *models.Pagination, *models.MessBillTotals, error) {
	f.lastFilter = filter
	return []models.MessBill{}, models.NewPagination(1, 20, 0), &models.MessBillTotals{}, nil
}

func (f *fakeMessSrv) UpdatePayment(_ context.Context, _ string, req models.UpdatePaymentRequest) (*models.MessBill, error) {
	if req.PaymentStatus == models.PaymentPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "payment status cannot move backwards")
	}
	return &models.MessBill{PaymentStatus: req.PaymentStatus}, nil
}

type fakeExporter struct {
	billExporter
	owner string
	path  string
}

func (f *fakeExporter) ParseToken(token string) (string, string, error) {
	if token != "good" {
		return "", "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download link")
	}
	return f.owner, filepath.Base(f.path), nil
}

func (f *fakeExporter) Open(string) (*os.File, error) {
	return os.Open(f.path)
}

func TestMessGetBillOwnership(t *testing.T) {
	srv := &fakeMessSrv{bill: &models.MessBill{ID: "b1", StudentID: "s1"}}
	handler := NewMessHandler(srv, nil)

	c, w := newGinContext(http.MethodGet, "/mess/bills/b1", nil)
	c.AddParam("id", "b1")
	asUser(c, "s2", models.RoleStudent)
	handler.GetBill(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newGinContext(http.MethodGet, "/mess/bills/b1", nil)
	c.AddParam("id", "b1")
	asUser(c, "s1", models.RoleStudent)
	handler.GetBill(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newGinContext(http.MethodGet, "/mess/bills/b1", nil)
	c.AddParam("id", "b1")
	asUser(c, "w1", models.RoleWarden)
	handler.GetBill(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMessListBillsReturnsTotalsInMeta(t *testing.T) {
	srv := &fakeMessSrv{}
	c, w := newGinContext(http.MethodGet, "/mess/bills?month=3&year=2024&paymentStatus=partial", nil)
	NewMessHandler(srv, nil).ListBills(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Contains(t, env.Meta, "totals")
	assert.Equal(t, 3, srv.lastFilter.Month)
	require.NotNil(t, srv.lastFilter.PaymentStatus)
	assert.Equal(t, models.PaymentPartial, *srv.lastFilter.PaymentStatus)
}

func TestMessListBillsRejectsBadMonth(t *testing.T) {
	c, w := newGinContext(http.MethodGet, "/mess/bills?month=march", nil)
	NewMessHandler(&fakeMessSrv{}, nil).ListBills(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMessPaymentBackwardsIsRejected(t *testing.T) {
	c, w := newGinContext(http.MethodPatch, "/mess/bills/b1/payment", map[string]string{"paymentStatus": "pending"})
	c.AddParam("id", "b1")
	NewMessHandler(&fakeMessSrv{}, nil).UpdatePayment(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, decodeEnvelope(t, w).Error)
}

func TestMessDownloadStreamsOwnFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mess_bills_2024_03.csv")
	require.NoError(t, os.WriteFile(path, []byte("College ID,Student\n"), 0o600))
	handler := NewMessHandler(&fakeMessSrv{}, &fakeExporter{owner: "w1", path: path})

	c, w := newGinContext(http.MethodGet, "/mess/bills/download?token=good", nil)
	asUser(c, "w1", models.RoleWarden)
	handler.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "mess_bills_2024_03.csv")
	assert.Equal(t, "College ID,Student\n", w.Body.String())
}

func TestMessDownloadRejectsForeignOrBadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statement.csv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	handler := NewMessHandler(&fakeMessSrv{}, &fakeExporter{owner: "w1", path: path})

	c, w := newGinContext(http.MethodGet, "/mess/bills/download?token=good", nil)
	asUser(c, "w2", models.RoleWarden)
	handler.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newGinContext(http.MethodGet, "/mess/bills/download?token=forged", nil)
	asUser(c, "w1", models.RoleWarden)
	handler.Download(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMessExportDisabled(t *testing.T) {
	c, w := newGinContext(http.MethodPost, "/mess/bills/export", map[string]int{"month": 3, "year": 2024})
	asUser(c, "w1", models.RoleWarden)
	NewMessHandler(&fakeMessSrv{}, nil).ExportBills(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
