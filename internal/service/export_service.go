package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hostel-api/internal/models"
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
	"github.com/noah-isme/hostel-api/pkg/export"
	"github.com/noah-isme/hostel-api/pkg/storage"
)

type billSource interface {
	ListAllBills(ctx context.Context, filter models.MessBillFilter) ([]models.MessBill, error)
	Totals(ctx context.Context, filter models.MessBillFilter) (*models.MessBillTotals, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportService renders monthly bill statements and persists them for signed download.
type ExportService struct {
	bills     billSource
	storage   fileStorage
	signer    *storage.SignedURLSigner
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(bills billSource, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, validate *validator.Validate, logger *zap.Logger) *ExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		bills:     bills,
		storage:   files,
		signer:    signer,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// ExportBills writes the month's statement in the requested format and returns a signed link
// bound to the requesting user.
func (s *ExportService) ExportBills(ctx context.Context, actor *models.JWTClaims, req models.ExportBillsRequest) (*models.ExportResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	renderer, err := export.RendererFor(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	filter := models.MessBillFilter{Month: req.Month, Year: req.Year}
	bills, err := s.bills.ListAllBills(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bills")
	}
	totals, err := s.bills.Totals(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to total bills")
	}

	payload, err := renderer.Render(BillStatement(req.Month, req.Year, bills, totals))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render statement")
	}

	filename := fmt.Sprintf("mess_bills_%d_%02d_%s.%s", req.Year, req.Month, s.now().UTC().Format("20060102_150405"), renderer.Extension())
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store statement")
	}
	token, expiresAt, err := s.signer.Generate(actor.UserID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("bill statement exported", zap.String("file", relPath), zap.Int("rows", len(bills)), zap.String("user_id", actor.UserID))
	return &models.ExportResult{
		FileName:  relPath,
		URL:       fmt.Sprintf("%s/mess/bills/download?token=%s", prefix, token),
		ExpiresAt: expiresAt,
		Rows:      len(bills),
	}, nil
}

// BillStatement lays out bills as an export dataset with a totals footer.
func BillStatement(month, year int, bills []models.MessBill, totals *models.MessBillTotals) export.Dataset {
	headers := []string{"College ID", "Student", "Days", "Rate", "Extras", "Deductions", "Total", "Paid", "Status"}
	rows := make([]map[string]string, 0, len(bills))
	for _, b := range bills {
		rows = append(rows, map[string]string{
			"College ID": b.StudentCollegeID,
			"Student":    b.StudentName,
			"Days":       fmt.Sprintf("%d", b.TotalDays),
			"Rate":       money(b.Rate),
			"Extras":     money(b.ExtraCharges.Sum()),
			"Deductions": money(b.Deductions.Sum()),
			"Total":      money(b.TotalAmount),
			"Paid":       money(b.AmountPaid),
			"Status":     string(b.PaymentStatus),
		})
	}
	dataset := export.Dataset{
		Title:   fmt.Sprintf("Mess bills %s %d", time.Month(month), year),
		Headers: headers,
		Rows:    rows,
	}
	if totals != nil {
		dataset.Summary = []string{
			fmt.Sprintf("Bills: %d", totals.Count),
			fmt.Sprintf("Billed: %s", money(totals.TotalAmount)),
			fmt.Sprintf("Collected: %s", money(totals.AmountPaid)),
			fmt.Sprintf("Outstanding: %s", money(totals.Outstanding)),
		}
	}
	return dataset
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// ParseToken validates a download token and returns its owner and stored path.
func (s *ExportService) ParseToken(token string) (ownerID, relPath string, err error) {
	ownerID, relPath, _, err = s.signer.Parse(token)
	if err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired download link")
	}
	return ownerID, relPath, nil
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	file, err := s.storage.Open(relPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export")
	}
	return file, nil
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}
