package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/hostel-api/internal/models"
	"github.com/noah-isme/hostel-api/pkg/jobs"
	"github.com/noah-isme/hostel-api/pkg/mailer"
)

// Email kinds used for job types and metrics labels.
const (
	EmailKindVerification = "verification"
	EmailKindApproval     = "approval"
)

// NotificationConfig tunes the email worker pool.
type NotificationConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
	OTPTTL     time.Duration
}

// NotificationService renders transactional email and hands it to the background queue.
type NotificationService struct {
	mailer  mailer.Mailer
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
	otpTTL  time.Duration
}

// NewNotificationService builds the service and its delivery queue. Call Start before use.
func NewNotificationService(m mailer.Mailer, metrics *MetricsService, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 10 * time.Minute
	}
	s := &NotificationService{mailer: m, metrics: metrics, logger: logger, otpTTL: cfg.OTPTTL}
	s.queue = jobs.NewQueue("email", s.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		DeadLetter: func(job jobs.Job, err error) {
			logger.Error("email dropped", zap.String("job_id", job.ID), zap.String("kind", job.Type), zap.Error(err))
		},
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// SendVerification delivers a verification code synchronously.
func (s *NotificationService) SendVerification(ctx context.Context, user *models.User, code string) error {
	msg, err := mailer.VerificationMessage(user.Email, user.Name, code, s.otpTTL)
	if err != nil {
		return err
	}
	err = s.mailer.Send(ctx, msg)
	s.metrics.RecordEmail(EmailKindVerification, err)
	return err
}

// QueueVerification schedules a verification email. Failures are logged, not returned to the caller's caller.
func (s *NotificationService) QueueVerification(user *models.User, code string) error {
	msg, err := mailer.VerificationMessage(user.Email, user.Name, code, s.otpTTL)
	if err != nil {
		return err
	}
	return s.enqueue(EmailKindVerification, msg)
}

// QueueApprovalDecision schedules the account decision notice.
func (s *NotificationService) QueueApprovalDecision(user *models.User, approved bool, reason string) error {
	msg, err := mailer.ApprovalMessage(user.Email, user.Name, approved, reason)
	if err != nil {
		return err
	}
	return s.enqueue(EmailKindApproval, msg)
}

func (s *NotificationService) enqueue(kind string, msg mailer.Message) error {
	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: kind, Payload: msg}); err != nil {
		s.logger.Warn("email not queued", zap.String("kind", kind), zap.String("to", msg.To), zap.Error(err))
		return err
	}
	return nil
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(mailer.Message)
	if !ok {
		return fmt.Errorf("email job %s: unexpected payload %T", job.ID, job.Payload)
	}
	err := s.mailer.Send(ctx, msg)
	s.metrics.RecordEmail(job.Type, err)
	return err
}
