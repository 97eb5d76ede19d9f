package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-pipeline/internal/broker"
	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"github.com/kursadbilgin/notification-pipeline/internal/observability"
	"github.com/kursadbilgin/notification-pipeline/internal/repository"
	"go.uber.org/zap"
)

type CreateInput struct {
	RecipientID string
	TemplateID  string
	Subject     string
	Message     string
	Type        string
}

// UpdateProfileInput carries the administrative profile correction. Nil
// fields are left unchanged.
type UpdateProfileInput struct {
	RecipientName    *string
	RecipientAddress *string
}

// IntakeService accepts notifications, persists them and hands them to the
// enrichment stage.
type IntakeService struct {
	notifications repository.NotificationRepository
	publisher     TaskPublisher
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

func NewIntakeService(
	notifications repository.NotificationRepository,
	publisher TaskPublisher,
	logger *zap.Logger,
) (*IntakeService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("task publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IntakeService{
		notifications: notifications,
		publisher:     publisher,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (s *IntakeService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Create validates, persists and publishes a new notification. The record is
// kept when the publish fails.
func (s *IntakeService) Create(ctx context.Context, in CreateInput) (*domain.Notification, error) {
	channel, err := domain.ParseChannelFromString(in.Type)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	n := &domain.Notification{
		ID:          uuid.NewString(),
		RecipientID: strings.TrimSpace(in.RecipientID),
		TemplateID:  strings.TrimSpace(in.TemplateID),
		Subject:     strings.TrimSpace(in.Subject),
		Message:     strings.TrimSpace(in.Message),
		Channel:     channel,
		Status:      domain.StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}

	if err := s.notifications.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to persist notification: %w", err)
	}

	logger := observability.WithContextLogger(s.logger, ctx)
	if err := s.publisher.Publish(ctx, broker.CreatedRoute, n.Task()); err != nil {
		logger.Error("failed to publish created task",
			zap.String("notificationId", n.ID),
			zap.String("queue", broker.CreatedRoute.Queue),
			zap.Error(err),
		)
		s.metrics.IncStageMessage(stageIntake, "publish_failed")
		return nil, fmt.Errorf("failed to publish notification %s: %w", n.ID, err)
	}

	s.metrics.IncStageMessage(stageIntake, "accepted")
	logger.Info("notification accepted",
		zap.String("notificationId", n.ID),
		zap.String("recipientId", n.RecipientID),
		zap.String("type", n.Channel.String()),
	)
	return n, nil
}

func (s *IntakeService) Get(ctx context.Context, id string) (*domain.Notification, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.notifications.GetByID(ctx, id)
}

func (s *IntakeService) List(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error) {
	return s.notifications.List(ctx, params)
}

func (s *IntakeService) ListByRecipient(
	ctx context.Context,
	recipientID string,
	params repository.ListParams,
) ([]domain.Notification, int64, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return nil, 0, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}
	params.RecipientID = &recipientID
	return s.notifications.List(ctx, params)
}

// UpdateProfile overwrites the recipient name and address of a record.
func (s *IntakeService) UpdateProfile(ctx context.Context, id string, in UpdateProfileInput) (*domain.Notification, error) {
	if in.RecipientName == nil && in.RecipientAddress == nil {
		return nil, fmt.Errorf("%w: at least one of recipientName, recipientAddress is required", domain.ErrValidation)
	}

	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.RecipientName != nil {
		n.RecipientName = strings.TrimSpace(*in.RecipientName)
	}
	if in.RecipientAddress != nil {
		n.RecipientAddress = strings.TrimSpace(*in.RecipientAddress)
	}

	if err := s.notifications.Update(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *IntakeService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.notifications.Delete(ctx, id)
}
