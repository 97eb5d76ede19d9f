package delivery

import (
	"context"

	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"go.uber.org/zap"
)

// ArchiveChannel records the notification in the log instead of transmitting it.
type ArchiveChannel struct {
	logger *zap.Logger
}

var _ Channel = (*ArchiveChannel)(nil)

func NewArchiveChannel(logger *zap.Logger) *ArchiveChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveChannel{logger: logger}
}

func (a *ArchiveChannel) Deliver(ctx context.Context, n domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.logger.Info("notification archived",
		zap.String("notificationId", n.ID),
		zap.String("recipientId", n.RecipientID),
		zap.String("recipientName", n.RecipientName),
		zap.String("recipientAddress", n.RecipientAddress),
		zap.String("type", n.Channel.String()),
		zap.String("templateId", n.TemplateID),
		zap.String("subject", n.Subject),
		zap.String("message", n.Message),
	)
	return nil
}
