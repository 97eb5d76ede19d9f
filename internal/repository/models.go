package repository

import (
	"time"

	"github.com/kursadbilgin/notification-pipeline/internal/domain"
)

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID               string         `gorm:"type:uuid;primaryKey"`
	UserID           string         `gorm:"type:varchar(64);not null"`
	UserName         string         `gorm:"type:varchar(255);not null;default:''"`
	UserEmail        string         `gorm:"type:varchar(255);not null;default:''"`
	TemplateID       string         `gorm:"type:varchar(64);not null;default:''"`
	Subject          string         `gorm:"type:varchar(255);not null"`
	Message          string         `gorm:"type:text;not null"`
	NotificationType domain.Channel `gorm:"type:varchar(16);not null"`
	Status           domain.Status  `gorm:"type:varchar(20);not null"`
	LastSentAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID             string         `gorm:"type:uuid;primaryKey"`
	NotificationID string         `gorm:"type:uuid;not null"`
	Channel        domain.Channel `gorm:"type:varchar(16);not null"`
	AttemptNumber  int            `gorm:"not null"`
	Success        bool           `gorm:"not null"`
	Error          *string        `gorm:"type:text"`
	CreatedAt      time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:               n.ID,
		UserID:           n.RecipientID,
		UserName:         n.RecipientName,
		UserEmail:        n.RecipientAddress,
		TemplateID:       n.TemplateID,
		Subject:          n.Subject,
		Message:          n.Message,
		NotificationType: n.Channel,
		Status:           n.Status,
		LastSentAt:       n.LastSentAt,
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:               m.ID,
		RecipientID:      m.UserID,
		RecipientName:    m.UserName,
		RecipientAddress: m.UserEmail,
		TemplateID:       m.TemplateID,
		Subject:          m.Subject,
		Message:          m.Message,
		Channel:          m.NotificationType,
		Status:           m.Status,
		LastSentAt:       m.LastSentAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:             a.ID,
		NotificationID: a.NotificationID,
		Channel:        a.Channel,
		AttemptNumber:  a.AttemptNumber,
		Success:        a.Success,
		Error:          a.Error,
		CreatedAt:      a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:             m.ID,
		NotificationID: m.NotificationID,
		Channel:        m.Channel,
		AttemptNumber:  m.AttemptNumber,
		Success:        m.Success,
		Error:          m.Error,
		CreatedAt:      m.CreatedAt,
	}
}
