package domain

import "time"

// DeliveryAttempt records a single delivery attempt for a notification.
type DeliveryAttempt struct {
	ID             string
	NotificationID string
	Channel        Channel
	AttemptNumber  int
	Success        bool
	Error          *string
	CreatedAt      time.Time
}
