package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NotificationTask is the broker payload carried between pipeline stages.
// It is self-contained so consumers never need a store read.
type NotificationTask struct {
	ID               string  `json:"id"`
	RecipientID      string  `json:"user_id"`
	RecipientName    string  `json:"user_name"`
	RecipientAddress string  `json:"user_email"`
	TemplateID       string  `json:"template_id"`
	Subject          string  `json:"subject"`
	Message          string  `json:"message"`
	Type             Channel `json:"notification_type"`
}

func (t NotificationTask) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: task id is required", ErrValidation)
	}
	if strings.TrimSpace(t.RecipientID) == "" {
		return fmt.Errorf("%w: task user_id is required", ErrValidation)
	}
	return nil
}

// Notification rebuilds the record fields the task carries.
func (t NotificationTask) Notification() *Notification {
	channel := t.Type
	if channel == "" {
		channel = DefaultChannel
	}
	return &Notification{
		ID:               t.ID,
		RecipientID:      t.RecipientID,
		RecipientName:    t.RecipientName,
		RecipientAddress: t.RecipientAddress,
		TemplateID:       t.TemplateID,
		Subject:          t.Subject,
		Message:          t.Message,
		Channel:          channel,
	}
}

// DecodeTask parses a broker payload.
func DecodeTask(body []byte) (NotificationTask, error) {
	var task NotificationTask
	if err := json.Unmarshal(body, &task); err != nil {
		return NotificationTask{}, fmt.Errorf("%w: malformed task payload: %v", ErrValidation, err)
	}
	if err := task.Validate(); err != nil {
		return NotificationTask{}, err
	}
	return task, nil
}
