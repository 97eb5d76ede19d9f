package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusCreated      Status = "CREATED"
	StatusEnriched     Status = "ENRICHED"
	StatusSent         Status = "SENT"
	StatusFailed       Status = "FAILED"
	StatusUnresolvable Status = "UNRESOLVABLE"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusEnriched, StatusSent, StatusFailed, StatusUnresolvable:
		return true
	}
	return false
}

// IsTerminal reports whether no pipeline stage moves the notification further.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSent, StatusFailed, StatusUnresolvable:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Channel is the notification type tag that selects a delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

const DefaultChannel = ChannelEmail

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// ParseChannelFromString maps a notification type tag to a Channel.
// An empty tag yields DefaultChannel.
func ParseChannelFromString(s string) (Channel, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if normalized == "" {
		return DefaultChannel, nil
	}
	ch := Channel(normalized)
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid notification type %q", ErrValidation, s)
	}
	return ch, nil
}

// Field limits (in characters).
const (
	MaxSubjectLength = 255
	MaxMessageLength = 10000
)

// Notification is the durable record of a message moving through the pipeline.
type Notification struct {
	ID               string
	RecipientID      string
	RecipientName    string
	RecipientAddress string
	TemplateID       string
	Subject          string
	Message          string
	Channel          Channel
	Status           Status
	LastSentAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (n *Notification) Validate() error {
	if strings.TrimSpace(n.RecipientID) == "" {
		return fmt.Errorf("%w: recipient id is required", ErrValidation)
	}
	if strings.TrimSpace(n.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if strings.TrimSpace(n.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if !n.Channel.IsValid() {
		return fmt.Errorf("%w: invalid notification type %q", ErrValidation, n.Channel)
	}

	if l := len([]rune(n.Subject)); l > MaxSubjectLength {
		return fmt.Errorf("%w: subject exceeds %d characters (got %d)", ErrValidation, MaxSubjectLength, l)
	}
	if l := len([]rune(n.Message)); l > MaxMessageLength {
		return fmt.Errorf("%w: message exceeds %d characters (got %d)", ErrValidation, MaxMessageLength, l)
	}

	return nil
}

// Task converts the record into its wire representation.
func (n *Notification) Task() NotificationTask {
	return NotificationTask{
		ID:               n.ID,
		RecipientID:      n.RecipientID,
		RecipientName:    n.RecipientName,
		RecipientAddress: n.RecipientAddress,
		TemplateID:       n.TemplateID,
		Subject:          n.Subject,
		Message:          n.Message,
		Type:             n.Channel,
	}
}
