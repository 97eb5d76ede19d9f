package delivery_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kursadbilgin/notification-pipeline/internal/delivery"
	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type channelFunc func(ctx context.Context, n domain.Notification) error

func (f channelFunc) Deliver(ctx context.Context, n domain.Notification) error { return f(ctx, n) }

func TestRegistryResolvesRegisteredAndFallback(t *testing.T) {
	t.Parallel()

	var used string
	email := channelFunc(func(context.Context, domain.Notification) error { used = "email"; return nil })
	archive := channelFunc(func(context.Context, domain.Notification) error { used = "archive"; return nil })

	registry := delivery.NewRegistry(archive)
	registry.Register(domain.ChannelEmail, email)

	tests := []struct {
		kind domain.Channel
		want string
	}{
		{kind: domain.ChannelEmail, want: "email"},
		{kind: domain.ChannelSMS, want: "archive"},
		{kind: domain.Channel("fax"), want: "archive"},
	}
	for _, tt := range tests {
		if err := registry.Resolve(tt.kind).Deliver(context.Background(), domain.Notification{}); err != nil {
			t.Fatalf("Deliver() error = %v", err)
		}
		if used != tt.want {
			t.Fatalf("Resolve(%q) used %q, want %q", tt.kind, used, tt.want)
		}
	}
}

func TestArchiveChannelLogsNotification(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	archive := delivery.NewArchiveChannel(zap.New(core))

	n := domain.Notification{ID: "n1", RecipientID: "u1", Channel: domain.ChannelPush, Subject: "S", Message: "M"}
	if err := archive.Deliver(context.Background(), n); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	entries := logs.FilterMessage("notification archived").All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["notificationId"] != "n1" || fields["type"] != "push" {
		t.Fatalf("fields = %v", fields)
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "transient delivery error", err: &delivery.Error{Transient: true}, want: true},
		{name: "wrapped permanent", err: fmt.Errorf("wrap: %w", &delivery.Error{Code: 550}), want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		if got := delivery.IsTransient(tt.err); got != tt.want {
			t.Fatalf("%s: IsTransient() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	err := &delivery.Error{Channel: domain.ChannelEmail, Code: 550, Message: "recipient rejected", Cause: errors.New("mailbox unavailable")}
	want := "email delivery error: code=550: recipient rejected: mailbox unavailable"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
