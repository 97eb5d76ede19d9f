package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kursadbilgin/notification-pipeline/internal/broker"
	"github.com/kursadbilgin/notification-pipeline/internal/delivery"
	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"github.com/kursadbilgin/notification-pipeline/internal/identity"
	"github.com/kursadbilgin/notification-pipeline/internal/repository"
)

type fakeNotificationRepo struct {
	createFn  func(ctx context.Context, n *domain.Notification) error
	getByIDFn func(ctx context.Context, id string) (*domain.Notification, error)
	listFn    func(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error)
	updateFn  func(ctx context.Context, n *domain.Notification) error
	deleteFn  func(ctx context.Context, id string) error

	updateIfStatusFn func(ctx context.Context, n *domain.Notification, from []domain.Status) error
}

func (f *fakeNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if f.createFn != nil {
		return f.createFn(ctx, n)
	}
	return nil
}

func (f *fakeNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) List(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeNotificationRepo) Update(ctx context.Context, n *domain.Notification) error {
	if f.updateFn != nil {
		return f.updateFn(ctx, n)
	}
	return nil
}

// UpdateIfStatus falls back to updateFn so tests that do not care about the
// guard only set one hook.
func (f *fakeNotificationRepo) UpdateIfStatus(ctx context.Context, n *domain.Notification, from ...domain.Status) error {
	if f.updateIfStatusFn != nil {
		return f.updateIfStatusFn(ctx, n, from)
	}
	return f.Update(ctx, n)
}

func (f *fakeNotificationRepo) Delete(ctx context.Context, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

type fakeAttemptRepo struct {
	createFn func(ctx context.Context, a *domain.DeliveryAttempt) error
	countFn  func(ctx context.Context, notificationID string) (int, error)
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	return nil
}

func (f *fakeAttemptRepo) ListByNotificationID(context.Context, string) ([]domain.DeliveryAttempt, error) {
	return nil, nil
}

func (f *fakeAttemptRepo) CountByNotificationID(ctx context.Context, notificationID string) (int, error) {
	if f.countFn != nil {
		return f.countFn(ctx, notificationID)
	}
	return 0, nil
}

type publishedTask struct {
	route broker.Route
	task  domain.NotificationTask
}

// fakeBroker hands queued bodies to the handler the way DrainBatch does:
// stop at the first handler error, leaving that body queued.
type fakeBroker struct {
	publishFn func(ctx context.Context, route broker.Route, task any) error
	queued    [][]byte
	published []publishedTask
}

func (f *fakeBroker) Publish(ctx context.Context, route broker.Route, task any) error {
	if f.publishFn != nil {
		if err := f.publishFn(ctx, route, task); err != nil {
			return err
		}
	}
	if t, ok := task.(domain.NotificationTask); ok {
		f.published = append(f.published, publishedTask{route: route, task: t})
	}
	return nil
}

func (f *fakeBroker) DrainBatch(ctx context.Context, _ broker.Route, maxCount int, _ time.Duration, handler broker.Handler) (int, error) {
	acked := 0
	for len(f.queued) > 0 && acked < maxCount {
		if err := handler(ctx, f.queued[0]); err != nil {
			return acked, err
		}
		f.queued = f.queued[1:]
		acked++
	}
	return acked, nil
}

type fakeCredentials struct {
	tokens      []string
	tokenCalls  int
	invalidated int
	tokenErr    error
}

func (f *fakeCredentials) Token(context.Context) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	token := f.tokens[min(f.tokenCalls, len(f.tokens)-1)]
	f.tokenCalls++
	return token, nil
}

func (f *fakeCredentials) Invalidate(context.Context) error {
	f.invalidated++
	return nil
}

type fakeProfiles struct {
	getProfileFn func(ctx context.Context, userID, token string) (identity.Profile, error)
}

func (f *fakeProfiles) GetProfile(ctx context.Context, userID, token string) (identity.Profile, error) {
	return f.getProfileFn(ctx, userID, token)
}

type fakeChannel struct {
	deliverFn func(ctx context.Context, n domain.Notification) error
	delivered []domain.Notification
}

func (f *fakeChannel) Deliver(ctx context.Context, n domain.Notification) error {
	f.delivered = append(f.delivered, n)
	if f.deliverFn != nil {
		return f.deliverFn(ctx, n)
	}
	return nil
}

type fakeResolver struct {
	channels map[domain.Channel]delivery.Channel
	fallback delivery.Channel
}

func (f *fakeResolver) Resolve(kind domain.Channel) delivery.Channel {
	if ch, ok := f.channels[kind]; ok {
		return ch
	}
	return f.fallback
}

type fakeLimiter struct {
	waitFn func(ctx context.Context, channel domain.Channel) error
}

func (f *fakeLimiter) Allow(context.Context, domain.Channel) (bool, error) {
	return true, nil
}

func (f *fakeLimiter) Wait(ctx context.Context, channel domain.Channel) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, channel)
	}
	return nil
}

func mustTaskBody(t testing.TB, task domain.NotificationTask) []byte {
	t.Helper()

	body, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	return body
}
