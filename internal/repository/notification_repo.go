package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

type ListParams struct {
	RecipientID *string
	Status      *domain.Status
	Sort        string
	Page        int
	PageSize    int
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	List(ctx context.Context, params ListParams) ([]domain.Notification, int64, error)
	Update(ctx context.Context, n *domain.Notification) error
	UpdateIfStatus(ctx context.Context, n *domain.Notification, from ...domain.Status) error
	Delete(ctx context.Context, id string) error
}

type GormNotificationRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db, now: time.Now}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	model := notificationModelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if n != nil {
		*n = *notificationModelToDomain(model)
	}
	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

// List returns one page of the sorted set: items [(page-1)*pageSize, page*pageSize).
func (r *GormNotificationRepo) List(ctx context.Context, params ListParams) ([]domain.Notification, int64, error) {
	sort, err := ParseSort(params.Sort)
	if err != nil {
		return nil, 0, err
	}

	query := r.db.WithContext(ctx).Model(&NotificationModel{})
	if params.RecipientID != nil {
		query = query.Where("user_id = ?", *params.RecipientID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	pageSize = min(pageSize, MaxPageSize)

	var models []NotificationModel
	err = query.
		Order(sort.orderBy()).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, total, nil
}

// GetMany is List without a filter.
func (r *GormNotificationRepo) GetMany(ctx context.Context, sort string, page int, pageSize int) ([]domain.Notification, int64, error) {
	return r.List(ctx, ListParams{Sort: sort, Page: page, PageSize: pageSize})
}

// GetManyByRecipient is List filtered on the recipient user id.
func (r *GormNotificationRepo) GetManyByRecipient(ctx context.Context, recipientID string, sort string, page int, pageSize int) ([]domain.Notification, int64, error) {
	return r.List(ctx, ListParams{RecipientID: &recipientID, Sort: sort, Page: page, PageSize: pageSize})
}

// Update persists the mutable fields of n. Identity, recipient id and content
// columns are never written. UpdatedAt is advanced on n as well.
func (r *GormNotificationRepo) Update(ctx context.Context, n *domain.Notification) error {
	if n == nil {
		return domain.ErrNotFound
	}
	return r.update(n, r.db.WithContext(ctx).Where("id = ?", n.ID))
}

// UpdateIfStatus is Update restricted to a row whose stored status is one of
// from. It returns domain.ErrConflict when the row exists in another status.
func (r *GormNotificationRepo) UpdateIfStatus(ctx context.Context, n *domain.Notification, from ...domain.Status) error {
	if n == nil {
		return domain.ErrNotFound
	}
	if len(from) == 0 {
		return fmt.Errorf("%w: no source status given", domain.ErrValidation)
	}

	scope := r.db.WithContext(ctx).Where("id = ? AND status IN ?", n.ID, from)
	err := r.update(n, scope)
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&NotificationModel{}).Where("id = ?", n.ID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: notification %s is not in status %v", domain.ErrConflict, n.ID, from)
}

func (r *GormNotificationRepo) update(n *domain.Notification, scope *gorm.DB) error {
	updatedAt := r.now().UTC()
	result := scope.
		Model(&NotificationModel{}).
		Updates(map[string]any{
			"user_name":    n.RecipientName,
			"user_email":   n.RecipientAddress,
			"status":       n.Status,
			"last_sent_at": n.LastSentAt,
			"updated_at":   updatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	n.UpdatedAt = updatedAt
	return nil
}

func (r *GormNotificationRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&NotificationModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
