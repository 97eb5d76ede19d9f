package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"github.com/kursadbilgin/notification-pipeline/internal/repository"
	"github.com/kursadbilgin/notification-pipeline/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = repository.DefaultPageSize
	maxPageSize     = repository.MaxPageSize
)

type NotificationService interface {
	Create(ctx context.Context, in service.CreateInput) (*domain.Notification, error)
	Get(ctx context.Context, id string) (*domain.Notification, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error)
	ListByRecipient(ctx context.Context, recipientID string, params repository.ListParams) ([]domain.Notification, int64, error)
	UpdateProfile(ctx context.Context, id string, in service.UpdateProfileInput) (*domain.Notification, error)
	Delete(ctx context.Context, id string) error
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.CreateNotification)
	v1.Get("/notifications", h.ListNotifications)
	v1.Get("/notifications/:id", h.GetNotification)
	v1.Patch("/notifications/:id", h.UpdateNotificationProfile)
	v1.Delete("/notifications/:id", h.DeleteNotification)
	v1.Get("/users/:userId/notifications", h.ListRecipientNotifications)

	return nil
}

type createNotificationRequest struct {
	RecipientID string `json:"recipientId"`
	TemplateID  string `json:"templateId"`
	Subject     string `json:"subject"`
	Message     string `json:"message"`
	Type        string `json:"type"`
}

type updateProfileRequest struct {
	RecipientName    *string `json:"recipientName"`
	RecipientAddress *string `json:"recipientAddress"`
}

type notificationResponse struct {
	ID               string     `json:"id"`
	RecipientID      string     `json:"recipientId"`
	RecipientName    string     `json:"recipientName"`
	RecipientAddress string     `json:"recipientAddress"`
	TemplateID       string     `json:"templateId"`
	Subject          string     `json:"subject"`
	Message          string     `json:"message"`
	Type             string     `json:"type"`
	Status           string     `json:"status"`
	LastSentAt       *time.Time `json:"lastSentAt"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

type listNotificationsResponse struct {
	Data []notificationResponse `json:"data"`
	Meta listMeta               `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *NotificationHandler) CreateNotification(c *fiber.Ctx) error {
	var req createNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	created, err := h.service.Create(c.UserContext(), service.CreateInput{
		RecipientID: req.RecipientID,
		TemplateID:  req.TemplateID,
		Subject:     req.Subject,
		Message:     req.Message,
		Type:        req.Type,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(toNotificationResponse(created))
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	notification, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(notification))
}

func (h *NotificationHandler) UpdateNotificationProfile(c *fiber.Ctx) error {
	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updated, err := h.service.UpdateProfile(c.UserContext(), c.Params("id"), service.UpdateProfileInput{
		RecipientName:    req.RecipientName,
		RecipientAddress: req.RecipientAddress,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(updated))
}

func (h *NotificationHandler) DeleteNotification(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return err
	}

	notifications, total, err := h.service.List(c.UserContext(), params)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(toListResponse(notifications, total, params))
}

func (h *NotificationHandler) ListRecipientNotifications(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return err
	}

	notifications, total, err := h.service.ListByRecipient(c.UserContext(), c.Params("userId"), params)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(toListResponse(notifications, total, params))
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
		Sort:     strings.TrimSpace(c.Query("sort")),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}
	if _, err := repository.ParseSort(params.Sort); err != nil {
		return repository.ListParams{}, err
	}
	if raw := c.Query("status"); strings.TrimSpace(raw) != "" {
		status, err := domain.ParseStatusFromString(raw)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	return params, nil
}

func toListResponse(notifications []domain.Notification, total int64, params repository.ListParams) listNotificationsResponse {
	return listNotificationsResponse{
		Data: toNotificationResponses(notifications),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	}
}

func toNotificationResponses(notifications []domain.Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for i := range notifications {
		responses = append(responses, toNotificationResponse(&notifications[i]))
	}
	return responses
}

func toNotificationResponse(n *domain.Notification) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	return notificationResponse{
		ID:               n.ID,
		RecipientID:      n.RecipientID,
		RecipientName:    n.RecipientName,
		RecipientAddress: n.RecipientAddress,
		TemplateID:       n.TemplateID,
		Subject:          n.Subject,
		Message:          n.Message,
		Type:             n.Channel.String(),
		Status:           n.Status.String(),
		LastSentAt:       n.LastSentAt,
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
	}
}
