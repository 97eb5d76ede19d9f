package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: fmt.Errorf("%w: subject is required", domain.ErrValidation), want: fiber.StatusBadRequest},
		{name: "not found", err: domain.ErrNotFound, want: fiber.StatusNotFound},
		{name: "conflict", err: fmt.Errorf("wrap: %w", domain.ErrConflict), want: fiber.StatusConflict},
		{name: "fiber error", err: fiber.NewError(fiber.StatusMethodNotAllowed, "nope"), want: fiber.StatusMethodNotAllowed},
		{name: "unclassified", err: errors.New("broker down"), want: fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := StatusCode(tt.err); got != tt.want {
				t.Fatalf("StatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorHandlerRendersJSONAndLogs(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.New(core))})
	app.Get("/missing", func(c *fiber.Ctx) error { return domain.ErrNotFound })
	app.Get("/broken", func(c *fiber.Ctx) error { return errors.New("boom") })

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusNotFound || string(body) != `{"error":"not found"}` {
		t.Fatalf("response = %d %s", resp.StatusCode, body)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/broken", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}

	if logs.FilterMessage("request rejected").Len() != 1 || logs.FilterMessage("request error").Len() != 1 {
		t.Fatalf("logs = %v", logs.All())
	}
}
