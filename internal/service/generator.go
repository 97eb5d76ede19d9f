package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"go.uber.org/zap"
)

const (
	generatorMinEvents = 10
	generatorMaxEvents = 100
	generatorTemplate  = "3fa85f64-5717-4562-b3fc-2c963f66afa6"

	DefaultGeneratorInterval = 10 * time.Second
)

var (
	generatorRecipients = []string{
		"00000000-0000-0000-0000-000000000001",
		"00000000-0000-0000-0000-000000000002",
		"00000000-0000-0000-0000-000000000003",
	}
	generatorSubjects = []string{"New films", "Check bookmarks", "New likes"}
)

// NotificationCreator is the intake entry point used by the generator.
type NotificationCreator interface {
	Create(ctx context.Context, in CreateInput) (*domain.Notification, error)
}

// EventGenerator feeds synthetic notifications into intake for local runs
// and load checks.
type EventGenerator struct {
	intake   NotificationCreator
	logger   *zap.Logger
	randIntn func(n int) int
}

func NewEventGenerator(intake NotificationCreator, logger *zap.Logger) (*EventGenerator, error) {
	if intake == nil {
		return nil, fmt.Errorf("intake is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &EventGenerator{intake: intake, logger: logger, randIntn: rng.Intn}, nil
}

// Generate creates count notifications, or a random 10 to 100 when count is
// not positive. It stops at the first intake error.
func (g *EventGenerator) Generate(ctx context.Context, count int) (int, error) {
	if count <= 0 {
		count = generatorMinEvents + g.randIntn(generatorMaxEvents-generatorMinEvents+1)
	}

	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return i, err
		}

		_, err := g.intake.Create(ctx, CreateInput{
			RecipientID: generatorRecipients[g.randIntn(len(generatorRecipients))],
			TemplateID:  generatorTemplate,
			Subject:     generatorSubjects[g.randIntn(len(generatorSubjects))],
			Message:     fmt.Sprintf("Message %d", i+1),
			Type:        domain.ChannelEmail.String(),
		})
		if err != nil {
			return i, fmt.Errorf("failed to generate event %d: %w", i+1, err)
		}
	}

	g.logger.Info("events generated", zap.Int("count", count))
	return count, nil
}

// Job wraps Generate as a scheduled job with a random batch per run.
func (g *EventGenerator) Job(interval time.Duration) Job {
	if interval <= 0 {
		interval = DefaultGeneratorInterval
	}
	return Job{
		Name:     "generator",
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := g.Generate(ctx, 0)
			return err
		},
	}
}
