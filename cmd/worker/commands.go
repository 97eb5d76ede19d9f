package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/kursadbilgin/notification-pipeline/internal/infra/postgresql/migrations"
	"github.com/kursadbilgin/notification-pipeline/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	generateCount   int
	migrateRollback bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the enrichment and delivery stages on their schedules",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd.Context(), true, true)
	},
}

var formerCmd = &cobra.Command{
	Use:   "former",
	Short: "Run only the enrichment stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd.Context(), true, false)
	},
}

var senderCmd = &cobra.Command{
	Use:   "sender",
	Short: "Run only the delivery stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd.Context(), false, true)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Create synthetic notifications through intake",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		intake, err := a.intake()
		if err != nil {
			return err
		}
		generator, err := service.NewEventGenerator(intake, a.logger)
		if err != nil {
			return err
		}

		n, err := generator.Generate(cmd.Context(), generateCount)
		if err != nil {
			return fmt.Errorf("generated %d events before failing: %w", n, err)
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations, or roll back the last one",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if migrateRollback {
			if err := migrations.RollbackLast(a.db); err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			a.logger.Info("last migration rolled back")
			return nil
		}

		if err := migrations.Migrate(a.db); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		a.logger.Info("migrations applied")
		return nil
	},
}

func init() {
	generateCmd.Flags().IntVar(&generateCount, "count", 0, "number of events, random 10-100 when 0")
	migrateCmd.Flags().BoolVar(&migrateRollback, "rollback", false, "roll back the last applied migration")
}

func runStages(parent context.Context, withFormer, withSender bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := migrations.Migrate(a.db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	var jobs []service.Job
	if withFormer {
		former, err := a.former()
		if err != nil {
			return err
		}
		jobs = append(jobs, service.FormerJob(former, a.cfg.FormerInterval))
	}
	if withSender {
		sender, err := a.sender()
		if err != nil {
			return err
		}
		jobs = append(jobs, service.SenderJob(sender, a.cfg.SenderInterval))
	}
	if a.cfg.GenerateEvents {
		intake, err := a.intake()
		if err != nil {
			return err
		}
		generator, err := service.NewEventGenerator(intake, a.logger)
		if err != nil {
			return err
		}
		jobs = append(jobs, generator.Job(service.DefaultGeneratorInterval))
	}

	if err := a.runScheduler(ctx, jobs...); err != nil {
		a.logger.Error("worker stopped", zap.Error(err))
		return err
	}
	a.logger.Info("worker stopped")
	return nil
}
