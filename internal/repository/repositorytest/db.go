// Package repositorytest opens migrated in-memory databases for tests.
package repositorytest

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/kursadbilgin/notification-pipeline/internal/infra/postgresql/migrations"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a private in-memory sqlite database with all migrations applied.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}
	// Every connection to ":memory:" is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrations.Migrate(db); err != nil {
		t.Fatalf("migrations.Migrate() error = %v", err)
	}

	return db
}
