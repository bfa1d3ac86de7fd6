// Package dbtest opens throwaway in-memory sqlite databases for repository tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/AzielCF/az-engage/core/database"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a private in-memory database. The pool is pinned to one connection
// so every query sees the same memory database.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// Migrate runs InitSchema on every repository or fails the test.
func Migrate(t testing.TB, migrators ...database.Migrator) {
	t.Helper()
	if err := database.Migrate(context.Background(), migrators...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}
