package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AzielCF/az-engage/core/config"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GlobalDB holds the singleton database connection
var GlobalDB *gorm.DB

// Migrator is implemented by every repository that owns tables.
type Migrator interface {
	InitSchema(ctx context.Context) error
}

// NewDatabase initializes a database connection based on the provided configuration.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Database.Driver {
	case "postgres":
		dsn, err := postgresDSN(cfg.Database)
		if err != nil {
			return nil, err
		}
		dialector = postgres.Open(dsn)
	case "sqlite", "":
		path := cfg.Database.Name
		if cfg.Database.URI != "" {
			path = cfg.Database.URI
		}
		if !strings.HasPrefix(path, "file:") {
			if dir := filepath.Dir(path); dir != "." {
				_ = os.MkdirAll(dir, 0o755)
			}
			path = fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
		}
		dialector = sqlite.Open(path)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	logLevel := logger.Warn
	if cfg.App.Debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database (%s): %w", cfg.Database.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB instance: %w", err)
	}

	if cfg.Database.Driver == "sqlite" || cfg.Database.Driver == "" {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetMaxIdleConns(10)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	GlobalDB = db
	return db, nil
}

// postgresDSN accepts either a postgres:// URL (DB_URI) or the discrete DB_* settings.
func postgresDSN(cfg config.DatabaseConfig) (string, error) {
	if cfg.URI != "" {
		if strings.HasPrefix(cfg.URI, "postgres://") || strings.HasPrefix(cfg.URI, "postgresql://") {
			dsn, err := pq.ParseURL(cfg.URI)
			if err != nil {
				return "", fmt.Errorf("invalid DB_URI: %w", err)
			}
			if !strings.Contains(dsn, "TimeZone=") {
				dsn += " TimeZone=UTC"
			}
			return dsn, nil
		}
		return cfg.URI, nil
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port), nil
}

// IsPostgres reports whether the connection runs on the postgres dialector.
func IsPostgres(db *gorm.DB) bool {
	return db != nil && db.Dialector != nil && db.Dialector.Name() == "postgres"
}

// Migrate runs InitSchema on every repository in order.
func Migrate(ctx context.Context, migrators ...Migrator) error {
	for _, m := range migrators {
		if err := m.InitSchema(ctx); err != nil {
			return err
		}
	}
	logrus.Infof("[DATABASE] Schema ready (%d repositories)", len(migrators))
	return nil
}

// IsDuplicate reports whether err is a unique constraint violation on sqlite or postgres.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}
