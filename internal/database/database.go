package database

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"greenfin/portal/portal-backend/internal/config"
	"greenfin/portal/portal-backend/internal/csr"
	"greenfin/portal/portal-backend/internal/greencredits"
)

// DB holds an sqlx handle opened with lib/pq and a gorm handle sharing the
// same connection pool. The claim ledger uses sqlx for its locking SQL.
type DB struct {
	Gorm *gorm.DB
	SQL  *sqlx.DB
}

// Open connects to Postgres and applies pool limits from cfg
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*DB, error) {
	sqlDB, err := sqlx.Connect("postgres", cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.MaxConnections > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime.Duration > 0 {
		sqlDB.SetConnMaxLifetime(cfg.MaxLifetime.Duration)
	} else {
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB.DB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}

	log.Info("Connected to database",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.DBName))

	return &DB{Gorm: gdb, SQL: sqlDB}, nil
}

// Migrate creates or updates the users, claims and CSR funding tables
func (d *DB) Migrate() error {
	if err := d.Gorm.AutoMigrate(
		&greencredits.User{},
		&csr.Funding{},
		&greencredits.Claim{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (d *DB) Close() error {
	return d.SQL.Close()
}
