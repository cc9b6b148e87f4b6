package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	pingTimeout   = 3 * time.Second
	slowQueryTime = 200 * time.Millisecond
)

// DB is the global database instance
var DB *gorm.DB

// ConnectDatabase opens the MySQL pool and verifies it with a ping
func ConnectDatabase(cfg *Config) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:               buildDSN(cfg.Database),
		DefaultStringSize: 191,
	}), &gorm.Config{
		Logger:                 newGormLogger(cfg.IsDev()),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	DB = db

	log.Info().
		Str("host", cfg.Database.Host).
		Str("db", cfg.Database.DBName).
		Int("max_open_conns", cfg.Database.MaxOpenConns).
		Msg("database connected")

	return db, nil
}

func buildDSN(d DatabaseConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

// gormWriter routes GORM's printf-style output into zerolog
type gormWriter struct {
	log zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Info().Msgf(format, args...)
}

func newGormLogger(dev bool) logger.Interface {
	level := logger.Warn
	if dev {
		level = logger.Info
	}
	return logger.New(gormWriter{log: log.With().Str("component", "gorm").Logger()}, logger.Config{
		SlowThreshold:             slowQueryTime,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

// CloseDatabase closes the global pool if one was opened
func CloseDatabase() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck pings the global pool
func HealthCheck() error {
	if DB == nil {
		return errors.New("database not initialized")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
