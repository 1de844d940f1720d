package database

import (
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/justsurfingit/campus-job-board/internal/errors"
	"github.com/justsurfingit/campus-job-board/internal/models"
)

// Connect opens the Postgres database and runs migrations.
func Connect(dsn, logLevel string, log *zap.SugaredLogger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), Config(logLevel))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	log.Infow("Database connection established")

	log.Infow("Running migrations")
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Config is the gorm configuration shared by every dialect.
// TranslateError turns driver unique violations into gorm.ErrDuplicatedKey.
func Config(logLevel string) *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(parseLogLevel(logLevel)),
		TranslateError: true,
	}
}

// Migrate creates or updates every table the job board needs.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return errors.Wrap(err, "failed to auto migrate")
	}
	return nil
}

// IsUniqueViolation reports whether err is a unique-constraint failure.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// IsNotFound reports whether err is gorm's record-not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
