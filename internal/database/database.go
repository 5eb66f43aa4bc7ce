package database

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tryexperimenter/experimenter-api/internal/config"
	"github.com/tryexperimenter/experimenter-api/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the pooled Postgres connection. The pool is the only
// process-wide database state; individual operations borrow connections
// for one logical operation and release them on every exit path.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	slog.Info("database connected")
	return db, nil
}

// Migrate runs AutoMigrate for all models owned by this service.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.UserLookup{},
		&models.Group{},
		&models.SubGroup{},
		&models.GroupAssignment{},
		&models.ExperimentPrompt{},
		&models.ObservationPrompt{},
		&models.Observation{},
		&models.SubGroupActionTemplate{},
		&models.SubGroupAction{},
		&models.SubGroupActionEmail{},
		&models.SystemLog{},
		&models.APICall{},
	)
}

func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
