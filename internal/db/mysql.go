package db

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"weakapi/internal/model"
)

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns int
	MaxIdleConns int
	LogLevel     logger.LogLevel
}

// NewMySQL returns a connected GORM DB instance.
func NewMySQL(dsn string, opts Options) (*gorm.DB, error) {
	return open(mysql.Open(dsn), opts)
}

func open(dialector gorm.Dialector, opts Options) (*gorm.DB, error) {
	level := opts.LogLevel
	if level == 0 {
		level = logger.Warn
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		// Surface duplicate key and foreign key failures as gorm sentinels.
		TranslateError: true,
		Logger:         logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Migrate creates or updates the users and notes tables. When reset is set
// the tables are dropped first, notes before users.
func Migrate(db *gorm.DB, reset bool, log logrus.FieldLogger) error {
	if reset {
		log.Warn("database reset requested, dropping all tables")
		for _, table := range []interface{}{&model.Note{}, &model.User{}} {
			if err := db.Migrator().DropTable(table); err != nil {
				log.WithError(err).Warn("failed to drop table (may not exist)")
			}
		}
	}

	if err := db.AutoMigrate(&model.User{}, &model.Note{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
