package main

import (
	"context"

	"weakapi/internal/auth"
	"weakapi/internal/config"
	"weakapi/internal/db"
	"weakapi/internal/logging"
	"weakapi/internal/repository"
	"weakapi/internal/service"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	log.Info("starting seed")

	gormDB, err := db.NewMySQL(cfg.MySQLDSN, db.Options{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	if err := db.Migrate(gormDB, cfg.ResetDB, log); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	seeder := service.NewSeeder(
		repository.NewUserRepository(gormDB),
		repository.NewNoteRepository(gormDB),
		auth.NewPasswordHasher(cfg.BcryptCost),
		cfg.Policy,
		log,
	)
	res, err := seeder.Seed(context.Background(), service.SeedOptions{
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
		Flag:          cfg.Flag,
	})
	if err != nil {
		log.WithError(err).Fatal("seed failed")
	}

	entry := log.WithField("admin_id", res.AdminID).
		WithField("admin_created", res.AdminCreated).
		WithField("flag_note_created", res.FlagNoteCreated)
	if res.GeneratedPassword != "" {
		// Printed once so the operator can log in as admin.
		entry = entry.WithField("admin_password", res.GeneratedPassword)
	}
	entry.Info("seed completed")
}
