package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm/logger"

	"weakapi/docs"
	"weakapi/internal/auth"
	"weakapi/internal/cache"
	"weakapi/internal/config"
	"weakapi/internal/db"
	"weakapi/internal/handler"
	"weakapi/internal/logging"
	"weakapi/internal/metrics"
	"weakapi/internal/render"
	"weakapi/internal/repository"
	"weakapi/internal/router"
	"weakapi/internal/service"
)

// @title DVWA
// @version 1.0.0
// @description DAMN VULNERABLE WEB API
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	docs.SwaggerInfo.Title = cfg.AppTitle
	docs.SwaggerInfo.Description = cfg.AppDescription
	docs.SwaggerInfo.Version = cfg.AppVersion
	docs.SwaggerInfo.Host = cfg.SwaggerHost

	dbOpts := db.Options{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	}
	if cfg.LogLevel == "debug" {
		dbOpts.LogLevel = logger.Info
	}
	gormDB, err := db.NewMySQL(cfg.MySQLDSN, dbOpts)
	if err != nil {
		log.WithError(err).Fatal("database init")
	}
	if err := db.Migrate(gormDB, cfg.ResetDB, log); err != nil {
		log.WithError(err).Fatal("migrate")
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, "weakapi:", log)
	defer cacheClient.Close()
	if err := cacheClient.Ping(context.Background()); err != nil {
		log.WithError(err).Warn("redis unavailable, acting user lookups go to the database")
	}

	m := metrics.New()

	// Initialize repositories
	userRepo := repository.NewUserRepository(gormDB)
	noteRepo := repository.NewNoteRepository(gormDB)

	// Initialize auth components
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	tokens := auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL)

	// Initialize services
	accountService := service.NewAccountService(userRepo, hasher, tokens, cacheClient, m, cfg.Policy, log)
	noteService := service.NewNoteService(noteRepo, render.New(cfg.Policy.UnsafeNoteRendering), cfg.Policy, log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	router.Register(
		e,
		log,
		m,
		auth.NewGuard(tokens, accountService),
		handler.NewUserHandler(accountService),
		handler.NewNoteHandler(noteService),
	)

	log.WithField("policy", cfg.Policy).Info("vulnerability policy")
	if cfg.JWTSecret == "change-me" {
		log.Warn("JWT_SECRET is the default value")
	}

	addr := ":" + cfg.ServerPort
	go func() {
		log.WithField("addr", addr).Info("server listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server start")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
	log.Info("server stopped")
}
