package main // Entry point package

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/session-authority/internal/config"
	"github.com/iliyamo/session-authority/internal/database"
	"github.com/iliyamo/session-authority/internal/handler"
	"github.com/iliyamo/session-authority/internal/middleware"
	"github.com/iliyamo/session-authority/internal/notifier"
	"github.com/iliyamo/session-authority/internal/queue"
	"github.com/iliyamo/session-authority/internal/repository"
	"github.com/iliyamo/session-authority/internal/router"
	"github.com/iliyamo/session-authority/internal/service"
	"github.com/iliyamo/session-authority/internal/utils"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set the environment
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("schema: %v", err)
	}
	cancel()

	// The admin key never lives in memory in the clear past this point.
	adminHash, err := utils.HashAdminKey(cfg.AdminKey, cfg.BcryptCost)
	if err != nil {
		log.Fatalf("admin key: %v", err)
	}

	rdb := config.NewRedisClient() // nil is fine; callers degrade
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting off, forced-logout delivery is instance-local")
	}

	hub := notifier.NewHub()
	fanout := notifier.NewFanout(hub, rdb)
	go fanout.Run(context.Background())

	sessions := repository.NewSessionRepo(db)
	authority := service.NewAuthority(
		cfg.JWTSecret,
		service.MigrationPolicy(cfg.MigrationPolicy),
		time.Duration(cfg.StoreTimeoutSec)*time.Second,
		sessions,
		repository.NewUserRepo(db),
		fanout,
		queue.NewPublisher(cfg.AMQPURL),
	)

	// Audit consumer runs alongside the server and survives broker restarts.
	go func() {
		if err := queue.StartAuditConsumer(cfg.AMQPURL); err != nil {
			log.Printf("session-audit consumer stopped: %v", err)
		}
	}()

	// Invalidated rows keep their terminal state; only rows expired for
	// over a week are physically removed.
	go func() {
		for range time.Tick(time.Hour) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := sessions.PurgeExpiredBefore(ctx, time.Now().UTC().Add(-7*24*time.Hour))
			cancel()
			if err != nil {
				log.Printf("session purge: %v", err)
			} else if n > 0 {
				log.Printf("session purge: removed %d rows", n)
			}
		}
	}()

	e := echo.New()
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	verifyAdmin := func(presented string) bool { return utils.VerifyAdminKey(adminHash, presented) }

	router.RegisterRoutes(e)
	router.RegisterTokens(e, handler.NewTokenHandler(authority), limiter)
	router.RegisterRevocation(e, handler.NewRevocationHandler(authority), verifyAdmin)
	router.RegisterDevices(e, handler.NewDeviceGateway(hub))

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s policy=%s)", addr, cfg.Env, cfg.MigrationPolicy)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
