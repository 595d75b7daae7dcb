package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callflow-platform/internal/audit"
	"callflow-platform/internal/auth"
	"callflow-platform/internal/calls"
	"callflow-platform/internal/config"
	"callflow-platform/internal/editor"
	"callflow-platform/internal/flowstore"
	"callflow-platform/internal/interpreter"
	"callflow-platform/internal/metrics"
	"callflow-platform/internal/numbers"
	"callflow-platform/internal/reporting"
	"callflow-platform/pkg/logger"
	"callflow-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	var db *sql.DB
	if cfg.HasDatabase() {
		db, err = utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
	} else {
		log.Warn("DB_HOST not set; flows, numbers, audit events and call legs are kept in memory")
	}

	var rdb *redis.Client
	if cfg.HasRedis() {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
	} else {
		log.Warn("REDIS_HOST not set; flow cache disabled and editor sessions kept in memory")
	}

	app := wire(cfg, db, rdb)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, "/healthz", "/metrics"))

	registerRoutes(r, cfg, app, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// components are the services the routes depend on.
type components struct {
	db          *sql.DB
	flows       *flowstore.Service
	numbers     numbers.Inventory
	editor      *editor.Service
	interpreter *interpreter.Interpreter
	recorder    *calls.Recorder
	reporting   *reporting.Service
	audit       *audit.Service
	metrics     *metrics.Collector
}

// wire builds the services. A nil db or rdb selects the in-memory
// implementation of the stores that would live there.
func wire(cfg config.Config, db *sql.DB, rdb *redis.Client) components {
	var (
		flowRepo  flowstore.Repository = flowstore.NewMemoryRepo()
		auditRepo audit.Repository     = audit.NewMemoryRepo()
		legRepo   calls.Repository     = calls.NewMemoryRepo()
		inv       numbers.Inventory    = numbers.NewMemoryInventory()
		cache     flowstore.Cache      = flowstore.NopCache{}
		sessions  editor.SessionStore  = editor.NewMemorySessionStore()
	)
	if db != nil {
		flowRepo = flowstore.NewPostgresRepo(db)
		auditRepo = audit.NewPostgresRepo(db)
		inv = numbers.NewPostgresInventory(db)
		legRepo = calls.NewPostgresRepo(db)
	}
	if rdb != nil {
		cache = flowstore.NewRedisCache(rdb, cfg.Runtime.FlowCacheTTL)
		sessions = editor.NewRedisSessionStore(rdb, cfg.Editor.SessionTTL)
	}

	collector := metrics.New(nil)

	auditSvc := audit.NewService(auditRepo)
	flows := flowstore.NewService(flowRepo, cache, flowstore.AuditAdapter{Audit: auditSvc})
	flows.Observer = collector

	in := interpreter.New(flows)
	in.MaxHops = cfg.Runtime.MaxHops
	in.MenuMaxRetries = cfg.Runtime.MenuMaxRetries
	in.DefaultVoice = cfg.Runtime.DefaultVoice
	in.Observer = collector

	return components{
		db:          db,
		flows:       flows,
		numbers:     inv,
		editor:      editor.NewService(flows, inv, sessions),
		interpreter: in,
		recorder:    calls.NewRecorder(in, legRepo),
		reporting:   reporting.NewService(legRepo),
		audit:       auditSvc,
		metrics:     collector,
	}
}
