package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dossier/internal/hr/filecache"
	"dossier/internal/hr/handler"
	hrmetrics "dossier/internal/hr/metrics"
	"dossier/internal/hr/service"
	"dossier/internal/hr/store"
	"dossier/internal/hr/store/memory"
	"dossier/internal/hr/store/postgres"
	jwttoken "dossier/internal/jwt_token"
	"dossier/internal/platform/config"
	"dossier/internal/platform/httpserver"
	"dossier/internal/platform/logger"
	platformredis "dossier/internal/platform/redis"
	"dossier/pkg/platform/audit"
	auditkafka "dossier/pkg/platform/audit/kafka"
)

// dataStore is the full persistence surface the service needs; both store
// backends implement all of it.
type dataStore interface {
	store.EmployeeStore
	store.TemporalStore
	store.JournalStore
	store.TxRunner
}

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var st dataStore
	switch cfg.StoreBackend {
	case "postgres":
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			log.Error("open database", "error", err.Error())
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("ping database", "error", err.Error())
			os.Exit(1)
		}
		st = postgres.New(db)
	default:
		st = memory.New()
	}
	log.Info("store configured", "backend", cfg.StoreBackend)

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(hrmetrics.New()),
	}

	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err.Error())
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
		opts = append(opts, service.WithCache(filecache.New(rdb.Client, cfg.Redis.CacheTTL, log)))
		log.Info("employee file cache enabled")
	}

	publisher, err := auditkafka.New(cfg.KafkaBrokers, cfg.AuditTopic, log)
	if err != nil {
		log.Error("connect kafka", "error", err.Error())
		os.Exit(1)
	}
	if publisher != nil {
		defer publisher.Close()
		buffer := audit.NewBuffer(256, log)
		worker := audit.NewWorker(publisher, buffer, log)
		go func() {
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("audit worker stopped", "error", err.Error())
			}
		}()
		opts = append(opts, service.WithAudit(buffer))
		log.Info("audit publishing enabled", "topic", cfg.AuditTopic)
	}

	svc := service.New(st, st, st, st, opts...)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "dossier", "dossier-api")

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	handler.New(svc, log, jwttoken.NewAdapter(jwtService)).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting dossier", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err.Error())
	}
}
