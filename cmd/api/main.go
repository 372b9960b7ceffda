package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appmigrate "github.com/nabilpatel4012/smaapi/internal/app/migrate"
	"github.com/nabilpatel4012/smaapi/internal/dns"
	"github.com/nabilpatel4012/smaapi/internal/docker"
	"github.com/nabilpatel4012/smaapi/internal/httpx"
	"github.com/nabilpatel4012/smaapi/internal/repository/mongodoc"
	"github.com/nabilpatel4012/smaapi/internal/repository/postgres"
	"github.com/nabilpatel4012/smaapi/internal/service/apidef"
	"github.com/nabilpatel4012/smaapi/internal/service/materialize"
	"github.com/nabilpatel4012/smaapi/internal/service/project"
	"github.com/nabilpatel4012/smaapi/internal/workspace"
	"github.com/nabilpatel4012/smaapi/pkg/config"
	"github.com/nabilpatel4012/smaapi/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadAPIConfig()
	log := logger.New("api", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := appmigrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Error("failed to connect to document store", "error", err)
		os.Exit(1)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(disconnectCtx)
	}()

	engine, err := docker.New(cfg.DockerHost)
	if err != nil {
		log.Error("failed to create docker client", "error", err)
		os.Exit(1)
	}
	defer engine.Close()
	if err := engine.Ping(ctx); err != nil {
		log.Warn("docker daemon unreachable at startup", "error", err)
	}

	workspaces, err := workspace.New(cfg.WorkspaceRoot)
	if err != nil {
		log.Error("failed to prepare workspace root", "error", err)
		os.Exit(1)
	}

	registrar, err := dns.NewRegistrar(cfg.DNSAPIBase, cfg.DNSAPIToken, cfg.DNSZoneID, cfg.DNSTarget, cfg.DomainSuffix)
	if err != nil {
		log.Error("failed to configure dns registrar", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	docs := mongodoc.New(mongoClient.Database(cfg.MongoDatabase))

	projectSvc := project.New(repo, repo, registrar, log)
	apiSvc := apidef.New(repo, docs, repo, log)
	materializeSvc := materialize.New(repo, docs, engine, workspaces, projectSvc, log, cfg)

	router := httpx.NewRouter(log, projectSvc, apiSvc, materializeSvc, pool.Ping)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
