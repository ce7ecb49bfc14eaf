package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"appgen-backend/cmd"
	"appgen-backend/internal/api"
	"appgen-backend/internal/database"
	"appgen-backend/internal/messaging"
	"appgen-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Root              string        `env:"ROOT" envDefault:"./appgen"`
	Port              int           `env:"PORT" envDefault:"3001"`
	AllowedOrigins    []string      `env:"ALLOWED_ORIGINS" envDefault:"*"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	WorkerConcurrency int           `env:"CONCURRENCY" envDefault:"1"`
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT" envDefault:"5m"`

	LLM cmd.LLMConfig
}

const publishBucket = "published"

func setupLogging(root, level string) io.Closer {
	logFile := &lumberjack.Logger{
		Filename:   filepath.Join(root, "logs", "backend.log"),
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
	}

	out := io.MultiWriter(logFile, os.Stderr)

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetOutput(out)

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})))

	return logFile
}

func createServer(service *api.BackendService, port int, origins []string) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(180 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		service.AddRoutes(r)
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
}

func main() {
	cmd.LoadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	if err := os.MkdirAll(cfg.Root, os.ModePerm); err != nil {
		log.Fatalf("error creating root directory: %v", err)
	}
	logFile := setupLogging(cfg.Root, cfg.LogLevel)
	defer logFile.Close()

	slog.Info("starting backend", "root", cfg.Root, "port", cfg.Port, "llm_provider", cfg.LLM.Provider)

	db, err := database.NewSqliteDatabase(filepath.Join(cfg.Root, "db", "appgen.db"))
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store, err := storage.NewLocalObjectStore(filepath.Join(cfg.Root, "storage"))
	if err != nil {
		log.Fatalf("Failed to create storage: %v", err)
	}
	appPublisher := storage.NewAppPublisher(store, publishBucket, "")
	if err := appPublisher.Init(context.Background()); err != nil {
		log.Fatalf("Failed to create publish bucket: %v", err)
	}

	queue := messaging.NewInMemoryQueue()

	appBuilder := cmd.CreateBuilder(db, cfg.LLM, queue)

	worker := messaging.NewWorker(appBuilder, queue, cfg.WorkerConcurrency, cfg.GenerationTimeout)
	slog.Info("starting worker")
	go worker.Start()

	if err := cmd.RequeueGenerations(context.Background(), db, queue); err != nil {
		log.Fatalf("Failed to requeue pending generations: %v", err)
	}

	server := createServer(api.NewBackendService(db, appBuilder, appPublisher), cfg.Port, cfg.AllowedOrigins)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		slog.Info("shutting down worker")
		worker.Stop()
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}
