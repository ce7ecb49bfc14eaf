package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"appgen-backend/cmd"
	"appgen-backend/internal/api"
	"appgen-backend/internal/database"
	"appgen-backend/internal/messaging"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type APIConfig struct {
	DatabaseURL    string        `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL    string        `env:"RABBITMQ_URL"`
	APIPort        string        `env:"API_PORT" envDefault:"8001"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"180s"`

	LLM cmd.LLMConfig
	S3  cmd.S3Config
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	var queue messaging.Publisher
	if cfg.RabbitMQURL != "" {
		publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer publisher.Close()
		queue = publisher
	} else {
		log.Println("RABBITMQ_URL not set, asynchronous generation is disabled")
	}

	appPublisher, err := cmd.CreateAppPublisher(context.Background(), cfg.S3)
	if err != nil {
		log.Fatalf("Failed to create app publisher: %v", err)
	}

	appBuilder := cmd.CreateBuilder(db, cfg.LLM, queue)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout)) // generations can take a while

	apiHandler := api.NewBackendService(db, appBuilder, appPublisher)

	apiHandler.AddRoutes(r)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
