package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"

	"appgen-backend/internal/builder"
	"appgen-backend/internal/database"
	"appgen-backend/internal/llm"
	"appgen-backend/internal/messaging"
	"appgen-backend/internal/storage"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

type LLMConfig struct {
	Provider      string `env:"LLM_PROVIDER" envDefault:"anthropic"`
	APIKey        string `env:"LLM_API_KEY"`
	AnthropicKey  string `env:"ANTHROPIC_API_KEY"`
	BaseURL       string `env:"LLM_BASE_URL"`
	Model         string `env:"LLM_MODEL"`
	PromptProfile string `env:"PROMPT_PROFILE"`
}

type S3Config struct {
	Endpoint        string `env:"S3_ENDPOINT_URL"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	Region          string `env:"AWS_REGION"`
	Bucket          string `env:"PUBLISH_BUCKET"`
	PublicURL       string `env:"PUBLISH_BASE_URL"`
}

func CreateBuilder(db *gorm.DB, cfg LLMConfig, publisher messaging.Publisher) *builder.Builder {
	apiKey := cfg.APIKey
	if apiKey == "" && (cfg.Provider == "" || cfg.Provider == llm.ProviderAnthropic) {
		apiKey = cfg.AnthropicKey
	}

	if (cfg.Provider == "" || cfg.Provider == llm.ProviderAnthropic || cfg.Provider == llm.ProviderOpenAI) && apiKey == "" {
		log.Fatalf("an api key is required for llm provider '%s': set LLM_API_KEY", cfg.Provider)
	}

	model, err := llm.New(llm.Config{Provider: cfg.Provider, APIKey: apiKey, BaseURL: cfg.BaseURL})
	if err != nil {
		log.Fatalf("error creating llm client: %v", err)
	}

	profile, err := builder.LoadProviderProfile(cfg.PromptProfile, cfg.Provider, cfg.Model)
	if err != nil {
		log.Fatalf("error loading prompt profile: %v (set LLM_MODEL or a model in PROMPT_PROFILE)", err)
	}

	slog.Info("using llm", "provider", cfg.Provider, "model", profile.Model)

	return builder.NewBuilder(db, model, profile, publisher)
}

// CreateAppPublisher returns nil when no bucket is configured.
func CreateAppPublisher(ctx context.Context, cfg S3Config) (*storage.AppPublisher, error) {
	if cfg.Bucket == "" {
		slog.Info("no publish bucket configured, publishing is disabled")
		return nil, nil
	}

	store, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
		Endpoint:        cfg.Endpoint,
		Region:          cfg.Region,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}

	publisher := storage.NewAppPublisher(store, cfg.Bucket, cfg.PublicURL)
	if err := publisher.Init(ctx); err != nil {
		return nil, fmt.Errorf("error creating publish bucket: %w", err)
	}
	return publisher, nil
}

// RequeueGenerations publishes generations that were queued or running when the
// process last stopped. Only valid with an in-process queue, since any running
// generation is assumed to be abandoned.
func RequeueGenerations(ctx context.Context, db *gorm.DB, publisher messaging.Publisher) error {
	for _, status := range []string{database.GenerationQueued, database.GenerationRunning} {
		generations, err := database.ListGenerationsByStatus(ctx, db, status)
		if err != nil {
			return err
		}

		for _, generation := range generations {
			if status == database.GenerationRunning {
				if err := database.UpdateGenerationStatus(ctx, db, generation.Id, database.GenerationQueued); err != nil {
					return err
				}
			}
			payload := messaging.GenerationPayload{GenerationId: generation.Id, AppId: generation.AppId}
			if err := publisher.PublishGenerationTask(ctx, payload); err != nil {
				return fmt.Errorf("error requeueing generation %v: %w", generation.Id, err)
			}
		}

		if len(generations) > 0 {
			slog.Info("requeued generations", "status", status, "count", len(generations))
		}
	}
	return nil
}
