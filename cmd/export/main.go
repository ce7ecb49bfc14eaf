package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"path/filepath"

	"appgen-backend/internal/database"
	"appgen-backend/internal/storage"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"gorm.io/gorm"
)

const pageSize = 100

func openDatabase(databaseURL, sqlitePath string) *gorm.DB {
	var db *gorm.DB
	var err error
	if databaseURL != "" {
		db, err = database.NewDatabase(databaseURL)
	} else {
		db, err = database.NewSqliteDatabase(sqlitePath)
	}
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return db
}

func main() {
	var (
		envFile     string
		databaseURL string
		sqlitePath  string
		outDir      string
	)

	flag.StringVar(&envFile, "env", "", "path to load env from")
	flag.StringVar(&databaseURL, "db-url", "", "postgres connection url, takes precedence over -sqlite")
	flag.StringVar(&sqlitePath, "sqlite", "./appgen/db/appgen.db", "path of the local sqlite database")
	flag.StringVar(&outDir, "out", "./export", "directory the apps are written to")
	flag.Parse()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Fatalf("error loading .env file '%s': %v", envFile, err)
		}
	}

	ctx := context.Background()
	db := openDatabase(databaseURL, sqlitePath)

	var total int64
	if err := db.WithContext(ctx).Model(&database.App{}).Count(&total).Error; err != nil {
		log.Fatalf("Failed to count apps: %v", err)
	}

	absOut, err := filepath.Abs(outDir)
	if err != nil {
		log.Fatalf("Invalid output directory: %v", err)
	}
	store, err := storage.NewLocalObjectStore(filepath.Dir(absOut))
	if err != nil {
		log.Fatalf("Failed to create output store: %v", err)
	}
	publisher := storage.NewAppPublisher(store, filepath.Base(absOut), "")
	if err := publisher.Init(ctx); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetDescription("exporting apps"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	exported, skipped := 0, 0
	for offset := 0; ; offset += pageSize {
		apps, err := database.ListApps(ctx, db, pageSize, offset)
		if err != nil {
			log.Fatalf("Failed to list apps: %v", err)
		}

		for _, app := range apps {
			if app.Preview().IsEmpty() {
				skipped++
			} else if _, err := publisher.Publish(ctx, app.Name, app.Slug, app.Preview()); err != nil {
				slog.Error("failed to export app", "app_id", app.Id, "slug", app.Slug, "error", err)
				skipped++
			} else {
				exported++
			}
			_ = bar.Add(1)
		}

		if len(apps) < pageSize {
			break
		}
	}
	_ = bar.Finish()

	log.Printf("exported %d apps to %s (%d skipped)", exported, absOut, skipped)
}
