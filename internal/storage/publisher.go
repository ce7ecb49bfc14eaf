package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"appgen-backend/internal/preview"
)

const indexFile = "index.html"

// AppPublisher writes the downloadable form of an app to an object store so it can be
// served as a static site. Each app is stored under its slug.
type AppPublisher struct {
	store   ObjectStore
	bucket  string
	baseURL string
}

type Publication struct {
	Bucket string
	Prefix string
	Keys   []string
	URL    string
}

func NewAppPublisher(store ObjectStore, bucket, baseURL string) *AppPublisher {
	return &AppPublisher{store: store, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *AppPublisher) Init(ctx context.Context) error {
	return p.store.CreateBucket(ctx, p.bucket)
}

func (p *AppPublisher) prefix(slug string) string {
	return slug + "/"
}

// Publish replaces any previous publication of the app.
func (p *AppPublisher) Publish(ctx context.Context, name, slug string, pv preview.Preview) (Publication, error) {
	if slug == "" {
		return Publication{}, fmt.Errorf("cannot publish app '%s' without a slug", name)
	}

	files, err := preview.DownloadFiles(name, slug, pv)
	if err != nil {
		return Publication{}, fmt.Errorf("error rendering app '%s': %w", slug, err)
	}
	if len(files) == 0 {
		return Publication{}, fmt.Errorf("app '%s' has no content to publish", slug)
	}

	prefix := p.prefix(slug)
	if err := p.store.DeleteObjects(ctx, p.bucket, prefix); err != nil {
		return Publication{}, fmt.Errorf("error removing previous publication of '%s': %w", slug, err)
	}

	keys := make([]string, 0, len(files))
	for _, f := range files {
		name := f.Name
		if f.ContentType == preview.TypeHTML {
			name = indexFile
		}
		key := path.Join(slug, name)
		if err := p.store.PutObject(ctx, p.bucket, key, strings.NewReader(f.Content)); err != nil {
			return Publication{}, fmt.Errorf("error publishing '%s': %w", key, err)
		}
		keys = append(keys, key)
	}

	slog.Info("published app", "slug", slug, "bucket", p.bucket, "files", len(keys))

	return Publication{
		Bucket: p.bucket,
		Prefix: prefix,
		Keys:   keys,
		URL:    p.url(slug),
	}, nil
}

func (p *AppPublisher) Unpublish(ctx context.Context, slug string) error {
	if slug == "" {
		return nil
	}
	if err := p.store.DeleteObjects(ctx, p.bucket, p.prefix(slug)); err != nil {
		return fmt.Errorf("error unpublishing '%s': %w", slug, err)
	}
	return nil
}

func (p *AppPublisher) url(slug string) string {
	if p.baseURL == "" {
		return ""
	}
	return p.baseURL + "/" + path.Join(slug, indexFile)
}
