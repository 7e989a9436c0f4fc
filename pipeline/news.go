package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/innoscope/innoscope/config"
	"github.com/innoscope/innoscope/errors"
	"github.com/innoscope/innoscope/internal/httpclient"
	"github.com/innoscope/innoscope/monitor"
	"github.com/innoscope/innoscope/storage"
)

// NewsRunner ingests articles from a JSON news feed.
type NewsRunner struct {
	store   *storage.InnovationStore
	client  *httpclient.SaferClient
	limiter *rate.Limiter
	feedURL string
	log     *zap.SugaredLogger
}

// NewNewsRunner creates the news pipeline runner.
func NewNewsRunner(store *storage.InnovationStore, cfg config.PipelinesConfig, log *zap.SugaredLogger) *NewsRunner {
	return &NewsRunner{
		store:   store,
		client:  newClient(cfg),
		limiter: newLimiter(cfg),
		feedURL: cfg.NewsFeedURL,
		log:     log,
	}
}

// Name implements Runner.
func (r *NewsRunner) Name() string {
	return monitor.PipelineNews
}

type newsFeed struct {
	Articles []newsArticle `json:"articles"`
}

type newsArticle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at"`
}

// Run fetches the configured feed and stores any articles not already seen.
func (r *NewsRunner) Run(ctx context.Context, run *monitor.Run) error {
	if r.feedURL == "" {
		return errors.New("news feed URL is not configured")
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	resp, err := r.client.Get(ctx, r.feedURL)
	if err != nil {
		return errors.Wrap(err, "failed to fetch news feed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return errors.Newf("news feed returned status %d", resp.StatusCode)
	}

	var feed newsFeed
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return errors.Wrap(err, "failed to parse news feed")
	}

	for _, article := range feed.Articles {
		if article.URL == "" {
			continue
		}

		inn := &storage.Innovation{
			Title:          strings.TrimSpace(article.Title),
			Summary:        strings.TrimSpace(article.Description),
			URL:            article.URL,
			SourcePipeline: monitor.PipelineNews,
		}
		if published, err := time.Parse(time.RFC3339, article.PublishedAt); err == nil {
			inn.PublishedAt = &published
		}

		inserted, err := r.store.Save(inn)
		if err != nil {
			r.log.Warnw("Failed to save article",
				"url", article.URL,
				"error", err)
			continue
		}
		if inserted {
			run.AddProcessedItems(1)
		}
	}

	r.log.Infow("News pipeline completed",
		"articles", len(feed.Articles),
		"new_items", run.ItemsProcessed())

	return nil
}
