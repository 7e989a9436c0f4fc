package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/innoscope/innoscope/config"
	"github.com/innoscope/innoscope/errors"
	"github.com/innoscope/innoscope/internal/httpclient"
	"github.com/innoscope/innoscope/monitor"
	"github.com/innoscope/innoscope/storage"
)

const (
	serperSearchURL    = "https://google.serper.dev/search"
	defaultSerperQuery = "AI innovation announcement"
)

// SerperRunner ingests web search results from the Serper API.
type SerperRunner struct {
	store   *storage.InnovationStore
	client  *httpclient.SaferClient
	limiter *rate.Limiter
	baseURL string
	apiKey  string
	query   string
	log     *zap.SugaredLogger
}

// NewSerperRunner creates the serper pipeline runner.
func NewSerperRunner(store *storage.InnovationStore, cfg config.PipelinesConfig, log *zap.SugaredLogger) *SerperRunner {
	query := cfg.SerperQuery
	if query == "" {
		query = defaultSerperQuery
	}
	return &SerperRunner{
		store:   store,
		client:  newClient(cfg),
		limiter: newLimiter(cfg),
		baseURL: serperSearchURL,
		apiKey:  cfg.SerperAPIKey,
		query:   query,
		log:     log,
	}
}

// Name implements Runner.
func (r *SerperRunner) Name() string {
	return monitor.PipelineSerper
}

type serperRequest struct {
	Query string `json:"q"`
}

type serperResponse struct {
	Organic []serperResult `json:"organic"`
}

type serperResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Run searches for the configured query and stores any results not already
// seen.
func (r *SerperRunner) Run(ctx context.Context, run *monitor.Run) error {
	if r.apiKey == "" {
		return errors.New("serper API key is not configured")
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	body, err := json.Marshal(serperRequest{Query: r.query})
	if err != nil {
		return errors.Wrap(err, "failed to encode search request")
	}

	req, err := r.client.NewRequest(ctx, "POST", r.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to call serper API")
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return errors.Newf("serper API returned status %d", resp.StatusCode)
	}

	var result serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return errors.Wrap(err, "failed to parse serper response")
	}

	for _, item := range result.Organic {
		if item.Link == "" {
			continue
		}

		inn := &storage.Innovation{
			Title:          strings.TrimSpace(item.Title),
			Summary:        strings.TrimSpace(item.Snippet),
			URL:            item.Link,
			SourcePipeline: monitor.PipelineSerper,
		}

		inserted, err := r.store.Save(inn)
		if err != nil {
			r.log.Warnw("Failed to save search result",
				"url", item.Link,
				"error", err)
			continue
		}
		if inserted {
			run.AddProcessedItems(1)
		}
	}

	r.log.Infow("Serper pipeline completed",
		"results", len(result.Organic),
		"new_items", run.ItemsProcessed())

	return nil
}
