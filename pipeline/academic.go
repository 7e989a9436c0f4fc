package pipeline

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
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

const (
	arxivBaseURL     = "https://export.arxiv.org/api/query"
	arxivMaxResults  = 50
	defaultArxivTerm = "cat:cs.AI"
)

// AcademicRunner ingests recent papers from the arXiv Atom API.
type AcademicRunner struct {
	store   *storage.InnovationStore
	client  *httpclient.SaferClient
	limiter *rate.Limiter
	baseURL string
	query   string
	log     *zap.SugaredLogger
}

// NewAcademicRunner creates the academic pipeline runner.
func NewAcademicRunner(store *storage.InnovationStore, cfg config.PipelinesConfig, log *zap.SugaredLogger) *AcademicRunner {
	query := cfg.ArxivQuery
	if query == "" {
		query = defaultArxivTerm
	}
	return &AcademicRunner{
		store:   store,
		client:  newClient(cfg),
		limiter: newLimiter(cfg),
		baseURL: arxivBaseURL,
		query:   query,
		log:     log,
	}
}

// Name implements Runner.
func (r *AcademicRunner) Name() string {
	return monitor.PipelineAcademic
}

// atomFeed is the subset of the arXiv Atom response we consume.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
}

// Run fetches the latest papers matching the configured query and stores any
// not already seen.
func (r *AcademicRunner) Run(ctx context.Context, run *monitor.Run) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	queryURL := fmt.Sprintf("%s?search_query=%s&sortBy=submittedDate&sortOrder=descending&max_results=%d",
		r.baseURL, url.QueryEscape(r.query), arxivMaxResults)

	resp, err := r.client.Get(ctx, queryURL)
	if err != nil {
		return errors.Wrap(err, "failed to fetch arXiv feed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return errors.Newf("arXiv API returned status %d", resp.StatusCode)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return errors.Wrap(err, "failed to parse arXiv feed")
	}

	for _, entry := range feed.Entries {
		if entry.ID == "" {
			continue
		}

		inn := &storage.Innovation{
			Title:          strings.TrimSpace(entry.Title),
			Summary:        strings.TrimSpace(entry.Summary),
			URL:            entry.ID,
			SourcePipeline: monitor.PipelineAcademic,
		}
		if published, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			inn.PublishedAt = &published
		}

		inserted, err := r.store.Save(inn)
		if err != nil {
			r.log.Warnw("Failed to save paper",
				"url", entry.ID,
				"error", err)
			continue
		}
		if inserted {
			run.AddProcessedItems(1)
		}
	}

	r.log.Infow("Academic pipeline completed",
		"entries", len(feed.Entries),
		"new_items", run.ItemsProcessed())

	return nil
}
