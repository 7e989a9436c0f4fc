package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/innoscope/innoscope/config"
	"github.com/innoscope/innoscope/errors"
	"github.com/innoscope/innoscope/internal/httpclient"
	"github.com/innoscope/innoscope/monitor"
	"github.com/innoscope/innoscope/storage"
)

const enrichmentBatchSize = 50

// EnrichmentRunner backfills un-enriched innovation records through the
// configured provider API: classification, an enriched summary, and an
// embedding for similarity search. It satisfies both the pipeline Runner
// interface and the scheduler's runner contract.
type EnrichmentRunner struct {
	innovations *storage.InnovationStore
	vectors     *storage.VectorStore
	client      *httpclient.SaferClient
	limiter     *rate.Limiter

	baseURL  string
	apiKey   string
	provider string

	intelligenceTypes []string
	geographicFocus   []string

	log *zap.SugaredLogger
}

// NewEnrichmentRunner creates the enrichment pipeline runner. vectors may be
// nil to skip embedding storage.
func NewEnrichmentRunner(innovations *storage.InnovationStore, vectors *storage.VectorStore, pipelines config.PipelinesConfig, enrichment config.EnrichmentConfig, log *zap.SugaredLogger) *EnrichmentRunner {
	return &EnrichmentRunner{
		innovations:       innovations,
		vectors:           vectors,
		client:            newClient(pipelines),
		limiter:           newLimiter(pipelines),
		baseURL:           pipelines.ProviderBaseURL,
		apiKey:            pipelines.ProviderAPIKey,
		provider:          enrichment.Provider,
		intelligenceTypes: enrichment.IntelligenceTypes,
		geographicFocus:   enrichment.GeographicFocus,
		log:               log,
	}
}

// Name implements Runner.
func (r *EnrichmentRunner) Name() string {
	return monitor.PipelineEnrichment
}

type enrichRequest struct {
	Title             string   `json:"title"`
	Summary           string   `json:"summary"`
	IntelligenceTypes []string `json:"intelligence_types,omitempty"`
	GeographicFocus   []string `json:"geographic_focus,omitempty"`
}

type enrichResponse struct {
	IntelligenceType string    `json:"intelligence_type"`
	Summary          string    `json:"summary"`
	Embedding        []float32 `json:"embedding"`
}

// Run enriches the oldest un-enriched records, one provider call each. A
// failure on a single record is logged and skipped; the run fails only when
// the provider is unreachable for every record in the batch.
func (r *EnrichmentRunner) Run(ctx context.Context, run *monitor.Run) error {
	if r.baseURL == "" {
		return errors.New("enrichment provider base URL is not configured")
	}

	batch, err := r.innovations.ListUnenriched(enrichmentBatchSize)
	if err != nil {
		return errors.Wrap(err, "failed to list un-enriched innovations")
	}
	if len(batch) == 0 {
		r.log.Infow("No records pending enrichment")
		return nil
	}

	var failures int
	for _, inn := range batch {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "enrichment interrupted")
		}

		if err := r.enrichOne(ctx, inn); err != nil {
			failures++
			r.log.Warnw("Failed to enrich record",
				"id", inn.ID,
				"error", err)
			continue
		}
		run.AddProcessedItems(1)
	}

	if failures == len(batch) {
		return errors.Newf("all %d enrichment calls failed", failures)
	}

	r.log.Infow("Enrichment pipeline completed",
		"batch", len(batch),
		"enriched", run.ItemsProcessed(),
		"failures", failures)

	return nil
}

func (r *EnrichmentRunner) enrichOne(ctx context.Context, inn *storage.Innovation) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	body, err := json.Marshal(enrichRequest{
		Title:             inn.Title,
		Summary:           inn.Summary,
		IntelligenceTypes: r.intelligenceTypes,
		GeographicFocus:   r.geographicFocus,
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode enrich request")
	}

	req, err := r.client.NewRequest(ctx, "POST", r.baseURL+"/enrich", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to call enrichment provider")
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return errors.Newf("enrichment provider returned status %d", resp.StatusCode)
	}

	var enriched enrichResponse
	if err := json.NewDecoder(resp.Body).Decode(&enriched); err != nil {
		return errors.Wrap(err, "failed to parse enrichment response")
	}

	if err := r.innovations.MarkEnriched(inn.ID, r.provider, enriched.IntelligenceType, time.Now().UTC()); err != nil {
		return errors.Wrap(err, "failed to mark record enriched")
	}

	if r.vectors != nil && len(enriched.Embedding) == storage.EmbeddingDimensions {
		if err := r.vectors.SaveEmbedding(inn.ID, enriched.Embedding); err != nil {
			// The record is enriched; a lost embedding is recoverable later.
			r.log.Warnw("Failed to save embedding",
				"id", inn.ID,
				"error", err)
		}
	}

	return nil
}
