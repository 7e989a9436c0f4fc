// Package pipeline contains the thin data-collection runners that feed the
// innovation store: academic papers, news articles, and web search results,
// plus the enrichment pass that backfills un-enriched records.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/innoscope/innoscope/config"
	"github.com/innoscope/innoscope/internal/httpclient"
	"github.com/innoscope/innoscope/monitor"
)

// Runner is one data-collection pipeline. Run reports progress on the scoped
// run context; the registry records the outcome.
type Runner interface {
	Name() string
	Run(ctx context.Context, run *monitor.Run) error
}

// RunAll executes each runner under the registry in order. Individual
// pipeline failures are logged and absorbed so one broken source never blocks
// the others.
func RunAll(ctx context.Context, registry *monitor.Registry, log *zap.SugaredLogger, runners ...Runner) {
	for _, r := range runners {
		r := r
		err := registry.RunPipeline(ctx, r.Name(), func(ctx context.Context, run *monitor.Run) error {
			return r.Run(ctx, run)
		})
		if err != nil {
			log.Errorw("Pipeline run failed",
				"pipeline", r.Name(),
				"error", err)
		}
	}
}

// newLimiter builds the per-pipeline outbound rate limiter.
func newLimiter(cfg config.PipelinesConfig) *rate.Limiter {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
}

// newClient builds the SSRF-guarded HTTP client used by all runners.
func newClient(cfg config.PipelinesConfig) *httpclient.SaferClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return httpclient.NewSaferClient(timeout)
}
