package qos

import (
	"context"
	"log/slog"
	"sort"

	"github.com/sourcegraph/conc"
)

// Coordinator runs probe rounds across a set of endpoints with a fixed number
// of concurrent ping workers.
type Coordinator struct {
	pinger Pinger
	opts   Options
	logger *slog.Logger
}

// NewCoordinator creates a coordinator. Non-positive option values fall back
// to the defaults.
func NewCoordinator(pinger Pinger, opts Options) *Coordinator {
	return &Coordinator{
		pinger: pinger,
		opts:   opts.withDefaults(),
		logger: slog.Default(),
	}
}

// WithLogger sets the logger used for the coordinator and its probers.
func (c *Coordinator) WithLogger(logger *slog.Logger) *Coordinator {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Options returns the effective configuration.
func (c *Coordinator) Options() Options {
	return c.opts
}

// Probe pings every endpoint at least PingsPerRegion times using Parallelism
// workers and returns the latency ranking. It blocks until every worker has
// finished. Cancelling ctx stops workers from starting new walks; the ranking
// is still computed from whatever was measured.
func (c *Coordinator) Probe(ctx context.Context, endpoints []Endpoint) RankedResult {
	if len(endpoints) == 0 {
		c.logger.Warn("Probe round started with no endpoints")
		return Rank(nil)
	}

	probers := make([]*RegionProber, len(endpoints))
	for i, ep := range endpoints {
		probers[i] = NewRegionProber(ep, c.pinger, c.opts.Timeout, c.opts.TimeoutsToFail, c.opts.PingsPerRegion)
		probers[i].logger = c.logger
	}

	pool := newOffsetPool(startingOffsets(len(endpoints), c.opts.PingsPerRegion))

	c.logger.Info("Starting probe round",
		"endpoints", len(endpoints),
		"pings_per_region", c.opts.PingsPerRegion,
		"workers", c.opts.Parallelism,
		"timeout", c.opts.Timeout,
	)

	var wg conc.WaitGroup
	for i := 0; i < c.opts.Parallelism; i++ {
		wg.Go(func() {
			pingWorker(ctx, probers, pool)
		})
	}
	wg.Wait()

	verdicts := make([]RegionVerdict, len(probers))
	for i, p := range probers {
		verdicts[i] = p.Verdict()
	}
	result := Rank(verdicts)

	if result.ErrorCode == NoResult {
		c.logger.Error("Probe round produced no result", "endpoints", len(endpoints))
	} else {
		best := result.Regions[0]
		c.logger.Info("Probe round completed", "best_region", best.Region, "latency_ms", best.LatencyMs)
	}
	return result
}

// pingWorker claims starting offsets until the pool is empty. For each offset
// it walks the whole ring of probers once, wrapping at the end.
func pingWorker(ctx context.Context, probers []*RegionProber, pool *offsetPool) {
	n := len(probers)
	for {
		if ctx.Err() != nil {
			return
		}
		start, ok := pool.take()
		if !ok {
			return
		}
		for k := 0; k < n; k++ {
			probers[(start+k)%n].Ping(ctx)
		}
	}
}

// Rank sorts verdicts by ascending latency and derives the aggregate error
// code. It is a pure function of its input; equal latencies keep input order.
func Rank(verdicts []RegionVerdict) RankedResult {
	sorted := make([]RegionVerdict, len(verdicts))
	copy(sorted, verdicts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LatencyMs < sorted[j].LatencyMs
	})

	result := RankedResult{Regions: sorted, ErrorCode: Success}
	allFailed := true
	for _, v := range sorted {
		if v.ErrorCode != NoResult {
			allFailed = false
			break
		}
	}
	if allFailed {
		result.ErrorCode = NoResult
		result.ErrorMessage = noResultMessage
	}
	return result
}
