package qos

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RegionProber accumulates ping results for a single endpoint. Pings are
// serialized: at most one is in flight for the endpoint at any time, so the
// consecutive failure count is well defined.
type RegionProber struct {
	endpoint       Endpoint
	pinger         Pinger
	timeout        time.Duration
	timeoutsToFail int
	logger         *slog.Logger

	mu                  sync.Mutex
	pingsRemaining      int
	consecutiveFailures int
	samples             []time.Duration
}

// NewRegionProber creates a prober that will attempt at most maxPings pings and
// stop early after timeoutsToFail consecutive failures.
func NewRegionProber(endpoint Endpoint, pinger Pinger, timeout time.Duration, timeoutsToFail, maxPings int) *RegionProber {
	return &RegionProber{
		endpoint:       endpoint,
		pinger:         pinger,
		timeout:        timeout,
		timeoutsToFail: timeoutsToFail,
		pingsRemaining: maxPings,
		logger:         slog.Default(),
	}
}

// Ping performs one timed ping unless the prober is exhausted or has already
// failed. It reports whether a ping was actually sent.
func (p *RegionProber) Ping(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pingsRemaining <= 0 || p.failed() {
		return false
	}
	p.pingsRemaining--

	pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
	latency, err := p.pinger.Ping(pingCtx, p.endpoint)
	cancel()

	outcome := PingOutcome{Succeeded: err == nil, Latency: latency}
	p.record(outcome)

	if err != nil {
		p.logger.Debug("Ping failed", "region", p.endpoint.Region, "url", p.endpoint.URL, "consecutive_failures", p.consecutiveFailures, "error", err)
		if p.failed() {
			p.logger.Warn("Region marked unreachable", "region", p.endpoint.Region, "url", p.endpoint.URL)
		}
	}
	return true
}

func (p *RegionProber) record(o PingOutcome) {
	if !o.Succeeded {
		p.consecutiveFailures++
		return
	}
	p.consecutiveFailures = 0
	p.samples = append(p.samples, o.Latency)
}

func (p *RegionProber) failed() bool {
	return p.consecutiveFailures >= p.timeoutsToFail
}

// Verdict returns the accumulated judgment for the endpoint. A region with no
// successful sample, or one that hit the failure threshold, is NoResult.
func (p *RegionProber) Verdict() RegionVerdict {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := RegionVerdict{
		Region:    p.endpoint.Region,
		URL:       p.endpoint.URL,
		LatencyMs: NoLatency,
		ErrorCode: NoResult,
	}
	if p.failed() || len(p.samples) == 0 {
		return v
	}

	var total time.Duration
	for _, s := range p.samples {
		total += s
	}
	mean := total / time.Duration(len(p.samples))
	v.LatencyMs = int((mean + time.Millisecond/2) / time.Millisecond)
	v.ErrorCode = Success
	return v
}
