package qos

import (
	"errors"
	"math"
	"time"
)

// Defaults used when a probe round is configured without explicit values.
const (
	DefaultPingsPerRegion = 10
	DefaultParallelism    = 4
	DefaultTimeoutsToFail = 3
	DefaultTimeout        = 250 * time.Millisecond
)

// NoLatency is reported for a region that produced no successful ping.
// It keeps failed regions at the end of an ascending ranking.
const NoLatency = math.MaxInt

const noResultMessage = "no valid results from any QoS server"

var (
	// ErrNoResult is returned when every endpoint in a round failed.
	ErrNoResult = errors.New(noResultMessage)
	// ErrNoEndpoints is returned when a round is started with nothing to probe.
	ErrNoEndpoints = errors.New("no endpoints to probe")
)

// Endpoint is a candidate hosting location.
type Endpoint struct {
	URL    string `json:"url"`
	Region string `json:"region"`
}

// ErrorCode classifies a verdict or a whole ranking.
type ErrorCode int

const (
	Success ErrorCode = iota
	NoResult
)

func (c ErrorCode) String() string {
	switch c {
	case Success:
		return "Success"
	case NoResult:
		return "NoResult"
	default:
		return "Unknown"
	}
}

// PingOutcome is the result of a single ping.
type PingOutcome struct {
	Succeeded bool
	Latency   time.Duration
}

// RegionVerdict is the final judgment for one endpoint after a probe round.
type RegionVerdict struct {
	Region    string    `json:"region"`
	URL       string    `json:"url"`
	LatencyMs int       `json:"latencyMs"`
	ErrorCode ErrorCode `json:"errorCode"`
}

// RankedResult holds every verdict of a round sorted by ascending latency.
type RankedResult struct {
	Regions      []RegionVerdict `json:"regions"`
	ErrorCode    ErrorCode       `json:"errorCode"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

// Best returns the lowest-latency region, or false when the ranking holds no
// usable region.
func (r RankedResult) Best() (RegionVerdict, bool) {
	if r.ErrorCode == NoResult || len(r.Regions) == 0 {
		return RegionVerdict{}, false
	}
	return r.Regions[0], true
}

// Err converts the ranking's error code into an error value.
func (r RankedResult) Err() error {
	if r.ErrorCode == Success {
		return nil
	}
	if len(r.Regions) == 0 {
		return ErrNoEndpoints
	}
	return ErrNoResult
}

// Options configure one probe round.
type Options struct {
	Timeout        time.Duration
	PingsPerRegion int
	Parallelism    int
	TimeoutsToFail int
}

// DefaultOptions returns the stock probe configuration.
func DefaultOptions() Options {
	return Options{
		Timeout:        DefaultTimeout,
		PingsPerRegion: DefaultPingsPerRegion,
		Parallelism:    DefaultParallelism,
		TimeoutsToFail: DefaultTimeoutsToFail,
	}
}

// withDefaults replaces every non-positive field with its default.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.PingsPerRegion <= 0 {
		o.PingsPerRegion = d.PingsPerRegion
	}
	if o.Parallelism <= 0 {
		o.Parallelism = d.Parallelism
	}
	if o.TimeoutsToFail <= 0 {
		o.TimeoutsToFail = d.TimeoutsToFail
	}
	return o
}
