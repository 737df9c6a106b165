package connect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheildo/nexus-clash-connect/internal/acquisition"
	"github.com/cheildo/nexus-clash-connect/internal/qos"
)

type fakeSession struct {
	endpoints    []qos.Endpoint
	endpointsErr error
	summaries    []acquisition.SessionSummary
	allocated    acquisition.ServerHandle
	allocRegion  string
	includeAll   bool
}

func (f *fakeSession) ListEndpoints(ctx context.Context, includeAllRegions bool) ([]qos.Endpoint, error) {
	f.includeAll = includeAllRegions
	return f.endpoints, f.endpointsErr
}

func (f *fakeSession) ListSessions(ctx context.Context, build, region string) ([]acquisition.SessionSummary, error) {
	return f.summaries, nil
}

func (f *fakeSession) GetSessionDetails(ctx context.Context, build, region, sessionID string) (acquisition.ServerHandle, error) {
	return acquisition.ServerHandle{}, acquisition.ErrEmptyPayload
}

func (f *fakeSession) RequestServer(ctx context.Context, build, sessionID string, preferredRegions []string) (acquisition.ServerHandle, error) {
	f.allocRegion = preferredRegions[0]
	return f.allocated, nil
}

func latencyPinger(latencies map[string]time.Duration) qos.Pinger {
	return qos.PingerFunc(func(ctx context.Context, ep qos.Endpoint) (time.Duration, error) {
		if d, ok := latencies[ep.Region]; ok {
			return d, nil
		}
		return 0, context.DeadlineExceeded
	})
}

func newTestService(session *fakeSession, pinger qos.Pinger) *Service {
	auth := AuthenticatorFunc(func(ctx context.Context, identity string) (Session, error) {
		if identity == "" {
			return nil, errors.New("identity required")
		}
		return session, nil
	})
	cfg := Config{BuildID: "build-1", IncludeAllRegions: true}
	coordinator := qos.NewCoordinator(pinger, qos.Options{PingsPerRegion: 3, Parallelism: 2})
	return NewService(auth, coordinator, cfg)
}

func TestService_Connect(t *testing.T) {
	session := &fakeSession{
		endpoints: []qos.Endpoint{{URL: "a", Region: "EastUs"}, {URL: "b", Region: "WestEurope"}},
		allocated: acquisition.ServerHandle{IPv4Address: "52.0.0.1", Port: 7777},
	}
	svc := newTestService(session, latencyPinger(map[string]time.Duration{
		"EastUs":     80 * time.Millisecond,
		"WestEurope": 25 * time.Millisecond,
	}))

	handle, err := svc.Connect(context.Background(), "player-1")

	require.NoError(t, err)
	assert.Equal(t, "52.0.0.1:7777", handle.String())
	assert.Equal(t, "WestEurope", session.allocRegion)
	assert.True(t, session.includeAll)
}

func TestService_Connect_AllRegionsSilent(t *testing.T) {
	session := &fakeSession{endpoints: []qos.Endpoint{{URL: "a", Region: "EastUs"}}}
	svc := newTestService(session, latencyPinger(nil))

	_, err := svc.Connect(context.Background(), "player-1")

	assert.ErrorIs(t, err, acquisition.ErrNoServersFound)
	assert.Empty(t, session.allocRegion)
}

func TestService_Connect_Errors(t *testing.T) {
	t.Run("Login", func(t *testing.T) {
		svc := newTestService(&fakeSession{}, latencyPinger(nil))
		_, err := svc.Connect(context.Background(), "")
		assert.ErrorContains(t, err, "login failed")
	})

	t.Run("Endpoints", func(t *testing.T) {
		svc := newTestService(&fakeSession{endpointsErr: errors.New("forbidden")}, latencyPinger(nil))
		_, err := svc.Connect(context.Background(), "player-1")
		assert.ErrorContains(t, err, "failed to list endpoints")
	})
}

func TestService_AcquireObserver(t *testing.T) {
	session := &fakeSession{allocated: acquisition.ServerHandle{IPv4Address: "52.0.0.1", Port: 7777}}
	svc := newTestService(session, latencyPinger(nil))
	ranked := qos.Rank([]qos.RegionVerdict{{Region: "EastUs", LatencyMs: 10}})

	var seen []acquisition.State
	_, err := svc.Acquire(context.Background(), session, ranked, acquisition.WithObserver(func(tr acquisition.Transition) {
		seen = append(seen, tr.To)
	}))

	require.NoError(t, err)
	assert.Equal(t, []acquisition.State{acquisition.QueryExisting, acquisition.RequestNew, acquisition.Succeeded}, seen)
}

func TestConfigFromViper(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("playfab.build_id", "build-1")

		cfg, err := ConfigFromViper(v)

		require.NoError(t, err)
		assert.Equal(t, qos.DefaultOptions(), cfg.Probe)
		assert.Equal(t, "udp", cfg.Protocol)
		assert.Equal(t, qos.DefaultQoSPort, cfg.Port)
		assert.Equal(t, acquisition.ClassifyFirstEntry, cfg.ClassifyPolicy)
		assert.IsType(t, &qos.UDPPinger{}, cfg.Pinger())
	})

	t.Run("Overrides", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("playfab.build_id", "build-1")
		v.Set("qos.protocol", "TCP")
		v.Set("qos.timeout_ms", 500)
		v.Set("acquisition.classify_policy", "scan")

		cfg, err := ConfigFromViper(v)

		require.NoError(t, err)
		assert.Equal(t, 500*time.Millisecond, cfg.Probe.Timeout)
		assert.Equal(t, acquisition.ClassifyScanAll, cfg.ClassifyPolicy)
		assert.IsType(t, &qos.TCPPinger{}, cfg.Pinger())
	})

	t.Run("Invalid", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		_, err := ConfigFromViper(v)
		assert.ErrorContains(t, err, "build_id")

		v.Set("playfab.build_id", "build-1")
		v.Set("qos.protocol", "icmp")
		_, err = ConfigFromViper(v)
		assert.ErrorContains(t, err, "icmp")
	})
}
