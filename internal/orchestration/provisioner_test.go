package orchestration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheildo/nexus-clash-connect/internal/acquisition"
	"github.com/cheildo/nexus-clash-connect/internal/connect"
	"github.com/cheildo/nexus-clash-connect/internal/playfab"
	"github.com/cheildo/nexus-clash-connect/internal/qos"
)

type stubSession struct{ connect.Session }

type fakeEngine struct {
	logins   int
	ranks    int
	rankErr  error
	ranked   qos.RankedResult
	handle   acquisition.ServerHandle
	acqErr   error
	acquired []qos.RankedResult
}

func (e *fakeEngine) Login(ctx context.Context, identity string) (connect.Session, error) {
	e.logins++
	return &stubSession{}, nil
}

func (e *fakeEngine) Rank(ctx context.Context, session connect.Session) (qos.RankedResult, error) {
	e.ranks++
	return e.ranked, e.rankErr
}

func (e *fakeEngine) Acquire(ctx context.Context, session connect.Session, ranked qos.RankedResult, extra ...acquisition.Option) (acquisition.ServerHandle, error) {
	e.acquired = append(e.acquired, ranked)
	return e.handle, e.acqErr
}

type memoryCache struct {
	ranked *qos.RankedResult
	puts   int
}

func (c *memoryCache) Get(ctx context.Context) (qos.RankedResult, bool, error) {
	if c.ranked == nil {
		return qos.RankedResult{}, false, nil
	}
	return *c.ranked, true, nil
}

func (c *memoryCache) Put(ctx context.Context, ranked qos.RankedResult) error {
	c.puts++
	c.ranked = &ranked
	return nil
}

type memoryRepo struct {
	records []Acquisition
}

func (r *memoryRepo) RecordAcquisition(ctx context.Context, a Acquisition) error {
	r.records = append(r.records, a)
	return nil
}

func TestProvisioner_CachesRankingAndSession(t *testing.T) {
	engine := &fakeEngine{
		ranked: qos.Rank([]qos.RegionVerdict{{Region: "EastUs", LatencyMs: 12}}),
		handle: acquisition.ServerHandle{IPv4Address: "20.1.2.3", Port: 30000, Region: "EastUs", SessionID: "s-1"},
	}
	cache := &memoryCache{}
	repo := &memoryRepo{}
	p := NewProvisioner(engine, "orchestrator", cache, repo)

	for _, match := range []string{"m-1", "m-2"} {
		h, err := p.Provision(context.Background(), match)
		require.NoError(t, err)
		assert.Equal(t, 30000, h.Port)
	}

	assert.Equal(t, 1, engine.logins)
	assert.Equal(t, 1, engine.ranks)
	assert.Equal(t, 1, cache.puts)
	require.Len(t, engine.acquired, 2)
	assert.Equal(t, "EastUs", engine.acquired[1].Regions[0].Region)

	require.Len(t, repo.records, 2)
	assert.Equal(t, "m-1", repo.records[0].MatchID)
	assert.True(t, repo.records[0].Succeeded)
	assert.Equal(t, "20.1.2.3", repo.records[0].Address)
}

func TestProvisioner_RecordsFailures(t *testing.T) {
	engine := &fakeEngine{
		ranked: qos.Rank(nil),
		acqErr: acquisition.ErrNoServersFound,
	}
	repo := &memoryRepo{}
	p := NewProvisioner(engine, "orchestrator", nil, repo)

	_, err := p.Provision(context.Background(), "m-1")

	assert.ErrorIs(t, err, acquisition.ErrNoServersFound)
	require.Len(t, repo.records, 1)
	assert.False(t, repo.records[0].Succeeded)
	assert.Equal(t, "no servers found", repo.records[0].ErrorMessage)
}

func TestProvisioner_RankErrorResetsSession(t *testing.T) {
	engine := &fakeEngine{rankErr: errors.New("entity token expired")}
	p := NewProvisioner(engine, "orchestrator", &memoryCache{}, nil)

	_, err := p.Provision(context.Background(), "m-1")
	require.Error(t, err)
	_, err = p.Provision(context.Background(), "m-2")
	require.Error(t, err)

	assert.Equal(t, 2, engine.logins)
	assert.Empty(t, engine.acquired)
}

func TestProvisioner_UnauthorizedAcquireResetsSession(t *testing.T) {
	expired := &playfab.APIError{HTTPStatus: 401, ErrorName: "NotAuthenticated", Message: "Entity token expired"}
	engine := &fakeEngine{
		ranked: qos.Rank([]qos.RegionVerdict{{Region: "EastUs", LatencyMs: 12}}),
		acqErr: &acquisition.FailedError{Message: expired.Error(), Cause: expired},
	}
	p := NewProvisioner(engine, "orchestrator", &memoryCache{}, nil)

	_, err := p.Provision(context.Background(), "m-1")
	require.Error(t, err)

	engine.acqErr = nil
	engine.handle = acquisition.ServerHandle{IPv4Address: "20.1.2.3", Port: 30000}
	_, err = p.Provision(context.Background(), "m-2")
	require.NoError(t, err)

	assert.Equal(t, 2, engine.logins)
	assert.Equal(t, 1, engine.ranks, "ranking is still served from the cache")
}

func TestProvisioner_OtherAcquireErrorsKeepSession(t *testing.T) {
	engine := &fakeEngine{
		ranked: qos.Rank([]qos.RegionVerdict{{Region: "EastUs", LatencyMs: 12}}),
		acqErr: &acquisition.FailedError{Message: "throttled", Cause: &playfab.APIError{HTTPStatus: 429, Message: "throttled"}},
	}
	p := NewProvisioner(engine, "orchestrator", &memoryCache{}, nil)

	for _, match := range []string{"m-1", "m-2"} {
		_, err := p.Provision(context.Background(), match)
		require.Error(t, err)
	}

	assert.Equal(t, 1, engine.logins)
}
