package orchestration

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cheildo/nexus-clash-connect/internal/acquisition"
	"github.com/cheildo/nexus-clash-connect/internal/connect"
	"github.com/cheildo/nexus-clash-connect/internal/playfab"
	"github.com/cheildo/nexus-clash-connect/internal/qos"
)

// Engine is the part of connect.Service the provisioner relies on.
type Engine interface {
	Login(ctx context.Context, identity string) (connect.Session, error)
	Rank(ctx context.Context, session connect.Session) (qos.RankedResult, error)
	Acquire(ctx context.Context, session connect.Session, ranked qos.RankedResult, extra ...acquisition.Option) (acquisition.ServerHandle, error)
}

// Provisioner acquires a game server for a match. The backend session is
// opened lazily and shared across matches.
type Provisioner struct {
	engine   Engine
	identity string
	cache    RankingCache
	repo     Repository

	mu      sync.Mutex
	session connect.Session
}

func NewProvisioner(engine Engine, identity string, cache RankingCache, repo Repository) *Provisioner {
	return &Provisioner{
		engine:   engine,
		identity: identity,
		cache:    cache,
		repo:     repo,
	}
}

// Provision acquires a server for the match and records the outcome.
func (p *Provisioner) Provision(ctx context.Context, matchID string) (acquisition.ServerHandle, error) {
	start := time.Now()
	handle, err := p.provision(ctx, matchID)

	record := Acquisition{
		MatchID:   matchID,
		Region:    handle.Region,
		SessionID: handle.SessionID,
		Address:   handle.IPv4Address,
		Port:      handle.Port,
		Succeeded: err == nil,
		Duration:  time.Since(start),
	}
	if err != nil {
		record.ErrorMessage = err.Error()
	}
	if p.repo != nil {
		if recErr := p.repo.RecordAcquisition(ctx, record); recErr != nil {
			slog.Warn("Acquisition outcome not recorded", "matchID", matchID, "error", recErr)
		}
	}
	return handle, err
}

func (p *Provisioner) provision(ctx context.Context, matchID string) (acquisition.ServerHandle, error) {
	session, err := p.currentSession(ctx)
	if err != nil {
		return acquisition.ServerHandle{}, err
	}

	ranked, err := p.ranking(ctx, session)
	if err != nil {
		p.resetSession()
		return acquisition.ServerHandle{}, err
	}

	observe := acquisition.WithObserver(func(t acquisition.Transition) {
		slog.Debug("Match acquisition step", "matchID", matchID, "to", t.To.String(), "reason", t.Reason)
	})
	handle, err := p.engine.Acquire(ctx, session, ranked, observe)
	if sessionExpired(err) {
		slog.Warn("Backend session rejected, logging in again on next match", "matchID", matchID)
		p.resetSession()
	}
	return handle, err
}

// sessionExpired reports whether err came from a rejected login ticket.
func sessionExpired(err error) bool {
	var apiErr *playfab.APIError
	return errors.As(err, &apiErr) && apiErr.HTTPStatus == http.StatusUnauthorized
}

// ranking returns a cached ranking when one is available, otherwise it runs a
// probe round and caches the result.
func (p *Provisioner) ranking(ctx context.Context, session connect.Session) (qos.RankedResult, error) {
	if p.cache != nil {
		if ranked, ok, err := p.cache.Get(ctx); err == nil && ok {
			slog.Debug("Using cached region ranking")
			return ranked, nil
		}
	}

	ranked, err := p.engine.Rank(ctx, session)
	if err != nil {
		return qos.RankedResult{}, err
	}
	if p.cache != nil {
		if err := p.cache.Put(ctx, ranked); err != nil {
			slog.Warn("Region ranking not cached", "error", err)
		}
	}
	return ranked, nil
}

func (p *Provisioner) currentSession(ctx context.Context) (connect.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil {
		return p.session, nil
	}
	session, err := p.engine.Login(ctx, p.identity)
	if err != nil {
		return nil, err
	}
	p.session = session
	return session, nil
}

func (p *Provisioner) resetSession() {
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()
}
