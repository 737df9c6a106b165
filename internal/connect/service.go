package connect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cheildo/nexus-clash-connect/internal/acquisition"
	"github.com/cheildo/nexus-clash-connect/internal/qos"
)

// Session is an authenticated handle on the hosting backend.
type Session interface {
	ListEndpoints(ctx context.Context, includeAllRegions bool) ([]qos.Endpoint, error)
	acquisition.Collaborators
}

// Authenticator logs an identity into the hosting backend.
type Authenticator interface {
	Login(ctx context.Context, identity string) (Session, error)
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, identity string) (Session, error)

func (f AuthenticatorFunc) Login(ctx context.Context, identity string) (Session, error) {
	return f(ctx, identity)
}

// Service runs the whole connect flow: login, endpoint discovery, a probe
// round and server acquisition.
type Service struct {
	auth        Authenticator
	coordinator *qos.Coordinator
	cfg         Config
	seqOpts     []acquisition.Option
}

// NewService wires a service from its collaborators.
func NewService(auth Authenticator, coordinator *qos.Coordinator, cfg Config, seqOpts ...acquisition.Option) *Service {
	opts := append([]acquisition.Option{acquisition.WithClassifyPolicy(cfg.ClassifyPolicy)}, seqOpts...)
	return &Service{
		auth:        auth,
		coordinator: coordinator,
		cfg:         cfg,
		seqOpts:     opts,
	}
}

// Login authenticates identity.
func (s *Service) Login(ctx context.Context, identity string) (Session, error) {
	session, err := s.auth.Login(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return session, nil
}

// Rank lists the candidate endpoints and runs one probe round over them.
func (s *Service) Rank(ctx context.Context, session Session) (qos.RankedResult, error) {
	endpoints, err := session.ListEndpoints(ctx, s.cfg.IncludeAllRegions)
	if err != nil {
		return qos.RankedResult{}, fmt.Errorf("failed to list endpoints: %w", err)
	}
	return s.coordinator.Probe(ctx, endpoints), nil
}

// Acquire resolves a ranking to a server. extra options are appended to the
// configured sequencer options for this call only.
func (s *Service) Acquire(ctx context.Context, session Session, ranked qos.RankedResult, extra ...acquisition.Option) (acquisition.ServerHandle, error) {
	opts := append(append([]acquisition.Option(nil), s.seqOpts...), extra...)
	seq := acquisition.NewSequencer(session, opts...)
	return seq.Acquire(ctx, ranked, s.cfg.BuildID)
}

// Connect performs the full flow for one identity.
func (s *Service) Connect(ctx context.Context, identity string) (acquisition.ServerHandle, error) {
	session, err := s.Login(ctx, identity)
	if err != nil {
		return acquisition.ServerHandle{}, err
	}

	ranked, err := s.Rank(ctx, session)
	if err != nil {
		return acquisition.ServerHandle{}, err
	}
	if ranked.ErrorCode == qos.NoResult {
		slog.Warn("No region answered the probe round", "message", ranked.ErrorMessage)
	}
	return s.Acquire(ctx, session, ranked)
}
