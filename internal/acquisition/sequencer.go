package acquisition

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cheildo/nexus-clash-connect/internal/qos"
)

// State is a step of the acquisition state machine.
type State int

const (
	SelectRegion State = iota
	QueryExisting
	FetchDetails
	RequestNew
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case SelectRegion:
		return "SelectRegion"
	case QueryExisting:
		return "QueryExisting"
	case FetchDetails:
		return "FetchDetails"
	case RequestNew:
		return "RequestNew"
	case Succeeded:
		return "Succeeded"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Transition describes one state change.
type Transition struct {
	From      State  `json:"from"`
	To        State  `json:"to"`
	Region    string `json:"region,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithClassifyPolicy sets how non-Active session lists are classified.
func WithClassifyPolicy(p ClassifyPolicy) Option {
	return func(s *Sequencer) { s.policy = p }
}

// WithObserver registers a callback invoked synchronously on every transition.
func WithObserver(fn func(Transition)) Option {
	return func(s *Sequencer) { s.observer = fn }
}

// WithSessionIDs overrides how fresh session ids are generated.
func WithSessionIDs(fn func() string) Option {
	return func(s *Sequencer) { s.newSessionID = fn }
}

// WithLogger sets the sequencer logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) { s.logger = l }
}

// Sequencer turns a latency ranking into a concrete server. Exactly one
// collaborator call is outstanding at a time.
type Sequencer struct {
	collab       Collaborators
	policy       ClassifyPolicy
	observer     func(Transition)
	newSessionID func() string
	logger       *slog.Logger
}

// NewSequencer creates a sequencer over the given collaborators.
func NewSequencer(collab Collaborators, opts ...Option) *Sequencer {
	s := &Sequencer{
		collab:       collab,
		policy:       ClassifyFirstEntry,
		newSessionID: uuid.NewString,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// attempt is the mutable state of a single Acquire call.
type attempt struct {
	build string
	state State
	// region is the ranked region; new servers are always requested there.
	region string
	// sessionRegion is where a reused session lives, used only to look it up.
	sessionRegion string
	sessionID     string
	handle        ServerHandle
	err           error
}

// Acquire drives the state machine until it reaches Succeeded or Failed. The
// only error it returns is a *FailedError.
func (s *Sequencer) Acquire(ctx context.Context, ranked qos.RankedResult, build string) (ServerHandle, error) {
	a := &attempt{build: build, state: SelectRegion}

	for {
		if a.state != Succeeded && a.state != Failed && ctx.Err() != nil {
			s.fail(a, ctx.Err().Error(), ctx.Err())
			continue
		}

		switch a.state {
		case SelectRegion:
			s.selectRegion(a, ranked)
		case QueryExisting:
			s.queryExisting(ctx, a)
		case FetchDetails:
			s.fetchDetails(ctx, a)
		case RequestNew:
			s.requestNew(ctx, a)
		case Succeeded:
			s.logger.Info("Server acquired", "address", a.handle.String(), "region", a.handle.Region, "sessionID", a.handle.SessionID)
			return a.handle, nil
		case Failed:
			s.logger.Error("Server acquisition failed", "region", a.region, "error", a.err)
			return ServerHandle{}, a.err
		}
	}
}

func (s *Sequencer) selectRegion(a *attempt, ranked qos.RankedResult) {
	best, ok := ranked.Best()
	if !ok {
		a.err = ErrNoServersFound
		s.transition(a, Failed, "ranking has no usable region")
		return
	}
	a.region = best.Region
	s.transition(a, QueryExisting, "lowest latency region")
}

func (s *Sequencer) queryExisting(ctx context.Context, a *attempt) {
	summaries, err := s.collab.ListSessions(ctx, a.build, a.region)
	if err != nil {
		s.logger.Warn("Listing sessions failed, requesting a new server", "region", a.region, "error", err)
		s.transition(a, RequestNew, "session listing unavailable")
		return
	}
	if len(summaries) == 0 {
		s.transition(a, RequestNew, "no sessions listed")
		return
	}

	chosen, class := Classify(summaries, s.policy)
	if !class.Reusable() {
		s.transition(a, RequestNew, "no active session, "+class.String())
		return
	}

	a.sessionID = chosen.SessionID
	a.sessionRegion = a.region
	if chosen.Region != "" {
		a.sessionRegion = chosen.Region
	}
	s.transition(a, FetchDetails, "session is "+class.String())
}

func (s *Sequencer) fetchDetails(ctx context.Context, a *attempt) {
	handle, err := s.collab.GetSessionDetails(ctx, a.build, a.sessionRegion, a.sessionID)
	if err == nil && !handle.valid() {
		err = ErrEmptyPayload
	}
	if err != nil {
		s.logger.Warn("Session details unavailable, requesting a new server", "sessionID", a.sessionID, "error", err)
		s.transition(a, RequestNew, "session details unavailable")
		return
	}

	if handle.SessionID == "" {
		handle.SessionID = a.sessionID
	}
	if handle.Region == "" {
		handle.Region = a.sessionRegion
	}
	a.handle = handle
	s.transition(a, Succeeded, "joined existing session")
}

func (s *Sequencer) requestNew(ctx context.Context, a *attempt) {
	a.sessionID = s.newSessionID()

	handle, err := s.collab.RequestServer(ctx, a.build, a.sessionID, []string{a.region})
	if err != nil {
		s.fail(a, err.Error(), err)
		return
	}
	if !handle.valid() {
		s.fail(a, "allocation returned no address", nil)
		return
	}

	if handle.SessionID == "" {
		handle.SessionID = a.sessionID
	}
	if handle.Region == "" {
		handle.Region = a.region
	}
	a.handle = handle
	s.transition(a, Succeeded, "allocated new session")
}

func (s *Sequencer) fail(a *attempt, msg string, cause error) {
	a.err = &FailedError{Message: msg, Cause: cause}
	s.transition(a, Failed, msg)
}

func (s *Sequencer) transition(a *attempt, to State, reason string) {
	t := Transition{From: a.state, To: to, Region: a.region, SessionID: a.sessionID, Reason: reason}
	s.logger.Info("Acquisition transition", "from", t.From.String(), "to", t.To.String(), "region", t.Region, "reason", reason)
	a.state = to
	if s.observer != nil {
		s.observer(t)
	}
}
