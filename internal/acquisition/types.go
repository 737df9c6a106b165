package acquisition

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoServersFound is the failure reported when the ranking holds no
	// usable region.
	ErrNoServersFound = &FailedError{Message: "no servers found"}
	// ErrEmptyPayload marks a collaborator response that carried no data.
	ErrEmptyPayload = errors.New("empty payload")
)

// SessionState is the lifecycle state of a hosted session.
type SessionState string

const (
	StateStandingBy SessionState = "StandingBy"
	StateActive     SessionState = "Active"
)

// SessionSummary is a snapshot returned by the session listing service.
type SessionSummary struct {
	SessionID            string       `json:"sessionId"`
	Region               string       `json:"region"`
	State                SessionState `json:"state"`
	ConnectedPlayerCount int          `json:"connectedPlayerCount"`
}

// ServerHandle is where a client should connect.
type ServerHandle struct {
	IPv4Address string `json:"ipv4Address"`
	Port        int    `json:"port"`
	SessionID   string `json:"sessionId,omitempty"`
	Region      string `json:"region,omitempty"`
}

func (h ServerHandle) String() string {
	return fmt.Sprintf("%s:%d", h.IPv4Address, h.Port)
}

// valid reports whether the handle names a reachable address.
func (h ServerHandle) valid() bool {
	return h.IPv4Address != "" && h.Port > 0
}

// FailedError is the single terminal error an acquisition can end with.
type FailedError struct {
	Message string
	// Cause is the collaborator error behind Message, if any.
	Cause error
}

func (e *FailedError) Error() string {
	return e.Message
}

func (e *FailedError) Unwrap() error {
	return e.Cause
}

// Is matches any FailedError with the same message, so ErrNoServersFound works
// with errors.Is.
func (e *FailedError) Is(target error) bool {
	t, ok := target.(*FailedError)
	return ok && t.Message == e.Message
}

// SessionLister lists the sessions of a build in one region.
type SessionLister interface {
	ListSessions(ctx context.Context, build, region string) ([]SessionSummary, error)
}

// SessionDetailer resolves a session to its address and port.
type SessionDetailer interface {
	GetSessionDetails(ctx context.Context, build, region, sessionID string) (ServerHandle, error)
}

// Allocator requests a new server for a build.
type Allocator interface {
	RequestServer(ctx context.Context, build, sessionID string, preferredRegions []string) (ServerHandle, error)
}

// Collaborators bundles every external call the sequencer makes.
type Collaborators interface {
	SessionLister
	SessionDetailer
	Allocator
}
