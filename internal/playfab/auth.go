package playfab

import (
	"context"
	"log/slog"

	"github.com/cheildo/nexus-clash-connect/internal/qos"
)

// AuthContext carries the credentials returned by a successful login.
type AuthContext struct {
	PlayFabID     string
	SessionTicket string
	EntityToken   string
	EntityID      string
	EntityType    string
}

// Session is a logged-in view of the API. Every call it makes is
// authenticated with the AuthContext it was created with.
type Session struct {
	client *Client
	auth   AuthContext
}

// Login signs in with a custom id, creating the account when needed.
func (c *Client) Login(ctx context.Context, customID string) (*Session, error) {
	req := loginWithCustomIDRequest{
		TitleID:       c.titleID,
		CustomID:      customID,
		CreateAccount: true,
	}

	var res loginResult
	if err := c.post(ctx, "/Client/LoginWithCustomID", nil, req, &res); err != nil {
		slog.Error("PlayFab login failed", "customID", customID, "error", err)
		return nil, err
	}
	if res.SessionTicket == "" || res.EntityToken.EntityToken == "" {
		return nil, ErrNotLoggedIn
	}

	slog.Info("PlayFab login successful", "playfabID", res.PlayFabID)
	return c.NewSession(AuthContext{
		PlayFabID:     res.PlayFabID,
		SessionTicket: res.SessionTicket,
		EntityToken:   res.EntityToken.EntityToken,
		EntityID:      res.EntityToken.Entity.ID,
		EntityType:    res.EntityToken.Entity.Type,
	}), nil
}

// NewSession wraps an existing AuthContext, e.g. one restored from a cache.
func (c *Client) NewSession(auth AuthContext) *Session {
	return &Session{client: c, auth: auth}
}

// Auth returns the credentials the session uses.
func (s *Session) Auth() AuthContext {
	return s.auth
}

func (s *Session) entityHeader() (*authHeader, error) {
	if s.auth.EntityToken == "" {
		return nil, ErrNotLoggedIn
	}
	return &authHeader{name: "X-EntityToken", value: s.auth.EntityToken}, nil
}

func (s *Session) ticketHeader() (*authHeader, error) {
	if s.auth.SessionTicket == "" {
		return nil, ErrNotLoggedIn
	}
	return &authHeader{name: "X-Authorization", value: s.auth.SessionTicket}, nil
}

// ListEndpoints returns the QoS beacons of the title. Entries without a
// region are dropped.
func (s *Session) ListEndpoints(ctx context.Context, includeAllRegions bool) ([]qos.Endpoint, error) {
	header, err := s.entityHeader()
	if err != nil {
		return nil, err
	}

	var res listQosServersResponse
	req := listQosServersRequest{IncludeAllRegions: includeAllRegions}
	if err := s.client.post(ctx, "/MultiplayerServer/ListQosServersForTitle", header, req, &res); err != nil {
		return nil, err
	}

	endpoints := make([]qos.Endpoint, 0, len(res.QosServers))
	for _, srv := range res.QosServers {
		if srv.Region == "" {
			continue
		}
		endpoints = append(endpoints, qos.Endpoint{URL: srv.ServerURL, Region: srv.Region})
	}
	slog.Info("Fetched QoS endpoints", "count", len(endpoints), "includeAllRegions", includeAllRegions)
	return endpoints, nil
}
