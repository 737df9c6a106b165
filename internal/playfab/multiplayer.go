package playfab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cheildo/nexus-clash-connect/internal/acquisition"
)

// Cloud script functions deployed with the title.
const (
	listSummariesFunction = "ListServerSummaries"
	serverDetailsFunction = "MultiplayerServerDetails"
)

// ListSessions runs the session listing cloud script for a build and region.
// A missing or unparsable result is reported as acquisition.ErrEmptyPayload.
func (s *Session) ListSessions(ctx context.Context, build, region string) ([]acquisition.SessionSummary, error) {
	var data serverSummaries
	params := map[string]string{"buildId": build, "region": region}
	if err := s.executeCloudScript(ctx, listSummariesFunction, params, &data); err != nil {
		return nil, err
	}

	out := make([]acquisition.SessionSummary, 0, len(data.MultiplayerServerSummaries))
	for _, sum := range data.MultiplayerServerSummaries {
		out = append(out, acquisition.SessionSummary{
			SessionID:            sum.SessionID,
			Region:               sum.Region,
			State:                acquisition.SessionState(sum.State),
			ConnectedPlayerCount: len(sum.ConnectedPlayers),
		})
	}
	return out, nil
}

// GetSessionDetails runs the details cloud script for one session.
func (s *Session) GetSessionDetails(ctx context.Context, build, region, sessionID string) (acquisition.ServerHandle, error) {
	var data serverDetails
	params := map[string]string{"buildId": build, "region": region, "sessionId": sessionID}
	if err := s.executeCloudScript(ctx, serverDetailsFunction, params, &data); err != nil {
		return acquisition.ServerHandle{}, err
	}
	return data.handle(region, sessionID)
}

// RequestServer asks the allocation service for a new server.
func (s *Session) RequestServer(ctx context.Context, build, sessionID string, preferredRegions []string) (acquisition.ServerHandle, error) {
	header, err := s.entityHeader()
	if err != nil {
		return acquisition.ServerHandle{}, err
	}

	req := requestMultiplayerServerRequest{
		BuildID:          build,
		SessionID:        sessionID,
		PreferredRegions: preferredRegions,
	}
	var data serverDetails
	if err := s.client.post(ctx, "/MultiplayerServer/RequestMultiplayerServer", header, req, &data); err != nil {
		return acquisition.ServerHandle{}, err
	}

	fallbackRegion := ""
	if len(preferredRegions) > 0 {
		fallbackRegion = preferredRegions[0]
	}
	handle, err := data.handle(fallbackRegion, sessionID)
	if err != nil {
		return acquisition.ServerHandle{}, err
	}
	slog.Info("Multiplayer server allocated", "address", handle.String(), "region", handle.Region, "sessionID", handle.SessionID)
	return handle, nil
}

func (s *Session) executeCloudScript(ctx context.Context, function string, params, out any) error {
	header, err := s.ticketHeader()
	if err != nil {
		return err
	}

	req := executeCloudScriptRequest{
		FunctionName:            function,
		FunctionParameter:       params,
		GeneratePlayStreamEvent: true,
	}
	var res executeCloudScriptResult
	if err := s.client.post(ctx, "/Client/ExecuteCloudScript", header, req, &res); err != nil {
		return err
	}
	if res.Error != nil {
		return fmt.Errorf("cloud script %s: %s: %s", function, res.Error.Error, res.Error.Message)
	}
	return decodeFunctionResult(res.FunctionResult, out)
}

// decodeFunctionResult accepts either a JSON object or a string holding one.
func decodeFunctionResult(raw json.RawMessage, out any) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return acquisition.ErrEmptyPayload
	}
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return fmt.Errorf("%w: %v", acquisition.ErrEmptyPayload, err)
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			return acquisition.ErrEmptyPayload
		}
		trimmed = inner
	}
	if err := json.Unmarshal([]byte(trimmed), out); err != nil {
		return fmt.Errorf("%w: %v", acquisition.ErrEmptyPayload, err)
	}
	return nil
}

var errNoPorts = errors.New("server has no ports")

func (d serverDetails) handle(region, sessionID string) (acquisition.ServerHandle, error) {
	if d.IPV4Address == "" {
		return acquisition.ServerHandle{}, acquisition.ErrEmptyPayload
	}
	if len(d.Ports) == 0 {
		return acquisition.ServerHandle{}, fmt.Errorf("%w: %v", acquisition.ErrEmptyPayload, errNoPorts)
	}
	h := acquisition.ServerHandle{
		IPv4Address: d.IPV4Address,
		Port:        d.Ports[0].Num,
		SessionID:   d.SessionID,
		Region:      d.Region,
	}
	if h.SessionID == "" {
		h.SessionID = sessionID
	}
	if h.Region == "" {
		h.Region = region
	}
	return h, nil
}
