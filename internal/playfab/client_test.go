package playfab

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheildo/nexus-clash-connect/internal/acquisition"
)

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"code": 200, "status": "OK", "data": data})
}

func writeAPIError(w http.ResponseWriter, status int, name, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"code": status, "status": http.StatusText(status), "error": name, "errorCode": 1000, "errorMessage": message,
	})
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

// newTestSession starts a fake API and returns a session already holding
// credentials, plus the mux to register handlers on.
func newTestSession(t *testing.T) (*Session, *http.ServeMux) {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{TitleID: "ABCD", BaseURL: srv.URL})
	require.NoError(t, err)
	return client.NewSession(AuthContext{SessionTicket: "ticket", EntityToken: "entity"}), mux
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, ErrNoTitleID)

	c, err := NewClient(Config{TitleID: "ABCD"})
	require.NoError(t, err)
	assert.Equal(t, "https://abcd.playfabapi.com", c.baseURL)
}

func TestLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/Client/LoginWithCustomID", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "ABCD", body["TitleId"])
		assert.Equal(t, "player-1", body["CustomId"])
		assert.Equal(t, true, body["CreateAccount"])
		writeData(w, map[string]any{
			"PlayFabId":     "PF1",
			"SessionTicket": "ticket-1",
			"EntityToken": map[string]any{
				"EntityToken": "entity-1",
				"Entity":      map[string]any{"Id": "E1", "Type": "title_player_account"},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewClient(Config{TitleID: "ABCD", BaseURL: srv.URL})
	require.NoError(t, err)

	session, err := client.Login(context.Background(), "player-1")
	require.NoError(t, err)
	assert.Equal(t, AuthContext{
		PlayFabID: "PF1", SessionTicket: "ticket-1", EntityToken: "entity-1", EntityID: "E1", EntityType: "title_player_account",
	}, session.Auth())
}

func TestLogin_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/Client/LoginWithCustomID", func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusBadRequest, "InvalidTitleId", "Invalid title id")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewClient(Config{TitleID: "ABCD", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Login(context.Background(), "player-1")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)
	assert.Equal(t, "InvalidTitleId", apiErr.ErrorName)
	assert.Equal(t, "Invalid title id", err.Error())
}

func TestListEndpoints(t *testing.T) {
	session, mux := newTestSession(t)
	mux.HandleFunc("/MultiplayerServer/ListQosServersForTitle", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "entity", r.Header.Get("X-EntityToken"))
		assert.Equal(t, true, decodeBody(t, r)["IncludeAllRegions"])
		writeData(w, map[string]any{"QosServers": []map[string]string{
			{"Region": "EastUs", "ServerUrl": "pfmsqosprod2-prodeus.eastus.cloudapp.azure.com"},
			{"Region": "", "ServerUrl": "orphan.example.net"},
			{"Region": "WestEurope", "ServerUrl": "pfmsqosprod2-prodweu.westeurope.cloudapp.azure.com"},
		}})
	})

	eps, err := session.ListEndpoints(context.Background(), true)

	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, "EastUs", eps[0].Region)
	assert.Equal(t, "WestEurope", eps[1].Region)
}

func TestSession_RequiresCredentials(t *testing.T) {
	client, err := NewClient(Config{TitleID: "ABCD", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	s := client.NewSession(AuthContext{})

	_, err = s.ListEndpoints(context.Background(), false)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	_, err = s.ListSessions(context.Background(), "b", "r")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func cloudScriptHandler(t *testing.T, function string, result any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ticket", r.Header.Get("X-Authorization"))
		body := decodeBody(t, r)
		assert.Equal(t, function, body["FunctionName"])
		writeData(w, map[string]any{"FunctionName": function, "FunctionResult": result})
	}
}

func TestListSessions(t *testing.T) {
	summaries := map[string]any{"MultiplayerServerSummaries": []map[string]any{
		{"SessionId": "s-1", "Region": "EastUs", "State": "Active", "ConnectedPlayers": []map[string]string{{"PlayerId": "a"}, {"PlayerId": "b"}}},
		{"SessionId": "s-2", "Region": "EastUs", "State": "StandingBy"},
	}}
	encoded, err := json.Marshal(summaries)
	require.NoError(t, err)

	cases := map[string]any{
		"ObjectResult": summaries,
		"StringResult": string(encoded),
	}
	for name, result := range cases {
		t.Run(name, func(t *testing.T) {
			session, mux := newTestSession(t)
			mux.HandleFunc("/Client/ExecuteCloudScript", cloudScriptHandler(t, "ListServerSummaries", result))

			got, err := session.ListSessions(context.Background(), "build-1", "EastUs")

			require.NoError(t, err)
			assert.Equal(t, []acquisition.SessionSummary{
				{SessionID: "s-1", Region: "EastUs", State: acquisition.StateActive, ConnectedPlayerCount: 2},
				{SessionID: "s-2", Region: "EastUs", State: acquisition.StateStandingBy},
			}, got)
		})
	}
}

func TestListSessions_EmptyOrMalformed(t *testing.T) {
	cases := map[string]any{
		"Null":        nil,
		"EmptyString": "",
		"Garbage":     "{not json",
	}
	for name, result := range cases {
		t.Run(name, func(t *testing.T) {
			session, mux := newTestSession(t)
			mux.HandleFunc("/Client/ExecuteCloudScript", cloudScriptHandler(t, "ListServerSummaries", result))

			_, err := session.ListSessions(context.Background(), "build-1", "EastUs")

			assert.ErrorIs(t, err, acquisition.ErrEmptyPayload)
		})
	}
}

func TestGetSessionDetails(t *testing.T) {
	session, mux := newTestSession(t)
	mux.HandleFunc("/Client/ExecuteCloudScript", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		params := body["FunctionParameter"].(map[string]any)
		assert.Equal(t, "s-1", params["sessionId"])
		writeData(w, map[string]any{"FunctionResult": map[string]any{
			"IPV4Address": "20.1.2.3",
			"Ports":       []map[string]any{{"Name": "game", "Num": 30100, "Protocol": "UDP"}},
		}})
	})

	h, err := session.GetSessionDetails(context.Background(), "build-1", "EastUs", "s-1")

	require.NoError(t, err)
	assert.Equal(t, acquisition.ServerHandle{IPv4Address: "20.1.2.3", Port: 30100, SessionID: "s-1", Region: "EastUs"}, h)
}

func TestGetSessionDetails_ScriptError(t *testing.T) {
	session, mux := newTestSession(t)
	mux.HandleFunc("/Client/ExecuteCloudScript", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, map[string]any{"Error": map[string]string{"Error": "JavascriptException", "Message": "boom"}})
	})

	_, err := session.GetSessionDetails(context.Background(), "build-1", "EastUs", "s-1")

	assert.ErrorContains(t, err, "boom")
}

func TestRequestServer(t *testing.T) {
	t.Run("Allocated", func(t *testing.T) {
		session, mux := newTestSession(t)
		mux.HandleFunc("/MultiplayerServer/RequestMultiplayerServer", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "entity", r.Header.Get("X-EntityToken"))
			body := decodeBody(t, r)
			assert.Equal(t, "build-1", body["BuildId"])
			assert.Equal(t, "fresh", body["SessionId"])
			assert.Equal(t, []any{"NorthEurope"}, body["PreferredRegions"])
			writeData(w, map[string]any{
				"IPV4Address": "52.0.0.9",
				"Ports":       []map[string]any{{"Name": "game", "Num": 7777, "Protocol": "UDP"}},
				"Region":      "NorthEurope",
				"SessionId":   "fresh",
			})
		})

		h, err := session.RequestServer(context.Background(), "build-1", "fresh", []string{"NorthEurope"})

		require.NoError(t, err)
		assert.Equal(t, "52.0.0.9:7777", h.String())
	})

	t.Run("Rejected", func(t *testing.T) {
		session, mux := newTestSession(t)
		mux.HandleFunc("/MultiplayerServer/RequestMultiplayerServer", func(w http.ResponseWriter, r *http.Request) {
			writeAPIError(w, http.StatusTooManyRequests, "MultiplayerServerTooManyRequests", "No standing by servers available")
		})

		_, err := session.RequestServer(context.Background(), "build-1", "fresh", []string{"NorthEurope"})

		assert.EqualError(t, err, "No standing by servers available")
	})

	t.Run("NoPorts", func(t *testing.T) {
		session, mux := newTestSession(t)
		mux.HandleFunc("/MultiplayerServer/RequestMultiplayerServer", func(w http.ResponseWriter, r *http.Request) {
			writeData(w, map[string]any{"IPV4Address": "52.0.0.9"})
		})

		_, err := session.RequestServer(context.Background(), "build-1", "fresh", []string{"NorthEurope"})

		assert.ErrorIs(t, err, acquisition.ErrEmptyPayload)
	})
}
