package orchestration

// MatchFoundEvent is the data structure for incoming events.
type MatchFoundEvent struct {
	MatchID   string   `json:"matchID"`
	PlayerIDs []string `json:"playerIDs"`
}

// Server status values carried by GameServerReadyEvent.
const (
	StatusReady  = "ready"
	StatusFailed = "failed"
)

// GameServerReadyEvent is the payload for our outgoing events. Failed
// acquisitions are published too so players are not left waiting.
type GameServerReadyEvent struct {
	MatchID    string   `json:"matchID"`
	PlayerIDs  []string `json:"playerIDs"`
	Status     string   `json:"status"`
	ServerAddr string   `json:"serverAddr,omitempty"`
	ServerPort int      `json:"serverPort,omitempty"`
	Region     string   `json:"region,omitempty"`
	SessionID  string   `json:"sessionID,omitempty"`
	Error      string   `json:"error,omitempty"`
}
