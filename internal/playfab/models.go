package playfab

import "encoding/json"

type loginWithCustomIDRequest struct {
	TitleID       string `json:"TitleId"`
	CustomID      string `json:"CustomId"`
	CreateAccount bool   `json:"CreateAccount"`
}

type entityKey struct {
	ID   string `json:"Id"`
	Type string `json:"Type"`
}

type entityTokenResponse struct {
	Entity      entityKey `json:"Entity"`
	EntityToken string    `json:"EntityToken"`
}

type loginResult struct {
	PlayFabID     string              `json:"PlayFabId"`
	SessionTicket string              `json:"SessionTicket"`
	EntityToken   entityTokenResponse `json:"EntityToken"`
}

type listQosServersRequest struct {
	IncludeAllRegions bool `json:"IncludeAllRegions"`
}

type qosServer struct {
	Region    string `json:"Region"`
	ServerURL string `json:"ServerUrl"`
}

type listQosServersResponse struct {
	QosServers []qosServer `json:"QosServers"`
}

type executeCloudScriptRequest struct {
	FunctionName            string `json:"FunctionName"`
	FunctionParameter       any    `json:"FunctionParameter"`
	GeneratePlayStreamEvent bool   `json:"GeneratePlayStreamEvent"`
}

type scriptExecutionError struct {
	Error   string `json:"Error"`
	Message string `json:"Message"`
}

type executeCloudScriptResult struct {
	FunctionName   string                `json:"FunctionName"`
	FunctionResult json.RawMessage       `json:"FunctionResult"`
	Error          *scriptExecutionError `json:"Error"`
}

type connectedPlayer struct {
	PlayerID string `json:"PlayerId"`
}

type serverSummary struct {
	ServerID         string            `json:"ServerId"`
	SessionID        string            `json:"SessionId"`
	Region           string            `json:"Region"`
	State            string            `json:"State"`
	ConnectedPlayers []connectedPlayer `json:"ConnectedPlayers"`
}

type serverSummaries struct {
	MultiplayerServerSummaries []serverSummary `json:"MultiplayerServerSummaries"`
}

type port struct {
	Name     string `json:"Name"`
	Num      int    `json:"Num"`
	Protocol string `json:"Protocol"`
}

// serverDetails is shared by RequestMultiplayerServer and the details script.
type serverDetails struct {
	IPV4Address string `json:"IPV4Address"`
	Ports       []port `json:"Ports"`
	Region      string `json:"Region"`
	SessionID   string `json:"SessionId"`
	ServerID    string `json:"ServerId"`
	State       string `json:"State"`
}

type requestMultiplayerServerRequest struct {
	BuildID          string   `json:"BuildId"`
	SessionID        string   `json:"SessionId"`
	PreferredRegions []string `json:"PreferredRegions"`
}
