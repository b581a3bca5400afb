package gateway

import "encoding/json"

// Op is a gateway opcode.
type Op int

const (
	OpDispatch            Op = 0
	OpHeartbeat           Op = 1
	OpIdentify            Op = 2
	OpPresenceUpdate      Op = 3
	OpResume              Op = 6
	OpReconnect           Op = 7
	OpRequestGuildMembers Op = 8
	OpInvalidSession      Op = 9
	OpHello               Op = 10
	OpHeartbeatAck        Op = 11
)

// Envelope is the wire frame around every gateway payload. Seq and Type
// are only meaningful for OpDispatch.
type Envelope struct {
	Op   Op              `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
	Seq  int64           `json:"s,omitempty"`
	Type string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

// Properties describes the connecting client to the service.
type Properties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Presence is the initial presence sent with Identify.
type Presence struct {
	Status string `json:"status"`
	AFK    bool   `json:"afk"`
}

type identifyData struct {
	Token        string     `json:"token"`
	Properties   Properties `json:"properties"`
	Compress     bool       `json:"compress"`
	Capabilities int        `json:"capabilities,omitempty"`
	Presence     *Presence  `json:"presence,omitempty"`
}

type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

type requestGuildMembersData struct {
	GuildID string `json:"guild_id"`
	Query   string `json:"query"`
	Limit   int    `json:"limit"`
}
