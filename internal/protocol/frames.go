package protocol

import "encoding/json"

// FrameKind discriminates the three envelope flavors on the duplex channel.
type FrameKind string

const (
	FrameRequest  FrameKind = "request"
	FrameResponse FrameKind = "response"
	FrameEvent    FrameKind = "event"
)

// Envelope is the single frame shape exchanged on the websocket. Requests
// and responses carry a correlation ID; server pushes are events with no ID.
type Envelope struct {
	Kind    FrameKind       `json:"kind"`
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *Fault          `json:"error,omitempty"`
}

// Fault is the business-rule rejection payload attached to a failed response.
type Fault struct {
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// Enumerated error-code tokens the server attaches to faulted responses.
// The presentation layer owns the code -> user message mapping.
const (
	CodeUserOffline        = "USER_OFFLINE"
	CodeLobbyFull          = "LOBBY_FULL"
	CodeLobbyNotFound      = "LOBBY_NOT_FOUND"
	CodeGameLobbyNotFound  = "GAME_LOBBY_NOT_FOUND"
	CodeFriendDuplicate    = "FRIEND_DUPLICATE"
	CodeFriendNotFound     = "FRIEND_NOT_FOUND"
	CodeNotHost            = "NOT_HOST"
	CodeGameInProgress     = "GAME_IN_PROGRESS"
	CodeInvalidDeclaration = "INVALID_DECLARATION"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeSaveFailed         = "SAVE_FAILED"
)
