package protocol

import "encoding/json"

// EventType identifies a server-pushed notification.
type EventType string

const (
	EventPlayerJoined        EventType = "PlayerJoined"
	EventPlayerLeft          EventType = "PlayerLeft"
	EventPlayerKicked        EventType = "PlayerKicked"
	EventYouWereKicked       EventType = "YouWereKicked"
	EventLobbyClosed         EventType = "LobbyClosed"
	EventChatMessageReceived EventType = "ChatMessageReceived"
	EventLobbyInviteReceived EventType = "LobbyInviteReceived"
	EventLobbyStateUpdated   EventType = "LobbyStateUpdated"
	EventGameStarted         EventType = "GameStarted"
	EventCardDrawn           EventType = "CardDrawn"
	EventPlayerWon           EventType = "PlayerWon"
	EventGameEnded           EventType = "GameEnded"
	EventFalseLoteriaResult  EventType = "FalseLoteriaResultReceived"
	EventBoardSelected       EventType = "BoardSelected"
	EventFriendRequest       EventType = "FriendRequestReceived"
	EventFriendStatusChanged EventType = "FriendStatusChanged"
)

// Player is one roster entry, owned by its lobby.
type Player struct {
	ID       int    `json:"id"`
	Nickname string `json:"nickname"`
	IsHost   bool   `json:"is_host"`
}

// LobbySnapshot is the authoritative full lobby state used for hydration.
type LobbySnapshot struct {
	Code    string   `json:"code"`
	Players []Player `json:"players"`
	Chat    []string `json:"chat"`
}

// Card is one drawn Loteria card.
type Card struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type PlayerJoinedPayload struct {
	Player Player `json:"player"`
}

type PlayerLeftPayload struct {
	PlayerID int `json:"player_id"`
}

type PlayerKickedPayload struct {
	PlayerID int `json:"player_id"`
}

type ChatMessagePayload struct {
	Nickname string `json:"nickname"`
	Text     string `json:"text"`
}

type LobbyInvitePayload struct {
	Code         string `json:"code"`
	FromUserID   int    `json:"from_user_id"`
	FromNickname string `json:"from_nickname"`
}

type LobbyStateUpdatedPayload struct {
	Snapshot LobbySnapshot `json:"snapshot"`
}

type GameStartedPayload struct {
	Code string `json:"code"`
}

type CardDrawnPayload struct {
	Card Card `json:"card"`
}

type PlayerWonPayload struct {
	PlayerID int    `json:"player_id"`
	Nickname string `json:"nickname"`
}

// GameEndedPayload closes a round. SaveError carries a deferred server-side
// persistence failure when the deck ran out with no winner.
type GameEndedPayload struct {
	WinnerID      int    `json:"winner_id,omitempty"`
	WinnerName    string `json:"winner_name,omitempty"`
	DeckExhausted bool   `json:"deck_exhausted,omitempty"`
	SaveError     string `json:"save_error,omitempty"`
}

type FalseLoteriaResultPayload struct {
	Declarer           string `json:"declarer"`
	Challenger         string `json:"challenger"`
	DeclarerWasCorrect bool   `json:"declarer_was_correct"`
}

type BoardSelectedPayload struct {
	PlayerID int `json:"player_id"`
	BoardID  int `json:"board_id"`
}

type FriendRequestPayload struct {
	FromUserID   int    `json:"from_user_id"`
	FromNickname string `json:"from_nickname"`
}

type FriendStatusChangedPayload struct {
	UserID int  `json:"user_id"`
	Online bool `json:"online"`
}

// ParseEventPayload decodes an event envelope's payload into its typed
// struct. Unknown event types return (nil, nil) so new server events do not
// break older clients.
func ParseEventPayload(env *Envelope) (interface{}, error) {
	switch EventType(env.Type) {
	case EventPlayerJoined:
		return decode[PlayerJoinedPayload](env.Payload)
	case EventPlayerLeft:
		return decode[PlayerLeftPayload](env.Payload)
	case EventPlayerKicked:
		return decode[PlayerKickedPayload](env.Payload)
	case EventYouWereKicked, EventLobbyClosed:
		return struct{}{}, nil
	case EventChatMessageReceived:
		return decode[ChatMessagePayload](env.Payload)
	case EventLobbyInviteReceived:
		return decode[LobbyInvitePayload](env.Payload)
	case EventLobbyStateUpdated:
		return decode[LobbyStateUpdatedPayload](env.Payload)
	case EventGameStarted:
		return decode[GameStartedPayload](env.Payload)
	case EventCardDrawn:
		return decode[CardDrawnPayload](env.Payload)
	case EventPlayerWon:
		return decode[PlayerWonPayload](env.Payload)
	case EventGameEnded:
		return decode[GameEndedPayload](env.Payload)
	case EventFalseLoteriaResult:
		return decode[FalseLoteriaResultPayload](env.Payload)
	case EventBoardSelected:
		return decode[BoardSelectedPayload](env.Payload)
	case EventFriendRequest:
		return decode[FriendRequestPayload](env.Payload)
	case EventFriendStatusChanged:
		return decode[FriendStatusChangedPayload](env.Payload)
	default:
		return nil, nil
	}
}

func decode[T any](raw json.RawMessage) (interface{}, error) {
	var payload T
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
