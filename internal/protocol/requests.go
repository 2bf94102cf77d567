package protocol

// RequestType identifies a client-initiated call on the duplex channel.
type RequestType string

const (
	RequestLogin                RequestType = "Login"
	RequestLogout               RequestType = "Logout"
	RequestCreateLobby          RequestType = "CreateLobby"
	RequestJoinLobby            RequestType = "JoinLobby"
	RequestLeaveLobby           RequestType = "LeaveLobby"
	RequestKickPlayer           RequestType = "KickPlayer"
	RequestSendMessage          RequestType = "SendMessage"
	RequestStartGame            RequestType = "StartGame"
	RequestGetLobbyState        RequestType = "GetLobbyState"
	RequestSelectBoard          RequestType = "SelectBoard"
	RequestDeclareLoteria       RequestType = "DeclareLoteria"
	RequestValidateFalseLoteria RequestType = "ValidateFalseLoteria"
	RequestConfirmGameEnd       RequestType = "ConfirmGameEnd"
	RequestInviteFriendToLobby  RequestType = "InviteFriendToLobby"
	RequestSendFriendRequest    RequestType = "SendFriendRequest"
	RequestRespondFriendRequest RequestType = "RespondFriendRequest"
	RequestRemoveFriend         RequestType = "RemoveFriend"
	RequestGetFriends           RequestType = "GetFriends"
	RequestUpdateProfile        RequestType = "UpdateProfile"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the authenticated identity, including the
// host-capability flags the lobby UI needs.
type LoginResponse struct {
	UserID   int    `json:"user_id"`
	Nickname string `json:"nickname"`
	CanHost  bool   `json:"can_host"`
	IsGuest  bool   `json:"is_guest"`
}

type JoinLobbyRequest struct {
	Code string `json:"code"`
}

type LeaveLobbyRequest struct {
	Code string `json:"code"`
}

type KickPlayerRequest struct {
	Code     string `json:"code"`
	PlayerID int    `json:"player_id"`
}

type SendMessageRequest struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

type StartGameRequest struct {
	Code string `json:"code"`
}

type GetLobbyStateRequest struct {
	Code string `json:"code"`
}

type SelectBoardRequest struct {
	Code    string `json:"code"`
	BoardID int    `json:"board_id"`
}

type DeclareLoteriaRequest struct {
	Code string `json:"code"`
}

// ValidateFalseLoteriaRequest challenges the declarer identified by UserID.
type ValidateFalseLoteriaRequest struct {
	Code   string `json:"code"`
	UserID int    `json:"user_id"`
}

type ConfirmGameEndRequest struct {
	Code     string `json:"code"`
	PlayerID int    `json:"player_id"`
}

type InviteFriendToLobbyRequest struct {
	Code   string `json:"code"`
	UserID int    `json:"user_id"`
}

type SendFriendRequestRequest struct {
	UserID int `json:"user_id"`
}

type RespondFriendRequestRequest struct {
	UserID int  `json:"user_id"`
	Accept bool `json:"accept"`
}

type RemoveFriendRequest struct {
	UserID int `json:"user_id"`
}

type UpdateProfileRequest struct {
	Nickname string `json:"nickname,omitempty"`
	IconID   int    `json:"icon_id,omitempty"`
}

// Friend is one friends-list entry with live presence.
type Friend struct {
	UserID   int    `json:"user_id"`
	Nickname string `json:"nickname"`
	Online   bool   `json:"online"`
	Pending  bool   `json:"pending"`
}

type GetFriendsResponse struct {
	Friends []Friend `json:"friends"`
}
