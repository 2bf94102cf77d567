// Package api exposes the outbound request surface of the game server as
// typed methods over the transport session, and adapts inbound pushes onto
// the dispatch bus.
package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loteria-online/client/internal/protocol"
	"github.com/loteria-online/client/internal/transport"
)

// Client issues correlated requests on the duplex channel. All methods are
// safe for concurrent use and every failure is already classified into the
// fault taxonomy by the transport layer.
type Client struct {
	session *transport.Session
}

// NewClient wraps the transport session.
func NewClient(session *transport.Session) *Client {
	return &Client{session: session}
}

func call[T any](ctx context.Context, c *Client, reqType protocol.RequestType, payload interface{}) (T, error) {
	var out T
	raw, err := c.session.Call(ctx, reqType, payload)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s response: %w", reqType, err)
	}
	return out, nil
}

func callVoid(ctx context.Context, c *Client, reqType protocol.RequestType, payload interface{}) error {
	_, err := c.session.Call(ctx, reqType, payload)
	return err
}

func (c *Client) Login(ctx context.Context, username, password string) (protocol.LoginResponse, error) {
	return call[protocol.LoginResponse](ctx, c, protocol.RequestLogin, protocol.LoginRequest{Username: username, Password: password})
}

func (c *Client) Logout(ctx context.Context) error {
	return callVoid(ctx, c, protocol.RequestLogout, nil)
}

func (c *Client) CreateLobby(ctx context.Context) (protocol.LobbySnapshot, error) {
	return call[protocol.LobbySnapshot](ctx, c, protocol.RequestCreateLobby, nil)
}

func (c *Client) JoinLobby(ctx context.Context, code string) (protocol.LobbySnapshot, error) {
	return call[protocol.LobbySnapshot](ctx, c, protocol.RequestJoinLobby, protocol.JoinLobbyRequest{Code: code})
}

func (c *Client) LeaveLobby(ctx context.Context, code string) error {
	return callVoid(ctx, c, protocol.RequestLeaveLobby, protocol.LeaveLobbyRequest{Code: code})
}

func (c *Client) KickPlayer(ctx context.Context, code string, playerID int) error {
	return callVoid(ctx, c, protocol.RequestKickPlayer, protocol.KickPlayerRequest{Code: code, PlayerID: playerID})
}

func (c *Client) SendMessage(ctx context.Context, code, text string) error {
	return callVoid(ctx, c, protocol.RequestSendMessage, protocol.SendMessageRequest{Code: code, Text: text})
}

func (c *Client) StartGame(ctx context.Context, code string) error {
	return callVoid(ctx, c, protocol.RequestStartGame, protocol.StartGameRequest{Code: code})
}

// GetLobbyState re-hydrates the full lobby snapshot. Recovery paths only;
// ordinary membership changes ride the incremental push events.
func (c *Client) GetLobbyState(ctx context.Context, code string) (protocol.LobbySnapshot, error) {
	return call[protocol.LobbySnapshot](ctx, c, protocol.RequestGetLobbyState, protocol.GetLobbyStateRequest{Code: code})
}

func (c *Client) SelectBoard(ctx context.Context, code string, boardID int) error {
	return callVoid(ctx, c, protocol.RequestSelectBoard, protocol.SelectBoardRequest{Code: code, BoardID: boardID})
}

func (c *Client) DeclareLoteria(ctx context.Context, code string) error {
	return callVoid(ctx, c, protocol.RequestDeclareLoteria, protocol.DeclareLoteriaRequest{Code: code})
}

// ValidateFalseLoteria challenges the declarer identified by userID.
func (c *Client) ValidateFalseLoteria(ctx context.Context, code string, userID int) error {
	return callVoid(ctx, c, protocol.RequestValidateFalseLoteria, protocol.ValidateFalseLoteriaRequest{Code: code, UserID: userID})
}

func (c *Client) ConfirmGameEnd(ctx context.Context, code string, playerID int) error {
	return callVoid(ctx, c, protocol.RequestConfirmGameEnd, protocol.ConfirmGameEndRequest{Code: code, PlayerID: playerID})
}

func (c *Client) InviteFriendToLobby(ctx context.Context, code string, userID int) error {
	return callVoid(ctx, c, protocol.RequestInviteFriendToLobby, protocol.InviteFriendToLobbyRequest{Code: code, UserID: userID})
}

func (c *Client) SendFriendRequest(ctx context.Context, userID int) error {
	return callVoid(ctx, c, protocol.RequestSendFriendRequest, protocol.SendFriendRequestRequest{UserID: userID})
}

func (c *Client) RespondFriendRequest(ctx context.Context, userID int, accept bool) error {
	return callVoid(ctx, c, protocol.RequestRespondFriendRequest, protocol.RespondFriendRequestRequest{UserID: userID, Accept: accept})
}

func (c *Client) RemoveFriend(ctx context.Context, userID int) error {
	return callVoid(ctx, c, protocol.RequestRemoveFriend, protocol.RemoveFriendRequest{UserID: userID})
}

func (c *Client) GetFriends(ctx context.Context) ([]protocol.Friend, error) {
	resp, err := call[protocol.GetFriendsResponse](ctx, c, protocol.RequestGetFriends, nil)
	if err != nil {
		return nil, err
	}
	return resp.Friends, nil
}

func (c *Client) UpdateProfile(ctx context.Context, nickname string, iconID int) error {
	return callVoid(ctx, c, protocol.RequestUpdateProfile, protocol.UpdateProfileRequest{Nickname: nickname, IconID: iconID})
}
