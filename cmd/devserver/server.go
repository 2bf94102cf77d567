package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/loteria-online/client/internal/protocol"
)

type server struct {
	mu         sync.Mutex
	nextUserID int
	clients    map[int]*client // online clients by user id
	lobbies    map[string]*devLobby
	upgrader   websocket.Upgrader
}

type client struct {
	srv     *server
	ws      *websocket.Conn
	writeMu sync.Mutex

	userID   int
	nickname string
	lobby    *devLobby
}

func newServer() *server {
	return &server{
		clients: make(map[int]*client),
		lobbies: make(map[string]*devLobby),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("upgrade failed")
		return
	}
	c := &client{srv: s, ws: ws}
	go c.readLoop()
}

func (c *client) readLoop() {
	defer c.disconnect()
	for {
		var env protocol.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			return
		}
		if env.Kind != protocol.FrameRequest {
			continue
		}
		c.handleRequest(&env)
	}
}

func (c *client) disconnect() {
	_ = c.ws.Close()
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.userID)
	if c.lobby != nil {
		c.lobby.removeMember(c, "left")
	}
}

// send writes one envelope; writer-side serialization lives here.
func (c *client) send(env *protocol.Envelope) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(env); err != nil {
		log.Debug().Err(err).Int("user_id", c.userID).Msg("push write failed")
	}
}

func (c *client) respond(id string, payload interface{}) {
	raw, _ := json.Marshal(payload)
	c.send(&protocol.Envelope{Kind: protocol.FrameResponse, ID: id, Payload: raw})
}

func (c *client) respondFault(id, code, message string) {
	c.send(&protocol.Envelope{
		Kind:  protocol.FrameResponse,
		ID:    id,
		Error: &protocol.Fault{Code: code, Message: message},
	})
}

func (c *client) push(eventType protocol.EventType, payload interface{}) {
	raw, _ := json.Marshal(payload)
	c.send(&protocol.Envelope{Kind: protocol.FrameEvent, Type: string(eventType), Payload: raw})
}

func (c *client) handleRequest(env *protocol.Envelope) {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()

	switch protocol.RequestType(env.Type) {
	case protocol.RequestLogin:
		var req protocol.LoginRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil || req.Username == "" {
			c.respondFault(env.ID, protocol.CodeInvalidCredentials, "username required")
			return
		}
		s.nextUserID++
		c.userID = s.nextUserID
		c.nickname = req.Username
		s.clients[c.userID] = c
		c.respond(env.ID, protocol.LoginResponse{UserID: c.userID, Nickname: c.nickname, CanHost: true})

	case protocol.RequestLogout:
		delete(s.clients, c.userID)
		c.respond(env.ID, struct{}{})

	case protocol.RequestCreateLobby:
		lb := s.createLobby(c)
		c.respond(env.ID, lb.snapshot())

	case protocol.RequestJoinLobby:
		var req protocol.JoinLobbyRequest
		json.Unmarshal(env.Payload, &req)
		lb := s.lobbies[req.Code]
		if lb == nil {
			c.respondFault(env.ID, protocol.CodeLobbyNotFound, "no such lobby")
			return
		}
		if len(lb.members) >= maxLobbySize {
			c.respondFault(env.ID, protocol.CodeLobbyFull, "lobby is full")
			return
		}
		lb.addMember(c)
		c.respond(env.ID, lb.snapshot())

	case protocol.RequestLeaveLobby:
		if c.lobby != nil {
			c.lobby.removeMember(c, "left")
		}
		c.respond(env.ID, struct{}{})

	case protocol.RequestKickPlayer:
		var req protocol.KickPlayerRequest
		json.Unmarshal(env.Payload, &req)
		lb := c.lobby
		if lb == nil {
			c.respondFault(env.ID, protocol.CodeGameLobbyNotFound, "not in a lobby")
			return
		}
		if lb.hostID != c.userID {
			c.respondFault(env.ID, protocol.CodeNotHost, "only the host can kick")
			return
		}
		lb.kick(req.PlayerID)
		c.respond(env.ID, struct{}{})

	case protocol.RequestSendMessage:
		var req protocol.SendMessageRequest
		json.Unmarshal(env.Payload, &req)
		if c.lobby == nil {
			c.respondFault(env.ID, protocol.CodeGameLobbyNotFound, "not in a lobby")
			return
		}
		c.lobby.broadcast(protocol.EventChatMessageReceived, protocol.ChatMessagePayload{Nickname: c.nickname, Text: req.Text})
		c.respond(env.ID, struct{}{})

	case protocol.RequestStartGame:
		lb := c.lobby
		if lb == nil {
			c.respondFault(env.ID, protocol.CodeGameLobbyNotFound, "not in a lobby")
			return
		}
		if lb.hostID != c.userID {
			c.respondFault(env.ID, protocol.CodeNotHost, "only the host can start")
			return
		}
		if lb.round != nil {
			c.respondFault(env.ID, protocol.CodeGameInProgress, "round already running")
			return
		}
		lb.startRound()
		c.respond(env.ID, struct{}{})

	case protocol.RequestGetLobbyState:
		var req protocol.GetLobbyStateRequest
		json.Unmarshal(env.Payload, &req)
		lb := s.lobbies[req.Code]
		if lb == nil {
			c.respondFault(env.ID, protocol.CodeLobbyNotFound, "no such lobby")
			return
		}
		c.respond(env.ID, lb.snapshot())

	case protocol.RequestSelectBoard:
		var req protocol.SelectBoardRequest
		json.Unmarshal(env.Payload, &req)
		if c.lobby != nil {
			c.lobby.broadcast(protocol.EventBoardSelected, protocol.BoardSelectedPayload{PlayerID: c.userID, BoardID: req.BoardID})
		}
		c.respond(env.ID, struct{}{})

	case protocol.RequestDeclareLoteria:
		lb := c.lobby
		if lb == nil || lb.round == nil {
			c.respondFault(env.ID, protocol.CodeGameLobbyNotFound, "no round in progress")
			return
		}
		if lb.round.declared != nil {
			c.respondFault(env.ID, protocol.CodeInvalidDeclaration, "a win is already declared")
			return
		}
		lb.declare(c)
		c.respond(env.ID, struct{}{})

	case protocol.RequestValidateFalseLoteria:
		var req protocol.ValidateFalseLoteriaRequest
		json.Unmarshal(env.Payload, &req)
		lb := c.lobby
		if lb == nil || lb.round == nil || lb.round.declared == nil || lb.round.declared.PlayerID != req.UserID {
			c.respondFault(env.ID, protocol.CodeInvalidDeclaration, "nothing to challenge")
			return
		}
		c.respond(env.ID, struct{}{})
		// Dev-only arbitration: a coin flip stands in for board checking.
		lb.resolveChallenge(c, rand.Intn(2) == 0)

	case protocol.RequestConfirmGameEnd:
		var req protocol.ConfirmGameEndRequest
		json.Unmarshal(env.Payload, &req)
		lb := c.lobby
		if lb == nil || lb.round == nil {
			c.respond(env.ID, struct{}{})
			return
		}
		lb.endRound(req.PlayerID)
		c.respond(env.ID, struct{}{})

	case protocol.RequestInviteFriendToLobby:
		var req protocol.InviteFriendToLobbyRequest
		json.Unmarshal(env.Payload, &req)
		target := s.clients[req.UserID]
		if target == nil {
			c.respondFault(env.ID, protocol.CodeUserOffline, "that user is offline")
			return
		}
		target.push(protocol.EventLobbyInviteReceived, protocol.LobbyInvitePayload{
			Code: req.Code, FromUserID: c.userID, FromNickname: c.nickname,
		})
		c.respond(env.ID, struct{}{})

	case protocol.RequestGetFriends:
		// Everyone online is your friend on the devserver.
		resp := protocol.GetFriendsResponse{}
		for id, other := range s.clients {
			if id == c.userID {
				continue
			}
			resp.Friends = append(resp.Friends, protocol.Friend{UserID: id, Nickname: other.nickname, Online: true})
		}
		c.respond(env.ID, resp)

	case protocol.RequestSendFriendRequest:
		var req protocol.SendFriendRequestRequest
		json.Unmarshal(env.Payload, &req)
		target := s.clients[req.UserID]
		if target == nil {
			c.respondFault(env.ID, protocol.CodeUserOffline, "that user is offline")
			return
		}
		target.push(protocol.EventFriendRequest, protocol.FriendRequestPayload{FromUserID: c.userID, FromNickname: c.nickname})
		c.respond(env.ID, struct{}{})

	case protocol.RequestRespondFriendRequest, protocol.RequestRemoveFriend, protocol.RequestUpdateProfile:
		c.respond(env.ID, struct{}{})

	default:
		c.respondFault(env.ID, "UNSUPPORTED", fmt.Sprintf("unsupported request %q", env.Type))
	}
}
