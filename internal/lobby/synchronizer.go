// Package lobby reconciles a single lobby's roster and chat transcript from
// an authoritative snapshot plus incremental push events. All mutation
// happens on the dispatch loop; the synchronizer holds no locks of its own.
package lobby

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/loteria-online/client/internal/dispatch"
	"github.com/loteria-online/client/internal/faults"
	"github.com/loteria-online/client/internal/protocol"
)

const requestTimeout = 15 * time.Second

// Requester is the slice of the outbound request surface the lobby needs.
type Requester interface {
	SendMessage(ctx context.Context, code, text string) error
	LeaveLobby(ctx context.Context, code string) error
	KickPlayer(ctx context.Context, code string, playerID int) error
	StartGame(ctx context.Context, code string) error
	InviteFriendToLobby(ctx context.Context, code string, userID int) error
	GetLobbyState(ctx context.Context, code string) (protocol.LobbySnapshot, error)
}

// Notifier receives user-visible outcomes. The presentation layer
// implements it; every method is invoked on the dispatch loop.
type Notifier interface {
	// Fault reports a mapped business rejection for one outbound request.
	Fault(code, message string)
	// Unexpected reports an unclassified failure. The composition layer
	// treats the channel as suspect after one of these.
	Unexpected(err error)
	// NavigateHome asks for navigation back to the main menu with a
	// terminal notice (kicked, lobby closed, left).
	NavigateHome(reason string)
}

// Synchronizer maintains one lobby's local state.
type Synchronizer struct {
	bus      *dispatch.Bus
	client   Requester
	notifier Notifier

	code     string
	players  []protocol.Player
	chat     []string
	subs     []dispatch.Subscription
	detached bool
}

// NewSynchronizer hydrates from the snapshot returned by the create/join
// request and subscribes to the lobby-scoped push events.
func NewSynchronizer(bus *dispatch.Bus, client Requester, notifier Notifier, snap protocol.LobbySnapshot) *Synchronizer {
	s := &Synchronizer{bus: bus, client: client, notifier: notifier}
	s.hydrate(snap)
	s.subs = []dispatch.Subscription{
		bus.Subscribe(protocol.EventPlayerJoined, s.onPlayerJoined),
		bus.Subscribe(protocol.EventPlayerLeft, s.onPlayerLeft),
		bus.Subscribe(protocol.EventPlayerKicked, s.onPlayerKicked),
		bus.Subscribe(protocol.EventYouWereKicked, s.onYouWereKicked),
		bus.Subscribe(protocol.EventLobbyClosed, s.onLobbyClosed),
		bus.Subscribe(protocol.EventChatMessageReceived, s.onChatMessage),
		bus.Subscribe(protocol.EventLobbyStateUpdated, s.onLobbyStateUpdated),
	}
	return s
}

func (s *Synchronizer) hydrate(snap protocol.LobbySnapshot) {
	s.code = snap.Code
	s.players = append([]protocol.Player(nil), snap.Players...)
	s.chat = append([]string(nil), snap.Chat...)
}

// Code returns the 6-digit lobby code.
func (s *Synchronizer) Code() string { return s.code }

// Players returns a copy of the roster. Dispatch-loop callers only.
func (s *Synchronizer) Players() []protocol.Player {
	return append([]protocol.Player(nil), s.players...)
}

// Chat returns a copy of the transcript. Dispatch-loop callers only.
func (s *Synchronizer) Chat() []string {
	return append([]string(nil), s.chat...)
}

func (s *Synchronizer) indexOf(playerID int) int {
	for i, p := range s.players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// onPlayerJoined is idempotent: a client-initiated refresh can race the same
// join notification, so a duplicate id is silently ignored.
func (s *Synchronizer) onPlayerJoined(payload interface{}) {
	p, ok := payload.(protocol.PlayerJoinedPayload)
	if !ok || s.detached {
		return
	}
	if s.indexOf(p.Player.ID) >= 0 {
		log.Debug().Int("player_id", p.Player.ID).Msg("duplicate join ignored")
		return
	}
	s.players = append(s.players, p.Player)
	s.chat = append(s.chat, fmt.Sprintf("* %s joined the lobby", p.Player.Nickname))
}

// onPlayerLeft removes by id. Absent ids are a no-op: a late duplicate or a
// race with a manual refresh must not fail, and must not add a chat line.
func (s *Synchronizer) onPlayerLeft(payload interface{}) {
	p, ok := payload.(protocol.PlayerLeftPayload)
	if !ok || s.detached {
		return
	}
	s.removePlayer(p.PlayerID, "left the lobby")
}

func (s *Synchronizer) onPlayerKicked(payload interface{}) {
	p, ok := payload.(protocol.PlayerKickedPayload)
	if !ok || s.detached {
		return
	}
	s.removePlayer(p.PlayerID, "was kicked")
}

func (s *Synchronizer) removePlayer(playerID int, what string) {
	i := s.indexOf(playerID)
	if i < 0 {
		return
	}
	nickname := s.players[i].Nickname
	s.players = append(s.players[:i], s.players[i+1:]...)
	s.chat = append(s.chat, fmt.Sprintf("* %s %s", nickname, what))
}

func (s *Synchronizer) onChatMessage(payload interface{}) {
	p, ok := payload.(protocol.ChatMessagePayload)
	if !ok || s.detached {
		return
	}
	s.chat = append(s.chat, fmt.Sprintf("%s: %s", p.Nickname, p.Text))
}

func (s *Synchronizer) onYouWereKicked(interface{}) {
	if s.detached {
		return
	}
	s.Detach()
	s.notifier.NavigateHome("kicked")
}

func (s *Synchronizer) onLobbyClosed(interface{}) {
	if s.detached {
		return
	}
	s.Detach()
	s.notifier.NavigateHome("closed")
}

// onLobbyStateUpdated applies a server-initiated full snapshot.
func (s *Synchronizer) onLobbyStateUpdated(payload interface{}) {
	p, ok := payload.(protocol.LobbyStateUpdatedPayload)
	if !ok || s.detached {
		return
	}
	if p.Snapshot.Code != s.code {
		return
	}
	s.hydrate(p.Snapshot)
}

// Detach unsubscribes every lobby-scoped handler. Idempotent.
func (s *Synchronizer) Detach() {
	for _, sub := range s.subs {
		s.bus.Unsubscribe(sub)
	}
	s.subs = nil
	s.detached = true
}

// RefreshLobbyState re-hydrates the full snapshot. Recovery paths only
// (returning from a finished round); ordinary membership changes rely solely
// on incremental events.
func (s *Synchronizer) RefreshLobbyState() {
	code := s.code
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		snap, err := s.client.GetLobbyState(ctx, code)
		s.bus.Do(func() {
			if s.detached {
				return
			}
			if err != nil {
				s.reportFault(err)
				return
			}
			s.hydrate(snap)
		})
	}()
}

// SendMessage sends a chat line. The transcript is only appended when the
// server echoes the message back; nothing is mutated optimistically.
func (s *Synchronizer) SendMessage(text string) {
	s.request(func(ctx context.Context) error {
		return s.client.SendMessage(ctx, s.code, text)
	}, nil)
}

// LeaveLobby leaves and, on success, detaches and navigates home.
func (s *Synchronizer) LeaveLobby() {
	s.request(func(ctx context.Context) error {
		return s.client.LeaveLobby(ctx, s.code)
	}, func() {
		s.Detach()
		s.notifier.NavigateHome("left")
	})
}

// KickPlayer removes a player (host only). The roster mutates when the
// PlayerKicked push arrives, not here.
func (s *Synchronizer) KickPlayer(playerID int) {
	s.request(func(ctx context.Context) error {
		return s.client.KickPlayer(ctx, s.code, playerID)
	}, nil)
}

// StartGame asks the server to start a round. The round begins for everyone
// on the GameStarted push.
func (s *Synchronizer) StartGame() {
	s.request(func(ctx context.Context) error {
		return s.client.StartGame(ctx, s.code)
	}, nil)
}

// InviteFriendToLobby sends a lobby invite to a friend.
func (s *Synchronizer) InviteFriendToLobby(userID int) {
	s.request(func(ctx context.Context) error {
		return s.client.InviteFriendToLobby(ctx, s.code, userID)
	}, nil)
}

// request runs one outbound call off-loop and marshals the outcome back
// onto the dispatch loop. onSuccess may be nil.
func (s *Synchronizer) request(fn func(context.Context) error, onSuccess func()) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		err := fn(ctx)
		s.bus.Do(func() {
			if s.detached {
				return
			}
			if err != nil {
				s.reportFault(err)
				return
			}
			if onSuccess != nil {
				onSuccess()
			}
		})
	}()
}

func (s *Synchronizer) reportFault(err error) {
	switch faults.Classify(err) {
	case faults.KindService:
		sf, _ := faults.AsService(err)
		s.notifier.Fault(sf.Code, sf.Message)
	case faults.KindConnection:
		// ConnectionLost is surfaced once by the transport; avoid a
		// second user-visible report per failed call.
		log.Debug().Err(err).Msg("lobby request failed on dead channel")
	default:
		log.Error().Err(err).Msg("unexpected lobby request failure")
		s.notifier.Unexpected(err)
	}
}
