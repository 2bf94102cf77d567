// Package friends keeps the friends list and its live presence in sync, and
// surfaces friend requests and lobby invites. Same shape as the lobby
// synchronizer: hydrate once, then apply incremental pushes on the dispatch
// loop.
package friends

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/loteria-online/client/internal/dispatch"
	"github.com/loteria-online/client/internal/faults"
	"github.com/loteria-online/client/internal/protocol"
)

const requestTimeout = 15 * time.Second

// Requester is the slice of the outbound surface the friends list needs.
type Requester interface {
	GetFriends(ctx context.Context) ([]protocol.Friend, error)
	SendFriendRequest(ctx context.Context, userID int) error
	RespondFriendRequest(ctx context.Context, userID int, accept bool) error
	RemoveFriend(ctx context.Context, userID int) error
}

// Notifier receives user-visible friends outcomes on the dispatch loop.
type Notifier interface {
	Fault(code, message string)
	Unexpected(err error)
	FriendRequestReceived(from protocol.FriendRequestPayload)
	LobbyInviteReceived(invite protocol.LobbyInvitePayload)
}

// Synchronizer maintains the local friends roster.
type Synchronizer struct {
	bus      *dispatch.Bus
	client   Requester
	notifier Notifier

	friends  []protocol.Friend
	subs     []dispatch.Subscription
	detached bool
}

// NewSynchronizer subscribes to the friends-scoped pushes. Call Refresh to
// hydrate the roster.
func NewSynchronizer(bus *dispatch.Bus, client Requester, notifier Notifier) *Synchronizer {
	s := &Synchronizer{bus: bus, client: client, notifier: notifier}
	s.subs = []dispatch.Subscription{
		bus.Subscribe(protocol.EventFriendRequest, s.onFriendRequest),
		bus.Subscribe(protocol.EventFriendStatusChanged, s.onStatusChanged),
		bus.Subscribe(protocol.EventLobbyInviteReceived, s.onLobbyInvite),
	}
	return s
}

// Friends returns a copy of the roster. Dispatch-loop callers only.
func (s *Synchronizer) Friends() []protocol.Friend {
	return append([]protocol.Friend(nil), s.friends...)
}

func (s *Synchronizer) indexOf(userID int) int {
	for i, f := range s.friends {
		if f.UserID == userID {
			return i
		}
	}
	return -1
}

// Refresh re-hydrates the roster from the server.
func (s *Synchronizer) Refresh() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		roster, err := s.client.GetFriends(ctx)
		s.bus.Do(func() {
			if s.detached {
				return
			}
			if err != nil {
				s.reportFault(err)
				return
			}
			s.friends = roster
		})
	}()
}

// onFriendRequest records an incoming request as a pending entry. A
// duplicate push for an already-known user is ignored.
func (s *Synchronizer) onFriendRequest(payload interface{}) {
	p, ok := payload.(protocol.FriendRequestPayload)
	if !ok || s.detached {
		return
	}
	if s.indexOf(p.FromUserID) >= 0 {
		log.Debug().Int("user_id", p.FromUserID).Msg("duplicate friend request ignored")
		return
	}
	s.friends = append(s.friends, protocol.Friend{
		UserID:   p.FromUserID,
		Nickname: p.FromNickname,
		Pending:  true,
	})
	s.notifier.FriendRequestReceived(p)
}

// onStatusChanged flips presence for a known friend; unknown ids are a
// no-op, not an error.
func (s *Synchronizer) onStatusChanged(payload interface{}) {
	p, ok := payload.(protocol.FriendStatusChangedPayload)
	if !ok || s.detached {
		return
	}
	if i := s.indexOf(p.UserID); i >= 0 {
		s.friends[i].Online = p.Online
	}
}

func (s *Synchronizer) onLobbyInvite(payload interface{}) {
	p, ok := payload.(protocol.LobbyInvitePayload)
	if !ok || s.detached {
		return
	}
	s.notifier.LobbyInviteReceived(p)
}

// SendFriendRequest sends a request; the roster only changes when the
// server confirms (FRIEND_DUPLICATE is the interesting rejection here).
func (s *Synchronizer) SendFriendRequest(userID int) {
	s.request(func(ctx context.Context) error {
		return s.client.SendFriendRequest(ctx, userID)
	})
}

// RespondFriendRequest accepts or declines a pending request, then
// re-hydrates on success.
func (s *Synchronizer) RespondFriendRequest(userID int, accept bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		err := s.client.RespondFriendRequest(ctx, userID, accept)
		if err != nil {
			s.bus.Do(func() {
				if s.detached {
					return
				}
				s.reportFault(err)
			})
			return
		}
		s.Refresh()
	}()
}

// RemoveFriend removes a friend, then re-hydrates on success.
func (s *Synchronizer) RemoveFriend(userID int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		err := s.client.RemoveFriend(ctx, userID)
		if err != nil {
			s.bus.Do(func() {
				if s.detached {
					return
				}
				s.reportFault(err)
			})
			return
		}
		s.Refresh()
	}()
}

// Detach unsubscribes every friends-scoped handler.
func (s *Synchronizer) Detach() {
	for _, sub := range s.subs {
		s.bus.Unsubscribe(sub)
	}
	s.subs = nil
	s.detached = true
}

func (s *Synchronizer) request(fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.bus.Do(func() {
				if s.detached {
					return
				}
				s.reportFault(err)
			})
		}
	}()
}

func (s *Synchronizer) reportFault(err error) {
	switch faults.Classify(err) {
	case faults.KindService:
		sf, _ := faults.AsService(err)
		s.notifier.Fault(sf.Code, sf.Message)
	case faults.KindConnection:
		log.Debug().Err(err).Msg("friends request failed on dead channel")
	default:
		log.Error().Err(err).Msg("unexpected friends request failure")
		s.notifier.Unexpected(err)
	}
}
