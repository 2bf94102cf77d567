package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/loteria-online/client/internal/protocol"
)

const (
	maxLobbySize = 8
	drawInterval = 3 * time.Second
)

// deckNames are the 54 traditional Loteria cards.
var deckNames = []string{
	"El gallo", "El diablito", "La dama", "El catrin", "El paraguas",
	"La sirena", "La escalera", "La botella", "El barril", "El arbol",
	"El melon", "El valiente", "El gorrito", "La muerte", "La pera",
	"La bandera", "El bandolon", "El violoncello", "La garza", "El pajaro",
	"La mano", "La bota", "La luna", "El cotorro", "El borracho",
	"El negrito", "El corazon", "La sandia", "El tambor", "El camaron",
	"Las jaras", "El musico", "La arana", "El soldado", "La estrella",
	"El cazo", "El mundo", "El apache", "El nopal", "El alacran",
	"La rosa", "La calavera", "La campana", "El cantarito", "El venado",
	"El sol", "La corona", "La chalupa", "El pino", "El pescado",
	"La palma", "La maceta", "El arpa", "La rana",
}

type devLobby struct {
	srv     *server
	code    string
	hostID  int
	members []*client
	chat    []string
	round   *round
}

type round struct {
	deck     []protocol.Card
	next     int
	paused   bool
	declared *protocol.PlayerWonPayload
	stop     chan struct{}
}

func (s *server) createLobby(host *client) *devLobby {
	code := fmt.Sprintf("%06d", rand.Intn(1000000))
	for s.lobbies[code] != nil {
		code = fmt.Sprintf("%06d", rand.Intn(1000000))
	}
	lb := &devLobby{srv: s, code: code, hostID: host.userID}
	lb.members = append(lb.members, host)
	host.lobby = lb
	s.lobbies[code] = lb
	log.Info().Str("code", code).Str("host", host.nickname).Msg("lobby created")
	return lb
}

func (lb *devLobby) snapshot() protocol.LobbySnapshot {
	snap := protocol.LobbySnapshot{Code: lb.code, Chat: append([]string(nil), lb.chat...)}
	for _, m := range lb.members {
		snap.Players = append(snap.Players, protocol.Player{
			ID:       m.userID,
			Nickname: m.nickname,
			IsHost:   m.userID == lb.hostID,
		})
	}
	return snap
}

// broadcast pushes one event to every member. Callers hold srv.mu.
func (lb *devLobby) broadcast(eventType protocol.EventType, payload interface{}) {
	for _, m := range lb.members {
		m.push(eventType, payload)
	}
}

func (lb *devLobby) addMember(c *client) {
	lb.broadcast(protocol.EventPlayerJoined, protocol.PlayerJoinedPayload{
		Player: protocol.Player{ID: c.userID, Nickname: c.nickname},
	})
	lb.members = append(lb.members, c)
	c.lobby = lb
}

func (lb *devLobby) removeMember(c *client, reason string) {
	for i, m := range lb.members {
		if m == c {
			lb.members = append(lb.members[:i], lb.members[i+1:]...)
			break
		}
	}
	c.lobby = nil

	if c.userID == lb.hostID {
		lb.close()
		return
	}
	if reason == "kicked" {
		lb.broadcast(protocol.EventPlayerKicked, protocol.PlayerKickedPayload{PlayerID: c.userID})
	} else {
		lb.broadcast(protocol.EventPlayerLeft, protocol.PlayerLeftPayload{PlayerID: c.userID})
	}
	if len(lb.members) == 0 {
		lb.close()
	}
}

func (lb *devLobby) kick(playerID int) {
	for _, m := range lb.members {
		if m.userID == playerID {
			m.push(protocol.EventYouWereKicked, struct{}{})
			lb.removeMember(m, "kicked")
			return
		}
	}
}

// close ends any round, tells everyone, and forgets the lobby.
func (lb *devLobby) close() {
	lb.stopRound()
	lb.broadcast(protocol.EventLobbyClosed, struct{}{})
	for _, m := range lb.members {
		m.lobby = nil
	}
	lb.members = nil
	delete(lb.srv.lobbies, lb.code)
	log.Info().Str("code", lb.code).Msg("lobby closed")
}

func (lb *devLobby) startRound() {
	deck := make([]protocol.Card, len(deckNames))
	for i, name := range deckNames {
		deck[i] = protocol.Card{ID: i + 1, Name: name}
	}
	rand.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	r := &round{deck: deck, stop: make(chan struct{})}
	lb.round = r
	lb.broadcast(protocol.EventGameStarted, protocol.GameStartedPayload{Code: lb.code})
	go lb.drawLoop(r)
}

// drawLoop pushes one card per interval until the deck runs out or the
// round stops. It takes srv.mu around every mutation.
func (lb *devLobby) drawLoop(r *round) {
	ticker := time.NewTicker(drawInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			lb.srv.mu.Lock()
			if lb.round != r {
				lb.srv.mu.Unlock()
				return
			}
			if r.paused {
				lb.srv.mu.Unlock()
				continue
			}
			if r.next >= len(r.deck) {
				// Deck exhausted with no winner. Simulate the occasional
				// deferred persistence failure for the summary notice.
				ended := protocol.GameEndedPayload{DeckExhausted: true}
				if rand.Intn(4) == 0 {
					ended.SaveError = protocol.CodeSaveFailed
				}
				lb.broadcast(protocol.EventGameEnded, ended)
				lb.stopRound()
				lb.srv.mu.Unlock()
				return
			}
			card := r.deck[r.next]
			r.next++
			lb.broadcast(protocol.EventCardDrawn, protocol.CardDrawnPayload{Card: card})
			lb.srv.mu.Unlock()
		}
	}
}

// declare pauses drawing and announces the candidate winner.
func (lb *devLobby) declare(c *client) {
	r := lb.round
	r.paused = true
	won := protocol.PlayerWonPayload{PlayerID: c.userID, Nickname: c.nickname}
	r.declared = &won
	lb.broadcast(protocol.EventPlayerWon, won)
}

// resolveChallenge arbitrates a false-Loteria accusation and broadcasts the
// outcome to all three roles at once.
func (lb *devLobby) resolveChallenge(challenger *client, declarerCorrect bool) {
	r := lb.round
	declared := *r.declared
	lb.broadcast(protocol.EventFalseLoteriaResult, protocol.FalseLoteriaResultPayload{
		Declarer:           declared.Nickname,
		Challenger:         challenger.nickname,
		DeclarerWasCorrect: declarerCorrect,
	})
	if declarerCorrect {
		lb.stopRound()
		return
	}
	// The accusation stood: the declarer rejoins the round and cards keep
	// coming for whoever stayed.
	r.declared = nil
	r.paused = false
}

func (lb *devLobby) endRound(winnerID int) {
	ended := protocol.GameEndedPayload{WinnerID: winnerID}
	for _, m := range lb.members {
		if m.userID == winnerID {
			ended.WinnerName = m.nickname
		}
	}
	lb.broadcast(protocol.EventGameEnded, ended)
	lb.stopRound()
}

func (lb *devLobby) stopRound() {
	if lb.round == nil {
		return
	}
	close(lb.round.stop)
	lb.round = nil
}
