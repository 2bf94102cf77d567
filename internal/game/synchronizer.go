// Package game drives the per-round state machine: win declaration, the
// challenge window, server-mediated arbitration and the round summary, with
// the timed auto-transitions between them. Every mutation runs on the
// dispatch loop; timer ticks are marshaled onto it, so a tick and a push can
// never interleave.
package game

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/loteria-online/client/internal/dispatch"
	"github.com/loteria-online/client/internal/faults"
	"github.com/loteria-online/client/internal/protocol"
	"github.com/loteria-online/client/internal/session"
)

// Phase is one state of the round machine.
type Phase string

const (
	PhaseLobby        Phase = "lobby"
	PhaseInGame       Phase = "in_game"
	PhaseWinDeclared  Phase = "win_declared"
	PhaseArbitration  Phase = "arbitration"
	PhaseRoundSummary Phase = "round_summary"
)

const (
	challengeWindowSec  = 10
	summaryCountdownSec = 10
	declarerReturnSec   = 2
	observerReturnSec   = 3

	requestTimeout = 15 * time.Second
)

// Requester is the slice of the outbound surface this machine needs.
type Requester interface {
	DeclareLoteria(ctx context.Context, code string) error
	ValidateFalseLoteria(ctx context.Context, code string, userID int) error
	ConfirmGameEnd(ctx context.Context, code string, playerID int) error
}

// Notifier receives user-visible outcomes of the round machine. All methods
// run on the dispatch loop.
type Notifier interface {
	CardDrawn(card protocol.Card)
	WinDeclared(nickname string)
	// CountdownTick fires once per second while a phase countdown runs.
	CountdownTick(phase Phase, remaining int)
	// ArbitrationNotice is the role-dependent message shown while a timed
	// display runs.
	ArbitrationNotice(text string)
	RoundSummaryEntered(winner string)
	// TransientError is the short auto-dismissing notice for a deferred
	// server-side failure; it never blocks the summary countdown.
	TransientError(code string)
	Fault(code, message string)
	Unexpected(err error)
	ReturnedToGame()
	ReturnedToLobby()
}

// PendingChallenge tracks an unresolved false-Loteria accusation.
type PendingChallenge struct {
	Declarer           string
	Challenger         string
	Resolved           bool
	DeclarerWasCorrect bool
}

// Synchronizer is the round state machine for one lobby.
type Synchronizer struct {
	bus      *dispatch.Bus
	client   Requester
	clock    clockwork.Clock
	notifier Notifier

	code string
	self session.Session

	phase     Phase
	cards     []protocol.Card
	winner    *protocol.PlayerWonPayload
	challenge *PendingChallenge

	// pendingErr is the sideband error slot checked on RoundSummary entry.
	pendingErr string

	timer *countdown

	// onReturnToLobby runs exactly once per RoundSummary->Lobby transition;
	// the composition layer points it at the lobby refresh.
	onReturnToLobby func()

	subs     []dispatch.Subscription
	detached bool
}

// NewSynchronizer builds the machine in the Lobby phase and subscribes to
// the game-scoped push events. onReturnToLobby may be nil.
func NewSynchronizer(bus *dispatch.Bus, client Requester, clock clockwork.Clock, notifier Notifier, code string, self session.Session, onReturnToLobby func()) *Synchronizer {
	s := &Synchronizer{
		bus:             bus,
		client:          client,
		clock:           clock,
		notifier:        notifier,
		code:            code,
		self:            self,
		phase:           PhaseLobby,
		onReturnToLobby: onReturnToLobby,
	}
	s.subs = []dispatch.Subscription{
		bus.Subscribe(protocol.EventGameStarted, s.onGameStarted),
		bus.Subscribe(protocol.EventCardDrawn, s.onCardDrawn),
		bus.Subscribe(protocol.EventPlayerWon, s.onPlayerWon),
		bus.Subscribe(protocol.EventGameEnded, s.onGameEnded),
		bus.Subscribe(protocol.EventFalseLoteriaResult, s.onFalseLoteriaResult),
	}
	return s
}

// Phase returns the current phase. Dispatch-loop callers only.
func (s *Synchronizer) Phase() Phase { return s.phase }

// Cards returns the cards drawn this round. Dispatch-loop callers only.
func (s *Synchronizer) Cards() []protocol.Card {
	return append([]protocol.Card(nil), s.cards...)
}

// Winner returns the candidate winner, if a win is declared.
func (s *Synchronizer) Winner() (protocol.PlayerWonPayload, bool) {
	if s.winner == nil {
		return protocol.PlayerWonPayload{}, false
	}
	return *s.winner, true
}

// Challenge returns the pending challenge, if any.
func (s *Synchronizer) Challenge() (PendingChallenge, bool) {
	if s.challenge == nil {
		return PendingChallenge{}, false
	}
	return *s.challenge, true
}

// Detach unsubscribes everything and stops any running countdown.
func (s *Synchronizer) Detach() {
	s.stopCountdown()
	for _, sub := range s.subs {
		s.bus.Unsubscribe(sub)
	}
	s.subs = nil
	s.detached = true
}

func (s *Synchronizer) onGameStarted(payload interface{}) {
	p, ok := payload.(protocol.GameStartedPayload)
	if !ok || s.detached || p.Code != s.code {
		return
	}
	if s.phase != PhaseLobby {
		return
	}
	s.cards = nil
	s.winner = nil
	s.challenge = nil
	s.pendingErr = ""
	s.phase = PhaseInGame
	log.Info().Str("lobby", s.code).Msg("round started")
}

func (s *Synchronizer) onCardDrawn(payload interface{}) {
	p, ok := payload.(protocol.CardDrawnPayload)
	if !ok || s.detached || s.phase != PhaseInGame {
		return
	}
	s.cards = append(s.cards, p.Card)
	s.notifier.CardDrawn(p.Card)
}

// onPlayerWon opens the challenge window: ten seconds for anyone to dispute
// before the win auto-confirms.
func (s *Synchronizer) onPlayerWon(payload interface{}) {
	p, ok := payload.(protocol.PlayerWonPayload)
	if !ok || s.detached || s.phase != PhaseInGame {
		return
	}
	winner := p
	s.winner = &winner
	s.phase = PhaseWinDeclared
	s.notifier.WinDeclared(p.Nickname)
	s.startCountdown(PhaseWinDeclared, challengeWindowSec, s.confirmWin)
}

// confirmWin fires when the challenge window expires unchallenged: the win
// stands, the server is notified once, and the summary begins.
func (s *Synchronizer) confirmWin() {
	if s.phase != PhaseWinDeclared || s.winner == nil {
		return
	}
	winnerID := s.winner.PlayerID
	s.request(func(ctx context.Context) error {
		return s.client.ConfirmGameEnd(ctx, s.code, winnerID)
	})
	s.enterRoundSummary(s.winner.Nickname)
}

// DeclareLoteria announces this client's win. The WinDeclared transition
// arrives for everyone, declarer included, as a PlayerWon push.
func (s *Synchronizer) DeclareLoteria() {
	s.request(func(ctx context.Context) error {
		return s.client.DeclareLoteria(ctx, s.code)
	})
}

// ChallengeFalseLoteria disputes the declared win. On acceptance the machine
// moves to Arbitration and awaits the server's resolution push.
func (s *Synchronizer) ChallengeFalseLoteria() {
	if s.phase != PhaseWinDeclared || s.winner == nil {
		return
	}
	declarer := *s.winner
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		err := s.client.ValidateFalseLoteria(ctx, s.code, declarer.PlayerID)
		s.bus.Do(func() {
			if s.detached {
				return
			}
			if err != nil {
				s.reportFault(err)
				return
			}
			if s.phase != PhaseWinDeclared {
				return
			}
			s.stopCountdown()
			s.challenge = &PendingChallenge{Declarer: declarer.Nickname, Challenger: s.self.Nickname}
			s.phase = PhaseArbitration
		})
	}()
}

// onFalseLoteriaResult applies the server's arbitration resolution. The
// effect depends on this client's role relative to the resolution.
func (s *Synchronizer) onFalseLoteriaResult(payload interface{}) {
	p, ok := payload.(protocol.FalseLoteriaResultPayload)
	if !ok || s.detached {
		return
	}
	if s.phase != PhaseWinDeclared && s.phase != PhaseArbitration {
		return
	}
	s.stopCountdown()
	s.phase = PhaseArbitration
	s.challenge = &PendingChallenge{
		Declarer:           p.Declarer,
		Challenger:         p.Challenger,
		Resolved:           true,
		DeclarerWasCorrect: p.DeclarerWasCorrect,
	}

	switch {
	case p.DeclarerWasCorrect && s.self.Nickname == p.Declarer:
		// Win stands; the declarer goes straight to the summary.
		s.enterRoundSummary(p.Declarer)
	case p.DeclarerWasCorrect && s.self.Nickname == p.Challenger:
		s.notifier.ArbitrationNotice(fmt.Sprintf("Your accusation against %s failed", p.Declarer))
		s.startCountdown(PhaseArbitration, observerReturnSec, s.returnToLobby)
	case p.DeclarerWasCorrect:
		s.notifier.ArbitrationNotice(fmt.Sprintf("%s's accusation failed, the win stands", p.Challenger))
		s.startCountdown(PhaseArbitration, observerReturnSec, s.returnToLobby)
	case s.self.Nickname == p.Declarer:
		// False accusation stood against the declarer: apologize and put
		// them back in the round.
		s.notifier.ArbitrationNotice("That was not a valid Loteria, back to the game")
		s.startCountdown(PhaseArbitration, declarerReturnSec, s.returnToGame)
	case s.self.Nickname == p.Challenger:
		s.notifier.ArbitrationNotice(fmt.Sprintf("You were right, %s's Loteria was false", p.Declarer))
		s.startCountdown(PhaseArbitration, observerReturnSec, s.returnToLobby)
	default:
		s.notifier.ArbitrationNotice(fmt.Sprintf("%s declared a false Loteria", p.Declarer))
		s.startCountdown(PhaseArbitration, observerReturnSec, s.returnToLobby)
	}
}

// onGameEnded handles a server-driven round end: a confirmed winner or deck
// exhaustion. A deferred persistence failure rides in on the same push and
// is parked in the pending-error slot for the summary to surface.
func (s *Synchronizer) onGameEnded(payload interface{}) {
	p, ok := payload.(protocol.GameEndedPayload)
	if !ok || s.detached {
		return
	}
	if s.phase != PhaseInGame && s.phase != PhaseWinDeclared {
		return
	}
	if p.SaveError != "" {
		s.pendingErr = p.SaveError
	}
	s.stopCountdown()
	s.enterRoundSummary(p.WinnerName)
}

// enterRoundSummary is total and idempotent: entering an already-entered
// summary is a no-op.
func (s *Synchronizer) enterRoundSummary(winner string) {
	if s.phase == PhaseRoundSummary {
		return
	}
	s.phase = PhaseRoundSummary
	s.notifier.RoundSummaryEntered(winner)
	if s.pendingErr != "" {
		s.notifier.TransientError(s.pendingErr)
		s.pendingErr = ""
	}
	s.startCountdown(PhaseRoundSummary, summaryCountdownSec, s.returnToLobby)
}

// ExitToLobby is the manual "exit now" action during the summary. It races
// the countdown; whichever fires first performs the transition exactly once.
func (s *Synchronizer) ExitToLobby() {
	s.bus.Do(func() {
		if s.phase != PhaseRoundSummary {
			return
		}
		s.returnToLobby()
	})
}

// returnToLobby is the terminal transition of a round. Already being in the
// Lobby phase makes it a no-op, which is what guarantees at-most-once
// semantics between the countdown and a manual exit.
func (s *Synchronizer) returnToLobby() {
	if s.detached || s.phase == PhaseLobby {
		return
	}
	s.stopCountdown()
	s.phase = PhaseLobby
	s.cards = nil
	s.winner = nil
	s.challenge = nil
	s.notifier.ReturnedToLobby()
	if s.onReturnToLobby != nil {
		s.onReturnToLobby()
	}
}

// returnToGame resumes the round after a false accusation against this
// client failed to stand.
func (s *Synchronizer) returnToGame() {
	if s.detached || s.phase != PhaseArbitration {
		return
	}
	s.stopCountdown()
	s.phase = PhaseInGame
	s.winner = nil
	s.challenge = nil
	s.notifier.ReturnedToGame()
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
		log.Debug().Err(err).Msg("game request failed on dead channel")
	default:
		log.Error().Err(err).Msg("unexpected game request failure")
		s.notifier.Unexpected(err)
	}
}
