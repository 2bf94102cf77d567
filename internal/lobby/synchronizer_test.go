package lobby

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/loteria-online/client/internal/dispatch"
	"github.com/loteria-online/client/internal/faults"
	"github.com/loteria-online/client/internal/protocol"
)

type fakeRequester struct {
	mu          sync.Mutex
	sendErr     error
	leaveErr    error
	refreshSnap protocol.LobbySnapshot
	refreshErr  error

	sent    []string
	kicked  []int
	started int
	invited []int
	left    int
}

func (f *fakeRequester) SendMessage(ctx context.Context, code, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return f.sendErr
}

func (f *fakeRequester) LeaveLobby(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left++
	return f.leaveErr
}

func (f *fakeRequester) KickPlayer(ctx context.Context, code string, playerID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicked = append(f.kicked, playerID)
	return nil
}

func (f *fakeRequester) StartGame(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return nil
}

func (f *fakeRequester) InviteFriendToLobby(ctx context.Context, code string, userID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invited = append(f.invited, userID)
	return nil
}

func (f *fakeRequester) GetLobbyState(ctx context.Context, code string) (protocol.LobbySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshSnap, f.refreshErr
}

type recorder struct {
	mu         sync.Mutex
	faults     []string
	unexpected []error
	home       []string
}

func (r *recorder) Fault(code, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, code)
}

func (r *recorder) Unexpected(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unexpected = append(r.unexpected, err)
}

func (r *recorder) NavigateHome(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.home = append(r.home, reason)
}

func (r *recorder) homeReasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.home...)
}

func twoPlayerSnapshot() protocol.LobbySnapshot {
	return protocol.LobbySnapshot{
		Code: "482913",
		Players: []protocol.Player{
			{ID: 1, Nickname: "Ana", IsHost: true},
			{ID: 2, Nickname: "Bob"},
		},
	}
}

func newTestSync(t *testing.T) (*dispatch.Bus, *fakeRequester, *recorder, *Synchronizer) {
	t.Helper()
	bus := dispatch.NewBus()
	t.Cleanup(bus.Close)
	req := &fakeRequester{}
	rec := &recorder{}
	s := NewSynchronizer(bus, req, rec, twoPlayerSnapshot())
	return bus, req, rec, s
}

// onLoop runs fn on the dispatch loop and waits for it, so tests can read
// synchronizer state without racing handlers.
func onLoop(t *testing.T, bus *dispatch.Bus, fn func()) {
	t.Helper()
	done := make(chan struct{})
	bus.Do(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch loop stalled")
	}
}

// waitFor polls a condition evaluated on the dispatch loop.
func waitFor(t *testing.T, bus *dispatch.Bus, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var ok bool
		onLoop(t, bus, func() { ok = cond() })
		if ok {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestHydrateFromSnapshot(t *testing.T) {
	bus, _, _, s := newTestSync(t)
	onLoop(t, bus, func() {
		if s.Code() != "482913" {
			t.Errorf("code = %q", s.Code())
		}
		if len(s.Players()) != 2 {
			t.Errorf("roster = %+v", s.Players())
		}
	})
}

func TestPlayerJoinedIsIdempotent(t *testing.T) {
	bus, _, _, s := newTestSync(t)

	joined := protocol.PlayerJoinedPayload{Player: protocol.Player{ID: 3, Nickname: "Caro"}}
	bus.Publish(protocol.EventPlayerJoined, joined)
	bus.Publish(protocol.EventPlayerJoined, joined)
	bus.Publish(protocol.EventPlayerJoined, joined)

	onLoop(t, bus, func() {
		if got := len(s.Players()); got != 3 {
			t.Errorf("roster size = %d, want 3", got)
		}
		chat := s.Chat()
		if len(chat) != 1 {
			t.Errorf("expected exactly one join line, got %v", chat)
		}
	})
}

func TestPlayerLeftUnknownIDIsNoOp(t *testing.T) {
	bus, _, _, s := newTestSync(t)

	bus.Publish(protocol.EventPlayerLeft, protocol.PlayerLeftPayload{PlayerID: 7})

	onLoop(t, bus, func() {
		players := s.Players()
		if len(players) != 2 || players[0].ID != 1 || players[1].ID != 2 {
			t.Errorf("roster mutated: %+v", players)
		}
		if len(s.Chat()) != 0 {
			t.Errorf("unexpected chat lines: %v", s.Chat())
		}
	})
}

func TestPlayerLeftAndKickedRemove(t *testing.T) {
	bus, _, _, s := newTestSync(t)

	bus.Publish(protocol.EventPlayerLeft, protocol.PlayerLeftPayload{PlayerID: 2})
	bus.Publish(protocol.EventPlayerKicked, protocol.PlayerKickedPayload{PlayerID: 1})
	// Duplicate removals must be harmless.
	bus.Publish(protocol.EventPlayerLeft, protocol.PlayerLeftPayload{PlayerID: 2})

	onLoop(t, bus, func() {
		if got := len(s.Players()); got != 0 {
			t.Errorf("roster size = %d, want 0", got)
		}
		if got := len(s.Chat()); got != 2 {
			t.Errorf("chat lines = %d, want 2", got)
		}
	})
}

func TestChatTranscriptPreservesOrder(t *testing.T) {
	bus, _, _, s := newTestSync(t)

	bus.Publish(protocol.EventChatMessageReceived, protocol.ChatMessagePayload{Nickname: "Ana", Text: "hola"})
	bus.Publish(protocol.EventChatMessageReceived, protocol.ChatMessagePayload{Nickname: "Bob", Text: "buenas"})

	onLoop(t, bus, func() {
		chat := s.Chat()
		if len(chat) != 2 || chat[0] != "Ana: hola" || chat[1] != "Bob: buenas" {
			t.Errorf("unexpected transcript: %v", chat)
		}
	})
}

func TestYouWereKickedDetachesAndNavigatesHome(t *testing.T) {
	bus, _, rec, s := newTestSync(t)

	bus.Publish(protocol.EventYouWereKicked, struct{}{})
	// Events after the terminal notice must not reach the synchronizer.
	bus.Publish(protocol.EventPlayerJoined, protocol.PlayerJoinedPayload{Player: protocol.Player{ID: 9, Nickname: "Late"}})

	onLoop(t, bus, func() {
		if got := len(s.Players()); got != 2 {
			t.Errorf("roster mutated after detach: %d players", got)
		}
	})
	if got := rec.homeReasons(); len(got) != 1 || got[0] != "kicked" {
		t.Fatalf("expected one kicked navigation, got %v", got)
	}
}

func TestLobbyClosedNavigatesHome(t *testing.T) {
	bus, _, rec, _ := newTestSync(t)

	bus.Publish(protocol.EventLobbyClosed, struct{}{})
	onLoop(t, bus, func() {})

	if got := rec.homeReasons(); len(got) != 1 || got[0] != "closed" {
		t.Fatalf("expected one closed navigation, got %v", got)
	}
}

func TestLobbyStateUpdatedRehydrates(t *testing.T) {
	bus, _, _, s := newTestSync(t)

	bus.Publish(protocol.EventLobbyStateUpdated, protocol.LobbyStateUpdatedPayload{
		Snapshot: protocol.LobbySnapshot{
			Code:    "482913",
			Players: []protocol.Player{{ID: 1, Nickname: "Ana", IsHost: true}},
			Chat:    []string{"* Bob left the lobby"},
		},
	})
	// A snapshot for another lobby is ignored.
	bus.Publish(protocol.EventLobbyStateUpdated, protocol.LobbyStateUpdatedPayload{
		Snapshot: protocol.LobbySnapshot{Code: "000000"},
	})

	onLoop(t, bus, func() {
		if got := len(s.Players()); got != 1 {
			t.Errorf("roster size = %d, want 1", got)
		}
		if s.Code() != "482913" {
			t.Errorf("code = %q", s.Code())
		}
	})
}

func TestRefreshLobbyStateRehydrates(t *testing.T) {
	bus, req, _, s := newTestSync(t)
	req.refreshSnap = protocol.LobbySnapshot{
		Code:    "482913",
		Players: []protocol.Player{{ID: 1, Nickname: "Ana", IsHost: true}, {ID: 5, Nickname: "Eva"}, {ID: 6, Nickname: "Leo"}},
	}

	s.RefreshLobbyState()
	waitFor(t, bus, func() bool { return len(s.Players()) == 3 }, "refreshed roster")
}

func TestLeaveLobbySuccessNavigatesHome(t *testing.T) {
	bus, req, rec, s := newTestSync(t)

	onLoop(t, bus, func() { s.LeaveLobby() })
	waitFor(t, bus, func() bool { return len(rec.homeReasons()) == 1 }, "navigation home")

	req.mu.Lock()
	defer req.mu.Unlock()
	if req.left != 1 {
		t.Fatalf("expected one leave call, got %d", req.left)
	}
}

func TestOutboundFaultIsMappedNotApplied(t *testing.T) {
	bus, req, rec, s := newTestSync(t)
	req.sendErr = &faults.ServiceFault{Code: protocol.CodeLobbyFull, Message: "full"}

	onLoop(t, bus, func() { s.SendMessage("hola") })
	waitFor(t, bus, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.faults) == 1
	}, "mapped fault")

	rec.mu.Lock()
	code := rec.faults[0]
	rec.mu.Unlock()
	if code != protocol.CodeLobbyFull {
		t.Fatalf("expected LOBBY_FULL, got %s", code)
	}
	// The transcript is not mutated optimistically.
	onLoop(t, bus, func() {
		if len(s.Chat()) != 0 {
			t.Errorf("chat mutated on failed send: %v", s.Chat())
		}
	})
}
