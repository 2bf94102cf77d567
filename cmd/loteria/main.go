package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/loteria-online/client/internal/api"
	"github.com/loteria-online/client/internal/config"
	"github.com/loteria-online/client/internal/dispatch"
	"github.com/loteria-online/client/internal/friends"
	"github.com/loteria-online/client/internal/game"
	"github.com/loteria-online/client/internal/lobby"
	"github.com/loteria-online/client/internal/protocol"
	"github.com/loteria-online/client/internal/session"
	"github.com/loteria-online/client/internal/transport"
)

func main() {
	configPath := flag.String("config", "loteria.yaml", "path to config file")
	username := flag.String("user", "", "username to log in with")
	password := flag.String("pass", "", "password to log in with")
	joinCode := flag.String("join", "", "6-digit lobby code to join; empty creates a lobby")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.Log)

	if *username == "" {
		log.Fatal().Msg("-user is required")
	}

	if err := run(cfg, *username, *password, *joinCode); err != nil {
		log.Fatal().Err(err).Msg("client exited with error")
	}
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func run(cfg config.Config, username, password, joinCode string) error {
	ctx := context.Background()
	clock := clockwork.NewRealClock()
	bus := dispatch.NewBus()
	defer bus.Close()

	tcfg := transport.DefaultConfig(cfg.Server.URL)
	tcfg.DialTimeout = cfg.Server.DialTimeout
	tcfg.WriteTimeout = cfg.Server.WriteTimeout
	tcfg.PingInterval = cfg.Server.PingInterval

	ts := transport.NewSession(tcfg, clock, func() transport.Sink {
		return api.NewPushSink(bus)
	})
	if err := ts.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer ts.CloseSafe()

	client := api.NewClient(ts)
	state := session.NewState()

	loginCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	resp, err := client.Login(loginCtx, username, password)
	cancel()
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	self := session.Session{
		UserID:   resp.UserID,
		Nickname: resp.Nickname,
		CanHost:  resp.CanHost,
		IsGuest:  resp.IsGuest,
	}
	if err := state.Login(self); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	log.Info().Str("nickname", self.Nickname).Msg("logged in")

	ui := &consoleUI{}

	// The channel's integrity is not trusted after an unclassified error or
	// a fault: force logout and shut down; the user relaunches to reconnect.
	lost := make(chan struct{}, 1)
	bus.Subscribe(api.EventConnectionLost, func(payload interface{}) {
		err, _ := payload.(error)
		log.Error().Err(err).Msg("connection to the game server was lost")
		state.Logout()
		select {
		case lost <- struct{}{}:
		default:
		}
	})

	fr := friends.NewSynchronizer(bus, client, ui)
	fr.Refresh()

	var snap protocol.LobbySnapshot
	reqCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	if joinCode != "" {
		snap, err = client.JoinLobby(reqCtx, joinCode)
	} else {
		snap, err = client.CreateLobby(reqCtx)
	}
	cancel()
	if err != nil {
		return fmt.Errorf("enter lobby: %w", err)
	}
	fmt.Printf("Lobby %s - share this code with your friends\n", snap.Code)

	lob := lobby.NewSynchronizer(bus, client, ui, snap)
	gm := game.NewSynchronizer(bus, client, clock, ui, snap.Code, self, func() {
		lob.RefreshLobbyState()
	})
	defer bus.Do(func() {
		gm.Detach()
		lob.Detach()
	})

	return commandLoop(bus, lob, gm, lost)
}

// commandLoop reads slash commands from stdin until quit or channel loss.
func commandLoop(bus *dispatch.Bus, lob *lobby.Synchronizer, gm *game.Synchronizer, lost <-chan struct{}) error {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Println("commands: /start /declare /challenge /exit /kick <id> /invite <id> /leave /quit, anything else chats")
	for {
		select {
		case <-lost:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "/quit" {
				return nil
			}
			handleCommand(bus, lob, gm, line)
		}
	}
}

func handleCommand(bus *dispatch.Bus, lob *lobby.Synchronizer, gm *game.Synchronizer, line string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/start":
		lob.StartGame()
	case "/declare":
		gm.DeclareLoteria()
	case "/challenge":
		bus.Do(func() { gm.ChallengeFalseLoteria() })
	case "/exit":
		gm.ExitToLobby()
	case "/leave":
		lob.LeaveLobby()
	case "/kick":
		if id, ok := intArg(fields); ok {
			lob.KickPlayer(id)
		}
	case "/invite":
		if id, ok := intArg(fields); ok {
			lob.InviteFriendToLobby(id)
		}
	default:
		lob.SendMessage(line)
	}
}

func intArg(fields []string) (int, bool) {
	if len(fields) < 2 {
		fmt.Println("expected a numeric id argument")
		return 0, false
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil {
		fmt.Println("expected a numeric id argument")
		return 0, false
	}
	return id, true
}
