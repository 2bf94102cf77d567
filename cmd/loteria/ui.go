package main

import (
	"fmt"

	"github.com/loteria-online/client/internal/game"
	"github.com/loteria-online/client/internal/protocol"
)

// userMessages is the presentation-layer mapping from server error codes to
// user-facing text. Unknown codes fall back to the server message.
var userMessages = map[string]string{
	protocol.CodeUserOffline:        "That player is offline right now.",
	protocol.CodeLobbyFull:          "That lobby is full.",
	protocol.CodeLobbyNotFound:      "No lobby with that code exists.",
	protocol.CodeGameLobbyNotFound:  "That game no longer exists.",
	protocol.CodeFriendDuplicate:    "You already sent that player a friend request.",
	protocol.CodeFriendNotFound:     "That player is not on your friends list.",
	protocol.CodeNotHost:            "Only the host can do that.",
	protocol.CodeGameInProgress:     "A round is already in progress.",
	protocol.CodeInvalidDeclaration: "Your board does not complete a Loteria.",
	protocol.CodeInvalidCredentials: "Wrong username or password.",
	protocol.CodeSaveFailed:         "The round could not be saved; results may be missing.",
}

func userMessage(code, fallback string) string {
	if msg, ok := userMessages[code]; ok {
		return msg
	}
	return fallback
}

// consoleUI is the terminal presentation layer: it implements the notifier
// interfaces of all three synchronizers.
type consoleUI struct{}

func (u *consoleUI) Fault(code, message string) {
	fmt.Printf("! %s\n", userMessage(code, message))
}

func (u *consoleUI) Unexpected(err error) {
	fmt.Printf("! something went wrong: %v\n", err)
}

func (u *consoleUI) NavigateHome(reason string) {
	switch reason {
	case "kicked":
		fmt.Println("You were kicked from the lobby.")
	case "closed":
		fmt.Println("The host closed the lobby.")
	default:
		fmt.Println("You left the lobby.")
	}
}

func (u *consoleUI) CardDrawn(card protocol.Card) {
	fmt.Printf("Card drawn: %s\n", card.Name)
}

func (u *consoleUI) WinDeclared(nickname string) {
	fmt.Printf("%s declared Loteria! /challenge within the window to dispute\n", nickname)
}

func (u *consoleUI) CountdownTick(phase game.Phase, remaining int) {
	if remaining > 0 && remaining%5 == 0 {
		fmt.Printf("... %ds\n", remaining)
	}
}

func (u *consoleUI) ArbitrationNotice(text string) {
	fmt.Println(text)
}

func (u *consoleUI) RoundSummaryEntered(winner string) {
	if winner == "" {
		fmt.Println("The deck ran out with no winner.")
		return
	}
	fmt.Printf("Round over, %s wins. /exit to return to the lobby now\n", winner)
}

func (u *consoleUI) TransientError(code string) {
	fmt.Printf("! %s\n", userMessage(code, code))
}

func (u *consoleUI) ReturnedToGame() {
	fmt.Println("Back to the game.")
}

func (u *consoleUI) ReturnedToLobby() {
	fmt.Println("Back in the lobby.")
}

func (u *consoleUI) FriendRequestReceived(p protocol.FriendRequestPayload) {
	fmt.Printf("%s sent you a friend request\n", p.FromNickname)
}

func (u *consoleUI) LobbyInviteReceived(p protocol.LobbyInvitePayload) {
	fmt.Printf("%s invited you to lobby %s\n", p.FromNickname, p.Code)
}
