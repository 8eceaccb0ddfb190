package server

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/crystal-mush/mushgames/pkg/boltstore"
	"github.com/crystal-mush/mushgames/pkg/gamedb"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNameTaken          = errors.New("that name is already taken")
	ErrBadName            = errors.New("that name is not allowed")
)

// ParseConnect parses a login-screen command into (command, user, password).
// Handles: "connect name password", "create name password" and quoted
// names ("connect \"Long Name\" password").
func ParseConnect(msg string) (command, user, password string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "", "", ""
	}

	parts := strings.SplitN(msg, " ", 2)
	command = strings.ToLower(parts[0])
	if len(parts) < 2 {
		return command, "", ""
	}

	rest := strings.TrimSpace(parts[1])
	if rest == "" {
		return command, "", ""
	}

	if rest[0] == '"' {
		end := strings.Index(rest[1:], "\"")
		if end >= 0 {
			user = rest[1 : end+1]
			password = strings.TrimSpace(rest[end+2:])
			return
		}
	}

	parts = strings.SplitN(rest, " ", 2)
	user = parts[0]
	if len(parts) > 1 {
		password = strings.TrimSpace(parts[1])
	}
	return
}

// validName rejects names that would confuse the command parser or
// collide with game verbs.
func validName(name string) bool {
	if len(name) < 2 || len(name) > 32 {
		return false
	}
	if strings.ContainsAny(name, " \";#*=,") {
		return false
	}
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	_, reserved := verbAliases[strings.ToLower(name)]
	return !reserved
}

// Authenticate checks a name and password against the account store and
// returns the player's ref.
func (g *Game) Authenticate(name, password string) (gamedb.DBRef, error) {
	acct, err := g.Store.Authenticate(name, password)
	if err != nil {
		if errors.Is(err, boltstore.ErrNoAccount) || errors.Is(err, boltstore.ErrBadPassword) {
			return gamedb.Nothing, ErrInvalidCredentials
		}
		return gamedb.Nothing, err
	}
	obj, ok := g.DB.Get(acct.Ref)
	if !ok || obj.Type != gamedb.TypePlayer {
		log.Printf("WARNING: account %s points at missing player #%d", acct.Name, acct.Ref)
		return gamedb.Nothing, ErrInvalidCredentials
	}
	return obj.DBRef, nil
}

// CreatePlayer makes a new player in the lobby and stores its account.
func (g *Game) CreatePlayer(name, password string) (gamedb.Object, error) {
	if !validName(name) {
		return gamedb.Object{}, ErrBadName
	}
	if g.DB.LookupPlayer(name) != gamedb.Nothing {
		return gamedb.Object{}, ErrNameTaken
	}
	if _, err := g.Store.Account(name); err == nil {
		return gamedb.Object{}, ErrNameTaken
	}
	obj := g.DB.Create(name, gamedb.TypePlayer, g.Lobby, 0)
	if err := g.Store.CreateAccount(obj, password); err != nil {
		if errors.Is(err, boltstore.ErrAccountExists) {
			return gamedb.Object{}, ErrNameTaken
		}
		return gamedb.Object{}, fmt.Errorf("create %s: %w", name, err)
	}
	return obj, nil
}

// WelcomeText is the default welcome screen shown to new connections.
const WelcomeText = `
  __  __           _        ____
 |  \/  |_   _ ___| |__    / ___| __ _ _ __ ___   ___  ___
 | |\/| | | | / __| '_ \  | |  _ / _' | '_ ' _ \ / _ \/ __|
 | |  | | |_| \__ \ | | | | |_| | (_| | | | | | |  __/\__ \
 |_|  |_|\__,_|___/_| |_|  \____|\__,_|_| |_| |_|\___||___/

"connect <name> <password>" to connect to your existing character.
"create <name> <password>" to create a new character.
"WHO" to see who is connected.
"QUIT" to disconnect.

`
