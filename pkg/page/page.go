// Package page classifies and scrapes the platform's HTML pages.
//
// Every function here is a pure predicate or extractor over the raw markup.
// Classification is by exact literal substrings, the same strings the platform
// has rendered for years; fragility is kept inside this package so each rule can
// be tested against fixture pages.
package page

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Literal markers rendered by the platform.
const (
	GameMarker    = `<link rel="StyleSheet" type="text/css" href="tza.css">`
	BoardMarker   = `img/plateau.gif`
	LoginMarker   = `name="pAction" value="login">`
	InviteMarker  = `title="You are invited to a game !">`
	TokenMarker   = `name="pIdCoup" value="`
	GameIDMarker  = `traitement.php?id=`
	PlayerMarker  = `onclick="detailjoueur`
	InviteImage   = `img/invites.gif`
	CellDelimiter = `'img/`
)

// IsGamePage reports whether the page is a game in which the bot has to move.
func IsGamePage(markup string) bool {
	return strings.Contains(markup, GameMarker)
}

// HasBoard reports whether the page renders a board.
func HasBoard(markup string) bool {
	return strings.Contains(markup, BoardMarker)
}

// HasLoginForm reports whether the platform asks for credentials, i.e. the session expired.
func HasLoginForm(markup string) bool {
	return strings.Contains(markup, LoginMarker)
}

// HasInvite reports whether the bot has a pending game invitation.
func HasInvite(markup string) bool {
	return strings.Contains(markup, InviteMarker)
}

// IsPlayerAnnotation reports whether a line is one of the player name annotations.
func IsPlayerAnnotation(line string) bool {
	return strings.Contains(line, PlayerMarker)
}

// NamesPlayer reports whether an annotation line renders the given account name.
func NamesPlayer(line, account string) bool {
	return strings.Contains(line, ">"+account+"<")
}

// ExtractToken returns the move token embedded after TokenMarker, up to the next quote.
func ExtractToken(markup string) (string, bool) {
	i := strings.Index(markup, TokenMarker)
	if i < 0 {
		return "", false
	}
	start := i + len(TokenMarker)
	end := strings.IndexByte(markup[start:], '"')
	if end < 0 {
		return "", false
	}
	return markup[start : start+end], true
}

// ExtractGameID returns the numeric game id from the move form action.
func ExtractGameID(markup string) (int, bool) {
	i := strings.Index(markup, GameIDMarker)
	if i < 0 {
		return 0, false
	}
	start := i + len(GameIDMarker)
	end := strings.IndexByte(markup[start:], '"')
	if end < 0 {
		return 0, false
	}
	id, err := strconv.Atoi(strings.TrimSpace(markup[start : start+end]))
	if err != nil {
		return 0, false
	}
	return id, true
}

// ExtractInviteID finds the id of the invitation to join.
//
// The join form sits shortly before the last invitation image. The search starts
// window bytes before that image and returns the value of the hidden "id" input
// of the first form whose pAction is "rejoindre".
func ExtractInviteID(markup string, window int) (string, bool) {
	img := strings.LastIndex(markup, InviteImage)
	if img < 0 {
		return "", false
	}
	start := img - window
	if start < 0 {
		start = 0
	}

	z := html.NewTokenizer(strings.NewReader(markup[start:]))
	joinForm := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "input" {
				continue
			}
			name, value := attr(tok, "name"), attr(tok, "value")
			switch {
			case name == "pAction":
				joinForm = value == "rejoindre"
			case name == "id" && joinForm:
				return value, value != ""
			}
		}
	}
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
