package session

import (
	"fmt"
	"strings"

	"github.com/entrhq/tzaarbot/pkg/types"
)

const account = "tzaarbot"

const loginPage = `<form action="gestion.php" method="post">
<input type="hidden" name="pAction" value="login"><input name="username">
</form>`

const idlePage = `<html><body>No game waiting</body></html>`

const inviteNotice = `<html><a href="index.php?p=rejoindre" title="You are invited to a game !"><img src="img/invites.gif"></a></html>`

func invitePage(id string) string {
	return `<table><tr><td>
<form action="gestion.php" method="post"><input type="hidden" name="pAction" value="rejoindre"><input type="hidden" name="id" value="` + id + `"></form>
</td><td><img src="img/invites.gif"></td></tr></table>`
}

// emptyBoardLine renders a board with every playable cell empty.
func emptyBoardLine() string {
	var parts []string
	for k := 0; k < types.CellCount; k++ {
		switch {
		case k == types.CenterIndex:
			parts = append(parts, "_.gif' class='centre'>")
		case types.StandardTemplate.Playable(k):
			parts = append(parts, "_.gif'>")
		}
	}
	return `<div style="background:url('img/plateau.gif')"><img src='img/` + strings.Join(parts, "<img src='img/") + "</div>"
}

// gamePage renders a turn of gameID where the bot is listed second, i.e. plays the minus side.
func gamePage(gameID int, token string) string {
	return strings.Join([]string{
		"<html>",
		`<link rel="StyleSheet" type="text/css" href="tza.css">`,
		`<td><a href="#" onclick="detailjoueur('opponent')">opponent</a></td>`,
		`<td><a href="#" onclick="detailjoueur('` + account + `')">` + account + `</a></td>`,
		emptyBoardLine(),
		fmt.Sprintf(`<form action="traitement.php?id=%d" method="post"><input type="hidden" name="pIdCoup" value="%s"></form>`, gameID, token),
		"</html>",
	}, "\n")
}

// tokenPage is the response to a move submission.
func tokenPage(token string) string {
	return `<html><input type="hidden" name="pIdCoup" value="` + token + `"></html>`
}
