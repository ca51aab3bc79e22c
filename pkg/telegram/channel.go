package telegram

import (
	"strconv"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/nene-agent/sessionmem/pkg/session"
)

// AllowList decides which senders may reach a session. Entries are user ids,
// usernames (with or without "@") or "id|username" pairs. An empty list allows
// everyone.
type AllowList []string

// Allows checks the sender of update, whose session is id.
func (l AllowList) Allows(update telego.Update, id session.Identifier) bool {
	return l.IsAllowed(SenderID(id.UserID, usernameOf(update)))
}

// IsAllowed checks a sender in the "id" or "id|username" form.
func (l AllowList) IsAllowed(sender string) bool {
	if len(l) == 0 {
		return true
	}

	id, user := splitSender(sender)
	for _, entry := range l {
		bare := strings.TrimPrefix(entry, "@")
		entryID, entryUser := splitSender(bare)

		switch {
		case sender == entry, sender == bare, id == entry, id == bare, id == entryID:
			return true
		case entryUser != "" && sender == entryUser:
			return true
		case user != "" && (user == entry || user == bare || user == entryUser):
			return true
		}
	}
	return false
}

// SenderID formats a sender for IsAllowed.
func SenderID(userID int64, username string) string {
	id := strconv.FormatInt(userID, 10)
	if username == "" {
		return id
	}
	return id + "|" + username
}

func splitSender(s string) (id, user string) {
	if i := strings.Index(s, "|"); i > 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

func usernameOf(update telego.Update) string {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.Username
	case update.EditedMessage != nil && update.EditedMessage.From != nil:
		return update.EditedMessage.From.Username
	case update.CallbackQuery != nil:
		return update.CallbackQuery.From.Username
	case update.InlineQuery != nil:
		return update.InlineQuery.From.Username
	case update.ChosenInlineResult != nil:
		return update.ChosenInlineResult.From.Username
	}
	return ""
}
