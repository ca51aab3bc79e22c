package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
)

type Type string

const (
	TypeChat Type = "chat"
	TypeUser Type = "user"
)

func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeChat, "":
		return TypeChat, nil
	case TypeUser:
		return TypeUser, nil
	default:
		return "", fmt.Errorf("unknown session type %q", s)
	}
}

// Identifier addresses a session. A zero ChatID marks a user-only session.
type Identifier struct {
	UserID int64 `json:"user_id"`
	ChatID int64 `json:"chat_id,omitempty"`
}

func Of(userID, chatID int64) Identifier {
	return Identifier{UserID: userID, ChatID: chatID}
}

func OfUserOnly(userID int64) Identifier {
	return Identifier{UserID: userID}
}

func (id Identifier) UserOnly() bool {
	return id.ChatID == 0
}

// Key is the storage form of the identifier, "<user>:<chat>".
func (id Identifier) Key() string {
	return fmt.Sprintf("%d:%d", id.UserID, id.ChatID)
}

func ParseKey(key string) (Identifier, error) {
	userPart, chatPart, ok := strings.Cut(key, ":")
	if !ok {
		return Identifier{}, fmt.Errorf("invalid session key %q", key)
	}

	userID, err := strconv.ParseInt(userPart, 10, 64)
	if err != nil {
		return Identifier{}, fmt.Errorf("parse user id: %w", err)
	}
	chatID, err := strconv.ParseInt(chatPart, 10, 64)
	if err != nil {
		return Identifier{}, fmt.Errorf("parse chat id: %w", err)
	}

	return Of(userID, chatID), nil
}

func (id Identifier) String() string {
	if id.UserOnly() {
		return fmt.Sprintf("session{user=%d}", id.UserID)
	}
	return fmt.Sprintf("session{user=%d, chat=%d}", id.UserID, id.ChatID)
}

// IdentifierFor derives the session identifier of an update. Updates without a
// human sender report false.
func IdentifierFor(update telego.Update, typ Type) (Identifier, bool) {
	from, chat := participants(update)
	if from == nil || from.IsBot {
		return Identifier{}, false
	}

	if typ == TypeUser || chat == nil {
		return OfUserOnly(from.ID), true
	}
	return Of(from.ID, chat.ID), true
}

// LanguageOf reports the language code of the update sender, if any.
func LanguageOf(update telego.Update) string {
	from, _ := participants(update)
	if from == nil {
		return ""
	}
	return from.LanguageCode
}

func participants(update telego.Update) (*telego.User, *telego.Chat) {
	switch {
	case update.Message != nil:
		return update.Message.From, &update.Message.Chat
	case update.EditedMessage != nil:
		return update.EditedMessage.From, &update.EditedMessage.Chat
	case update.CallbackQuery != nil:
		from := update.CallbackQuery.From
		switch m := update.CallbackQuery.Message.(type) {
		case *telego.Message:
			return &from, &m.Chat
		case *telego.InaccessibleMessage:
			return &from, &m.Chat
		default:
			return &from, nil
		}
	case update.InlineQuery != nil:
		from := update.InlineQuery.From
		return &from, nil
	case update.ChosenInlineResult != nil:
		from := update.ChosenInlineResult.From
		return &from, nil
	default:
		return nil, nil
	}
}
