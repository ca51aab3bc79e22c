package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nene-agent/sessionmem/pkg/session"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*telego.SendMessageParams
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, params)
	return &telego.Message{
		MessageID: len(f.sent),
		Chat:      telego.Chat{ID: params.ChatID.ID},
		Text:      params.Text,
	}, nil
}

func newTestChannel(manager *session.Manager, handler Handler, allow ...string) *Channel {
	return &Channel{
		manager:   manager,
		handler:   handler,
		allowList: AllowList(allow),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func textUpdate(userID, chatID int64, username, text string) telego.Update {
	return telego.Update{Message: &telego.Message{
		From: &telego.User{ID: userID, Username: username, LanguageCode: "en"},
		Chat: telego.Chat{ID: chatID},
		Text: text,
	}}
}

func TestAllowList(t *testing.T) {
	tests := []struct {
		name   string
		list   AllowList
		sender string
		want   bool
	}{
		{"empty allows all", nil, "1", true},
		{"id match", AllowList{"1"}, "1", true},
		{"id match with username", AllowList{"1"}, "1|alice", true},
		{"username with at", AllowList{"@alice"}, "1|alice", true},
		{"id and username pair", AllowList{"1|alice"}, "1", true},
		{"other user", AllowList{"2", "@bob"}, "1|alice", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.list.IsAllowed(tt.sender))
		})
	}
}

func TestSenderID(t *testing.T) {
	assert.Equal(t, "1|alice", SenderID(1, "alice"))
	assert.Equal(t, "1", SenderID(1, ""))
}

func TestAllowList_Allows(t *testing.T) {
	list := AllowList{"@alice"}

	assert.True(t, list.Allows(textUpdate(1, 2, "alice", "hi"), session.Of(1, 2)))
	assert.False(t, list.Allows(textUpdate(3, 2, "bob", "hi"), session.Of(3, 2)))

	callback := telego.Update{CallbackQuery: &telego.CallbackQuery{From: telego.User{ID: 4, Username: "alice"}}}
	assert.True(t, list.Allows(callback, session.OfUserOnly(4)))
}

func TestDispatch_RunsHandlerInSession(t *testing.T) {
	manager := session.NewManager()
	sender := &fakeSender{}

	var seen []string
	ch := newTestChannel(manager, func(ctx context.Context, c *Context) error {
		seen = append(seen, c.Text())
		count, _, err := session.Value[int](c.Memory, "count")
		if err != nil {
			return err
		}
		c.Memory.Put("count", count+1)
		_, err = c.Reply(ctx, "ok", "replies")
		return err
	})

	ctx := context.Background()
	ch.dispatch(ctx, textUpdate(1, 2, "alice", "one"), sender)
	ch.dispatch(ctx, textUpdate(1, 2, "alice", "two"), sender)

	assert.Equal(t, []string{"one", "two"}, seen)

	mem, ok := manager.Memory(session.Of(1, 2))
	require.True(t, ok)
	count, ok, err := session.Value[int](mem, "count")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, count)
	assert.Equal(t, "en", mem.LanguageCode())

	require.NotNil(t, mem.LastSentMessage())
	assert.Equal(t, 2, mem.LastSentMessage().MessageID)
	assert.Len(t, mem.Registry("replies"), 2)

	require.Len(t, sender.sent, 2)
	assert.Equal(t, int64(2), sender.sent[0].ChatID.ID)
}

func TestDispatch_UserSessionRepliesToUser(t *testing.T) {
	manager := session.NewManager(session.WithType(session.TypeUser))
	sender := &fakeSender{}
	ch := newTestChannel(manager, func(ctx context.Context, c *Context) error {
		_, err := c.Reply(ctx, "hi", "")
		return err
	})

	ch.dispatch(context.Background(), textUpdate(7, -100, "", "hello"), sender)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(7), sender.sent[0].ChatID.ID)
	_, ok := manager.Memory(session.OfUserOnly(7))
	assert.True(t, ok)
}

func TestDispatch_SkipsDisallowedAndBots(t *testing.T) {
	manager := session.NewManager()
	called := false
	ch := newTestChannel(manager, func(ctx context.Context, c *Context) error {
		called = true
		return nil
	}, "@bob")

	ctx := context.Background()
	ch.dispatch(ctx, textUpdate(1, 2, "alice", "hi"), &fakeSender{})

	bot := telego.Update{Message: &telego.Message{From: &telego.User{ID: 9, IsBot: true, Username: "bob"}, Chat: telego.Chat{ID: 2}}}
	ch.dispatch(ctx, bot, &fakeSender{})

	assert.False(t, called)
	assert.Empty(t, manager.Sessions())
}

func TestReply_SendError(t *testing.T) {
	mem := session.NewMemory(session.Of(1, 2))
	c := &Context{Memory: mem, ChatID: 2, sender: &fakeSender{err: errors.New("flood")}}

	_, err := c.Reply(context.Background(), "hi", "replies")
	assert.ErrorContains(t, err, "send message")
	assert.Nil(t, mem.LastSentMessage())
	assert.Empty(t, mem.Registry("replies"))
}

func TestContextText(t *testing.T) {
	c := &Context{Update: telego.Update{Message: &telego.Message{Caption: "photo"}}}
	assert.Equal(t, "photo", c.Text())

	c = &Context{Update: telego.Update{}}
	assert.Empty(t, c.Text())
}
