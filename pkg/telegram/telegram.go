package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nene-agent/sessionmem/pkg/session"
)

type TelegramConfig struct {
	Token     string
	Proxy     string
	AllowFrom []string
}

// Handler serves one update inside its session.
type Handler func(ctx context.Context, c *Context) error

// Sender is the part of the Bot API a Context needs.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

type Context struct {
	Update telego.Update
	Memory session.Memory
	ChatID int64

	sender Sender
}

// Text is the message text or caption of the update, if any.
func (c *Context) Text() string {
	msg := c.Update.Message
	if msg == nil {
		return ""
	}
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

// Reply sends text to the session chat and records the sent message. When
// registry is not empty the message is also put into that registry.
func (c *Context) Reply(ctx context.Context, text string, registry string) (*telego.Message, error) {
	sent, err := c.sender.SendMessage(ctx, tu.Message(tu.ID(c.ChatID), text))
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	c.Memory.SetLastSentMessage(sent)
	if registry != "" {
		c.Memory.PutToRegistry(registry, *sent)
	}
	return sent, nil
}

type Channel struct {
	bot       *telego.Bot
	manager   *session.Manager
	handler   Handler
	allowList AllowList
	logger    *slog.Logger

	mu      sync.RWMutex
	running bool
}

func NewChannel(cfg TelegramConfig, manager *session.Manager, handler Handler, logger *slog.Logger) (*Channel, error) {
	var opts []telego.BotOption

	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Channel{
		bot:       bot,
		manager:   manager,
		handler:   handler,
		allowList: AllowList(cfg.AllowFrom),
		logger:    logger,
	}, nil
}

func (c *Channel) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *Channel) setRunning(running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = running
}

func (c *Channel) Start(ctx context.Context) error {
	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: 30,
	})
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	c.setRunning(true)
	c.logger.Info("telegram bot connected", "username", c.bot.Username(), "session_type", c.manager.Type())

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					c.logger.Info("updates channel closed")
					return
				}
				c.dispatch(ctx, update, c.bot)
			}
		}
	}()

	return nil
}

// Stop saves live sessions when the manager has a persister.
func (c *Channel) Stop(ctx context.Context) error {
	c.logger.Info("stopping telegram bot")
	c.setRunning(false)

	if !c.manager.HasPersister() {
		return nil
	}
	if err := c.manager.SaveAll(ctx); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}
	return nil
}

func (c *Channel) dispatch(ctx context.Context, update telego.Update, sender Sender) {
	id, ok := c.manager.IdentifierFor(update)
	if !ok {
		return
	}

	if !c.allowList.Allows(update, id) {
		c.logger.Debug("sender not allowed", "session", id.Key())
		return
	}

	mem, err := c.manager.Acquire(ctx, id)
	if err != nil {
		c.logger.Error("acquire session", "session", id.Key(), "error", err)
		return
	}
	if mem.LanguageCode() == "" {
		mem.SetLanguageCode(session.LanguageOf(update))
	}

	chatID := id.ChatID
	if id.UserOnly() {
		chatID = id.UserID
	}

	hc := &Context{
		Update: update,
		Memory: mem,
		ChatID: chatID,
		sender: sender,
	}
	if err := c.handler(ctx, hc); err != nil {
		c.logger.Error("handler failed", "session", id.Key(), "error", err)
	}

	if c.manager.HasPersister() {
		if err := c.manager.Save(ctx, id); err != nil {
			c.logger.Error("save session", "session", id.Key(), "error", err)
		}
	}
}
