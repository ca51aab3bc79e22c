package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nene-agent/sessionmem/config"
	"github.com/nene-agent/sessionmem/pkg/session"
	"github.com/nene-agent/sessionmem/pkg/store"
	"github.com/nene-agent/sessionmem/pkg/telegram"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		if err := config.Init(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("sessionbot stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	opts := []session.ManagerOption{
		session.WithType(cfg.SessionType()),
		session.WithLogger(logger),
		session.WithRoles(
			session.Role{Name: "user", Trees: []string{"main", "notes"}, Level: 0},
			session.Role{Name: "admin", Trees: []string{"main", "notes", "admin"}, Level: 10},
		),
		session.WithInitializer(func(m session.Memory) {
			if _, err := m.AddComponent(Counter{}); err != nil {
				logger.Error("init counter", "error", err)
			}
			if err := m.SetUserRole("user"); err != nil {
				logger.Error("init role", "error", err)
			}
			m.SetCurrentTree(session.NewTree("main"))
		}),
	}

	if cfg.Session.Persist {
		st, err := store.NewSQLiteStore(cfg.Session.DataDir)
		if err != nil {
			return err
		}
		defer st.Close()
		opts = append(opts, session.WithPersister(st))
	}

	manager := session.NewManager(opts...)

	ch, err := telegram.NewChannel(telegram.TelegramConfig{
		Token:     cfg.Telegram.Token,
		Proxy:     cfg.Telegram.Proxy,
		AllowFrom: cfg.Telegram.AllowFrom,
	}, manager, handle, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ch.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return ch.Stop(stopCtx)
}

// Counter is the per-session component behind /count.
type Counter struct {
	Count int `json:"count"`
}

func handle(ctx context.Context, c *telegram.Context) error {
	text := strings.TrimSpace(c.Text())
	if text == "" {
		return nil
	}

	command, arg, _ := strings.Cut(text, " ")
	reply, err := respond(c.Memory, command, strings.TrimSpace(arg))
	if err != nil {
		return err
	}
	if reply == "" {
		return nil
	}

	_, err = c.Reply(ctx, reply, "replies")
	return err
}

func respond(m session.Memory, command, arg string) (string, error) {
	switch command {
	case "/start":
		if m.LastSentMessage() != nil {
			return "Welcome back.", nil
		}
		return "Hi! Try /count, /note <text>, /notes, /lang or /reset.", nil

	case "/count":
		counter, ok, err := session.Component[Counter](m)
		if err != nil {
			return "", err
		}
		if !ok {
			counter = Counter{}
		}
		counter.Count++
		if _, err := m.AddComponent(counter); err != nil {
			return "", err
		}
		return fmt.Sprintf("Count: %d", counter.Count), nil

	case "/note":
		if arg == "" {
			return "Usage: /note <text>", nil
		}
		notes, _, err := session.ValueIn[[]string](m, "notes", session.NewTree("notes"))
		if err != nil {
			return "", err
		}
		notes = append(notes, arg)
		if err := m.PutIn("notes", session.NewTree("notes"), notes); err != nil {
			return "", err
		}
		if err := m.PutLocal("last_note", arg); err != nil {
			return "", err
		}
		return fmt.Sprintf("Saved note #%d.", len(notes)), nil

	case "/notes":
		notes, ok, err := session.ValueIn[[]string](m, "notes", session.NewTree("notes"))
		if err != nil {
			return "", err
		}
		if !ok || len(notes) == 0 {
			return "No notes yet.", nil
		}
		last, _, err := session.ValueLocal[string](m, "last_note")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s\n\nLast: %s", strings.Join(notes, "\n"), last), nil

	case "/lang":
		lang, ok, err := session.Value[string](m, "lang_override")
		if err != nil {
			return "", err
		}
		if arg != "" {
			m.Put("lang_override", arg)
			return fmt.Sprintf("Language set to %s.", arg), nil
		}
		if !ok {
			lang = m.LanguageCode()
		}
		return fmt.Sprintf("Language: %s", lang), nil

	case "/reset":
		if !session.ContainsComponent[Counter](m) {
			return "Nothing to reset.", nil
		}
		counter, _, err := session.RemoveComponent[Counter](m)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Counter reset from %d.", counter.Count), nil

	default:
		return "", nil
	}
}
