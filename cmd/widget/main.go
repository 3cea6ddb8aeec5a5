// Assist - Headless Chat Widget Client
//
// A terminal front end for the widget core: it keeps a persistent visitor
// identity in a local SQLite file, authenticates against the backend and
// relays messages over the shared transport. Commands: /bot <question>,
// /admin, /logout, /quit; everything else goes to the operator conversation.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/storehive/assist/internal/assistant"
	"github.com/storehive/assist/internal/config"
	"github.com/storehive/assist/internal/domain"
	"github.com/storehive/assist/internal/session"
	"github.com/storehive/assist/internal/store"
	"github.com/storehive/assist/internal/transport"
	"github.com/storehive/assist/internal/widget"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err == nil {
		slog.Debug("Loaded .env file")
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	backendURL := envOr("BACKEND_URL", "http://localhost:8080")
	dbPath := envOr("WIDGET_DB_PATH", "./data/widget.db")
	redisAddr := envOr("REDIS_ADDR", "localhost:6379")
	siteHint := envOr("SITE_HINT", backendURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := store.NewSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer func() { _ = repo.Close() }()

	ts := transport.NewHTTPTokenSource(backendURL+"/api/realtime/auth", nil)
	conn, err := transport.ConnectRedis(ctx, transport.RedisConfig{Addr: redisAddr}, ts)
	if err != nil {
		return fmt.Errorf("connect realtime transport: %w", err)
	}
	defer func() { _ = conn.Close() }()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	w := widget.New(repo, conn, assistant.NewClient(backendURL), widget.Config{
		SiteHint:      siteHint,
		SessionTTL:    cfg.SessionTTL,
		AdminTTL:      cfg.AdminTTL,
		TypingTimeout: cfg.TypingTimeout,
		Role:          domain.RoleUser,
	})
	defer w.Close()

	session.StartSweeper(ctx, w.Sessions, cfg.SweepInterval)

	init, err := w.Init(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("visitor: %s (valid session: %v)\n", init.VisitorID, init.HasValidSession)

	if !init.HasValidSession {
		fields, err := promptForm()
		if err != nil {
			return err
		}
		sess, err := w.Open(ctx, fields)
		if err != nil {
			return err
		}
		fmt.Printf("session open until %s\n", sess.ExpiresAt.Format("2006-01-02 15:04"))
	} else if _, err := w.Open(ctx, nil); err != nil {
		return err
	}

	w.OnReply(func(env domain.Envelope) {
		fmt.Printf("\n[%s] %s\n> ", env.Sender, env.Text)
	})

	return inputLoop(ctx, w)
}

func inputLoop(ctx context.Context, w *widget.Widget) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}

		switch {
		case line == "/quit":
			return nil

		case line == "/logout":
			if err := w.Logout(ctx); err != nil {
				fmt.Println("logout failed:", err)
			} else {
				fmt.Println("logged out")
				return nil
			}

		case line == "/admin":
			active, err := w.Admin.IsActive(ctx)
			if err != nil {
				fmt.Println("admin check failed:", err)
			} else if active {
				if err := w.Admin.Revoke(ctx); err != nil {
					fmt.Println("revoke failed:", err)
				} else {
					fmt.Println("admin mode off")
				}
			} else if err := w.Admin.Grant(ctx); err != nil {
				fmt.Println("grant failed:", err)
			} else {
				fmt.Println("admin mode on")
			}

		case strings.HasPrefix(line, "/bot "):
			question := strings.TrimPrefix(line, "/bot ")
			reply, err := w.Ask(ctx, question)
			if err != nil {
				fmt.Println("assistant error:", err)
			} else {
				fmt.Println("[bot]", reply)
			}

		default:
			_ = w.StopTyping(ctx)
			if err := w.Send(ctx, line); err != nil {
				fmt.Println("send failed:", err)
			}
		}

		if w.RemoteTyping() {
			fmt.Println("(operator is typing...)")
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}

func promptForm() (map[string]string, error) {
	scanner := bufio.NewScanner(os.Stdin)
	fields := make(map[string]string)
	for _, key := range []string{"name", "email"} {
		fmt.Printf("%s: ", key)
		if !scanner.Scan() {
			return nil, scanner.Err()
		}
		fields[key] = strings.TrimSpace(scanner.Text())
	}
	return fields, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
