package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/autohub/internal/api"
	"github.com/nhle/autohub/internal/app"
	"github.com/nhle/autohub/internal/classify"
	"github.com/nhle/autohub/internal/confirm"
	"github.com/nhle/autohub/internal/credential"
	"github.com/nhle/autohub/internal/events"
	"github.com/nhle/autohub/internal/logger"
	"github.com/nhle/autohub/internal/model"
	"github.com/nhle/autohub/internal/notify"
	"github.com/nhle/autohub/internal/push"
	"github.com/nhle/autohub/internal/store"
	appsync "github.com/nhle/autohub/internal/sync"
)

const usage = `usage:
  autohub                start the terminal client
  autohub login [TOKEN]  store the access token in the system keyring
  autohub logout         remove the stored access token
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "autohub:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := model.LoadConfig(model.DefaultConfigPath())
	if err != nil {
		return err
	}

	creds, err := credential.Open()
	if err != nil {
		return err
	}

	if len(args) > 0 {
		switch args[0] {
		case "login":
			return login(creds, args[1:])
		case "logout":
			return creds.Delete(credential.AccessTokenKey)
		default:
			return fmt.Errorf("unknown command %q\n%s", args[0], usage)
		}
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting autohub",
		zap.String("api", cfg.API.BaseURL),
		zap.String("hub", cfg.Hub.URL),
	)

	history, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer history.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := credential.CurrentSession(ctx, creds.AccessToken)
	if session == nil {
		log.Warn("no valid access token, running without live updates")
	}
	sessionFunc := func(ctx context.Context) *model.Session {
		return credential.CurrentSession(ctx, creds.AccessToken)
	}
	role := model.RoleCarOwner
	if session != nil {
		role = session.Role
	}

	client := api.NewClient(cfg.API.BaseURL, creds.AccessToken, cfg.APITimeout())
	bus := events.New()
	inbox := app.NewInbox(log.Named("ui"))
	unsubscribe := bus.Subscribe(inbox.StatusChanged)
	defer unsubscribe()

	notifications := store.NewNotificationStore(cfg.Notifications.Capacity)

	coordinator := confirm.New(confirm.Options{
		API:          client,
		Bus:          bus,
		History:      history,
		Logger:       log.Named("confirm"),
		OutcomeDelay: time.Duration(cfg.Confirmation.OutcomeDisplaySec) * time.Second,
	})
	coordinator.Start(ctx)
	defer coordinator.Stop()

	service := notify.New(notify.Options{
		API:            client,
		Store:          notifications,
		History:        history,
		Classifier:     classify.New(role),
		Coordinator:    coordinator,
		Bus:            bus,
		Logger:         log.Named("notify"),
		OnToast:        inbox.Toast,
		OnReviewPrompt: inbox.ReviewPrompt,
		Capacity:       cfg.Notifications.Capacity,
	})
	defer service.Flush()
	if err := service.Hydrate(ctx); err != nil {
		log.Warn("notification history unavailable", zap.Error(err))
	}

	keepalive := time.Duration(cfg.Hub.KeepaliveSec) * time.Second
	manager := push.NewManager(push.ManagerOptions{
		Session: sessionFunc,
		NewConn: func() push.Conn {
			return push.NewTransport(push.TransportOptions{
				URL:          cfg.Hub.URL,
				Token:        creds.AccessToken,
				RetryDelays:  cfg.RetryDelays(),
				PingInterval: keepalive,
				Logger:       log.Named("transport"),
			})
		},
		MaxRetries: cfg.Hub.ManualRetryMax,
		RetryBase:  time.Duration(cfg.Hub.ManualRetryBaseSec) * time.Second,
		Logger:     log.Named("push"),
	})
	manager.OnNotification(service.Handle)
	manager.OnConnected(func() {
		catchCtx, done := context.WithTimeout(ctx, cfg.APITimeout())
		defer done()
		_ = service.CatchUp(catchCtx)
	})
	manager.OnStateChange(inbox.ConnectionChanged)
	defer manager.StopConnection()

	poller := appsync.New(appsync.Options{
		Bookings:     client,
		Coordinator:  coordinator,
		Session:      sessionFunc,
		InitialDelay: time.Duration(cfg.Confirmation.InitialDelaySec) * time.Second,
		Interval:     time.Duration(cfg.Confirmation.PollIntervalSec) * time.Second,
		WindowBefore: time.Duration(cfg.Confirmation.WindowBeforeMin) * time.Minute,
		WindowAfter:  time.Duration(cfg.Confirmation.WindowAfterMin) * time.Minute,
		Logger:       log.Named("poller"),
	})
	defer poller.Stop()

	root := app.New(app.Deps{
		Session:       session,
		Confirmations: coordinator,
		Notifications: service,
		Feed:          notifications,
		Poller:        poller,
		Channel:       manager,
		Bookings:      client,
		Inbox:         inbox,
		Logger:        log.Named("app"),
	})

	p := tea.NewProgram(root, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running program: %w", err)
	}

	log.Info("autohub stopped")
	return nil
}
