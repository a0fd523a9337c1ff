package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/amrut/notifydesk/internal/api"
	"github.com/amrut/notifydesk/internal/app"
	"github.com/amrut/notifydesk/internal/bus"
	"github.com/amrut/notifydesk/internal/credential"
	"github.com/amrut/notifydesk/internal/model"
	"github.com/amrut/notifydesk/internal/present"
	"github.com/amrut/notifydesk/internal/realtime"
	"github.com/amrut/notifydesk/internal/session"
	"github.com/amrut/notifydesk/internal/store"
	appsync "github.com/amrut/notifydesk/internal/sync"
)

// cacheRetention is how long cached notifications are kept locally.
const cacheRetention = 30 * 24 * time.Hour

var args struct {
	Config   string `arg:"-c,--config" help:"path to config file"`
	Profile  string `arg:"-p,--profile" help:"poller profile: mobile or admin"`
	Headless bool   `arg:"--headless" help:"log notifications instead of running the terminal UI"`
	LogFile  string `arg:"--log-file" help:"log destination while the terminal UI runs" default:"notifydesk.log"`
	UserID   string `arg:"--user,env:NOTIFYDESK_USER_ID" help:"sign in as this user at startup"`
	Token    string `arg:"--token,env:NOTIFYDESK_TOKEN" help:"access token for --user"`
}

func main() {
	// A missing .env is fine; the environment may be set another way.
	_ = godotenv.Load()
	arg.MustParse(&args)

	if err := run(); err != nil {
		log.Fatalf("notifydesk: %v", err)
	}
}

func run() error {
	path := args.Config
	if path == "" {
		path = model.DefaultConfigPath()
	}
	cfg, err := model.LoadConfig(path)
	if err != nil {
		return err
	}
	if args.Profile != "" {
		cfg.Poller.Profile = args.Profile
		if cfg.Poller.Profile == model.ProfileAdmin && cfg.Poller.Interval == model.DefaultMobileInterval {
			cfg.Poller.Interval = model.DefaultAdminInterval
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	if !args.Headless {
		f, err := tea.LogToFile(args.LogFile, "notifydesk")
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
	}

	creds, err := credential.Open(cfg.Credential)
	if err != nil {
		return err
	}

	cache, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer cache.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if n, err := cache.PruneOlderThan(ctx, time.Now().Add(-cacheRetention)); err != nil {
		log.Printf("pruning cache: %v", err)
	} else if n > 0 {
		log.Printf("pruned %d cached notifications", n)
	}

	client := api.NewClient(cfg.Server.BaseURL,
		api.WithTimeout(cfg.Server.RequestTimeout),
		api.WithMaxRetries(cfg.Server.MaxRetries),
	)
	events := bus.NewEvents()
	defer events.Dispose()

	gate := session.New(creds, events, session.WithValidator(client))
	poller := appsync.New(client, gate, events, cache, appsync.ConfigFrom(cfg.Poller))
	gate.Attach(poller)
	defer poller.Stop()

	// Data subscriptions made after Start drive the stream loops.
	watcher := realtime.New(client, gate, events, cfg.Realtime)
	watcher.Start(ctx)
	defer watcher.Stop()

	var bridge *app.Bridge
	var sink present.Sink = present.SinkFunc(logToast)
	if !args.Headless {
		bridge = app.NewBridge(events)
		defer bridge.Close()
		sink = bridge
	}

	sound := present.NewSound(cfg.Presenter)
	presenter := present.New(cfg.Presenter,
		present.WithSink(sink),
		present.WithSoundPlayer(sound),
		present.WithMarker(client, gate),
	)
	presenter.Attach(events)
	defer presenter.Detach()

	restored, err := gate.Restore(ctx)
	if err != nil {
		log.Printf("restore: %v", err)
	}
	if !restored && args.UserID != "" && args.Token != "" {
		err := gate.OnLogin(ctx, model.Credentials{UserID: args.UserID, Token: args.Token})
		if err != nil {
			return fmt.Errorf("signing in: %w", err)
		}
	}

	if args.Headless {
		return runHeadless(events, gate)
	}

	root := app.New(app.Deps{
		Session:   gate,
		Poller:    poller,
		Backend:   client,
		Presenter: presenter,
		Sound:     sound,
		Store:     cache,
		Bridge:    bridge,
		Profile:   cfg.Poller.Profile,
	})
	p := tea.NewProgram(root, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running UI: %w", err)
	}
	return nil
}

// runHeadless logs bus traffic until a signal arrives or the session ends.
func runHeadless(events *bus.Events, gate *session.Gate) error {
	if !gate.Authenticated() {
		return errors.New("no stored session; pass --user and --token or sign in from the terminal UI")
	}

	expired := make(chan string, 1)
	events.SessionExpired.Subscribe(bus.TopicSessionExpired, func(ev bus.SessionEvent, _ bus.PublishOptions) {
		select {
		case expired <- ev.Reason:
		default:
		}
	}, bus.Options{})
	events.LoginRequest.Subscribe(bus.TopicLoginRequest, func(ev bus.LoginRequestEvent, _ bus.PublishOptions) {
		log.Printf("login approval requested by %s (notification %d)", ev.PhoneNumber, ev.NotificationID)
	}, bus.Options{})
	events.Data.Subscribe(bus.DataOrders, func(ev bus.DataEvent, _ bus.PublishOptions) {
		log.Printf("orders changed: %d", app.CountItems(ev.Payload))
	}, bus.Options{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Println("shutting down...")
		return nil
	case reason := <-expired:
		return fmt.Errorf("session ended: %s", reason)
	}
}

func logToast(t present.Toast) {
	log.Printf("[%s] %s: %s", t.Category, t.Title, t.Body)
}
