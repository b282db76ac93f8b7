package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/swipe-sync/internal/events"
	"github.com/spigell/swipe-sync/internal/logger"
	"github.com/spigell/swipe-sync/internal/realtime"
	"github.com/spigell/swipe-sync/internal/resync"
	"github.com/spigell/swipe-sync/internal/session"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var errExit = errors.New("exit requested")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Hold the realtime connection and keep the session in sync",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("auto-reconnect", "y", false, "reconnect without asking when the connection goes offline")
}

func run(cmd *cobra.Command) {
	l := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l.Info("starting the swipe-sync", zap.String("version", version))

	env, err := bootstrap(ctx, l)
	if err != nil {
		l.Fatal("bootstrapping session", zap.Error(err))
	}

	syncer := resync.New(env.api, env.store, logger.Component(l, "resync"))
	if err := resyncLoading(ctx, env.store, syncer); err != nil {
		l.Warn("initial resync failed", zap.Error(err))
	}
	_ = env.store.SetView(session.ViewDashboard)

	bus := events.NewBroker(events.WithLogger(logger.Component(l, "events")))
	defer bus.Close()

	client := newRealtimeClient(env, bus)
	autoReconnect, _ := cmd.Flags().GetBool("auto-reconnect")

	w := &watcher{
		env:     env,
		client:  client,
		syncer:  syncer,
		confirm: confirmReconnect,
	}
	if autoReconnect {
		w.confirm = func() bool { return true }
	}

	g, gctx := errgroup.WithContext(ctx)
	sub := bus.Subscribe()

	if err := client.Connect(gctx, env.credential.UserID, env.credential.Token); err != nil {
		l.Fatal("connecting", zap.Error(err))
	}

	g.Go(func() error {
		defer bus.Unsubscribe(sub)
		return w.watch(gctx, sub)
	})

	g.Go(func() error {
		<-gctx.Done()
		client.Disconnect()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errExit) {
		l.Fatal("exiting", zap.Error(err))
	}

	snapshot := env.store.Snapshot()
	l.Info("session closed",
		zap.Int("matches", len(snapshot.Matches)),
		zap.Int("chats", len(snapshot.Chats)),
		zap.Int("unread_notifications", env.store.UnreadNotifications()),
		zap.Uint64("anomalies", env.store.Anomalies()),
	)

	_ = env.store.Logout()
}

// resyncLoading runs a resync with the session loading flag raised.
func resyncLoading(ctx context.Context, store *session.Store, syncer *resync.Syncer) error {
	_ = store.SetLoading(true)
	defer func() { _ = store.SetLoading(false) }()

	_, err := syncer.Run(ctx)
	return err
}

func newRealtimeClient(env *environment, bus *events.Broker) *realtime.Client {
	cfg := env.config.Realtime
	return realtime.New(realtime.Config{
		URL:                  cfg.URL,
		ReconnectInterval:    cfg.ReconnectInterval,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		OutboxSize:           cfg.OutboxSize,
	}, realtime.NewWebsocketDialer(cfg.HandshakeTimeout), env.store, bus, logger.Component(env.logger, "realtime"))
}

// watcher logs session events and reacts to the connection lifecycle.
type watcher struct {
	env     *environment
	client  *realtime.Client
	syncer  *resync.Syncer
	confirm func() bool
}

func confirmReconnect() bool {
	prompt := promptui.Select{
		Label: "Connection is offline. Reconnect?",
		Items: []string{PromptYes, PromptNo},
	}
	_, answer, err := prompt.Run()
	return err == nil && answer == PromptYes
}

// watch runs until ctx is done or the user declines to reconnect. Going
// offline is detected from the client itself, so it is never missed even when
// the offline event is not observed.
func (w *watcher) watch(ctx context.Context, sub chan events.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.client.Done():
			if w.client.State() != realtime.StateOffline {
				return errExit
			}
			if err := w.reconnect(ctx); err != nil {
				return err
			}
		case ev, ok := <-sub:
			if !ok {
				sub = nil
				continue
			}
			w.handleEvent(ctx, ev)
		}
	}
}

func (w *watcher) reconnect(ctx context.Context) error {
	if !w.confirm() {
		w.env.logger.Info("exiting", zap.String("reason", "offline and reconnect declined"))
		return errExit
	}
	w.env.logger.Info("reconnecting after offline")
	return w.client.Connect(ctx, w.env.credential.UserID, w.env.credential.Token)
}

func (w *watcher) handleEvent(ctx context.Context, ev events.Event) {
	logger := w.env.logger

	switch payload := ev.Payload.(type) {
	case realtime.StateChange:
		logger.Info("connection state",
			zap.Stringer("from", payload.From),
			zap.Stringer("to", payload.To),
			zap.Int("attempt", payload.Attempt),
		)
		if payload.To == realtime.StateOpen && w.syncer != nil {
			if err := resyncLoading(ctx, w.env.store, w.syncer); err != nil {
				logger.Warn("resync failed", zap.Error(err))
			}
		}
	case realtime.Offline:
		logger.Warn("connection offline", zap.Int("attempts", payload.Attempts))
	case session.Message:
		logger.Info("new message",
			zap.String("chat_id", payload.ChatID),
			zap.String("sender_id", payload.SenderID),
			zap.String("content", payload.Content),
		)
	case session.Match:
		logger.Info("new match",
			zap.String("match_id", payload.ID),
			zap.String("status", string(payload.Status)),
		)
	case session.Notification:
		logger.Info("notification",
			zap.String("type", string(payload.Type)),
			zap.String("title", payload.Title),
			zap.String("message", payload.Message),
		)
	default:
		logger.Debug("unhandled event", zap.String("kind", string(ev.Kind)))
	}
}
