package cmd

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/swipe-sync/internal/events"
	"github.com/spigell/swipe-sync/internal/realtime"
	"github.com/spigell/swipe-sync/internal/secrets"
	"github.com/spigell/swipe-sync/internal/session"
)

type refusingDialer struct {
	mu    sync.Mutex
	dials int
}

func (d *refusingDialer) Dial(context.Context, string, http.Header) (realtime.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	return nil, errors.New("connection refused")
}

func (d *refusingDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func newWatcher(d realtime.Dialer, answers ...bool) (*watcher, *int) {
	store := session.New(zap.NewNop())
	env := &environment{
		logger:     zap.NewNop(),
		store:      store,
		credential: secrets.Credential{UserID: "u1", Token: "secret"},
	}
	client := realtime.New(realtime.Config{
		URL:                  "ws://swipe.test/ws",
		ReconnectInterval:    time.Millisecond,
		MaxReconnectAttempts: 1,
	}, d, store, nil, zap.NewNop())

	asked := 0
	w := &watcher{env: env, client: client}
	w.confirm = func() bool {
		answer := false
		if asked < len(answers) {
			answer = answers[asked]
		}
		asked++
		return answer
	}
	return w, &asked
}

func watchWithTimeout(t *testing.T, w *watcher, sub chan events.Event) error {
	t.Helper()

	errCh := make(chan error, 1)
	go func() { errCh <- w.watch(context.Background(), sub) }()

	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		w.client.Disconnect()
		t.Fatal("watcher did not notice the client going offline")
		return nil
	}
}

func TestWatcherNoticesOfflineWithoutEvent(t *testing.T) {
	t.Parallel()

	d := &refusingDialer{}
	w, asked := newWatcher(d)
	defer w.client.Disconnect()

	if err := w.client.Connect(context.Background(), "u1", "secret"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// a nil subscription never delivers, as if the offline event was lost
	err := watchWithTimeout(t, w, nil)
	if !errors.Is(err, errExit) {
		t.Fatalf("expected errExit after declined reconnect, got %v", err)
	}
	if *asked != 1 {
		t.Fatalf("expected one reconnect prompt, got %d", *asked)
	}
	if d.count() != 2 {
		t.Fatalf("expected 2 dials before going offline, got %d", d.count())
	}
}

func TestWatcherReconnectsWhenConfirmed(t *testing.T) {
	t.Parallel()

	d := &refusingDialer{}
	w, asked := newWatcher(d, true)
	defer w.client.Disconnect()

	if err := w.client.Connect(context.Background(), "u1", "secret"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := watchWithTimeout(t, w, nil); !errors.Is(err, errExit) {
		t.Fatalf("expected errExit, got %v", err)
	}
	if *asked != 2 {
		t.Fatalf("expected a prompt per offline cycle, got %d", *asked)
	}
	if d.count() != 4 {
		t.Fatalf("expected a second connection cycle, got %d dials", d.count())
	}
}
