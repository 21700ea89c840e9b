package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"resellhub/internal/supervisor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type recordingDispatcher struct {
	mu      sync.Mutex
	updates []int64
	bots    []Bot
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, bot Bot, u Update) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates = append(d.updates, u.UpdateID)
	d.bots = append(d.bots, bot)
	return nil
}

func (d *recordingDispatcher) seen() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int64(nil), d.updates...)
}

func newBotServer(t *testing.T, token string) (*httptest.Server, func() []string) {
	t.Helper()
	var (
		mu      sync.Mutex
		offsets []string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+token+"/getMe", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"username":"shop_bot"}}`)
	})
	mux.HandleFunc("/bot"+token+"/getUpdates", func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		mu.Lock()
		offsets = append(offsets, offset)
		mu.Unlock()
		if offset == "" {
			fmt.Fprint(w, `{"ok":true,"result":[{"update_id":10,"message":{"text":"hi"}},{"update_id":11}]}`)
			return
		}
		time.Sleep(10 * time.Millisecond)
		fmt.Fprint(w, `{"ok":true,"result":[]}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), offsets...)
	}
}

func TestConnector_ConnectAndPoll(t *testing.T) {
	srv, offsets := newBotServer(t, "123:abc")
	disp := &recordingDispatcher{}
	c := NewConnector(Config{BaseURL: srv.URL, PollTimeout: time.Second}, disp)

	sess, err := c.Connect(context.Background(), supervisor.Identity{AgentID: "a1", Tenant: "agent:a1", BotToken: "123:abc"})
	require.NoError(t, err)
	assert.Equal(t, "shop_bot", sess.Username())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	require.Eventually(t, func() bool { return len(disp.seen()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int64{10, 11}, disp.seen())
	disp.mu.Lock()
	assert.Equal(t, "agent:a1", disp.bots[0].Tenant)
	disp.mu.Unlock()

	// The next poll acknowledges everything dispatched so far.
	require.Eventually(t, func() bool {
		got := offsets()
		return len(got) >= 2 && got[1] == "12"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
}

func TestConnector_RejectsBadToken(t *testing.T) {
	srv, _ := newBotServer(t, "123:abc")
	c := NewConnector(Config{BaseURL: srv.URL, PollTimeout: time.Second}, nil)

	_, err := c.Connect(context.Background(), supervisor.Identity{AgentID: "a1", BotToken: "999:wrong"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = c.Connect(context.Background(), supervisor.Identity{AgentID: "a1"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSession_GivesUpAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"ok":false,"error_code":502,"description":"Bad Gateway"}`)
	}))
	defer srv.Close()

	c := NewConnector(Config{
		BaseURL:              srv.URL,
		PollTimeout:          time.Second,
		ErrorRate:            rate.Inf,
		MaxConsecutiveErrors: 3,
	}, nil)
	s := &Session{connector: c, token: "t", bot: Bot{AgentID: "a1"}, limiter: rate.NewLimiter(rate.Inf, 1)}

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 failed polls")
}
