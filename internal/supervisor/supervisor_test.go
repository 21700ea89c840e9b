package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"resellhub/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu     sync.Mutex
	active []model.Agent
	err    error
}

func (f *fakeSource) setActive(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = f.active[:0]
	for _, id := range ids {
		f.active = append(f.active, model.Agent{AgentID: id, Status: model.AgentActive, BotTokenEncrypted: "tok-" + id})
	}
}

func (f *fakeSource) ActiveAgents(ctx context.Context) ([]model.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]model.Agent(nil), f.active...), nil
}

func (f *fakeSource) BotToken(agent *model.Agent) (string, error) {
	if agent.BotTokenEncrypted == "" {
		return "", errors.New("integrity failure")
	}
	return agent.BotTokenEncrypted, nil
}

type fakeSession struct {
	id    Identity
	crash chan error
}

func (s *fakeSession) Username() string { return s.id.AgentID + "_bot" }

func (s *fakeSession) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-s.crash:
		return err
	}
}

type fakeConnector struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	connects map[string]int
	failFor  map[string]bool
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		sessions: make(map[string]*fakeSession),
		connects: make(map[string]int),
		failFor:  make(map[string]bool),
	}
}

func (c *fakeConnector) Connect(ctx context.Context, id Identity) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects[id.AgentID]++
	if c.failFor[id.AgentID] {
		return nil, errors.New("unauthorized")
	}
	s := &fakeSession{id: id, crash: make(chan error, 1)}
	c.sessions[id.AgentID] = s
	return s, nil
}

func (c *fakeConnector) count(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects[id]
}

func (c *fakeConnector) session(id string) *fakeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[id]
}

func runningIDs(s *Supervisor) []string {
	var ids []string
	for _, w := range s.Running() {
		ids = append(ids, w.AgentID)
	}
	return ids
}

func TestReconcile_ConvergesOnDesired(t *testing.T) {
	src := &fakeSource{}
	conn := newFakeConnector()
	sup := New(src, conn, Config{StopTimeout: time.Second})
	defer sup.ShutdownAll()
	ctx := context.Background()

	src.setActive("B", "C")
	_, err := sup.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"B", "C"}, runningIDs(sup))
	startedB, _ := sup.Info("B")

	src.setActive("A", "B")
	res, err := sup.Reconcile(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, res.Started)
	assert.Equal(t, []string{"C"}, res.Stopped)
	assert.Equal(t, []string{"A", "B"}, runningIDs(sup))
	assert.Equal(t, 1, conn.count("B"), "B is not restarted")

	infoB, ok := sup.Info("B")
	require.True(t, ok)
	assert.Equal(t, startedB.StartedAt, infoB.StartedAt)
	assert.Equal(t, "agent:B", infoB.Tenant)
	assert.Equal(t, "B_bot", infoB.BotUsername)
}

func TestReconcile_RestartsCrashedWorker(t *testing.T) {
	src := &fakeSource{}
	conn := newFakeConnector()
	sup := New(src, conn, Config{StopTimeout: time.Second})
	defer sup.ShutdownAll()
	ctx := context.Background()

	src.setActive("A")
	_, err := sup.Reconcile(ctx)
	require.NoError(t, err)

	conn.session("A").crash <- errors.New("connection reset")
	require.Eventually(t, func() bool {
		_, ok := sup.Info("A")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	res, err := sup.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, res.Started)
	assert.Equal(t, 2, conn.count("A"))
}

func TestReconcile_FailedStartRetriedNextTick(t *testing.T) {
	src := &fakeSource{}
	conn := newFakeConnector()
	conn.failFor["A"] = true
	sup := New(src, conn, Config{StopTimeout: time.Second})
	defer sup.ShutdownAll()
	ctx := context.Background()

	src.setActive("A", "B")
	res, err := sup.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, res.Started)
	assert.Contains(t, res.Failed, "A")
	assert.Equal(t, []string{"B"}, runningIDs(sup))

	conn.mu.Lock()
	conn.failFor["A"] = false
	conn.mu.Unlock()

	res, err = sup.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, res.Started)
	assert.Empty(t, res.Failed)
}

func TestReconcile_SourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("store down")}
	sup := New(src, newFakeConnector(), Config{})

	_, err := sup.Reconcile(context.Background())
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	src := &fakeSource{}
	conn := newFakeConnector()
	sup := New(src, conn, Config{StopTimeout: time.Second})
	ctx := context.Background()

	agent := &model.Agent{AgentID: "A", BotTokenEncrypted: "tok"}
	require.NoError(t, sup.Start(ctx, agent))
	assert.ErrorIs(t, sup.Start(ctx, agent), ErrAlreadyRunning)

	assert.Error(t, sup.Start(ctx, &model.Agent{AgentID: "broken"}))
	_, ok := sup.Info("broken")
	assert.False(t, ok)

	assert.True(t, sup.Stop("A"))
	assert.False(t, sup.Stop("A"))
	assert.Empty(t, sup.Running())
}

func TestShutdownAll(t *testing.T) {
	src := &fakeSource{}
	sup := New(src, newFakeConnector(), Config{StopTimeout: time.Second})

	src.setActive("A", "B", "C")
	_, err := sup.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, sup.Running(), 3)

	sup.ShutdownAll()
	assert.Empty(t, sup.Running())
}

func TestRun_ReconcilesImmediately(t *testing.T) {
	src := &fakeSource{}
	src.setActive("A")
	sup := New(src, newFakeConnector(), Config{ReconcileInterval: time.Hour, StopTimeout: time.Second})
	defer sup.ShutdownAll()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok := sup.Info("A")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
