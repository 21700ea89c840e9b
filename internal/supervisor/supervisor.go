// Package supervisor keeps one live bot session running per active agent.
//
// The set of running sessions converges on the set of active agents through a
// periodic reconcile. There is no push notification when an agent is paused
// or a session dies: the reconcile interval bounds how long either goes
// unnoticed, and a failed start is simply retried on the next tick.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"resellhub/internal/model"
	"resellhub/internal/tenant"
)

// ErrAlreadyRunning is returned by Start for an agent with a live worker.
var ErrAlreadyRunning = errors.New("agent worker already running")

// AgentSource lists the agents that should be running and opens their
// bot credentials.
type AgentSource interface {
	ActiveAgents(ctx context.Context) ([]model.Agent, error)
	BotToken(agent *model.Agent) (string, error)
}

// Identity is what a session is connected as.
type Identity struct {
	AgentID  string
	Tenant   string
	BotToken string
}

// Connector establishes bot sessions.
type Connector interface {
	Connect(ctx context.Context, id Identity) (Session, error)
}

// Session is one live bot connection. Run blocks processing inbound events
// until ctx is cancelled (returning nil or ctx.Err()) or the connection fails.
type Session interface {
	Username() string
	Run(ctx context.Context) error
}

// Config holds supervisor settings.
type Config struct {
	// ReconcileInterval bounds how long a crashed or deactivated worker goes
	// unnoticed. Default: 60 seconds
	ReconcileInterval time.Duration

	// ConnectTimeout bounds a single session connect. Default: 30 seconds
	ConnectTimeout time.Duration

	// StopTimeout bounds how long Stop waits for a session loop to exit.
	// Default: 10 seconds
	StopTimeout time.Duration
}

// WorkerInfo describes a running worker.
type WorkerInfo struct {
	AgentID     string    `json:"agent_id"`
	Tenant      string    `json:"tenant"`
	BotUsername string    `json:"bot_username"`
	StartedAt   time.Time `json:"started_at"`
}

// ReconcileResult lists what one reconcile changed.
type ReconcileResult struct {
	Started []string          `json:"started"`
	Stopped []string          `json:"stopped"`
	Failed  map[string]string `json:"failed,omitempty"`
}

type worker struct {
	info    WorkerInfo
	session Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// Supervisor owns the registry of running agent workers.
type Supervisor struct {
	agents    AgentSource
	connector Connector
	config    Config
	now       func() time.Time

	mu       sync.Mutex
	workers  map[string]*worker
	starting map[string]struct{}

	// reconcileMu serializes scheduled and manual reconciles.
	reconcileMu sync.Mutex
}

// New creates a supervisor.
func New(agents AgentSource, connector Connector, config Config) *Supervisor {
	if config.ReconcileInterval <= 0 {
		config.ReconcileInterval = 60 * time.Second
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = 10 * time.Second
	}
	return &Supervisor{
		agents:    agents,
		connector: connector,
		config:    config,
		now:       time.Now,
		workers:   make(map[string]*worker),
		starting:  make(map[string]struct{}),
	}
}

// Start connects a session for agent and runs it in its own goroutine.
// On any failure nothing is recorded, so the next reconcile retries.
func (s *Supervisor) Start(ctx context.Context, agent *model.Agent) error {
	id := agent.AgentID

	s.mu.Lock()
	if _, ok := s.workers[id]; ok {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	if _, ok := s.starting[id]; ok {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.starting[id] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.starting, id)
		s.mu.Unlock()
	}()

	token, err := s.agents.BotToken(agent)
	if err != nil {
		return fmt.Errorf("failed to open credential: %w", err)
	}

	identity := Identity{AgentID: id, Tenant: tenant.ForAgent(id), BotToken: token}
	cctx, cancel := context.WithTimeout(ctx, s.config.ConnectTimeout)
	session, err := s.connector.Connect(cctx, identity)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	// The session outlives the caller's context; only Stop ends it.
	wctx, wcancel := context.WithCancel(context.Background())
	w := &worker{
		info: WorkerInfo{
			AgentID:     id,
			Tenant:      identity.Tenant,
			BotUsername: session.Username(),
			StartedAt:   s.now().UTC(),
		},
		session: session,
		cancel:  wcancel,
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	s.workers[id] = w
	s.mu.Unlock()

	go s.runWorker(wctx, w)

	log.Printf("[Supervisor] Started agent=%s bot=@%s tenant=%s", id, w.info.BotUsername, w.info.Tenant)
	return nil
}

func (s *Supervisor) runWorker(ctx context.Context, w *worker) {
	defer close(w.done)

	err := w.session.Run(ctx)

	// A session that ends on its own drops its record so the next reconcile
	// starts a fresh one.
	s.mu.Lock()
	if cur, ok := s.workers[w.info.AgentID]; ok && cur == w {
		delete(s.workers, w.info.AgentID)
	}
	s.mu.Unlock()

	if ctx.Err() == nil {
		log.Printf("[Supervisor] Worker for agent=%s exited: %v", w.info.AgentID, err)
	}
}

// Stop ends the agent's session and removes its record. It returns false if
// the agent was not running.
func (s *Supervisor) Stop(agentID string) bool {
	s.mu.Lock()
	w, ok := s.workers[agentID]
	if ok {
		delete(s.workers, agentID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	w.cancel()
	select {
	case <-w.done:
	case <-time.After(s.config.StopTimeout):
		log.Printf("[Supervisor] Worker for agent=%s did not exit within %v", agentID, s.config.StopTimeout)
	}
	log.Printf("[Supervisor] Stopped agent=%s", agentID)
	return true
}

// Reconcile starts a worker for every active agent without one and stops every
// worker whose agent is no longer active. Workers in both sets are left alone.
func (s *Supervisor) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	s.reconcileMu.Lock()
	defer s.reconcileMu.Unlock()

	active, err := s.agents.ActiveAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active agents: %w", err)
	}

	desired := make(map[string]*model.Agent, len(active))
	for i := range active {
		desired[active[i].AgentID] = &active[i]
	}

	s.mu.Lock()
	running := make(map[string]bool, len(s.workers))
	for id := range s.workers {
		running[id] = true
	}
	s.mu.Unlock()

	res := &ReconcileResult{Started: []string{}, Stopped: []string{}}

	for _, id := range sortedKeys(desired) {
		if running[id] {
			continue
		}
		if err := s.Start(ctx, desired[id]); err != nil {
			if errors.Is(err, ErrAlreadyRunning) {
				continue
			}
			log.Printf("[Supervisor] Start agent=%s failed: %v", id, err)
			if res.Failed == nil {
				res.Failed = make(map[string]string)
			}
			res.Failed[id] = err.Error()
			continue
		}
		res.Started = append(res.Started, id)
	}

	for id := range running {
		if _, ok := desired[id]; ok {
			continue
		}
		if s.Stop(id) {
			res.Stopped = append(res.Stopped, id)
		}
	}
	sort.Strings(res.Stopped)

	return res, nil
}

// Run reconciles immediately and then every interval until ctx is done.
// It does not stop running workers; call ShutdownAll for that.
func (s *Supervisor) Run(ctx context.Context) {
	log.Printf("[Supervisor] Started - Reconcile interval: %v", s.config.ReconcileInterval)

	s.tick(ctx)

	ticker := time.NewTicker(s.config.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			log.Printf("[Supervisor] Reconcile loop stopped")
			return
		}
	}
}

func (s *Supervisor) tick(ctx context.Context) {
	res, err := s.Reconcile(ctx)
	if err != nil {
		log.Printf("[Supervisor] Reconcile error: %v", err)
		return
	}
	if len(res.Started) > 0 || len(res.Stopped) > 0 || len(res.Failed) > 0 {
		log.Printf("[Supervisor] Reconciled: started=%v stopped=%v failed=%d",
			res.Started, res.Stopped, len(res.Failed))
	}
}

// ShutdownAll stops every running worker.
func (s *Supervisor) ShutdownAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	log.Printf("[Supervisor] Shutting down %d workers", len(ids))

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s.Stop(id)
		}(id)
	}
	wg.Wait()
}

// Running returns a snapshot of running workers ordered by agent id.
func (s *Supervisor) Running() []WorkerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]WorkerInfo, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// Info returns the running worker for agentID.
func (s *Supervisor) Info(agentID string) (WorkerInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[agentID]
	if !ok {
		return WorkerInfo{}, false
	}
	return w.info, true
}

func sortedKeys(m map[string]*model.Agent) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
