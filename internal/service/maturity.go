package service

import (
	"context"
	"log"
	"sync"
	"time"
)

// MaturitySchedulerConfig holds configuration for the maturity sweep.
type MaturitySchedulerConfig struct {
	// Interval is how often the sweep runs. Default: 5 minutes
	Interval time.Duration

	// Timeout bounds one sweep. Default: 2 minutes
	Timeout time.Duration
}

// SweepResult summarizes one maturity sweep.
type SweepResult struct {
	Matured  int64 `json:"matured"`
	Repaired int   `json:"repaired"`
}

// MaturityScheduler periodically matures due ledger entries and completes any
// refund pairs left half-written.
type MaturityScheduler struct {
	ledger    *LedgerService
	config    MaturitySchedulerConfig
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex

	// sweepMu serializes scheduled and manual runs.
	sweepMu sync.Mutex
}

// NewMaturityScheduler creates a maturity scheduler.
func NewMaturityScheduler(ledger *LedgerService, config MaturitySchedulerConfig) *MaturityScheduler {
	if config.Interval == 0 {
		config.Interval = 5 * time.Minute
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Minute
	}
	return &MaturityScheduler{
		ledger: ledger,
		config: config,
		stopCh: make(chan struct{}),
	}
}

// Start runs one sweep immediately and then one every interval.
func (s *MaturityScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	log.Printf("[MaturityScheduler] Started - Interval: %v", s.config.Interval)
	go s.run()
}

func (s *MaturityScheduler) run() {
	s.sweep()
	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stopCh:
			log.Printf("[MaturityScheduler] Stopped")
			return
		}
	}
}

func (s *MaturityScheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	res, err := s.RunNow(ctx)
	if err != nil {
		log.Printf("[MaturityScheduler] Sweep error: %v", err)
		return
	}
	if res.Matured > 0 || res.Repaired > 0 {
		log.Printf("[MaturityScheduler] Matured %d entries, repaired %d refunds", res.Matured, res.Repaired)
	}
}

// RunNow performs one sweep at the current time.
func (s *MaturityScheduler) RunNow(ctx context.Context) (SweepResult, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	var res SweepResult
	n, err := s.ledger.Mature(ctx, s.ledger.now().UTC())
	if err != nil {
		return res, err
	}
	res.Matured = n

	repaired, err := s.ledger.RepairRefunds(ctx)
	res.Repaired = repaired
	return res, err
}

// Stop stops the scheduler.
func (s *MaturityScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}
