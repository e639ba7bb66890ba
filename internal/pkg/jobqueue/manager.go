package jobqueue

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AgentHub/internal/pkg/billing"
	"github.com/ManuelReschke/AgentHub/internal/pkg/env"
)

const (
	DefaultSweepInterval = 5 * time.Minute
	DefaultSweepAge      = 45 * time.Minute
	DefaultSweepBatch    = 100
)

// Sweeper re-checks transactions that stayed pending for too long.
type Sweeper interface {
	SweepPending(ctx context.Context, olderThan time.Duration, limit int) (billing.SweepResult, error)
}

// Config controls the background sweep.
type Config struct {
	Disabled bool
	Interval time.Duration
	Age      time.Duration
	Batch    int
}

// ConfigFromEnv reads PENDING_SWEEP_ENABLED, PENDING_SWEEP_INTERVAL_MINUTES,
// PENDING_SWEEP_AGE_MINUTES and PENDING_SWEEP_BATCH.
func ConfigFromEnv() Config {
	return Config{
		Disabled: strings.EqualFold(strings.TrimSpace(env.GetEnv("PENDING_SWEEP_ENABLED", "true")), "false"),
		Interval: time.Duration(env.GetEnvInt("PENDING_SWEEP_INTERVAL_MINUTES", 0)) * time.Minute,
		Age:      time.Duration(env.GetEnvInt("PENDING_SWEEP_AGE_MINUTES", 0)) * time.Minute,
		Batch:    env.GetEnvInt("PENDING_SWEEP_BATCH", 0),
	}
}

// Manager runs the periodic background tasks of the billing engine.
type Manager struct {
	sweeper     Sweeper
	cfg         Config
	sweepTicker *time.Ticker
	stopCh      chan struct{}
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

func NewManager(sweeper Sweeper, cfg Config) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.Age <= 0 {
		cfg.Age = DefaultSweepAge
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultSweepBatch
	}
	return &Manager{sweeper: sweeper, cfg: cfg}
}

// Start launches the background workers. Calling it twice is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	if m.cfg.Disabled {
		log.Info("[JobQueue Manager] Pending sweep disabled, not starting")
		return
	}

	// Fresh channel per cycle so the manager can be restarted.
	m.stopCh = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	log.Info("[JobQueue Manager] Starting background tasks")

	m.sweepTicker = time.NewTicker(m.cfg.Interval)
	m.wg.Add(1)
	go m.sweepWorker(ctx, m.stopCh, m.sweepTicker.C)

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop signals the workers and waits for a running sweep to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping background tasks...")

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	close(m.stopCh)
	m.stopCh = nil
	m.cancel()
	m.running = false

	m.wg.Wait()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// sweepWorker periodically reconciles stale pending transactions.
func (m *Manager) sweepWorker(ctx context.Context, stopCh <-chan struct{}, tick <-chan time.Time) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started pending sweep worker (interval: %s, age: %s)", m.cfg.Interval, m.cfg.Age)

	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Pending sweep worker stopping")
			return
		case <-tick:
			if _, err := m.RunSweepOnce(ctx); err != nil {
				log.Errorf("[JobQueue Manager] Pending sweep error: %v", err)
			}
		}
	}
}

// RunSweepOnce runs a single sweep outside the ticker.
func (m *Manager) RunSweepOnce(ctx context.Context) (billing.SweepResult, error) {
	log.Debug("[JobQueue Manager] Running pending sweep")
	return m.sweeper.SweepPending(ctx, m.cfg.Age, m.cfg.Batch)
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
