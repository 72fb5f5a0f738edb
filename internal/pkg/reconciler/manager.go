package reconciler

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/facemojo/facemojo/app/models"
	"github.com/facemojo/facemojo/app/repository"
	"github.com/facemojo/facemojo/internal/pkg/env"
	"github.com/facemojo/facemojo/internal/pkg/generation"
	metrics "github.com/facemojo/facemojo/internal/pkg/metrics/counter"
	"github.com/facemojo/facemojo/internal/pkg/quota"
)

const (
	defaultSweepInterval = time.Minute
	defaultPendingAfter  = 2 * time.Minute
	defaultAbandonAfter  = 30 * time.Minute
	sweepBatchSize       = 50
)

// PredictionFetcher looks up the external state of a job.
type PredictionFetcher interface {
	GetPrediction(ctx context.Context, id string) (*generation.Prediction, error)
}

// UsageRecorder consumes quota for a completed generation.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, userID uint) error
}

// Manager periodically reconciles locally pending animations against the
// external service. Clients that navigate away mid-poll leave rows behind in
// starting/processing; the sweeper finalizes them so quota is still consumed
// for jobs that succeeded and stale rows do not stay pending forever.
type Manager struct {
	animations repository.AnimationRepository
	client     PredictionFetcher
	quota      UsageRecorder

	sweepInterval time.Duration
	pendingAfter  time.Duration
	abandonAfter  time.Duration

	sweepTicker        *time.Ticker
	counterFlushTicker *time.Ticker
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global reconciler manager (singleton). It requires
// the repository factory to be initialized.
func GetManager() *Manager {
	managerOnce.Do(func() {
		factory := repository.GetGlobalFactory()
		globalManager = NewManager(
			factory.GetAnimationRepository(),
			generation.NewClientFromEnv(),
			quota.NewService(factory.GetUsageRepository(), factory.GetPlanRepository()),
		)
	})
	return globalManager
}

// NewManager creates a reconciler with injected dependencies.
func NewManager(animations repository.AnimationRepository, client PredictionFetcher, usage UsageRecorder) *Manager {
	return &Manager{
		animations:    animations,
		client:        client,
		quota:         usage,
		sweepInterval: durationFromEnv("GENERATION_RECONCILE_INTERVAL", defaultSweepInterval),
		pendingAfter:  durationFromEnv("GENERATION_RECONCILE_AFTER", defaultPendingAfter),
		abandonAfter:  durationFromEnv("GENERATION_ABANDON_AFTER", defaultAbandonAfter),
	}
}

// Start starts the background sweep worker.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so the manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Infof("[Reconciler] Starting sweep worker (interval: %s)", m.sweepInterval)

	m.sweepTicker = time.NewTicker(m.sweepInterval)
	m.wg.Add(1)
	go m.sweepWorker()

	// Flush pending view counters (Redis -> DB) every 5 seconds
	m.counterFlushTicker = time.NewTicker(5 * time.Second)
	m.wg.Add(1)
	go m.counterFlushWorker()
}

// Stop stops the background sweep worker and waits for it to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Reconciler] Stopping sweep worker...")

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	if m.counterFlushTicker != nil {
		m.counterFlushTicker.Stop()
	}

	close(m.stopCh)
	m.stopCh = nil
	m.running = false

	m.wg.Wait()

	log.Info("[Reconciler] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) sweepWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Reconciler] Sweep worker stopping")
			return
		case <-m.sweepTicker.C:
			if _, err := m.SweepOnce(context.Background()); err != nil {
				log.Errorf("[Reconciler] Sweep error: %v", err)
			}
		}
	}
}

// counterFlushWorker periodically flushes pending counters from Redis to DB
func (m *Manager) counterFlushWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Reconciler] Counter flush worker stopping")
			return
		case <-m.counterFlushTicker.C:
			if err := metrics.FlushAll(); err != nil {
				log.Errorf("[Reconciler] Counter flush error: %v", err)
			}
		}
	}
}

// SweepOnce reconciles one batch of stale pending animations and returns the
// number of rows finalized. Also exposed as a manual admin trigger.
func (m *Manager) SweepOnce(ctx context.Context) (int, error) {
	now := time.Now()
	pending, err := m.animations.ListPendingOlderThan(now.Add(-m.pendingAfter), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	finalized := 0
	for i := range pending {
		animation := &pending[i]
		if m.reconcileOne(ctx, animation, now) {
			finalized++
		}
	}
	return finalized, nil
}

// reconcileOne resolves a single pending row. Returns true when the row was
// finalized by this call.
func (m *Manager) reconcileOne(ctx context.Context, animation *models.Animation, now time.Time) bool {
	prediction, err := m.client.GetPrediction(ctx, animation.PredictionID)
	if err != nil {
		log.Errorf("[Reconciler] Status lookup for animation %s failed: %v", animation.UUID, err)
		if now.Sub(animation.CreatedAt) < m.abandonAfter {
			return false
		}
		// The external service no longer answers for this job. Fail it so the
		// row does not stay pending forever; no usage is recorded.
		changed, ferr := m.animations.FinalizeFailure(animation.ID, models.AnimationStatusFailed, "abandoned: external status unavailable", now)
		if ferr != nil {
			log.Errorf("[Reconciler] Abandoning animation %s failed: %v", animation.UUID, ferr)
			return false
		}
		return changed
	}

	switch prediction.Status {
	case generation.StatusSucceeded:
		changed, err := m.animations.FinalizeSuccess(animation.ID, prediction.OutputURL(), now)
		if err != nil {
			log.Errorf("[Reconciler] Finalizing animation %s failed: %v", animation.UUID, err)
			return false
		}
		if !changed {
			return false
		}
		// Usage is consumed exactly once, guarded by the conditional update above.
		if err := m.quota.RecordUsage(ctx, animation.UserID); err != nil {
			log.Errorf("[Reconciler] Recording usage for user %d failed: %v", animation.UserID, err)
		}
		return true
	case generation.StatusFailed, generation.StatusCanceled:
		changed, err := m.animations.FinalizeFailure(animation.ID, prediction.Status, prediction.Error, now)
		if err != nil {
			log.Errorf("[Reconciler] Finalizing animation %s failed: %v", animation.UUID, err)
			return false
		}
		return changed
	default:
		// Still running upstream: leave the row alone.
		return false
	}
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(env.GetEnv(key, ""))
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
