// Package recovery holds a bounded history of SystemState checkpoints
// and reconciles the most recent one against a live exchange's actual
// positions and open orders, per §4.L.
package recovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/exchange"
	"github.com/quantcore/engine/internal/quanterrors"
	"github.com/quantcore/engine/pkg/observability"
)

const (
	defaultMaxCheckpoints        = 10
	defaultMaxCheckpointAgeHours = 24
)

// Config tunes the checkpoint queue's retention policy. Zero values are
// replaced with the documented defaults.
type Config struct {
	MaxCheckpoints        int
	MaxCheckpointAgeHours int
}

func (c Config) withDefaults() Config {
	if c.MaxCheckpoints <= 0 {
		c.MaxCheckpoints = defaultMaxCheckpoints
	}
	if c.MaxCheckpointAgeHours <= 0 {
		c.MaxCheckpointAgeHours = defaultMaxCheckpointAgeHours
	}
	return c
}

// Checkpoint pairs a cloned SystemState with the wall-clock time it was
// taken, independent of the state's own Timestamp field (which reflects
// the engine's notion of "as of when", not when the checkpoint call
// happened).
type Checkpoint struct {
	State   core.SystemState
	TakenAt time.Time
}

// SyncResult is the outcome of reconciling the most recent checkpoint
// against an ExecutionClient's live view of the account.
type SyncResult struct {
	Checkpoint Checkpoint

	PositionMismatches int
	MissingPositions   int
	OrphanOrders       int
	StaleOrders        int

	CancelledOrphans []string
}

// Manager owns the checkpoint queue and, optionally, the execution
// client used for sync reconciliation. Guarded by mu: the queue is the
// only mutable state and every operation takes the lock for its whole
// duration, mirroring the teacher's preference for one coarse mutex
// over a checkpoint-granularity locking scheme nobody needs here.
type Manager struct {
	mu  sync.Mutex
	cfg Config

	queue []Checkpoint

	execClient exchange.ExecutionClient
	logger     *observability.Logger
	metrics    *observability.Metrics
	clock      func() time.Time
}

// NewManager builds a recovery manager. execClient may be nil if the
// caller never intends to call RecoverWithSync; clock defaults to
// time.Now.
func NewManager(cfg Config, execClient exchange.ExecutionClient, logger *observability.Logger, metrics *observability.Metrics, clock func() time.Time) *Manager {
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		cfg:        cfg.withDefaults(),
		execClient: execClient,
		logger:     logger,
		metrics:    metrics,
		clock:      clock,
	}
}

// Checkpoint deep-clones state, stamps it with now, and enqueues it,
// evicting anything older than MaxCheckpointAgeHours or beyond
// MaxCheckpoints.
func (m *Manager) Checkpoint(state core.SystemState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	m.queue = append(m.queue, Checkpoint{State: state.Clone(), TakenAt: now})
	m.evictLocked(now)
	m.metrics.CheckpointTaken()
}

// evictLocked drops checkpoints older than the configured age ceiling
// and trims the queue to the configured count ceiling. Caller holds mu.
func (m *Manager) evictLocked(now time.Time) {
	maxAge := time.Duration(m.cfg.MaxCheckpointAgeHours) * time.Hour
	cutoff := 0
	for i, cp := range m.queue {
		if now.Sub(cp.TakenAt) <= maxAge {
			break
		}
		cutoff = i + 1
	}
	if cutoff > 0 {
		m.queue = m.queue[cutoff:]
	}

	if over := len(m.queue) - m.cfg.MaxCheckpoints; over > 0 {
		m.queue = m.queue[over:]
	}
}

// Recover returns the most recent checkpoint, or ErrNoCheckpoint if the
// queue is empty — a normal result, not a failure.
func (m *Manager) Recover() (Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return Checkpoint{}, quanterrors.ErrNoCheckpoint
	}
	return m.queue[len(m.queue)-1], nil
}

// RecoverWithSync recovers the most recent checkpoint, then — if an
// ExecutionClient is configured — compares it against the exchange's
// live positions and open orders. When cancelOrphans is true, every
// orphan order (present on the exchange, absent from the checkpoint)
// is cancelled via the execution client; a failed cancellation is
// logged and left out of CancelledOrphans, and doesn't abort the rest
// of the reconciliation.
func (m *Manager) RecoverWithSync(ctx context.Context, cancelOrphans bool) (SyncResult, error) {
	cp, err := m.Recover()
	if err != nil {
		return SyncResult{}, err
	}
	if m.execClient == nil {
		return SyncResult{Checkpoint: cp}, nil
	}

	liveOrders, err := m.execClient.OpenOrders(ctx, nil)
	if err != nil {
		return SyncResult{}, quanterrors.NewRecoveryError("fetch open orders", err)
	}
	livePositions, err := m.execClient.Positions(ctx)
	if err != nil {
		return SyncResult{}, quanterrors.NewRecoveryError("fetch positions", err)
	}

	result := m.reconcile(cp, liveOrders, livePositions)

	if cancelOrphans {
		for _, id := range result.orphanIDs {
			if cancelErr := m.execClient.CancelOrder(ctx, id); cancelErr != nil {
				if m.logger != nil {
					m.logger.Warn(ctx, "failed to cancel orphan order", map[string]interface{}{"exchange_order_id": id, "error": cancelErr.Error()})
				}
				continue
			}
			result.sync.CancelledOrphans = append(result.sync.CancelledOrphans, id)
		}
	}

	m.recordSyncMetrics(result.sync)
	return result.sync, nil
}

type reconcileOutcome struct {
	sync      SyncResult
	orphanIDs []string
}

// reconcile computes the four discrepancy counts per §4.L's definitions:
// orphan = live order with no checkpoint record; stale = checkpoint
// order absent from the live book; position mismatch = same pair present
// on both sides with a different size; missing position = live position
// with no checkpoint record at all.
func (m *Manager) reconcile(cp Checkpoint, liveOrders []core.OpenOrder, livePositions []core.Position) reconcileOutcome {
	checkpointOrderIDs := make(map[string]bool, len(cp.State.OpenOrders))
	for _, o := range cp.State.OpenOrders {
		checkpointOrderIDs[o.ExchangeOrderID] = true
	}
	liveOrderIDs := make(map[string]bool, len(liveOrders))
	for _, o := range liveOrders {
		liveOrderIDs[o.ExchangeOrderID] = true
	}

	out := reconcileOutcome{sync: SyncResult{Checkpoint: cp}}

	for id := range liveOrderIDs {
		if !checkpointOrderIDs[id] {
			out.sync.OrphanOrders++
			out.orphanIDs = append(out.orphanIDs, id)
		}
	}
	sort.Strings(out.orphanIDs)

	for _, o := range cp.State.OpenOrders {
		if !liveOrderIDs[o.ExchangeOrderID] {
			out.sync.StaleOrders++
		}
	}

	checkpointPositions := make(map[core.TradingPair]core.Position, len(cp.State.Positions))
	for _, p := range cp.State.Positions {
		checkpointPositions[p.Pair] = p
	}

	for _, live := range livePositions {
		cpPos, ok := checkpointPositions[live.Pair]
		if !ok {
			out.sync.MissingPositions++
			continue
		}
		if !cpPos.Size.Equal(live.Size) {
			out.sync.PositionMismatches++
		}
	}

	return out
}

func (m *Manager) recordSyncMetrics(r SyncResult) {
	if m.metrics == nil {
		return
	}
	for i := 0; i < r.OrphanOrders; i++ {
		m.metrics.SyncDiscrepancy("orphan_order")
	}
	for i := 0; i < r.StaleOrders; i++ {
		m.metrics.SyncDiscrepancy("stale_order")
	}
	for i := 0; i < r.PositionMismatches; i++ {
		m.metrics.SyncDiscrepancy("position_mismatch")
	}
	for i := 0; i < r.MissingPositions; i++ {
		m.metrics.SyncDiscrepancy("missing_position")
	}
}

// Checkpoints returns a snapshot of the current queue, oldest first.
func (m *Manager) Checkpoints() []Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Checkpoint, len(m.queue))
	copy(out, m.queue)
	return out
}
