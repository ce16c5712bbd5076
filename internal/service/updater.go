package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexus-edge/marine-gateway/internal/domain"
	"github.com/nexus-edge/marine-gateway/internal/metrics"
	"github.com/nexus-edge/marine-gateway/internal/state"
)

// UpdaterConfig contains store updater configuration
type UpdaterConfig struct {
	// ThrottleWindow is the minimum spacing between externally visible
	// updates for one sensor key. Records arriving faster are coalesced
	// to the latest value per metric.
	ThrottleWindow time.Duration

	// EventBuffer is the change notification channel capacity. When
	// consumers fall behind, the oldest notification is dropped first.
	EventBuffer int
}

// Updater is the single write path into the state store. It applies
// records, detects value changes by equality, throttles per sensor key and
// emits change notifications only for keys whose value actually changed.
type Updater struct {
	config  UpdaterConfig
	store   *state.Store
	logger  zerolog.Logger
	metrics *metrics.Registry

	// Pending records waiting out their key's throttle window.
	mu          sync.Mutex
	pending     map[domain.SensorKey]*domain.SensorRecord
	lastApplied map[domain.SensorKey]time.Time

	changes chan domain.ChangeEvent

	// Stats
	applied   atomic.Uint64
	coalesced atomic.Uint64
	emitted   atomic.Uint64
	dropped   atomic.Uint64

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewUpdater creates a new store updater
func NewUpdater(
	config UpdaterConfig,
	store *state.Store,
	logger zerolog.Logger,
	metricsReg *metrics.Registry,
) *Updater {
	if config.ThrottleWindow <= 0 {
		config.ThrottleWindow = 100 * time.Millisecond
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = 256
	}

	return &Updater{
		config:      config,
		store:       store,
		logger:      logger.With().Str("component", "updater").Logger(),
		metrics:     metricsReg,
		pending:     make(map[domain.SensorKey]*domain.SensorRecord),
		lastApplied: make(map[domain.SensorKey]time.Time),
		changes:     make(chan domain.ChangeEvent, config.EventBuffer),
	}
}

// Start begins the flush goroutine that releases throttled records
func (u *Updater) Start(ctx context.Context) {
	u.ctx, u.cancel = context.WithCancel(ctx)

	u.wg.Add(1)
	go u.flushLoop()

	u.logger.Info().
		Dur("throttle_window", u.config.ThrottleWindow).
		Int("event_buffer", u.config.EventBuffer).
		Msg("Store updater started")
}

// Stop flushes pending records and closes the change channel
func (u *Updater) Stop(ctx context.Context) error {
	var stopErr error

	u.stopOnce.Do(func() {
		u.logger.Info().Msg("Stopping store updater...")

		u.cancel()

		done := make(chan struct{})
		go func() {
			u.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			u.logger.Warn().Msg("Store updater stop timeout")
			stopErr = ctx.Err()
			return
		}

		// Apply whatever is still waiting out a window so no data is lost.
		u.mu.Lock()
		for key, rec := range u.pending {
			delete(u.pending, key)
			u.applyLocked(rec)
		}
		u.mu.Unlock()

		close(u.changes)
		u.logger.Info().Msg("Store updater stopped")
	})

	return stopErr
}

// Changes returns the change notification channel. It is closed by Stop
// after the final flush.
func (u *Updater) Changes() <-chan domain.ChangeEvent {
	return u.changes
}

// Offer submits a record for application. Records inside their key's
// throttle window are held back and coalesced; everything else is applied
// immediately. Offer never blocks on slow consumers.
func (u *Updater) Offer(rec *domain.SensorRecord) {
	select {
	case <-u.ctx.Done():
		return
	default:
	}

	key := rec.Key()

	u.mu.Lock()
	defer u.mu.Unlock()

	if held, ok := u.pending[key]; ok {
		for m, v := range rec.Metrics {
			held.Metrics[m] = v
		}
		held.Timestamp = rec.Timestamp
		u.coalesced.Add(1)
		u.metrics.IncRecordsCoalesced()
		return
	}

	if last, ok := u.lastApplied[key]; ok && rec.Timestamp.Sub(last) < u.config.ThrottleWindow {
		u.pending[key] = rec
		return
	}

	u.lastApplied[key] = rec.Timestamp
	u.applyLocked(rec)
}

// flushLoop periodically releases pending records whose window has passed.
func (u *Updater) flushLoop() {
	defer u.wg.Done()

	interval := u.config.ThrottleWindow / 4
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-u.ctx.Done():
			return
		case now := <-ticker.C:
			u.flushDue(now)
		}
	}
}

func (u *Updater) flushDue(now time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()

	for key, rec := range u.pending {
		if now.Sub(u.lastApplied[key]) < u.config.ThrottleWindow {
			continue
		}
		delete(u.pending, key)
		u.lastApplied[key] = now
		u.applyLocked(rec)
	}
}

// applyLocked applies one record to the store and emits a notification if
// any metric changed. Must be called with mu held so that applications per
// key stay serialized.
func (u *Updater) applyLocked(rec *domain.SensorRecord) {
	changed := u.store.Apply(rec)
	u.applied.Add(1)
	u.metrics.IncRecordsApplied()
	u.metrics.SetSensorsTracked(float64(u.store.Size()))

	if len(changed) == 0 {
		return
	}

	snapshot, _, _ := u.store.Snapshot(rec.Key())
	u.emit(domain.ChangeEvent{
		Key:     rec.Key(),
		Metrics: snapshot,
		Changed: changed,
		At:      rec.Timestamp,
	})
}

// emit delivers an event without ever blocking the update path. When the
// buffer is full the oldest event is dropped: consumers that fall behind
// lose history, not freshness.
func (u *Updater) emit(ev domain.ChangeEvent) {
	select {
	case u.changes <- ev:
		u.emitted.Add(1)
		u.metrics.IncEventsEmitted()
		return
	default:
	}

	select {
	case <-u.changes:
		u.dropped.Add(1)
		u.metrics.IncEventsDropped()
	default:
	}

	select {
	case u.changes <- ev:
		u.emitted.Add(1)
		u.metrics.IncEventsEmitted()
	default:
		u.dropped.Add(1)
		u.metrics.IncEventsDropped()
	}
}

// Stats returns updater statistics
func (u *Updater) Stats() map[string]interface{} {
	u.mu.Lock()
	pendingCount := len(u.pending)
	u.mu.Unlock()

	return map[string]interface{}{
		"records_applied":   u.applied.Load(),
		"records_coalesced": u.coalesced.Load(),
		"events_emitted":    u.emitted.Load(),
		"events_dropped":    u.dropped.Load(),
		"pending_records":   pendingCount,
		"sensors_tracked":   u.store.Size(),
	}
}
