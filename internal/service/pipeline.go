package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/marine-gateway/internal/domain"
	"github.com/nexus-edge/marine-gateway/internal/metrics"
	"github.com/nexus-edge/marine-gateway/internal/state"
)

// FrameSource produces framed bridge bytes and connection status changes.
// Both channels close on Stop.
type FrameSource interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Frames() <-chan []byte
	StatusEvents() <-chan domain.ConnectionStatus
	Status() domain.ConnectionStatus
}

// EventPublisher fans pipeline output to one external surface. Publishing
// must not block; slow surfaces shed internally.
type EventPublisher interface {
	PublishChange(ev domain.ChangeEvent)
	PublishAlarm(trigger domain.AlarmTrigger)
	PublishStatus(status domain.ConnectionStatus)
}

// PipelineConfig contains pipeline configuration
type PipelineConfig struct {
	Updater UpdaterConfig
	Alarm   AlarmConfig

	// Instances is the operator-supplied context catalog, exposed on the
	// snapshot surface so rendering layers can label instances.
	Instances []domain.InstanceContext
}

// Pipeline orchestrates the flow from bridge frames to state, alarms and
// outbound surfaces. Alarm rules and alarm state live outside the data
// path: a connection loss stops the flow but never clears them.
type Pipeline struct {
	config  PipelineConfig
	source  FrameSource
	store   *state.Store
	updater *Updater
	engine  *AlarmEngine
	sinks   []EventPublisher
	logger  zerolog.Logger
	metrics *metrics.Registry

	// Stats
	framesSeen      atomic.Uint64
	parseErrors     atomic.Uint64
	unsupported     atomic.Uint64
	normalizeErrors atomic.Uint64
	recordsOut      atomic.Uint64
	startTime       time.Time

	// Lifecycle
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewPipeline creates a new pipeline
func NewPipeline(
	config PipelineConfig,
	source FrameSource,
	store *state.Store,
	persistence ThresholdStore,
	refs map[domain.SensorKey]float64,
	sinks []EventPublisher,
	logger zerolog.Logger,
	metricsReg *metrics.Registry,
) *Pipeline {
	return &Pipeline{
		config:  config,
		source:  source,
		store:   store,
		updater: NewUpdater(config.Updater, store, logger, metricsReg),
		engine:  NewAlarmEngine(config.Alarm, persistence, store, refs, logger, metricsReg),
		sinks:   sinks,
		logger:  logger.With().Str("component", "pipeline").Logger(),
		metrics: metricsReg,
	}
}

// Engine exposes the alarm engine for the command surfaces.
func (p *Pipeline) Engine() *AlarmEngine {
	return p.engine
}

// Start brings the pipeline up: alarm rules first so no record is ever
// evaluated against an empty rule set, the bridge connection last
func (p *Pipeline) Start(ctx context.Context) error {
	p.startTime = time.Now()

	if err := p.engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start alarm engine: %w", err)
	}

	p.updater.Start(ctx)

	if err := p.source.Start(ctx); err != nil {
		return fmt.Errorf("failed to start frame source: %w", err)
	}

	p.wg.Add(3)
	go p.frameLoop()
	go p.notifyLoop()
	go p.statusLoop()

	p.logger.Info().Msg("Pipeline started")
	return nil
}

// Stop tears the pipeline down from the intake side so every received
// frame still drains through state and alarms
func (p *Pipeline) Stop(ctx context.Context) error {
	var stopErr error

	p.stopOnce.Do(func() {
		p.logger.Info().Msg("Stopping pipeline...")

		// Closing the source ends the frame and status loops.
		if err := p.source.Stop(ctx); err != nil {
			stopErr = err
		}

		// Final flush, then the change channel closes and the notify loop
		// drains out.
		if err := p.updater.Stop(ctx); err != nil && stopErr == nil {
			stopErr = err
		}

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			p.logger.Warn().Msg("Pipeline stop timeout")
			if stopErr == nil {
				stopErr = ctx.Err()
			}
		}

		if err := p.engine.Stop(ctx); err != nil && stopErr == nil {
			stopErr = err
		}

		p.logger.Info().
			Uint64("frames", p.framesSeen.Load()).
			Uint64("records", p.recordsOut.Load()).
			Uint64("parse_errors", p.parseErrors.Load()).
			Msg("Pipeline stopped")
	})

	return stopErr
}

// frameLoop parses and normalizes every received frame.
func (p *Pipeline) frameLoop() {
	defer p.wg.Done()

	for frame := range p.source.Frames() {
		p.framesSeen.Add(1)

		parsed, err := ParseFrame(frame)
		if err != nil {
			p.countDiscard(frame, err)
			continue
		}

		records, err := parsed.Normalize(time.Now())
		if err != nil {
			p.countDiscard(frame, err)
			continue
		}

		for _, rec := range records {
			p.recordsOut.Add(1)
			p.metrics.IncRecordsNormalized()
			p.updater.Offer(rec)
		}
	}
}

// notifyLoop evaluates alarms for each change and fans both out to the
// sinks. Runs on a single goroutine so evaluations stay ordered per key.
func (p *Pipeline) notifyLoop() {
	defer p.wg.Done()

	for ev := range p.updater.Changes() {
		triggers := p.engine.Evaluate(ev)

		for _, sink := range p.sinks {
			sink.PublishChange(ev)
		}
		for _, trigger := range triggers {
			for _, sink := range p.sinks {
				sink.PublishAlarm(trigger)
			}
		}
	}
}

func (p *Pipeline) statusLoop() {
	defer p.wg.Done()

	for status := range p.source.StatusEvents() {
		p.logger.Info().
			Str("state", string(status.State)).
			Msg("Bridge status changed")

		for _, sink := range p.sinks {
			sink.PublishStatus(status)
		}
	}
}

// countDiscard classifies a rejected frame. Unknown message types are a
// normal part of bus traffic and only counted; real corruption is logged.
func (p *Pipeline) countDiscard(frame []byte, err error) {
	switch {
	case errors.Is(err, domain.ErrUnsupported):
		p.unsupported.Add(1)
		p.metrics.IncUnsupportedFrames()
	case errors.Is(err, domain.ErrChecksumMismatch), errors.Is(err, domain.ErrMalformedFrame):
		p.parseErrors.Add(1)
		p.metrics.IncParseErrors()
		p.logger.Debug().
			Err(err).
			Str("frame", frameSnippet(frame)).
			Msg("Discarded frame")
	default:
		p.normalizeErrors.Add(1)
		p.metrics.IncNormalizeErrors()
		p.logger.Debug().
			Err(err).
			Str("frame", frameSnippet(frame)).
			Msg("Discarded record")
	}
}

func frameSnippet(frame []byte) string {
	const max = 32
	if len(frame) > max {
		frame = frame[:max]
	}
	return fmt.Sprintf("%q", frame)
}

// StatusHandler returns current pipeline status
func (p *Pipeline) StatusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"service":    "marine-gateway",
		"uptime":     time.Since(p.startTime).String(),
		"uptime_ms":  time.Since(p.startTime).Milliseconds(),
		"connection": p.source.Status(),
		"pipeline": map[string]interface{}{
			"frames_received":    p.framesSeen.Load(),
			"parse_errors":       p.parseErrors.Load(),
			"unsupported_frames": p.unsupported.Load(),
			"normalize_errors":   p.normalizeErrors.Load(),
			"records_normalized": p.recordsOut.Load(),
		},
		"updater": p.updater.Stats(),
		"alarms":  p.engine.Stats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// SnapshotHandler returns the live sensor state and alarm states
func (p *Pipeline) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	alarmStates := make(map[string]domain.AlarmState)
	for key, st := range p.engine.AlarmStates() {
		alarmStates[key.String()] = st
	}

	snapshot := map[string]interface{}{
		"sensors":    p.store.All(),
		"alarms":     alarmStates,
		"thresholds": p.engine.Thresholds(),
		"instances":  p.config.Instances,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}
