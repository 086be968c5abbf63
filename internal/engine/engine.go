package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"sensorlog/internal/alerts"
	"sensorlog/internal/config"
	"sensorlog/internal/decode"
	"sensorlog/internal/metrics"
	"sensorlog/internal/model"
	"sensorlog/internal/relay"
	"sensorlog/internal/storage"
)

const (
	OutcomeValues    = "values"
	OutcomeEvent     = "event"
	OutcomeNone      = "none"
	OutcomeFiltered  = "filtered"
	OutcomeDuplicate = "duplicate"
	OutcomeError     = "error"
)

// Deps are the collaborators a decoded record is handed to. Any of them
// may be nil.
type Deps struct {
	Devices   *metrics.Store
	Alerts    *alerts.Store
	Store     storage.Store
	Relays    *relay.Fanout
	Collector *metrics.Collector
}

type Engine struct {
	logger    *slog.Logger
	decoder   *decode.Decoder
	devices   *metrics.Store
	alerts    *alerts.Store
	store     storage.Store
	relays    *relay.Fanout
	collector *metrics.Collector
	cfg       atomic.Value
	filter    atomic.Value
	started   time.Time
	now       func() time.Time

	mu       sync.RWMutex
	cooldown *Cooldown
	deDupe   *DedupeCache

	counters sync.Map
}

// Status is a snapshot of the dispatcher's counters.
type Status struct {
	StartedAt time.Time        `json:"started_at"`
	Outcomes  map[string]int64 `json:"outcomes"`
	Relays    []string         `json:"relays"`
	Storage   bool             `json:"storage"`
}

func NewEngine(cfg *config.Config, logger *slog.Logger, deps Deps) *Engine {
	e := &Engine{
		logger:    logger,
		decoder:   decode.NewDecoder(),
		devices:   deps.Devices,
		alerts:    deps.Alerts,
		store:     deps.Store,
		relays:    deps.Relays,
		collector: deps.Collector,
		started:   time.Now().UTC(),
		now:       func() time.Time { return time.Now().UTC() },
		cooldown:  NewCooldown(),
		deDupe:    NewDedupeCache(),
	}
	e.cfg.Store(cfg)
	e.filter.Store(buildChannelFilter(cfg))
	return e
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
	e.filter.Store(buildChannelFilter(cfg))
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

func (e *Engine) channelFilter() *ChannelFilter {
	if v := e.filter.Load(); v != nil {
		if f, ok := v.(*ChannelFilter); ok {
			return f
		}
	}
	return nil
}

// Start consumes in until ctx is cancelled. Messages are handled one at a
// time so a device's records keep their channel order.
func (e *Engine) Start(ctx context.Context, in <-chan model.ChannelMessage) {
	go func() {
		for {
			select {
			case msg := <-in:
				if _, err := e.ProcessMessage(ctx, msg); err != nil && e.logger != nil {
					e.logger.Warn("message rejected",
						"source", msg.Source,
						"channel_id", msg.ChannelID,
						"message_id", msg.MessageID,
						"err", err,
					)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// ProcessMessage runs one channel post through filter, dedupe and decode,
// then hands the record to every collaborator. Collaborator failures are
// logged and counted; only invalid metadata is returned as an error.
func (e *Engine) ProcessMessage(ctx context.Context, msg model.ChannelMessage) (model.Record, error) {
	cfg := e.config()
	if ok, reason := e.channelFilter().Allow(msg); !ok {
		e.observe(msg.Source, OutcomeFiltered)
		if e.logger != nil {
			e.logger.Debug("message filtered", "channel_id", msg.ChannelID, "message_id", msg.MessageID, "reason", reason)
		}
		return model.Record{}, nil
	}
	if e.isDuplicate(msg, cfg.Engine.DedupeWindow) {
		e.observe(msg.Source, OutcomeDuplicate)
		return model.Record{}, nil
	}

	rec, err := e.decoder.Decode(msg)
	if err != nil {
		e.observe(msg.Source, OutcomeError)
		return rec, err
	}
	switch rec.Kind {
	case model.KindValues:
		e.observe(msg.Source, OutcomeValues)
		e.handleValues(ctx, cfg, rec)
	case model.KindEvent:
		e.observe(msg.Source, OutcomeEvent)
		e.handleEvent(ctx, cfg, rec)
	default:
		e.observe(msg.Source, OutcomeNone)
		if e.logger != nil {
			e.logger.Debug("message carries no record", "channel_id", msg.ChannelID, "message_id", msg.MessageID)
		}
	}
	return rec, nil
}

func (e *Engine) handleValues(ctx context.Context, cfg *config.Config, rec model.Record) {
	v := *rec.Values
	if e.logger != nil {
		e.logger.Info("values decoded",
			"device", v.DeviceName,
			"channel", v.ChannelName,
			"message_id", v.MessageID,
			"time", v.Time,
		)
	}
	if e.devices == nil || e.devices.Update(v) {
		if e.collector != nil {
			e.collector.ObserveValues(v)
		}
	}
	if e.store != nil {
		sctx, cancel := context.WithTimeout(ctx, cfg.Engine.StoreTimeout)
		err := e.store.SaveValues(sctx, v)
		cancel()
		if err != nil {
			e.storeFailed(rec, err)
		}
	}
	e.relay(ctx, cfg, rec)
}

func (e *Engine) handleEvent(ctx context.Context, cfg *config.Config, rec model.Record) {
	ev := *rec.Event
	if e.logger != nil {
		e.logger.Info("event decoded",
			"device", ev.DeviceName,
			"channel", ev.ChannelName,
			"type", ev.Type.String(),
			"flag", ev.Flag,
			"message_id", ev.MessageID,
		)
	}
	if e.alerts != nil {
		e.alerts.Add(ev)
	}
	if e.collector != nil {
		e.collector.ObserveEvent(ev)
	}
	if e.store != nil {
		sctx, cancel := context.WithTimeout(ctx, cfg.Engine.StoreTimeout)
		err := e.store.SaveEvent(sctx, ev)
		cancel()
		if err != nil {
			e.storeFailed(rec, err)
		}
	}
	e.mu.RLock()
	cooldown := e.cooldown
	e.mu.RUnlock()
	if !cooldown.AllowEvent(ev, e.now(), cfg.Engine.AlertCooldown) {
		if e.logger != nil {
			e.logger.Info("event relay suppressed by cooldown", "device", ev.DeviceName, "type", ev.Type.String(), "flag", ev.Flag)
		}
		return
	}
	e.relay(ctx, cfg, rec)
}

func (e *Engine) relay(ctx context.Context, cfg *config.Config, rec model.Record) {
	if e.relays.Len() == 0 {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, cfg.Engine.RelayTimeout)
	defer cancel()
	// Per-relay failures are logged and counted by the fanout.
	_ = e.relays.Send(rctx, rec)
}

func (e *Engine) storeFailed(rec model.Record, err error) {
	if e.collector != nil {
		e.collector.ObserveStoreError(rec.Kind)
	}
	if e.logger != nil {
		e.logger.Error("storage write failed", "record", rec.String(), "err", err)
	}
}

func (e *Engine) observe(source, outcome string) {
	v, _ := e.counters.LoadOrStore(outcome, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
	if e.collector != nil {
		e.collector.ObserveMessage(source, outcome)
	}
}

func (e *Engine) Status() Status {
	out := Status{
		StartedAt: e.started,
		Outcomes:  make(map[string]int64),
		Relays:    e.relays.Names(),
		Storage:   e.store != nil,
	}
	e.counters.Range(func(k, v any) bool {
		out.Outcomes[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return out
}

// Reset forgets dedupe and cooldown history.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cooldown = NewCooldown()
	e.deDupe = NewDedupeCache()
}

func (e *Engine) isDuplicate(msg model.ChannelMessage, dedupeWindow time.Duration) bool {
	if dedupeWindow <= 0 {
		return false
	}
	e.mu.RLock()
	cache := e.deDupe
	e.mu.RUnlock()
	return cache.Seen(messageKey(msg), e.now(), dedupeWindow)
}
