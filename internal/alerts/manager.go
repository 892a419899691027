// Package alerts implements C4, the alert/monitor engine: a periodic tick
// that evaluates user-declared price/pattern/sentiment/anomaly conditions
// and fires a callback plus a bus event exactly once per alert (§4.4). Built
// around a mutex-guarded map, a stopChan+sync.WaitGroup loop lifecycle, and
// persistence on mutation.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/internal/events"
	"github.com/atlas-desktop/nova-trader/internal/ml"
	"github.com/atlas-desktop/nova-trader/internal/mlcache"
	"github.com/atlas-desktop/nova-trader/internal/persistence"
	"github.com/atlas-desktop/nova-trader/pkg/types"
	"github.com/atlas-desktop/nova-trader/pkg/utils"
)

// tickInterval is the §4.4 "≈60s" periodic check cadence.
const tickInterval = 60 * time.Second

// OnTrigger is called synchronously, in addition to the bus event, whenever
// an alert fires (§4.4 "call on_trigger(alert, data)").
type OnTrigger func(alert types.Alert, data map[string]any)

// Stats is the §4.4 get_alert_stats summary.
type Stats struct {
	Total     int `json:"total"`
	Triggered int `json:"triggered"`
	Pending   int `json:"pending"`
	ByType    map[types.AlertType]int `json:"byType"`
}

// Manager is C4.
type Manager struct {
	mu     sync.RWMutex
	logger *zap.Logger

	market MarketData
	pattern ml.PatternRecognizer
	sentiment ml.SentimentAnalyzer
	anomaly ml.AnomalyDetector
	cache   *mlcache.Cache

	store *persistence.Store
	bus   *events.Bus

	alerts    map[string]*types.Alert
	onTrigger OnTrigger

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// Dependencies bundles Manager's external collaborators (§6.2, §6.5).
type Dependencies struct {
	Market    MarketData
	Pattern   ml.PatternRecognizer
	Sentiment ml.SentimentAnalyzer
	Anomaly   ml.AnomalyDetector
	Cache     *mlcache.Cache
	Store     *persistence.Store
	Bus       *events.Bus
}

// New constructs a Manager. Alert monitoring does not start until the first
// alert is added (§4.4 "monitoring starts automatically when the alert list
// becomes non-empty").
func New(logger *zap.Logger, deps Dependencies, onTrigger OnTrigger) *Manager {
	return &Manager{
		logger:    logger.Named("alerts"),
		market:    deps.Market,
		pattern:   deps.Pattern,
		sentiment: deps.Sentiment,
		anomaly:   deps.Anomaly,
		cache:     deps.Cache,
		store:     deps.Store,
		bus:       deps.Bus,
		alerts:    make(map[string]*types.Alert),
		onTrigger: onTrigger,
	}
}

// LoadPersisted restores any alerts saved by a previous run (§6.5 "Alert
// list — optional persistence") and starts the tick loop if any alert was
// restored, whether or not it has already triggered.
func (m *Manager) LoadPersisted(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	saved, err := m.store.LoadAlerts()
	if err != nil {
		return err
	}
	m.mu.Lock()
	for _, a := range saved {
		alert := a
		m.alerts[alert.ID] = alert
	}
	shouldRun := len(m.alerts) > 0
	m.mu.Unlock()

	if shouldRun {
		m.ensureRunning(ctx)
	}
	return nil
}

// AddAlert registers a new alert and starts the monitor loop if it isn't
// already running (§4.4 add_alert).
func (m *Manager) AddAlert(ctx context.Context, alert types.Alert) (string, error) {
	if alert.ID == "" {
		alert.ID = utils.GenerateID("alert")
	}
	alert.CreatedAt = time.Now()
	alert.Triggered = false

	m.mu.Lock()
	m.alerts[alert.ID] = &alert
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveAlert(&alert); err != nil {
			m.logger.Warn("failed to persist new alert", zap.Error(err))
		}
	}

	m.ensureRunning(ctx)
	return alert.ID, nil
}

// RemoveAlert deletes an alert by ID and stops the monitor loop once none
// remain (§4.4 remove_alert).
func (m *Manager) RemoveAlert(id string) error {
	m.mu.Lock()
	if _, ok := m.alerts[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("alerts: no alert %q", id)
	}
	delete(m.alerts, id)
	empty := len(m.alerts) == 0
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.DeleteAlert(id); err != nil {
			m.logger.Warn("failed to delete persisted alert", zap.Error(err))
		}
	}

	if empty {
		m.Stop()
	}
	return nil
}

// GetAlerts returns a snapshot of every currently registered alert (§4.4
// get_alerts).
func (m *Manager) GetAlerts() []types.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		out = append(out, *a)
	}
	return out
}

// GetAlertStats summarizes the alert list (§4.4 get_alert_stats).
func (m *Manager) GetAlertStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := Stats{ByType: make(map[types.AlertType]int)}
	for _, a := range m.alerts {
		stats.Total++
		stats.ByType[a.Type]++
		if a.Triggered {
			stats.Triggered++
		} else {
			stats.Pending++
		}
	}
	return stats
}

// ClearAll removes every alert and stops the monitor loop (§4.4 clear_all).
func (m *Manager) ClearAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.alerts))
	for id := range m.alerts {
		ids = append(ids, id)
	}
	m.alerts = make(map[string]*types.Alert)
	m.mu.Unlock()

	if m.store != nil {
		for _, id := range ids {
			_ = m.store.DeleteAlert(id)
		}
	}
	m.Stop()
}

// ensureRunning starts the tick loop if the alert list is non-empty and no
// loop is currently running. Safe to call redundantly.
func (m *Manager) ensureRunning(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop halts the tick loop; pending alerts remain registered and resume
// being monitored the next time one is added.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick evaluates every pending alert once. A panic evaluating one alert is
// contained so the remaining alerts still get checked this tick.
func (m *Manager) tick(ctx context.Context) {
	m.mu.RLock()
	pending := make([]*types.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if !a.Triggered {
			pending = append(pending, a)
		}
	}
	m.mu.RUnlock()

	for _, alert := range pending {
		m.evaluateOne(ctx, alert)
	}

	m.mu.RLock()
	empty := len(m.alerts) == 0
	m.mu.RUnlock()
	if empty {
		go m.Stop()
	}
}

func (m *Manager) evaluateOne(ctx context.Context, alert *types.Alert) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("alert evaluation panicked", zap.String("alertId", alert.ID), zap.Any("panic", r))
		}
	}()

	now := time.Now()
	triggered, data, err := m.evaluate(ctx, alert)
	m.mu.Lock()
	if a, ok := m.alerts[alert.ID]; ok {
		a.LastCheck = &now
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("alert evaluation failed", zap.String("alertId", alert.ID), zap.Error(err))
		return
	}
	if !triggered {
		return
	}

	m.fire(alert, data)
}

// fire marks alert triggered, persists, publishes the bus event, and calls
// the caller's OnTrigger callback (§4.4 "trigger action").
func (m *Manager) fire(alert *types.Alert, data map[string]any) {
	triggeredAt := time.Now()

	m.mu.Lock()
	current, ok := m.alerts[alert.ID]
	if !ok || current.Triggered {
		m.mu.Unlock()
		return
	}
	current.Triggered = true
	current.TriggeredAt = &triggeredAt
	current.TriggerData = data
	snapshot := *current
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveAlert(&snapshot); err != nil {
			m.logger.Warn("failed to persist triggered alert", zap.Error(err))
		}
	}
	if m.bus != nil {
		m.bus.Publish(events.NewAlertTriggeredEvent(alert.ID, alert.Symbol))
	}
	if m.onTrigger != nil {
		m.onTrigger(snapshot, data)
	}
	m.logger.Info("alert triggered", zap.String("alertId", alert.ID), zap.String("symbol", alert.Symbol), zap.String("type", string(alert.Type)))
}
