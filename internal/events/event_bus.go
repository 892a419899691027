// Package events provides the topic-based pub/sub bus that decouples C2's
// engine from C4's alert manager (and any other subscriber) per the design
// note in §9: components publish facts, they never call each other directly.
package events

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Topic identifies a category of domain event.
type Topic string

const (
	TopicTokenDiscovered Topic = "on_token_discovered"
	TopicTradeExecuted   Topic = "on_trade_executed"
	TopicPositionClosed  Topic = "on_position_closed"
	TopicDecisionLogged  Topic = "on_decision_logged"
	TopicAlertTriggered  Topic = "on_alert_triggered"
	TopicError           Topic = "on_error"
)

// Event is the base interface every published value satisfies.
type Event interface {
	GetTopic() Topic
	GetTimestamp() time.Time
	GetID() string
}

// BaseEvent provides the common Event fields.
type BaseEvent struct {
	ID        string    `json:"id"`
	Topic     Topic     `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *BaseEvent) GetTopic() Topic          { return e.Topic }
func (e *BaseEvent) GetTimestamp() time.Time  { return e.Timestamp }
func (e *BaseEvent) GetID() string            { return e.ID }

// TokenDiscoveredEvent fires when a newly scanned token passes the entry filters.
type TokenDiscoveredEvent struct {
	BaseEvent
	TokenAddress string `json:"tokenAddress"`
	Platform     string `json:"platform"`
}

// TradeExecutedEvent fires when the scan loop executes a buy; sells and
// watchlist entries do not publish it.
type TradeExecutedEvent struct {
	BaseEvent
	TokenAddress string `json:"tokenAddress"`
	Kind         string `json:"kind"` // buy|sell
	Signature    string `json:"signature"`
}

// PositionClosedEvent fires when a position reaches PositionClosed (§4.2.6).
type PositionClosedEvent struct {
	BaseEvent
	PositionID string `json:"positionId"`
	Outcome    string `json:"outcome"` // win|loss
	Reason     string `json:"reason"`
}

// DecisionLoggedEvent fires whenever C3 records a state/action/reward tuple,
// and when C2 closes a position (action "exit:<reason>").
type DecisionLoggedEvent struct {
	BaseEvent
	PositionID string `json:"positionId"`
	Action     string `json:"action"`
}

// AlertTriggeredEvent fires once per alert, at the moment it first matches
// (L3: fire-once semantics).
type AlertTriggeredEvent struct {
	BaseEvent
	AlertID string `json:"alertId"`
	Symbol  string `json:"symbol"`
}

// ErrorEvent carries an out-of-band failure any component wants surfaced.
type ErrorEvent struct {
	BaseEvent
	Source  string `json:"source"`
	Message string `json:"message"`
}

// Handler processes one event. An error is logged, never propagated.
type Handler func(event Event) error

// Filter selectively admits events to a subscription.
type Filter func(event Event) bool

// SubscribeOptions configures a subscription.
type SubscribeOptions struct {
	Filter Filter
	Async  bool // default true
}

// Subscription is a live registration returned by Subscribe.
type Subscription struct {
	id      string
	topic   Topic
	handler Handler
	opts    SubscribeOptions
	active  atomic.Bool
}

// IsActive reports whether the subscription still receives events.
func (s *Subscription) IsActive() bool { return s.active.Load() }

// BusStats summarizes bus throughput for the ambient status surface.
type BusStats struct {
	Published   int64 `json:"published"`
	Processed   int64 `json:"processed"`
	Dropped     int64 `json:"dropped"`
	HandlerErrs int64 `json:"handlerErrors"`
	Subscribers int64 `json:"subscribers"`
}

// BusConfig configures the bus's worker pool and channel depth.
type BusConfig struct {
	Workers    int `mapstructure:"workers"`
	BufferSize int `mapstructure:"buffer_size"`
}

// DefaultBusConfig returns sensible defaults for a single-process deployment.
func DefaultBusConfig() BusConfig {
	return BusConfig{Workers: 4, BufferSize: 4096}
}

// Bus is the central event router. Every C2/C3/C4 component holds a
// reference to the same Bus instead of calling each other's methods.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Topic][]*Subscription
	wildcard    []*Subscription

	eventChan chan Event

	published atomic.Int64
	processed atomic.Int64
	dropped   atomic.Int64
	errs      atomic.Int64

	latencyMu sync.Mutex
	latencies []int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewBus starts the worker pool and returns a ready-to-use Bus.
func NewBus(logger *zap.Logger, cfg BusConfig) *Bus {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		subscribers: make(map[Topic][]*Subscription),
		eventChan:   make(chan Event, cfg.BufferSize),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
		latencies:   make([]int64, 0, 1024),
	}

	for i := 0; i < cfg.Workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}

	b.logger.Info("event bus started", zap.Int("workers", cfg.Workers), zap.Int("buffer", cfg.BufferSize))
	return b
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case ev := <-b.eventChan:
			start := time.Now()
			b.dispatch(ev)
			b.trackLatency(time.Since(start).Nanoseconds())
		}
	}
}

func (b *Bus) dispatch(ev Event) {
	b.mu.RLock()
	subs := b.subscribers[ev.GetTopic()]
	wild := b.wildcard
	b.mu.RUnlock()

	run := func(sub *Subscription) {
		if !sub.active.Load() {
			return
		}
		if sub.opts.Filter != nil && !sub.opts.Filter(ev) {
			return
		}
		if sub.opts.Async {
			go b.invoke(sub, ev)
		} else {
			b.invoke(sub, ev)
		}
	}
	for _, sub := range subs {
		run(sub)
	}
	for _, sub := range wild {
		run(sub)
	}
	b.processed.Add(1)
}

func (b *Bus) invoke(sub *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.errs.Add(1)
			b.logger.Error("event handler panicked",
				zap.String("subscription", sub.id),
				zap.String("topic", string(ev.GetTopic())),
				zap.Any("panic", r))
		}
	}()

	if err := sub.handler(ev); err != nil {
		b.errs.Add(1)
		b.logger.Warn("event handler error",
			zap.String("subscription", sub.id),
			zap.String("topic", string(ev.GetTopic())),
			zap.Error(err))
	}
}

func (b *Bus) trackLatency(ns int64) {
	b.latencyMu.Lock()
	defer b.latencyMu.Unlock()
	b.latencies = append(b.latencies, ns)
	if len(b.latencies) > 2000 {
		b.latencies = b.latencies[1000:]
	}
}

// Subscribe registers handler for a single topic.
func (b *Bus) Subscribe(topic Topic, handler Handler, opts ...SubscribeOptions) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	o := SubscribeOptions{Async: true}
	if len(opts) > 0 {
		o = opts[0]
	}
	sub := &Subscription{id: nextSubscriptionID(), topic: topic, handler: handler, opts: o}
	sub.active.Store(true)
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	return sub
}

// SubscribeAll registers handler for every topic.
func (b *Bus) SubscribeAll(handler Handler, opts ...SubscribeOptions) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	o := SubscribeOptions{Async: true}
	if len(opts) > 0 {
		o = opts[0]
	}
	sub := &Subscription{id: nextSubscriptionID(), topic: "*", handler: handler, opts: o}
	sub.active.Store(true)
	b.wildcard = append(b.wildcard, sub)
	return sub
}

// Unsubscribe deactivates a subscription; it stops receiving events but the
// slot is not compacted until the bus is rebuilt.
func (b *Bus) Unsubscribe(sub *Subscription) {
	sub.active.Store(false)
}

// Publish enqueues ev for async dispatch. If the buffer is full the event is
// dropped and counted, never blocking the publisher.
func (b *Bus) Publish(ev Event) {
	select {
	case b.eventChan <- ev:
		b.published.Add(1)
	default:
		b.dropped.Add(1)
		b.logger.Warn("event dropped, bus saturated", zap.String("topic", string(ev.GetTopic())))
	}
}

// PublishSync dispatches ev on the caller's goroutine; handlers of
// synchronous subscriptions have run when it returns, while async
// subscriptions (the default) still run on their own goroutines.
func (b *Bus) PublishSync(ev Event) {
	b.published.Add(1)
	b.dispatch(ev)
}

// Stats reports current throughput counters.
func (b *Bus) Stats() BusStats {
	b.mu.RLock()
	subCount := int64(len(b.wildcard))
	for _, subs := range b.subscribers {
		subCount += int64(len(subs))
	}
	b.mu.RUnlock()
	return BusStats{
		Published:   b.published.Load(),
		Processed:   b.processed.Load(),
		Dropped:     b.dropped.Load(),
		HandlerErrs: b.errs.Load(),
		Subscribers: subCount,
	}
}

// P99LatencyNs returns the 99th-percentile dispatch latency observed so far.
func (b *Bus) P99LatencyNs() int64 {
	b.latencyMu.Lock()
	defer b.latencyMu.Unlock()
	if len(b.latencies) == 0 {
		return 0
	}
	sorted := make([]int64, len(b.latencies))
	copy(sorted, b.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Close stops all workers, waiting up to 5s for in-flight events to drain.
func (b *Bus) Close() {
	b.logger.Info("event bus shutting down")
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("event bus stopped", zap.Int64("processed", b.processed.Load()), zap.Int64("dropped", b.dropped.Load()))
	case <-time.After(5 * time.Second):
		b.logger.Warn("event bus shutdown timed out")
	}
}

var subCounter atomic.Int64

func nextSubscriptionID() string {
	n := subCounter.Add(1)
	return "sub_" + time.Now().Format("20060102150405") + "_" + itoa(n)
}

func itoa(i int64) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

var eventCounter atomic.Int64

func nextEventID() string {
	n := eventCounter.Add(1)
	return "evt_" + time.Now().Format("20060102150405") + "_" + itoa(n)
}

// NewTokenDiscoveredEvent constructs a TokenDiscoveredEvent with a fresh ID.
func NewTokenDiscoveredEvent(tokenAddress, platform string) *TokenDiscoveredEvent {
	return &TokenDiscoveredEvent{
		BaseEvent:    BaseEvent{ID: nextEventID(), Topic: TopicTokenDiscovered, Timestamp: time.Now()},
		TokenAddress: tokenAddress,
		Platform:     platform,
	}
}

// NewTradeExecutedEvent constructs a TradeExecutedEvent with a fresh ID.
func NewTradeExecutedEvent(tokenAddress, kind, signature string) *TradeExecutedEvent {
	return &TradeExecutedEvent{
		BaseEvent:    BaseEvent{ID: nextEventID(), Topic: TopicTradeExecuted, Timestamp: time.Now()},
		TokenAddress: tokenAddress,
		Kind:         kind,
		Signature:    signature,
	}
}

// NewPositionClosedEvent constructs a PositionClosedEvent with a fresh ID.
func NewPositionClosedEvent(positionID, outcome, reason string) *PositionClosedEvent {
	return &PositionClosedEvent{
		BaseEvent:  BaseEvent{ID: nextEventID(), Topic: TopicPositionClosed, Timestamp: time.Now()},
		PositionID: positionID,
		Outcome:    outcome,
		Reason:     reason,
	}
}

// NewDecisionLoggedEvent constructs a DecisionLoggedEvent with a fresh ID.
func NewDecisionLoggedEvent(positionID, action string) *DecisionLoggedEvent {
	return &DecisionLoggedEvent{
		BaseEvent:  BaseEvent{ID: nextEventID(), Topic: TopicDecisionLogged, Timestamp: time.Now()},
		PositionID: positionID,
		Action:     action,
	}
}

// NewAlertTriggeredEvent constructs an AlertTriggeredEvent with a fresh ID.
func NewAlertTriggeredEvent(alertID, symbol string) *AlertTriggeredEvent {
	return &AlertTriggeredEvent{
		BaseEvent: BaseEvent{ID: nextEventID(), Topic: TopicAlertTriggered, Timestamp: time.Now()},
		AlertID:   alertID,
		Symbol:    symbol,
	}
}

// NewErrorEvent constructs an ErrorEvent with a fresh ID.
func NewErrorEvent(source, message string) *ErrorEvent {
	return &ErrorEvent{
		BaseEvent: BaseEvent{ID: nextEventID(), Topic: TopicError, Timestamp: time.Now()},
		Source:    source,
		Message:   message,
	}
}
