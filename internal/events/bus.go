// Package events is the in-process pub/sub spine. The trading loop publishes
// what happened each cycle; the API layer, the adjustment log, and the
// database writer subscribe without the loop knowing about any of them.
package events

import (
	"sync"
	"time"
)

// EventType labels system events.
type EventType string

const (
	EventEngineStarted  EventType = "ENGINE_STARTED"
	EventEngineStopped  EventType = "ENGINE_STOPPED"
	EventRegimeChanged  EventType = "REGIME_CHANGED"
	EventDecisionFused  EventType = "DECISION_FUSED"
	EventPositionOpened EventType = "POSITION_OPENED"
	EventPositionClosed EventType = "POSITION_CLOSED"
	EventStopTightened  EventType = "STOP_TIGHTENED"
	EventTPExtended     EventType = "TP_EXTENDED"
	EventBreakevenSet   EventType = "BREAKEVEN_SET"
	EventTrailingMoved  EventType = "TRAILING_MOVED"
	EventTimeExit       EventType = "TIME_EXIT"
	EventBrokerHealth   EventType = "BROKER_HEALTH"
	EventConfigApplied  EventType = "CONFIG_APPLIED"
	EventError          EventType = "ERROR"
)

// Event is one published occurrence.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber handles events. Handlers run on their own goroutine so a slow
// subscriber cannot stall the trading loop.
type Subscriber func(Event)

// Bus fans events out to subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a handler for every event.
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish delivers the event to matching subscribers.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	for _, sub := range b.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishRegimeChanged reports a symbol moving between regime types.
func (b *Bus) PublishRegimeChanged(symbol, from, to string, strength, volatility float64) {
	b.Publish(Event{
		Type: EventRegimeChanged,
		Data: map[string]interface{}{
			"symbol":     symbol,
			"from":       from,
			"to":         to,
			"strength":   strength,
			"volatility": volatility,
		},
	})
}

// PublishDecision reports a fused decision, actionable or not.
func (b *Bus) PublishDecision(symbol, direction string, score, confidence float64, degradations int) {
	b.Publish(Event{
		Type: EventDecisionFused,
		Data: map[string]interface{}{
			"symbol":       symbol,
			"direction":    direction,
			"score":        score,
			"confidence":   confidence,
			"degradations": degradations,
		},
	})
}

// PublishPositionOpened reports a fill.
func (b *Bus) PublishPositionOpened(ticket int64, symbol, direction string, entry, qty, stop, tp float64, groupID string) {
	b.Publish(Event{
		Type: EventPositionOpened,
		Data: map[string]interface{}{
			"ticket":      ticket,
			"symbol":      symbol,
			"direction":   direction,
			"entry_price": entry,
			"quantity":    qty,
			"stop_loss":   stop,
			"take_profit": tp,
			"group_id":    groupID,
		},
	})
}

// PublishPositionClosed reports a close with its realized result.
func (b *Bus) PublishPositionClosed(ticket int64, symbol, reason string, entry, exit, qty, pnl float64) {
	b.Publish(Event{
		Type: EventPositionClosed,
		Data: map[string]interface{}{
			"ticket":      ticket,
			"symbol":      symbol,
			"reason":      reason,
			"entry_price": entry,
			"exit_price":  exit,
			"quantity":    qty,
			"pnl":         pnl,
		},
	})
}

// PublishAdjustment reports a stop or target change with the kind mapped to
// its event type.
func (b *Bus) PublishAdjustment(eventType EventType, ticket int64, symbol string, from, to float64, reason string) {
	b.Publish(Event{
		Type: eventType,
		Data: map[string]interface{}{
			"ticket": ticket,
			"symbol": symbol,
			"from":   from,
			"to":     to,
			"reason": reason,
		},
	})
}

// PublishBrokerHealth reports transport health transitions.
func (b *Bus) PublishBrokerHealth(status string, consecutiveFailures int) {
	b.Publish(Event{
		Type: EventBrokerHealth,
		Data: map[string]interface{}{
			"status":               status,
			"consecutive_failures": consecutiveFailures,
		},
	})
}

// PublishError reports a recoverable fault.
func (b *Bus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{Type: EventError, Data: data})
}
