// Package eventbus provides a typed publish/subscribe event bus for
// cross-component communication within tempo.
package eventbus

import (
	"context"
	"sync"
)

// Event identifies an event type on the bus.
type Event string

// All event types published by the engine.
const (
	EventTimerStarted       Event = "timer.started"
	EventTimerPaused        Event = "timer.paused"
	EventTimerResumed       Event = "timer.resumed"
	EventTimerCompleted     Event = "timer.completed"
	EventSweepCompleted     Event = "sweep.completed"
	EventReconcileCorrected Event = "reconcile.corrected"
	EventReconcileFlagged   Event = "reconcile.flagged"
)

type envelope struct {
	event   Event
	payload any
}

// EventBus dispatches typed events to subscribers on a single background
// goroutine. Publish never blocks: events are dropped (and the OnDrop
// hook fired) when the buffer is full.
type EventBus struct {
	ch    chan envelope
	hooks hooks

	mu   sync.RWMutex
	subs map[Event][]func(any)
}

// New creates an EventBus with the given buffer size.
func New(buffer int) *EventBus {
	return &EventBus{
		ch:   make(chan envelope, buffer),
		subs: make(map[Event][]func(any)),
	}
}

// Run dispatches events until the context is cancelled. Call in a
// goroutine; subscriber panics are recovered and reported via OnPanic.
func (bus *EventBus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-bus.ch:
			bus.dispatch(env)
		}
	}
}

func (bus *EventBus) dispatch(env envelope) {
	bus.mu.RLock()
	subs := make([]func(any), len(bus.subs[env.event]))
	copy(subs, bus.subs[env.event])
	bus.mu.RUnlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					bus.runOnPanic(env.event, env.payload, r)
				}
			}()
			fn(env.payload)
		}()
	}
}

func (bus *EventBus) subscribe(event Event, fn func(any)) {
	bus.mu.Lock()
	bus.subs[event] = append(bus.subs[event], fn)
	bus.mu.Unlock()
	bus.runOnSubscribe(event)
}

// send enqueues an event and fires hooks.
func (bus *EventBus) send(event Event, payload any) {
	select {
	case bus.ch <- envelope{event: event, payload: payload}:
		bus.runOnPublish(event, payload)
	default:
		bus.runOnDrop(event, payload)
	}
}

// PublishTimerStarted publishes a timer.started event.
func (bus *EventBus) PublishTimerStarted(p TimerStartedPayload) { bus.send(EventTimerStarted, p) }

// SubscribeTimerStarted registers a handler for timer.started events.
func (bus *EventBus) SubscribeTimerStarted(fn func(TimerStartedPayload)) {
	bus.subscribe(EventTimerStarted, func(p any) { fn(p.(TimerStartedPayload)) })
}

// PublishTimerPaused publishes a timer.paused event.
func (bus *EventBus) PublishTimerPaused(p TimerPausedPayload) { bus.send(EventTimerPaused, p) }

// SubscribeTimerPaused registers a handler for timer.paused events.
func (bus *EventBus) SubscribeTimerPaused(fn func(TimerPausedPayload)) {
	bus.subscribe(EventTimerPaused, func(p any) { fn(p.(TimerPausedPayload)) })
}

// PublishTimerResumed publishes a timer.resumed event.
func (bus *EventBus) PublishTimerResumed(p TimerResumedPayload) { bus.send(EventTimerResumed, p) }

// SubscribeTimerResumed registers a handler for timer.resumed events.
func (bus *EventBus) SubscribeTimerResumed(fn func(TimerResumedPayload)) {
	bus.subscribe(EventTimerResumed, func(p any) { fn(p.(TimerResumedPayload)) })
}

// PublishTimerCompleted publishes a timer.completed event.
func (bus *EventBus) PublishTimerCompleted(p TimerCompletedPayload) {
	bus.send(EventTimerCompleted, p)
}

// SubscribeTimerCompleted registers a handler for timer.completed events.
func (bus *EventBus) SubscribeTimerCompleted(fn func(TimerCompletedPayload)) {
	bus.subscribe(EventTimerCompleted, func(p any) { fn(p.(TimerCompletedPayload)) })
}

// PublishSweepCompleted publishes a sweep.completed event.
func (bus *EventBus) PublishSweepCompleted(p SweepCompletedPayload) {
	bus.send(EventSweepCompleted, p)
}

// SubscribeSweepCompleted registers a handler for sweep.completed events.
func (bus *EventBus) SubscribeSweepCompleted(fn func(SweepCompletedPayload)) {
	bus.subscribe(EventSweepCompleted, func(p any) { fn(p.(SweepCompletedPayload)) })
}

// PublishReconcileCorrected publishes a reconcile.corrected event.
func (bus *EventBus) PublishReconcileCorrected(p ReconcileCorrectedPayload) {
	bus.send(EventReconcileCorrected, p)
}

// SubscribeReconcileCorrected registers a handler for reconcile.corrected events.
func (bus *EventBus) SubscribeReconcileCorrected(fn func(ReconcileCorrectedPayload)) {
	bus.subscribe(EventReconcileCorrected, func(p any) { fn(p.(ReconcileCorrectedPayload)) })
}

// PublishReconcileFlagged publishes a reconcile.flagged event.
func (bus *EventBus) PublishReconcileFlagged(p ReconcileFlaggedPayload) {
	bus.send(EventReconcileFlagged, p)
}

// SubscribeReconcileFlagged registers a handler for reconcile.flagged events.
func (bus *EventBus) SubscribeReconcileFlagged(fn func(ReconcileFlaggedPayload)) {
	bus.subscribe(EventReconcileFlagged, func(p any) { fn(p.(ReconcileFlaggedPayload)) })
}
