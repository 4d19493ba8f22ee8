package orchestration

import (
	"fmt"
	"sync"

	"github.com/koscakluka/ema-voiceloop/core/events"
)

const defaultSubscriberBuffer = 64

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

// EventSink receives every event in emission order. A returned error is
// logged and otherwise ignored.
type EventSink func(events.Event) error

type emitterItem struct {
	event events.Event
	// closeSubscribers marks the point in the stream after which subscriber
	// channels are closed.
	closeSubscribers bool
}

// resultEmitter delivers events to sinks and subscribers on its own
// goroutine, so emitting never blocks the runtime.
type resultEmitter struct {
	sinks        []EventSink
	subscribers  map[uint64]chan events.Event
	subscriberID uint64

	pending []emitterItem
	closed  bool

	wake      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	mu        sync.Mutex
}

func newResultEmitter(sinks ...EventSink) *resultEmitter {
	return &resultEmitter{
		sinks:       sinks,
		subscribers: map[uint64]chan events.Event{},
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

func (e *resultEmitter) addSink(sink EventSink) {
	if sink == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, sink)
}

func (e *resultEmitter) emit(event events.Event) {
	if event == nil {
		return
	}
	e.push(emitterItem{event: event})
}

// closeSubscribers closes every subscriber channel once the events emitted
// so far have been delivered.
func (e *resultEmitter) closeSubscribers() {
	e.push(emitterItem{closeSubscribers: true})
}

func (e *resultEmitter) push(item emitterItem) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.pending = append(e.pending, item)
	e.mu.Unlock()

	e.startOnce.Do(func() { go e.run() })
	e.signal()
}

// subscribe returns a channel receiving every later event until the service
// stops. Events are dropped for a subscriber whose buffer is full.
func (e *resultEmitter) subscribe(buffer int) (<-chan events.Event, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan events.Event, buffer)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	e.subscriberID++
	id := e.subscriberID
	e.subscribers[id] = ch
	e.mu.Unlock()

	return ch, func() { e.unsubscribe(id) }
}

func (e *resultEmitter) unsubscribe(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.subscribers[id]; ok {
		delete(e.subscribers, id)
		close(ch)
	}
}

// close delivers what is pending, closes subscribers and stops the worker.
func (e *resultEmitter) close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	started := true
	e.startOnce.Do(func() {
		started = false
		close(e.done)
	})
	if !started {
		e.dropSubscribers()
		return
	}
	e.signal()
	<-e.done
}

func (e *resultEmitter) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *resultEmitter) take() ([]emitterItem, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	items := e.pending
	e.pending = nil
	return items, e.closed
}

func (e *resultEmitter) run() {
	defer close(e.done)
	for {
		items, closed := e.take()
		if len(items) == 0 {
			if closed {
				e.dropSubscribers()
				return
			}
			<-e.wake
			continue
		}

		for _, item := range items {
			if item.closeSubscribers {
				e.dropSubscribers()
				continue
			}
			e.deliver(item.event)
		}
	}
}

func (e *resultEmitter) deliver(event events.Event) {
	e.mu.Lock()
	sinks := e.sinks
	e.mu.Unlock()

	for _, sink := range sinks {
		if err := callSink(sink, event); err != nil {
			logger.Warn("event sink failed", "kind", string(event.Kind()), "error", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range e.subscribers {
		select {
		case ch <- event:
		default:
			logger.Warn("dropping event for slow subscriber", "kind", string(event.Kind()), "subscriber", id)
		}
	}
}

func (e *resultEmitter) dropSubscribers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range e.subscribers {
		delete(e.subscribers, id)
		close(ch)
	}
}

func callSink(sink EventSink, event events.Event) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("event sink panicked: %v", recovered)
		}
	}()
	return sink(event)
}

type eventCallbacks struct {
	onEvent              func(events.Event)
	onConfirmationResult func(result events.ConfirmationResult, err error)
	onRecognizedText     func(text string, partial bool)
	onTurnStateChanged   func(from, to TurnState)
}

func (c eventCallbacks) isEmpty() bool {
	return c.onEvent == nil && c.onConfirmationResult == nil && c.onRecognizedText == nil && c.onTurnStateChanged == nil
}

func newCallbackEventSink(callbacks eventCallbacks) EventSink {
	return func(event events.Event) error {
		if callbacks.onEvent != nil {
			callbacks.onEvent(event)
		}

		switch typedEvent := event.(type) {
		case events.ConfirmationResolved:
			if callbacks.onConfirmationResult != nil {
				callbacks.onConfirmationResult(typedEvent.Result, typedEvent.Err)
			}
		case events.RecognizedText:
			if callbacks.onRecognizedText != nil {
				callbacks.onRecognizedText(typedEvent.Text, typedEvent.Partial)
			}
		case events.TurnStateChanged:
			if callbacks.onTurnStateChanged != nil {
				from, err := ParseTurnState(typedEvent.From)
				if err != nil {
					return err
				}
				to, err := ParseTurnState(typedEvent.To)
				if err != nil {
					return err
				}
				callbacks.onTurnStateChanged(from, to)
			}
		}
		return nil
	}
}
