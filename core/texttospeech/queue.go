package texttospeech

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Renderer synthesizes and plays one utterance, returning once it has been
// heard or ctx is cancelled.
type Renderer func(ctx context.Context, text string, options SpeakOptions) error

// UtteranceQueue plays utterances one at a time through a Renderer and
// reports exactly one of DoneCallback or ErrorCallback for every accepted
// utterance.
type UtteranceQueue struct {
	render Renderer

	pending []queuedUtterance
	current *queuedUtterance
	closed  bool

	wake chan struct{}
	done chan struct{}
	mu   sync.Mutex
}

type queuedUtterance struct {
	text    string
	options SpeakOptions
	cancel  context.CancelFunc
}

func NewUtteranceQueue(render Renderer) *UtteranceQueue {
	queue := &UtteranceQueue{
		render: render,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go queue.run()
	return queue
}

// Enqueue accepts an utterance. With QueueFlush everything queued or playing
// is dropped first.
func (q *UtteranceQueue) Enqueue(text string, options SpeakOptions) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}

	var dropped []queuedUtterance
	if options.Mode == QueueFlush {
		dropped = q.dropLocked()
	}
	q.pending = append(q.pending, queuedUtterance{text: text, options: options})
	q.mu.Unlock()

	reportFlushed(dropped)
	q.signal()
	return nil
}

// Flush drops every queued utterance and interrupts the playing one.
func (q *UtteranceQueue) Flush() {
	q.mu.Lock()
	dropped := q.dropLocked()
	q.mu.Unlock()
	reportFlushed(dropped)
}

func (q *UtteranceQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	dropped := q.dropLocked()
	q.mu.Unlock()

	reportFlushed(dropped)
	q.signal()
	<-q.done
}

// dropLocked cancels the current utterance and returns the pending ones. The
// current utterance reports its own error once its renderer returns.
func (q *UtteranceQueue) dropLocked() []queuedUtterance {
	if q.current != nil && q.current.cancel != nil {
		q.current.cancel()
	}
	dropped := q.pending
	q.pending = nil
	return dropped
}

func (q *UtteranceQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *UtteranceQueue) next() (queuedUtterance, context.Context, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.pending) == 0 {
		return queuedUtterance{}, nil, false
	}

	utterance := q.pending[0]
	q.pending = q.pending[1:]
	ctx, cancel := context.WithCancel(context.Background())
	utterance.cancel = cancel
	q.current = &utterance
	return utterance, ctx, true
}

func (q *UtteranceQueue) finish() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current != nil && q.current.cancel != nil {
		q.current.cancel()
	}
	q.current = nil
}

func (q *UtteranceQueue) run() {
	defer close(q.done)
	for {
		utterance, ctx, ok := q.next()
		if !ok {
			q.mu.Lock()
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}

		q.play(ctx, utterance)
		q.finish()
	}
}

func (q *UtteranceQueue) play(ctx context.Context, utterance queuedUtterance) {
	id := utterance.options.UtteranceID
	defer func() {
		if recovered := recover(); recovered != nil {
			utterance.options.ErrorCallback(id, fmt.Errorf("renderer panicked: %v", recovered))
		}
	}()

	utterance.options.StartedCallback(id)
	err := q.render(ctx, utterance.text, utterance.options)
	switch {
	case ctx.Err() != nil:
		utterance.options.ErrorCallback(id, ErrFlushed)
	case err != nil:
		utterance.options.ErrorCallback(id, err)
	default:
		utterance.options.DoneCallback(id)
	}
}

func reportFlushed(dropped []queuedUtterance) {
	for _, utterance := range dropped {
		utterance.options.ErrorCallback(utterance.options.UtteranceID, ErrFlushed)
	}
}

// IsFlushed reports whether err marks a flushed utterance.
func IsFlushed(err error) bool {
	return errors.Is(err, ErrFlushed)
}
