// Package commandstest provides an in-memory commands.Orchestrator for front
// end tests.
package commandstest

import (
	"context"
	"sync"

	orchestration "github.com/koscakluka/ema-voiceloop/core"
	"github.com/koscakluka/ema-voiceloop/core/events"
)

// SpeakCall records one Speak call.
type SpeakCall struct {
	Text  string
	Queue bool
}

// Orchestrator records calls and answers with canned acks. Its zero value
// is ready to use.
type Orchestrator struct {
	Started     bool
	Confirmed   []orchestration.ConfirmationRequest
	Cancelled   []bool
	Spoken      []SpeakCall
	Pitch       float64
	Rate        float64
	Volume      int
	Grants      int
	State       orchestration.TurnState
	ConfirmErr  error
	Current     *orchestration.ConfirmationSession
	subscribers []chan events.Event

	mu sync.Mutex
}

func (o *Orchestrator) StartService(context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Started = true
	o.State = orchestration.TurnStateListening
	return "Started Speech listener service.", nil
}

func (o *Orchestrator) StopService() (string, error) {
	o.mu.Lock()
	o.Started = false
	o.State = orchestration.TurnStateIdle
	subscribers := o.subscribers
	o.subscribers = nil
	o.mu.Unlock()

	for _, ch := range subscribers {
		close(ch)
	}
	return "Stopped Speech listener service.", nil
}

func (o *Orchestrator) ConfirmIntent(request orchestration.ConfirmationRequest) (string, error) {
	if err := request.Validate(); err != nil {
		return "", err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ConfirmErr != nil {
		return "", o.ConfirmErr
	}
	o.Confirmed = append(o.Confirmed, request)
	return "Requested confirmation for: " + request.ConfirmationText, nil
}

func (o *Orchestrator) CancelConfirmation(immediate bool) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Cancelled = append(o.Cancelled, immediate)
	return "Confirmation cancelled.", nil
}

func (o *Orchestrator) ResumeListening() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.State = orchestration.TurnStateListening
	return "Speech listener resumed.", nil
}

func (o *Orchestrator) PauseListening() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.State = orchestration.TurnStateDucked
	return "Speech listener paused.", nil
}

func (o *Orchestrator) Speak(text string, queue bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Spoken = append(o.Spoken, SpeakCall{Text: text, Queue: queue})
}

func (o *Orchestrator) SetSpeaker(pitch, rate float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Pitch, o.Rate = pitch, rate
}

func (o *Orchestrator) LowerVolume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Volume--
	return nil
}

func (o *Orchestrator) RaiseVolume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Volume++
	return nil
}

func (o *Orchestrator) GrantPermission() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Grants++
}

func (o *Orchestrator) TurnState() orchestration.TurnState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.State
}

func (o *Orchestrator) Session() (orchestration.ConfirmationSession, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Current == nil {
		return orchestration.ConfirmationSession{}, false
	}
	return *o.Current, true
}

func (o *Orchestrator) Subscribe(buffer int) (<-chan events.Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan events.Event, buffer)

	o.mu.Lock()
	o.subscribers = append(o.subscribers, ch)
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			for i, subscriber := range o.subscribers {
				if subscriber == ch {
					o.subscribers = append(o.subscribers[:i], o.subscribers[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
}

// Publish sends event to every subscriber.
func (o *Orchestrator) Publish(event events.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ch := range o.subscribers {
		ch <- event
	}
}

// SubscriberCount reports how many streams are open.
func (o *Orchestrator) SubscriberCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subscribers)
}

// Calls is a copy of what an Orchestrator recorded.
type Calls struct {
	Started   bool
	Confirmed []orchestration.ConfirmationRequest
	Cancelled []bool
	Spoken    []SpeakCall
	Pitch     float64
	Rate      float64
	Volume    int
	Grants    int
}

func (o *Orchestrator) Calls() Calls {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Calls{
		Started:   o.Started,
		Confirmed: append([]orchestration.ConfirmationRequest(nil), o.Confirmed...),
		Cancelled: append([]bool(nil), o.Cancelled...),
		Spoken:    append([]SpeakCall(nil), o.Spoken...),
		Pitch:     o.Pitch,
		Rate:      o.Rate,
		Volume:    o.Volume,
		Grants:    o.Grants,
	}
}
