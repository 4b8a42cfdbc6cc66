package mqtt

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/AaronLay10/ARTutor/internal/events"
	"github.com/AaronLay10/ARTutor/internal/orchestrator"
	"github.com/AaronLay10/ARTutor/internal/presentation"
)

// StatusMessage is the retained payload on the status topic.
type StatusMessage struct {
	Status orchestrator.Status `json:"status"`
	View   presentation.View   `json:"view"`
}

// NotifyMessage is published once per notification.
type NotifyMessage struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
	SessionID   string `json:"session_id,omitempty"`
}

// maxPendingNotes bounds the notifications waiting for the broker.
const maxPendingNotes = 256

// StatusPublisher mirrors session state and notifications to the broker.
// It is an orchestrator.Observer: callbacks only queue work, Run publishes.
type StatusPublisher struct {
	pub    Publisher
	topics Topics
	status func() orchestrator.Status

	mu      sync.Mutex
	dirty   bool
	latest  orchestrator.Status
	pending []orchestrator.Notification
	wake    chan struct{}
}

var _ orchestrator.Observer = (*StatusPublisher)(nil)

// NewStatusPublisher returns a publisher reading the initial status from status.
func NewStatusPublisher(pub Publisher, topics Topics, status func() orchestrator.Status) *StatusPublisher {
	return &StatusPublisher{
		pub:    pub,
		topics: topics,
		status: status,
		wake:   make(chan struct{}, 1),
	}
}

// StateChanged marks the retained status for republishing. Bursts of
// changes collapse into one publish of the latest status.
func (p *StatusPublisher) StateChanged(st orchestrator.Status) {
	p.mu.Lock()
	p.dirty = true
	p.latest = st
	p.mu.Unlock()
	p.signal()
}

// Notify queues n. When the queue is full, marker notifications are
// dropped and a fallback notification displaces the oldest entry.
func (p *StatusPublisher) Notify(n orchestrator.Notification) {
	p.mu.Lock()
	if len(p.pending) >= maxPendingNotes {
		if n.Kind != orchestrator.NotifyFallback {
			p.mu.Unlock()
			return
		}
		p.pending = p.pending[1:]
	}
	p.pending = append(p.pending, n)
	p.mu.Unlock()
	p.signal()
}

// Run publishes queued work until ctx is done. The current status is
// published once on entry.
func (p *StatusPublisher) Run(ctx context.Context) {
	st := p.status()
	p.publishStatus(st)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
			p.Flush()
		}
	}
}

// Flush publishes the pending status and notifications.
func (p *StatusPublisher) Flush() {
	p.mu.Lock()
	dirty, st := p.dirty, p.latest
	notes := p.pending
	p.dirty = false
	p.pending = nil
	p.mu.Unlock()

	if dirty {
		p.publishStatus(st)
	}
	for _, n := range notes {
		p.publish(p.topics.Notify, false, NotifyMessage{
			Kind:        n.Kind,
			Title:       n.Title,
			Description: n.Description,
			SessionID:   n.SessionID,
		})
	}
}

func (p *StatusPublisher) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *StatusPublisher) publishStatus(st orchestrator.Status) {
	p.publish(p.topics.Status, true, StatusMessage{Status: st, View: presentation.Render(st)})
}

func (p *StatusPublisher) publish(topic string, retained bool, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := p.pub.Publish(topic, retained, payload); err != nil {
		events.Emit("error", "transport.error", "status publish failed", map[string]interface{}{
			"topic": topic,
			"error": err.Error(),
		})
	}
}
