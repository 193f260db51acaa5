// Package notification decouples push-notification delivery from the
// send-acknowledgment path: sends enqueue onto a buffered channel and a
// single worker publishes to the external dispatcher. Failures are
// logged, never surfaced to the sender.
package notification

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/linkhub/chat-service/pkg/auth"
)

// Event is one outbound push-notification request.
type Event struct {
	SenderID    int64     `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	RecipientID int64     `json:"recipient_id"`
	Body        string    `json:"body"`
	SentAt      time.Time `json:"sent_at"`
}

// Publisher delivers events to the external notification dispatcher.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Dispatcher is the channel-fed worker in front of a Publisher.
type Dispatcher struct {
	queue chan Event
	pub   Publisher
	log   *zap.Logger
	now   func() time.Time
}

// NewDispatcher creates a dispatcher with the given queue depth.
func NewDispatcher(pub Publisher, buffer int, log *zap.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		queue: make(chan Event, buffer),
		pub:   pub,
		log:   log.With(zap.String("module", "notification")),
		now:   time.Now,
	}
}

// Enqueue queues a notification without blocking. When the queue is full
// the event is dropped: notification latency or loss must never stall a
// send acknowledgment.
func (d *Dispatcher) Enqueue(sender auth.Identity, recipientID int64, body string) {
	event := Event{
		SenderID:    sender.ID,
		SenderName:  sender.FullName,
		RecipientID: recipientID,
		Body:        body,
		SentAt:      d.now(),
	}
	select {
	case d.queue <- event:
	default:
		d.log.Warn("notification queue full, dropping event",
			zap.Int64("recipient_id", recipientID))
	}
}

// Run consumes the queue until ctx is cancelled, then drains whatever is
// already buffered. Intended to be supervised by an errgroup.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case event := <-d.queue:
			d.publish(event)
		case <-ctx.Done():
			for {
				select {
				case event := <-d.queue:
					d.publish(event)
				default:
					return nil
				}
			}
		}
	}
}

func (d *Dispatcher) publish(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.pub.Publish(ctx, event); err != nil {
		d.log.Error("notification publish failed",
			zap.Int64("recipient_id", event.RecipientID),
			zap.Error(err))
	}
}
