package event

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Topics for domain events emitted by the core. Delivery is fire-and-forget:
// a publish failure never rolls back the mutation that produced the event.
const (
	TopicResourceTransferred = "resource.transferred"
	TopicResourceBought      = "resource.bought"
	TopicResourceSold        = "resource.sold"
	TopicOfferCreated        = "offer.created"
	TopicOfferAccepted       = "offer.accepted"
	TopicOfferCancelled      = "offer.cancelled"
	TopicMissionCompleted    = "mission.completed"
	TopicAchieveCompleted    = "achievement.completed"
)

// Envelope wraps every published event.
type Envelope struct {
	ID        uuid.UUID   `json:"id"`
	Topic     string      `json:"topic"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Sink receives domain events. Implementations must not block operation
// completion on delivery.
type Sink interface {
	Publish(ctx context.Context, topic string, payload interface{})
}

// Nop discards all events.
type Nop struct{}

func (Nop) Publish(context.Context, string, interface{}) {}

// Capture records events in memory for tests.
type Capture struct {
	mu     sync.Mutex
	events []Envelope
}

func NewCapture() *Capture {
	return &Capture{}
}

func (c *Capture) Publish(_ context.Context, topic string, payload interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, Envelope{
		ID:        uuid.New(),
		Topic:     topic,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

// Events returns a copy of everything published so far.
func (c *Capture) Events() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Envelope(nil), c.events...)
}

// Topics returns the topics published so far, in order.
func (c *Capture) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	topics := make([]string, len(c.events))
	for i, e := range c.events {
		topics[i] = e.Topic
	}
	return topics
}
