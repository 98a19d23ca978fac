package webhook

import (
	"encoding/json"
	"time"

	"github.com/nsqio/go-nsq"
)

const DeadLetterType = "webhook.delivery.dead"

// DeadLetter is the envelope published when a delivery exhausts its retry
// budget. Downstream ops tooling consumes it off the DLQ topic.
type DeadLetter struct {
	Type       string `json:"type"`    // "webhook.delivery.dead"
	Version    string `json:"version"` // schema version
	At         string `json:"at"`      // RFC3339 time the envelope was emitted
	Reason     string `json:"reason"`  // human/debug text
	DeliveryID string `json:"delivery_id"`
	EndpointID string `json:"endpoint_id"`
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	URL        string `json:"url"`
	Attempt    int    `json:"attempt"`
	HTTPStatus int    `json:"http_status,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

func NewDeadLetter(d *Delivery, ep *Endpoint, evt *Event, reason string) DeadLetter {
	return DeadLetter{
		Type:       DeadLetterType,
		Version:    "v1",
		At:         time.Now().UTC().Format(time.RFC3339Nano),
		Reason:     reason,
		DeliveryID: d.ID,
		EndpointID: ep.ID,
		EventID:    evt.ID,
		EventType:  evt.EventType,
		URL:        d.RequestURL,
		Attempt:    d.AttemptNumber,
		HTTPStatus: d.ResponseStatus,
		LastError:  d.ErrorMessage,
	}
}

// DeadLetterPublisher receives exhausted deliveries. A nil publisher
// disables dead-lettering.
type DeadLetterPublisher interface {
	PublishDeadLetter(dl DeadLetter) error
}

// NSQDeadLetterPublisher publishes DeadLetter envelopes to an NSQ topic.
type NSQDeadLetterPublisher struct {
	producer *nsq.Producer
	topic    string
}

func NewNSQDeadLetterPublisher(producer *nsq.Producer, topic string) *NSQDeadLetterPublisher {
	return &NSQDeadLetterPublisher{producer: producer, topic: topic}
}

func (p *NSQDeadLetterPublisher) PublishDeadLetter(dl DeadLetter) error {
	b, err := json.Marshal(dl)
	if err != nil {
		return err
	}
	return p.producer.Publish(p.topic, b)
}
