// Package kafka publishes audit events to a Kafka topic as JSON records keyed
// by event id.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "eventpass/pkg/platform/audit"
)

// Producer is the subset of *kgo.Client the store needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Store implements audit.Store by producing each event synchronously.
type Store struct {
	producer Producer
	topic    string
}

func New(producer Producer, topic string) *Store {
	return &Store{producer: producer, topic: topic}
}

// Payload is the JSON layout of an audit record.
type Payload struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
	ActorID   string `json:"actor_id,omitempty"`
	Subject   string `json:"subject,omitempty"`
	EventID   string `json:"event_id,omitempty"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Device    string `json:"device,omitempty"`
	IPPrefix  string `json:"ip_prefix,omitempty"`
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()
	payload := Payload{
		ID:        eventID.String(),
		Category:  string(audit.AuditEvent(event.Action).Category()),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:    event.Action,
		Subject:   event.Subject,
		EventID:   event.EventID,
		Decision:  event.Decision,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		Device:    event.Device,
		IPPrefix:  event.IPPrefix,
	}
	if !event.ActorID.IsNil() {
		payload.ActorID = event.ActorID.String()
	}

	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(eventID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "category", Value: []byte(payload.Category)},
			{Key: "action", Value: []byte(event.Action)},
		},
		Timestamp: event.Timestamp,
	}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit record: %w", err)
	}
	return nil
}
