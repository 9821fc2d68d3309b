// Package kafka streams audit entries to a Kafka topic so downstream
// compliance tooling can consume the trail without reading the database.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "vitalis/pkg/platform/audit"
)

// Producer is the subset of *kgo.Client used by the sink.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Sink implements audit.Store by producing one record per entry, keyed by
// entry id so consumers can deduplicate redeliveries.
type Sink struct {
	producer Producer
	topic    string
}

func NewSink(producer Producer, topic string) *Sink {
	return &Sink{producer: producer, topic: topic}
}

type payload struct {
	ID           string         `json:"id"`
	ActorID      string         `json:"actor_id,omitempty"`
	ActorRole    string         `json:"actor_role"`
	Action       string         `json:"action"`
	TargetEntity string         `json:"target_entity"`
	TargetID     string         `json:"target_id,omitempty"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    string         `json:"created_at"`
}

func (s *Sink) Append(ctx context.Context, entry audit.Entry) error {
	p := payload{
		ID:           entry.ID.String(),
		ActorRole:    string(entry.ActorRole),
		Action:       string(entry.Action),
		TargetEntity: entry.TargetEntity,
		TargetID:     entry.TargetID,
		Metadata:     entry.Metadata,
		CreatedAt:    entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if !entry.ActorID.IsNil() {
		p.ActorID = entry.ActorID.String()
	}
	value, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(p.ID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(p.Action)},
		},
		Timestamp: entry.CreatedAt,
	}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit record: %w", err)
	}
	return nil
}
