// Package audit emits credential lifecycle events for downstream consumers.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"attestia/internal/platform/kafka"
)

// Action identifies a lifecycle event type.
type Action string

const (
	ActionIssued    Action = "credential.issued"
	ActionRejected  Action = "credential.rejected"
	ActionRevoked   Action = "credential.revoked"
	ActionRefreshed Action = "credential.refreshed"
	ActionBatchDone Action = "batch.completed"
)

// Event is one lifecycle event.
type Event struct {
	Action       Action         `json:"action"`
	CredentialID string         `json:"credentialId,omitempty"`
	TemplateID   string         `json:"templateId,omitempty"`
	SubjectDID   string         `json:"subjectDid,omitempty"`
	IssuerDID    string         `json:"issuerDid,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	Detail       map[string]any `json:"detail,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Publisher emits lifecycle events. Emit must never fail the issuance path;
// implementations log and swallow transport errors.
type Publisher interface {
	Emit(ctx context.Context, event Event)
}

const defaultTopic = "attestia.credential.lifecycle"

// KafkaPublisher publishes events to a Kafka topic, keyed by credential id
// so per-credential ordering is preserved.
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
	log      *slog.Logger
}

func NewKafkaPublisher(producer *kafka.Producer, log *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: defaultTopic, log: log}
}

func (p *KafkaPublisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	value, err := json.Marshal(event)
	if err != nil {
		p.log.Error("failed to encode audit event", "action", event.Action, "error", err)
		return
	}
	err = p.producer.Produce(ctx, &kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.CredentialID),
		Value: value,
		Headers: map[string]string{
			"action": string(event.Action),
		},
	})
	if err != nil {
		p.log.Error("failed to publish audit event",
			"action", event.Action,
			"credential_id", event.CredentialID,
			"error", err,
		)
	}
}

// NopPublisher discards events, for tests and Kafka-less deployments.
type NopPublisher struct{}

func (NopPublisher) Emit(context.Context, Event) {}
