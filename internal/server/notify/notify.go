// Package notify announces accepted submissions on a Kafka topic so that
// downstream consumers (CRM sync, staff e-mail) can pick them up.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dmitrijs2005/civilforms/internal/server/models"
)

// SubmissionEvent is the message value written for every accepted
// submission. Field values are not included.
type SubmissionEvent struct {
	Type        string    `json:"type"`
	ID          string    `json:"id"`
	FormType    string    `json:"form_type"`
	Company     string    `json:"company"`
	Attachments int       `json:"attachments"`
	CreatedAt   time.Time `json:"created_at"`
}

const eventSubmissionCreated = "submission.created"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per submission, keyed by record id.
type KafkaPublisher struct {
	w messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, s models.Submission) error {
	value, err := json.Marshal(SubmissionEvent{
		Type:        eventSubmissionCreated,
		ID:          s.ID,
		FormType:    s.FormType,
		Company:     s.Company,
		Attachments: len(s.Attachments),
		CreatedAt:   s.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.w.WriteMessages(ctx, kafka.Message{Key: []byte(s.ID), Value: value}); err != nil {
		return fmt.Errorf("publish %s: %w", s.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

// Nop drops every submission. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, models.Submission) error { return nil }
func (Nop) Close() error                                     { return nil }
