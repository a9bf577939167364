// Package events publishes admin grant changes for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/PaulFidika/prokit/entitlements"
	"github.com/sirupsen/logrus"
)

// TopicGrants carries every GrantEvent, keyed by user id.
const TopicGrants = "entitlement.grants"

func encode(ev entitlements.GrantEvent) ([]byte, error) {
	ev.At = ev.At.UTC()
	return json.Marshal(ev)
}

// KafkaPublisher sends grant events through a sarama SyncProducer.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      logrus.FieldLogger
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string, log logrus.FieldLogger) *KafkaPublisher {
	if topic == "" {
		topic = TopicGrants
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &KafkaPublisher{producer: producer, topic: topic, log: log}
}

// NewSyncProducer dials brokers with acks from all in-sync replicas.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.ClientID = "prokit"
	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return p, nil
}

func (p *KafkaPublisher) PublishGrantEvent(ctx context.Context, ev entitlements.GrantEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := encode(ev)
	if err != nil {
		return fmt.Errorf("marshal grant event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.UserID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(ev.Type)},
		},
		Timestamp: ev.At,
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish grant event: %w", err)
	}
	p.log.WithFields(logrus.Fields{
		"topic":     p.topic,
		"type":      ev.Type,
		"partition": partition,
		"offset":    offset,
	}).Debug("grant event published")
	return nil
}

func (p *KafkaPublisher) Close() error { return p.producer.Close() }

// LogPublisher writes grant events to the log. Used when no broker is configured.
type LogPublisher struct {
	log logrus.FieldLogger
}

func NewLogPublisher(log logrus.FieldLogger) *LogPublisher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) PublishGrantEvent(_ context.Context, ev entitlements.GrantEvent) error {
	p.log.WithFields(logrus.Fields{
		"type":     ev.Type,
		"user_id":  ev.UserID,
		"grant_id": ev.GrantID,
		"actor":    ev.Actor,
		"count":    ev.Count,
	}).Info("grant event")
	return nil
}
