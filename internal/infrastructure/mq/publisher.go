// Package mq delivers outbox payloads to a broker.
package mq

import (
	"context"
	"fmt"

	"homeledger/internal/config"

	"github.com/sirupsen/logrus"
)

type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Close() error
}

// New picks the publisher named by cfg.MQ.Backend.
func New(cfg *config.Config, log *logrus.Logger) (Publisher, error) {
	switch cfg.MQ.Backend {
	case "kafka":
		return NewKafkaPublisher(cfg.Kafka.Brokers)
	case "amqp":
		return NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	case "none", "":
		return NewLogPublisher(log), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.MQ.Backend)
	}
}

// LogPublisher only records what would have been sent. Used when no broker
// is configured so the outbox still drains.
type LogPublisher struct {
	log *logrus.Logger
}

func NewLogPublisher(log *logrus.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, topic, key string, payload []byte) error {
	p.log.WithFields(logrus.Fields{
		"topic": topic,
		"key":   key,
		"bytes": len(payload),
	}).Debug("publish (no broker)")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
