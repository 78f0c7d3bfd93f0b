package mq

import (
	"context"
	"errors"
	"testing"

	"homeledger/internal/config"
	"homeledger/internal/logger"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestKafkaPublisherSendsKeyedMessage(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "acc-1:2024-03" {
			return errors.New("unexpected key " + string(key))
		}
		if msg.Topic != "ledger.period-refresh" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		return nil
	})

	p := NewKafkaPublisherWithProducer(producer)
	if err := p.Publish(context.Background(), "ledger.period-refresh", "acc-1:2024-03", []byte(`{}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestKafkaPublisherSurfacesBrokerError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisherWithProducer(producer)
	err := p.Publish(context.Background(), "t", "k", nil)
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("err = %v, want ErrOutOfBrokers", err)
	}
	p.Close()
}

func TestNewDefaultsToLogPublisher(t *testing.T) {
	cfg := &config.Config{MQ: config.MQConfig{Backend: "none"}}
	p, err := New(cfg, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*LogPublisher); !ok {
		t.Fatalf("got %T, want *LogPublisher", p)
	}
	if err := p.Publish(context.Background(), "t", "k", []byte("x")); err != nil {
		t.Fatal(err)
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := &config.Config{MQ: config.MQConfig{Backend: "nats"}}
	if _, err := New(cfg, logger.Discard()); err == nil {
		t.Fatal("expected error")
	}
}
