// Package feed publishes executions to Kafka for downstream consumers
// (surveillance, settlement, market data vendors).
package feed

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"exchange/internal/orderbook"
)

// Publisher writes deal events to one Kafka topic, keyed by instrument so
// per-instrument ordering survives partitioning.
type Publisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewPublisher(brokers []string, topic string, log *zap.Logger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		log: log.Named("feed"),
	}
}

type dealEvent struct {
	InstrumentID uint32          `json:"instrument_id"`
	Deal         *orderbook.Deal `json:"deal"`
}

// PublishDeal sends one execution. Errors are reported to the caller and
// never block the matching path beyond ctx.
func (p *Publisher) PublishDeal(ctx context.Context, instrumentID uint32, d *orderbook.Deal) error {
	value, err := json.Marshal(dealEvent{InstrumentID: instrumentID, Deal: d})
	if err != nil {
		return err
	}
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, instrumentID)
	return p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

func (p *Publisher) Close() error {
	if err := p.writer.Close(); err != nil {
		p.log.Error("close kafka writer", zap.Error(err))
		return err
	}
	return nil
}
