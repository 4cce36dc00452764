package kafka

import (
	"context"
	"errors"
	"strings"
	"time"

	"packscan/internal/domain"
	"packscan/internal/infrastructure/telemetry"
	"packscan/internal/streaming"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes detected pack purchases, keyed by wallet so that all
// events of one wallet land on the same partition.
type Producer struct {
	writer  messageWriter
	topic   string
	chainID uint64
	tracer  trace.Tracer
}

type ProducerConfig struct {
	Brokers []string
	Topic   string
	ChainID uint64
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 500 * time.Millisecond,
	}
	return newProducer(writer, cfg), nil
}

func newProducer(writer messageWriter, cfg ProducerConfig) *Producer {
	if strings.TrimSpace(cfg.Topic) == "" {
		cfg.Topic = "packscan-purchases"
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = 137
	}
	return &Producer{
		writer:  writer,
		topic:   cfg.Topic,
		chainID: cfg.ChainID,
		tracer:  otel.Tracer("packscan/kafka"),
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) PublishPacks(ctx context.Context, wallet string, items []domain.PackPurchase) error {
	if len(items) == 0 {
		return nil
	}
	ctx, span := p.tracer.Start(ctx, "kafka.publish_packs", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.destination.name", p.topic),
		attribute.String("wallet", wallet),
		attribute.Int("messaging.batch.message_count", len(items)),
	)

	messages := make([]kafka.Message, 0, len(items))
	for _, item := range items {
		payload, err := streaming.Encode(p.toMessage(wallet, item))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		messages = append(messages, kafka.Message{
			Topic:   p.topic,
			Key:     []byte(wallet),
			Value:   payload,
			Headers: telemetry.InjectKafkaHeaders(ctx, nil),
		})
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (p *Producer) toMessage(wallet string, item domain.PackPurchase) streaming.Message {
	msg := streaming.Message{
		Type:          streaming.MessageTypePackPurchase,
		ChainID:       p.chainID,
		Wallet:        wallet,
		TxHash:        item.TxHash,
		BlockNumber:   item.BlockNumber,
		Timestamp:     item.Timestamp,
		Packs:         item.Packs,
		PriceUSDC:     decimalPtr(item.PriceUSDC),
		UnitPriceUSDC: decimalPtr(item.UnitPriceUSDC),
		FeesUSDC:      item.FeesUSDC.Decimal,
		Influence:     item.InfluenceTotal,
		Secondaries:   item.SecondariesCount,
	}
	if item.MainClub != nil {
		msg.MainClub = *item.MainClub
	}
	return msg
}

func decimalPtr(u *domain.USDC) *decimal.Decimal {
	if u == nil {
		return nil
	}
	d := u.Decimal
	return &d
}
