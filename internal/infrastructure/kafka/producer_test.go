package kafka

import (
	"context"
	"errors"
	"testing"

	"packscan/internal/domain"
	"packscan/internal/streaming"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	if _, err := NewProducer(ProducerConfig{}); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

func TestPublishPacksEncodesEachPurchase(t *testing.T) {
	writer := &recordingWriter{}
	producer := newProducer(writer, ProducerConfig{})
	club := "7"
	price := decimal.RequireFromString("100")
	amount := domain.NewUSDC(price)

	err := producer.PublishPacks(context.Background(), "0xabc", []domain.PackPurchase{
		{TxHash: "0x01", BlockNumber: 10, Packs: 2, PriceUSDC: &amount, InfluenceTotal: 80, MainClub: &club},
		{TxHash: "0x02", BlockNumber: 11, Packs: 1},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(writer.messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(writer.messages))
	}
	first := writer.messages[0]
	if first.Topic != "packscan-purchases" || string(first.Key) != "0xabc" {
		t.Fatalf("unexpected topic/key %s/%s", first.Topic, first.Key)
	}
	msg, err := streaming.Decode(first.Value)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.ChainID != 137 || msg.MainClub != "7" || msg.Packs != 2 || !msg.PriceUSDC.Equal(price) {
		t.Fatalf("unexpected message %+v", msg)
	}

	if err := producer.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer to be closed")
	}
}

func TestPublishPacksSkipsEmptyBatch(t *testing.T) {
	writer := &recordingWriter{err: errors.New("should not be called")}
	if err := newProducer(writer, ProducerConfig{}).PublishPacks(context.Background(), "0xabc", nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestPublishPacksReturnsWriterError(t *testing.T) {
	writer := &recordingWriter{err: errors.New("broker down")}
	producer := newProducer(writer, ProducerConfig{Topic: "purchases"})
	err := producer.PublishPacks(context.Background(), "0xabc", []domain.PackPurchase{{TxHash: "0x01", Packs: 1}})
	if err == nil || err.Error() != "broker down" {
		t.Fatalf("expected writer error, got %v", err)
	}
}
