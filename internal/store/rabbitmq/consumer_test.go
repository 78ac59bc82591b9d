package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type ackRecorder struct {
	mu      sync.Mutex
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *ackRecorder) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *ackRecorder) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func testConsumer() *Consumer {
	return &Consumer{concurrency: 1, handlerTimeout: time.Second, log: zap.NewNop()}
}

func TestServe_FinishesInFlightDeliveryAfterShutdown(t *testing.T) {
	acks := &ackRecorder{}
	msgs := make(chan amqp.Delivery, 1)
	msgs <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 7, Body: []byte(`{}`)}

	started := make(chan struct{})
	release := make(chan struct{})
	handle := func(ctx context.Context, _ []byte) error {
		close(started)
		<-release
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- testConsumer().serve(ctx, msgs, handle) }()

	<-started
	cancel()
	close(release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not return after shutdown")
	}

	if len(acks.acked) != 1 || acks.acked[0] != 7 || len(acks.nacked) != 0 {
		t.Fatalf("expected delivery acked, got acked=%v nacked=%v", acks.acked, acks.nacked)
	}
}

func TestServe_HandlerErrorDeadLetters(t *testing.T) {
	acks := &ackRecorder{}
	msgs := make(chan amqp.Delivery, 1)
	msgs <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 3}
	close(msgs)

	handle := func(context.Context, []byte) error { return errors.New("bad event") }
	if err := testConsumer().serve(context.Background(), msgs, handle); err == nil {
		t.Fatalf("expected error when the delivery channel closes")
	}

	if len(acks.nacked) != 1 || acks.requeue[0] || len(acks.acked) != 0 {
		t.Fatalf("expected one nack without requeue, got nacked=%v requeue=%v acked=%v", acks.nacked, acks.requeue, acks.acked)
	}
}
