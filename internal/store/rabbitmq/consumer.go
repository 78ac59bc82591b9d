package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// HandlerFunc processes one message body. A returned error dead-letters the message.
type HandlerFunc func(ctx context.Context, body []byte) error

const defaultHandlerTimeout = 30 * time.Second

// Consumer drains a queue with a fixed pool of workers; prefetch equals the pool size.
type Consumer struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	queue       string
	concurrency int
	// bounds one handler call; handlers do not see Run's cancellation
	handlerTimeout time.Duration
	log            *zap.Logger
}

func NewConsumer(url, queue string, concurrency int, log *zap.Logger) (*Consumer, error) {
	if concurrency <= 0 {
		concurrency = 2
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	// same topology as the publisher so either side may start first
	if err := declare(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Qos(concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Consumer{
		conn:           conn,
		ch:             ch,
		queue:          queue,
		concurrency:    concurrency,
		handlerTimeout: defaultHandlerTimeout,
		log:            log,
	}, nil
}

func (c *Consumer) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}

// Run consumes until ctx is done or the broker closes the delivery channel.
// Deliveries already handed to workers are finished before Run returns.
func (c *Consumer) Run(ctx context.Context, handle HandlerFunc) error {
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	return c.serve(ctx, msgs, handle)
}

func (c *Consumer) serve(ctx context.Context, msgs <-chan amqp.Delivery, handle HandlerFunc) error {
	jobs := make(chan amqp.Delivery, c.concurrency*2)
	// shutdown must not turn buffered deliveries into dead letters
	workCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				c.process(workCtx, workerID, d, handle)
			}
		}(i)
	}

	defer func() {
		close(jobs)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("rabbitmq: delivery channel closed")
			}
			jobs <- d
		}
	}
}

func (c *Consumer) process(ctx context.Context, workerID int, d amqp.Delivery, handle HandlerFunc) {
	hctx, cancel := context.WithTimeout(ctx, c.handlerTimeout)
	defer cancel()

	start := time.Now()
	if err := handle(hctx, d.Body); err != nil {
		c.log.Warn("event rejected",
			zap.Int("worker", workerID),
			zap.String("message_id", d.MessageId),
			zap.String("type", d.Type),
			zap.Duration("cost", time.Since(start)),
			zap.Error(err),
		)
		_ = d.Nack(false, false)
		return
	}
	if err := d.Ack(false); err != nil {
		c.log.Warn("ack failed", zap.Int("worker", workerID), zap.String("message_id", d.MessageId), zap.Error(err))
	}
}
