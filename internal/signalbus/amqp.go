package signalbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/logging"
)

// AMQPBus is the production Bus: a durable queue bound to the
// `signals.normalized` topic, consumed with manual acknowledgement so a
// crash mid-batch redelivers instead of losing signals.
type AMQPBus struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	queue      string
	exchange   string
	routingKey string
	deliver    <-chan amqp.Delivery
	logger     logging.Logger
}

// Config names the broker connection and topology.
type Config struct {
	URL          string
	Queue        string
	Exchange     string
	RoutingKey   string
	PrefetchSize int
}

// Dial connects to the broker, declares the durable queue, binds it to
// exchange/routing key, and opens a manual-ack consumer. Modeled on the
// teacher pack's NewRabbitMQServiceWithDialer: connect -> channel ->
// declare -> (here) bind + consume, cleaning up on any failed step.
func Dial(cfg Config, logger logging.Logger) (*AMQPBus, error) {
	if logger == nil {
		logger = logging.NoOp{}
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, domain.Classify("signalbus.dial", domain.KindDependency, fmt.Errorf("connect: %w", err))
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, domain.Classify("signalbus.dial", domain.KindDependency, fmt.Errorf("channel: %w", err))
	}
	if cfg.PrefetchSize > 0 {
		if err := ch.Qos(cfg.PrefetchSize, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return nil, domain.Classify("signalbus.dial", domain.KindDependency, fmt.Errorf("qos: %w", err))
		}
	}
	q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, domain.Classify("signalbus.dial", domain.KindDependency, fmt.Errorf("queue declare: %w", err))
	}
	if cfg.Exchange != "" {
		if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, domain.Classify("signalbus.dial", domain.KindDependency, fmt.Errorf("queue bind: %w", err))
		}
	}
	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, domain.Classify("signalbus.dial", domain.KindDependency, fmt.Errorf("consume: %w", err))
	}

	return &AMQPBus{
		conn: conn, channel: ch, queue: q.Name,
		exchange: cfg.Exchange, routingKey: cfg.RoutingKey,
		deliver: deliveries, logger: logger,
	}, nil
}

// Publish marshals signal to JSON and publishes it as a persistent message,
// to the configured exchange/routing key if one is bound, directly to the
// queue otherwise. Used by httpapi's submit_signal operation (spec.md §6)
// so an ingested signal takes the same path through the broker as one an
// external detector places on the topic.
func (b *AMQPBus) Publish(ctx context.Context, signal domain.Signal) error {
	if signal.ReceivedAt.IsZero() {
		signal.ReceivedAt = time.Now()
	}
	body, err := json.Marshal(signal)
	if err != nil {
		return domain.Classify("signalbus.publish", domain.KindInput, err)
	}

	exchange, routingKey := b.exchange, b.routingKey
	if exchange == "" {
		routingKey = b.queue
	}
	err = b.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return domain.Classify("signalbus.publish", domain.KindDependency, err)
	}
	return nil
}

// Consume drains up to maxBatch deliveries, waiting for the first one and
// then draining whatever else is immediately available — it never blocks
// past the first message to fill the batch (spec.md §4.8 step 1, "drain a
// bounded batch").
func (b *AMQPBus) Consume(ctx context.Context, maxBatch int) ([]Delivery, error) {
	if maxBatch <= 0 {
		maxBatch = 1
	}

	var first amqp.Delivery
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-b.deliver:
		if !ok {
			return nil, domain.Classify("signalbus.consume", domain.KindDependency, fmt.Errorf("delivery channel closed"))
		}
		first = d
	}

	raw := []amqp.Delivery{first}
drain:
	for len(raw) < maxBatch {
		select {
		case d, ok := <-b.deliver:
			if !ok {
				break drain
			}
			raw = append(raw, d)
		case <-time.After(10 * time.Millisecond):
			break drain
		}
	}

	out := make([]Delivery, 0, len(raw))
	for _, d := range raw {
		d := d
		signal, err := decodeSignal(d.Body)
		if err != nil {
			b.logger.Warn("dropping malformed signal message", map[string]interface{}{"error": err.Error()})
			_ = d.Nack(false, false)
			continue
		}
		out = append(out, Delivery{
			Signal: signal,
			ack:    func() error { return d.Ack(false) },
			nack:   func(requeue bool) error { return d.Nack(false, requeue) },
		})
	}
	return out, nil
}

// Close tears down the channel and connection.
func (b *AMQPBus) Close() error {
	chErr := b.channel.Close()
	connErr := b.conn.Close()
	if chErr != nil {
		return chErr
	}
	return connErr
}
