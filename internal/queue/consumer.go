package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// StartChangeFeedConsumer connects to RabbitMQ, binds an exclusive queue to
// the change-feed exchange for all rooms, and delivers each RowEvent to the
// handler.  The function runs a reconnect loop with exponential backoff and
// keeps running indefinitely; processing errors are logged and the
// offending message rejected so the server continues operating.  Handlers
// must be fast and must not block: they fan the event out to in-process
// room hubs.
func StartChangeFeedConsumer(url string, handler func(RowEvent)) {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("changefeed: failed to dial broker: %v; retrying in %s", err, backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn, handler); err != nil {
			log.Printf("changefeed: consume loop ended: %v; reconnecting", err)
			_ = conn.Close()
			time.Sleep(2 * time.Second)
			continue
		}
	}
}

func consumeLoop(conn *amqp.Connection, handler func(RowEvent)) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("changefeed: set QoS failed: %v", err)
	}

	if err := ch.ExchangeDeclare(changeFeedExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	// Exclusive auto-deleted queue per server instance; every instance sees
	// every room's feed and forwards only to its own subscribers.
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, "room.*", changeFeedExchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		var ev RowEvent
		if err := json.Unmarshal(d.Body, &ev); err != nil {
			log.Printf("changefeed: unmarshal failed: %v", err)
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		handler(ev)
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}
