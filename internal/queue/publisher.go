package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const changeFeedExchange = "room.changefeed"

// ErrChannelUnavailable is returned when the broker cannot be reached.  The
// caller has already committed the row; losing a feed message only delays
// visibility because clients reconcile against the durable store.
var ErrChannelUnavailable = errors.New("change-feed channel unavailable")

// Publisher emits RowEvents to the change-feed topic exchange with routing
// key room.<id>.  It keeps one connection and channel open, redialing on
// the next publish after a failure.  The publisher never panics; any error
// is logged and returned so the caller can choose to ignore it.
type Publisher struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher builds a Publisher for the given broker URL.  No connection
// is opened until the first publish.
func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

// ensure opens the connection and channel and declares the topic exchange.
// Caller must hold p.mu.
func (p *Publisher) ensure() error {
	if p.ch != nil && !p.conn.IsClosed() {
		return nil
	}
	p.reset()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("channel open: %w", err)
	}
	// Durable topic exchange so feed messages survive broker restarts.
	if err := ch.ExchangeDeclare(changeFeedExchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("exchange declare: %w", err)
	}
	p.conn = conn
	p.ch = ch
	return nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// RoutingKey returns the change-feed routing key for a room.
func RoutingKey(roomID uint64) string { return fmt.Sprintf("room.%d", roomID) }

// Publish sends one RowEvent.  Messages are marked persistent.  On failure
// the connection is dropped so the next publish redials, and the error is
// wrapped in ErrChannelUnavailable for the degraded-mode fallback.
func (p *Publisher) Publish(ctx context.Context, ev RowEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("changefeed: marshal event failed: %v", err)
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensure(); err != nil {
		log.Printf("changefeed: %v", err)
		return fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, changeFeedExchange, RoutingKey(ev.RoomID), false, false, pub); err != nil {
		log.Printf("changefeed: publish failed: %v", err)
		p.reset()
		return fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	return nil
}

// Close releases the broker connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}
