package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/auth-session-service/internal/logging"
)

// Publisher delivers events. Callers treat failures as best effort.
type Publisher interface {
	Publish(ctx context.Context, ev AuthEvent) error
}

// LogPublisher writes events to the logger instead of a broker. It is used
// when AMQP is disabled.
type LogPublisher struct {
	Log logging.Logger
}

func (p LogPublisher) Publish(ctx context.Context, ev AuthEvent) error {
	p.Log.Info(ctx, "auth event", "event_id", ev.ID, "type", string(ev.Type),
		"user_id", ev.UserID, "email", ev.Email, "ip", ev.IP)
	return nil
}

const (
	dialTimeout = 2 * time.Second
	redialPause = 10 * time.Second
)

// ErrBrokerDown is returned without dialling while a recent dial failure is
// still within the redial pause.
var ErrBrokerDown = errors.New("rabbitmq unavailable")

// AMQPPublisher publishes persistent JSON messages to a durable queue on the
// default exchange. The connection is opened lazily and re-dialled after it
// drops. A failed dial is bounded by dialTimeout and suppresses further dials
// for redialPause, so requests do not queue behind an unreachable broker.
type AMQPPublisher struct {
	url   string
	queue string
	log   logging.Logger
	dial  func(url string) (*amqp.Connection, error)
	now   func() time.Time

	mu        sync.Mutex
	conn      *amqp.Connection
	ch        *amqp.Channel
	downUntil time.Time
}

func NewAMQPPublisher(url, queue string, log logging.Logger) *AMQPPublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &AMQPPublisher{url: url, queue: queue, log: log, dial: dialWithTimeout, now: time.Now}
}

func dialWithTimeout(url string) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		if p.now().Before(p.downUntil) {
			return nil, ErrBrokerDown
		}
		conn, err := p.dial(p.url)
		if err != nil {
			p.downUntil = p.now().Add(redialPause)
			return nil, fmt.Errorf("%w: dial: %v", ErrBrokerDown, err)
		}
		p.downUntil = time.Time{}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("channel open: %w", err)
	}
	// durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev AuthEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		p.log.Warn(ctx, "rabbitmq unavailable", "err", err)
		return err
	}
	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         string(ev.Type),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.log.Warn(ctx, "rabbitmq publish failed", "err", err, "type", string(ev.Type))
		_ = ch.Close()
		p.ch = nil
		return err
	}
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}
