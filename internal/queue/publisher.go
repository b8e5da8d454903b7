package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrBrokerUnavailable is returned without dialling while another publish
// is connecting or a recent dial failed.
var ErrBrokerUnavailable = errors.New("rabbitmq unavailable")

const (
	defaultDialTimeout = 5 * time.Second
	redialBackoff      = 5 * time.Second
)

// Publisher sends events to RabbitMQ.  The connection is opened lazily and
// re-dialled after any failure, so a broker outage only costs the events
// published while it is down.  Dialling happens outside the lock and is
// bounded by the publish context; at most one dial is in flight.
// Publisher is safe for concurrent use.
type Publisher struct {
	url string
	log *zap.Logger
	now func() time.Time

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	dialing bool
	retryAt time.Time
}

// NewPublisher returns a publisher for the broker at url.  No connection is
// made until the first Publish.
func NewPublisher(url string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, log: log.With(zap.String("component", "publisher")), now: time.Now}
}

// PublishIssued publishes ev to the certificate.issued queue as a persistent
// JSON message.
func (p *Publisher) PublishIssued(ctx context.Context, ev CertificateIssuedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.publish(ctx, IssuedQueue, body)
}

func (p *Publisher) publish(ctx context.Context, queue string, body []byte) error {
	ch, err := p.channel(ctx, queue)
	if err != nil {
		p.log.Warn("rabbitmq unavailable", zap.String("queue", queue), zap.Error(err))
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = ch.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key = queue name
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	if err != nil {
		p.log.Warn("rabbitmq publish failed", zap.String("queue", queue), zap.Error(err))
		if p.ch == ch {
			p.reset()
		}
		return err
	}
	return nil
}

// channel returns an open channel with queue declared.  When none is open it
// dials unless another caller is already dialling or the last dial failed
// less than redialBackoff ago.
func (p *Publisher) channel(ctx context.Context, queue string) (*amqp.Channel, error) {
	p.mu.Lock()
	if p.ch != nil && !p.ch.IsClosed() {
		ch := p.ch
		p.mu.Unlock()
		return ch, nil
	}
	if p.dialing || p.now().Before(p.retryAt) {
		p.mu.Unlock()
		return nil, ErrBrokerUnavailable
	}
	p.reset()
	p.dialing = true
	p.mu.Unlock()

	conn, ch, err := p.dial(ctx, queue)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialing = false
	if err != nil {
		p.retryAt = p.now().Add(redialBackoff)
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// dial connects with TCP and handshake bounded by ctx's deadline.
func (p *Publisher) dial(ctx context.Context, queue string) (*amqp.Connection, *amqp.Channel, error) {
	timeout := defaultDialTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if timeout <= 0 {
		return nil, nil, fmt.Errorf("dial: %w", context.DeadlineExceeded)
	}
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("queue declare: %w", err)
	}
	return conn, ch, nil
}

// reset closes the current connection.  Callers hold p.mu.
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

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
