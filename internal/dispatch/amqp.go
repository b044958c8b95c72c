package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPSender publishes plain reading JSON to broker exchange.
// Connection is dialed lazily on first Send and dropped after any failure,
// so the next Send redials. No background reconnect loop.
type AMQPSender struct {
	dest    Destination
	timeout time.Duration
	dial    func(url string, timeout time.Duration) (amqpConn, error)

	mu   sync.Mutex
	conn amqpConn
	ch   amqpChannel
}

type amqpConn interface {
	Channel() (amqpChannel, error)
	Close() error
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

var _ Sender = &AMQPSender{}

func NewAMQPSender(dest Destination, timeout time.Duration) *AMQPSender {
	return &AMQPSender{dest: dest, timeout: timeout, dial: dialAMQP}
}

func (self *AMQPSender) Send(ctx context.Context, body []byte) Outcome {
	self.mu.Lock()
	defer self.mu.Unlock()

	if self.ch == nil {
		if err := self.open(); err != nil {
			return Failed(ReasonTransport, 0, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, self.timeout)
	defer cancel()
	err := self.ch.PublishWithContext(ctx, self.dest.Exchange, self.dest.RoutingKey, false, false, amqp.Publishing{
		ContentType:  ContentTypeJSON,
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		self.closeLocked()
		return Failed(ReasonTransport, 0, errors.Annotatef(err, "amqp publish exchange=%s key=%s", self.dest.Exchange, self.dest.RoutingKey))
	}
	return Delivered(0)
}

func (self *AMQPSender) Close() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.closeLocked()
}

func (self *AMQPSender) open() error {
	conn, err := self.dial(self.dest.BaseURL, self.timeout)
	if err != nil {
		return errors.Annotate(err, "amqp dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return errors.Annotate(err, "amqp channel")
	}
	self.conn, self.ch = conn, ch
	return nil
}

func (self *AMQPSender) closeLocked() error {
	var err error
	if self.ch != nil {
		_ = self.ch.Close()
		self.ch = nil
	}
	if self.conn != nil {
		err = self.conn.Close()
		self.conn = nil
	}
	return err
}

type realConn struct{ *amqp.Connection }

func (c realConn) Channel() (amqpChannel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func dialAMQP(url string, timeout time.Duration) (amqpConn, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Dial: amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, err
	}
	return realConn{conn}, nil
}
