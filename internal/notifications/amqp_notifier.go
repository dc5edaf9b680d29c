package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeKind = "topic"

// session is one connection plus the channel publishes go through.
type session interface {
	publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error
	closed() bool
	close()
}

type dialFunc func(url, exchange string) (session, error)

// AMQPNotifier publishes notifications to a durable topic exchange using the
// notification kind as routing key. A session lost to a broker restart or a
// channel error is dropped, and the next Notify dials a new one.
type AMQPNotifier struct {
	url      string
	exchange string
	dial     dialFunc

	// amqp channels are not safe for concurrent publishes
	mu   sync.Mutex
	sess session
}

func NewAMQPNotifier(url, exchange string) (*AMQPNotifier, error) {
	return newAMQPNotifier(url, exchange, dialAMQP)
}

func newAMQPNotifier(url, exchange string, dial dialFunc) (*AMQPNotifier, error) {
	sess, err := dial(url, exchange)
	if err != nil {
		return nil, err
	}
	return &AMQPNotifier{url: url, exchange: exchange, dial: dial, sess: sess}, nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, in Notification) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	sess, err := n.session()
	if err != nil {
		return err
	}

	err = sess.publish(ctx, n.exchange, string(in.Kind), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    in.JobID,
		Timestamp:    in.OccurredAt,
		Body:         body,
	})
	if err != nil {
		if sess.closed() {
			sess.close()
			n.sess = nil
		}
		return fmt.Errorf("publish notification: %w", err)
	}

	return nil
}

// session returns the live session, redialing if the last one closed.
// Callers hold n.mu.
func (n *AMQPNotifier) session() (session, error) {
	if n.sess != nil && !n.sess.closed() {
		return n.sess, nil
	}
	if n.sess != nil {
		n.sess.close()
		n.sess = nil
	}

	sess, err := n.dial(n.url, n.exchange)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq redial: %w", err)
	}
	n.sess = sess
	return sess, nil
}

func (n *AMQPNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sess != nil {
		n.sess.close()
		n.sess = nil
	}
}

type amqpSession struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	// closes fires once when either the channel or the connection goes away
	closes chan *amqp.Error
}

func dialAMQP(url, exchange string) (session, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, exchangeKind, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}

	// a connection close also closes its channels, so watching the channel
	// covers both
	closes := ch.NotifyClose(make(chan *amqp.Error, 1))

	return &amqpSession{conn: conn, channel: ch, closes: closes}, nil
}

func (s *amqpSession) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	return s.channel.PublishWithContext(ctx, exchange, key, false, false, msg)
}

func (s *amqpSession) closed() bool {
	select {
	case <-s.closes:
		return true
	default:
		return s.channel.IsClosed() || s.conn.IsClosed()
	}
}

func (s *amqpSession) close() {
	_ = s.channel.Close()
	_ = s.conn.Close()
}
