// Package queue is the amqp transport of the bot: it consumes inbound chat
// and payment-request queues and publishes outbound messages and events.
package queue

import (
	"context"
	"encoding/json"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/satsflow/SatsFlowBot/internal/rate"
	"github.com/satsflow/SatsFlowBot/internal/runtime"
)

// Publisher is the outbound seam of the bot.
type Publisher interface {
	SendMessage(msg OutboundMessage) error
	SendEvent(ev Event) error
}

type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex // amqp channels are not safe for concurrent publish

	OutboundQueue string
	EventsQueue   string
}

func Dial(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Client{conn: conn, ch: ch}, nil
}

func (c *Client) Close() {
	runtime.IgnoreError(c.ch.Close())
	runtime.IgnoreError(c.conn.Close())
}

func (c *Client) declare(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.ch.QueueDeclare(name, true, false, false, false, nil)
	return err
}

// Consume reads queue until ctx is canceled, handling every delivery in its
// own guarded goroutine. Deliveries are acked after the handling attempt,
// a handler panic never requeues the message and never stops the pump.
func (c *Client) Consume(ctx context.Context, queue, tag string, handler func(body []byte)) error {
	if err := c.declare(queue); err != nil {
		return err
	}
	deliveries, err := c.ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	log.Infof("[queue] consuming %s", queue)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					log.Warnf("[queue] delivery channel of %s closed", queue)
					return
				}
				go func(d amqp.Delivery) {
					runtime.Guard(tag, func() { handler(d.Body) })
					runtime.IgnoreError(d.Ack(false))
				}(d)
			}
		}
	}()
	return nil
}

func (c *Client) publish(queue string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.declare(queue); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch.PublishWithContext(context.Background(), "", queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        b,
	})
}

// SendMessage publishes one outbound chat message, rate limited per
// recipient.
func (c *Client) SendMessage(msg OutboundMessage) error {
	rate.CheckLimit(msg.Recipient)
	log.Debugf("[queue] -> %s: %q", msg.Recipient, msg.Body)
	return c.publish(c.OutboundQueue, msg)
}

// SendEvent publishes one upstream event. Fire and forget, callers wrap
// with runtime.IgnoreError.
func (c *Client) SendEvent(ev Event) error {
	log.Debugf("[queue] event %s for %s", ev.Type, ev.Npub)
	return c.publish(c.EventsQueue, ev)
}
