package rabbitmq

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/go-faster/errors"
	amqp "github.com/streadway/amqp"
	"go.uber.org/zap"
)

// OrderQueue receives every order lifecycle event.
const OrderQueue = "order_events"

// Order event types.
const (
	EventOrderPaid      = "order.paid"
	EventOrderCancelled = "order.cancelled"
)

// OrderEvent is the message published when an order changes payment state.
type OrderEvent struct {
	Type               string    `json:"type"`
	OrderID            string    `json:"order_id"`
	OwnerUserID        string    `json:"owner_user_id"`
	ExternalPaymentRef string    `json:"external_payment_ref"`
	PaymentMethod      string    `json:"payment_method"`
	Total              int64     `json:"total"`
	CouponCode         string    `json:"coupon_code,omitempty"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// Client holds the RabbitMQ connection and channel.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *zap.Logger
	// amqp channels are not safe for concurrent publishing.
	mu sync.Mutex
}

// Config holds RabbitMQ connection details.
type Config struct {
	URL string
}

// NewClient connects to RabbitMQ, opens a channel and declares OrderQueue.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "connect to RabbitMQ")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}

	if _, err := declareQueue(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	logger.Info("RabbitMQ connected", zap.String("queue", OrderQueue))
	return &Client{
		conn:    conn,
		channel: ch,
		logger:  logger,
	}, nil
}

func declareQueue(ch *amqp.Channel) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		OrderQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return q, errors.Wrapf(err, "declare %s", OrderQueue)
	}
	return q, nil
}

// Close closes the channel and the connection.
func (c *Client) Close() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close channel"))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close connection"))
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("close RabbitMQ client: %v", errs)
	}
	return nil
}

// PublishOrderEvent publishes event to OrderQueue as a persistent JSON
// message. The message id is stable per order and event type so consumers
// can drop redeliveries.
func (c *Client) PublishOrderEvent(event OrderEvent) error {
	if c.channel == nil {
		return errors.New("RabbitMQ channel is not available")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal order event")
	}

	c.mu.Lock()
	err = c.channel.Publish(
		"",         // default exchange
		OrderQueue, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    event.Type + ":" + event.OrderID,
			Type:         event.Type,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.OccurredAt,
		})
	c.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "publish order event")
	}

	c.logger.Debug("Order event published",
		zap.String("type", event.Type),
		zap.String("order_id", event.OrderID),
	)
	return nil
}

// ConsumeOrderEvents starts a goroutine delivering OrderQueue messages to
// handler. Messages are acked on success and requeued on handler error;
// undecodable messages are rejected without requeue.
func (c *Client) ConsumeOrderEvents(handler func(OrderEvent) error) error {
	if c.channel == nil {
		return errors.New("RabbitMQ channel is not available for consumption")
	}

	queue, err := declareQueue(c.channel)
	if err != nil {
		return err
	}

	msgs, err := c.channel.Consume(
		queue.Name,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return errors.Wrap(err, "register consumer")
	}

	go func() {
		for msg := range msgs {
			handleDelivery(c.logger, msg, handler)
		}
		c.logger.Info("Order event consumer stopped")
	}()
	return nil
}

func handleDelivery(logger *zap.Logger, msg amqp.Delivery, handler func(OrderEvent) error) {
	var event OrderEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		logger.Error("Dropping malformed order event", zap.Uint64("tag", msg.DeliveryTag), zap.Error(err))
		if err := msg.Reject(false); err != nil {
			logger.Error("Reject failed", zap.Uint64("tag", msg.DeliveryTag), zap.Error(err))
		}
		return
	}

	if err := handler(event); err != nil {
		logger.Warn("Order event handler failed, requeueing",
			zap.Uint64("tag", msg.DeliveryTag),
			zap.String("order_id", event.OrderID),
			zap.Error(err),
		)
		if err := msg.Nack(false, true); err != nil {
			logger.Error("Nack failed", zap.Uint64("tag", msg.DeliveryTag), zap.Error(err))
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		logger.Error("Ack failed", zap.Uint64("tag", msg.DeliveryTag), zap.Error(err))
	}
}
