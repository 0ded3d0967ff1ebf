package queue

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Client wraps a NATS connection plus a JetStream context. JetStream gives
// the pipeline its durable, at-least-once work queue: consumers ack
// deliveries explicitly, nak them for redelivery, and the server abandons a
// message after MaxDeliver attempts.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

type Config struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
	ClientID      string
}

func NewClient(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.ClientID),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Printf("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	log.Printf("Connected to NATS at %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		js:   js,
	}, nil
}

func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// Publish marshals data and publishes it to the stream synchronously, so the
// caller knows the event is stored before moving on.
func (c *Client) Publish(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = c.js.Publish(subject, payload)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// SubscribeDurable creates a durable queue consumer with explicit acks.
// Each delivery goes to one worker in the queue group; a nak or a missed
// ack window redelivers it, up to attempts total deliveries spaced by the
// fixed backoff.
func (c *Client) SubscribeDurable(subject, durableName, queueGroup string, attempts int, backoff time.Duration, handler nats.MsgHandler) (*nats.Subscription, error) {
	// Every message gets at least one delivery.
	if attempts < 1 {
		attempts = 1
	}
	waits := make([]time.Duration, attempts-1)
	for i := range waits {
		waits[i] = backoff
	}

	opts := []nats.SubOpt{
		nats.Durable(durableName),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.MaxDeliver(attempts),
	}
	// Backoff and ack wait are mutually exclusive on a consumer.
	if len(waits) > 0 {
		opts = append(opts, nats.BackOff(waits))
	} else {
		opts = append(opts, nats.AckWait(30*time.Second))
	}

	sub, err := c.js.QueueSubscribe(subject, queueGroup, handler, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create durable subscription to %s: %w", subject, err)
	}

	log.Printf("Durable subscription created: %s (durable: %s, queue: %s)", subject, durableName, queueGroup)
	return sub, nil
}

// CreateStream ensures the stream backing the given subjects exists.
// Interest retention lets the dispatcher and the generator each hold their
// own durable consumer on the action subject and receive every event.
func (c *Client) CreateStream(streamName string, subjects []string) error {
	_, err := c.js.AddStream(&nats.StreamConfig{
		Name:      streamName,
		Subjects:  subjects,
		Storage:   nats.FileStorage,
		MaxAge:    24 * time.Hour * 7,
		Retention: nats.InterestPolicy,
	})

	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", streamName, err)
	}

	log.Printf("Stream created: %s", streamName)
	return nil
}

func DecodeEvent(msg *nats.Msg, v interface{}) error {
	return json.Unmarshal(msg.Data, v)
}
