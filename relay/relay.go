package relay

import (
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"github.com/fescii/qval-sub002/config"
	"github.com/fescii/qval-sub002/events"
	"github.com/fescii/qval-sub002/pkg/jwt"
	"github.com/fescii/qval-sub002/queue"
)

// Publisher is the slice of the queue client the relay uses to bridge
// client-originated actions onto the action queue.
type Publisher interface {
	Publish(subject string, data interface{}) error
}

type Relay struct {
	hub       *Hub
	queue     *queue.Client
	publisher Publisher
	tokens    *jwt.Manager
	cfg       *config.RelayConfig
	pipeline  *config.PipelineConfig
	upgrader  websocket.Upgrader
	sub       *nats.Subscription
}

// New builds a relay. A nil token manager leaves the endpoint open, which
// matches running behind an already-authenticated gateway.
func New(queueClient *queue.Client, publisher Publisher, tokens *jwt.Manager, cfg *config.RelayConfig, pipeline *config.PipelineConfig) *Relay {
	return &Relay{
		hub:       NewHub(),
		queue:     queueClient,
		publisher: publisher,
		tokens:    tokens,
		cfg:       cfg,
		pipeline:  pipeline,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Start runs the hub loop and the fan-out worker that republishes persisted
// activities to every connection.
func (r *Relay) Start() error {
	go r.hub.Run()

	sub, err := r.queue.SubscribeDurable(
		events.SubjectSocket,
		"socket-relay",
		"socket-relays",
		r.pipeline.MaxAttempts,
		r.pipeline.RetryBackoff,
		r.handleSocketEvent,
	)
	if err != nil {
		return err
	}

	r.sub = sub
	log.Println("Notification relay started")
	return nil
}

func (r *Relay) Stop() error {
	var err error
	if r.sub != nil {
		err = r.sub.Drain()
	}
	r.hub.Stop()
	return err
}

// handleSocketEvent bridges one durable fan-out event to the ephemeral
// broadcast topic. The payload goes out verbatim; recipient filtering is
// left to the clients.
func (r *Relay) handleSocketEvent(msg *nats.Msg) {
	r.hub.Broadcast(msg.Data)
	msg.Ack()
}

// Handler returns the websocket endpoint.
func (r *Relay) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.tokens != nil {
			if _, err := r.tokens.Verify(bearerToken(req)); err != nil {
				log.Printf("Relay rejected connection: %v", err)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		conn, err := r.upgrader.Upgrade(w, req, nil)
		if err != nil {
			log.Printf("Relay upgrade failed: %v", err)
			return
		}

		client := newClient(r.hub, conn, r.publisher, r.cfg.SendBuffer)
		select {
		case r.hub.register <- client:
		case <-r.hub.done:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

func bearerToken(req *http.Request) string {
	if token := req.URL.Query().Get("token"); token != "" {
		return token
	}

	header := req.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
