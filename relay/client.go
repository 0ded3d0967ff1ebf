package relay

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fescii/qval-sub002/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 64 * 1024
)

// frame is the inbound envelope. Client-originated actions are tagged with
// frontend:true so the relay can tell them apart from peer chatter.
type frame struct {
	Frontend bool            `json:"frontend"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
}

type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	actions Publisher
}

func newClient(hub *Hub, conn *websocket.Conn, actions Publisher, sendBuffer int) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		actions: actions,
	}
}

// readPump pulls frames off the connection. An action frame is stripped of
// its tag and forwarded to the action queue; any other frame is rebroadcast
// verbatim to every subscriber.
func (c *Client) readPump() {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Relay read error: %v", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(message, &f); err == nil && f.Frontend && f.Type == "action" {
			c.forwardAction(f.Data)
			continue
		}

		c.hub.Broadcast(message)
	}
}

func (c *Client) forwardAction(data json.RawMessage) {
	var event events.ActionEvent
	if err := json.Unmarshal(data, &event); err != nil {
		log.Printf("Relay dropped malformed action frame: %v", err)
		return
	}

	if err := event.Validate(); err != nil {
		log.Printf("Relay dropped action frame: %v", err)
		return
	}

	if err := c.actions.Publish(events.SubjectAction, event); err != nil {
		log.Printf("Relay failed to forward action: %v", err)
	}
}

// writePump pushes queued frames to the connection and keeps it alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Relay write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
