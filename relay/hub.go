// Package relay is the realtime edge of the pipeline: a websocket hub with
// one shared broadcast topic. Client frames tagged as actions are bridged
// onto the durable action queue; everything else is rebroadcast to peers. A
// fan-out worker republishes persisted activities to every connection.
package relay

import "log"

type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run drives the hub loop. Nothing in it may block: sends to slow clients
// fall back to dropping their oldest pending frame.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Printf("Relay client connected (%d total)", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("Relay client disconnected (%d total)", len(h.clients))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				client.enqueue(message)
			}

		case <-h.done:
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return
		}
	}
}

func (h *Hub) Stop() {
	close(h.done)
}

// Broadcast queues a frame for delivery to every connected client.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// detach unregisters a client without blocking when the hub has already
// stopped.
func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// enqueue delivers a frame to one client without ever blocking the hub
// loop. When the client's buffer is full the oldest pending frame is
// dropped to make room.
func (c *Client) enqueue(message []byte) {
	select {
	case c.send <- message:
		return
	default:
	}

	select {
	case <-c.send:
		log.Printf("Relay client buffer full, dropped oldest frame")
	default:
	}

	select {
	case c.send <- message:
	default:
	}
}
