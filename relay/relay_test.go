package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"github.com/fescii/qval-sub002/config"
	"github.com/fescii/qval-sub002/events"
	"github.com/fescii/qval-sub002/pkg/jwt"
)

type fakePublisher struct {
	mu        sync.Mutex
	subjects  []string
	published []events.ActionEvent
}

func (p *fakePublisher) Publish(subject string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	if event, ok := data.(events.ActionEvent); ok {
		p.published = append(p.published, event)
	}
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func (p *fakePublisher) last() events.ActionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published[len(p.published)-1]
}

func newTestRelay(publisher Publisher, tokens *jwt.Manager) *Relay {
	r := New(nil, publisher, tokens, &config.RelayConfig{SendBuffer: 8}, &config.PipelineConfig{MaxAttempts: 3, RetryBackoff: time.Second})
	go r.hub.Run()
	return r
}

func dial(t *testing.T, server *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func TestActionFrameIsForwardedNotRebroadcast(t *testing.T) {
	publisher := &fakePublisher{}
	r := newTestRelay(publisher, nil)
	defer r.hub.Stop()

	server := httptest.NewServer(r.Handler())
	defer server.Close()

	sender := dial(t, server, nil)
	defer sender.Close()
	peer := dial(t, server, nil)
	defer peer.Close()
	time.Sleep(200 * time.Millisecond)

	frame := `{"frontend":true,"type":"action","data":{"kind":"topic","action":"follow","hashes":{"target":"T1"},"value":1}}`
	if err := sender.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for publisher.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if publisher.count() != 1 {
		t.Fatalf("expected one forwarded action, got %d", publisher.count())
	}

	event := publisher.last()
	if event.Kind != "topic" || event.Action != "follow" || event.Hashes.Target != "T1" || event.Value != 1 {
		t.Fatalf("forwarded event lost fields: %+v", event)
	}

	// The tagged frame must not reach peers.
	peer.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := peer.ReadMessage(); err == nil {
		t.Fatalf("expected no rebroadcast of an action frame")
	}
}

func TestOtherFramesAreRebroadcastVerbatim(t *testing.T) {
	publisher := &fakePublisher{}
	r := newTestRelay(publisher, nil)
	defer r.hub.Stop()

	server := httptest.NewServer(r.Handler())
	defer server.Close()

	sender := dial(t, server, nil)
	defer sender.Close()
	peer := dial(t, server, nil)
	defer peer.Close()
	time.Sleep(200 * time.Millisecond)

	frame := `{"type":"presence","data":{"user":"U0A"}}`
	if err := sender.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := peer.ReadMessage()
	if err != nil {
		t.Fatalf("expected peer to receive the frame: %v", err)
	}
	if string(message) != frame {
		t.Fatalf("expected verbatim rebroadcast, got %q", message)
	}

	if publisher.count() != 0 {
		t.Fatalf("untagged frames must not reach the action queue")
	}
}

func TestSocketEventsAreBroadcastToAllClients(t *testing.T) {
	r := newTestRelay(&fakePublisher{}, nil)
	defer r.hub.Stop()

	server := httptest.NewServer(r.Handler())
	defer server.Close()

	first := dial(t, server, nil)
	defer first.Close()
	second := dial(t, server, nil)
	defer second.Close()
	time.Sleep(200 * time.Millisecond)

	payload := []byte(`{"type":"activity","data":{"kind":"story","action":"like","target":"S0A"}}`)
	r.handleSocketEvent(&nats.Msg{Data: payload})

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, message, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("expected broadcast delivery: %v", err)
		}

		var frame struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(message, &frame); err != nil {
			t.Fatalf("broadcast frame not JSON: %v", err)
		}
		if frame.Type != "activity" {
			t.Fatalf("expected an activity frame, got %q", frame.Type)
		}
	}
}

func TestMalformedActionFrameIsDropped(t *testing.T) {
	publisher := &fakePublisher{}
	r := newTestRelay(publisher, nil)
	defer r.hub.Stop()

	server := httptest.NewServer(r.Handler())
	defer server.Close()

	sender := dial(t, server, nil)
	defer sender.Close()
	time.Sleep(100 * time.Millisecond)

	frame := `{"frontend":true,"type":"action","data":{"kind":"widget","action":"like","hashes":{"target":"X"},"value":1}}`
	if err := sender.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	if publisher.count() != 0 {
		t.Fatalf("invalid actions must not be forwarded")
	}
}

func TestTokenGate(t *testing.T) {
	tokens := jwt.NewManager("test-secret")
	r := newTestRelay(&fakePublisher{}, tokens)
	defer r.hub.Stop()

	server := httptest.NewServer(r.Handler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatalf("expected dial without token to be rejected")
	}

	token, err := tokens.Generate("U0A", time.Minute)
	if err != nil {
		t.Fatalf("token generation failed: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	if err != nil {
		t.Fatalf("expected dial with token to succeed: %v", err)
	}
	conn.Close()
}

func TestEnqueueDropsOldestWhenFull(t *testing.T) {
	client := &Client{send: make(chan []byte, 2)}

	client.enqueue([]byte("a"))
	client.enqueue([]byte("b"))
	client.enqueue([]byte("c"))

	first := <-client.send
	second := <-client.send
	if string(first) != "b" || string(second) != "c" {
		t.Fatalf("expected oldest frame dropped, got %q then %q", first, second)
	}
	select {
	case extra := <-client.send:
		t.Fatalf("unexpected extra frame %q", extra)
	default:
	}
}
