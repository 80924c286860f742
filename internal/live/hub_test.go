package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, server *httptest.Server, documentID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/live/" + documentID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, documentID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(documentID) != want {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers(%s) = %d, want %d", documentID, hub.Subscribers(documentID), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubDeliversOnlyToDocumentSubscribers(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, strings.TrimPrefix(r.URL.Path, "/live/"))
	}))
	defer server.Close()

	watcher := dial(t, server, "doc_1")
	other := dial(t, server, "doc_2")
	waitForSubscribers(t, hub, "doc_1", 1)
	waitForSubscribers(t, hub, "doc_2", 1)

	hub.Broadcast(Event{Type: "page_view", DocumentID: "doc_1", SessionID: "sess_1", PageNumber: 3})

	var got Event
	_ = watcher.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := watcher.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if got.DocumentID != "doc_1" || got.PageNumber != 3 || got.At.IsZero() {
		t.Fatalf("event = %+v", got)
	}

	_ = other.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if err := other.ReadJSON(&got); err == nil {
		t.Fatalf("doc_2 subscriber received %+v", got)
	}
}

func TestHubForgetsClosedSubscribers(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, "doc_1")
	}))
	defer server.Close()

	conn := dial(t, server, "doc_1")
	waitForSubscribers(t, hub, "doc_1", 1)
	_ = conn.Close()
	waitForSubscribers(t, hub, "doc_1", 0)
}

func TestBroadcastNeverBlocks(t *testing.T) {
	hub := NewHub(nil)
	for i := 0; i < cap(hub.ch)+10; i++ {
		hub.Broadcast(Event{DocumentID: "doc_1"})
	}
	var nilHub *Hub
	nilHub.Broadcast(Event{DocumentID: "doc_1"})
}
