package opslog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/resi-labs-ai/resi-labs-api/internal/logger"
)

func TestServer_BroadcastsLogEntriesToConnectedClients(t *testing.T) {
	s := NewServer()

	ts := httptest.NewServer(http.HandlerFunc(s.handleConnections))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.fanOut(ctx)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// give handleConnections time to register the client before we publish
	time.Sleep(20 * time.Millisecond)

	s.logChan <- logger.LogEntry{Level: "INFO", Component: "TEST", Message: "hello"}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected a broadcast message, got error: %v", err)
	}

	var entry logger.LogEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("failed to decode broadcast entry: %v", err)
	}
	if entry.Message != "hello" || entry.Component != "TEST" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestServer_StartIsNoopWithoutPort(t *testing.T) {
	s := NewServer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Start must return promptly when port <= 0 rather than blocking on
	// ListenAndServe.
	s.Start(ctx, 0)
}
