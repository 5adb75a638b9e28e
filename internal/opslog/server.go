// Package opslog is an internal-only websocket log tail: operators attach
// to it to watch the broker's structured log stream live, without SSH
// access to the host. Connection bookkeeping and the broadcast-fan-out
// loop are adapted from the teacher's internal/dashboard.Server — the same
// upgrader/clients-map/broadcast-channel shape — stripped of the
// validator/node state snapshot half (getStateJSON, handleState), which
// has no meaning once there is no validator registry or node manager to
// describe. This endpoint is deliberately not part of the public §6
// surface and should only ever be exposed on a private listener.
package opslog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/resi-labs-ai/resi-labs-api/internal/logger"
)

type Server struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]bool
	logChan  chan logger.LogEntry
	mu       sync.Mutex
}

func NewServer() *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]bool),
		logChan: make(chan logger.LogEntry, 100),
	}
	logger.SetLogChannel(s.logChan)
	return s
}

// Start listens on a private port separate from the public API — the
// caller is responsible for binding it to a loopback or VPN-only address.
func (s *Server) Start(ctx context.Context, port int) {
	if port <= 0 {
		return
	}
	go s.fanOut(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleConnections)

	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("OPSLOG", "server failed: %v", err)
	}
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("OPSLOG", "upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()
}

func (s *Server) fanOut(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-s.logChan:
			line, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			s.mu.Lock()
			for client := range s.clients {
				if err := client.WriteMessage(websocket.TextMessage, line); err != nil {
					client.Close()
					delete(s.clients, client)
				}
			}
			s.mu.Unlock()
		}
	}
}
