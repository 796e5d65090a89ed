// Package relay serves the websocket side of the system: a fan-out relay
// endpoint that rebroadcasts chat frames to every other connected peer, and
// a streaming chat endpoint that answers chat_message frames token by token.
package relay

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"chatstream/internal/cache"
	"chatstream/internal/protocol"
)

const welcomeMessage = "Welcome to the WebSocket server!"

// writeWait bounds how long one blocked peer can hold up a broadcast.
const writeWait = 10 * time.Second

// peer is one live relay connection. Writes are serialized per peer so a
// slow or failing peer cannot corrupt frames or stall another peer's writes.
type peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *peer) send(env protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// Server holds the live peer set for the relay endpoint and the responder
// used by the chat endpoint. Stateless beyond that; nothing survives the
// process.
type Server struct {
	logger    *slog.Logger
	responder Responder
	cache     *cache.Cache
	upgrader  websocket.Upgrader

	mu    sync.Mutex
	peers map[*peer]struct{}

	framesIn  metric.Int64Counter
	framesOut metric.Int64Counter
	peerCount metric.Int64UpDownCounter
}

func New(logger *slog.Logger, responder Responder) *Server {
	s := &Server{
		logger:    logger,
		responder: responder,
		cache:     cache.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		peers: make(map[*peer]struct{}),
	}

	meter := otel.Meter("chatstream-relay")
	var err error
	if s.framesIn, err = meter.Int64Counter("relay.frames.received",
		metric.WithDescription("Frames received from peers")); err != nil {
		logger.Warn("failed to create counter", "error", err)
	}
	if s.framesOut, err = meter.Int64Counter("relay.frames.sent",
		metric.WithDescription("Frames sent to peers")); err != nil {
		logger.Warn("failed to create counter", "error", err)
	}
	if s.peerCount, err = meter.Int64UpDownCounter("relay.peers",
		metric.WithDescription("Connected relay peers")); err != nil {
		logger.Warn("failed to create counter", "error", err)
	}
	return s
}

// Routes returns the mux serving both endpoints.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleRelay)
	mux.HandleFunc("/ws/chat", s.handleChat)
	return mux
}

// handleRelay upgrades the connection, registers the peer and rebroadcasts
// its chat frames until it disconnects. One peer's socket error never
// affects other peers.
func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	p := &peer{conn: conn}
	s.addPeer(p)
	defer s.removePeer(p)

	if err := p.send(protocol.Envelope{Type: protocol.TypeSystem, Message: welcomeMessage}); err != nil {
		s.logger.Error("failed to send welcome frame", "error", err)
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Info("relay peer disconnected", "error", err)
			return
		}
		s.count(r, s.framesIn)
		s.handleRelayFrame(r, p, data)
	}
}

func (s *Server) handleRelayFrame(r *http.Request, sender *peer, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		s.logger.Error("error parsing relay frame", "error", err)
		if err := sender.send(protocol.Error("Invalid message format")); err != nil {
			s.logger.Error("failed to send error frame", "error", err)
		}
		return
	}

	switch env.Type {
	case protocol.TypeChat:
		s.broadcast(r, protocol.Envelope{
			Type:    protocol.TypeChat,
			Sender:  "Server",
			Message: "Received: " + env.Message,
		}, sender)

	case protocol.TypePing:
		if err := sender.send(protocol.Envelope{
			Type:      protocol.TypePong,
			Timestamp: time.Now().UnixMilli(),
		}); err != nil {
			s.logger.Error("failed to send pong", "error", err)
		}

	default:
		s.logger.Info("unknown relay frame type", "type", env.Type)
	}
}

// broadcast sends the envelope to every registered peer except the sender.
// Peers whose write fails are dropped on the spot.
func (s *Server) broadcast(r *http.Request, env protocol.Envelope, sender *peer) {
	s.mu.Lock()
	targets := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		if p != sender {
			targets = append(targets, p)
		}
	}
	s.mu.Unlock()

	for _, p := range targets {
		if err := p.send(env); err != nil {
			s.logger.Warn("broadcast write failed, dropping peer", "error", err)
			s.removePeer(p)
			p.conn.Close()
			continue
		}
		s.count(r, s.framesOut)
	}
}

func (s *Server) addPeer(p *peer) {
	s.mu.Lock()
	s.peers[p] = struct{}{}
	n := len(s.peers)
	s.mu.Unlock()
	if s.peerCount != nil {
		s.peerCount.Add(context.Background(), 1)
	}
	s.logger.Info("relay peer connected", "peers", n)
}

// removePeer is idempotent; removing an already absent peer is a no-op.
func (s *Server) removePeer(p *peer) {
	s.mu.Lock()
	_, present := s.peers[p]
	delete(s.peers, p)
	s.mu.Unlock()
	if present && s.peerCount != nil {
		s.peerCount.Add(context.Background(), -1)
	}
}

// PeerCount reports the current number of registered relay peers.
func (s *Server) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

func (s *Server) count(r *http.Request, counter metric.Int64Counter) {
	if counter != nil {
		counter.Add(r.Context(), 1)
	}
}
