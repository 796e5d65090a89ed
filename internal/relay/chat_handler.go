package relay

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"chatstream/internal/cache"
	"chatstream/internal/protocol"
)

// handleChat serves the streaming chat endpoint. Each connection gets its
// own server-side session id; every chat_message frame is acknowledged,
// answered as a sequence of token frames and closed with a completion frame.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	p := &peer{conn: conn}
	sessionID := uuid.NewString()
	s.logger.Info("chat session established", "session_id", sessionID)

	if err := p.send(protocol.Envelope{
		Type:      protocol.TypeConnectionEstablished,
		SessionID: sessionID,
	}); err != nil {
		s.logger.Error("failed to send connection_established", "error", err)
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Info("chat client disconnected", "session_id", sessionID, "error", err)
			return
		}
		s.count(r, s.framesIn)

		env, err := protocol.Decode(data)
		if err != nil {
			s.logger.Error("error parsing chat frame", "session_id", sessionID, "error", err)
			s.sendOrLog(p, protocol.Error("Invalid message format"))
			continue
		}

		switch env.Type {
		case protocol.TypeChatMessage:
			s.respond(r, p, sessionID, env.Message)

		case protocol.TypePing:
			s.sendOrLog(p, protocol.Envelope{
				Type:      protocol.TypePong,
				Timestamp: time.Now().UnixMilli(),
			})

		default:
			s.logger.Info("unknown chat frame type", "session_id", sessionID, "type", env.Type)
		}
	}
}

// respond acknowledges the prompt, then streams the responder's reply as
// token frames followed by completion. Responder failure aborts the stream
// with an error frame; the client discards any tokens already delivered.
func (s *Server) respond(r *http.Request, p *peer, sessionID, prompt string) {
	ctx, span := otel.Tracer("chatstream-relay").Start(r.Context(), "chat_respond")
	defer span.End()

	s.sendOrLog(p, protocol.Envelope{Type: protocol.TypeMessageReceived})

	key := cache.Key(prompt)
	reply, ok := s.cache.Get(key)
	if !ok {
		var err error
		reply, err = s.responder.Respond(ctx, prompt)
		if err != nil {
			s.logger.Error("responder failed", "session_id", sessionID, "error", err)
			s.sendOrLog(p, protocol.Error("Failed to generate response"))
			return
		}
		s.cache.Put(key, reply)
	} else {
		s.logger.Info("cache hit", "session_id", sessionID, "key", key[:16])
	}

	for _, tok := range splitTokens(reply) {
		if err := p.send(protocol.Token(tok)); err != nil {
			s.logger.Warn("token write failed", "session_id", sessionID, "error", err)
			return
		}
		s.count(r, s.framesOut)
	}

	s.sendOrLog(p, protocol.Envelope{Type: protocol.TypeCompletion})
}

func (s *Server) sendOrLog(p *peer, env protocol.Envelope) {
	if err := p.send(env); err != nil {
		s.logger.Error("failed to send frame", "type", env.Type, "error", err)
	}
}
