package transport

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatstream/internal/config"
	"chatstream/internal/protocol"
)

// ChatEndpointPath is appended to the configured server URL when dialing.
const ChatEndpointPath = "/ws/chat"

const defaultErrorMessage = "An error occurred"

// Client maintains a single logical websocket connection to the chat server,
// reconnecting transparently with exponential backoff when the connection
// drops. Other components observe it through the typed On* subscriptions and
// never touch socket mechanics.
type Client struct {
	url         string
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      *slog.Logger
	bus         *bus

	mu             sync.Mutex
	conn           *websocket.Conn
	state          ConnectionState
	attempts       int
	reconnectTimer *time.Timer
	sessionID      string

	// gorilla allows one concurrent writer per connection
	writeMu sync.Mutex
}

// New creates a disconnected client. Call Connect to dial.
func New(cfg config.Config, logger *slog.Logger) *Client {
	return &Client{
		url:         cfg.ServerURL + ChatEndpointPath,
		maxAttempts: cfg.MaxReconnectAttempts,
		baseDelay:   cfg.ReconnectBaseDelay,
		maxDelay:    cfg.ReconnectMaxDelay,
		logger:      logger,
		bus:         newBus(logger),
		state:       StateDisconnected,
	}
}

// Status returns the current connection state.
func (c *Client) Status() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the server-assigned session id from the most recent
// connection_established frame, empty before the first one arrives.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Connect dials the configured endpoint. It is a no-op when a connection is
// already open or being opened. Failures are reported through the Error
// event and feed the reconnect state machine; Connect itself never blocks
// callers on retries.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return
	}
	c.clearReconnectTimerLocked()
	c.state = StateConnecting
	c.mu.Unlock()

	conn, resp, err := websocket.DefaultDialer.Dial(c.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.logger.Error("websocket connection error", "url", c.url, "error", err)
		c.mu.Lock()
		if c.state != StateConnecting {
			// Disconnect won the race while we were dialing.
			c.mu.Unlock()
			return
		}
		c.state = StateError
		c.mu.Unlock()
		c.bus.emit(evError, err.Error())

		// A failed dial follows the same close path as a dropped connection.
		c.mu.Lock()
		if c.state != StateError {
			// Disconnect was called from an error handler.
			c.mu.Unlock()
			return
		}
		c.state = StateDisconnected
		c.mu.Unlock()
		c.bus.emit(evDisconnect, nil)
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		// Disconnect won the race while we were dialing.
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	c.mu.Unlock()

	c.logger.Info("websocket connected", "url", c.url)
	c.bus.emit(evConnect, nil)

	go c.readLoop(conn)
}

// Disconnect closes the socket if open, cancels any pending reconnect timer
// and forces the state to disconnected. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.clearReconnectTimerLocked()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		// Best-effort close handshake
		c.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		conn.Close()
		c.logger.Info("websocket disconnected")
	}
}

// Send serializes and transmits the envelope. It returns false without
// queuing when the client is not connected or the write fails; the caller is
// responsible for reporting an unsent message.
func (c *Client) Send(env protocol.Envelope) bool {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected && conn != nil
	c.mu.Unlock()

	if !connected {
		c.logger.Error("websocket is not connected")
		return false
	}

	data, err := env.Encode()
	if err != nil {
		c.logger.Error("error encoding message", "error", err)
		return false
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Error("error sending message", "error", err)
		return false
	}
	return true
}

// Event subscriptions. Each registers one handler for one event kind and
// returns its unsubscribe func. Handlers run in registration order.

func (c *Client) OnConnect(fn func()) func() {
	return c.bus.subscribe(evConnect, func(any) { fn() })
}

func (c *Client) OnDisconnect(fn func()) func() {
	return c.bus.subscribe(evDisconnect, func(any) { fn() })
}

func (c *Client) OnError(fn func(message string)) func() {
	return c.bus.subscribe(evError, func(p any) { fn(p.(string)) })
}

func (c *Client) OnReconnecting(fn func(Reconnecting)) func() {
	return c.bus.subscribe(evReconnecting, func(p any) { fn(p.(Reconnecting)) })
}

// OnReconnectFailed fires once the attempt budget is exhausted and no further
// automatic retries will be scheduled.
func (c *Client) OnReconnectFailed(fn func(attempts int)) func() {
	return c.bus.subscribe(evReconnectFailed, func(p any) { fn(p.(int)) })
}

// OnSessionCreated fires for the server's connection_established frame.
func (c *Client) OnSessionCreated(fn func(sessionID string)) func() {
	return c.bus.subscribe(evSessionCreated, func(p any) { fn(p.(string)) })
}

func (c *Client) OnMessageReceived(fn func()) func() {
	return c.bus.subscribe(evMessageReceived, func(any) { fn() })
}

func (c *Client) OnToken(fn func(content string)) func() {
	return c.bus.subscribe(evToken, func(p any) { fn(p.(string)) })
}

func (c *Client) OnCompletion(fn func()) func() {
	return c.bus.subscribe(evCompletion, func(any) { fn() })
}

// readLoop consumes frames until the connection drops, then hands control to
// the reconnect machinery. Frames are dispatched in arrival order.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		c.handleFrame(data)
	}

	c.mu.Lock()
	if c.conn != conn {
		// Deliberate Disconnect or a replaced connection; nothing to do.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	c.logger.Info("websocket connection closed")
	c.bus.emit(evDisconnect, nil)
	c.scheduleReconnect()
}

// handleFrame parses one inbound envelope and dispatches by type. Malformed
// or unrecognized frames are logged and dropped; they never crash the client
// and emit no event.
func (c *Client) handleFrame(data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		c.logger.Error("error parsing websocket message", "error", err)
		return
	}

	switch env.Type {
	case protocol.TypeConnectionEstablished:
		if env.SessionID != "" {
			c.mu.Lock()
			c.sessionID = env.SessionID
			c.mu.Unlock()
		}
		c.bus.emit(evSessionCreated, env.SessionID)

	case protocol.TypeMessageReceived:
		c.bus.emit(evMessageReceived, nil)

	case protocol.TypeToken:
		if env.Content == nil {
			return
		}
		c.bus.emit(evToken, *env.Content)

	case protocol.TypeCompletion:
		c.bus.emit(evCompletion, nil)

	case protocol.TypeError:
		msg := env.Message
		if msg == "" {
			msg = defaultErrorMessage
		}
		c.bus.emit(evError, msg)

	default:
		c.logger.Debug("unhandled message type", "type", env.Type)
	}
}

// scheduleReconnect arms a single-shot retry timer, or gives up once the
// attempt budget is spent. The counter resets only on a successful connect.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.maxAttempts {
		max := c.maxAttempts
		c.mu.Unlock()
		c.logger.Warn("max reconnection attempts reached", "attempts", max)
		c.bus.emit(evReconnectFailed, max)
		return
	}
	c.attempts++
	attempt := c.attempts
	c.state = StateReconnecting
	c.mu.Unlock()

	c.bus.emit(evReconnecting, Reconnecting{Attempt: attempt, Max: c.maxAttempts})

	c.mu.Lock()
	if c.state != StateReconnecting {
		// Disconnect was called from a reconnecting handler.
		c.mu.Unlock()
		return
	}
	delay := backoffDelay(attempt, c.baseDelay, c.maxDelay)
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		c.mu.Unlock()
		c.Connect()
	})
	c.mu.Unlock()

	c.logger.Info("reconnect scheduled", "attempt", attempt, "max", c.maxAttempts, "delay", delay)
}

func (c *Client) clearReconnectTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// backoffDelay returns min(base * 2^attempt, max).
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	d := base << uint(attempt)
	if d <= 0 || d > max {
		return max
	}
	return d
}
