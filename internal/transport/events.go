package transport

import (
	"log/slog"
	"sync"
)

// ConnectionState is the transport's externally visible lifecycle state.
// Exactly one value holds at a time, owned solely by the Client.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateError        ConnectionState = "error"
)

// Reconnecting reports backoff progress before a retry timer is armed.
type Reconnecting struct {
	Attempt int
	Max     int
}

// eventKind enumerates the closed set of client events. Registration goes
// through one typed On* method per kind on the Client; this enum only keys
// the internal registry.
type eventKind int

const (
	evConnect eventKind = iota
	evDisconnect
	evError
	evReconnecting
	evReconnectFailed
	evSessionCreated
	evMessageReceived
	evToken
	evCompletion
)

type handlerEntry struct {
	id uint64
	fn func(payload any)
}

// bus dispatches events to handlers in registration order. A handler panic
// is logged and must not prevent later handlers from running.
type bus struct {
	logger *slog.Logger

	mu       sync.Mutex
	nextID   uint64
	handlers map[eventKind][]handlerEntry
}

func newBus(logger *slog.Logger) *bus {
	return &bus{
		logger:   logger,
		handlers: make(map[eventKind][]handlerEntry),
	}
}

// subscribe registers fn and returns an unsubscribe func. Unsubscribing twice
// is harmless.
func (b *bus) subscribe(kind eventKind, fn func(payload any)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[kind] = append(b.handlers[kind], handlerEntry{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entries := b.handlers[kind]
		for i, e := range entries {
			if e.id == id {
				b.handlers[kind] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

func (b *bus) emit(kind eventKind, payload any) {
	b.mu.Lock()
	entries := make([]handlerEntry, len(b.handlers[kind]))
	copy(entries, b.handlers[kind])
	b.mu.Unlock()

	for _, e := range entries {
		b.dispatch(e, payload)
	}
}

func (b *bus) dispatch(e handlerEntry, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "panic", r)
		}
	}()
	e.fn(payload)
}
