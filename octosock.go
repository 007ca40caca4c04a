package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// PrinterEvent is a lifecycle notification from one of the event sources.
type PrinterEvent struct {
	Type    string `json:"type"`
	JobName string `json:"job_name,omitempty"`
}

// EventHandler receives printer lifecycle events. The reminder engine
// implements it; event sources call it from their own goroutines.
type EventHandler interface {
	HandleEvent(event PrinterEvent)
}

// pushFrame is one JSON message from the OctoPrint push socket. Only the
// frame kinds the listener cares about are decoded; the rest stay nil.
type pushFrame struct {
	Connected *struct {
		Version string `json:"version"`
	} `json:"connected,omitempty"`
	Current *struct {
		State struct {
			Text  string              `json:"text"`
			Flags OctoPrintStateFlags `json:"flags"`
		} `json:"state"`
	} `json:"current,omitempty"`
	History *struct {
		State struct {
			Text  string              `json:"text"`
			Flags OctoPrintStateFlags `json:"flags"`
		} `json:"state"`
	} `json:"history,omitempty"`
	Event *struct {
		Type    string                 `json:"type"`
		Payload map[string]interface{} `json:"payload"`
	} `json:"event,omitempty"`
}

// PushListener maintains a persistent connection to OctoPrint's push socket,
// forwarding lifecycle events to the handler and caching the latest printer
// state flags. It reconnects with exponential backoff when the socket drops;
// while disconnected the polling monitor takes over event detection.
type PushListener struct {
	client        *OctoPrintClient
	handler       EventHandler
	conn          *websocket.Conn
	mu            sync.RWMutex
	connected     bool
	flags         OctoPrintStateFlags
	flagsValid    bool
	reconnectChan chan struct{}
	stopChan      chan struct{}
	ctx           context.Context
	cancel        context.CancelFunc
	logger        *log.Logger

	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	pingInterval      time.Duration
	writeTimeout      time.Duration
	readTimeout       time.Duration
	handshakeTimeout  time.Duration
}

// NewPushListener creates a push listener for the given OctoPrint client.
func NewPushListener(client *OctoPrintClient, handler EventHandler, logger *log.Logger) *PushListener {
	ctx, cancel := context.WithCancel(context.Background())

	return &PushListener{
		client:            client,
		handler:           handler,
		reconnectChan:     make(chan struct{}, 1),
		stopChan:          make(chan struct{}),
		ctx:               ctx,
		cancel:            cancel,
		logger:            logger,
		reconnectDelay:    5 * time.Second,
		maxReconnectDelay: 5 * time.Minute,
		pingInterval:      30 * time.Second,
		writeTimeout:      10 * time.Second,
		readTimeout:       60 * time.Second,
		handshakeTimeout:  10 * time.Second,
	}
}

// Start attempts the initial connection and launches the reconnect manager.
// A failed first attempt is not an error; the manager keeps retrying.
func (pl *PushListener) Start() {
	if err := pl.connect(); err != nil {
		pl.logger.Printf("📡 Initial push socket connection failed: %v (will retry)", err)
		pl.triggerReconnect()
	}
	go pl.connectionManager()
}

// Stop closes the socket and stops all listener goroutines.
func (pl *PushListener) Stop() {
	pl.cancel()
	close(pl.stopChan)

	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.conn != nil {
		pl.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		pl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		pl.conn.Close()
		pl.conn = nil
	}
	pl.connected = false
	pl.flagsValid = false
}

// Connected reports whether the push socket is currently live.
func (pl *PushListener) Connected() bool {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.connected
}

// PrinterFlags returns the most recent state flags seen on the socket and
// whether they are current. Flags go stale the moment the socket drops.
func (pl *PushListener) PrinterFlags() (OctoPrintStateFlags, bool) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.flags, pl.connected && pl.flagsValid
}

// UpdateClient swaps the OctoPrint client after a settings change and forces
// a reconnect so the new URL and key take effect.
func (pl *PushListener) UpdateClient(client *OctoPrintClient) {
	pl.mu.Lock()
	pl.client = client
	conn := pl.conn
	pl.mu.Unlock()

	if conn != nil {
		conn.Close()
	} else {
		pl.triggerReconnect()
	}
}

// connect performs a passive login, dials the push socket and sends the auth
// frame, then starts the per-connection read and ping loops.
func (pl *PushListener) connect() error {
	pl.mu.Lock()
	if pl.conn != nil {
		pl.conn.Close()
		pl.conn = nil
		pl.connected = false
		pl.flagsValid = false
	}
	client := pl.client
	pl.mu.Unlock()

	session, err := client.Login()
	if err != nil {
		return fmt.Errorf("passive login failed: %w", err)
	}

	u, err := url.Parse(client.baseURL)
	if err != nil {
		return fmt.Errorf("invalid OctoPrint URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
	}
	u.Path = "/sockjs/websocket"

	dialer := &websocket.Dialer{HandshakeTimeout: pl.handshakeTimeout}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("push socket dial failed: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(pl.writeTimeout))
	auth := map[string]string{"auth": session.Name + ":" + session.Session}
	if err := conn.WriteJSON(auth); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send auth frame: %w", err)
	}

	pl.mu.Lock()
	pl.conn = conn
	pl.connected = true
	pl.mu.Unlock()

	pl.logger.Printf("📡 Push socket connected to %s", u.Host)

	go pl.readLoop(conn)
	go pl.pingLoop(conn)

	return nil
}

// connectionManager handles reconnection with exponential backoff.
func (pl *PushListener) connectionManager() {
	currentDelay := pl.reconnectDelay

	for {
		select {
		case <-pl.ctx.Done():
			return
		case <-pl.stopChan:
			return
		case <-pl.reconnectChan:
			timer := time.NewTimer(currentDelay)
			select {
			case <-pl.ctx.Done():
				timer.Stop()
				return
			case <-pl.stopChan:
				timer.Stop()
				return
			case <-timer.C:
				if err := pl.connect(); err != nil {
					pl.logger.Printf("📡 Push socket reconnect failed: %v (next attempt in %v)", err, currentDelay)

					currentDelay *= 2
					if currentDelay > pl.maxReconnectDelay {
						currentDelay = pl.maxReconnectDelay
					}
					pl.triggerReconnect()
				} else {
					currentDelay = pl.reconnectDelay
				}
			}
		}
	}
}

func (pl *PushListener) triggerReconnect() {
	select {
	case pl.reconnectChan <- struct{}{}:
	default:
	}
}

// readLoop reads frames from one socket connection until it dies, then
// triggers a reconnect.
func (pl *PushListener) readLoop(conn *websocket.Conn) {
	defer func() {
		pl.mu.Lock()
		if pl.conn == conn {
			pl.connected = false
			pl.flagsValid = false
		}
		pl.mu.Unlock()

		select {
		case <-pl.stopChan:
		default:
			pl.triggerReconnect()
		}
	}()

	for {
		select {
		case <-pl.ctx.Done():
			return
		case <-pl.stopChan:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(pl.readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				pl.logger.Printf("📡 Push socket read error: %v", err)
			}
			return
		}

		var frame pushFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			pl.logger.Printf("📡 Failed to parse push frame: %v", err)
			continue
		}

		pl.handleFrame(&frame)
	}
}

// pingLoop keeps the connection alive between server frames.
func (pl *PushListener) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pl.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pl.ctx.Done():
			return
		case <-pl.stopChan:
			return
		case <-ticker.C:
			pl.mu.RLock()
			current := pl.conn == conn && pl.connected
			pl.mu.RUnlock()
			if !current {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(pl.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame dispatches one decoded push frame.
func (pl *PushListener) handleFrame(frame *pushFrame) {
	switch {
	case frame.Connected != nil:
		pl.logger.Printf("📡 Push channel established (server %s)", frame.Connected.Version)

	case frame.Current != nil:
		pl.setFlags(frame.Current.State.Flags)

	case frame.History != nil:
		pl.setFlags(frame.History.State.Flags)

	case frame.Event != nil:
		event := pl.mapEvent(frame.Event.Type, frame.Event.Payload)
		if event == nil {
			return
		}
		pl.logger.Printf("📡 Event from push socket: %s", event.Type)
		pl.handler.HandleEvent(*event)
	}
}

func (pl *PushListener) setFlags(flags OctoPrintStateFlags) {
	pl.mu.Lock()
	pl.flags = flags
	pl.flagsValid = true
	pl.mu.Unlock()
}

// mapEvent converts a push event frame into a PrinterEvent. Event types the
// engine does not consume return nil.
func (pl *PushListener) mapEvent(eventType string, payload map[string]interface{}) *PrinterEvent {
	switch eventType {
	case EventPrintDone, EventPrintStarted, EventPrintPaused, EventPrintResumed, EventPrintCancelled, EventPrintFailed:
		event := &PrinterEvent{Type: eventType}
		if name, ok := payload["name"].(string); ok {
			event.JobName = name
		}
		return event
	default:
		return nil
	}
}
