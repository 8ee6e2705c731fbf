package remote

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"printdock/storage"
)

// Change feed frame types pushed by the remote store
const (
	FrameTypeRecord = "record"
	FrameTypeRemove = "remove"
	FrameTypeError  = "error"
	FrameTypePong   = "pong"
)

// Frame is the websocket message shape of the remote change feed. Payload is
// the store's serialized record form, cached locally but never interpreted.
type Frame struct {
	Type      string          `json:"type"`
	RemoteID  string          `json:"remoteId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

const feedPath = "/api/v1/records/feed"

// FeedConfig contains configuration for the change feed client
type FeedConfig struct {
	InsecureSkipVerify bool // Skip TLS verification (dev/testing only)
}

// Feed maintains a persistent websocket subscription to the remote store's
// change stream and applies incoming record changes onto local records.
// Reconnection with capped exponential backoff is handled internally.
type Feed struct {
	serverURL string
	token     string
	records   Records
	logger    Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool

	reconnectCh chan struct{}
	stopCh      chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc

	reconnectDelay     time.Duration
	maxReconnectDelay  time.Duration
	pingInterval       time.Duration
	writeTimeout       time.Duration
	readTimeout        time.Duration
	handshakeTimeout   time.Duration
	insecureSkipVerify bool
}

// NewFeed creates a change feed client. logger may be nil.
func NewFeed(serverURL, token string, records Records, logger Logger, config FeedConfig) *Feed {
	ctx, cancel := context.WithCancel(context.Background())

	return &Feed{
		serverURL:          serverURL,
		token:              token,
		records:            records,
		logger:             logger,
		reconnectCh:        make(chan struct{}, 1),
		stopCh:             make(chan struct{}),
		ctx:                ctx,
		cancel:             cancel,
		reconnectDelay:     5 * time.Second,
		maxReconnectDelay:  5 * time.Minute,
		pingInterval:       30 * time.Second,
		writeTimeout:       10 * time.Second,
		readTimeout:        60 * time.Second,
		handshakeTimeout:   10 * time.Second,
		insecureSkipVerify: config.InsecureSkipVerify,
	}
}

// Start begins the feed subscription. A failed initial connection is not an
// error; the reconnect loop keeps trying in the background.
func (f *Feed) Start() {
	if err := f.connect(); err != nil {
		if f.logger != nil {
			f.logger.Warn("Initial feed connection failed, will retry", "error", err)
		}
		f.triggerReconnect()
	}

	go f.connectionManager()
}

// Stop gracefully stops the feed client
func (f *Feed) Stop() {
	f.cancel()
	close(f.stopCh)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn != nil {
		f.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := f.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		if err != nil && f.logger != nil {
			f.logger.Debug("Failed to send close frame", "error", err)
		}
		f.conn.Close()
		f.conn = nil
	}
	f.connected = false

	if f.logger != nil {
		f.logger.Info("Change feed stopped")
	}
}

// IsConnected returns whether the feed is currently subscribed
func (f *Feed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// feedURL converts the configured server URL into the websocket endpoint
func (f *Feed) feedURL() (string, error) {
	u, err := url.Parse(f.serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already a websocket URL
	default:
		return "", fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
	}

	u.Path = feedPath

	q := u.Query()
	q.Set("token", f.token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// connect establishes the websocket connection and starts its read and ping
// loops
func (f *Feed) connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
		f.connected = false
	}

	wsURL, err := f.feedURL()
	if err != nil {
		return err
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: f.handshakeTimeout,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: f.insecureSkipVerify},
	}

	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed connection failed: %w", err)
	}

	// Pongs from our keepalive pings extend the read deadline, so a quiet
	// feed does not look like a dead one
	conn.SetReadDeadline(time.Now().Add(f.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.readTimeout))
	})

	f.conn = conn
	f.connected = true

	if f.logger != nil {
		f.logger.Info("Change feed connected")
	}

	go f.readLoop(conn)
	go f.pingLoop(conn)

	return nil
}

func (f *Feed) triggerReconnect() {
	select {
	case f.reconnectCh <- struct{}{}:
	default:
	}
}

// connectionManager reconnects with capped exponential backoff
func (f *Feed) connectionManager() {
	currentDelay := f.reconnectDelay

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-f.stopCh:
			return
		case <-f.reconnectCh:
			if f.logger != nil {
				f.logger.Debug("Reconnecting to change feed", "delay", currentDelay)
			}

			timer := time.NewTimer(currentDelay)
			select {
			case <-f.ctx.Done():
				timer.Stop()
				return
			case <-f.stopCh:
				timer.Stop()
				return
			case <-timer.C:
				if err := f.connect(); err != nil {
					if f.logger != nil {
						f.logger.WarnRateLimited("feed_reconnect", 10*time.Minute,
							"Feed reconnection failed", "error", err)
					}
					currentDelay *= 2
					if currentDelay > f.maxReconnectDelay {
						currentDelay = f.maxReconnectDelay
					}
					f.triggerReconnect()
				} else {
					currentDelay = f.reconnectDelay
				}
			}
		}
	}
}

// readLoop reads frames from one connection until it dies, then triggers a
// reconnect
func (f *Feed) readLoop(conn *websocket.Conn) {
	defer func() {
		f.mu.Lock()
		if f.conn == conn {
			f.connected = false
		}
		f.mu.Unlock()
		f.triggerReconnect()
	}()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-f.stopCh:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(f.readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				if f.logger != nil {
					f.logger.Warn("Feed read error", "error", err)
				}
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			if f.logger != nil {
				f.logger.Warn("Failed to parse feed frame", "error", err)
			}
			continue
		}

		f.handleFrame(frame)
	}
}

// pingLoop sends periodic pings to keep the connection alive
func (f *Feed) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.mu.RLock()
			current := f.conn == conn && f.connected
			f.mu.RUnlock()
			if !current {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(f.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if f.logger != nil {
					f.logger.Debug("Failed to send ping", "error", err)
				}
				return
			}
		}
	}
}

// handleFrame applies one feed frame onto the local records. Frames for
// records this device does not hold are skipped, not errors: the remote
// account may span several devices.
func (f *Feed) handleFrame(frame Frame) {
	ctx, cancel := context.WithTimeout(f.ctx, 10*time.Second)
	defer cancel()

	switch frame.Type {
	case FrameTypeRecord:
		if frame.RemoteID == "" {
			if f.logger != nil {
				f.logger.Warn("Record frame without remote id")
			}
			return
		}
		err := f.records.ApplyRemotePayload(ctx, frame.RemoteID, frame.Payload)
		if err == storage.ErrNotFound {
			if f.logger != nil {
				f.logger.Debug("No local record for remote change", "remoteId", frame.RemoteID)
			}
			return
		}
		if err != nil && f.logger != nil {
			f.logger.Warn("Failed to apply remote change", "remoteId", frame.RemoteID, "error", err)
		}
	case FrameTypeRemove:
		if frame.RemoteID == "" {
			return
		}
		err := f.records.DeleteByRemoteID(ctx, frame.RemoteID)
		if err == storage.ErrNotFound {
			return
		}
		if err != nil && f.logger != nil {
			f.logger.Warn("Failed to apply remote deletion", "remoteId", frame.RemoteID, "error", err)
		}
	case FrameTypeError:
		if f.logger != nil {
			f.logger.Warn("Remote store reported error", "message", frame.Error)
		}
	case FrameTypePong:
		// keepalive reply, connection is healthy
	default:
		if f.logger != nil {
			f.logger.Debug("Unknown feed frame type", "type", frame.Type)
		}
	}
}
