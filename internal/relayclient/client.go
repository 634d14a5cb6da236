package relayclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// Client runs the outer reconnection loop against a relay server,
// forwarding inbound webhook requests to a local HTTP target. It is
// grounded on original_source/cli/src/tunnel/reconnect.rs's
// reconnect_loop, adapted from tokio channels to a single reader
// goroutine plus a buffered write channel.
type Client struct {
	RelayURL  string
	Forwarder *Forwarder
	Log       *slog.Logger

	// OnStarted is invoked once per successful handshake with the
	// webhook/view URLs the server assigned, so the caller (cmd/relay-agent)
	// can print them without this package knowing about terminal output.
	OnStarted func(webhookURL, viewURL string, reconnect bool)
}

// NewClient builds a Client targeting relayURL (e.g.
// "wss://relay.example.com/ws") and forwarding to fwd.
func NewClient(relayURL string, fwd *Forwarder) *Client {
	log := slog.Default()
	return &Client{RelayURL: relayURL, Forwarder: fwd, Log: log}
}

// Run executes the reconnect loop until ctx is canceled. token is the
// initial capture token to request; on a token_in_use collision the
// client mints a fresh one and retries.
func (c *Client) Run(ctx context.Context, token string) error {
	backoffIndex := 0
	var lastConnectedAt time.Time
	reconnectCount := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if delay := backoffDelay(backoffIndex); delay > 0 {
			c.Log.Debug("reconnecting", "delay", delay, "attempt", reconnectCount)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
		}

		conn, webhookURL, viewURL, err := c.handshake(ctx, token)
		if err != nil {
			if errors.Is(err, errTokenCollision) {
				token, err = GenerateToken()
				if err != nil {
					return err
				}
				backoffIndex = 0
				c.Log.Warn("token collision detected, regenerated token")
				continue
			}
			if errors.Is(err, errFatalHandshake) {
				return err
			}
			c.Log.Warn("connection failed", "error", err)
			backoffIndex = min(backoffIndex+1, len(backoffSchedule)-1)
			reconnectCount++
			continue
		}

		if !lastConnectedAt.IsZero() && time.Since(lastConnectedAt) > 10*time.Second {
			backoffIndex = 0
		}
		lastConnectedAt = time.Now()

		if c.OnStarted != nil {
			c.OnStarted(webhookURL, viewURL, reconnectCount > 0)
		}

		end := c.runSession(ctx, conn)

		switch end {
		case sessionQuit:
			return nil
		case sessionTokenCollision:
			token, err = GenerateToken()
			if err != nil {
				return err
			}
			backoffIndex = 0
			reconnectCount++
			c.Log.Warn("token collision during session, regenerated token")
		default:
			backoffIndex = min(backoffIndex+1, len(backoffSchedule)-1)
			reconnectCount++
			c.Log.Debug("session disconnected, will reconnect")
		}
	}
}

var (
	errTokenCollision = errors.New("relayclient: token already in use")
	errFatalHandshake = errors.New("relayclient: fatal handshake error")
)

// handshake dials the relay server, sends Start, and waits for Started.
func (c *Client) handshake(ctx context.Context, token string) (*websocket.Conn, string, string, error) {
	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.RelayURL, nil)
	if err != nil {
		return nil, "", "", err
	}

	start := newStartMessage(token)
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		return nil, "", "", err
	}

	deadline := time.Now().Add(handshakeTimeout)
	conn.SetReadDeadline(deadline)

	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			conn.Close()
			return nil, "", "", err
		}
		switch msg.Type {
		case serverMsgStarted:
			conn.SetReadDeadline(time.Time{})
			return conn, msg.Data.WebhookURL, msg.Data.ViewURL, nil
		case serverMsgError:
			conn.Close()
			if msg.Data != nil && msg.Data.Code == "token_in_use" {
				return nil, "", "", errTokenCollision
			}
			return nil, "", "", errFatalHandshake
		default:
			continue
		}
	}
}

// runSession owns conn for the lifetime of one connected session: it
// reads server messages, forwards Request messages to the local target,
// and writes Response/Ping frames back, until the connection drops or
// the caller cancels ctx.
func (c *Client) runSession(ctx context.Context, conn *websocket.Conn) sessionEnd {
	defer conn.Close()

	writeCh := make(chan clientMessage, 64)
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-writeCh:
				if !ok {
					return
				}
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteJSON(newPingMessage()); err != nil {
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	defer close(writeCh)

	for {
		select {
		case <-ctx.Done():
			return sessionQuit
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return sessionDisconnected
		}

		switch msg.Type {
		case serverMsgRequest:
			c.handleRequest(msg.Data, writeCh)
		case serverMsgError:
			if msg.Data != nil && msg.Data.Code == "token_in_use" {
				return sessionTokenCollision
			}
			c.Log.Warn("relay error", "code", msg.Data.Code, "message", msg.Data.Message)
		case serverMsgPong:
			// keepalive ack, nothing to do
		default:
			c.Log.Debug("unexpected server message", "type", msg.Type)
		}
	}
}

func (c *Client) handleRequest(data *serverMessageData, writeCh chan<- clientMessage) {
	if data == nil {
		return
	}
	body, err := base64.StdEncoding.DecodeString(data.Body)
	if err != nil {
		body = []byte(data.Body)
	}

	path := data.Path
	if data.Query != "" {
		path = path + "?" + data.Query
	}

	result := c.Forwarder.Forward(data.Method, path, data.Headers, body)

	if result.Err != nil {
		c.Log.Warn("forward failed", "request_id", data.ID, "error", result.Err)
		writeCh <- newResponseMessage(data.ID, 502, map[string]string{"Content-Type": "text/plain"},
			base64.StdEncoding.EncodeToString([]byte(result.Err.Error())))
		return
	}

	writeCh <- newResponseMessage(data.ID, result.StatusCode, result.Headers,
		base64.StdEncoding.EncodeToString(result.Body))
}

// marshalForLog is used only by tests that want a human-readable
// rendering of a clientMessage without exporting the type.
func marshalForLog(msg clientMessage) string {
	b, _ := json.Marshal(msg)
	return string(b)
}
