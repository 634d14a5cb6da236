// Package relayclient implements C12: the tunnel CLI client that connects
// to a relay server (internal/relay), registers a capture token, and
// forwards incoming webhook requests to a local HTTP target, relaying the
// target's response back over the WebSocket.
//
// Grounded on original_source/cli/src/tunnel/{message,reconnect,forwarder,
// token}.rs, adapted from tokio-tungstenite/mpsc to gorilla/websocket and
// goroutines/channels the way internal/websocket/dag_streamer.go does for
// the server side.
package relayclient

// clientMessage mirrors the wire shape internal/relay/message.go's
// ClientMessage decodes on the server side; this package keeps its own
// copy since it is built as an independent binary (cmd/relay-agent).
type clientMessage struct {
	Type string             `json:"type"`
	Data *clientMessageData `json:"data,omitempty"`
}

type clientMessageData struct {
	Version uint16 `json:"version,omitempty"`

	// start
	Token string `json:"token,omitempty"`

	// response
	ID      string            `json:"id,omitempty"`
	Status  int               `json:"status,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"` // base64
}

const (
	clientMsgStart    = "start"
	clientMsgResponse = "response"
	clientMsgPing     = "ping"
)

func newStartMessage(token string) clientMessage {
	return clientMessage{Type: clientMsgStart, Data: &clientMessageData{Version: 1, Token: token}}
}

func newResponseMessage(id string, status int, headers map[string]string, bodyB64 string) clientMessage {
	return clientMessage{Type: clientMsgResponse, Data: &clientMessageData{
		Version: 1, ID: id, Status: status, Headers: headers, Body: bodyB64,
	}}
}

func newPingMessage() clientMessage {
	return clientMessage{Type: clientMsgPing}
}

// serverMessage mirrors internal/relay/message.go's ServerMessage.
type serverMessage struct {
	Type string             `json:"type"`
	Data *serverMessageData `json:"data,omitempty"`
}

type serverMessageData struct {
	Version uint16 `json:"version,omitempty"`

	// started
	WebhookURL string `json:"webhook_url,omitempty"`
	ViewURL    string `json:"view_url,omitempty"`

	// request
	ID      string            `json:"id,omitempty"`
	Method  string            `json:"method,omitempty"`
	Path    string            `json:"path,omitempty"`
	Body    string            `json:"body,omitempty"` // base64
	Headers map[string]string `json:"headers,omitempty"`
	Query   string            `json:"query,omitempty"`

	// error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	serverMsgStarted = "started"
	serverMsgRequest = "request"
	serverMsgError   = "error"
	serverMsgPong    = "pong"
)
