package relay

// ClientMessage is the tagged union of messages the CLI peer sends to the
// relay server over the WebSocket. Field presence follows the type tag,
// matching original_source/play/src/relay/message.rs's serde encoding.
type ClientMessage struct {
	Type string               `json:"type"`
	Data *ClientMessageData   `json:"data,omitempty"`
}

type ClientMessageData struct {
	// Start
	Token string `json:"token,omitempty"`

	// Response
	ID      string            `json:"id,omitempty"`
	Status  int               `json:"status,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"` // base64

	Version uint16 `json:"version,omitempty"`
}

const (
	clientMsgStart    = "start"
	clientMsgResponse = "response"
	clientMsgPing     = "ping"
)

// ServerMessage is the tagged union of messages the relay server sends to
// the CLI peer.
type ServerMessage struct {
	Type string             `json:"type"`
	Data *ServerMessageData `json:"data,omitempty"`
}

type ServerMessageData struct {
	// Started
	WebhookURL string `json:"webhook_url,omitempty"`
	ViewURL    string `json:"view_url,omitempty"`

	// Request
	ID      string            `json:"id,omitempty"`
	Method  string            `json:"method,omitempty"`
	Path    string            `json:"path,omitempty"`
	Body    string            `json:"body,omitempty"` // base64
	Headers map[string]string `json:"headers,omitempty"`
	Query   string            `json:"query,omitempty"`

	// Error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	Version uint16 `json:"version,omitempty"`
}

const (
	serverMsgStarted = "started"
	serverMsgRequest = "request"
	serverMsgError   = "error"
	serverMsgPong    = "pong"
)

func newStarted(webhookURL, viewURL string) ServerMessage {
	return ServerMessage{Type: serverMsgStarted, Data: &ServerMessageData{
		Version: 1, WebhookURL: webhookURL, ViewURL: viewURL,
	}}
}

func newRequest(id, method, path, bodyB64 string, headers map[string]string, query string) ServerMessage {
	return ServerMessage{Type: serverMsgRequest, Data: &ServerMessageData{
		Version: 1, ID: id, Method: method, Path: path, Body: bodyB64, Headers: headers, Query: query,
	}}
}

func newError(code, message string) ServerMessage {
	return ServerMessage{Type: serverMsgError, Data: &ServerMessageData{
		Version: 1, Code: code, Message: message,
	}}
}

func newPong() ServerMessage {
	return ServerMessage{Type: serverMsgPong}
}
