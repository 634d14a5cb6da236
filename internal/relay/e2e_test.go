package relay

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// TestForwardingRoundTrip exercises the scenario 6 end-to-end path: a
// connected CLI peer receives a forwarded request and the origin HTTP
// caller sees exactly the peer's reply.
func TestForwardingRoundTrip(t *testing.T) {
	limits := Limits{
		MaxPayloadSize:      1 << 20,
		MaxResponseBodySize: 1 << 20,
		MaxWebhooksPerToken: 50,
		MaxTotalConnections: 10,
		MaxConnectionsPerIP: 10,
		ResponseDeadline:    2 * time.Second,
		HandshakeTimeout:    2 * time.Second,
		IdleTimeout:         2 * time.Second,
	}
	srv := NewServer("http://example.invalid", limits, nil, nil, nil)

	router := mux.NewRouter()
	srv.Register(router)
	ts := httptest.NewServer(router)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	token := "c_AAAAAAAAAAAAAAAAAAAAAAAAAAA"
	if err := conn.WriteJSON(ClientMessage{Type: clientMsgStart, Data: &ClientMessageData{Version: 1, Token: token}}); err != nil {
		t.Fatalf("write start: %v", err)
	}

	var started ServerMessage
	if err := conn.ReadJSON(&started); err != nil {
		t.Fatalf("read started: %v", err)
	}
	if started.Type != serverMsgStarted {
		t.Fatalf("expected started, got %+v", started)
	}

	done := make(chan error, 1)
	go func() {
		var req ServerMessage
		if err := conn.ReadJSON(&req); err != nil {
			done <- err
			return
		}
		if req.Type != serverMsgRequest {
			done <- nil
			return
		}
		if req.Data.Method != http.MethodPost || req.Data.Path != "/hook" || req.Data.Query != "x=1" {
			done <- nil
			return
		}
		if req.Data.Headers["x-custom"] != "v" {
			done <- nil
			return
		}
		gotBody, _ := base64.StdEncoding.DecodeString(req.Data.Body)
		if string(gotBody) != `{"k":1}` {
			done <- nil
			return
		}

		respBody := base64.StdEncoding.EncodeToString([]byte("ok"))
		reply := ClientMessage{Type: clientMsgResponse, Data: &ClientMessageData{
			Version: 1, ID: req.Data.ID, Status: 201,
			Headers: map[string]string{"x-echo": "v"}, Body: respBody,
		}}
		done <- conn.WriteJSON(reply)
	}()

	u := &url.URL{Scheme: "http", Host: strings.TrimPrefix(ts.URL, "http://"), Path: "/in/" + token + "/hook", RawQuery: "x=1"}
	httpReq, err := http.NewRequest(http.MethodPost, u.String(), bytes.NewReader([]byte(`{"k":1}`)))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	httpReq.Header.Set("X-Custom", "v")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("origin request: %v", err)
	}
	defer resp.Body.Close()

	if err := <-done; err != nil {
		t.Fatalf("peer goroutine: %v", err)
	}

	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if resp.Header.Get("x-echo") != "v" {
		t.Fatalf("expected echoed header, got %q", resp.Header.Get("x-echo"))
	}
	body := make([]byte, 2)
	n, _ := resp.Body.Read(body)
	if string(body[:n]) != "ok" {
		t.Fatalf("expected body 'ok', got %q", string(body[:n]))
	}
}

// TestTokenCollisionSecondPeerRejected exercises scenario 5: two peers
// racing for the same token, the second gets token_in_use.
func TestTokenCollisionSecondPeerRejected(t *testing.T) {
	limits := Limits{HandshakeTimeout: 2 * time.Second, MaxTotalConnections: 10, MaxConnectionsPerIP: 10}
	srv := NewServer("http://example.invalid", limits, nil, nil, nil)
	router := mux.NewRouter()
	srv.Register(router)
	ts := httptest.NewServer(router)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	token := "c_BBBBBBBBBBBBBBBBBBBBBBBBBBB"

	first, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial first: %v", err)
	}
	defer first.Close()
	if err := first.WriteJSON(ClientMessage{Type: clientMsgStart, Data: &ClientMessageData{Version: 1, Token: token}}); err != nil {
		t.Fatalf("write start first: %v", err)
	}
	var firstReply ServerMessage
	if err := first.ReadJSON(&firstReply); err != nil || firstReply.Type != serverMsgStarted {
		t.Fatalf("expected first peer started, got %+v err=%v", firstReply, err)
	}

	second, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial second: %v", err)
	}
	defer second.Close()
	if err := second.WriteJSON(ClientMessage{Type: clientMsgStart, Data: &ClientMessageData{Version: 1, Token: token}}); err != nil {
		t.Fatalf("write start second: %v", err)
	}
	var secondReply ServerMessage
	if err := second.ReadJSON(&secondReply); err != nil {
		t.Fatalf("read second reply: %v", err)
	}
	if secondReply.Type != serverMsgError || secondReply.Data.Code != "token_in_use" {
		t.Fatalf("expected token_in_use error, got %+v", secondReply)
	}
}
