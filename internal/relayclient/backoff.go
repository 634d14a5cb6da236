package relayclient

import "time"

// backoffSchedule mirrors original_source/cli/src/tunnel/reconnect.rs's
// BACKOFF table: first reconnect is immediate, then it ramps up.
var backoffSchedule = []time.Duration{
	0,
	100 * time.Millisecond,
	1 * time.Second,
	5 * time.Second,
}

func backoffDelay(index int) time.Duration {
	if index >= len(backoffSchedule) {
		index = len(backoffSchedule) - 1
	}
	return backoffSchedule[index]
}

// readTimeout is the watchdog: if no WebSocket frame arrives for this
// long, the session is assumed dead and the client reconnects.
const readTimeout = 45 * time.Second

// handshakeTimeout bounds how long the client waits for a Started/Error
// reply after sending Start.
const handshakeTimeout = 10 * time.Second

// pingInterval is how often the client sends a keepalive Ping while idle.
const pingInterval = 30 * time.Second

// sessionEnd explains why a connected session ended, driving the outer
// reconnect loop's next action.
type sessionEnd int

const (
	sessionDisconnected sessionEnd = iota // transport/network error, retry same token
	sessionTokenCollision                  // server reported token_in_use, mint a new token
	sessionQuit                             // caller requested shutdown
)
