package http

import "time"

// Generic HTTP / JSON strings
const (
	HTTPErrorForbiddenText     = "forbidden"
	HTTPErrorForbiddenHostText = "forbidden host"
	HTTPErrorBadRequestText    = "bad request"
	HTTPErrorInvalidJSONText   = "invalid JSON"
	HTTPErrorInvalidTokenID    = "invalid token id"
)

// Event stream message types
const (
	EventTypeConnected = "connected"
	EventTypeSession   = "session"
	EventTypeViews     = "views"
	EventTypeHeartbeat = "heartbeat"
)

const (
	DefaultListenAddr = "127.0.0.1:6138"

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second

	// Intents wait for a receipt, so writes may take a while.
	intentTimeout = 3 * time.Minute

	// websocket
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	clientBuffer   = 32
)
