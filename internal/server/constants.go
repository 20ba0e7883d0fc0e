// Package server exposes the detection controls over REST and WebSocket.
package server

import "time"

const (
	// Per-connection WebSocket rate limit (sliding window)
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// Bound on a single broadcast write to a slow client
	BroadcastWriteTimeout = 5 * time.Second
	// Events buffered per connection before new ones are dropped
	SendQueueSize = 64

	MaxRequestBody = 64 << 10

	// Upper bound for /api/history?seconds=
	MaxHistorySeconds = 24 * 60 * 60
)
