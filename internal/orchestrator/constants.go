// Package orchestrator runs detection sessions: it acquires the model and the
// camera, drives the capture loop and tears everything down again.
package orchestrator

import "time"

const (
	HistoryMaxEntries  = 500
	HistoryEventBuffer = 256

	// UnloadTimeout bounds the best-effort model unload at session stop.
	UnloadTimeout = 5 * time.Second
)

// Status display texts.
const (
	MessageStopped  = "Detection stopped"
	MessageStarting = "Loading model..."
	MessageWaiting  = "Waiting for first frame..."
	MessageMonkey   = "Monkey Detected!"
	MessageNoMonkey = "No Monkey Detected"
)
