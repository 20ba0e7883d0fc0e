// Package notify raises desktop notifications when a monkey appears.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
)

const (
	Title   = "Monkey Alert"
	Message = "Monkey detected!"
)

// Func sends one notification.
type Func func(title, message string) error

// Desktop sends through the platform notification service.
func Desktop(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Notifier rate-limits notifications to one per cooldown.
type Notifier struct {
	send     Func
	now      func() time.Time
	mu       sync.Mutex
	enabled  bool
	cooldown time.Duration
	lastTime time.Time
}

// New creates a notifier. A nil send uses Desktop.
func New(send Func, cooldownSec float64, enabled bool) *Notifier {
	if send == nil {
		send = Desktop
	}
	return &Notifier{
		send:     send,
		now:      time.Now,
		enabled:  enabled,
		cooldown: time.Duration(cooldownSec * float64(time.Second)),
	}
}

// MonkeyDetected notifies unless disabled or still cooling down. It reports
// whether a notification went out.
func (n *Notifier) MonkeyDetected(probability string) bool {
	n.mu.Lock()
	if !n.enabled {
		n.mu.Unlock()
		return false
	}
	now := n.now()
	if !n.lastTime.IsZero() && now.Sub(n.lastTime) < n.cooldown {
		n.mu.Unlock()
		return false
	}
	n.lastTime = now
	n.mu.Unlock()

	msg := Message
	if probability != "" {
		msg += " (" + probability + ")"
	}
	if err := n.send(Title, msg); err != nil {
		slog.Warn("desktop notification failed", "error", err)
		return false
	}
	return true
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	n.enabled = enabled
	n.mu.Unlock()
	slog.Info("notification state changed", "enabled", enabled)
}

// IsEnabled returns the current enabled state.
func (n *Notifier) IsEnabled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.enabled
}
