// Package push defines the notification channel boundary. A channel delivers
// backend-originated notifications to the device and hands out the URI the
// backend addresses this device by.
package push

import (
	"context"

	"github.com/foxseedlab/roundup/internal/roundup"
)

// ErrorKind classifies channel failures for the session engine's recovery
// policy.
type ErrorKind int

const (
	ErrorUnknown ErrorKind = iota
	ErrorChannelOpenFailed
	ErrorNotificationRateTooHigh
	ErrorPowerLevelChanged
	ErrorPayloadFormat
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorChannelOpenFailed:
		return "channel-open-failed"
	case ErrorNotificationRateTooHigh:
		return "notification-rate-too-high"
	case ErrorPowerLevelChanged:
		return "power-level-changed"
	case ErrorPayloadFormat:
		return "payload-format"
	}
	return "unknown"
}

// Handlers is the set of callbacks a channel owner registers before Connect.
// All callbacks are invoked from the channel's reader goroutine; owners must
// hand the work off to their own goroutine rather than block in them.
type Handlers struct {
	OnNotification func(roundup.Notification)
	OnOpen         func(uri string)
	OnError        func(kind ErrorKind, err error)
	OnDisconnect   func(err error)
}

// Channel is a live push connection.
type Channel interface {
	// Connect dials the push endpoint and begins delivering events through
	// the registered handlers. It returns once the channel is open and a
	// URI has been assigned.
	Connect(ctx context.Context) error
	Close() error

	// URI is the address the backend uses to reach this device. Empty until
	// the channel has opened.
	URI() string
	Connected() bool

	SetHandlers(h Handlers)
}
