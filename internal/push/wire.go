package push

import "github.com/foxseedlab/roundup/internal/roundup"

// Envelope is the frame format on the push socket, shared between the client
// channel and the server hub.
type Envelope struct {
	Kind         string                `json:"kind"`
	URI          string                `json:"uri,omitempty"`
	Notification *roundup.Notification `json:"notification,omitempty"`
	Error        string                `json:"error,omitempty"`
}

// Envelope kinds.
const (
	KindChannel      = "channel" // handshake: carries the assigned URI
	KindNotification = "notification"
	KindError        = "error"
)

// Error signals the hub may send inside a KindError envelope.
const (
	WireErrRateTooHigh = "rate-too-high"
)
