// Package store is the client's local key/value persistence boundary. The
// engine flattens its state through it so a later launch can resume a live
// session.
package store

import "errors"

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("store: key not found")

// Keys the session engine persists under.
const (
	KeyDeviceID      = "device_id"
	KeySession       = "session"
	KeyInvitee       = "invitee"
	KeyRole          = "role"
	KeyNotifications = "notifications"
)

// Store is a small durable string map.
type Store interface {
	Put(key, value string) error
	// Get returns ErrNotFound when the key is absent.
	Get(key string) (string, error)
	Delete(key string) error
	Close() error
}
