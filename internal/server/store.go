package server

import (
	"context"
	"errors"
	"time"

	"github.com/foxseedlab/roundup/internal/roundup"
)

// ErrNotFound is returned by Get* methods when no row matches.
var ErrNotFound = errors.New("not found")

type SessionStore interface {
	InsertSession(ctx context.Context, s roundup.Session) (roundup.Session, error)
	GetSession(ctx context.Context, id int) (roundup.Session, error)
	UpdateSession(ctx context.Context, s roundup.Session) error
	// ExpiredSessions lists sessions created before cutoff that have not
	// been marked dead yet.
	ExpiredSessions(ctx context.Context, cutoff time.Time) ([]roundup.Session, error)
}

type InviteeStore interface {
	InsertInvitee(ctx context.Context, inv roundup.Invitee) (roundup.Invitee, error)
	GetInvitee(ctx context.Context, id int) (roundup.Invitee, error)
	UpdateInvitee(ctx context.Context, inv roundup.Invitee) error
	InviteesBySession(ctx context.Context, sessionID int) ([]roundup.Invitee, error)
	DeleteInviteesBySession(ctx context.Context, sessionID int) error
}

type NotificationStore interface {
	InsertNotification(ctx context.Context, n roundup.Notification) (roundup.Notification, error)
	// NotificationsBySession lists log rows for one recipient side, oldest
	// first. When recipient is the invitee side, only rows addressed to
	// inviteeID are returned.
	NotificationsBySession(ctx context.Context, sessionID, recipient, inviteeID int) ([]roundup.Notification, error)
	DeleteNotificationsBySession(ctx context.Context, sessionID int) error
}

// Store is the persistence boundary of the coordination service.
type Store interface {
	SessionStore
	InviteeStore
	NotificationStore
	Close()
}
