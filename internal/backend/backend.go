// Package backend defines the client-side boundary to the coordination
// service. Implementations live under external/backend; the session engine
// depends only on this interface.
package backend

import (
	"context"

	"github.com/foxseedlab/roundup/internal/roundup"
)

// Client performs the table operations a device needs during a session. Every
// call blocks until the backend answers or ctx is done; failures surface in
// Operation.Result, transport errors additionally in the returned error.
type Client interface {
	// StartSession inserts the session row. On success the returned
	// operation carries the backend-assigned session id.
	StartSession(ctx context.Context, s roundup.Session) (Operation, error)

	// JoinSession inserts the invitee row. On success the operation carries
	// the invitee id plus the inviter's current latitude, longitude and
	// alias echoed back by the backend.
	JoinSession(ctx context.Context, inv roundup.Invitee) (Operation, error)

	UpdateInviteeLocation(ctx context.Context, inv roundup.Invitee) (Operation, error)
	InviteeArrived(ctx context.Context, inv roundup.Invitee) (Operation, error)
	CancelInvitee(ctx context.Context, inv roundup.Invitee) (Operation, error)

	CancelSession(ctx context.Context, s roundup.Session) (Operation, error)
	CloseSession(ctx context.Context, s roundup.Session) (Operation, error)

	UpdateInviterChannelURI(ctx context.Context, s roundup.Session) (Operation, error)
	UpdateInviteeChannelURI(ctx context.Context, inv roundup.Invitee) (Operation, error)

	// IsSessionAlive checks whether the given session still accepts
	// participants.
	IsSessionAlive(ctx context.Context, sessionID int) (bool, error)

	// StoredNotifications fetches the backend notification log for
	// reconciliation. recipient selects the inviter or invitee view;
	// inviteeID narrows the invitee view and is ignored for the inviter.
	StoredNotifications(ctx context.Context, sessionID, recipient, inviteeID int) ([]roundup.Notification, error)
}

// Operation is the outcome of one backend call.
type Operation struct {
	Result    Result
	SessionID int
	InviteeID int

	// Inviter echo, populated by JoinSession only.
	InviterLatitude  float64
	InviterLongitude float64
	InviterAlias     string
}

// Result classifies a backend response. The zero value is success so an
// untouched Operation from a failed transport never reads as one; callers
// construct failures through Failure().
type Result int

const (
	ResultSuccess Result = iota
	ResultRetryableFailure
	ResultChannelURIMissing
	ResultInvalidRequestMessage
	ResultSessionNotFound
	ResultSessionDead
	ResultWrongInviterDeviceID
	ResultNotificationFailed
	ResultInsertFailed
	ResultUpdateFailed
	ResultReadFailed
	ResultGeneralFailure
	ResultBadRequest
	ResultUnauthorized
	ResultNotAllowed
	ResultNotificationLimitExceeded
	ResultTooManyInvitees
)

// ParseResult maps a backend response token to a Result. The mapping is
// total: tokens this build does not know collapse to the generic
// non-retryable failure.
func ParseResult(token string) Result {
	switch token {
	case roundup.TokenSuccess, "":
		return ResultSuccess
	case roundup.TokenChannelURINull:
		return ResultChannelURIMissing
	case roundup.TokenInvalidRequestMessageID:
		return ResultInvalidRequestMessage
	case roundup.TokenSessionNotFound:
		return ResultSessionNotFound
	case roundup.TokenSessionDead:
		return ResultSessionDead
	case roundup.TokenWrongInviterShortDeviceID:
		return ResultWrongInviterDeviceID
	case roundup.TokenNotificationFailed:
		return ResultNotificationFailed
	case roundup.TokenInsertFailed:
		return ResultInsertFailed
	case roundup.TokenUpdateFailed:
		return ResultUpdateFailed
	case roundup.TokenReadFailed:
		return ResultReadFailed
	case roundup.TokenBadRequest:
		return ResultBadRequest
	case roundup.TokenUnauthorized:
		return ResultUnauthorized
	case roundup.TokenNotAllowed:
		return ResultNotAllowed
	case roundup.TokenNotificationLimit:
		return ResultNotificationLimitExceeded
	case roundup.TokenTooManyInvitees:
		return ResultTooManyInvitees
	}
	return ResultGeneralFailure
}

// Retryable reports whether the same request may succeed if repeated.
// Transport-level failures are the only retryable class; every backend
// verdict is final.
func (r Result) Retryable() bool {
	return r == ResultRetryableFailure
}

// OK reports success.
func (r Result) OK() bool {
	return r == ResultSuccess
}

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultRetryableFailure:
		return "retryable-failure"
	case ResultChannelURIMissing:
		return "channel-uri-missing"
	case ResultInvalidRequestMessage:
		return "invalid-request-message"
	case ResultSessionNotFound:
		return "session-not-found"
	case ResultSessionDead:
		return "session-dead"
	case ResultWrongInviterDeviceID:
		return "wrong-inviter-device-id"
	case ResultNotificationFailed:
		return "notification-failed"
	case ResultInsertFailed:
		return "insert-failed"
	case ResultUpdateFailed:
		return "update-failed"
	case ResultReadFailed:
		return "read-failed"
	case ResultGeneralFailure:
		return "general-failure"
	case ResultBadRequest:
		return "bad-request"
	case ResultUnauthorized:
		return "unauthorized"
	case ResultNotAllowed:
		return "not-allowed"
	case ResultNotificationLimitExceeded:
		return "notification-limit-exceeded"
	case ResultTooManyInvitees:
		return "too-many-invitees"
	}
	return "unknown"
}

// Failure wraps a Result as an Operation with no payload.
func Failure(r Result) Operation {
	return Operation{Result: r, SessionID: roundup.UnassignedID, InviteeID: roundup.UnassignedID}
}
