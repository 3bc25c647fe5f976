package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/foxseedlab/roundup/internal/backend"
	"github.com/foxseedlab/roundup/internal/invite"
	"github.com/foxseedlab/roundup/internal/location"
	"github.com/foxseedlab/roundup/internal/roundup"
)

// All functions in this file run on the owner goroutine. Network calls are
// spawned onto their own goroutine and post a completion closure back into
// the mailbox; the busy flag stays set across that gap.

func (e *Engine) startSession(meet location.Point, address string) error {
	if e.busy {
		return ErrOperationInFlight
	}
	if e.role != RoleNone {
		return ErrAlreadyInSession
	}
	e.busy = true

	sess := roundup.Session{
		ID:            roundup.UnassignedID,
		Timestamp:     time.Now().UTC(),
		Name:          e.cfg.DeviceAlias,
		Latitude:      meet.Latitude,
		Longitude:     meet.Longitude,
		Address:       address,
		ShortDeviceID: e.deviceID,
	}

	e.whenChannelReady(func() {
		sess.Channel = e.channel.URI()
		go func() {
			ctx, cancel := e.opContext()
			defer cancel()
			op, err := e.backend.StartSession(ctx, sess)
			e.post(func() { e.finishStartSession(sess, op, err) })
		}()
	}, func() {
		e.busy = false
		e.publishUserError("push channel unavailable, session not started")
	})
	return nil
}

func (e *Engine) finishStartSession(sess roundup.Session, op backend.Operation, err error) {
	e.busy = false
	if err != nil {
		slog.Error("session start failed", "error", err)
		e.publishUserError("session start failed: " + op.Result.String())
		return
	}
	if !op.Result.OK() {
		e.publishUserError("session start rejected: " + op.Result.String())
		return
	}

	sess.ID = op.SessionID
	sess.Status = roundup.SessionStarted
	e.role = RoleInviter
	e.session = sess
	e.meet = location.Point{Latitude: sess.Latitude, Longitude: sess.Longitude}
	e.markers = make(map[int]Marker)
	e.arrivedCount = 0
	e.longJourney = false

	// Seed the retained log so reconciliation can match the backend's own
	// SessionStarted record instead of replaying it.
	e.retained = []roundup.Notification{{
		ID:            roundup.UnassignedID,
		Recipient:     roundup.RecipientInviter,
		SessionID:     sess.ID,
		InviteeID:     roundup.UnassignedID,
		MessageID:     string(roundup.MsgSessionStarted),
		ShortDeviceID: e.deviceID,
		Latitude:      sess.Latitude,
		Longitude:     sess.Longitude,
	}}

	e.persist()
	slog.Info("session started", "session_id", sess.ID)
	e.publish()
}

func (e *Engine) acceptInvite(code invite.Code) error {
	if e.busy {
		return ErrOperationInFlight
	}
	if e.role != RoleNone {
		return ErrAlreadyInSession
	}
	e.busy = true

	// Claim the invitee role before the join lands: the inviter's first
	// push can race the join response, and the handler must already know
	// which side of the session it is on.
	e.role = RoleInvitee

	inv := roundup.Invitee{
		ID:                   roundup.UnassignedID,
		SessionID:            code.SessionID,
		Timestamp:            time.Now().UTC(),
		Name:                 e.cfg.DeviceAlias,
		InviterShortDeviceID: code.ShortDeviceID,
		Status:               roundup.InviteeAccepted,
	}
	if e.lastFix != nil {
		inv.Latitude = e.lastFix.Latitude
		inv.Longitude = e.lastFix.Longitude
	}

	e.whenChannelReady(func() {
		inv.Channel = e.channel.URI()
		go func() {
			ctx, cancel := e.opContext()
			defer cancel()
			op, err := e.backend.JoinSession(ctx, inv)
			e.post(func() { e.finishAcceptInvite(code, inv, op, err) })
		}()
	}, func() {
		e.busy = false
		e.role = RoleNone
		e.publishUserError("push channel unavailable, invite not accepted")
	})
	return nil
}

func (e *Engine) finishAcceptInvite(code invite.Code, inv roundup.Invitee, op backend.Operation, err error) {
	e.busy = false
	if err != nil || !op.Result.OK() {
		e.role = RoleNone // roll back the early claim
		if err != nil {
			slog.Error("invite accept failed", "error", err)
		}
		e.publishUserError("could not join session: " + op.Result.String())
		return
	}

	inv.ID = op.InviteeID
	e.invitee = inv
	e.meet = location.Point{Latitude: op.InviterLatitude, Longitude: op.InviterLongitude}
	e.session = roundup.Session{
		ID:            op.SessionID,
		Name:          op.InviterAlias,
		Latitude:      op.InviterLatitude,
		Longitude:     op.InviterLongitude,
		ShortDeviceID: code.ShortDeviceID,
		Status:        roundup.SessionActive,
	}

	e.retained = []roundup.Notification{{
		ID:            roundup.UnassignedID,
		Recipient:     roundup.RecipientInvitee,
		SessionID:     op.SessionID,
		InviteeID:     op.InviteeID,
		MessageID:     string(roundup.MsgInviteeHasAccepted),
		Data:          op.InviterAlias,
		ShortDeviceID: code.ShortDeviceID,
		Latitude:      op.InviterLatitude,
		Longitude:     op.InviterLongitude,
	}}

	e.throttle.Reset(location.ModeWalking)
	e.longJourney = false
	if e.lastFix != nil {
		e.longJourney = e.throttle.AdaptForJourney(location.Distance(*e.lastFix, e.meet))
	}

	e.persist()
	slog.Info("joined session", "session_id", op.SessionID, "invitee_id", op.InviteeID)
	e.publish()
}

func (e *Engine) cancelSession() error {
	if e.busy {
		return ErrOperationInFlight
	}
	if e.role == RoleNone {
		return ErrNoSession
	}
	if e.role != RoleInviter {
		return ErrWrongRole
	}
	e.busy = true

	sess := e.session
	go func() {
		ctx, cancel := e.opContext()
		defer cancel()
		op, err := e.backend.CancelSession(ctx, sess)
		e.post(func() { e.finishCancelSession(op, err) })
	}()
	return nil
}

func (e *Engine) finishCancelSession(op backend.Operation, err error) {
	e.busy = false
	// The session dies locally whatever the backend said; a failed cancel
	// is eventually cleaned up by the expiry sweep.
	if err != nil || !op.Result.OK() {
		slog.Warn("session cancel not acknowledged", "result", op.Result.String(), "error", err)
		e.publishBackgroundError("session cancel not acknowledged: " + op.Result.String())
	}
	e.resetToNoRole("session cancelled")
}

func (e *Engine) cancelInvitation() error {
	if e.busy {
		return ErrOperationInFlight
	}
	if e.role == RoleNone {
		return ErrNoSession
	}
	if e.role != RoleInvitee {
		return ErrWrongRole
	}
	e.busy = true

	inv := e.invitee
	inv.Status = roundup.InviteeCancelled
	go func() {
		ctx, cancel := e.opContext()
		defer cancel()
		op, err := e.backend.CancelInvitee(ctx, inv)
		e.post(func() { e.finishCancelInvitation(op, err) })
	}()
	return nil
}

func (e *Engine) finishCancelInvitation(op backend.Operation, err error) {
	e.busy = false
	if err != nil || !op.Result.OK() {
		slog.Warn("invitation cancel not acknowledged", "result", op.Result.String(), "error", err)
		e.publishBackgroundError("invitation cancel not acknowledged: " + op.Result.String())
	}
	e.resetToNoRole("left the session")
}

// autoCloseSession ends the session once every invitee has arrived or
// cancelled. Triggered from the push handler, never by a user command, so a
// busy engine just skips it: reconciliation will observe the final arrival
// again and retry.
func (e *Engine) autoCloseSession() {
	if e.busy || e.role != RoleInviter {
		return
	}
	e.busy = true

	sess := e.session
	go func() {
		ctx, cancel := e.opContext()
		defer cancel()
		op, err := e.backend.CloseSession(ctx, sess)
		e.post(func() { e.finishCloseSession(op, err) })
	}()
}

func (e *Engine) finishCloseSession(op backend.Operation, err error) {
	e.busy = false
	if err != nil || !op.Result.OK() {
		slog.Warn("session close not acknowledged", "result", op.Result.String(), "error", err)
		e.publishBackgroundError("session close not acknowledged: " + op.Result.String())
	}
	e.resetToNoRole("everyone arrived")
}

func (e *Engine) handleLocation(u location.Update) {
	p := u.Point
	e.lastFix = &p

	if e.role != RoleInvitee {
		return
	}
	switch e.invitee.Status {
	case roundup.InviteeAccepted, roundup.InviteeEnRoute:
	default:
		return
	}

	e.invitee.Latitude = p.Latitude
	e.invitee.Longitude = p.Longitude

	// Arrival is a geometric fact: it is decided here and stands whether or
	// not the backend ever hears about it.
	if location.CloseEnough(p, e.meet, e.cfg.ArrivalToleranceM) {
		e.invitee.Status = roundup.InviteeArrived
		e.persist()
		slog.Info("arrived at meeting point", "session_id", e.session.ID, "invitee_id", e.invitee.ID)
		e.publish()
		e.broadcastInvitee(e.backend.InviteeArrived, "arrival")
		return
	}

	if e.invitee.Status == roundup.InviteeAccepted {
		e.invitee.Status = roundup.InviteeEnRoute
		e.publish()
	}
	if !e.throttle.ShouldBroadcast(p) {
		return
	}
	e.broadcastInvitee(e.backend.UpdateInviteeLocation, "location update")
}

// broadcastInvitee sends the current invitee row via send once the channel is
// ready. Best-effort: a timeout drops the send silently, a backend rejection
// is only a background error.
func (e *Engine) broadcastInvitee(send func(ctx context.Context, inv roundup.Invitee) (backend.Operation, error), what string) {
	inv := e.invitee
	e.whenChannelReady(func() {
		go func() {
			ctx, cancel := e.opContext()
			defer cancel()
			op, err := send(ctx, inv)
			if err != nil || !op.Result.OK() {
				slog.Warn("broadcast failed", "what", what, "result", op.Result.String(), "error", err)
				e.post(func() { e.publishBackgroundError(what + " broadcast failed: " + op.Result.String()) })
			}
		}()
	}, func() {
		slog.Debug("broadcast dropped, channel never became ready", "what", what)
	})
}

// whenChannelReady runs proceed on the owner goroutine once the push channel
// has a URI, or onTimeout if the wait budget expires first. If another
// continuation is already parked the new one is dropped via onTimeout.
func (e *Engine) whenChannelReady(proceed, onTimeout func()) {
	err := e.waiter.StartWaiting(proceed, func() {
		e.post(onTimeout)
	})
	if err != nil {
		onTimeout()
	}
}

func (e *Engine) resetToNoRole(reason string) {
	e.role = RoleNone
	e.session = roundup.Session{ID: roundup.UnassignedID}
	e.invitee = roundup.Invitee{ID: roundup.UnassignedID}
	e.meet = location.Point{}
	e.retained = nil
	e.markers = make(map[int]Marker)
	e.arrivedCount = 0
	e.longJourney = false
	e.waiter.Cancel()

	e.clearPersisted()
	slog.Info("session state reset", "reason", reason)
	e.publishReason(reason)
}
