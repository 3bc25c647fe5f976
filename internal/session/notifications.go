package session

import (
	"log/slog"

	"github.com/foxseedlab/roundup/internal/roundup"
)

// deliver applies one notification to the session state and records it in the
// retained log. It is the single entry point for both live pushes and
// reconciliation replay, so every branch must be idempotent.
func (e *Engine) deliver(n roundup.Notification) {
	if e.role == RoleNone {
		return
	}
	if n.SessionID != e.session.ID {
		slog.Debug("dropping notification for another session", "got", n.SessionID, "current", e.session.ID)
		return
	}

	msg, ok := roundup.ParseMessage(n.MessageID)
	if !ok {
		slog.Warn("dropping notification with unknown message id", "message_id", n.MessageID)
		return
	}

	e.retained = append(e.retained, n)

	switch msg {
	case roundup.MsgSessionStarted:
		// The inviter seeds this itself; a replayed copy changes nothing.

	case roundup.MsgInviteeHasAccepted:
		e.inviteeAccepted(n)

	case roundup.MsgInviteeLocationUpdate:
		e.inviteeMoved(n)

	case roundup.MsgInviteeHasArrived:
		e.inviteeArrived(n)

	case roundup.MsgInviteeHasCancelled:
		e.inviteeCancelled(n)

	case roundup.MsgSessionCancelledByInviter:
		e.resetToNoRole("the organizer cancelled the session")
		return

	case roundup.MsgSessionHasEnded:
		e.resetToNoRole("the session has ended")
		return

	case roundup.MsgSessionDead:
		e.resetToNoRole("the session expired")
		return

	case roundup.MsgRoundUpLocationChange, roundup.MsgInstantMessage:
		// Recognized but disabled in this release.
	}

	e.persist()
}

func (e *Engine) inviteeAccepted(n roundup.Notification) {
	if e.role != RoleInviter {
		return
	}
	if _, exists := e.markers[n.InviteeID]; exists {
		return
	}
	e.markers[n.InviteeID] = Marker{
		InviteeID: n.InviteeID,
		Name:      n.Data,
		Latitude:  n.Latitude,
		Longitude: n.Longitude,
	}
	e.session.Status = roundup.SessionActive
	slog.Info("invitee accepted", "invitee_id", n.InviteeID, "name", n.Data)
	e.publish()
}

func (e *Engine) inviteeMoved(n roundup.Notification) {
	if e.role != RoleInviter {
		return
	}
	m, exists := e.markers[n.InviteeID]
	if !exists {
		return
	}
	m.Latitude = n.Latitude
	m.Longitude = n.Longitude
	e.markers[n.InviteeID] = m
	e.publish()
}

func (e *Engine) inviteeArrived(n roundup.Notification) {
	if e.role != RoleInviter {
		return
	}
	if _, exists := e.markers[n.InviteeID]; !exists {
		return
	}
	delete(e.markers, n.InviteeID)
	e.arrivedCount++
	slog.Info("invitee arrived", "invitee_id", n.InviteeID, "still_en_route", len(e.markers))
	e.publish()

	if len(e.markers) == 0 {
		e.autoCloseSession()
	}
}

func (e *Engine) inviteeCancelled(n roundup.Notification) {
	if e.role != RoleInviter {
		return
	}
	if _, exists := e.markers[n.InviteeID]; !exists {
		return
	}
	delete(e.markers, n.InviteeID)
	slog.Info("invitee cancelled", "invitee_id", n.InviteeID)
	e.publish()

	// Close out only if somebody actually made it; otherwise the session
	// stays open for new invitees.
	if len(e.markers) == 0 && e.arrivedCount > 0 {
		e.autoCloseSession()
	}
}
