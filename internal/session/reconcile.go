package session

import (
	"log/slog"

	"github.com/foxseedlab/roundup/internal/roundup"
)

// syncNotifications reconciles local state against the backend notification
// log. Used after resume, reconnect, or any stretch where pushes may have
// been missed.
func (e *Engine) syncNotifications() error {
	if e.role == RoleNone {
		return nil
	}
	if !e.channel.Connected() {
		// Offline: nothing to fetch against; pushes we missed stay in the
		// backend log for the next attempt.
		return nil
	}
	if e.busy {
		return ErrOperationInFlight
	}
	e.busy = true

	// A retained log from some earlier session is meaningless here.
	if len(e.retained) > 0 && e.retained[0].SessionID != e.session.ID {
		e.retained = nil
	}

	sessionID := e.session.ID
	recipient := roundup.RecipientInviter
	inviteeID := roundup.UnassignedID
	if e.role == RoleInvitee {
		recipient = roundup.RecipientInvitee
		inviteeID = e.invitee.ID
	}

	go func() {
		ctx, cancel := e.opContext()
		defer cancel()
		ns, err := e.backend.StoredNotifications(ctx, sessionID, recipient, inviteeID)
		e.post(func() { e.finishSync(ns, err) })
	}()
	return nil
}

func (e *Engine) finishSync(fetched []roundup.Notification, err error) {
	e.busy = false
	if err != nil {
		slog.Warn("notification sync failed", "error", err)
		e.publishBackgroundError("notification sync failed")
		return
	}

	// A terminal record anywhere in the log means the session is over;
	// replaying the intermediate history would only flash dead state at
	// the user. Deliver the terminal event alone.
	for _, n := range fetched {
		if msg, ok := roundup.ParseMessage(n.MessageID); ok && msg.Terminal() {
			slog.Info("sync found terminal notification", "message_id", n.MessageID)
			e.deliver(n)
			return
		}
	}

	replayed := 0
	for _, n := range fetched {
		if e.alreadySeen(n) {
			continue
		}
		e.deliver(n)
		replayed++
	}
	if replayed > 0 {
		slog.Info("replayed missed notifications", "count", replayed)
	}
}

func (e *Engine) alreadySeen(n roundup.Notification) bool {
	for _, r := range e.retained {
		if n.Matches(r) {
			return true
		}
	}
	return false
}
