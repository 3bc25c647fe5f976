package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/foxseedlab/roundup/internal/roundup"
)

// Pusher delivers a notification to one push channel. Implementations report
// ErrChannelGone when the channel no longer exists and ErrRateLimited when
// the recipient's daily quota is spent.
type Pusher interface {
	Push(channelURI string, n roundup.Notification) error
}

var (
	ErrChannelGone = errors.New("push channel gone")
	ErrRateLimited = errors.New("push channel rate limited")
)

// TokenError carries the wire token a failed table request responds with.
type TokenError struct {
	Token string
}

func (e *TokenError) Error() string {
	return e.Token
}

func tokenErr(token string) error {
	return &TokenError{Token: token}
}

// Service implements the table request hooks: validation, status
// transitions, the notification log, and best-effort pushes.
type Service struct {
	store Store
	push  Pusher
	now   func() time.Time
}

func NewService(store Store, push Pusher) *Service {
	return &Service{store: store, push: push, now: time.Now}
}

// InsertSession handles a session start. The inviter's row is created in the
// started state and the start is recorded in the notification log so late
// reconciliation can replay it.
func (s *Service) InsertSession(ctx context.Context, sess roundup.Session) (roundup.Session, error) {
	if sess.Channel == "" {
		return roundup.Session{}, tokenErr(roundup.TokenChannelURINull)
	}
	if sess.Request != roundup.RequestSessionStart {
		return roundup.Session{}, tokenErr(roundup.TokenInvalidRequestMessageID)
	}

	sess.Status = roundup.SessionStarted
	sess.Timestamp = s.now()
	created, err := s.store.InsertSession(ctx, sess)
	if err != nil {
		slog.Error("session insert failed", "error", err)
		return roundup.Session{}, tokenErr(roundup.TokenInsertFailed)
	}

	s.log(ctx, roundup.Notification{
		Recipient:     roundup.RecipientInviter,
		SessionID:     created.ID,
		InviteeID:     roundup.UnassignedID,
		MessageID:     string(roundup.MsgSessionStarted),
		ShortDeviceID: created.ShortDeviceID,
		Latitude:      created.Latitude,
		Longitude:     created.Longitude,
	})

	slog.Info("session started", "session_id", created.ID)
	return created, nil
}

// UpdateSession handles inviter-side updates: ending, cancelling, or
// refreshing the push channel URI.
func (s *Service) UpdateSession(ctx context.Context, sess roundup.Session) error {
	if sess.Channel == "" {
		return tokenErr(roundup.TokenChannelURINull)
	}
	existing, err := s.store.GetSession(ctx, sess.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return tokenErr(roundup.TokenSessionNotFound)
		}
		slog.Error("session read failed", "session_id", sess.ID, "error", err)
		return tokenErr(roundup.TokenReadFailed)
	}
	if existing.ShortDeviceID != sess.ShortDeviceID {
		return tokenErr(roundup.TokenWrongInviterShortDeviceID)
	}

	switch sess.Request {
	case roundup.RequestSessionEnd:
		existing.Channel = sess.Channel
		existing.Status = roundup.SessionHasEnded
		if err := s.store.UpdateSession(ctx, existing); err != nil {
			slog.Error("session update failed", "session_id", sess.ID, "error", err)
			return tokenErr(roundup.TokenUpdateFailed)
		}
		n := roundup.Notification{
			Recipient:     roundup.RecipientInviter,
			SessionID:     existing.ID,
			InviteeID:     roundup.UnassignedID,
			MessageID:     string(roundup.MsgSessionHasEnded),
			ShortDeviceID: existing.ShortDeviceID,
		}
		s.log(ctx, n)
		if err := s.deliver(existing.Channel, n); err != nil {
			return err
		}
		slog.Info("session ended", "session_id", existing.ID)
		return nil

	case roundup.RequestUpdateInviterChannelURI:
		existing.Channel = sess.Channel
		if err := s.store.UpdateSession(ctx, existing); err != nil {
			slog.Error("session update failed", "session_id", sess.ID, "error", err)
			return tokenErr(roundup.TokenUpdateFailed)
		}
		return nil

	case roundup.RequestSessionCancel:
		existing.Channel = sess.Channel
		existing.Status = roundup.SessionCancelledByInviter
		if err := s.store.UpdateSession(ctx, existing); err != nil {
			slog.Error("session update failed", "session_id", sess.ID, "error", err)
			return tokenErr(roundup.TokenUpdateFailed)
		}
		s.log(ctx, roundup.Notification{
			Recipient:     roundup.RecipientInviter,
			SessionID:     existing.ID,
			InviteeID:     roundup.UnassignedID,
			MessageID:     string(roundup.MsgSessionCancelledByInviter),
			ShortDeviceID: existing.ShortDeviceID,
		})
		if err := s.fanOutCancel(ctx, existing); err != nil {
			return err
		}
		slog.Info("session cancelled", "session_id", existing.ID)
		return nil
	}

	return tokenErr(roundup.TokenInvalidRequestMessageID)
}

// fanOutCancel logs and pushes the cancellation to every invitee that is
// still participating. The log rows are addressed to the invitee side so
// the invitee's reconciliation query can find them.
func (s *Service) fanOutCancel(ctx context.Context, sess roundup.Session) error {
	invitees, err := s.store.InviteesBySession(ctx, sess.ID)
	if err != nil {
		slog.Error("invitee read failed", "session_id", sess.ID, "error", err)
		return tokenErr(roundup.TokenReadFailed)
	}
	for _, inv := range invitees {
		if inv.Status != roundup.InviteeAccepted && inv.Status != roundup.InviteeEnRoute {
			continue
		}
		n := roundup.Notification{
			Recipient:     roundup.RecipientInvitee,
			SessionID:     sess.ID,
			InviteeID:     inv.ID,
			MessageID:     string(roundup.MsgSessionCancelledByInviter),
			ShortDeviceID: sess.ShortDeviceID,
		}
		s.log(ctx, n)
		if err := s.deliver(inv.Channel, n); err != nil {
			return err
		}
	}
	return nil
}

// InsertInvitee handles an invite acceptance. The created row is echoed back
// with the meeting place coordinates and the inviter's alias so the new
// invitee learns where to go.
func (s *Service) InsertInvitee(ctx context.Context, inv roundup.Invitee) (roundup.Invitee, error) {
	if inv.Channel == "" {
		return roundup.Invitee{}, tokenErr(roundup.TokenChannelURINull)
	}
	if inv.Request != roundup.RequestInviteeJoin {
		return roundup.Invitee{}, tokenErr(roundup.TokenInvalidRequestMessageID)
	}
	sess, err := s.store.GetSession(ctx, inv.SessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return roundup.Invitee{}, tokenErr(roundup.TokenSessionNotFound)
		}
		slog.Error("session read failed", "session_id", inv.SessionID, "error", err)
		return roundup.Invitee{}, tokenErr(roundup.TokenReadFailed)
	}
	if !sess.Status.Alive() {
		return roundup.Invitee{}, tokenErr(roundup.TokenSessionDead)
	}
	if inv.InviterShortDeviceID != sess.ShortDeviceID {
		return roundup.Invitee{}, tokenErr(roundup.TokenWrongInviterShortDeviceID)
	}
	existing, err := s.store.InviteesBySession(ctx, sess.ID)
	if err != nil {
		slog.Error("invitee read failed", "session_id", sess.ID, "error", err)
		return roundup.Invitee{}, tokenErr(roundup.TokenReadFailed)
	}
	if len(existing) >= roundup.MaxInvitees {
		return roundup.Invitee{}, tokenErr(roundup.TokenTooManyInvitees)
	}

	inv.Status = roundup.InviteeAccepted
	inv.Timestamp = s.now()
	created, err := s.store.InsertInvitee(ctx, inv)
	if err != nil {
		slog.Error("invitee insert failed", "session_id", sess.ID, "error", err)
		return roundup.Invitee{}, tokenErr(roundup.TokenInsertFailed)
	}

	sess.Status = roundup.SessionActive
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		slog.Error("session update failed", "session_id", sess.ID, "error", err)
		return roundup.Invitee{}, tokenErr(roundup.TokenUpdateFailed)
	}

	accepted := roundup.Notification{
		SessionID: sess.ID,
		InviteeID: created.ID,
		MessageID: string(roundup.MsgInviteeHasAccepted),
		Data:      created.Name,
		Latitude:  created.Latitude,
		Longitude: created.Longitude,
	}
	// One row per side: the inviter's copy drives the map marker, the
	// invitee's copy anchors its own reconciliation log.
	inviterCopy := accepted
	inviterCopy.Recipient = roundup.RecipientInviter
	s.log(ctx, inviterCopy)
	inviteeCopy := accepted
	inviteeCopy.Recipient = roundup.RecipientInvitee
	s.log(ctx, inviteeCopy)

	if err := s.deliver(sess.Channel, inviterCopy); err != nil {
		return roundup.Invitee{}, err
	}

	slog.Info("invitee joined", "session_id", sess.ID, "invitee_id", created.ID)

	// Echo the meeting place back on the response copy only; the stored
	// row keeps the invitee's own coordinates.
	created.Latitude = sess.Latitude
	created.Longitude = sess.Longitude
	created.RequestData = sess.Name
	return created, nil
}

// UpdateInvitee handles invitee-side updates: movement, arrival,
// cancellation, and push channel refresh.
func (s *Service) UpdateInvitee(ctx context.Context, inv roundup.Invitee) error {
	if inv.Channel == "" {
		return tokenErr(roundup.TokenChannelURINull)
	}
	sess, err := s.store.GetSession(ctx, inv.SessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return tokenErr(roundup.TokenSessionNotFound)
		}
		slog.Error("session read failed", "session_id", inv.SessionID, "error", err)
		return tokenErr(roundup.TokenReadFailed)
	}
	if !sess.Status.Alive() {
		return tokenErr(roundup.TokenSessionDead)
	}
	if inv.InviterShortDeviceID != sess.ShortDeviceID {
		return tokenErr(roundup.TokenWrongInviterShortDeviceID)
	}
	existing, err := s.store.GetInvitee(ctx, inv.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return tokenErr(roundup.TokenSessionNotFound)
		}
		slog.Error("invitee read failed", "invitee_id", inv.ID, "error", err)
		return tokenErr(roundup.TokenReadFailed)
	}

	switch inv.Request {
	case roundup.RequestInviteeLocationUpdate:
		existing.Channel = inv.Channel
		existing.Latitude = inv.Latitude
		existing.Longitude = inv.Longitude
		if err := s.store.UpdateInvitee(ctx, existing); err != nil {
			slog.Error("invitee update failed", "invitee_id", inv.ID, "error", err)
			return tokenErr(roundup.TokenUpdateFailed)
		}
		// Movement is ephemeral: pushed to the inviter but never logged,
		// reconciliation rebuilds positions from later fixes anyway.
		return s.deliver(sess.Channel, roundup.Notification{
			Recipient: roundup.RecipientInviter,
			SessionID: sess.ID,
			InviteeID: existing.ID,
			MessageID: string(roundup.MsgInviteeLocationUpdate),
			Data:      existing.Name,
			Latitude:  existing.Latitude,
			Longitude: existing.Longitude,
		})

	case roundup.RequestInviteeArrived:
		return s.inviteeTransition(ctx, sess, existing, inv, roundup.InviteeArrived, roundup.MsgInviteeHasArrived)

	case roundup.RequestInviteeCancel:
		return s.inviteeTransition(ctx, sess, existing, inv, roundup.InviteeCancelled, roundup.MsgInviteeHasCancelled)

	case roundup.RequestUpdateInviteeChannelURI:
		existing.Channel = inv.Channel
		if err := s.store.UpdateInvitee(ctx, existing); err != nil {
			slog.Error("invitee update failed", "invitee_id", inv.ID, "error", err)
			return tokenErr(roundup.TokenUpdateFailed)
		}
		return nil
	}

	return tokenErr(roundup.TokenInvalidRequestMessageID)
}

func (s *Service) inviteeTransition(ctx context.Context, sess roundup.Session, existing, update roundup.Invitee, status roundup.InviteeStatus, msg roundup.Message) error {
	existing.Channel = update.Channel
	existing.Latitude = update.Latitude
	existing.Longitude = update.Longitude
	existing.Status = status
	if err := s.store.UpdateInvitee(ctx, existing); err != nil {
		slog.Error("invitee update failed", "invitee_id", existing.ID, "error", err)
		return tokenErr(roundup.TokenUpdateFailed)
	}
	n := roundup.Notification{
		Recipient: roundup.RecipientInviter,
		SessionID: sess.ID,
		InviteeID: existing.ID,
		MessageID: string(msg),
		Data:      existing.Name,
		Latitude:  existing.Latitude,
		Longitude: existing.Longitude,
	}
	s.log(ctx, n)
	slog.Info("invitee status changed", "invitee_id", existing.ID, "status", status.String())
	return s.deliver(sess.Channel, n)
}

// Notifications serves the reconciliation query for one side of a session.
func (s *Service) Notifications(ctx context.Context, sessionID, recipient, inviteeID int) ([]roundup.Notification, error) {
	ns, err := s.store.NotificationsBySession(ctx, sessionID, recipient, inviteeID)
	if err != nil {
		slog.Error("notification read failed", "session_id", sessionID, "error", err)
		return nil, tokenErr(roundup.TokenReadFailed)
	}
	return ns, nil
}

// SessionAlive reports whether a session still accepts participation. An
// unknown session reads as not alive.
func (s *Service) SessionAlive(ctx context.Context, sessionID int) (bool, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		slog.Error("session read failed", "session_id", sessionID, "error", err)
		return false, tokenErr(roundup.TokenReadFailed)
	}
	return sess.Status.Alive(), nil
}

// log appends a row to the notification log. Failures are logged and
// swallowed: a missing log row degrades reconciliation, not the request.
func (s *Service) log(ctx context.Context, n roundup.Notification) {
	if _, err := s.store.InsertNotification(ctx, n); err != nil {
		slog.Error("notification log insert failed", "session_id", n.SessionID, "message_id", n.MessageID, "error", err)
	}
}

// deliver pushes best-effort. A vanished channel is fine since the log row
// covers replay; only a spent quota surfaces to the caller.
func (s *Service) deliver(channelURI string, n roundup.Notification) error {
	err := s.push.Push(channelURI, n)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRateLimited):
		return tokenErr(roundup.TokenNotificationLimit)
	default:
		slog.Debug("push skipped", "session_id", n.SessionID, "message_id", n.MessageID, "error", err)
		return nil
	}
}
