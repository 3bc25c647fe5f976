package session

import (
	"errors"
	"log/slog"

	"github.com/goccy/go-json"

	"github.com/foxseedlab/roundup/internal/location"
	"github.com/foxseedlab/roundup/internal/roundup"
	"github.com/foxseedlab/roundup/internal/store"
)

// persist flattens the role-bearing state so a later launch can resume a
// live session. Store failures are logged, never fatal: the backend log can
// rebuild most of what a lost snapshot held.
func (e *Engine) persist() {
	if e.role == RoleNone {
		e.clearPersisted()
		return
	}

	put := func(key, value string) {
		if err := e.store.Put(key, value); err != nil {
			slog.Error("failed to persist state", "key", key, "error", err)
		}
	}

	put(store.KeyRole, e.role.String())
	if raw, err := json.Marshal(e.session); err == nil {
		put(store.KeySession, string(raw))
	}
	if raw, err := json.Marshal(e.invitee); err == nil {
		put(store.KeyInvitee, string(raw))
	}
	put(store.KeyNotifications, roundup.FlattenAll(e.retained))
}

func (e *Engine) clearPersisted() {
	for _, key := range []string{store.KeyRole, store.KeySession, store.KeyInvitee, store.KeyNotifications} {
		if err := e.store.Delete(key); err != nil {
			slog.Error("failed to clear persisted state", "key", key, "error", err)
		}
	}
}

// restore runs at startup on the owner goroutine. If a previous run left a
// role behind, the snapshot is adopted only after the backend confirms the
// session is still alive; anything else is discarded.
func (e *Engine) restore() {
	roleText, err := e.store.Get(store.KeyRole)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		slog.Error("failed to read persisted role", "error", err)
		return
	}
	role := parseRole(roleText)
	if role == RoleNone {
		e.clearPersisted()
		return
	}

	sess, ok := e.restoreSession()
	if !ok {
		e.clearPersisted()
		return
	}
	inv, ok := e.restoreInvitee()
	if role == RoleInvitee && !ok {
		e.clearPersisted()
		return
	}

	var retained []roundup.Notification
	if blob, err := e.store.Get(store.KeyNotifications); err == nil {
		retained = roundup.RestoreAll(blob)
	}

	go func() {
		ctx, cancel := e.opContext()
		defer cancel()
		alive, err := e.backend.IsSessionAlive(ctx, sess.ID)
		e.post(func() { e.finishRestore(role, sess, inv, retained, alive, err) })
	}()
}

func (e *Engine) restoreSession() (roundup.Session, bool) {
	raw, err := e.store.Get(store.KeySession)
	if err != nil {
		return roundup.Session{}, false
	}
	var sess roundup.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		slog.Warn("discarding corrupt session snapshot", "error", err)
		return roundup.Session{}, false
	}
	return sess, true
}

func (e *Engine) restoreInvitee() (roundup.Invitee, bool) {
	raw, err := e.store.Get(store.KeyInvitee)
	if err != nil {
		return roundup.Invitee{}, false
	}
	var inv roundup.Invitee
	if err := json.Unmarshal([]byte(raw), &inv); err != nil {
		slog.Warn("discarding corrupt invitee snapshot", "error", err)
		return roundup.Invitee{}, false
	}
	return inv, true
}

func (e *Engine) finishRestore(role Role, sess roundup.Session, inv roundup.Invitee, retained []roundup.Notification, alive bool, err error) {
	if e.role != RoleNone {
		// A new session was started while the alive check was in flight;
		// the old snapshot lost the race.
		return
	}
	if err != nil || !alive {
		if err != nil {
			slog.Warn("could not verify persisted session, discarding it", "error", err)
		} else {
			slog.Info("persisted session is no longer alive, discarding it", "session_id", sess.ID)
		}
		e.clearPersisted()
		e.publish()
		return
	}

	e.role = role
	e.session = sess
	e.invitee = inv
	e.retained = retained
	e.meet = location.Point{Latitude: sess.Latitude, Longitude: sess.Longitude}
	e.markers = make(map[int]Marker)
	e.arrivedCount = 0
	if role == RoleInvitee {
		e.throttle.Reset(location.ModeWalking)
	}

	slog.Info("resumed session", "role", role.String(), "session_id", sess.ID)
	e.publish()

	// Catch up on whatever happened while we were gone. The inviter's
	// retained log is cut back to the SessionStarted seed so replay
	// rebuilds the markers from the full invitee history.
	if role == RoleInviter {
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
	}
	if err := e.syncNotifications(); err != nil {
		slog.Warn("post-restore sync rejected", "error", err)
	}
}
