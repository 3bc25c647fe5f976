package server_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/foxseedlab/roundup/external/serverstore"
	"github.com/foxseedlab/roundup/internal/roundup"
	"github.com/foxseedlab/roundup/internal/server"
)

// fakePusher records pushes and can simulate channel failures per URI.
type fakePusher struct {
	pushed []pushedNotification
	errFor map[string]error
}

type pushedNotification struct {
	uri string
	n   roundup.Notification
}

func newFakePusher() *fakePusher {
	return &fakePusher{errFor: make(map[string]error)}
}

func (p *fakePusher) Push(uri string, n roundup.Notification) error {
	if err := p.errFor[uri]; err != nil {
		return err
	}
	p.pushed = append(p.pushed, pushedNotification{uri: uri, n: n})
	return nil
}

func newService(t *testing.T) (*server.Service, *serverstore.MemoryStore, *fakePusher) {
	t.Helper()
	st := serverstore.NewMemoryStore()
	p := newFakePusher()
	return server.NewService(st, p), st, p
}

func validSession() roundup.Session {
	return roundup.Session{
		ID:            roundup.UnassignedID,
		Name:          "alice",
		Channel:       "chan-inviter",
		Latitude:      51.5,
		Longitude:     -0.1,
		Address:       "1 Test Square",
		ShortDeviceID: "abcd1234",
		Request:       roundup.RequestSessionStart,
	}
}

func validInvitee(sessionID int) roundup.Invitee {
	return roundup.Invitee{
		ID:                   roundup.UnassignedID,
		SessionID:            sessionID,
		Name:                 "bob",
		Channel:              "chan-bob",
		Latitude:             51.6,
		Longitude:            -0.2,
		Request:              roundup.RequestInviteeJoin,
		InviterShortDeviceID: "abcd1234",
	}
}

func startSession(t *testing.T, svc *server.Service) roundup.Session {
	t.Helper()
	created, err := svc.InsertSession(context.Background(), validSession())
	if err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}
	return created
}

func joinSession(t *testing.T, svc *server.Service, sessionID int, name, channel string) roundup.Invitee {
	t.Helper()
	inv := validInvitee(sessionID)
	inv.Name = name
	inv.Channel = channel
	created, err := svc.InsertInvitee(context.Background(), inv)
	if err != nil {
		t.Fatalf("InsertInvitee failed: %v", err)
	}
	return created
}

func wantToken(t *testing.T, err error, token string) {
	t.Helper()
	var te *server.TokenError
	if !errors.As(err, &te) {
		t.Fatalf("expected token error %s, got %v", token, err)
	}
	if te.Token != token {
		t.Fatalf("expected token %s, got %s", token, te.Token)
	}
}

func TestInsertSessionStartsAndLogs(t *testing.T) {
	svc, st, p := newService(t)

	created := startSession(t, svc)
	if created.ID != 1 {
		t.Fatalf("expected assigned id 1, got %d", created.ID)
	}
	if created.Status != roundup.SessionStarted {
		t.Fatalf("expected started status, got %v", created.Status)
	}

	ns, err := st.NotificationsBySession(context.Background(), created.ID, roundup.RecipientInviter, roundup.UnassignedID)
	if err != nil {
		t.Fatalf("notification read failed: %v", err)
	}
	if len(ns) != 1 {
		t.Fatalf("expected 1 log row, got %d", len(ns))
	}
	if ns[0].MessageID != string(roundup.MsgSessionStarted) || ns[0].InviteeID != roundup.UnassignedID {
		t.Fatalf("unexpected log row: %+v", ns[0])
	}
	if len(p.pushed) != 0 {
		t.Fatalf("session start must not push, got %d", len(p.pushed))
	}
}

func TestInsertSessionValidation(t *testing.T) {
	svc, _, _ := newService(t)

	noChannel := validSession()
	noChannel.Channel = ""
	_, err := svc.InsertSession(context.Background(), noChannel)
	wantToken(t, err, roundup.TokenChannelURINull)

	wrongMsg := validSession()
	wrongMsg.Request = roundup.RequestInviteeJoin
	_, err = svc.InsertSession(context.Background(), wrongMsg)
	wantToken(t, err, roundup.TokenInvalidRequestMessageID)
}

func TestInsertInviteeActivatesAndEchoes(t *testing.T) {
	svc, st, p := newService(t)
	sess := startSession(t, svc)

	created := joinSession(t, svc, sess.ID, "bob", "chan-bob")
	if created.Status != roundup.InviteeAccepted {
		t.Fatalf("expected accepted status, got %v", created.Status)
	}
	// The response echoes the meeting place and inviter alias.
	if created.Latitude != sess.Latitude || created.Longitude != sess.Longitude {
		t.Fatalf("expected echoed meeting place, got %f,%f", created.Latitude, created.Longitude)
	}
	if created.RequestData != "alice" {
		t.Fatalf("expected echoed inviter alias, got %q", created.RequestData)
	}

	// The stored row keeps the invitee's own coordinates.
	stored, err := st.GetInvitee(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("invitee read failed: %v", err)
	}
	if stored.Latitude != 51.6 || stored.Longitude != -0.2 {
		t.Fatalf("stored invitee coordinates clobbered: %f,%f", stored.Latitude, stored.Longitude)
	}

	updated, err := st.GetSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("session read failed: %v", err)
	}
	if updated.Status != roundup.SessionActive {
		t.Fatalf("expected active session, got %v", updated.Status)
	}

	if len(p.pushed) != 1 || p.pushed[0].uri != "chan-inviter" {
		t.Fatalf("expected one push to the inviter, got %+v", p.pushed)
	}
	if p.pushed[0].n.MessageID != string(roundup.MsgInviteeHasAccepted) || p.pushed[0].n.Data != "bob" {
		t.Fatalf("unexpected push payload: %+v", p.pushed[0].n)
	}

	// One log row per side so both devices can reconcile later.
	inviterRows, _ := st.NotificationsBySession(context.Background(), sess.ID, roundup.RecipientInviter, roundup.UnassignedID)
	inviteeRows, _ := st.NotificationsBySession(context.Background(), sess.ID, roundup.RecipientInvitee, created.ID)
	if len(inviterRows) != 2 {
		t.Fatalf("expected start + accept on inviter side, got %d rows", len(inviterRows))
	}
	if len(inviteeRows) != 1 || inviteeRows[0].MessageID != string(roundup.MsgInviteeHasAccepted) {
		t.Fatalf("expected accept row on invitee side, got %+v", inviteeRows)
	}
}

func TestInsertInviteeValidation(t *testing.T) {
	svc, st, _ := newService(t)
	sess := startSession(t, svc)

	missing := validInvitee(999)
	_, err := svc.InsertInvitee(context.Background(), missing)
	wantToken(t, err, roundup.TokenSessionNotFound)

	wrongDevice := validInvitee(sess.ID)
	wrongDevice.InviterShortDeviceID = "zzzz9999"
	_, err = svc.InsertInvitee(context.Background(), wrongDevice)
	wantToken(t, err, roundup.TokenWrongInviterShortDeviceID)

	dead := sess
	dead.Status = roundup.SessionDead
	if err := st.UpdateSession(context.Background(), dead); err != nil {
		t.Fatalf("session update failed: %v", err)
	}
	_, err = svc.InsertInvitee(context.Background(), validInvitee(sess.ID))
	wantToken(t, err, roundup.TokenSessionDead)
}

func TestInsertInviteeEnforcesLimit(t *testing.T) {
	svc, _, _ := newService(t)
	sess := startSession(t, svc)

	for i := 0; i < roundup.MaxInvitees; i++ {
		joinSession(t, svc, sess.ID, fmt.Sprintf("guest-%d", i), fmt.Sprintf("chan-%d", i))
	}
	_, err := svc.InsertInvitee(context.Background(), validInvitee(sess.ID))
	wantToken(t, err, roundup.TokenTooManyInvitees)
}

func TestCancelSessionFansOutToLiveInvitees(t *testing.T) {
	svc, st, p := newService(t)
	sess := startSession(t, svc)
	live := joinSession(t, svc, sess.ID, "bob", "chan-bob")
	gone := joinSession(t, svc, sess.ID, "carol", "chan-carol")

	// Carol cancels before the session does; she must not be notified.
	cancel := validInvitee(sess.ID)
	cancel.ID = gone.ID
	cancel.Channel = "chan-carol"
	cancel.Request = roundup.RequestInviteeCancel
	if err := svc.UpdateInvitee(context.Background(), cancel); err != nil {
		t.Fatalf("invitee cancel failed: %v", err)
	}
	p.pushed = nil

	update := validSession()
	update.ID = sess.ID
	update.Request = roundup.RequestSessionCancel
	if err := svc.UpdateSession(context.Background(), update); err != nil {
		t.Fatalf("session cancel failed: %v", err)
	}

	stored, _ := st.GetSession(context.Background(), sess.ID)
	if stored.Status != roundup.SessionCancelledByInviter {
		t.Fatalf("expected cancelled status, got %v", stored.Status)
	}

	if len(p.pushed) != 1 || p.pushed[0].uri != "chan-bob" {
		t.Fatalf("expected a single push to the live invitee, got %+v", p.pushed)
	}

	// The invitee-side log row is addressed so bob's reconciliation
	// query can find it.
	rows, _ := st.NotificationsBySession(context.Background(), sess.ID, roundup.RecipientInvitee, live.ID)
	found := false
	for _, n := range rows {
		if n.MessageID == string(roundup.MsgSessionCancelledByInviter) {
			found = true
		}
	}
	if !found {
		t.Fatal("expected cancel row on the invitee side")
	}
}

func TestUpdateSessionValidation(t *testing.T) {
	svc, _, _ := newService(t)
	sess := startSession(t, svc)

	missing := validSession()
	missing.ID = 999
	missing.Request = roundup.RequestSessionCancel
	wantToken(t, svc.UpdateSession(context.Background(), missing), roundup.TokenSessionNotFound)

	wrongDevice := validSession()
	wrongDevice.ID = sess.ID
	wrongDevice.ShortDeviceID = "zzzz9999"
	wrongDevice.Request = roundup.RequestSessionCancel
	wantToken(t, svc.UpdateSession(context.Background(), wrongDevice), roundup.TokenWrongInviterShortDeviceID)

	badMsg := validSession()
	badMsg.ID = sess.ID
	badMsg.Request = roundup.RequestInviteeJoin
	wantToken(t, svc.UpdateSession(context.Background(), badMsg), roundup.TokenInvalidRequestMessageID)
}

func TestEndSessionNotifiesInviter(t *testing.T) {
	svc, st, p := newService(t)
	sess := startSession(t, svc)

	update := validSession()
	update.ID = sess.ID
	update.Request = roundup.RequestSessionEnd
	if err := svc.UpdateSession(context.Background(), update); err != nil {
		t.Fatalf("session end failed: %v", err)
	}

	stored, _ := st.GetSession(context.Background(), sess.ID)
	if stored.Status != roundup.SessionHasEnded {
		t.Fatalf("expected ended status, got %v", stored.Status)
	}
	if len(p.pushed) != 1 || p.pushed[0].n.MessageID != string(roundup.MsgSessionHasEnded) {
		t.Fatalf("expected an ended push, got %+v", p.pushed)
	}
}

func TestChannelRefreshIsSilent(t *testing.T) {
	svc, st, p := newService(t)
	sess := startSession(t, svc)
	inv := joinSession(t, svc, sess.ID, "bob", "chan-bob")
	p.pushed = nil
	before, _ := st.NotificationsBySession(context.Background(), sess.ID, roundup.RecipientInviter, roundup.UnassignedID)

	refresh := validSession()
	refresh.ID = sess.ID
	refresh.Channel = "chan-inviter-2"
	refresh.Request = roundup.RequestUpdateInviterChannelURI
	if err := svc.UpdateSession(context.Background(), refresh); err != nil {
		t.Fatalf("inviter channel refresh failed: %v", err)
	}

	invRefresh := validInvitee(sess.ID)
	invRefresh.ID = inv.ID
	invRefresh.Channel = "chan-bob-2"
	invRefresh.Request = roundup.RequestUpdateInviteeChannelURI
	if err := svc.UpdateInvitee(context.Background(), invRefresh); err != nil {
		t.Fatalf("invitee channel refresh failed: %v", err)
	}

	storedSess, _ := st.GetSession(context.Background(), sess.ID)
	if storedSess.Channel != "chan-inviter-2" {
		t.Fatalf("inviter channel not updated: %q", storedSess.Channel)
	}
	storedInv, _ := st.GetInvitee(context.Background(), inv.ID)
	if storedInv.Channel != "chan-bob-2" {
		t.Fatalf("invitee channel not updated: %q", storedInv.Channel)
	}

	if len(p.pushed) != 0 {
		t.Fatalf("channel refresh must not push, got %+v", p.pushed)
	}
	after, _ := st.NotificationsBySession(context.Background(), sess.ID, roundup.RecipientInviter, roundup.UnassignedID)
	if len(after) != len(before) {
		t.Fatalf("channel refresh must not log, had %d rows now %d", len(before), len(after))
	}
}

func TestLocationUpdatePushesWithoutLogging(t *testing.T) {
	svc, st, p := newService(t)
	sess := startSession(t, svc)
	inv := joinSession(t, svc, sess.ID, "bob", "chan-bob")
	p.pushed = nil
	before, _ := st.NotificationsBySession(context.Background(), sess.ID, roundup.RecipientInviter, roundup.UnassignedID)

	move := validInvitee(sess.ID)
	move.ID = inv.ID
	move.Latitude = 51.55
	move.Longitude = -0.15
	move.Request = roundup.RequestInviteeLocationUpdate
	if err := svc.UpdateInvitee(context.Background(), move); err != nil {
		t.Fatalf("location update failed: %v", err)
	}

	if len(p.pushed) != 1 || p.pushed[0].n.MessageID != string(roundup.MsgInviteeLocationUpdate) {
		t.Fatalf("expected a location push, got %+v", p.pushed)
	}
	if p.pushed[0].n.Latitude != 51.55 || p.pushed[0].n.Longitude != -0.15 {
		t.Fatalf("push carries stale coordinates: %+v", p.pushed[0].n)
	}

	stored, _ := st.GetInvitee(context.Background(), inv.ID)
	if stored.Latitude != 51.55 {
		t.Fatalf("invitee row not moved: %f", stored.Latitude)
	}

	after, _ := st.NotificationsBySession(context.Background(), sess.ID, roundup.RecipientInviter, roundup.UnassignedID)
	if len(after) != len(before) {
		t.Fatal("location updates must not be logged")
	}
}

func TestArrivalIsLoggedAndPushed(t *testing.T) {
	svc, st, p := newService(t)
	sess := startSession(t, svc)
	inv := joinSession(t, svc, sess.ID, "bob", "chan-bob")
	p.pushed = nil

	arrived := validInvitee(sess.ID)
	arrived.ID = inv.ID
	arrived.Request = roundup.RequestInviteeArrived
	if err := svc.UpdateInvitee(context.Background(), arrived); err != nil {
		t.Fatalf("arrival failed: %v", err)
	}

	stored, _ := st.GetInvitee(context.Background(), inv.ID)
	if stored.Status != roundup.InviteeArrived {
		t.Fatalf("expected arrived status, got %v", stored.Status)
	}
	if len(p.pushed) != 1 || p.pushed[0].n.MessageID != string(roundup.MsgInviteeHasArrived) {
		t.Fatalf("expected an arrival push, got %+v", p.pushed)
	}

	rows, _ := st.NotificationsBySession(context.Background(), sess.ID, roundup.RecipientInviter, roundup.UnassignedID)
	last := rows[len(rows)-1]
	if last.MessageID != string(roundup.MsgInviteeHasArrived) || last.InviteeID != inv.ID {
		t.Fatalf("unexpected arrival log row: %+v", last)
	}
}

func TestSpentQuotaSurfacesAsLimitToken(t *testing.T) {
	svc, _, p := newService(t)
	sess := startSession(t, svc)
	p.errFor["chan-inviter"] = server.ErrRateLimited

	_, err := svc.InsertInvitee(context.Background(), validInvitee(sess.ID))
	wantToken(t, err, roundup.TokenNotificationLimit)
}

func TestGoneChannelIsBestEffort(t *testing.T) {
	svc, _, p := newService(t)
	sess := startSession(t, svc)
	p.errFor["chan-inviter"] = server.ErrChannelGone

	if _, err := svc.InsertInvitee(context.Background(), validInvitee(sess.ID)); err != nil {
		t.Fatalf("a vanished channel must not fail the request: %v", err)
	}
}

func TestSessionAlive(t *testing.T) {
	svc, st, _ := newService(t)
	sess := startSession(t, svc)

	alive, err := svc.SessionAlive(context.Background(), sess.ID)
	if err != nil || !alive {
		t.Fatalf("expected alive, got %v %v", alive, err)
	}

	alive, err = svc.SessionAlive(context.Background(), 999)
	if err != nil || alive {
		t.Fatalf("unknown session must read dead, got %v %v", alive, err)
	}

	dead := sess
	dead.Status = roundup.SessionDead
	if err := st.UpdateSession(context.Background(), dead); err != nil {
		t.Fatalf("session update failed: %v", err)
	}
	alive, err = svc.SessionAlive(context.Background(), sess.ID)
	if err != nil || alive {
		t.Fatalf("expected dead, got %v %v", alive, err)
	}
}
