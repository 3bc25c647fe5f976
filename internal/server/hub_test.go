package server_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/foxseedlab/roundup/internal/push"
	"github.com/foxseedlab/roundup/internal/roundup"
	"github.com/foxseedlab/roundup/internal/server"
)

func dialHub(t *testing.T, hub *server.Hub) (*websocket.Conn, string) {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	env := readEnvelope(t, ws)
	if env.Kind != push.KindChannel || env.URI == "" {
		t.Fatalf("expected channel handshake, got %+v", env)
	}
	return ws, env.URI
}

func readEnvelope(t *testing.T, ws *websocket.Conn) push.Envelope {
	t.Helper()
	if err := ws.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("deadline failed: %v", err)
	}
	_, payload, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var env push.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return env
}

func TestHubAssignsURIAndDelivers(t *testing.T) {
	hub := server.NewHub(10)
	ws, uri := dialHub(t, hub)

	if !hub.Connected(uri) {
		t.Fatal("expected channel registered after handshake")
	}

	want := roundup.Notification{
		Recipient: roundup.RecipientInviter,
		SessionID: 7,
		InviteeID: 3,
		MessageID: string(roundup.MsgInviteeHasAccepted),
		Data:      "bob",
	}
	if err := hub.Push(uri, want); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	env := readEnvelope(t, ws)
	if env.Kind != push.KindNotification || env.Notification == nil {
		t.Fatalf("expected notification envelope, got %+v", env)
	}
	if env.Notification.SessionID != 7 || env.Notification.Data != "bob" {
		t.Fatalf("unexpected payload: %+v", env.Notification)
	}
}

func TestHubUnknownChannelIsGone(t *testing.T) {
	hub := server.NewHub(10)
	err := hub.Push("no-such-channel", roundup.Notification{})
	if err != server.ErrChannelGone {
		t.Fatalf("expected ErrChannelGone, got %v", err)
	}
}

func TestHubQuotaExhaustion(t *testing.T) {
	hub := server.NewHub(1)
	ws, uri := dialHub(t, hub)

	if err := hub.Push(uri, roundup.Notification{SessionID: 1, MessageID: string(roundup.MsgSessionStarted)}); err != nil {
		t.Fatalf("first push failed: %v", err)
	}
	if env := readEnvelope(t, ws); env.Kind != push.KindNotification {
		t.Fatalf("expected notification, got %+v", env)
	}

	err := hub.Push(uri, roundup.Notification{SessionID: 1, MessageID: string(roundup.MsgSessionStarted)})
	if err != server.ErrRateLimited {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	// The throttled recipient hears about it too.
	env := readEnvelope(t, ws)
	if env.Kind != push.KindError || env.Error != push.WireErrRateTooHigh {
		t.Fatalf("expected rate error envelope, got %+v", env)
	}
}

func TestHubDropUnregisters(t *testing.T) {
	hub := server.NewHub(10)
	ws, uri := dialHub(t, hub)

	ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Connected(uri) {
		if time.Now().After(deadline) {
			t.Fatal("channel still registered after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := hub.Push(uri, roundup.Notification{}); err != server.ErrChannelGone {
		t.Fatalf("expected ErrChannelGone after drop, got %v", err)
	}
}
