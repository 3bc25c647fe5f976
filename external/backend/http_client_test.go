package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/foxseedlab/roundup/internal/backend"
	"github.com/foxseedlab/roundup/internal/roundup"
)

func TestStartSessionSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tables/session" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var s roundup.Session
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			t.Errorf("bad body: %v", err)
		}
		if s.Request != roundup.RequestSessionStart {
			t.Errorf("request message should be SessionStart, got %d", s.Request)
		}
		s.ID = 77
		_ = json.NewEncoder(w).Encode(s)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	op, err := c.StartSession(context.Background(), roundup.Session{ID: roundup.UnassignedID, Channel: "uri"})
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if !op.Result.OK() || op.SessionID != 77 {
		t.Fatalf("unexpected operation: %+v", op)
	}
}

func TestJoinSessionEchoesInviter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var inv roundup.Invitee
		_ = json.NewDecoder(r.Body).Decode(&inv)
		inv.ID = 3
		inv.Latitude = 51.5
		inv.Longitude = -0.12
		inv.RequestData = "Sam"
		_ = json.NewEncoder(w).Encode(inv)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	op, err := c.JoinSession(context.Background(), roundup.Invitee{SessionID: 77, Channel: "uri"})
	if err != nil {
		t.Fatalf("JoinSession failed: %v", err)
	}
	if op.InviteeID != 3 || op.SessionID != 77 {
		t.Fatalf("ids not carried: %+v", op)
	}
	if op.InviterAlias != "Sam" || op.InviterLatitude != 51.5 || op.InviterLongitude != -0.12 {
		t.Fatalf("inviter echo missing: %+v", op)
	}
}

func TestErrorTokenMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(roundup.TokenSessionDead))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	op, err := c.CancelSession(context.Background(), roundup.Session{ID: 5})
	if err != nil {
		t.Fatalf("token failures are not transport errors: %v", err)
	}
	if op.Result != backend.ResultSessionDead {
		t.Fatalf("want session-dead, got %s", op.Result)
	}
	if op.Result.Retryable() {
		t.Fatal("backend verdicts are final")
	}
}

func TestTransportFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewHTTPClient(srv.URL, time.Second)
	op, err := c.CloseSession(context.Background(), roundup.Session{ID: 5})
	if err == nil {
		t.Fatal("expected transport error")
	}
	if op.Result != backend.ResultRetryableFailure {
		t.Fatalf("transport failures should be retryable, got %s", op.Result)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	for i := 0; i < 6; i++ {
		_, _ = c.IsSessionAlive(context.Background(), 1)
	}
	start := time.Now()
	_, err := c.IsSessionAlive(context.Background(), 1)
	if err == nil {
		t.Fatal("expected open-breaker error")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("open breaker should fail fast without dialing")
	}
}

func TestStoredNotifications(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tables/notification" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("sid") != "77" || q.Get("recipient") != "1" || q.Get("invitee") != "3" {
			t.Errorf("unexpected query %v", q)
		}
		_ = json.NewEncoder(w).Encode([]roundup.Notification{
			{ID: 1, SessionID: 77, MessageID: string(roundup.MsgSessionStarted)},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	ns, err := c.StoredNotifications(context.Background(), 77, roundup.RecipientInvitee, 3)
	if err != nil {
		t.Fatalf("StoredNotifications failed: %v", err)
	}
	if len(ns) != 1 || ns[0].MessageID != string(roundup.MsgSessionStarted) {
		t.Fatalf("unexpected notifications: %+v", ns)
	}
}

func TestIsSessionAlive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tables/session/77/alive" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"alive":true}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	alive, err := c.IsSessionAlive(context.Background(), 77)
	if err != nil {
		t.Fatalf("IsSessionAlive failed: %v", err)
	}
	if !alive {
		t.Fatal("expected alive")
	}
}
