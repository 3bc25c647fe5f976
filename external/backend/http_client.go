package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/foxseedlab/roundup/internal/backend"
	"github.com/foxseedlab/roundup/internal/roundup"
)

const (
	sessionPath      = "/tables/session"
	inviteePath      = "/tables/invitee"
	notificationPath = "/tables/notification"
)

type breakerOut struct {
	status int
	body   []byte
}

// HTTPClient implements backend.Client over the coordination service's REST
// contract. Every call runs through a circuit breaker so a dying backend is
// reported as a retryable failure quickly instead of after N timeouts.
type HTTPClient struct {
	base    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[breakerOut]
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	settings := gobreaker.Settings{
		Name:    "roundup-backend",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &HTTPClient{
		base:    baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[breakerOut](settings),
	}
}

func (c *HTTPClient) StartSession(ctx context.Context, s roundup.Session) (backend.Operation, error) {
	s.Request = roundup.RequestSessionStart
	return c.insertSession(ctx, s)
}

func (c *HTTPClient) JoinSession(ctx context.Context, inv roundup.Invitee) (backend.Operation, error) {
	inv.Request = roundup.RequestInviteeJoin
	body, err := json.Marshal(inv)
	if err != nil {
		return backend.Failure(backend.ResultGeneralFailure), fmt.Errorf("failed to encode invitee: %w", err)
	}
	out, err := c.do(ctx, http.MethodPost, inviteePath, body)
	if err != nil {
		return backend.Failure(backend.ResultRetryableFailure), err
	}
	if out.status != http.StatusOK {
		return backend.Failure(backend.ParseResult(string(out.body))), nil
	}

	var created roundup.Invitee
	if err := json.Unmarshal(out.body, &created); err != nil {
		return backend.Failure(backend.ResultGeneralFailure), fmt.Errorf("failed to decode invitee response: %w", err)
	}
	return backend.Operation{
		Result:           backend.ResultSuccess,
		SessionID:        created.SessionID,
		InviteeID:        created.ID,
		InviterLatitude:  created.Latitude,
		InviterLongitude: created.Longitude,
		InviterAlias:     created.RequestData,
	}, nil
}

func (c *HTTPClient) UpdateInviteeLocation(ctx context.Context, inv roundup.Invitee) (backend.Operation, error) {
	inv.Request = roundup.RequestInviteeLocationUpdate
	return c.patchInvitee(ctx, inv)
}

func (c *HTTPClient) InviteeArrived(ctx context.Context, inv roundup.Invitee) (backend.Operation, error) {
	inv.Request = roundup.RequestInviteeArrived
	return c.patchInvitee(ctx, inv)
}

func (c *HTTPClient) CancelInvitee(ctx context.Context, inv roundup.Invitee) (backend.Operation, error) {
	inv.Request = roundup.RequestInviteeCancel
	return c.patchInvitee(ctx, inv)
}

func (c *HTTPClient) CancelSession(ctx context.Context, s roundup.Session) (backend.Operation, error) {
	s.Request = roundup.RequestSessionCancel
	return c.patchSession(ctx, s)
}

func (c *HTTPClient) CloseSession(ctx context.Context, s roundup.Session) (backend.Operation, error) {
	s.Request = roundup.RequestSessionEnd
	return c.patchSession(ctx, s)
}

func (c *HTTPClient) UpdateInviterChannelURI(ctx context.Context, s roundup.Session) (backend.Operation, error) {
	s.Request = roundup.RequestUpdateInviterChannelURI
	return c.patchSession(ctx, s)
}

func (c *HTTPClient) UpdateInviteeChannelURI(ctx context.Context, inv roundup.Invitee) (backend.Operation, error) {
	inv.Request = roundup.RequestUpdateInviteeChannelURI
	return c.patchInvitee(ctx, inv)
}

func (c *HTTPClient) IsSessionAlive(ctx context.Context, sessionID int) (bool, error) {
	out, err := c.do(ctx, http.MethodGet, sessionPath+"/"+strconv.Itoa(sessionID)+"/alive", nil)
	if err != nil {
		return false, err
	}
	if out.status != http.StatusOK {
		return false, nil
	}
	var resp struct {
		Alive bool `json:"alive"`
	}
	if err := json.Unmarshal(out.body, &resp); err != nil {
		return false, fmt.Errorf("failed to decode alive response: %w", err)
	}
	return resp.Alive, nil
}

func (c *HTTPClient) StoredNotifications(ctx context.Context, sessionID, recipient, inviteeID int) ([]roundup.Notification, error) {
	q := url.Values{}
	q.Set("sid", strconv.Itoa(sessionID))
	q.Set("recipient", strconv.Itoa(recipient))
	if recipient == roundup.RecipientInvitee {
		q.Set("invitee", strconv.Itoa(inviteeID))
	}
	out, err := c.do(ctx, http.MethodGet, notificationPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if out.status != http.StatusOK {
		return nil, fmt.Errorf("notification fetch failed: %s", string(out.body))
	}
	var ns []roundup.Notification
	if err := json.Unmarshal(out.body, &ns); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return ns, nil
}

func (c *HTTPClient) insertSession(ctx context.Context, s roundup.Session) (backend.Operation, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return backend.Failure(backend.ResultGeneralFailure), fmt.Errorf("failed to encode session: %w", err)
	}
	out, err := c.do(ctx, http.MethodPost, sessionPath, body)
	if err != nil {
		return backend.Failure(backend.ResultRetryableFailure), err
	}
	if out.status != http.StatusOK {
		return backend.Failure(backend.ParseResult(string(out.body))), nil
	}
	var created roundup.Session
	if err := json.Unmarshal(out.body, &created); err != nil {
		return backend.Failure(backend.ResultGeneralFailure), fmt.Errorf("failed to decode session response: %w", err)
	}
	return backend.Operation{Result: backend.ResultSuccess, SessionID: created.ID, InviteeID: roundup.UnassignedID}, nil
}

func (c *HTTPClient) patchSession(ctx context.Context, s roundup.Session) (backend.Operation, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return backend.Failure(backend.ResultGeneralFailure), fmt.Errorf("failed to encode session: %w", err)
	}
	return c.patch(ctx, sessionPath, body, s.ID, roundup.UnassignedID)
}

func (c *HTTPClient) patchInvitee(ctx context.Context, inv roundup.Invitee) (backend.Operation, error) {
	body, err := json.Marshal(inv)
	if err != nil {
		return backend.Failure(backend.ResultGeneralFailure), fmt.Errorf("failed to encode invitee: %w", err)
	}
	return c.patch(ctx, inviteePath, body, inv.SessionID, inv.ID)
}

func (c *HTTPClient) patch(ctx context.Context, path string, body []byte, sessionID, inviteeID int) (backend.Operation, error) {
	out, err := c.do(ctx, http.MethodPatch, path, body)
	if err != nil {
		return backend.Failure(backend.ResultRetryableFailure), err
	}
	if out.status != http.StatusOK {
		return backend.Failure(backend.ParseResult(string(out.body))), nil
	}
	return backend.Operation{Result: backend.ResultSuccess, SessionID: sessionID, InviteeID: inviteeID}, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) (breakerOut, error) {
	return c.breaker.Execute(func() (breakerOut, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
		if err != nil {
			return breakerOut{}, fmt.Errorf("failed to build request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return breakerOut{}, fmt.Errorf("backend request failed: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return breakerOut{}, fmt.Errorf("failed to read backend response: %w", err)
		}
		return breakerOut{status: resp.StatusCode, body: raw}, nil
	})
}
