package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/foxseedlab/roundup/internal/backend"
	"github.com/foxseedlab/roundup/internal/config"
	"github.com/foxseedlab/roundup/internal/invite"
	"github.com/foxseedlab/roundup/internal/location"
	"github.com/foxseedlab/roundup/internal/push"
	"github.com/foxseedlab/roundup/internal/roundup"
	"github.com/foxseedlab/roundup/internal/store"
)

const (
	mailboxSize    = 128
	reconnectDelay = 2 * time.Second
	shortDeviceLen = 8
)

var (
	ErrOperationInFlight = errors.New("session: an operation is already in flight")
	ErrAlreadyInSession  = errors.New("session: already participating in a session")
	ErrNoSession         = errors.New("session: not participating in a session")
	ErrWrongRole         = errors.New("session: operation not valid for current role")
	ErrNotRunning        = errors.New("session: engine is not running")
)

// Engine is the client's session state machine. All state lives on a single
// owner goroutine fed by a mailbox; public methods post commands into it and
// every external event (push frame, location fix, channel lifecycle) arrives
// the same way, so no lock ever guards the session state.
type Engine struct {
	cfg       *config.Config
	backend   backend.Client
	channel   push.Channel
	store     store.Store
	publisher message.Publisher

	throttle *location.Throttle
	waiter   *push.Waiter

	mailbox chan func()
	done    chan struct{}

	// Owner-goroutine state. Never touched from outside the mailbox.
	deviceID     string
	role         Role
	session      roundup.Session
	invitee      roundup.Invitee
	meet         location.Point
	lastFix      *location.Point
	retained     []roundup.Notification
	markers      map[int]Marker
	arrivedCount int
	longJourney  bool
	busy         bool
}

func NewEngine(cfg *config.Config, bc backend.Client, ch push.Channel, st store.Store, pub message.Publisher) *Engine {
	e := &Engine{
		cfg:       cfg,
		backend:   bc,
		channel:   ch,
		store:     st,
		publisher: pub,
		throttle:  location.NewThrottle(cfg.WalkingThresholdM, cfg.DrivingThresholdM, cfg.NotificationCeiling),
		mailbox:   make(chan func(), mailboxSize),
		done:      make(chan struct{}),
		markers:   make(map[int]Marker),
	}
	e.waiter = push.NewWaiter(ch.Connected, cfg.ChannelWait())
	return e
}

// Run starts the owner goroutine and blocks until ctx is cancelled. It must
// be running before any other method is called.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)

	e.loadDeviceID()
	e.registerChannelHandlers()

	go func() {
		if err := e.channel.Connect(ctx); err != nil {
			slog.Warn("initial push channel connect failed", "error", err)
		}
	}()

	e.restore()

	for {
		select {
		case <-ctx.Done():
			e.waiter.Cancel()
			return
		case fn := <-e.mailbox:
			fn()
		}
	}
}

func (e *Engine) post(fn func()) bool {
	select {
	case e.mailbox <- fn:
		return true
	case <-e.done:
		return false
	}
}

// call posts fn and waits for its synchronous result. Used for precondition
// checks so callers get local rejections without any network round trip.
func (e *Engine) call(fn func() error) error {
	reply := make(chan error, 1)
	if !e.post(func() { reply <- fn() }) {
		return ErrNotRunning
	}
	return <-reply
}

// StartSession begins a new session as inviter with the given meeting point.
func (e *Engine) StartSession(meet location.Point, address string) error {
	return e.call(func() error { return e.startSession(meet, address) })
}

// AcceptInvite parses pasted invite text and joins the session as invitee.
// Parse failures are returned before anything is enqueued.
func (e *Engine) AcceptInvite(text string) error {
	code, err := invite.Parse(text)
	if err != nil {
		return err
	}
	return e.call(func() error { return e.acceptInvite(code) })
}

// CancelSession cancels the whole session. Inviter only.
func (e *Engine) CancelSession() error {
	return e.call(func() error { return e.cancelSession() })
}

// CancelInvitation withdraws this device from the session. Invitee only.
func (e *Engine) CancelInvitation() error {
	return e.call(func() error { return e.cancelInvitation() })
}

// SyncNotifications reconciles local state against the backend notification
// log. A no-op without a role or without a connected channel.
func (e *Engine) SyncNotifications() error {
	return e.call(func() error { return e.syncNotifications() })
}

// HandleLocation feeds one position fix into the engine.
func (e *Engine) HandleLocation(u location.Update) {
	e.post(func() { e.handleLocation(u) })
}

// SetTravelMode switches the broadcast throttle between walking and driving.
func (e *Engine) SetTravelMode(mode location.TravelMode) {
	e.post(func() { e.throttle.SetMode(mode) })
}

// OperationInFlight reports whether a state-changing operation is
// outstanding.
func (e *Engine) OperationInFlight() bool {
	var busy bool
	_ = e.call(func() error {
		busy = e.busy
		return nil
	})
	return busy
}

// InviteText renders the shareable invitation for the current session.
// Inviter only.
func (e *Engine) InviteText() (string, error) {
	var text string
	err := e.call(func() error {
		if e.role != RoleInviter {
			return ErrWrongRole
		}
		var err error
		text, err = invite.Compose(e.cfg.InviteFriendlyText, e.session)
		return err
	})
	return text, err
}

// State returns a snapshot of the current state.
func (e *Engine) State() StateChange {
	var s StateChange
	_ = e.call(func() error {
		s = e.snapshot()
		return nil
	})
	return s
}

func (e *Engine) loadDeviceID() {
	id, err := e.store.Get(store.KeyDeviceID)
	if err == nil && len(id) >= shortDeviceLen {
		e.deviceID = id[:shortDeviceLen]
		return
	}
	raw := uuid.NewString()
	e.deviceID = raw[:shortDeviceLen]
	if err := e.store.Put(store.KeyDeviceID, e.deviceID); err != nil {
		slog.Error("failed to persist device id", "error", err)
	}
}

func (e *Engine) registerChannelHandlers() {
	e.channel.SetHandlers(push.Handlers{
		OnNotification: func(n roundup.Notification) {
			e.post(func() { e.deliver(n) })
		},
		OnOpen: func(uri string) {
			e.post(func() { e.channelOpened(uri) })
		},
		OnError: func(kind push.ErrorKind, err error) {
			e.post(func() {
				slog.Warn("push channel error", "kind", kind.String(), "error", err)
				e.publishBackgroundError("push channel: " + kind.String())
			})
		},
		OnDisconnect: func(err error) {
			e.post(func() { e.channelLost(err) })
		},
	})
}

func (e *Engine) channelOpened(uri string) {
	slog.Info("push channel open", "uri", uri)
	e.waiter.ChannelReady()

	if e.role == RoleNone || !e.session.Status.Alive() {
		return
	}

	// Hand the fresh URI to the backend so pushes keep reaching us.
	// Failures are silent: the stored notification log covers the gap.
	switch e.role {
	case RoleInviter:
		e.session.Channel = uri
		sess := e.session
		go func() {
			ctx, cancel := e.opContext()
			defer cancel()
			if op, err := e.backend.UpdateInviterChannelURI(ctx, sess); err != nil || !op.Result.OK() {
				slog.Warn("inviter channel uri refresh failed", "result", op.Result.String(), "error", err)
			}
		}()
	case RoleInvitee:
		e.invitee.Channel = uri
		inv := e.invitee
		go func() {
			ctx, cancel := e.opContext()
			defer cancel()
			if op, err := e.backend.UpdateInviteeChannelURI(ctx, inv); err != nil || !op.Result.OK() {
				slog.Warn("invitee channel uri refresh failed", "result", op.Result.String(), "error", err)
			}
		}()
	}
	e.persist()

	// Anything pushed while the channel was down sits in the backend log.
	if err := e.syncNotifications(); err != nil {
		slog.Debug("post-reconnect sync deferred", "error", err)
	}
}

func (e *Engine) channelLost(err error) {
	slog.Warn("push channel lost", "error", err)
	e.publishBackgroundError("push channel lost")

	// Only the inviter reconnects automatically: the session cannot live
	// without them, while an invitee can rely on reconciliation after the
	// user brings the app back.
	if e.role != RoleInviter {
		return
	}
	go func() {
		time.Sleep(reconnectDelay)
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ChannelWait())
		defer cancel()
		if err := e.channel.Connect(ctx); err != nil {
			slog.Warn("push channel reconnect failed", "error", err)
		}
	}()
}

func (e *Engine) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.cfg.RequestTimeout())
}

func (e *Engine) snapshot() StateChange {
	s := StateChange{
		Role:               e.role.String(),
		SessionID:          e.session.ID,
		SessionStatus:      statusOrEmpty(e.session.Status),
		InviteeID:          e.invitee.ID,
		InviteeStatus:      "",
		MeetLatitude:       e.meet.Latitude,
		MeetLongitude:      e.meet.Longitude,
		MeetAddress:        e.session.Address,
		ArrivedCount:       e.arrivedCount,
		LongJourneyWarning: e.longJourney,
	}
	if e.role == RoleInvitee {
		s.InviteeStatus = e.invitee.Status.String()
		s.InviterAlias = e.session.Name
	}
	if e.role == RoleInviter {
		for _, m := range e.markers {
			s.EnRoute = append(s.EnRoute, m)
		}
	}
	return s
}

func (e *Engine) publish() {
	e.publishWith(func(*StateChange) {})
}

func (e *Engine) publishUserError(msg string) {
	e.publishWith(func(s *StateChange) { s.UserError = msg })
}

func (e *Engine) publishBackgroundError(msg string) {
	e.publishWith(func(s *StateChange) { s.BackgroundError = msg })
}

func (e *Engine) publishReason(reason string) {
	e.publishWith(func(s *StateChange) { s.Reason = reason })
}

func (e *Engine) publishWith(decorate func(*StateChange)) {
	s := e.snapshot()
	decorate(&s)
	payload, err := json.Marshal(s)
	if err != nil {
		slog.Error("failed to encode state change", "error", err)
		return
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	if err := e.publisher.Publish(TopicStateChange, msg); err != nil {
		slog.Error("failed to publish state change", "error", err)
	}
}
