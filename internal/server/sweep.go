package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/foxseedlab/roundup/internal/roundup"
)

// Sweeper retires sessions past their lifetime: the session row is kept but
// marked dead and scrubbed of personal data, and the invitee and
// notification rows disappear entirely.
type Sweeper struct {
	store    Store
	lifetime time.Duration
	schedule string
	now      func() time.Time

	cron *cron.Cron
}

func NewSweeper(store Store, lifetime time.Duration, schedule string) *Sweeper {
	return &Sweeper{
		store:    store,
		lifetime: lifetime,
		schedule: schedule,
		now:      time.Now,
	}
}

// Start registers the sweep on its cron schedule and begins running it.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("sweeper started", "schedule", s.schedule, "lifetime", s.lifetime)
	return nil
}

func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Sweep runs one pass. Failures on one session do not stop the others.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := s.now().Add(-s.lifetime)
	expired, err := s.store.ExpiredSessions(ctx, cutoff)
	if err != nil {
		slog.Error("sweep query failed", "error", err)
		return
	}
	retired := 0
	for _, sess := range expired {
		if err := s.retire(ctx, sess); err != nil {
			slog.Error("sweep failed for session", "session_id", sess.ID, "error", err)
			continue
		}
		retired++
	}
	if retired > 0 {
		slog.Info("sweep retired sessions", "count", retired)
	}
}

func (s *Sweeper) retire(ctx context.Context, sess roundup.Session) error {
	sess.Status = roundup.SessionDead
	sess.Name = ""
	sess.Channel = ""
	sess.Address = ""
	sess.ShortDeviceID = ""
	sess.Device = 0
	sess.RequestData = ""
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return err
	}
	if err := s.store.DeleteInviteesBySession(ctx, sess.ID); err != nil {
		return err
	}
	return s.store.DeleteNotificationsBySession(ctx, sess.ID)
}
