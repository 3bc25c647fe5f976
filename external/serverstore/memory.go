package serverstore

import (
	"context"
	"sync"
	"time"

	"github.com/foxseedlab/roundup/internal/roundup"
	"github.com/foxseedlab/roundup/internal/server"
)

// MemoryStore is a map-backed Store for development mode and tests. Row ids
// are assigned from 1 the way the SQL store's sequences do.
type MemoryStore struct {
	mu            sync.Mutex
	sessions      map[int]roundup.Session
	invitees      map[int]roundup.Invitee
	notifications []roundup.Notification
	nextSessionID int
	nextInviteeID int
	nextNotifID   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:      make(map[int]roundup.Session),
		invitees:      make(map[int]roundup.Invitee),
		nextSessionID: 1,
		nextInviteeID: 1,
		nextNotifID:   1,
	}
}

func (s *MemoryStore) InsertSession(_ context.Context, sess roundup.Session) (roundup.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.ID = s.nextSessionID
	s.nextSessionID++
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *MemoryStore) GetSession(_ context.Context, id int) (roundup.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return roundup.Session{}, server.ErrNotFound
	}
	return sess, nil
}

func (s *MemoryStore) UpdateSession(_ context.Context, sess roundup.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return server.ErrNotFound
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *MemoryStore) ExpiredSessions(_ context.Context, cutoff time.Time) ([]roundup.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []roundup.Session
	for _, sess := range s.sessions {
		if sess.Status != roundup.SessionDead && sess.Timestamp.Before(cutoff) {
			list = append(list, sess)
		}
	}
	return list, nil
}

func (s *MemoryStore) InsertInvitee(_ context.Context, inv roundup.Invitee) (roundup.Invitee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv.ID = s.nextInviteeID
	s.nextInviteeID++
	s.invitees[inv.ID] = inv
	return inv, nil
}

func (s *MemoryStore) GetInvitee(_ context.Context, id int) (roundup.Invitee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitees[id]
	if !ok {
		return roundup.Invitee{}, server.ErrNotFound
	}
	return inv, nil
}

func (s *MemoryStore) UpdateInvitee(_ context.Context, inv roundup.Invitee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invitees[inv.ID]; !ok {
		return server.ErrNotFound
	}
	s.invitees[inv.ID] = inv
	return nil
}

func (s *MemoryStore) InviteesBySession(_ context.Context, sessionID int) ([]roundup.Invitee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []roundup.Invitee
	for id := 1; id < s.nextInviteeID; id++ {
		inv, ok := s.invitees[id]
		if ok && inv.SessionID == sessionID {
			list = append(list, inv)
		}
	}
	return list, nil
}

func (s *MemoryStore) DeleteInviteesBySession(_ context.Context, sessionID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, inv := range s.invitees {
		if inv.SessionID == sessionID {
			delete(s.invitees, id)
		}
	}
	return nil
}

func (s *MemoryStore) InsertNotification(_ context.Context, n roundup.Notification) (roundup.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = s.nextNotifID
	s.nextNotifID++
	s.notifications = append(s.notifications, n)
	return n, nil
}

func (s *MemoryStore) NotificationsBySession(_ context.Context, sessionID, recipient, inviteeID int) ([]roundup.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []roundup.Notification
	for _, n := range s.notifications {
		if n.SessionID != sessionID || n.Recipient != recipient {
			continue
		}
		if recipient == roundup.RecipientInvitee && n.InviteeID != inviteeID {
			continue
		}
		list = append(list, n)
	}
	return list, nil
}

func (s *MemoryStore) DeleteNotificationsBySession(_ context.Context, sessionID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.notifications[:0]
	for _, n := range s.notifications {
		if n.SessionID != sessionID {
			kept = append(kept, n)
		}
	}
	s.notifications = kept
	return nil
}

func (s *MemoryStore) Close() {}
