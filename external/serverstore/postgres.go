package serverstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foxseedlab/roundup/internal/roundup"
	"github.com/foxseedlab/roundup/internal/server"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) server.Store {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) InsertSession(ctx context.Context, sess roundup.Session) (roundup.Session, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (created_at, name, channel, latitude, longitude, address, short_device_id, device, status, request_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		sess.Timestamp, sess.Name, sess.Channel, sess.Latitude, sess.Longitude,
		sess.Address, sess.ShortDeviceID, sess.Device, int(sess.Status), sess.RequestData)
	if err := row.Scan(&sess.ID); err != nil {
		return roundup.Session{}, err
	}
	return sess, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id int) (roundup.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, created_at, name, channel, latitude, longitude, address, short_device_id, device, status, request_data
		 FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err == pgx.ErrNoRows {
		return roundup.Session{}, server.ErrNotFound
	}
	return sess, err
}

func (s *PostgresStore) UpdateSession(ctx context.Context, sess roundup.Session) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sessions SET name = $2, channel = $3, latitude = $4, longitude = $5,
		 address = $6, short_device_id = $7, device = $8, status = $9, request_data = $10
		 WHERE id = $1`,
		sess.ID, sess.Name, sess.Channel, sess.Latitude, sess.Longitude,
		sess.Address, sess.ShortDeviceID, sess.Device, int(sess.Status), sess.RequestData)
	return err
}

func (s *PostgresStore) ExpiredSessions(ctx context.Context, cutoff time.Time) ([]roundup.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, created_at, name, channel, latitude, longitude, address, short_device_id, device, status, request_data
		 FROM sessions WHERE created_at < $1 AND status <> $2 ORDER BY id`,
		cutoff, int(roundup.SessionDead))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []roundup.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, sess)
	}
	return list, rows.Err()
}

func (s *PostgresStore) InsertInvitee(ctx context.Context, inv roundup.Invitee) (roundup.Invitee, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO invitees (session_id, created_at, name, channel, latitude, longitude, address, device, status, inviter_short_device_id, request_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		inv.SessionID, inv.Timestamp, inv.Name, inv.Channel, inv.Latitude, inv.Longitude,
		inv.Address, inv.Device, int(inv.Status), inv.InviterShortDeviceID, inv.RequestData)
	if err := row.Scan(&inv.ID); err != nil {
		return roundup.Invitee{}, err
	}
	return inv, nil
}

func (s *PostgresStore) GetInvitee(ctx context.Context, id int) (roundup.Invitee, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, session_id, created_at, name, channel, latitude, longitude, address, device, status, inviter_short_device_id, request_data
		 FROM invitees WHERE id = $1`, id)
	inv, err := scanInvitee(row)
	if err == pgx.ErrNoRows {
		return roundup.Invitee{}, server.ErrNotFound
	}
	return inv, err
}

func (s *PostgresStore) UpdateInvitee(ctx context.Context, inv roundup.Invitee) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE invitees SET name = $2, channel = $3, latitude = $4, longitude = $5,
		 address = $6, device = $7, status = $8, inviter_short_device_id = $9, request_data = $10
		 WHERE id = $1`,
		inv.ID, inv.Name, inv.Channel, inv.Latitude, inv.Longitude,
		inv.Address, inv.Device, int(inv.Status), inv.InviterShortDeviceID, inv.RequestData)
	return err
}

func (s *PostgresStore) InviteesBySession(ctx context.Context, sessionID int) ([]roundup.Invitee, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, created_at, name, channel, latitude, longitude, address, device, status, inviter_short_device_id, request_data
		 FROM invitees WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []roundup.Invitee
	for rows.Next() {
		inv, err := scanInvitee(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, inv)
	}
	return list, rows.Err()
}

func (s *PostgresStore) DeleteInviteesBySession(ctx context.Context, sessionID int) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM invitees WHERE session_id = $1`, sessionID)
	return err
}

func (s *PostgresStore) InsertNotification(ctx context.Context, n roundup.Notification) (roundup.Notification, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO notifications (recipient, session_id, invitee_id, message_id, data, short_device_id, latitude, longitude)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		n.Recipient, n.SessionID, n.InviteeID, n.MessageID, n.Data, n.ShortDeviceID, n.Latitude, n.Longitude)
	if err := row.Scan(&n.ID); err != nil {
		return roundup.Notification{}, err
	}
	return n, nil
}

func (s *PostgresStore) NotificationsBySession(ctx context.Context, sessionID, recipient, inviteeID int) ([]roundup.Notification, error) {
	query := `SELECT id, recipient, session_id, invitee_id, message_id, data, short_device_id, latitude, longitude
		 FROM notifications WHERE session_id = $1 AND recipient = $2 ORDER BY id`
	args := []any{sessionID, recipient}
	if recipient == roundup.RecipientInvitee {
		query = `SELECT id, recipient, session_id, invitee_id, message_id, data, short_device_id, latitude, longitude
		 FROM notifications WHERE session_id = $1 AND recipient = $2 AND invitee_id = $3 ORDER BY id`
		args = append(args, inviteeID)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []roundup.Notification
	for rows.Next() {
		var n roundup.Notification
		if err := rows.Scan(&n.ID, &n.Recipient, &n.SessionID, &n.InviteeID, &n.MessageID,
			&n.Data, &n.ShortDeviceID, &n.Latitude, &n.Longitude); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

func (s *PostgresStore) DeleteNotificationsBySession(ctx context.Context, sessionID int) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE session_id = $1`, sessionID)
	return err
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func scanSession(row pgx.Row) (roundup.Session, error) {
	var sess roundup.Session
	var status int
	err := row.Scan(&sess.ID, &sess.Timestamp, &sess.Name, &sess.Channel,
		&sess.Latitude, &sess.Longitude, &sess.Address, &sess.ShortDeviceID,
		&sess.Device, &status, &sess.RequestData)
	if err != nil {
		return roundup.Session{}, err
	}
	sess.Status = roundup.SessionStatus(status)
	return sess, nil
}

func scanInvitee(row pgx.Row) (roundup.Invitee, error) {
	var inv roundup.Invitee
	var status int
	err := row.Scan(&inv.ID, &inv.SessionID, &inv.Timestamp, &inv.Name, &inv.Channel,
		&inv.Latitude, &inv.Longitude, &inv.Address, &inv.Device, &status,
		&inv.InviterShortDeviceID, &inv.RequestData)
	if err != nil {
		return roundup.Invitee{}, err
	}
	inv.Status = roundup.InviteeStatus(status)
	return inv, nil
}
