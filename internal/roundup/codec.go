package roundup

import (
	"fmt"
	"strconv"
	"strings"
)

// notificationFieldCount is the number of pipe-separated fields in a
// flattened notification record.
const notificationFieldCount = 9

// FlattenNotification encodes n as a single pipe-delimited line:
//
//	id|Recipient|SessionId|InviteeId|MessageId|Data|ShortDeviceId|Latitude|Longitude
//
// The format is append-friendly and survives round trips through the local
// store without a schema.
func FlattenNotification(n Notification) string {
	return strings.Join([]string{
		strconv.Itoa(n.ID),
		strconv.Itoa(n.Recipient),
		strconv.Itoa(n.SessionID),
		strconv.Itoa(n.InviteeID),
		n.MessageID,
		n.Data,
		n.ShortDeviceID,
		strconv.FormatFloat(n.Latitude, 'f', -1, 64),
		strconv.FormatFloat(n.Longitude, 'f', -1, 64),
	}, "|")
}

// RestoreNotification decodes a line produced by FlattenNotification. Any
// malformed numeric field marks the record corrupt; callers discard corrupt
// records rather than guessing at their contents.
func RestoreNotification(line string) (Notification, error) {
	parts := strings.Split(line, "|")
	if len(parts) != notificationFieldCount {
		return Notification{}, fmt.Errorf("restore notification: want %d fields, got %d", notificationFieldCount, len(parts))
	}

	var (
		n   Notification
		err error
	)
	if n.ID, err = strconv.Atoi(parts[0]); err != nil {
		return Notification{}, fmt.Errorf("restore notification: id: %w", err)
	}
	if n.Recipient, err = strconv.Atoi(parts[1]); err != nil {
		return Notification{}, fmt.Errorf("restore notification: recipient: %w", err)
	}
	if n.SessionID, err = strconv.Atoi(parts[2]); err != nil {
		return Notification{}, fmt.Errorf("restore notification: session id: %w", err)
	}
	if n.InviteeID, err = strconv.Atoi(parts[3]); err != nil {
		return Notification{}, fmt.Errorf("restore notification: invitee id: %w", err)
	}
	n.MessageID = parts[4]
	n.Data = parts[5]
	n.ShortDeviceID = parts[6]
	if n.Latitude, err = strconv.ParseFloat(parts[7], 64); err != nil {
		return Notification{}, fmt.Errorf("restore notification: latitude: %w", err)
	}
	if n.Longitude, err = strconv.ParseFloat(parts[8], 64); err != nil {
		return Notification{}, fmt.Errorf("restore notification: longitude: %w", err)
	}
	return n, nil
}

// FlattenAll encodes a notification log one record per line, preserving order.
func FlattenAll(ns []Notification) string {
	lines := make([]string, 0, len(ns))
	for _, n := range ns {
		lines = append(lines, FlattenNotification(n))
	}
	return strings.Join(lines, "\n")
}

// RestoreAll decodes a log produced by FlattenAll. Corrupt lines are dropped
// silently so one bad record cannot take the whole retained log down.
func RestoreAll(blob string) []Notification {
	if blob == "" {
		return nil
	}
	var out []Notification
	for _, line := range strings.Split(blob, "\n") {
		if line == "" {
			continue
		}
		n, err := RestoreNotification(line)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
