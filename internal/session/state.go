package session

import "github.com/foxseedlab/roundup/internal/roundup"

// Role is the device's part in the current session.
type Role int

const (
	RoleNone Role = iota
	RoleInviter
	RoleInvitee
)

func (r Role) String() string {
	switch r {
	case RoleInviter:
		return "inviter"
	case RoleInvitee:
		return "invitee"
	}
	return "none"
}

func parseRole(s string) Role {
	switch s {
	case "inviter":
		return RoleInviter
	case "invitee":
		return RoleInvitee
	}
	return RoleNone
}

// Marker is the inviter's view of one en-route invitee.
type Marker struct {
	InviteeID int     `json:"invitee_id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TopicStateChange is the event bus topic the engine publishes on.
const TopicStateChange = "roundup.state"

// StateChange is the engine's full observable state, published after every
// transition. Subscribers render it; entities fire no per-field events.
type StateChange struct {
	Role          string `json:"role"`
	SessionID     int    `json:"session_id"`
	SessionStatus string `json:"session_status"`
	InviteeID     int    `json:"invitee_id"`
	InviteeStatus string `json:"invitee_status"`

	MeetLatitude  float64 `json:"meet_latitude"`
	MeetLongitude float64 `json:"meet_longitude"`
	MeetAddress   string  `json:"meet_address"`
	InviterAlias  string  `json:"inviter_alias,omitempty"`

	EnRoute      []Marker `json:"en_route,omitempty"`
	ArrivedCount int      `json:"arrived_count"`

	LongJourneyWarning bool   `json:"long_journey_warning,omitempty"`
	Reason             string `json:"reason,omitempty"`

	// UserError reports the failure of an operation the user asked for;
	// BackgroundError reports failures of the machinery (push channel,
	// reconciliation, best-effort broadcasts).
	UserError       string `json:"user_error,omitempty"`
	BackgroundError string `json:"background_error,omitempty"`
}

func statusOrEmpty(s roundup.SessionStatus) string {
	if s == roundup.SessionNotSet {
		return ""
	}
	return s.String()
}
