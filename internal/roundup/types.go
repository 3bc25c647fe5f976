package roundup

import "time"

// Sentinel id for rows that have not been assigned by the backend yet.
const UnassignedID = -1

// MaxInvitees is the hard per-session participant limit enforced by the backend.
const MaxInvitees = 10

// Recipient identifies who a notification is addressed to.
const (
	RecipientInviter = 0
	RecipientInvitee = 1
	RecipientUnknown = -1
)

// SessionStatus is the lifecycle status of a session. The numeric values are
// part of the wire contract with the backend and must not be reordered.
type SessionStatus int

const (
	SessionNotSet SessionStatus = iota
	SessionStarted
	SessionActive
	SessionCancelledByInviter
	SessionCancelledByInvitees // unused slot, kept so numbering matches the backend
	SessionHasEnded
	SessionAborted // unused slot
	SessionDead
)

// Alive reports whether the session can still accept invitees and requests.
func (s SessionStatus) Alive() bool {
	return s == SessionStarted || s == SessionActive
}

func (s SessionStatus) String() string {
	switch s {
	case SessionNotSet:
		return "not-set"
	case SessionStarted:
		return "started"
	case SessionActive:
		return "active"
	case SessionCancelledByInviter:
		return "cancelled-by-inviter"
	case SessionCancelledByInvitees:
		return "cancelled-by-invitees"
	case SessionHasEnded:
		return "ended"
	case SessionAborted:
		return "aborted"
	case SessionDead:
		return "dead"
	}
	return "unknown"
}

// InviteeStatus is the lifecycle status of an invitee. Numeric values are part
// of the wire contract.
type InviteeStatus int

const (
	InviteeNotSet          InviteeStatus = iota
	InviteeHasNotResponded               // unused slot
	InviteeAccepted
	InviteeDeclined // unused slot
	InviteeCancelled
	InviteeArrived
	InviteeEnRoute
)

func (s InviteeStatus) String() string {
	switch s {
	case InviteeNotSet:
		return "not-set"
	case InviteeHasNotResponded:
		return "not-responded"
	case InviteeAccepted:
		return "accepted"
	case InviteeDeclined:
		return "declined"
	case InviteeCancelled:
		return "cancelled"
	case InviteeArrived:
		return "arrived"
	case InviteeEnRoute:
		return "en-route"
	}
	return "unknown"
}

// RequestMessage tags an outbound table request and selects the server-side
// hook behavior. Numeric values are part of the wire contract.
type RequestMessage int

const (
	RequestInvalid RequestMessage = iota
	RequestSessionStart
	RequestSessionCancel
	RequestInviteeJoin
	RequestInviteeCancel
	RequestInviteeLocationUpdate
	RequestRoundUpLocationChange
	RequestInstantMessage
	RequestInviteeArrived
	RequestSessionEnd
	RequestUpdateInviterChannelURI
	RequestUpdateInviteeChannelURI
)

// Message is the semantic type of a delivered notification. These string
// tokens appear verbatim in push payloads and the backend notification log.
type Message string

const (
	MsgSessionStarted            Message = "SessionStarted"
	MsgSessionCancelledByInviter Message = "SessionCancelledByInviter"
	MsgSessionHasEnded           Message = "SessionHasEnded"
	MsgSessionDead               Message = "SessionDead"
	MsgInviteeHasAccepted        Message = "InviteeHasAccepted"
	MsgInviteeHasCancelled       Message = "InviteeHasCancelled"
	MsgInviteeHasArrived         Message = "InviteeHasArrived"
	MsgInviteeLocationUpdate     Message = "InviteeLocationUpdate"
	MsgRoundUpLocationChange     Message = "RoundUpLocationChange"
	MsgInstantMessage            Message = "InstantMessage"
)

// ParseMessage maps a wire token to a Message. Unknown tokens are reported
// rather than propagated so a bad payload never reaches the state machine.
func ParseMessage(token string) (Message, bool) {
	switch Message(token) {
	case MsgSessionStarted, MsgSessionCancelledByInviter, MsgSessionHasEnded,
		MsgSessionDead, MsgInviteeHasAccepted, MsgInviteeHasCancelled,
		MsgInviteeHasArrived, MsgInviteeLocationUpdate,
		MsgRoundUpLocationChange, MsgInstantMessage:
		return Message(token), true
	}
	return "", false
}

// Terminal reports whether the message ends the session for every
// participant. Terminal messages short-circuit reconciliation replay.
func (m Message) Terminal() bool {
	return m == MsgSessionCancelledByInviter || m == MsgSessionHasEnded || m == MsgSessionDead
}

// InviteeScoped reports whether the message describes one invitee rather than
// the session as a whole. Invitee-scoped messages are matched by invitee id
// as well as message id during reconciliation.
func (m Message) InviteeScoped() bool {
	switch m {
	case MsgInviteeHasAccepted, MsgInviteeHasCancelled, MsgInviteeHasArrived, MsgInviteeLocationUpdate:
		return true
	}
	return false
}

// Session mirrors one row in the backend Session table. The inviter's device
// owns it; id stays UnassignedID until the backend inserts the row.
type Session struct {
	ID            int           `json:"id"`
	Timestamp     time.Time     `json:"Timestamp"`
	Name          string        `json:"Name"`
	Channel       string        `json:"Channel"`
	Latitude      float64       `json:"Latitude"`
	Longitude     float64       `json:"Longitude"`
	Address       string        `json:"Address"`
	ShortDeviceID string        `json:"ShortDeviceId"`
	Device        int           `json:"Device"`
	Request       RequestMessage `json:"RequestMessageId"`
	Status        SessionStatus `json:"SessionStatusId"`
	RequestDataID int           `json:"RequestDataId"`
	RequestData   string        `json:"RequestData"`
}

// Invitee mirrors one row in the backend Invitee table.
type Invitee struct {
	ID                   int           `json:"id"`
	SessionID            int           `json:"sid"`
	Timestamp            time.Time     `json:"Timestamp"`
	Name                 string        `json:"Name"`
	Channel              string        `json:"Channel"`
	Latitude             float64       `json:"Latitude"`
	Longitude            float64       `json:"Longitude"`
	Address              string        `json:"Address"`
	Device               int           `json:"Device"`
	Request              RequestMessage `json:"RequestMessageId"`
	Status               InviteeStatus `json:"InviteeStatusId"`
	InviterShortDeviceID string        `json:"InviterShortDeviceId"`
	RequestDataID        int           `json:"RequestDataId"`
	RequestData          string        `json:"RequestData"`
}

// Notification is one immutable record of a push the backend asked the
// channel to deliver. The same shape is used for live push payloads and for
// rows of the backend notification log.
type Notification struct {
	ID            int     `json:"id"`
	Recipient     int     `json:"Recipient"`
	SessionID     int     `json:"SessionId"`
	InviteeID     int     `json:"InviteeId"`
	MessageID     string  `json:"MessageId"`
	Data          string  `json:"Data"`
	ShortDeviceID string  `json:"ShortDeviceId"`
	Latitude      float64 `json:"Latitude"`
	Longitude     float64 `json:"Longitude"`
}

// Matches reports whether n corresponds to the same logical event as other.
// Session-scoped messages match by message id alone; invitee-scoped messages
// additionally require the same invitee id.
func (n Notification) Matches(other Notification) bool {
	if n.MessageID != other.MessageID {
		return false
	}
	if Message(n.MessageID).InviteeScoped() {
		return n.InviteeID == other.InviteeID
	}
	return true
}
