// Package invite builds and parses the share codes that carry a session
// invitation between devices over any text channel (SMS, email, chat).
package invite

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/foxseedlab/roundup/internal/roundup"
)

// Scheme is the custom URI scheme invitations travel under.
const Scheme = "rndup://"

// shortDeviceIDLen is the fixed width of the inviter's short device id inside
// an invite code.
const shortDeviceIDLen = 8

var (
	ErrNoScheme     = errors.New("invite: no rndup scheme found")
	ErrBadSessionID = errors.New("invite: session id is not a number")
	ErrBadDeviceID  = errors.New("invite: short device id must be 8 characters")
	ErrBadAlias     = errors.New("invite: alias is malformed")
	ErrNotIssued    = errors.New("invite: session has no backend id yet")
)

// Code is a parsed invitation.
type Code struct {
	SessionID     int
	ShortDeviceID string
	InviterAlias  string
}

// Equal reports whether two codes point at the same session invitation.
// Used to de-duplicate repeated launches of the same URI.
func (c Code) Equal(other Code) bool {
	return c.SessionID == other.SessionID && c.ShortDeviceID == other.ShortDeviceID
}

// Compose renders the shareable invitation text: a friendly sentence on the
// first line and the machine-readable URI on the second. The session must
// already have been issued an id by the backend.
func Compose(friendly string, session roundup.Session) (string, error) {
	if session.ID == roundup.UnassignedID {
		return "", ErrNotIssued
	}
	uri := fmt.Sprintf("%s%d?did=%s&nme=%s",
		Scheme, session.ID, session.ShortDeviceID, url.QueryEscape(session.Name))
	if friendly == "" {
		return uri, nil
	}
	return friendly + "\n" + uri, nil
}

// Parse extracts the invitation from arbitrary pasted text. Everything before
// the rndup scheme is ignored; the alias runs to the first space or the end
// of the text, so trailing prose after the URI is tolerated.
func Parse(text string) (Code, error) {
	at := strings.Index(text, Scheme)
	if at < 0 {
		return Code{}, ErrNoScheme
	}
	rest := text[at+len(Scheme):]

	sidText, rest, found := strings.Cut(rest, "?did=")
	if !found {
		return Code{}, ErrBadDeviceID
	}
	// Launch URIs arrive with a normalized path separator before the query.
	sidText = strings.TrimSuffix(sidText, "/")
	sid, err := strconv.Atoi(sidText)
	if err != nil {
		return Code{}, ErrBadSessionID
	}

	if len(rest) < shortDeviceIDLen {
		return Code{}, ErrBadDeviceID
	}
	did := rest[:shortDeviceIDLen]
	rest = rest[shortDeviceIDLen:]

	if !strings.HasPrefix(rest, "&nme=") {
		return Code{}, ErrBadAlias
	}
	rest = rest[len("&nme="):]
	if sp := strings.IndexByte(rest, ' '); sp >= 0 {
		rest = rest[:sp]
	}
	alias, err := url.QueryUnescape(rest)
	if err != nil {
		return Code{}, ErrBadAlias
	}

	return Code{SessionID: sid, ShortDeviceID: did, InviterAlias: alias}, nil
}
