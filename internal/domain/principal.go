package domain

import (
	"strconv"
	"time"
)

// Principal is an authenticated portal user, always scoped to exactly one
// organisation.
type Principal struct {
	ID        string
	ProfileID int64
	UserName  string
	OrgID     int64
}

// NewPrincipal builds a Principal whose ID is the decimal profile id.
func NewPrincipal(profileID int64, userName string, orgID int64) Principal {
	return Principal{
		ID:        strconv.FormatInt(profileID, 10),
		ProfileID: profileID,
		UserName:  userName,
		OrgID:     orgID,
	}
}

// Valid reports whether the principal satisfies its identity invariants.
func (p Principal) Valid() bool {
	return p.ProfileID > 0 &&
		p.OrgID > 0 &&
		p.UserName != "" &&
		p.ID == strconv.FormatInt(p.ProfileID, 10)
}

// Session binds a Principal to a bounded lifetime.
type Session struct {
	Principal Principal
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Age returns how long ago the session was issued, relative to now.
func (s Session) Age(now time.Time) time.Duration {
	return now.Sub(s.IssuedAt)
}

// Lifetime returns the total validity window of the session.
func (s Session) Lifetime() time.Duration {
	return s.ExpiresAt.Sub(s.IssuedAt)
}

// Identity is what the backend confirms for a set of credentials.
type Identity struct {
	ProfileID int64  `json:"profileId" validate:"gt=0"`
	UserName  string `json:"userName" validate:"required"`
}
