package device

import (
	"time"

	"github.com/google/uuid"
)

// Session is the P2 authentication record for the current connection.
// It is reset on every connect, disconnect and logout.
type Session struct {
	Authenticated bool
	UserID        uint16
	Start         time.Time
	Type          byte   // from SESSION_START
	ClientTime    uint32 // central's clock in SESSION_START, ms
	ID            uuid.UUID
}

func newSession(userID uint16, now time.Time) Session {
	return Session{
		Authenticated: true,
		UserID:        userID,
		Start:         now,
		ID:            uuid.New(),
	}
}
