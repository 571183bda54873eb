package room

import (
	"github.com/Kanata-Kikuchi/mahjong-lite-server/seat"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/session"
)

// Member is a delivery target: a seated player and the session it is
// currently reachable on, which may be nil or closed.
type Member struct {
	PlayerID string
	Seat     seat.Seat
	Session  *session.Session
}

// Broadcaster delivers rendered messages. It is defined here to break the
// import cycle between room and broadcast.
type Broadcaster interface {
	// Broadcast sends msgType to the subset of members its policy selects.
	Broadcast(roomID, msgType string, members []Member, payload any)
	// Reply sends msgType to a single session.
	Reply(to *session.Session, msgType string, payload any)
}
