// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/Kanata-Kikuchi/mahjong-lite-server/errs"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/logger"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/monitor"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/network"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/room"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/seat"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/session"
)

// Policy selects which members receive a message.
type Policy func(m room.Member) bool

// Everyone selects every member.
func Everyone(room.Member) bool { return true }

// AllExcept selects every member not seated at s.
func AllExcept(s seat.Seat) Policy {
	return func(m room.Member) bool { return m.Seat != s }
}

// policies maps room-wide message types to their audience. The seat0 player
// enters round input, so relays skip that seat.
var policies = map[string]Policy{
	network.MsgRoomState:  Everyone,
	network.MsgGameState:  AllExcept(seat.First),
	network.MsgGameStart:  Everyone,
	network.MsgGameFinish: Everyone,
	network.MsgDeleteRoom: Everyone,
	network.MsgNaviRoot:   Everyone,
}

// PolicyFor returns the audience policy of msgType, Everyone if unlisted.
func PolicyFor(msgType string) Policy {
	if p, ok := policies[msgType]; ok {
		return p
	}
	return Everyone
}

// ErrorView is the payload of an error frame.
type ErrorView struct {
	Code    errs.Kind `json:"code"`
	Message string    `json:"message"`
}

// Dispatcher renders messages and delivers them best-effort: closed or slow
// connections are skipped, never retried.
type Dispatcher struct {
	metrics *monitor.Monitor
}

func NewDispatcher(metrics *monitor.Monitor) *Dispatcher {
	return &Dispatcher{metrics: metrics}
}

// Recipients applies the policy of msgType to members.
func (d *Dispatcher) Recipients(msgType string, members []room.Member) []room.Member {
	policy := PolicyFor(msgType)
	out := make([]room.Member, 0, len(members))
	for _, m := range members {
		if policy(m) {
			out = append(out, m)
		}
	}
	return out
}

// Broadcast implements room.Broadcaster.
func (d *Dispatcher) Broadcast(roomID, msgType string, members []room.Member, payload any) {
	data, err := network.Encode(msgType, payload)
	if err != nil {
		logger.Log.Errorw("encode broadcast", "room", roomID, "type", msgType, "error", err)
		return
	}

	for _, m := range d.Recipients(msgType, members) {
		if !d.deliver(m.Session, data) {
			logger.Log.Debugw("broadcast skipped", "room", roomID, "type", msgType, "player", m.PlayerID)
		}
	}
}

// Reply implements room.Broadcaster.
func (d *Dispatcher) Reply(to *session.Session, msgType string, payload any) {
	data, err := network.Encode(msgType, payload)
	if err != nil {
		logger.Log.Errorw("encode reply", "type", msgType, "error", err)
		return
	}
	if !d.deliver(to, data) {
		logger.Log.Debugw("reply skipped", "type", msgType)
	}
}

// Error reports err to a single connection as an error frame.
func (d *Dispatcher) Error(to *session.Session, err error) {
	kind := errs.KindOf(err)
	d.metrics.IncCommandErrors(string(kind))
	d.Reply(to, network.MsgError, ErrorView{Code: kind, Message: err.Error()})
}

func (d *Dispatcher) deliver(to *session.Session, data []byte) bool {
	if to == nil || !to.IsOpen() {
		d.metrics.IncBroadcastSkipped()
		return false
	}
	if err := to.Send(data); err != nil {
		d.metrics.IncBroadcastSkipped()
		if errors.Is(err, network.ErrSendBufferFull) {
			logger.Log.Warnw("send buffer full", "session", to.GetID())
		}
		return false
	}
	return true
}
