package room

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kanata-Kikuchi/mahjong-lite-server/errs"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/logger"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/network"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/session"
)

const maxCodeAttempts = 32

// Manager is the registry of live rooms. The map has its own lock; each
// room serializes its own mutations.
type Manager struct {
	rooms       map[string]*Room
	mutex       sync.RWMutex
	broadcaster Broadcaster

	// replaceable in tests
	newCode     func() (string, error)
	newPlayerID func() string
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager(broadcaster Broadcaster) *Manager {
	return &Manager{
		rooms:       make(map[string]*Room),
		broadcaster: broadcaster,
		newCode:     GenerateCode,
		newPlayerID: func() string { return uuid.New().String() },
	}
}

// hasValue reports whether raw carries a JSON value other than null.
func hasValue(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// CreateRoom opens a room with hostName seated at seat0, then sends the
// creator its room code and identity and the roster.
func (m *Manager) CreateRoom(hostName string, rule json.RawMessage, sess *session.Session) (*Room, *Player, error) {
	if hostName == "" {
		return nil, nil, errs.MissingField("name")
	}
	if !hasValue(rule) {
		return nil, nil, errs.MissingField("rule")
	}

	m.mutex.Lock()
	id, err := m.freeCodeLocked()
	if err != nil {
		m.mutex.Unlock()
		return nil, nil, err
	}
	r := NewRoom(id, rule, m.broadcaster)
	r.mu.Lock()
	m.rooms[id] = r
	m.mutex.Unlock()
	defer r.mu.Unlock()

	p, err := r.admitLocked(m.newPlayerID(), hostName, sess)
	if err != nil {
		m.mutex.Lock()
		delete(m.rooms, id)
		m.mutex.Unlock()
		return nil, nil, err
	}

	logger.Log.Infow("room created", "room", id, "player", p.ID)
	r.replyLocked(sess, network.MsgRoomCreated, roomCreatedView{RoomID: id})
	r.replyLocked(sess, network.MsgSetID, setIDView{RoomID: id, PlayerID: p.ID})
	r.broadcastLocked(network.MsgRoomState, r.roomStateLocked())
	return r, p, nil
}

func (m *Manager) freeCodeLocked() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := m.newCode()
		if err != nil {
			return "", errs.New(errs.KindInternal, "room code: %v", err)
		}
		if _, taken := m.rooms[code]; !taken {
			return code, nil
		}
		logger.Log.Debugw("room code collision, regenerating", "code", code)
	}
	return "", errs.New(errs.KindInternal, "no free room code after %d attempts", maxCodeAttempts)
}

// JoinRoom seats name in roomID.
func (m *Manager) JoinRoom(roomID, name string, sess *session.Session) (*Room, *Player, error) {
	if roomID == "" {
		return nil, nil, errs.MissingField("roomId")
	}
	if name == "" {
		return nil, nil, errs.MissingField("name")
	}
	r, err := m.mustGet(roomID)
	if err != nil {
		return nil, nil, err
	}
	p, err := r.Join(m.newPlayerID(), name, sess)
	if err != nil {
		return nil, nil, err
	}
	return r, p, nil
}

// Resume rebinds playerID in roomID to sess and replies with the result,
// success or failure, to sess only.
func (m *Manager) Resume(roomID, playerID string, sess *session.Session) (ResumeResult, error) {
	var (
		result ResumeResult
		err    error
	)
	switch {
	case roomID == "" || playerID == "":
		result = failedResume(errs.KindMissingIdentifier)
		err = errs.New(errs.KindMissingIdentifier, "roomId and playerId are required")
	default:
		r, getErr := m.mustGet(roomID)
		if getErr != nil {
			result, err = failedResume(errs.KindRoomNotFound), getErr
			break
		}
		result, err = r.Resume(playerID, sess)
	}

	if m.broadcaster != nil && sess != nil {
		m.broadcaster.Reply(sess, network.MsgResumeResult, result)
	}
	return result, err
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[id]
	return room, exists
}

func (m *Manager) mustGet(id string) (*Room, error) {
	r, ok := m.GetRoom(id)
	if !ok {
		return nil, errs.New(errs.KindRoomNotFound, "room %s", id)
	}
	return r, nil
}

// Lookup is GetRoom with a structured error for the router.
func (m *Manager) Lookup(id string) (*Room, error) {
	if id == "" {
		return nil, errs.MissingField("roomId")
	}
	return m.mustGet(id)
}

// RemoveRoom unregisters a room and notifies its members with msgType (none
// when empty). Removing an unknown room is a no-op.
func (m *Manager) RemoveRoom(id, msgType string) bool {
	m.mutex.Lock()
	r, exists := m.rooms[id]
	if exists {
		delete(m.rooms, id)
	}
	m.mutex.Unlock()

	if !exists {
		return false
	}
	r.Close(msgType)
	logger.Log.Infow("room removed", "room", id, "notify", msgType)
	return true
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// List returns live room ids in sorted order.
func (m *Manager) List() []string {
	m.mutex.RLock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	m.mutex.RUnlock()
	slices.Sort(ids)
	return ids
}

// ReapIdle removes rooms nobody is connected to and that saw no activity
// for timeout. Nobody is notified; there is nobody to reach.
func (m *Manager) ReapIdle(now time.Time, timeout time.Duration) []string {
	if timeout <= 0 {
		return nil
	}

	m.mutex.RLock()
	candidates := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		candidates = append(candidates, r)
	}
	m.mutex.RUnlock()

	var reaped []string
	for _, r := range candidates {
		if r.Idle(now, timeout) && m.RemoveRoom(r.ID, "") {
			reaped = append(reaped, r.ID)
		}
	}
	slices.Sort(reaped)
	if len(reaped) > 0 {
		logger.Log.Infow("idle rooms reaped", "rooms", reaped, "timeout", timeout)
	}
	return reaped
}
