// session/session.go
package session

import (
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/Kanata-Kikuchi/mahjong-lite-server/network"
)

// Session is one live connection. A room player holds a reference to the
// session it is currently reachable on; the session does not own the player.
type Session struct {
	ID        string
	Conn      network.Connection
	CreatedAt time.Time

	roomID     string
	playerID   string
	lastActive time.Time
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
	}
}

func (s *Session) GetID() string {
	return s.ID
}

// Send writes a raw frame.
func (s *Session) Send(data []byte) error {
	return s.Conn.Send(data)
}

// SendMessage encodes and writes a single envelope.
func (s *Session) SendMessage(msgType string, payload any) error {
	data, err := network.Encode(msgType, payload)
	if err != nil {
		return err
	}
	return s.Conn.Send(data)
}

// IsOpen reports whether frames can still reach the peer.
func (s *Session) IsOpen() bool {
	return s.Conn != nil && s.Conn.IsOpen()
}

// Bind records which room membership this connection speaks for.
func (s *Session) Bind(roomID, playerID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.roomID = roomID
	s.playerID = playerID
}

// Unbind clears the membership if it still points at roomID.
func (s *Session) Unbind(roomID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.roomID == roomID {
		s.roomID = ""
		s.playerID = ""
	}
}

// Binding returns the room and player this session was last bound to.
func (s *Session) Binding() (roomID, playerID string) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.roomID, s.playerID
}

// Touch marks inbound activity.
func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every tracked connection and forgets it.
func (m *Manager) CloseAll() error {
	m.mutex.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mutex.Unlock()

	var err error
	for _, s := range sessions {
		err = multierr.Append(err, s.Close())
	}
	return err
}
