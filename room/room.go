// room/room.go
package room

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/Kanata-Kikuchi/mahjong-lite-server/errs"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/logger"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/network"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/seat"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/session"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/state"
)

// Player is a seated member of a room.
type Player struct {
	ID   string
	Seat seat.Seat
	Name string

	session *session.Session
}

// Session returns the connection the player is currently bound to.
func (p *Player) Session() *session.Session {
	return p.session
}

// RoundState holds the latest round input, relayed verbatim.
type RoundState struct {
	Round      json.RawMessage `json:"round"`
	Reach      json.RawMessage `json:"reach"`
	GameSet    json.RawMessage `json:"gameSet"`
	RoundTable json.RawMessage `json:"roundTable"`
	Comment    json.RawMessage `json:"comment"`
	Score      json.RawMessage `json:"score"`
}

// History accumulates across games.
type History struct {
	ScoreMemory []json.RawMessage `json:"scoreMemory"`
	Sum         []json.RawMessage `json:"sum"`
	GameScore   []json.RawMessage `json:"gameScore"`
}

// merge replaces each field only when the update carries entries.
func (h *History) merge(u History) {
	if len(u.ScoreMemory) > 0 {
		h.ScoreMemory = slices.Clone(u.ScoreMemory)
	}
	if len(u.Sum) > 0 {
		h.Sum = slices.Clone(u.Sum)
	}
	if len(u.GameScore) > 0 {
		h.GameScore = slices.Clone(u.GameScore)
	}
}

// GameEnd is a confirmed end of game with the seating for the next one.
type GameEnd struct {
	NewSeat []string
	History History
}

// Room is one table. Every exported mutator runs to completion, broadcast
// included, under the room's mutex.
type Room struct {
	ID           string
	Rule         json.RawMessage
	CreatedAt    time.Time
	StateMachine *state.BaseStateMachine

	gameNo       int
	initialScore json.RawMessage
	started      bool
	round        RoundState
	history      History
	newSeat      []string
	players      []*Player
	lastActive   time.Time
	closed       bool
	broadcaster  Broadcaster
	mu           sync.Mutex
}

// NewRoom 创建一个新房间
func NewRoom(id string, rule json.RawMessage, broadcaster Broadcaster) *Room {
	now := time.Now()
	r := &Room{
		ID:           id,
		Rule:         slices.Clone(rule),
		CreatedAt:    now,
		StateMachine: state.NewPhaseMachine(),
		gameNo:       1,
		lastActive:   now,
		broadcaster:  broadcaster,
	}

	// transient round fields are only meaningful while playing
	r.StateMachine.OnEnter(state.BetweenGames, func(state.Phase) {
		r.round = RoundState{}
	})
	return r
}

func (r *Room) GetID() string {
	return r.ID
}

// Phase returns the current match phase.
func (r *Room) Phase() state.Phase {
	return r.StateMachine.GetCurrentState()
}

// GameNo returns the ordinal of the game in progress or next to play.
func (r *Room) GameNo() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gameNo
}

// Started reports whether a game has ever started in this room.
func (r *Room) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Players returns a copy of the roster in seat order.
func (r *Room) Players() []Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Player, len(r.players))
	for i, p := range r.players {
		out[i] = *p
	}
	return out
}

func (r *Room) memberLocked(playerID string) (*Player, int) {
	for i, p := range r.players {
		if p.ID == playerID {
			return p, i
		}
	}
	return nil, -1
}

func (r *Room) membersLocked() []Member {
	out := make([]Member, len(r.players))
	for i, p := range r.players {
		out[i] = Member{PlayerID: p.ID, Seat: p.Seat, Session: p.session}
	}
	return out
}

func (r *Room) broadcastLocked(msgType string, payload any) {
	if r.broadcaster == nil {
		return
	}
	r.broadcaster.Broadcast(r.ID, msgType, r.membersLocked(), payload)
}

func (r *Room) replyLocked(to *session.Session, msgType string, payload any) {
	if r.broadcaster == nil || to == nil {
		return
	}
	r.broadcaster.Reply(to, msgType, payload)
}

func (r *Room) touchLocked() {
	r.lastActive = time.Now()
}

func (r *Room) checkOpenLocked() error {
	if r.closed {
		return errs.New(errs.KindRoomNotFound, "room %s", r.ID)
	}
	return nil
}

// admit seats a new player without notifying anyone.
func (r *Room) admitLocked(playerID, name string, sess *session.Session) (*Player, error) {
	if err := r.checkOpenLocked(); err != nil {
		return nil, err
	}
	free, ok := seat.NextFree(occupiedSeats(r.players))
	if !ok || len(r.players) >= seat.Count {
		return nil, errs.New(errs.KindRoomFull, "room %s", r.ID)
	}

	p := &Player{ID: playerID, Seat: free, Name: name, session: sess}
	r.players = append(r.players, p)
	if sess != nil {
		sess.Bind(r.ID, p.ID)
	}
	r.touchLocked()
	return p, nil
}

// Join seats a new player at the first free seat, confirms to the joiner and
// sends the new roster to everyone.
func (r *Room) Join(playerID, name string, sess *session.Session) (*Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.admitLocked(playerID, name, sess)
	if err != nil {
		return nil, err
	}

	logger.Log.Infow("player joined", "room", r.ID, "player", p.ID, "seat", p.Seat)
	r.replyLocked(sess, network.MsgSuccessJoin, nil)
	r.replyLocked(sess, network.MsgSetID, setIDView{RoomID: r.ID, PlayerID: p.ID})
	r.broadcastLocked(network.MsgRoomState, r.roomStateLocked())
	return p, nil
}

// StartGame enters the playing phase and announces the initial score.
func (r *Room) StartGame(initialScore json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkOpenLocked(); err != nil {
		return err
	}
	if err := r.StateMachine.ChangeState(state.Playing); err != nil {
		return errs.New(errs.KindInternal, "start game: %v", err)
	}
	r.initialScore = slices.Clone(initialScore)
	r.started = true
	r.touchLocked()

	logger.Log.Infow("game started", "room", r.ID, "gameNo", r.gameNo)
	r.broadcastLocked(network.MsgGameStart, gameStartView{RoomID: r.ID, InitialScore: r.initialScore})
	return nil
}

// InputRound stores the latest round input and relays it. Input received
// between games forces the playing phase.
func (r *Room) InputRound(in RoundState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkOpenLocked(); err != nil {
		return err
	}
	if err := r.StateMachine.ChangeState(state.Playing); err != nil {
		return errs.New(errs.KindInternal, "input round: %v", err)
	}
	r.round = RoundState{
		Round:      slices.Clone(in.Round),
		Reach:      slices.Clone(in.Reach),
		GameSet:    slices.Clone(in.GameSet),
		RoundTable: slices.Clone(in.RoundTable),
		Comment:    slices.Clone(in.Comment),
		Score:      slices.Clone(in.Score),
	}
	r.touchLocked()

	r.broadcastLocked(network.MsgGameState, r.round)
	return nil
}

// ValidateSeatList checks a post-game seating: exactly four distinct,
// non-empty identities.
func ValidateSeatList(newSeat []string) error {
	if len(newSeat) != seat.Count {
		return errs.New(errs.KindInvalidSeatList, "want %d entries, got %d", seat.Count, len(newSeat))
	}
	seen := make(map[string]bool, seat.Count)
	for _, id := range newSeat {
		if id == "" {
			return errs.New(errs.KindInvalidSeatList, "empty entry")
		}
		if seen[id] {
			return errs.New(errs.KindInvalidSeatList, "duplicate entry %s", id)
		}
		seen[id] = true
	}
	return nil
}

// EndGame confirms the end of a game: the game number advances, players are
// re-seated by the new seat list and history is merged. A malformed seat list
// leaves the room untouched.
func (r *Room) EndGame(end GameEnd) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkOpenLocked(); err != nil {
		return err
	}
	if err := ValidateSeatList(end.NewSeat); err != nil {
		logger.Log.Warnw("game end rejected", "room", r.ID, "gameNo", r.gameNo, "error", err)
		return err
	}
	if err := r.StateMachine.ChangeState(state.BetweenGames); err != nil {
		return errs.New(errs.KindInternal, "end game: %v", err)
	}

	r.gameNo++
	r.newSeat = slices.Clone(end.NewSeat)
	r.players = reindexByList(r.players, end.NewSeat)
	r.history.merge(end.History)
	r.touchLocked()

	logger.Log.Infow("game finished", "room", r.ID, "gameNo", r.gameNo, "newSeat", r.newSeat)
	r.broadcastLocked(network.MsgGameFinish, gameFinishView{
		GameNo:      r.gameNo,
		NewSeat:     r.newSeat,
		Players:     r.playerViewsLocked(),
		ScoreMemory: r.history.ScoreMemory,
		Sum:         r.history.Sum,
		GameScore:   r.history.GameScore,
	})
	return nil
}

// ChangeSeat re-seats players in the given name order.
func (r *Room) ChangeSeat(names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkOpenLocked(); err != nil {
		return err
	}
	r.players = reindexByList(r.players, names)
	r.touchLocked()

	r.broadcastLocked(network.MsgRoomState, r.roomStateLocked())
	return nil
}

// Exit removes a player, compacts the remaining seats, acknowledges to the
// requester and sends the new roster to those left.
func (r *Room) Exit(playerID string, requester *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkOpenLocked(); err != nil {
		return err
	}
	p, idx := r.memberLocked(playerID)
	if p == nil {
		return errs.New(errs.KindPlayerNotFound, "player %s in room %s", playerID, r.ID)
	}

	r.players = compactAfterRemoval(slices.Delete(slices.Clone(r.players), idx, idx+1))
	if p.session != nil {
		p.session.Unbind(r.ID)
	}
	r.touchLocked()

	logger.Log.Infow("player left", "room", r.ID, "player", p.ID)
	r.replyLocked(requester, network.MsgPulloutPlayer, nil)
	r.broadcastLocked(network.MsgRoomState, r.roomStateLocked())
	return nil
}

// Resume rebinds a player to sess and returns the reconciliation snapshot.
func (r *Room) Resume(playerID string, sess *session.Session) (ResumeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkOpenLocked(); err != nil {
		return failedResume(errs.KindRoomNotFound), err
	}
	p, _ := r.memberLocked(playerID)
	if p == nil {
		return failedResume(errs.KindPlayerNotFound), errs.New(errs.KindPlayerNotFound, "player %s in room %s", playerID, r.ID)
	}

	if old := p.session; old != nil && old != sess {
		old.Unbind(r.ID)
	}
	p.session = sess
	if sess != nil {
		sess.Bind(r.ID, p.ID)
	}
	r.touchLocked()

	boot := BootRoom
	if r.started {
		boot = BootShare
	}
	snap := r.snapshotLocked()

	logger.Log.Infow("player resumed", "room", r.ID, "player", p.ID, "boot", boot)
	return ResumeResult{OK: true, Boot: boot, Snapshot: &snap}, nil
}

// Close notifies every member with msgType, unless empty, and marks the room
// gone. Later commands holding a stale pointer see RoomNotFound.
func (r *Room) Close(msgType string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if msgType != "" {
		r.broadcastLocked(msgType, nil)
	}
	for _, p := range r.players {
		if p.session != nil {
			p.session.Unbind(r.ID)
		}
	}
	r.closed = true
}

// Idle reports whether no member is connected and nothing happened for at
// least timeout.
func (r *Room) Idle(now time.Time, timeout time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.players {
		if p.session != nil && p.session.IsOpen() {
			return false
		}
	}
	return now.Sub(r.lastActive) >= timeout
}

// Snapshot returns the full consistency snapshot.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}
