package room

import (
	"encoding/json"
	"slices"

	"github.com/Kanata-Kikuchi/mahjong-lite-server/errs"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/seat"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/state"
)

// Boot screens a resuming client returns to.
const (
	BootRoom  = "room"
	BootShare = "share"
)

type PlayerView struct {
	PlayerID string    `json:"playerId"`
	Seat     seat.Seat `json:"seat"`
	Name     string    `json:"name"`
}

// RoomStateView is the roster broadcast.
type RoomStateView struct {
	RoomID  string          `json:"roomId"`
	Rule    json.RawMessage `json:"rule"`
	Players []PlayerView    `json:"players"`
}

type setIDView struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

type roomCreatedView struct {
	RoomID string `json:"roomId"`
}

type gameStartView struct {
	RoomID       string          `json:"roomId"`
	InitialScore json.RawMessage `json:"initialScore"`
}

type gameFinishView struct {
	GameNo      int               `json:"gameNo"`
	NewSeat     []string          `json:"newSeat"`
	Players     []PlayerView      `json:"players"`
	ScoreMemory []json.RawMessage `json:"scoreMemory"`
	Sum         []json.RawMessage `json:"sum"`
	GameScore   []json.RawMessage `json:"gameScore"`
}

// Snapshot is everything a reconnecting client needs to rebuild its view.
// History fields are null until first set; Round is null between games.
type Snapshot struct {
	RoomID       string            `json:"roomId"`
	GameNo       int               `json:"gameNo"`
	Phase        state.Phase       `json:"phase"`
	Started      bool              `json:"started"`
	InitialScore json.RawMessage   `json:"initialScore"`
	Rule         json.RawMessage   `json:"rule"`
	Players      []PlayerView      `json:"players"`
	NewSeat      []string          `json:"newSeat"`
	ScoreMemory  []json.RawMessage `json:"scoreMemory"`
	Sum          []json.RawMessage `json:"sum"`
	GameScore    []json.RawMessage `json:"gameScore"`
	Round        *RoundState       `json:"round"`
}

// ResumeResult is the reply to a resume request.
type ResumeResult struct {
	OK       bool      `json:"ok"`
	Boot     string    `json:"boot,omitempty"`
	Reason   errs.Kind `json:"reason,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

func failedResume(kind errs.Kind) ResumeResult {
	return ResumeResult{OK: false, Reason: kind}
}

func (r *Room) playerViewsLocked() []PlayerView {
	out := make([]PlayerView, len(r.players))
	for i, p := range r.players {
		out[i] = PlayerView{PlayerID: p.ID, Seat: p.Seat, Name: p.Name}
	}
	return out
}

func (r *Room) roomStateLocked() RoomStateView {
	return RoomStateView{RoomID: r.ID, Rule: r.Rule, Players: r.playerViewsLocked()}
}

func (r *Room) snapshotLocked() Snapshot {
	phase := r.StateMachine.GetCurrentState()

	order := slices.Clone(r.newSeat)
	if len(order) == 0 {
		order = seatOrder(r.players)
	}

	snap := Snapshot{
		RoomID:       r.ID,
		GameNo:       r.gameNo,
		Phase:        phase,
		Started:      r.started,
		InitialScore: slices.Clone(r.initialScore),
		Rule:         slices.Clone(r.Rule),
		Players:      r.playerViewsLocked(),
		NewSeat:      order,
		ScoreMemory:  slices.Clone(r.history.ScoreMemory),
		Sum:          slices.Clone(r.history.Sum),
		GameScore:    slices.Clone(r.history.GameScore),
	}
	if phase == state.Playing {
		round := r.round
		snap.Round = &round
	}
	return snap
}
