// Package command decodes inbound frames into a closed set of typed
// commands, each with its own required-field contract.
package command

import (
	"bytes"
	"encoding/json"

	"github.com/Kanata-Kikuchi/mahjong-lite-server/errs"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/network"
)

// Command is implemented only by the types in this package.
type Command interface {
	Type() string
	Validate() error
	isCommand()
}

// RoomScoped commands address an existing room.
type RoomScoped interface {
	Command
	Room() string
}

type CreateRoom struct {
	Name string          `json:"name"`
	Rule json.RawMessage `json:"rule"`
}

type JoinRoom struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

type InputRound struct {
	RoomID     string          `json:"roomId"`
	Round      json.RawMessage `json:"round"`
	Reach      json.RawMessage `json:"reach"`
	GameSet    json.RawMessage `json:"gameSet"`
	RoundTable json.RawMessage `json:"roundTable"`
	Comment    json.RawMessage `json:"comment"`
	Score      json.RawMessage `json:"score"`
}

type StartGame struct {
	RoomID       string          `json:"roomId"`
	InitialScore json.RawMessage `json:"initialScore"`
}

// InitiativeCheck confirms the end of a game. NewSeat is validated by the
// room, not here, so a bad list is reported as an invalid seat list.
type InitiativeCheck struct {
	RoomID      string            `json:"roomId"`
	ScoreMemory []json.RawMessage `json:"scoreMemory"`
	Sum         []json.RawMessage `json:"sum"`
	GameScore   []json.RawMessage `json:"gameScore"`
	NewSeat     []string          `json:"newSeat"`
}

type SeatEntry struct {
	Name string `json:"name"`
}

type ChangeSeat struct {
	RoomID  string      `json:"roomId"`
	Players []SeatEntry `json:"players"`
}

type ExitRoom struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

type RemoveRoom struct {
	RoomID string `json:"roomId"`
}

type FinishSession struct {
	RoomID string `json:"roomId"`
}

// ResumeRoom has no required fields at parse time; missing identifiers are
// answered with a failed resume result rather than an error frame.
type ResumeRoom struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

type Ping struct{}

func (*CreateRoom) Type() string      { return network.MsgCreateRoom }
func (*JoinRoom) Type() string        { return network.MsgJoinRoom }
func (*InputRound) Type() string      { return network.MsgInputRound }
func (*StartGame) Type() string       { return network.MsgStartGame }
func (*InitiativeCheck) Type() string { return network.MsgInitiativeCheck }
func (*ChangeSeat) Type() string      { return network.MsgChangeSeat }
func (*ExitRoom) Type() string        { return network.MsgExitRoom }
func (*RemoveRoom) Type() string      { return network.MsgRemoveRoom }
func (*FinishSession) Type() string   { return network.MsgFinishSession }
func (*ResumeRoom) Type() string      { return network.MsgResumeRoom }
func (*Ping) Type() string            { return network.MsgPing }

func (*CreateRoom) isCommand()      {}
func (*JoinRoom) isCommand()        {}
func (*InputRound) isCommand()      {}
func (*StartGame) isCommand()       {}
func (*InitiativeCheck) isCommand() {}
func (*ChangeSeat) isCommand()      {}
func (*ExitRoom) isCommand()        {}
func (*RemoveRoom) isCommand()      {}
func (*FinishSession) isCommand()   {}
func (*ResumeRoom) isCommand()      {}
func (*Ping) isCommand()            {}

func (c *JoinRoom) Room() string        { return c.RoomID }
func (c *InputRound) Room() string      { return c.RoomID }
func (c *StartGame) Room() string       { return c.RoomID }
func (c *InitiativeCheck) Room() string { return c.RoomID }
func (c *ChangeSeat) Room() string      { return c.RoomID }
func (c *ExitRoom) Room() string        { return c.RoomID }
func (c *RemoveRoom) Room() string      { return c.RoomID }
func (c *FinishSession) Room() string   { return c.RoomID }
func (c *ResumeRoom) Room() string      { return c.RoomID }

func (c *CreateRoom) Validate() error {
	if c.Name == "" {
		return errs.MissingField("name")
	}
	if !present(c.Rule) {
		return errs.MissingField("rule")
	}
	return nil
}

func (c *JoinRoom) Validate() error {
	if c.RoomID == "" {
		return errs.MissingField("roomId")
	}
	if c.Name == "" {
		return errs.MissingField("name")
	}
	return nil
}

func (c *InputRound) Validate() error      { return requireRoom(c.RoomID) }
func (c *StartGame) Validate() error       { return requireRoom(c.RoomID) }
func (c *InitiativeCheck) Validate() error { return requireRoom(c.RoomID) }
func (c *ChangeSeat) Validate() error      { return requireRoom(c.RoomID) }
func (c *RemoveRoom) Validate() error      { return requireRoom(c.RoomID) }
func (c *FinishSession) Validate() error   { return requireRoom(c.RoomID) }
func (c *ResumeRoom) Validate() error      { return nil }
func (c *Ping) Validate() error            { return nil }

func (c *ExitRoom) Validate() error {
	if err := requireRoom(c.RoomID); err != nil {
		return err
	}
	if c.PlayerID == "" {
		return errs.MissingField("playerId")
	}
	return nil
}

// Names returns the requested seat order.
func (c *ChangeSeat) Names() []string {
	out := make([]string, len(c.Players))
	for i, p := range c.Players {
		out[i] = p.Name
	}
	return out
}

func requireRoom(roomID string) error {
	if roomID == "" {
		return errs.MissingField("roomId")
	}
	return nil
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

var registry = map[string]func() Command{
	network.MsgCreateRoom:      func() Command { return &CreateRoom{} },
	network.MsgJoinRoom:        func() Command { return &JoinRoom{} },
	network.MsgInputRound:      func() Command { return &InputRound{} },
	network.MsgStartGame:       func() Command { return &StartGame{} },
	network.MsgInitiativeCheck: func() Command { return &InitiativeCheck{} },
	network.MsgChangeSeat:      func() Command { return &ChangeSeat{} },
	network.MsgExitRoom:        func() Command { return &ExitRoom{} },
	network.MsgRemoveRoom:      func() Command { return &RemoveRoom{} },
	network.MsgFinishSession:   func() Command { return &FinishSession{} },
	network.MsgResumeRoom:      func() Command { return &ResumeRoom{} },
	network.MsgPing:            func() Command { return &Ping{} },
}

// Types lists every accepted inbound type.
func Types() []string {
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	return out
}

// Parse decodes and validates one frame. The returned envelope type is set
// whenever the frame was valid JSON, even if the command was rejected.
func Parse(data []byte) (Command, string, error) {
	var env network.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", errs.New(errs.KindMalformedPayload, "frame: %v", err)
	}

	factory, ok := registry[env.Type]
	if !ok {
		return nil, env.Type, errs.New(errs.KindUnknownCommand, "type %q", env.Type)
	}

	cmd := factory()
	if present(env.Payload) {
		if err := json.Unmarshal(env.Payload, cmd); err != nil {
			return nil, env.Type, errs.New(errs.KindMalformedPayload, "%s payload: %v", env.Type, err)
		}
	}
	if err := cmd.Validate(); err != nil {
		return nil, env.Type, err
	}
	return cmd, env.Type, nil
}
