package network

import "encoding/json"

// Inbound message types.
const (
	MsgCreateRoom      = "create_room"
	MsgJoinRoom        = "join_room"
	MsgInputRound      = "input_round"
	MsgStartGame       = "start_game"
	MsgInitiativeCheck = "initiative_check"
	MsgChangeSeat      = "change_seat"
	MsgExitRoom        = "exit_room"
	MsgRemoveRoom      = "remove_room"
	MsgFinishSession   = "finish_session"
	MsgResumeRoom      = "resume_room"
	MsgPing            = "ping"
)

// Outbound message types.
const (
	MsgRoomCreated   = "room_created"
	MsgSetID         = "set_id"
	MsgSuccessJoin   = "success_join"
	MsgUnknownRoom   = "unknown_room"
	MsgRoomState     = "room_state"
	MsgGameState     = "game_state"
	MsgGameStart     = "game_start"
	MsgGameFinish    = "game_finish"
	MsgPulloutPlayer = "pullout_player"
	MsgDeleteRoom    = "delete_room"
	MsgNaviRoot      = "navi_root"
	MsgResumeResult  = "resume_result"
	MsgPong          = "pong"
	MsgError         = "error"
)

// Envelope is the frame carried by every websocket text message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode renders an outbound frame. A nil payload is sent as an empty object.
func Encode(msgType string, payload any) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
