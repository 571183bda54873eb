package server

import (
	"errors"
	"net/http"
	"runtime/debug"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Kanata-Kikuchi/mahjong-lite-server/command"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/errs"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/logger"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/network"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/room"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/session"
)

var knownTypes = command.Types()

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) newLimiter() *rate.Limiter {
	cc := s.cfg.Connection
	if cc.MessagesPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := cc.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cc.MessagesPerSecond), burst)
}

// handleConnection reads frames until the peer goes away. A disconnect only
// drops the session; room membership stays so the player can resume.
func (s *GameServer) handleConnection(conn *websocket.Conn) {
	cc := s.cfg.Connection
	wsConn := network.NewWSConnection(conn, network.Options{
		SendBuffer: cc.SendBuffer,
		ReadLimit:  cc.ReadLimit,
		PongWait:   cc.PongWait,
		WriteWait:  cc.WriteWait,
	})
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlineConnections()
	limiter := s.newLimiter()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		roomID, playerID := sess.Binding()
		logger.Log.Infow("connection closed", "remote", wsConn.RemoteAddr().String(), "session", sess.GetID(), "room", roomID, "player", playerID)
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlineConnections()
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
		}

		data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Debugw("read failed", "session", sess.GetID(), "error", err)
			}
			return
		}
		s.handleMessage(sess, limiter, data)
	}
}

// handleMessage runs one command to completion. Failures, panics included,
// are reported to the sender only.
func (s *GameServer) handleMessage(sess *session.Session, limiter *rate.Limiter, data []byte) {
	start := time.Now()
	sess.Touch()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Log.Errorw("panic handling message", "session", sess.GetID(), "panic", rec, "stack", string(debug.Stack()))
			s.dispatcher.Error(sess, errs.New(errs.KindInternal, "internal error"))
		}
	}()

	if limiter != nil && !limiter.Allow() {
		s.dispatcher.Error(sess, errs.New(errs.KindRateLimited, "too many messages"))
		return
	}

	cmd, msgType, err := command.Parse(data)
	s.monitor.IncMessagesReceived(metricLabel(msgType))
	if err == nil {
		err = s.dispatch(sess, cmd)
	}
	if err != nil {
		s.reject(sess, msgType, err)
	}
	s.monitor.ObserveMessageLatency(time.Since(start))
}

// metricLabel keeps client-chosen type strings out of label values.
func metricLabel(msgType string) string {
	if slices.Contains(knownTypes, msgType) {
		return msgType
	}
	return "unknown"
}

func (s *GameServer) reject(sess *session.Session, msgType string, err error) {
	logger.Log.Warnw("command rejected", "session", sess.GetID(), "type", msgType, "error", err)

	if msgType == network.MsgJoinRoom && errors.Is(err, errs.ErrRoomNotFound) {
		s.monitor.IncCommandErrors(string(errs.KindRoomNotFound))
		s.dispatcher.Reply(sess, network.MsgUnknownRoom, nil)
		return
	}
	s.dispatcher.Error(sess, err)
}

func (s *GameServer) dispatch(sess *session.Session, cmd command.Command) error {
	switch c := cmd.(type) {
	case *command.Ping:
		s.dispatcher.Reply(sess, network.MsgPong, nil)
		return nil

	case *command.CreateRoom:
		r, p, err := s.roomManager.CreateRoom(c.Name, c.Rule, sess)
		if err != nil {
			return err
		}
		s.monitor.SetActiveRooms(s.roomManager.Count())
		logger.Log.Infof("Session %s created room %s as %s", sess.GetID(), r.GetID(), p.ID)
		return nil

	case *command.JoinRoom:
		_, _, err := s.roomManager.JoinRoom(c.RoomID, c.Name, sess)
		return err

	case *command.ResumeRoom:
		// the outcome, failure included, was already sent as resume_result
		if _, err := s.roomManager.Resume(c.RoomID, c.PlayerID, sess); err != nil {
			logger.Log.Debugw("resume failed", "session", sess.GetID(), "room", c.RoomID, "error", err)
		}
		return nil

	case *command.RemoveRoom:
		s.roomManager.RemoveRoom(c.RoomID, network.MsgDeleteRoom)
		s.monitor.SetActiveRooms(s.roomManager.Count())
		return nil

	case *command.FinishSession:
		s.roomManager.RemoveRoom(c.RoomID, network.MsgNaviRoot)
		s.monitor.SetActiveRooms(s.roomManager.Count())
		return nil
	}

	scoped, ok := cmd.(command.RoomScoped)
	if !ok {
		return errs.New(errs.KindUnknownCommand, "type %q", cmd.Type())
	}
	r, err := s.roomManager.Lookup(scoped.Room())
	if err != nil {
		return err
	}

	switch c := cmd.(type) {
	case *command.InputRound:
		return r.InputRound(room.RoundState{
			Round:      c.Round,
			Reach:      c.Reach,
			GameSet:    c.GameSet,
			RoundTable: c.RoundTable,
			Comment:    c.Comment,
			Score:      c.Score,
		})
	case *command.StartGame:
		return r.StartGame(c.InitialScore)
	case *command.InitiativeCheck:
		return r.EndGame(room.GameEnd{
			NewSeat: c.NewSeat,
			History: room.History{
				ScoreMemory: c.ScoreMemory,
				Sum:         c.Sum,
				GameScore:   c.GameScore,
			},
		})
	case *command.ChangeSeat:
		return r.ChangeSeat(c.Names())
	case *command.ExitRoom:
		return r.Exit(c.PlayerID, sess)
	default:
		return errs.New(errs.KindUnknownCommand, "type %q", cmd.Type())
	}
}
