package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/multierr"

	"github.com/Kanata-Kikuchi/mahjong-lite-server/broadcast"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/config"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/logger"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/monitor"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/room"
	gameserver_rpc "github.com/Kanata-Kikuchi/mahjong-lite-server/rpc"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/session"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/timer"
)

const metricsNamespace = "mahjong"

type GameServer struct {
	cfg            *config.Config
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	dispatcher     *broadcast.Dispatcher
	monitor        *monitor.Monitor
	timers         *timer.TimerManager
	rpcServer      *gameserver_rpc.Server
	httpServer     *http.Server
	metricsServer  *http.Server
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
}

func NewGameServer(cfg *config.Config) (*GameServer, error) {
	mon := monitor.NewMonitor(metricsNamespace)
	dispatcher := broadcast.NewDispatcher(mon)

	s := &GameServer{
		cfg:            cfg,
		roomManager:    room.NewRoomManager(dispatcher),
		sessionManager: session.NewManager(),
		dispatcher:     dispatcher,
		monitor:        mon,
		timers:         timer.NewTimerManager(0),
		shutdownChan:   make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	// 初始化RPC服务器
	if cfg.Server.RPCAddress != "" {
		rpcServer, err := gameserver_rpc.NewServer(cfg.Server.RPCAddress, s.roomManager)
		if err != nil {
			s.timers.Stop()
			return nil, err
		}
		s.rpcServer = rpcServer
	}

	if cfg.Room.IdleTimeout > 0 {
		if cfg.Room.ReapInterval <= 0 {
			cfg.Room.ReapInterval = time.Minute
		}
		s.timers.Every(cfg.Room.ReapInterval, s.reapIdleRooms)
		logger.Log.Infow("idle room reaper enabled", "timeout", cfg.Room.IdleTimeout, "interval", cfg.Room.ReapInterval)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.Server.MetricsAddress != "" {
		s.metricsServer = &http.Server{
			Addr:              cfg.Server.MetricsAddress,
			Handler:           s.monitor.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return s, nil
}

// Handler returns the HTTP routes. /metrics is served here unless a
// dedicated metrics address is configured.
func (s *GameServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWebSocket)
	r.Get("/healthz", s.handleHealthz)
	if s.cfg.Server.MetricsAddress == "" {
		r.Handle("/metrics", s.monitor.Handler())
	}
	return r
}

// Rooms exposes the room registry.
func (s *GameServer) Rooms() *room.Manager {
	return s.roomManager
}

func (s *GameServer) Start() error {
	if s.rpcServer != nil {
		go s.rpcServer.Start()
	}
	if s.metricsServer != nil {
		go func() {
			logger.Log.Infof("Metrics listening on %s", s.metricsServer.Addr)
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Log.Errorw("metrics server failed", "error", err)
			}
		}()
	}

	logger.Log.Infof("Game server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, closes the open ones and stops the
// background timers. Rooms are dropped with the process.
func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		s.timers.Stop()

		err = multierr.Append(err, s.httpServer.Shutdown(ctx))
		if s.metricsServer != nil {
			err = multierr.Append(err, s.metricsServer.Shutdown(ctx))
		}
		if s.rpcServer != nil {
			err = multierr.Append(err, s.rpcServer.Stop())
		}
		err = multierr.Append(err, s.sessionManager.CloseAll())
		logger.Log.Infow("game server stopped", "rooms", s.roomManager.Count())
	})
	return err
}

func (s *GameServer) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Server.AllowedOrigins
	if len(allowed) == 0 {
		return true // 允许所有跨域请求
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(allowed, origin)
}

type healthView struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
}

func (s *GameServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthView{
		Status:      "ok",
		Rooms:       s.roomManager.Count(),
		Connections: s.sessionManager.Count(),
	})
}

func (s *GameServer) reapIdleRooms() {
	reaped := s.roomManager.ReapIdle(time.Now(), s.cfg.Room.IdleTimeout)
	s.monitor.AddRoomsReaped(len(reaped))
	s.monitor.SetActiveRooms(s.roomManager.Count())
}
