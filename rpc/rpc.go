package rpc

import (
	"errors"
	"net"
	"net/rpc"

	"github.com/Kanata-Kikuchi/mahjong-lite-server/logger"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/room"
)

// Server manages the operator RPC listener. It uses its own rpc.Server
// rather than the package default.
type Server struct {
	listener net.Listener
	rpc      *rpc.Server
	address  string
}

// NewServer listens on addr and registers the room inspection service.
func NewServer(addr string, rooms *room.Manager) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("RoomService", NewRoomService(rooms)); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		rpc:      srv,
		address:  listener.Addr().String(),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests. It returns once the listener is
// closed.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}
	logger.Log.Info("Stopping RPC server.")
	return s.listener.Close()
}

// RoomService exposes read-only room inspection.
type RoomService struct {
	rooms *room.Manager
}

func NewRoomService(rooms *room.Manager) *RoomService {
	return &RoomService{rooms: rooms}
}

// ListArgs caps the reply at Limit codes; zero means all.
type ListArgs struct {
	Limit int
}

type ListReply struct {
	Rooms []string
	Total int
}

// List returns live room codes, sorted.
func (rs *RoomService) List(args *ListArgs, reply *ListReply) error {
	ids := rs.rooms.List()
	reply.Total = len(ids)
	if args.Limit > 0 && len(ids) > args.Limit {
		ids = ids[:args.Limit]
	}
	reply.Rooms = ids
	return nil
}

type InspectArgs struct {
	RoomID string
}

type InspectReply struct {
	Snapshot room.Snapshot
}

// Inspect returns the consistency snapshot of one room.
func (rs *RoomService) Inspect(args *InspectArgs, reply *InspectReply) error {
	r, err := rs.rooms.Lookup(args.RoomID)
	if err != nil {
		return err
	}
	reply.Snapshot = r.Snapshot()
	return nil
}
