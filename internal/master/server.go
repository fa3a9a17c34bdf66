// Package master implements the server's socket-facing layer: the
// listener, the fixed connection slot table, the dispatch queue that
// serializes all state mutation, and the opcode handlers.
package master

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/core"
	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/core/debug"
	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/data"
	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/lobby"
	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/protocol"
	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/spawner"
)

// SessionStore is the subset of the data layer the handshake needs.
type SessionStore interface {
	Find(sessionToken string) (*data.PlayerSession, error)
	Put(session *data.PlayerSession) error
}

// slot is one entry in the fixed connection table. Slots are created at
// startup and recycled across connections; the generation counter makes
// callbacks captured against an earlier occupant no-ops.
type slot struct {
	id         int
	generation uint64

	conn *Connection

	// Identity established by the connect handshake; zeroed on detach.
	authed       bool
	isPlayer     bool
	version      string
	sessionToken string
}

func (s *slot) detach() {
	s.generation++
	s.conn = nil
	s.authed = false
	s.isPlayer = false
	s.version = ""
	s.sessionToken = ""
}

// Server is the master server: it accepts connections, pushes their
// frames through the dispatch queue, and mutates the lobby/spawner state
// in response. It implements lobby.Sender, so rooms and lobbies address
// peers by slot id only.
type Server struct {
	config *core.Config
	logger *logrus.Logger

	queue    *DispatchQueue
	slots    []*slot
	registry *lobby.Registry
	spawner  *spawner.Spawner
	sessions SessionStore

	listener net.Listener
}

func NewServer(config *core.Config, logger *logrus.Logger, sessions SessionStore, launcher spawner.Launcher) *Server {
	s := &Server{
		config:   config,
		logger:   logger,
		sessions: sessions,
		queue: NewDispatchQueue(logger, config.DispatchInterval(),
			config.MasterServer.DispatchQueueWarnDepth),
	}

	s.slots = make([]*slot, config.MaxConnections)
	for i := range s.slots {
		s.slots[i] = &slot{id: i}
	}

	s.registry = lobby.NewRegistry(s, logger)
	s.spawner = spawner.NewSpawner(config, logger, launcher, s.queue.Enqueue,
		func(clientID int, code protocol.ErrorCode) {
			s.SendTo(clientID, protocol.OnCreateRoomFailed(code))
		})

	return s
}

// Start binds the listener and runs the accept loop and dispatch drain
// until the context is canceled. Returns once the listener is bound;
// loop goroutines are tracked on wg.
func (s *Server) Start(ctx context.Context, wg *sync.WaitGroup) error {
	addr := fmt.Sprintf("%s:%d", s.config.Hostname, s.config.MasterServer.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding master server to %s: %w", addr, err)
	}
	s.listener = listener
	s.logger.Infof("[MASTER] waiting for connections on %s", addr)

	wg.Add(2)
	go func() {
		defer wg.Done()
		s.queue.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		_ = listener.Close()
	}()

	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.queue.Enqueue(func() { s.attach(conn) })
	}
}

// attach binds an accepted socket to a free slot, or refuses it when the
// table is full. Runs on the dispatch thread.
func (s *Server) attach(netConn net.Conn) {
	sl := s.freeSlot()
	if sl == nil {
		s.logger.Warnf("[MASTER] refusing connection from %s: no free slots", netConn.RemoteAddr())
		refusal := protocol.OnConnectToMasterFailed(protocol.MaxConnectionReached)
		refusal.WriteLength()
		_, _ = netConn.Write(refusal.Bytes())
		_ = netConn.Close()
		return
	}

	sl.generation++
	gen := sl.generation
	conn := NewConnection(sl.id, gen, netConn, s.logger)
	sl.conn = conn
	s.logger.Infof("[MASTER] accepted connection from %s as client %d", conn.RemoteAddr(), sl.id)

	go conn.Serve(
		func(frame []byte) {
			s.queue.Enqueue(func() { s.handleFrame(sl, gen, frame) })
		},
		func() {
			s.queue.Enqueue(func() { s.handleDisconnect(sl, gen) })
		},
	)
}

func (s *Server) freeSlot() *slot {
	for _, sl := range s.slots {
		if sl.conn == nil {
			return sl
		}
	}
	return nil
}

// SendTo delivers a packet to the connection occupying the slot. A send
// to a vacated slot is dropped; the peer it addressed is gone.
func (s *Server) SendTo(clientID int, pkt *protocol.Packet) {
	if clientID < 0 || clientID >= len(s.slots) {
		return
	}
	conn := s.slots[clientID].conn
	if conn == nil {
		s.logger.Debugf("[MASTER] dropping packet for vacated slot %d", clientID)
		return
	}
	conn.Send(pkt)
}

func (s *Server) handleFrame(sl *slot, gen uint64, frame []byte) {
	if sl.conn == nil || sl.generation != gen {
		return
	}

	if s.config.Debugging.PacketLoggingEnabled {
		s.logger.Debugf("[MASTER] received from client %d:\n%s", sl.id, debug.FormatPayload(frame))
	}

	r := protocol.NewReader(frame)
	op, err := r.ReadOpcode()
	if err != nil {
		s.logger.Warnf("[MASTER] client %d sent an opcode-less frame", sl.id)
		return
	}

	if err := s.dispatchRequest(sl, op, r); err != nil {
		s.logger.Warnf("[MASTER] client %d: malformed %v request: %v", sl.id, op, err)
	}
}

// handleDisconnect runs the cleanup sequence for a dropped connection:
// detach the identity, unwind lobby/room/spawner state, recycle the slot.
// Stale notifications for an already-recycled slot are ignored.
func (s *Server) handleDisconnect(sl *slot, gen uint64) {
	if sl.conn == nil || sl.generation != gen {
		return
	}

	id := sl.id
	version := sl.version
	isPlayer := sl.isPlayer
	authed := sl.authed

	sl.conn.Close()
	sl.detach()
	s.logger.Infof("[MASTER] client %d disconnected", id)

	if !authed {
		return
	}
	l, ok := s.registry.FindLobby(version)
	if !ok {
		return
	}

	if isPlayer {
		s.removePlayer(l, id)
	} else {
		s.removeRoomClient(l, id)
	}

	if l.RemoveClient(id) {
		s.registry.RemoveLobby(version)
	}
}

func (s *Server) removePlayer(l *lobby.Lobby, id int) {
	player := l.RemovePlayer(id)
	if player != nil && player.RoomName != "" {
		if room, ok := l.Room(player.RoomName); ok {
			room.RemovePlayer(id)
		}
	}
	s.spawner.AbortCreateRoom(id)
}

// removeRoomClient tears down every room owned by a dead room server
// process. Players still inside are returned to the lobby and told they
// left; the process entry is removed and its port reclaimed.
func (s *Server) removeRoomClient(l *lobby.Lobby, id int) {
	for _, room := range l.Rooms() {
		if room.RoomClientID != id {
			continue
		}
		for _, p := range room.Players() {
			p.RoomName = ""
			s.SendTo(p.ID, protocol.OnLeftRoom())
		}
		l.RemoveRoom(room.Name)
		s.logger.Warnf("[MASTER] room %s/%s destroyed: its server process disconnected",
			l.Version, room.Name)
	}
	s.spawner.RemoveRoomProcess(id, l.Version)
}

// Shutdown closes every live connection. Called after the context driving
// Start is canceled.
func (s *Server) Shutdown() {
	for _, sl := range s.slots {
		if sl.conn != nil {
			sl.conn.Close()
		}
	}
}
