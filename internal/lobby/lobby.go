// Package lobby holds the version-scoped session state of the master
// server: lobbies, the players attached to them, and the rooms players can
// join. Nothing in this package touches sockets; packets leave through the
// Sender and all mutation happens on the dispatch thread.
package lobby

import (
	"encoding/json"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/protocol"
)

// Lobby groups the players and rooms that share one protocol version.
//
// clients tracks every connection attached to the version (players and
// room server processes); the lobby dies when the last one leaves.
type Lobby struct {
	Version string

	clients map[int]struct{}
	players map[int]*Player
	rooms   map[string]*Room

	sender Sender
	logger *logrus.Logger

	// perm generates the room visit order for random joins. Swappable so
	// tests can pin the order.
	perm func(n int) []int
}

func NewLobby(version string, sender Sender, logger *logrus.Logger) *Lobby {
	return &Lobby{
		Version: version,
		clients: make(map[int]struct{}),
		players: make(map[int]*Player),
		rooms:   make(map[string]*Room),
		sender:  sender,
		logger:  logger,
		perm:    rand.Perm,
	}
}

func (l *Lobby) AddClient(id int) {
	l.clients[id] = struct{}{}
}

// RemoveClient detaches a connection and reports whether the lobby is now
// empty and should be destroyed.
func (l *Lobby) RemoveClient(id int) bool {
	delete(l.clients, id)
	return len(l.clients) == 0
}

func (l *Lobby) ClientCount() int {
	return len(l.clients)
}

func (l *Lobby) AddPlayer(p *Player) {
	l.players[p.ID] = p
	l.NotifyRoomListChanged()
}

func (l *Lobby) RemovePlayer(id int) *Player {
	p, ok := l.players[id]
	if !ok {
		return nil
	}
	delete(l.players, id)
	l.NotifyRoomListChanged()
	return p
}

func (l *Lobby) Player(id int) (*Player, bool) {
	p, ok := l.players[id]
	return p, ok
}

func (l *Lobby) PlayerBySessionToken(token string) (*Player, bool) {
	for _, p := range l.players {
		if p.SessionToken == token {
			return p, true
		}
	}
	return nil, false
}

func (l *Lobby) PlayerCount() int {
	return len(l.players)
}

// Players returns the lobby's players ordered by id.
func (l *Lobby) Players() []*Player {
	ids := make([]int, 0, len(l.players))
	for id := range l.players {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	players := make([]*Player, 0, len(ids))
	for _, id := range ids {
		players = append(players, l.players[id])
	}
	return players
}

func (l *Lobby) AddRoom(r *Room) {
	l.rooms[r.Name] = r
	l.NotifyRoomListChanged()
}

func (l *Lobby) RemoveRoom(name string) *Room {
	r, ok := l.rooms[name]
	if !ok {
		return nil
	}
	delete(l.rooms, name)
	l.NotifyRoomListChanged()
	return r
}

func (l *Lobby) Room(name string) (*Room, bool) {
	r, ok := l.rooms[name]
	return r, ok
}

// Rooms returns the lobby's rooms ordered by name.
func (l *Lobby) Rooms() []*Room {
	names := make([]string, 0, len(l.rooms))
	for name := range l.rooms {
		names = append(names, name)
	}
	sort.Strings(names)

	rooms := make([]*Room, 0, len(names))
	for _, name := range names {
		rooms = append(rooms, l.rooms[name])
	}
	return rooms
}

// JoinRoom places the player in the named room, or in any joinable room
// when roomName is empty. On success the player's RoomName is set, the
// room roster broadcasts fire, and the public room list refreshes.
func (l *Lobby) JoinRoom(p *Player, roomName, password string) (*Room, protocol.ErrorCode) {
	if roomName == "" {
		return l.JoinRandomRoom(p, password)
	}

	room, ok := l.rooms[roomName]
	if !ok {
		return nil, protocol.RoomNotFound
	}

	if code := room.CanJoin(password); code != protocol.Success {
		return nil, code
	}

	l.admit(p, room)
	return room, protocol.Success
}

// JoinRandomRoom visits the lobby's rooms in uniformly random order,
// skipping private rooms, and admits the player to the first one that
// passes the joinability check.
func (l *Lobby) JoinRandomRoom(p *Player, password string) (*Room, protocol.ErrorCode) {
	rooms := l.Rooms()
	for _, i := range l.perm(len(rooms)) {
		room := rooms[i]
		if room.IsPrivate {
			continue
		}
		if room.CanJoin(password) != protocol.Success {
			continue
		}
		l.admit(p, room)
		return room, protocol.Success
	}
	return nil, protocol.RoomNotFound
}

func (l *Lobby) admit(p *Player, room *Room) {
	p.RoomName = room.Name
	room.AddPlayer(p)
	l.NotifyRoomListChanged()
}

// LeaveRoom removes the player from their current room. The room survives
// empty; it dies with its owning room server connection.
func (l *Lobby) LeaveRoom(p *Player) {
	room, ok := l.rooms[p.RoomName]
	p.RoomName = ""
	if !ok {
		return
	}
	room.RemovePlayer(p.ID)
	l.NotifyRoomListChanged()
}

// NotifyRoomListChanged recomputes the public room summaries and pushes
// them to every player not currently in a room. Players inside rooms are
// spared the lobby traffic.
func (l *Lobby) NotifyRoomListChanged() {
	pkt := protocol.OnRoomListChanged(l.RoomListJSON())
	for id, p := range l.players {
		if p.RoomName != "" {
			continue
		}
		l.sender.SendTo(id, pkt)
	}
}

// RoomListJSON serializes the summaries of the lobby's non-private rooms.
func (l *Lobby) RoomListJSON() string {
	summaries := make([]RoomSummary, 0, len(l.rooms))
	for _, r := range l.Rooms() {
		if r.IsPrivate {
			continue
		}
		summaries = append(summaries, r.Summary())
	}
	b, _ := json.Marshal(summaries)
	return string(b)
}

// PlayerListJSON serializes the lobby's players for FetchPlayerList.
func (l *Lobby) PlayerListJSON() string {
	players := make([]json.RawMessage, 0, len(l.players))
	for _, p := range l.Players() {
		players = append(players, json.RawMessage(p.JSON()))
	}
	b, _ := json.Marshal(players)
	return string(b)
}
