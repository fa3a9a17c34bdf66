package lobby

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/protocol"
)

// NoMaster is the master id of a room with no players.
const NoMaster = -1

// Sender delivers a packet to the connection with the given slot id. The
// master server's connection table implements it; rooms and lobbies only
// ever hold connection ids, never sockets.
type Sender interface {
	SendTo(clientID int, pkt *protocol.Packet)
}

// RoomOptions is the JSON shape clients pass to CreateRoom and room server
// processes echo back in RegisterRoom.
type RoomOptions struct {
	IsPrivate                        bool              `json:"isPrivate"`
	IsOpen                           bool              `json:"isOpen"`
	Password                         string            `json:"password"`
	MaxPlayers                       int               `json:"maxPlayers"`
	CustomProperties                 map[string]string `json:"customProperties"`
	CustomPropertyKeysVisibleInLobby []string          `json:"customPropertyKeysVisibleInLobby"`
}

// ParseRoomOptions decodes a room options JSON document. Absent fields fall
// back to an open, non-private room for four players.
func ParseRoomOptions(data string) (RoomOptions, error) {
	opts := RoomOptions{IsOpen: true, MaxPlayers: 4}
	if data == "" {
		return opts, nil
	}
	if err := json.Unmarshal([]byte(data), &opts); err != nil {
		return opts, fmt.Errorf("parsing room options: %w", err)
	}
	if opts.MaxPlayers <= 0 {
		opts.MaxPlayers = 4
	}
	if opts.CustomProperties == nil {
		opts.CustomProperties = make(map[string]string)
	}
	return opts, nil
}

// Room is one joinable game session: a roster of players, a master, and a
// property set. All mutation happens on the dispatch thread.
type Room struct {
	Name       string
	IsPrivate  bool
	IsOpen     bool
	Password   string
	MaxPlayers int
	MasterID   int

	// RoomClientID is the connection slot of the spawned room server
	// process; every roster broadcast is mirrored to it.
	RoomClientID int

	CustomProperties map[string]string
	visibleKeys      map[string]struct{}

	players map[int]*Player
	// joinOrder preserves insertion order so master re-election is
	// deterministic.
	joinOrder []int

	sender Sender
	logger *logrus.Logger
}

func NewRoom(name string, opts RoomOptions, roomClientID int, sender Sender, logger *logrus.Logger) *Room {
	visible := make(map[string]struct{}, len(opts.CustomPropertyKeysVisibleInLobby))
	for _, k := range opts.CustomPropertyKeysVisibleInLobby {
		visible[k] = struct{}{}
	}

	props := opts.CustomProperties
	if props == nil {
		props = make(map[string]string)
	}

	return &Room{
		Name:             name,
		IsPrivate:        opts.IsPrivate,
		IsOpen:           opts.IsOpen,
		Password:         opts.Password,
		MaxPlayers:       opts.MaxPlayers,
		MasterID:         NoMaster,
		RoomClientID:     roomClientID,
		CustomProperties: props,
		visibleKeys:      visible,
		players:          make(map[int]*Player),
		sender:           sender,
		logger:           logger,
	}
}

func (r *Room) IsPasswordLocked() bool {
	return r.Password != ""
}

func (r *Room) PlayerCount() int {
	return len(r.players)
}

func (r *Room) Player(id int) (*Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

// Players returns the roster in join order.
func (r *Room) Players() []*Player {
	players := make([]*Player, 0, len(r.joinOrder))
	for _, id := range r.joinOrder {
		players = append(players, r.players[id])
	}
	return players
}

// CanJoin reports whether a player may enter the room. The check order is
// part of the protocol contract: capacity, then password, then open state.
func (r *Room) CanJoin(password string) protocol.ErrorCode {
	if len(r.players) >= r.MaxPlayers {
		return protocol.RoomIsFull
	}
	if r.IsPasswordLocked() && password != r.Password {
		return protocol.IncorrectPassword
	}
	if !r.IsOpen {
		return protocol.RoomIsClosed
	}
	return protocol.Success
}

// AddPlayer announces the new player to the room server and the current
// roster, then inserts them. The first player in becomes master without a
// redundant notification to themselves.
func (r *Room) AddPlayer(p *Player) {
	r.broadcast(protocol.OnPlayerJoinedRoom(p.JSON()))

	r.players[p.ID] = p
	r.joinOrder = append(r.joinOrder, p.ID)

	if len(r.players) <= 1 {
		r.SetMaster(p, false)
	}
}

// RemovePlayer announces the departure, removes the player, and re-elects
// a master if the departing player held it. Reports whether the player was
// in the room.
func (r *Room) RemovePlayer(id int) bool {
	if _, ok := r.players[id]; !ok {
		return false
	}

	r.broadcast(protocol.OnPlayerLeftRoom(int32(id)))

	delete(r.players, id)
	for i, jid := range r.joinOrder {
		if jid == id {
			r.joinOrder = append(r.joinOrder[:i], r.joinOrder[i+1:]...)
			break
		}
	}

	if r.MasterID == id {
		if len(r.joinOrder) > 0 {
			r.SetMaster(r.players[r.joinOrder[0]], true)
		} else {
			r.MasterID = NoMaster
		}
	}
	return true
}

// SetMaster records the new master and announces it. The room server is
// always told; notifyMaster controls whether the new master themselves
// receives the broadcast.
func (r *Room) SetMaster(p *Player, notifyMaster bool) {
	r.MasterID = p.ID

	pkt := protocol.OnMasterChanged(int32(p.ID))
	r.sender.SendTo(r.RoomClientID, pkt)
	for id := range r.players {
		if !notifyMaster && id == p.ID {
			continue
		}
		r.sender.SendTo(id, pkt)
	}
}

// KickPlayer announces the kick to the room server and the full roster,
// then removes the player like a normal departure.
func (r *Room) KickPlayer(id int, reason string) bool {
	if _, ok := r.players[id]; !ok {
		return false
	}
	r.broadcast(protocol.OnPlayerKicked(int32(id), reason))
	return r.RemovePlayer(id)
}

func (r *Room) SetPrivate(v bool) {
	r.IsPrivate = v
	pkt := protocol.OnRoomPropertiesUpdated(protocol.ChangePrivate)
	pkt.WriteBool(v)
	r.broadcast(pkt)
}

func (r *Room) SetOpen(v bool) {
	r.IsOpen = v
	pkt := protocol.OnRoomPropertiesUpdated(protocol.ChangeOpen)
	pkt.WriteBool(v)
	r.broadcast(pkt)
}

func (r *Room) SetPassword(v string) {
	r.Password = v
	pkt := protocol.OnRoomPropertiesUpdated(protocol.ChangePassword)
	pkt.WriteString(v)
	r.broadcast(pkt)
}

// SetMaxPlayers applies the new capacity unless it is below the current
// player count, in which case the request is ignored. No failure is sent
// to the requester; existing clients depend on the silent behavior.
func (r *Room) SetMaxPlayers(v int) bool {
	if v < len(r.players) {
		r.logger.Warnf("room %s: rejected max players %d below current count %d",
			r.Name, v, len(r.players))
		return false
	}
	r.MaxPlayers = v
	pkt := protocol.OnRoomPropertiesUpdated(protocol.ChangeMaxPlayers)
	pkt.WriteInt(int32(v))
	r.broadcast(pkt)
	return true
}

// MergeCustomProperties applies the changed keys last-write-wins and adds
// them to the lobby-visible subset so the public summary reflects them.
func (r *Room) MergeCustomProperties(propsJSON string) error {
	props := make(map[string]string)
	if err := json.Unmarshal([]byte(propsJSON), &props); err != nil {
		return fmt.Errorf("parsing custom properties: %w", err)
	}

	for k, v := range props {
		r.CustomProperties[k] = v
		r.visibleKeys[k] = struct{}{}
	}

	pkt := protocol.OnRoomPropertiesUpdated(protocol.UpdateCustomProperties)
	pkt.WriteString(propsJSON)
	r.broadcast(pkt)
	return nil
}

// UpdatePlayerNickname announces a roster member's new nickname to everyone
// except the member themselves, who already learned it from their own
// request's response.
func (r *Room) UpdatePlayerNickname(subject *Player, nickname, prevNickname string) {
	pkt := protocol.OnNicknameUpdated(int32(subject.ID), nickname, prevNickname)
	r.broadcastExcept(pkt, subject.ID)
}

// UpdatePlayerCustomProperties has the same fan-out as nickname changes.
func (r *Room) UpdatePlayerCustomProperties(subject *Player, propsJSON string) {
	pkt := protocol.OnPlayerCustomPropertiesUpdated(int32(subject.ID), propsJSON)
	r.broadcastExcept(pkt, subject.ID)
}

// VisibleProperties filters custom properties down to the keys the room
// exposes to the lobby's room list.
func (r *Room) VisibleProperties() map[string]string {
	visible := make(map[string]string, len(r.visibleKeys))
	for k := range r.visibleKeys {
		if v, ok := r.CustomProperties[k]; ok {
			visible[k] = v
		}
	}
	return visible
}

func (r *Room) broadcast(pkt *protocol.Packet) {
	r.sender.SendTo(r.RoomClientID, pkt)
	for id := range r.players {
		r.sender.SendTo(id, pkt)
	}
}

func (r *Room) broadcastExcept(pkt *protocol.Packet, exceptID int) {
	r.sender.SendTo(r.RoomClientID, pkt)
	for id := range r.players {
		if id == exceptID {
			continue
		}
		r.sender.SendTo(id, pkt)
	}
}

type roomJSON struct {
	Name             string            `json:"name"`
	IsPrivate        bool              `json:"isPrivate"`
	IsOpen           bool              `json:"isOpen"`
	IsPasswordLocked bool              `json:"isPasswordLocked"`
	MaxPlayers       int               `json:"maxPlayers"`
	MasterID         int               `json:"masterId"`
	CustomProperties map[string]string `json:"customProperties"`
	Players          []json.RawMessage `json:"players"`
}

// JSON returns the full serialized room state sent to a player on join.
// The password itself never leaves the server.
func (r *Room) JSON() string {
	players := make([]json.RawMessage, 0, len(r.joinOrder))
	for _, p := range r.Players() {
		players = append(players, json.RawMessage(p.JSON()))
	}

	b, _ := json.Marshal(roomJSON{
		Name:             r.Name,
		IsPrivate:        r.IsPrivate,
		IsOpen:           r.IsOpen,
		IsPasswordLocked: r.IsPasswordLocked(),
		MaxPlayers:       r.MaxPlayers,
		MasterID:         r.MasterID,
		CustomProperties: r.CustomProperties,
		Players:          players,
	})
	return string(b)
}

// RoomSummary is the public room list entry broadcast to lobby players.
type RoomSummary struct {
	Name             string            `json:"name"`
	PlayerCount      int               `json:"playerCount"`
	MaxPlayers       int               `json:"maxPlayers"`
	IsOpen           bool              `json:"isOpen"`
	IsPasswordLocked bool              `json:"isPasswordLocked"`
	CustomProperties map[string]string `json:"customProperties"`
}

func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		Name:             r.Name,
		PlayerCount:      len(r.players),
		MaxPlayers:       r.MaxPlayers,
		IsOpen:           r.IsOpen,
		IsPasswordLocked: r.IsPasswordLocked(),
		CustomProperties: r.VisibleProperties(),
	}
}
