package lobby

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/protocol"
)

func newTestLobby(sender Sender) *Lobby {
	return NewLobby("1.0", sender, testLogger())
}

func addRoom(l *Lobby, name string, opts RoomOptions, roomClientID int) *Room {
	if opts.MaxPlayers == 0 {
		opts.MaxPlayers = 4
	}
	r := NewRoom(name, opts, roomClientID, l.sender, l.logger)
	l.AddRoom(r)
	return r
}

func TestLobby_JoinRoomByName(t *testing.T) {
	sender := &recordingSender{}
	l := newTestLobby(sender)
	addRoom(l, "room-A", RoomOptions{IsOpen: true}, 100)

	alice := NewPlayer(0, "tok-a", "Alice", nil)
	l.AddPlayer(alice)

	room, code := l.JoinRoom(alice, "room-A", "")
	require.Equal(t, protocol.Success, code)
	assert.Equal(t, "room-A", alice.RoomName)
	assert.Equal(t, 1, room.PlayerCount())

	_, code = l.JoinRoom(alice, "no-such-room", "")
	assert.Equal(t, protocol.RoomNotFound, code)
}

func TestLobby_JoinFullRoomDoesNotMutateRoster(t *testing.T) {
	sender := &recordingSender{}
	l := newTestLobby(sender)
	room := addRoom(l, "room-A", RoomOptions{IsOpen: true, MaxPlayers: 2}, 100)

	for i := 0; i < 2; i++ {
		p := NewPlayer(i, "", "", nil)
		l.AddPlayer(p)
		_, code := l.JoinRoom(p, "room-A", "")
		require.Equal(t, protocol.Success, code)
	}

	third := NewPlayer(2, "", "", nil)
	l.AddPlayer(third)
	_, code := l.JoinRoom(third, "room-A", "")

	assert.Equal(t, protocol.RoomIsFull, code)
	assert.Equal(t, 2, room.PlayerCount())
	assert.Empty(t, third.RoomName)
}

func TestLobby_JoinRandomRoomSkipsPrivateAndUnjoinable(t *testing.T) {
	sender := &recordingSender{}
	l := newTestLobby(sender)

	addRoom(l, "private", RoomOptions{IsOpen: true, IsPrivate: true}, 100)
	addRoom(l, "closed", RoomOptions{IsOpen: false}, 101)
	joinable := addRoom(l, "joinable", RoomOptions{IsOpen: true}, 102)

	// Pin the visit order so the private and closed rooms are evaluated first.
	l.perm = func(n int) []int {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		return order
	}

	alice := NewPlayer(0, "", "", nil)
	l.AddPlayer(alice)

	room, code := l.JoinRandomRoom(alice, "")
	require.Equal(t, protocol.Success, code)
	assert.Equal(t, joinable.Name, room.Name)

	// Closing the last joinable room leaves nothing to match.
	joinable.IsOpen = false
	bob := NewPlayer(1, "", "", nil)
	l.AddPlayer(bob)
	_, code = l.JoinRandomRoom(bob, "")
	assert.Equal(t, protocol.RoomNotFound, code)
}

func TestLobby_EmptyRoomNameJoinsRandomly(t *testing.T) {
	sender := &recordingSender{}
	l := newTestLobby(sender)
	addRoom(l, "room-A", RoomOptions{IsOpen: true}, 100)

	alice := NewPlayer(0, "", "", nil)
	l.AddPlayer(alice)

	room, code := l.JoinRoom(alice, "", "")
	require.Equal(t, protocol.Success, code)
	assert.Equal(t, "room-A", room.Name)
}

func TestLobby_RoomListOmitsPrivateRoomsAndFiltersProperties(t *testing.T) {
	sender := &recordingSender{}
	l := newTestLobby(sender)

	addRoom(l, "hidden", RoomOptions{IsOpen: true, IsPrivate: true}, 100)
	addRoom(l, "visible", RoomOptions{
		IsOpen:                           true,
		CustomProperties:                 map[string]string{"map": "canyon", "secret": "x"},
		CustomPropertyKeysVisibleInLobby: []string{"map"},
	}, 101)

	var summaries []RoomSummary
	require.NoError(t, json.Unmarshal([]byte(l.RoomListJSON()), &summaries))

	require.Len(t, summaries, 1)
	assert.Equal(t, "visible", summaries[0].Name)
	assert.Equal(t, map[string]string{"map": "canyon"}, summaries[0].CustomProperties)
}

func TestLobby_RoomListPushedOnlyToPlayersOutsideRooms(t *testing.T) {
	sender := &recordingSender{}
	l := newTestLobby(sender)
	addRoom(l, "room-A", RoomOptions{IsOpen: true}, 100)

	inRoom := NewPlayer(0, "", "", nil)
	inLobby := NewPlayer(1, "", "", nil)
	l.AddPlayer(inRoom)
	l.AddPlayer(inLobby)
	_, code := l.JoinRoom(inRoom, "room-A", "")
	require.Equal(t, protocol.Success, code)

	sender.reset()
	l.NotifyRoomListChanged()

	assert.Empty(t, sender.opsSentTo(inRoom.ID))
	assert.Equal(t, []protocol.Opcode{protocol.OnRoomListChangedType}, sender.opsSentTo(inLobby.ID))
}

func TestLobby_LeaveRoomClearsPlayerAndKeepsEmptyRoom(t *testing.T) {
	sender := &recordingSender{}
	l := newTestLobby(sender)
	room := addRoom(l, "room-A", RoomOptions{IsOpen: true}, 100)

	alice := NewPlayer(0, "", "", nil)
	l.AddPlayer(alice)
	_, code := l.JoinRoom(alice, "room-A", "")
	require.Equal(t, protocol.Success, code)

	l.LeaveRoom(alice)

	assert.Empty(t, alice.RoomName)
	assert.Equal(t, 0, room.PlayerCount())
	// The room's lifetime is tied to its server process, not its roster.
	_, ok := l.Room("room-A")
	assert.True(t, ok)
}

func TestRegistry_LobbyLifecycle(t *testing.T) {
	sender := &recordingSender{}
	reg := NewRegistry(sender, testLogger())

	l := reg.FindOrCreateLobby("1.0")
	assert.Same(t, l, reg.FindOrCreateLobby("1.0"))

	l.AddClient(0)
	l.AddClient(1)

	// Removing a non-empty lobby is a no-op safety check.
	reg.RemoveLobby("1.0")
	_, ok := reg.FindLobby("1.0")
	assert.True(t, ok)

	require.False(t, l.RemoveClient(0))
	require.True(t, l.RemoveClient(1))
	reg.RemoveLobby("1.0")

	_, ok = reg.FindLobby("1.0")
	assert.False(t, ok)
}

func TestRegistry_TotalPlayerCount(t *testing.T) {
	sender := &recordingSender{}
	reg := NewRegistry(sender, testLogger())

	a := reg.FindOrCreateLobby("1.0")
	b := reg.FindOrCreateLobby("2.0")
	a.AddPlayer(NewPlayer(0, "", "", nil))
	a.AddPlayer(NewPlayer(1, "", "", nil))
	b.AddPlayer(NewPlayer(2, "", "", nil))

	assert.Equal(t, 3, reg.TotalPlayerCount())
}
