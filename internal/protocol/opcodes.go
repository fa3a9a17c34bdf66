package protocol

// Opcode identifies the operation carried by a frame. Requests occupy the
// low range and responses/notifications start at 101 so a capture is
// unambiguous about direction.
type Opcode int32

// Client -> master requests. Room server processes use the same channel
// with IsPlayer=false on the connect handshake.
const (
	ConnectToMasterType Opcode = iota + 1
	CreateRoomType
	RegisterRoomType
	JoinRoomType
	JoinRandomRoomType
	LeaveRoomType
	UpdateRoomPropertiesType
	SetNicknameType
	SetPlayerCustomPropertiesType
	SetMasterType
	KickPlayerType
	FetchPlayerCountType
	FetchPlayerCountInLobbyType
	FetchPlayerListType
	FetchRoomListType
	SendMessageType
)

// Master -> client responses and notifications.
const (
	OnConnectedToMasterType Opcode = iota + 101
	OnConnectToMasterFailedType
	OnSpawnProcessStartedType
	OnCreatedRoomType
	OnCreateRoomFailedType
	OnRoomRegisteredType
	OnJoinedRoomType
	OnJoinRoomFailedType
	OnJoinRandomRoomFailedType
	OnLeftRoomType
	OnRoomPropertiesUpdatedType
	OnNicknameUpdatedType
	OnPlayerCustomPropertiesUpdatedType
	OnMasterChangedType
	OnPlayerKickedType
	OnPlayerCountFetchedType
	OnPlayerCountInLobbyFetchedType
	OnPlayerListFetchedType
	OnRoomListFetchedType
	OnSendMessageSuccessType
	OnSendMessageFailedType
	OnMessageReceivedType
	OnPlayerJoinedRoomType
	OnPlayerLeftRoomType
	OnRoomListChangedType
)

// RoomPropertyOp tags the value carried by an UpdateRoomProperties request
// and the matching OnRoomPropertiesUpdated broadcast.
type RoomPropertyOp int32

const (
	ChangePrivate RoomPropertyOp = iota
	ChangeMaxPlayers
	ChangeOpen
	ChangePassword
	UpdateCustomProperties
)

func (op RoomPropertyOp) String() string {
	switch op {
	case ChangePrivate:
		return "ChangePrivate"
	case ChangeMaxPlayers:
		return "ChangeMaxPlayers"
	case ChangeOpen:
		return "ChangeOpen"
	case ChangePassword:
		return "ChangePassword"
	case UpdateCustomProperties:
		return "UpdateCustomProperties"
	}
	return "Unknown"
}
