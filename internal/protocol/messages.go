package protocol

// Builders for every master -> client message. Handlers and broadcast
// paths construct packets exclusively through these so the payload layout
// of each opcode lives in one place. The length prefix is patched at send
// time, not here.

func OnConnectedToMaster(clientID int32, sessionToken string) *Packet {
	p := NewPacket(OnConnectedToMasterType)
	p.WriteInt(clientID)
	p.WriteString(sessionToken)
	return p
}

func OnConnectToMasterFailed(code ErrorCode) *Packet {
	p := NewPacket(OnConnectToMasterFailedType)
	p.WriteInt(int32(code))
	return p
}

func OnSpawnProcessStarted() *Packet {
	return NewPacket(OnSpawnProcessStartedType)
}

func OnCreatedRoom(roomName, ip string, port uint16) *Packet {
	p := NewPacket(OnCreatedRoomType)
	p.WriteString(roomName)
	p.WriteString(ip)
	p.WriteShort(int16(port))
	return p
}

func OnCreateRoomFailed(code ErrorCode) *Packet {
	p := NewPacket(OnCreateRoomFailedType)
	p.WriteInt(int32(code))
	return p
}

func OnRoomRegistered() *Packet {
	return NewPacket(OnRoomRegisteredType)
}

func OnJoinedRoom(roomJSON string) *Packet {
	p := NewPacket(OnJoinedRoomType)
	p.WriteString(roomJSON)
	return p
}

func OnJoinRoomFailed(code ErrorCode) *Packet {
	p := NewPacket(OnJoinRoomFailedType)
	p.WriteInt(int32(code))
	return p
}

func OnJoinRandomRoomFailed(code ErrorCode) *Packet {
	p := NewPacket(OnJoinRandomRoomFailedType)
	p.WriteInt(int32(code))
	return p
}

func OnLeftRoom() *Packet {
	return NewPacket(OnLeftRoomType)
}

// OnRoomPropertiesUpdated carries the op tag followed by an op-specific
// value; callers append the value with the matching Write call.
func OnRoomPropertiesUpdated(op RoomPropertyOp) *Packet {
	p := NewPacket(OnRoomPropertiesUpdatedType)
	p.WriteInt(int32(op))
	return p
}

func OnNicknameUpdated(clientID int32, nickname, prevNickname string) *Packet {
	p := NewPacket(OnNicknameUpdatedType)
	p.WriteInt(clientID)
	p.WriteString(nickname)
	p.WriteString(prevNickname)
	return p
}

func OnPlayerCustomPropertiesUpdated(clientID int32, propsJSON string) *Packet {
	p := NewPacket(OnPlayerCustomPropertiesUpdatedType)
	p.WriteInt(clientID)
	p.WriteString(propsJSON)
	return p
}

func OnMasterChanged(clientID int32) *Packet {
	p := NewPacket(OnMasterChangedType)
	p.WriteInt(clientID)
	return p
}

func OnPlayerKicked(playerID int32, reason string) *Packet {
	p := NewPacket(OnPlayerKickedType)
	p.WriteInt(playerID)
	p.WriteString(reason)
	return p
}

func OnPlayerCountFetched(count int32) *Packet {
	p := NewPacket(OnPlayerCountFetchedType)
	p.WriteInt(count)
	return p
}

func OnPlayerCountInLobbyFetched(count int32) *Packet {
	p := NewPacket(OnPlayerCountInLobbyFetchedType)
	p.WriteInt(count)
	return p
}

func OnPlayerListFetched(playersJSON string) *Packet {
	p := NewPacket(OnPlayerListFetchedType)
	p.WriteString(playersJSON)
	return p
}

func OnRoomListFetched(roomsJSON string) *Packet {
	p := NewPacket(OnRoomListFetchedType)
	p.WriteString(roomsJSON)
	return p
}

func OnSendMessageSuccess() *Packet {
	return NewPacket(OnSendMessageSuccessType)
}

func OnSendMessageFailed(code ErrorCode) *Packet {
	p := NewPacket(OnSendMessageFailedType)
	p.WriteInt(int32(code))
	return p
}

func OnMessageReceived(senderToken, message string) *Packet {
	p := NewPacket(OnMessageReceivedType)
	p.WriteString(senderToken)
	p.WriteString(message)
	return p
}

func OnPlayerJoinedRoom(playerJSON string) *Packet {
	p := NewPacket(OnPlayerJoinedRoomType)
	p.WriteString(playerJSON)
	return p
}

func OnPlayerLeftRoom(playerID int32) *Packet {
	p := NewPacket(OnPlayerLeftRoomType)
	p.WriteInt(playerID)
	return p
}

func OnRoomListChanged(roomsJSON string) *Packet {
	p := NewPacket(OnRoomListChangedType)
	p.WriteString(roomsJSON)
	return p
}
