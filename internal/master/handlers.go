package master

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/core/debug"
	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/data"
	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/lobby"
	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/protocol"
)

// dispatchRequest routes a decoded opcode to its handler. The request set
// is a closed enum; an unknown opcode is a protocol violation worth
// logging but not fatal to the connection.
func (s *Server) dispatchRequest(sl *slot, op protocol.Opcode, r *protocol.Packet) error {
	if op != protocol.ConnectToMasterType && !sl.authed {
		s.logger.Warnf("[MASTER] client %d sent %v before completing the handshake", sl.id, op)
		return nil
	}

	switch op {
	case protocol.ConnectToMasterType:
		return s.handleConnectToMaster(sl, r)
	case protocol.CreateRoomType:
		return s.handleCreateRoom(sl, r)
	case protocol.RegisterRoomType:
		return s.handleRegisterRoom(sl, r)
	case protocol.JoinRoomType:
		return s.handleJoinRoom(sl, r)
	case protocol.JoinRandomRoomType:
		return s.handleJoinRandomRoom(sl, r)
	case protocol.LeaveRoomType:
		return s.handleLeaveRoom(sl, r)
	case protocol.UpdateRoomPropertiesType:
		return s.handleUpdateRoomProperties(sl, r)
	case protocol.SetNicknameType:
		return s.handleSetNickname(sl, r)
	case protocol.SetPlayerCustomPropertiesType:
		return s.handleSetPlayerCustomProperties(sl, r)
	case protocol.SetMasterType:
		return s.handleSetMaster(sl, r)
	case protocol.KickPlayerType:
		return s.handleKickPlayer(sl, r)
	case protocol.FetchPlayerCountType:
		return s.handleFetchPlayerCount(sl, r)
	case protocol.FetchPlayerCountInLobbyType:
		return s.handleFetchPlayerCountInLobby(sl, r)
	case protocol.FetchPlayerListType:
		return s.handleFetchPlayerList(sl, r)
	case protocol.FetchRoomListType:
		return s.handleFetchRoomList(sl, r)
	case protocol.SendMessageType:
		return s.handleSendMessage(sl, r)
	default:
		s.logger.Warnf("[MASTER] client %d sent unknown opcode %d", sl.id, op)
		return nil
	}
}

type connectToMasterRequest struct {
	Version      string
	IsPlayer     bool
	ClientID     int32
	SessionToken string
	Nickname     string
	CustomProps  string
}

func decodeConnectToMaster(r *protocol.Packet) (connectToMasterRequest, error) {
	var req connectToMasterRequest
	var err error
	if req.Version, err = r.ReadString(); err != nil {
		return req, err
	}
	if req.IsPlayer, err = r.ReadBool(); err != nil {
		return req, err
	}
	if req.ClientID, err = r.ReadInt(); err != nil {
		return req, err
	}
	if req.SessionToken, err = r.ReadString(); err != nil {
		return req, err
	}
	if !req.IsPlayer {
		return req, nil
	}
	if req.Nickname, err = r.ReadString(); err != nil {
		return req, err
	}
	req.CustomProps, err = r.ReadString()
	return req, err
}

// handleConnectToMaster runs the handshake: establish the slot's identity,
// attach it to the version's lobby, and (for players) create the Player,
// restoring persisted session state when a known token reconnects.
func (s *Server) handleConnectToMaster(sl *slot, r *protocol.Packet) error {
	req, err := decodeConnectToMaster(r)
	if err != nil {
		return err
	}
	if s.config.Debugging.PacketLoggingEnabled {
		s.logger.Debug(debug.FormatDecoded(req))
	}

	if sl.authed {
		s.SendTo(sl.id, protocol.OnConnectToMasterFailed(protocol.AuthIdDuplicated))
		return nil
	}

	l := s.registry.FindOrCreateLobby(req.Version)

	token := req.SessionToken
	if token == "" {
		token = uuid.NewString()
	} else if _, taken := l.PlayerBySessionToken(token); taken {
		s.SendTo(sl.id, protocol.OnConnectToMasterFailed(protocol.AuthIdDuplicated))
		return nil
	}

	sl.authed = true
	sl.isPlayer = req.IsPlayer
	sl.version = req.Version
	sl.sessionToken = token
	l.AddClient(sl.id)

	if req.IsPlayer {
		if err := s.attachPlayer(sl, l, req, token); err != nil {
			return err
		}
	}

	role := "room server"
	if req.IsPlayer {
		role = "player"
	}
	s.logger.Infof("[MASTER] client %d connected to lobby %s as %s", sl.id, req.Version, role)
	s.SendTo(sl.id, protocol.OnConnectedToMaster(int32(sl.id), token))
	return nil
}

func (s *Server) attachPlayer(sl *slot, l *lobby.Lobby, req connectToMasterRequest, token string) error {
	nickname := req.Nickname
	props := make(map[string]string)
	if req.CustomProps != "" {
		if err := json.Unmarshal([]byte(req.CustomProps), &props); err != nil {
			return fmt.Errorf("parsing custom properties: %w", err)
		}
	}

	// A returning player that supplies a known token but no nickname gets
	// their previous identity back.
	if req.SessionToken != "" && nickname == "" {
		session, err := s.sessions.Find(token)
		if err != nil {
			s.logger.Errorf("[MASTER] session lookup for client %d failed: %v", sl.id, err)
		} else if session != nil {
			nickname = session.Nickname
			if len(props) == 0 && session.CustomProperties != "" {
				if err := json.Unmarshal([]byte(session.CustomProperties), &props); err != nil {
					s.logger.Warnf("[MASTER] discarding stored properties for %s: %v", token, err)
					props = make(map[string]string)
				}
			}
		}
	}

	l.AddPlayer(lobby.NewPlayer(sl.id, token, nickname, props))
	s.persistSession(sl, token, nickname, props)
	return nil
}

func (s *Server) persistSession(sl *slot, token, nickname string, props map[string]string) {
	propsJSON, _ := json.Marshal(props)
	err := s.sessions.Put(&data.PlayerSession{
		SessionToken:     token,
		Nickname:         nickname,
		CustomProperties: string(propsJSON),
	})
	if err != nil {
		s.logger.Errorf("[MASTER] persisting session for client %d failed: %v", sl.id, err)
	}
}

func (s *Server) handleCreateRoom(sl *slot, r *protocol.Packet) error {
	version, err := r.ReadString()
	if err != nil {
		return err
	}
	roomName, err := r.ReadString()
	if err != nil {
		return err
	}
	roomOptions, err := r.ReadString()
	if err != nil {
		return err
	}

	if roomName == "" {
		s.SendTo(sl.id, protocol.OnCreateRoomFailed(protocol.RoomNameNull))
		return nil
	}
	if l, ok := s.registry.FindLobby(version); ok {
		if _, exists := l.Room(roomName); exists {
			s.SendTo(sl.id, protocol.OnCreateRoomFailed(protocol.RoomNameDuplicated))
			return nil
		}
	}

	if code := s.spawner.RequestCreateRoom(sl.id, version, roomName, roomOptions); code != protocol.Success {
		s.SendTo(sl.id, protocol.OnCreateRoomFailed(code))
		return nil
	}
	s.SendTo(sl.id, protocol.OnSpawnProcessStarted())
	return nil
}

// handleRegisterRoom completes a spawn: the launched process connected
// back (isPlayer=false) and now claims its spawn request. The room
// becomes joinable and the original requester learns the address.
func (s *Server) handleRegisterRoom(sl *slot, r *protocol.Packet) error {
	version, err := r.ReadString()
	if err != nil {
		return err
	}
	roomName, err := r.ReadString()
	if err != nil {
		return err
	}
	roomOptions, err := r.ReadString()
	if err != nil {
		return err
	}
	ip, err := r.ReadString()
	if err != nil {
		return err
	}
	port, err := r.ReadShort()
	if err != nil {
		return err
	}

	// The room must land in the lobby the connection authenticated into,
	// or disconnect cleanup would never find it.
	if version != sl.version {
		s.logger.Warnf("[MASTER] client %d connected with version %s but registered room %s under %s",
			sl.id, sl.version, roomName, version)
		if sl.conn != nil {
			sl.conn.Close()
		}
		return nil
	}

	req, code := s.spawner.RegisterRoomProcess(sl.id, version, roomName)
	if code != protocol.Success {
		// Nobody is waiting on this process anymore; drop its connection.
		if sl.conn != nil {
			sl.conn.Close()
		}
		return nil
	}

	opts, err := lobby.ParseRoomOptions(roomOptions)
	if err != nil {
		s.logger.Warnf("[MASTER] room %s/%s registered with bad options, using defaults: %v",
			version, roomName, err)
	}

	l := s.registry.FindOrCreateLobby(version)
	l.AddRoom(lobby.NewRoom(roomName, opts, sl.id, s, s.logger))
	s.logger.Infof("[MASTER] room %s/%s registered at %s:%d", version, roomName, ip, port)

	s.SendTo(sl.id, protocol.OnRoomRegistered())
	if req.ClientID >= 0 {
		s.SendTo(req.ClientID, protocol.OnCreatedRoom(roomName, ip, uint16(port)))
	}
	return nil
}

// lobbyPlayer resolves the requesting slot to its lobby and player. A
// miss means the client is ahead of the server's state; the caller sends
// the op-specific failure.
func (s *Server) lobbyPlayer(sl *slot, version string) (*lobby.Lobby, *lobby.Player, protocol.ErrorCode) {
	l, ok := s.registry.FindLobby(version)
	if !ok {
		return nil, nil, protocol.LobbyNotFound
	}
	p, ok := l.Player(sl.id)
	if !ok {
		return nil, nil, protocol.InternalError
	}
	return l, p, protocol.Success
}

func (s *Server) handleJoinRoom(sl *slot, r *protocol.Packet) error {
	version, err := r.ReadString()
	if err != nil {
		return err
	}
	roomName, err := r.ReadString()
	if err != nil {
		return err
	}
	password, err := r.ReadString()
	if err != nil {
		return err
	}

	l, p, code := s.lobbyPlayer(sl, version)
	if code != protocol.Success {
		s.SendTo(sl.id, protocol.OnJoinRoomFailed(code))
		return nil
	}

	room, code := l.JoinRoom(p, roomName, password)
	if code != protocol.Success {
		s.SendTo(sl.id, protocol.OnJoinRoomFailed(code))
		return nil
	}
	s.SendTo(sl.id, protocol.OnJoinedRoom(room.JSON()))
	return nil
}

func (s *Server) handleJoinRandomRoom(sl *slot, r *protocol.Packet) error {
	version, err := r.ReadString()
	if err != nil {
		return err
	}
	password, err := r.ReadString()
	if err != nil {
		return err
	}

	l, p, code := s.lobbyPlayer(sl, version)
	if code != protocol.Success {
		s.SendTo(sl.id, protocol.OnJoinRandomRoomFailed(code))
		return nil
	}

	room, code := l.JoinRandomRoom(p, password)
	if code != protocol.Success {
		s.SendTo(sl.id, protocol.OnJoinRandomRoomFailed(code))
		return nil
	}
	s.SendTo(sl.id, protocol.OnJoinedRoom(room.JSON()))
	return nil
}

func (s *Server) handleLeaveRoom(sl *slot, r *protocol.Packet) error {
	version, err := r.ReadString()
	if err != nil {
		return err
	}
	if _, err := r.ReadString(); err != nil { // room name; the player record is authoritative
		return err
	}

	l, p, code := s.lobbyPlayer(sl, version)
	if code == protocol.Success {
		l.LeaveRoom(p)
	}
	s.SendTo(sl.id, protocol.OnLeftRoom())
	return nil
}

// handleUpdateRoomProperties applies one property change to a room. The
// value's wire type is selected by the op tag; the room broadcasts the
// change itself.
func (s *Server) handleUpdateRoomProperties(sl *slot, r *protocol.Packet) error {
	version, err := r.ReadString()
	if err != nil {
		return err
	}
	roomName, err := r.ReadString()
	if err != nil {
		return err
	}
	opTag, err := r.ReadInt()
	if err != nil {
		return err
	}

	l, ok := s.registry.FindLobby(version)
	if !ok {
		return nil
	}
	room, ok := l.Room(roomName)
	if !ok {
		return nil
	}

	switch op := protocol.RoomPropertyOp(opTag); op {
	case protocol.ChangePrivate:
		v, err := r.ReadBool()
		if err != nil {
			return err
		}
		room.SetPrivate(v)
	case protocol.ChangeOpen:
		v, err := r.ReadBool()
		if err != nil {
			return err
		}
		room.SetOpen(v)
	case protocol.ChangePassword:
		v, err := r.ReadString()
		if err != nil {
			return err
		}
		room.SetPassword(v)
	case protocol.ChangeMaxPlayers:
		v, err := r.ReadInt()
		if err != nil {
			return err
		}
		room.SetMaxPlayers(int(v))
	case protocol.UpdateCustomProperties:
		v, err := r.ReadString()
		if err != nil {
			return err
		}
		if err := room.MergeCustomProperties(v); err != nil {
			return err
		}
	default:
		s.logger.Warnf("[MASTER] client %d sent unknown room property op %d", sl.id, opTag)
		return nil
	}

	l.NotifyRoomListChanged()
	return nil
}

func (s *Server) handleSetNickname(sl *slot, r *protocol.Packet) error {
	version, err := r.ReadString()
	if err != nil {
		return err
	}
	nickname, err := r.ReadString()
	if err != nil {
		return err
	}

	l, p, code := s.lobbyPlayer(sl, version)
	if code != protocol.Success {
		return nil
	}

	prev := p.Nickname
	p.Nickname = nickname
	s.SendTo(sl.id, protocol.OnNicknameUpdated(int32(sl.id), nickname, prev))

	if p.RoomName != "" {
		if room, ok := l.Room(p.RoomName); ok {
			room.UpdatePlayerNickname(p, nickname, prev)
		}
	}
	s.persistSession(sl, p.SessionToken, p.Nickname, p.CustomProperties)
	return nil
}

func (s *Server) handleSetPlayerCustomProperties(sl *slot, r *protocol.Packet) error {
	version, err := r.ReadString()
	if err != nil {
		return err
	}
	clientID, err := r.ReadInt()
	if err != nil {
		return err
	}
	propsJSON, err := r.ReadString()
	if err != nil {
		return err
	}

	l, ok := s.registry.FindLobby(version)
	if !ok {
		return nil
	}
	subject, ok := l.Player(int(clientID))
	if !ok {
		return nil
	}

	props := make(map[string]string)
	if err := json.Unmarshal([]byte(propsJSON), &props); err != nil {
		return fmt.Errorf("parsing custom properties: %w", err)
	}
	subject.MergeProperties(props)

	s.SendTo(sl.id, protocol.OnPlayerCustomPropertiesUpdated(clientID, propsJSON))
	if subject.RoomName != "" {
		if room, ok := l.Room(subject.RoomName); ok {
			room.UpdatePlayerCustomProperties(subject, propsJSON)
		}
	}
	s.persistSession(sl, subject.SessionToken, subject.Nickname, subject.CustomProperties)
	return nil
}

func (s *Server) handleSetMaster(sl *slot, r *protocol.Packet) error {
	version, err := r.ReadString()
	if err != nil {
		return err
	}
	roomName, err := r.ReadString()
	if err != nil {
		return err
	}
	clientID, err := r.ReadInt()
	if err != nil {
		return err
	}

	l, ok := s.registry.FindLobby(version)
	if !ok {
		return nil
	}
	room, ok := l.Room(roomName)
	if !ok {
		return nil
	}
	p, ok := room.Player(int(clientID))
	if !ok {
		s.logger.Warnf("[MASTER] client %d tried to promote absent player %d in room %s",
			sl.id, clientID, roomName)
		return nil
	}
	room.SetMaster(p, true)
	return nil
}

func (s *Server) handleKickPlayer(sl *slot, r *protocol.Packet) error {
	version, err := r.ReadString()
	if err != nil {
		return err
	}
	roomName, err := r.ReadString()
	if err != nil {
		return err
	}
	playerID, err := r.ReadInt()
	if err != nil {
		return err
	}
	reason, err := r.ReadString()
	if err != nil {
		return err
	}

	l, ok := s.registry.FindLobby(version)
	if !ok {
		return nil
	}
	room, ok := l.Room(roomName)
	if !ok {
		return nil
	}

	// The reason is shown to the kicked player verbatim; tidy it up.
	reason = cases.Title(language.English).String(reason)
	if !room.KickPlayer(int(playerID), reason) {
		return nil
	}
	if p, ok := l.Player(int(playerID)); ok {
		p.RoomName = ""
	}
	l.NotifyRoomListChanged()
	return nil
}

func (s *Server) handleFetchPlayerCount(sl *slot, r *protocol.Packet) error {
	if _, err := r.ReadString(); err != nil { // version; the count is global
		return err
	}
	s.SendTo(sl.id, protocol.OnPlayerCountFetched(int32(s.registry.TotalPlayerCount())))
	return nil
}

func (s *Server) handleFetchPlayerCountInLobby(sl *slot, r *protocol.Packet) error {
	version, err := r.ReadString()
	if err != nil {
		return err
	}
	count := 0
	if l, ok := s.registry.FindLobby(version); ok {
		count = l.PlayerCount()
	}
	s.SendTo(sl.id, protocol.OnPlayerCountInLobbyFetched(int32(count)))
	return nil
}

func (s *Server) handleFetchPlayerList(sl *slot, r *protocol.Packet) error {
	version, err := r.ReadString()
	if err != nil {
		return err
	}
	playersJSON := "[]"
	if l, ok := s.registry.FindLobby(version); ok {
		playersJSON = l.PlayerListJSON()
	}
	s.SendTo(sl.id, protocol.OnPlayerListFetched(playersJSON))
	return nil
}

func (s *Server) handleFetchRoomList(sl *slot, r *protocol.Packet) error {
	version, err := r.ReadString()
	if err != nil {
		return err
	}
	roomsJSON := "[]"
	if l, ok := s.registry.FindLobby(version); ok {
		roomsJSON = l.RoomListJSON()
	}
	s.SendTo(sl.id, protocol.OnRoomListFetched(roomsJSON))
	return nil
}

// handleSendMessage relays a lobby chat message. An empty target token
// fans out to every player in the sender's lobby except the sender; a
// non-empty token addresses exactly one player.
func (s *Server) handleSendMessage(sl *slot, r *protocol.Packet) error {
	version, err := r.ReadString()
	if err != nil {
		return err
	}
	targetToken, err := r.ReadString()
	if err != nil {
		return err
	}
	message, err := r.ReadString()
	if err != nil {
		return err
	}

	l, sender, code := s.lobbyPlayer(sl, version)
	if code != protocol.Success {
		s.SendTo(sl.id, protocol.OnSendMessageFailed(code))
		return nil
	}

	if targetToken == "" {
		pkt := protocol.OnMessageReceived(sender.SessionToken, message)
		for _, p := range l.Players() {
			if p.ID == sender.ID {
				continue
			}
			s.SendTo(p.ID, pkt)
		}
		s.SendTo(sl.id, protocol.OnSendMessageSuccess())
		return nil
	}

	target, ok := l.PlayerBySessionToken(targetToken)
	if !ok {
		s.SendTo(sl.id, protocol.OnSendMessageFailed(protocol.TargetNotFound))
		return nil
	}
	s.SendTo(target.ID, protocol.OnMessageReceived(sender.SessionToken, message))
	s.SendTo(sl.id, protocol.OnSendMessageSuccess())
	return nil
}
