// Package spawner reserves ports, launches room server processes, and
// tracks the window between "client asked for a room" and "the spawned
// process registered itself". All state is owned by the dispatch thread;
// process exits and register timeouts re-enter through the enqueue hook.
package spawner

import (
	"fmt"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/core"
	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/protocol"
)

type requestKey struct {
	version  string
	roomName string
}

func (k requestKey) String() string {
	return k.version + "/" + k.roomName
}

// SpawnRequest is an in-flight room creation: the process has been
// launched but has not yet connected back and sent RegisterRoom.
type SpawnRequest struct {
	Version  string
	RoomName string
	Port     int
	// ClientID is the slot of the requesting connection, -1 once that
	// connection has gone away.
	ClientID int
	Process  Process
	Aborted  bool
}

// RoomProcess is a registered room server: the spawned process connected
// back and claimed its spawn request.
type RoomProcess struct {
	Version  string
	RoomName string
	Port     int
	// ClientID is the slot of the room server's own connection.
	ClientID int
	Process  Process
}

// Spawner owns the port pool and the spawn request / room process tables.
type Spawner struct {
	config   *core.Config
	logger   *logrus.Logger
	launcher Launcher

	// enqueue hands a callback to the dispatch queue; the only entry
	// point for the process-exit and timeout goroutines.
	enqueue func(func())
	// notifyFailed reports a failed spawn to the requesting connection.
	notifyFailed func(clientID int, code protocol.ErrorCode)

	ports     []int
	requests  map[requestKey]*SpawnRequest
	processes map[string][]*RoomProcess

	// pendingTimers schedules register timeouts; the authoritative
	// pending state lives in requests, the cache only fires the clock.
	pendingTimers *cache.Cache
}

func NewSpawner(
	config *core.Config,
	logger *logrus.Logger,
	launcher Launcher,
	enqueue func(func()),
	notifyFailed func(clientID int, code protocol.ErrorCode),
) *Spawner {
	s := &Spawner{
		config:       config,
		logger:       logger,
		launcher:     launcher,
		enqueue:      enqueue,
		notifyFailed: notifyFailed,
		requests:     make(map[requestKey]*SpawnRequest),
		processes:    make(map[string][]*RoomProcess),
	}

	for i := 0; i < config.Spawner.MaxRoomCount; i++ {
		s.ports = append(s.ports, config.Spawner.BasePort+i)
	}

	s.pendingTimers = cache.New(cache.NoExpiration, time.Second)
	s.pendingTimers.OnEvicted(func(_ string, v interface{}) {
		req := v.(*SpawnRequest)
		s.enqueue(func() { s.handleRegisterTimeout(req) })
	})

	return s
}

// RequestCreateRoom validates a create request, reserves a port, and
// launches the room server process. On Success the caller owes the client
// an OnSpawnProcessStarted; the OnCreatedRoom comes later, when the
// process registers.
func (s *Spawner) RequestCreateRoom(clientID int, version, roomName, roomOptionsJSON string) protocol.ErrorCode {
	key := requestKey{version: version, roomName: roomName}

	if existing, ok := s.requests[key]; ok {
		if existing.ClientID == clientID {
			return protocol.SpawnRequestDuplicated
		}
		return protocol.RoomNameDuplicated
	}
	for _, proc := range s.processes[version] {
		if proc.RoomName == roomName {
			return protocol.RoomNameDuplicated
		}
	}

	if len(s.ports) == 0 {
		return protocol.MaxRoomCountReached
	}
	port := s.ports[0]
	s.ports = s.ports[1:]

	args := []string{
		"-version", version,
		"-masterIp", s.config.Hostname,
		"-masterPort", strconv.Itoa(s.config.MasterServer.Port),
		"-ip", s.config.BroadcastIP(),
		"-port", strconv.Itoa(port),
		"-roomName", roomName,
		"-roomOptions", roomOptionsJSON,
	}

	proc, err := s.launcher.Launch(s.config.Spawner.RoomServerPath, args)
	if err != nil {
		s.ports = append(s.ports, port)
		s.logger.Errorf("failed to launch room server for %s: %v", key, err)
		return protocol.InternalError
	}

	req := &SpawnRequest{
		Version:  version,
		RoomName: roomName,
		Port:     port,
		ClientID: clientID,
		Process:  proc,
	}
	s.requests[key] = req

	if timeout := s.config.RegisterTimeout(); timeout > 0 {
		s.pendingTimers.Set(key.String(), req, timeout)
	}

	go func() {
		err := proc.Wait()
		s.enqueue(func() { s.handleProcessExit(key, proc, err) })
	}()

	s.logger.Infof("spawned room server %s on port %d (pid %d)", key, port, proc.Pid())
	return protocol.Success
}

// RegisterRoomProcess converts a matched spawn request into a tracked room
// process. A registration with no live request lost the race against a
// timeout, an abort, or a process exit.
func (s *Spawner) RegisterRoomProcess(roomClientID int, version, roomName string) (*SpawnRequest, protocol.ErrorCode) {
	key := requestKey{version: version, roomName: roomName}

	req, ok := s.requests[key]
	if !ok {
		s.logger.Warnf("rejected registration for %s: no matching spawn request", key)
		return nil, protocol.InternalError
	}

	if req.Aborted {
		s.logger.Infof("rejected registration for aborted spawn request %s", key)
		s.releaseRequest(key, req, true)
		return nil, protocol.InternalError
	}

	delete(s.requests, key)
	s.pendingTimers.Delete(key.String())

	s.processes[version] = append(s.processes[version], &RoomProcess{
		Version:  version,
		RoomName: roomName,
		Port:     req.Port,
		ClientID: roomClientID,
		Process:  req.Process,
	})
	return req, protocol.Success
}

// AbortCreateRoom marks every in-flight request from the client as aborted
// and clears the requester reference. The reserved port stays out of the
// pool until the process exits, times out, or registers late.
func (s *Spawner) AbortCreateRoom(clientID int) {
	for key, req := range s.requests {
		if req.ClientID != clientID {
			continue
		}
		req.Aborted = true
		req.ClientID = -1
		s.logger.Infof("aborted spawn request %s (requester disconnected)", key)
	}
}

// RemoveRoomProcess drops the room server registered under the connection
// and returns its port to the pool.
func (s *Spawner) RemoveRoomProcess(roomClientID int, version string) {
	procs := s.processes[version]
	for i, proc := range procs {
		if proc.ClientID != roomClientID {
			continue
		}
		s.processes[version] = append(procs[:i], procs[i+1:]...)
		s.ports = append(s.ports, proc.Port)
		_ = proc.Process.Kill()
		s.logger.Infof("removed room process %s/%s, port %d reclaimed", version, proc.RoomName, proc.Port)
		break
	}
	if len(s.processes[version]) == 0 {
		delete(s.processes, version)
	}
}

// handleProcessExit runs when a launched process dies. A death before
// registration fails the spawn; a registered process's death is cleaned
// up through its connection teardown instead.
func (s *Spawner) handleProcessExit(key requestKey, proc Process, waitErr error) {
	req, ok := s.requests[key]
	if !ok || req.Process != proc {
		return
	}

	s.logger.Warnf("room server %s exited before registering: %v", key, waitErr)
	s.releaseRequest(key, req, false)
}

// handleRegisterTimeout fires when a spawn request's timer evicts. The
// eviction also fires on the manual Delete a registration performs, and
// the key may have been reclaimed by a newer request since; only the
// exact request the timer was armed for is released.
func (s *Spawner) handleRegisterTimeout(req *SpawnRequest) {
	key := requestKey{version: req.Version, roomName: req.RoomName}
	if cur, ok := s.requests[key]; !ok || cur != req {
		return
	}

	s.logger.Warnf("room server %s never registered within %v", key, s.config.RegisterTimeout())
	s.releaseRequest(key, req, true)
}

// releaseRequest removes a spawn request, reclaims its port, and notifies
// the requester if one is still attached.
func (s *Spawner) releaseRequest(key requestKey, req *SpawnRequest, kill bool) {
	delete(s.requests, key)
	s.pendingTimers.Delete(key.String())
	s.ports = append(s.ports, req.Port)

	if kill {
		_ = req.Process.Kill()
	}

	if req.ClientID >= 0 && !req.Aborted {
		s.notifyFailed(req.ClientID, protocol.InternalError)
	}
}

// FreePortCount reports the ports currently in the pool.
func (s *Spawner) FreePortCount() int {
	return len(s.ports)
}

// PendingRequestCount reports in-flight spawn requests (each holds a port).
func (s *Spawner) PendingRequestCount() int {
	return len(s.requests)
}

// RoomProcessCount reports registered room processes (each holds a port).
func (s *Spawner) RoomProcessCount() int {
	count := 0
	for _, procs := range s.processes {
		count += len(procs)
	}
	return count
}

// FindRequest returns the in-flight spawn request for (version, roomName).
func (s *Spawner) FindRequest(version, roomName string) (*SpawnRequest, bool) {
	req, ok := s.requests[requestKey{version: version, roomName: roomName}]
	return req, ok
}

func (s *Spawner) String() string {
	return fmt.Sprintf("spawner(free=%d pending=%d registered=%d)",
		s.FreePortCount(), s.PendingRequestCount(), s.RoomProcessCount())
}
