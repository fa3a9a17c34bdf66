package protocol

// ErrorCode is the closed set of failure reasons reported in OnXFailed
// responses. Values are part of the wire contract.
type ErrorCode int32

const (
	Success ErrorCode = iota
	Timeout
	MaxConnectionReached
	AuthIdDuplicated
	RoomNameNull
	RoomNameDuplicated
	SpawnRequestDuplicated
	MaxRoomCountReached
	RoomIsFull
	IncorrectPassword
	RoomIsClosed
	InternalError
	LobbyNotFound
	RoomNotFound
	TargetNotFound
)

var errorCodeNames = map[ErrorCode]string{
	Success:                "Success",
	Timeout:                "Timeout",
	MaxConnectionReached:   "MaxConnectionReached",
	AuthIdDuplicated:       "AuthIdDuplicated",
	RoomNameNull:           "RoomNameNull",
	RoomNameDuplicated:     "RoomNameDuplicated",
	SpawnRequestDuplicated: "SpawnRequestDuplicated",
	MaxRoomCountReached:    "MaxRoomCountReached",
	RoomIsFull:             "RoomIsFull",
	IncorrectPassword:      "IncorrectPassword",
	RoomIsClosed:           "RoomIsClosed",
	InternalError:          "InternalError",
	LobbyNotFound:          "LobbyNotFound",
	RoomNotFound:           "RoomNotFound",
	TargetNotFound:         "TargetNotFound",
}

func (e ErrorCode) String() string {
	if name, ok := errorCodeNames[e]; ok {
		return name
	}
	return "Unknown"
}
