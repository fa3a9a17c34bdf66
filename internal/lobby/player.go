package lobby

import "encoding/json"

// Player is a connected client that declared itself a player during the
// connect handshake. A player belongs to exactly one lobby; RoomName is
// empty while the player is not in a room.
//
// The ID doubles as the connection slot id, so every send to a player goes
// through the connection table rather than a stored socket reference.
type Player struct {
	ID               int
	SessionToken     string
	Nickname         string
	CustomProperties map[string]string
	RoomName         string
}

func NewPlayer(id int, sessionToken, nickname string, props map[string]string) *Player {
	if props == nil {
		props = make(map[string]string)
	}
	return &Player{
		ID:               id,
		SessionToken:     sessionToken,
		Nickname:         nickname,
		CustomProperties: props,
	}
}

// MergeProperties applies the changed keys last-write-wins.
func (p *Player) MergeProperties(props map[string]string) {
	for k, v := range props {
		p.CustomProperties[k] = v
	}
}

type playerJSON struct {
	ID               int               `json:"id"`
	Nickname         string            `json:"nickname"`
	CustomProperties map[string]string `json:"customProperties"`
}

// JSON returns the serialized form of the player used in join broadcasts
// and player list responses.
func (p *Player) JSON() string {
	b, _ := json.Marshal(playerJSON{
		ID:               p.ID,
		Nickname:         p.Nickname,
		CustomProperties: p.CustomProperties,
	})
	return string(b)
}
