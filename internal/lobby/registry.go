package lobby

import (
	"github.com/sirupsen/logrus"
)

// Registry maps protocol version strings to their lobbies. Lobbies are
// created lazily on the first client declaring a version and destroyed
// when their last client detaches.
type Registry struct {
	lobbies map[string]*Lobby
	sender  Sender
	logger  *logrus.Logger
}

func NewRegistry(sender Sender, logger *logrus.Logger) *Registry {
	return &Registry{
		lobbies: make(map[string]*Lobby),
		sender:  sender,
		logger:  logger,
	}
}

func (r *Registry) FindOrCreateLobby(version string) *Lobby {
	if l, ok := r.lobbies[version]; ok {
		return l
	}
	l := NewLobby(version, r.sender, r.logger)
	r.lobbies[version] = l
	r.logger.Infof("created lobby for version %s", version)
	return l
}

func (r *Registry) FindLobby(version string) (*Lobby, bool) {
	l, ok := r.lobbies[version]
	return l, ok
}

// RemoveLobby destroys the named lobby. A lobby with clients still
// attached is left alone.
func (r *Registry) RemoveLobby(version string) {
	l, ok := r.lobbies[version]
	if !ok || l.ClientCount() > 0 {
		return
	}
	delete(r.lobbies, version)
	r.logger.Infof("destroyed empty lobby for version %s", version)
}

func (r *Registry) Lobbies() []*Lobby {
	lobbies := make([]*Lobby, 0, len(r.lobbies))
	for _, l := range r.lobbies {
		lobbies = append(lobbies, l)
	}
	return lobbies
}

// TotalPlayerCount sums the players across every lobby.
func (r *Registry) TotalPlayerCount() int {
	count := 0
	for _, l := range r.lobbies {
		count += l.PlayerCount()
	}
	return count
}
