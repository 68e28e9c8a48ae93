package normalizer

import (
	"github.com/commshield/commstack/interfaces"
	"github.com/commshield/commstack/internal/enum"
)

// Registry is the closed set of channel normalizers, assembled once at
// startup. Records for channels without an entry are skipped, never
// guessed at.
type Registry struct {
	normalizers map[enum.Channel]interfaces.Normalizer
}

func NewRegistry(normalizers ...interfaces.Normalizer) *Registry {
	byChannel := make(map[enum.Channel]interfaces.Normalizer, len(normalizers))
	for _, n := range normalizers {
		byChannel[n.Channel()] = n
	}
	return &Registry{normalizers: byChannel}
}

func (r *Registry) Lookup(channel enum.Channel) (interfaces.Normalizer, bool) {
	n, ok := r.normalizers[channel]
	return n, ok
}

func (r *Registry) Channels() []enum.Channel {
	channels := make([]enum.Channel, 0, len(r.normalizers))
	for channel := range r.normalizers {
		channels = append(channels, channel)
	}
	return channels
}
