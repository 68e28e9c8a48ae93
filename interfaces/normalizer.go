package interfaces

import (
	"github.com/commshield/commstack/internal/enum"
	"github.com/commshield/commstack/internal/models"
)

// Normalizer converts one channel's parsed record into the canonical
// schema. Implementations form a closed set registered at startup.
type Normalizer interface {
	Channel() enum.Channel
	Normalize(parsed map[string]interface{}) (*models.NormalizedMessage, error)
}
