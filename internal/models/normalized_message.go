package models

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/commshield/commstack/internal/enum"
)

// Participant is a party in a communication. ID falls back to the raw
// address string when the address cannot be parsed.
type Participant struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
	Role string `json:"role" validate:"required"`
}

const (
	RoleSender = "sender"
	RoleTo     = "to"
	RoleCc     = "cc"
	RoleBcc    = "bcc"
)

// Attachment is a stored file reference.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	BlobURI     string `json:"blob_uri"`
}

// NormalizedMessage is the canonical cross-channel schema published to
// the normalized topic and persisted to the object store. Timestamp is
// always UTC.
type NormalizedMessage struct {
	MessageID    string                 `json:"message_id" validate:"required"`
	Channel      enum.Channel           `json:"channel" validate:"required"`
	Direction    enum.Direction         `json:"direction" validate:"required"`
	Timestamp    time.Time              `json:"timestamp"`
	Participants []Participant          `json:"participants" validate:"min=1,dive"`
	BodyText     string                 `json:"body_text"`
	AudioRef     string                 `json:"audio_ref"`
	Attachments  []Attachment           `json:"attachments"`
	Metadata     map[string]interface{} `json:"metadata"`
}

var validate = validator.New()

// Validate enforces the canonical-schema invariants (non-empty
// participants, required identifiers) before the dual write.
func (m *NormalizedMessage) Validate() error {
	return validate.Struct(m)
}
