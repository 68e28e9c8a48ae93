package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commshield/commstack/internal/enum"
)

func validMessage() *NormalizedMessage {
	return &NormalizedMessage{
		MessageID: "abc@acme.com",
		Channel:   enum.ChannelEmail,
		Direction: enum.DirectionInbound,
		Timestamp: time.Now().UTC(),
		Participants: []Participant{
			{ID: "a@acme.com", Role: RoleSender},
		},
	}
}

func TestNormalizedMessageValidate(t *testing.T) {
	assert.NoError(t, validMessage().Validate())
}

func TestNormalizedMessageValidateRequiresParticipants(t *testing.T) {
	message := validMessage()
	message.Participants = nil
	assert.Error(t, message.Validate())
}

func TestNormalizedMessageValidateRequiresParticipantID(t *testing.T) {
	message := validMessage()
	message.Participants[0].ID = ""
	assert.Error(t, message.Validate())
}

func TestNormalizedMessageValidateRequiresMessageID(t *testing.T) {
	message := validMessage()
	message.MessageID = ""
	assert.Error(t, message.Validate())
}

func TestNormalizedMessageJSONShape(t *testing.T) {
	body, err := json.Marshal(validMessage())
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "abc@acme.com", decoded["message_id"])
	assert.Equal(t, "email", decoded["channel"])
	assert.Equal(t, "inbound", decoded["direction"])

	// every canonical field is present on the wire, empty or not
	for _, field := range []string{"body_text", "audio_ref", "attachments", "participants", "metadata"} {
		_, present := decoded[field]
		assert.True(t, present, "field %q missing from wire shape", field)
	}
	assert.Equal(t, "", decoded["audio_ref"])
}

func TestNormalizedMessageRoundTrip(t *testing.T) {
	original := validMessage()
	original.Participants = append(original.Participants,
		Participant{ID: "b@example.com", Name: "B", Role: RoleTo},
		Participant{ID: "c@example.com", Name: "C", Role: RoleCc},
	)

	body, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded NormalizedMessage
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, original.MessageID, decoded.MessageID)
	assert.Equal(t, original.Channel, decoded.Channel)
	assert.Equal(t, original.Participants, decoded.Participants)
}
