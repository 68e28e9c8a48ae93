package normalizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commshield/commstack/internal/enum"
	"github.com/commshield/commstack/internal/models"
)

func parsedEmailRecord() map[string]interface{} {
	return map[string]interface{}{
		"raw_message_id":   "raw-1",
		"channel":          "email",
		"message_id":       "abc-123@acme.com",
		"subject":          "Quarterly report",
		"from":             "Alice Smith <alice@acme.com>",
		"to":               []interface{}{"bob@example.com"},
		"cc":               []interface{}{"carol@example.com"},
		"bcc":              []interface{}{},
		"date":             "Mon, 02 Jan 2023 15:04:05 +0000",
		"body_text":        "Plain body here.",
		"body_html":        "<p>HTML body here.</p>",
		"attachment_refs":  []interface{}{"s3://bucket/raw/email/attachments/5/abc123def456_report.pdf"},
		"raw_eml_blob_uri": "s3://bucket/raw/email/5.eml",
	}
}

func TestNormalizeEmail(t *testing.T) {
	n := NewEmailNormalizer([]string{"acme.com"})

	message, err := n.Normalize(parsedEmailRecord())
	require.NoError(t, err)
	require.NoError(t, message.Validate())

	assert.Equal(t, "abc-123@acme.com", message.MessageID)
	assert.Equal(t, enum.ChannelEmail, message.Channel)
	assert.Equal(t, enum.DirectionOutbound, message.Direction)
	assert.Equal(t, time.Date(2023, 1, 2, 15, 4, 5, 0, time.UTC), message.Timestamp)
	assert.Equal(t, "Plain body here.", message.BodyText)
	assert.Equal(t, "Quarterly report", message.Metadata["subject"])
	assert.Equal(t, "s3://bucket/raw/email/5.eml", message.Metadata["raw_eml_blob_uri"])

	require.Len(t, message.Participants, 3)
	assert.Equal(t, models.Participant{ID: "alice@acme.com", Name: "Alice Smith", Role: models.RoleSender}, message.Participants[0])
	assert.Equal(t, models.Participant{ID: "bob@example.com", Name: "bob@example.com", Role: models.RoleTo}, message.Participants[1])
	assert.Equal(t, models.Participant{ID: "carol@example.com", Name: "carol@example.com", Role: models.RoleCc}, message.Participants[2])

	require.Len(t, message.Attachments, 1)
	attachment := message.Attachments[0]
	assert.Equal(t, "report.pdf", attachment.Name)
	assert.Equal(t, "application/pdf", attachment.ContentType)
	assert.Equal(t, "s3://bucket/raw/email/attachments/5/abc123def456_report.pdf", attachment.BlobURI)
}

func TestDetectDirection(t *testing.T) {
	n := NewEmailNormalizer([]string{"acme.com"})

	cases := []struct {
		name string
		from string
		to   []string
		want enum.Direction
	}{
		{"monitored to external", "user@acme.com", []string{"external@gmail.com"}, enum.DirectionOutbound},
		{"external to monitored", "external@gmail.com", []string{"user@acme.com"}, enum.DirectionInbound},
		{"monitored to monitored", "user@acme.com", []string{"other@acme.com"}, enum.DirectionInternal},
		{"neither side monitored", "a@gmail.com", []string{"b@yahoo.com"}, enum.DirectionInbound},
		{"display name form", "User <USER@ACME.COM>", []string{"b@yahoo.com"}, enum.DirectionOutbound},
		{"unparsable sender", "not-an-address", []string{"user@acme.com"}, enum.DirectionInbound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, n.detectDirection(tc.from, tc.to, nil, nil))
		})
	}
}

func TestDetectDirectionEmptyMonitoredSet(t *testing.T) {
	n := NewEmailNormalizer(nil)
	assert.Equal(t, enum.DirectionInbound, n.detectDirection("a@acme.com", []string{"b@acme.com"}, nil, nil))
}

func TestNormalizeFallsBackToRawMessageID(t *testing.T) {
	n := NewEmailNormalizer(nil)

	record := parsedEmailRecord()
	record["message_id"] = ""
	message, err := n.Normalize(record)
	require.NoError(t, err)
	assert.Equal(t, "raw-1", message.MessageID)
}

func TestNormalizeRejectsRecordWithoutAnyID(t *testing.T) {
	n := NewEmailNormalizer(nil)

	record := parsedEmailRecord()
	record["message_id"] = ""
	record["raw_message_id"] = ""
	_, err := n.Normalize(record)
	assert.Error(t, err)
}

func TestNormalizeUnparsableDateUsesCurrentTime(t *testing.T) {
	n := NewEmailNormalizer(nil)

	record := parsedEmailRecord()
	record["date"] = "not a date"
	before := time.Now().UTC()
	message, err := n.Normalize(record)
	require.NoError(t, err)
	assert.False(t, message.Timestamp.Before(before))
}

func TestNormalizeUnparsableParticipantKeepsRawAddress(t *testing.T) {
	n := NewEmailNormalizer(nil)

	record := parsedEmailRecord()
	record["from"] = "totally broken <<<"
	message, err := n.Normalize(record)
	require.NoError(t, err)
	require.NoError(t, message.Validate())
	assert.Equal(t, "totally broken <<<", message.Participants[0].ID)
}

func TestAttachmentDisplayName(t *testing.T) {
	assert.Equal(t, "report.pdf", attachmentDisplayName("s3://b/p/abc123def456_report.pdf"))
	assert.Equal(t, "plain.txt", attachmentDisplayName("plain.txt"))
	assert.Equal(t, "file", attachmentDisplayName("deadbeef1234_file"))
}

func TestAttachmentContentTypeFallback(t *testing.T) {
	assert.Equal(t, "application/pdf", attachmentContentType("report.pdf"))
	assert.Equal(t, "application/octet-stream", attachmentContentType("no-extension"))
}
