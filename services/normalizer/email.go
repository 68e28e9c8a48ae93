package normalizer

import (
	"mime"
	"net/mail"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/commshield/commstack/interfaces"
	"github.com/commshield/commstack/internal/enum"
	"github.com/commshield/commstack/internal/models"
)

// attachmentHashPrefix matches the content-hash prefix attachment keys
// carry, e.g. "abc123def456_report.pdf".
var attachmentHashPrefix = regexp.MustCompile(`^[a-f0-9]+_`)

// EmailNormalizer maps parsed email records onto the canonical schema.
// Direction is inferred from the monitored-domain set: both ends
// monitored means internal, only the sender means outbound, anything
// else means inbound (capture deployments watch their own tenant, so
// unknown traffic is treated as arriving).
type EmailNormalizer struct {
	monitoredDomains map[string]struct{}
}

func NewEmailNormalizer(monitoredDomains []string) *EmailNormalizer {
	domains := make(map[string]struct{}, len(monitoredDomains))
	for _, domain := range monitoredDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain != "" {
			domains[domain] = struct{}{}
		}
	}
	return &EmailNormalizer{monitoredDomains: domains}
}

var _ interfaces.Normalizer = (*EmailNormalizer)(nil)

func (n *EmailNormalizer) Channel() enum.Channel {
	return enum.ChannelEmail
}

func (n *EmailNormalizer) Normalize(parsed map[string]interface{}) (*models.NormalizedMessage, error) {
	messageID := stringField(parsed, "message_id")
	if messageID == "" {
		messageID = stringField(parsed, "raw_message_id")
	}
	if messageID == "" {
		return nil, errors.New("parsed record has no message id")
	}

	from := stringField(parsed, "from")
	to := stringListField(parsed, "to")
	cc := stringListField(parsed, "cc")
	bcc := stringListField(parsed, "bcc")

	participants := n.buildParticipants(from, to, cc, bcc)

	return &models.NormalizedMessage{
		MessageID:    messageID,
		Channel:      enum.ChannelEmail,
		Direction:    n.detectDirection(from, to, cc, bcc),
		Timestamp:    parseTimestamp(stringField(parsed, "date")),
		Participants: participants,
		BodyText:     stringField(parsed, "body_text"),
		Attachments:  n.buildAttachments(stringListField(parsed, "attachment_refs")),
		Metadata: map[string]interface{}{
			"subject":          stringField(parsed, "subject"),
			"body_html":        stringField(parsed, "body_html"),
			"raw_eml_blob_uri": stringField(parsed, "raw_eml_blob_uri"),
			"raw_message_id":   stringField(parsed, "raw_message_id"),
		},
	}, nil
}

// detectDirection classifies by which side of the conversation falls
// inside the monitored-domain set. An empty set classifies everything
// as inbound.
func (n *EmailNormalizer) detectDirection(from string, to, cc, bcc []string) enum.Direction {
	senderMonitored := n.isMonitored(from)

	recipientMonitored := false
	for _, recipients := range [][]string{to, cc, bcc} {
		for _, recipient := range recipients {
			if n.isMonitored(recipient) {
				recipientMonitored = true
				break
			}
		}
	}

	switch {
	case senderMonitored && recipientMonitored:
		return enum.DirectionInternal
	case senderMonitored:
		return enum.DirectionOutbound
	default:
		return enum.DirectionInbound
	}
}

func (n *EmailNormalizer) isMonitored(rawAddress string) bool {
	address := bareAddress(rawAddress)
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return false
	}
	_, monitored := n.monitoredDomains[strings.ToLower(address[at+1:])]
	return monitored
}

// buildParticipants puts the sender first, then recipients in
// to/cc/bcc order.
func (n *EmailNormalizer) buildParticipants(from string, to, cc, bcc []string) []models.Participant {
	var participants []models.Participant
	if from != "" {
		participants = append(participants, toParticipant(from, models.RoleSender))
	}
	for _, address := range to {
		participants = append(participants, toParticipant(address, models.RoleTo))
	}
	for _, address := range cc {
		participants = append(participants, toParticipant(address, models.RoleCc))
	}
	for _, address := range bcc {
		participants = append(participants, toParticipant(address, models.RoleBcc))
	}
	return participants
}

func (n *EmailNormalizer) buildAttachments(refs []string) []models.Attachment {
	attachments := make([]models.Attachment, 0, len(refs))
	for _, ref := range refs {
		name := attachmentDisplayName(ref)
		attachments = append(attachments, models.Attachment{
			Name:        name,
			ContentType: attachmentContentType(name),
			BlobURI:     ref,
		})
	}
	return attachments
}

// toParticipant parses one RFC 5322 address. The raw string becomes the
// id when parsing fails, so a mangled header still yields a traceable
// participant.
func toParticipant(rawAddress, role string) models.Participant {
	addr, err := mail.ParseAddress(rawAddress)
	if err != nil {
		return models.Participant{ID: rawAddress, Role: role}
	}
	name := addr.Name
	if name == "" {
		name = addr.Address
	}
	return models.Participant{ID: addr.Address, Name: name, Role: role}
}

func bareAddress(rawAddress string) string {
	addr, err := mail.ParseAddress(rawAddress)
	if err != nil {
		return strings.TrimSpace(rawAddress)
	}
	return addr.Address
}

func parseTimestamp(date string) time.Time {
	if date != "" {
		if ts, err := mail.ParseDate(date); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}

// attachmentDisplayName recovers the original filename from a
// content-addressed storage reference by dropping the hash prefix from
// the last key segment.
func attachmentDisplayName(ref string) string {
	name := path.Base(ref)
	return attachmentHashPrefix.ReplaceAllString(name, "")
}

func attachmentContentType(filename string) string {
	if contentType := mime.TypeByExtension(path.Ext(filename)); contentType != "" {
		return contentType
	}
	return "application/octet-stream"
}

func stringField(parsed map[string]interface{}, key string) string {
	value, _ := parsed[key].(string)
	return value
}

func stringListField(parsed map[string]interface{}, key string) []string {
	switch values := parsed[key].(type) {
	case []string:
		return values
	case []interface{}:
		result := make([]string, 0, len(values))
		for _, v := range values {
			if s, ok := v.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}
