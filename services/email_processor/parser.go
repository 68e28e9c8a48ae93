package email_processor

import (
	"bytes"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/pkg/errors"
)

// ParsedAttachment is a single attachment lifted out of the MIME tree.
type ParsedAttachment struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ParsedEmail is the full decode of one raw RFC 822 message.
type ParsedEmail struct {
	MessageID   string
	Subject     string
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Date        string
	BodyText    string
	BodyHTML    string
	Headers     map[string]string
	Attachments []ParsedAttachment
}

// MimeParser walks the entire MIME structure: best plain-text and HTML
// bodies, every attachment part, and the full header map. Stateless.
type MimeParser struct{}

func NewMimeParser() *MimeParser {
	return &MimeParser{}
}

func (p *MimeParser) Parse(rawBytes []byte) (*ParsedEmail, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(rawBytes))
	if err != nil {
		return nil, errors.Wrap(err, "mime parse failed")
	}

	headers := make(map[string]string)
	for _, key := range env.GetHeaderKeys() {
		headers[key] = env.GetHeader(key)
	}

	return &ParsedEmail{
		MessageID:   strings.Trim(env.GetHeader("Message-ID"), "<>"),
		Subject:     env.GetHeader("Subject"),
		From:        env.GetHeader("From"),
		To:          addressList(env, "To"),
		Cc:          addressList(env, "Cc"),
		Bcc:         addressList(env, "Bcc"),
		Date:        env.GetHeader("Date"),
		BodyText:    env.Text,
		BodyHTML:    env.HTML,
		Headers:     headers,
		Attachments: collectAttachments(env),
	}, nil
}

// collectAttachments gathers explicitly attachment-dispositioned parts
// plus any named non-multipart part (inline images, calendar invites
// and the like still carry evidence).
func collectAttachments(env *enmime.Envelope) []ParsedAttachment {
	var attachments []ParsedAttachment

	appendPart := func(part *enmime.Part) {
		filename := part.FileName
		if filename == "" {
			filename = "unnamed"
		}
		attachments = append(attachments, ParsedAttachment{
			Filename:    filename,
			ContentType: part.ContentType,
			Payload:     part.Content,
		})
	}

	for _, part := range env.Attachments {
		appendPart(part)
	}
	for _, part := range env.Inlines {
		if part.FileName != "" {
			appendPart(part)
		}
	}
	for _, part := range env.OtherParts {
		if part.FileName != "" {
			appendPart(part)
		}
	}
	return attachments
}

func addressList(env *enmime.Envelope, key string) []string {
	headerValue := env.GetHeader(key)
	if headerValue == "" {
		return nil
	}
	addresses, err := env.AddressList(key)
	if err != nil {
		return []string{headerValue}
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		result = append(result, addr.Address)
	}
	return result
}
