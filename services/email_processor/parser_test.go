package email_processor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multipartEmail() []byte {
	lines := []string{
		"Message-ID: <multi-1@acme.com>",
		"Subject: Quarterly report",
		"From: Alice <alice@acme.com>",
		"To: Bob <bob@example.com>, carol@example.com",
		"Date: Mon, 02 Jan 2023 15:04:05 +0000",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="BOUNDARY"`,
		"",
		"--BOUNDARY",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Plain body here.",
		"--BOUNDARY",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>HTML body here.</p>",
		"--BOUNDARY",
		`Content-Type: application/pdf; name="report.pdf"`,
		`Content-Disposition: attachment; filename="report.pdf"`,
		"Content-Transfer-Encoding: base64",
		"",
		"JVBERi0xLjQ=",
		"--BOUNDARY--",
		"",
	}
	return []byte(strings.Join(lines, "\r\n"))
}

func TestParseMultipartEmail(t *testing.T) {
	parser := NewMimeParser()

	parsed, err := parser.Parse(multipartEmail())
	require.NoError(t, err)

	assert.Equal(t, "multi-1@acme.com", parsed.MessageID)
	assert.Equal(t, "Quarterly report", parsed.Subject)
	assert.Contains(t, parsed.From, "alice@acme.com")
	assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, parsed.To)
	assert.Contains(t, parsed.BodyText, "Plain body here.")
	assert.Contains(t, parsed.BodyHTML, "<p>HTML body here.</p>")
	assert.Equal(t, "Quarterly report", parsed.Headers["Subject"])

	require.Len(t, parsed.Attachments, 1)
	attachment := parsed.Attachments[0]
	assert.Equal(t, "report.pdf", attachment.Filename)
	assert.Equal(t, "application/pdf", attachment.ContentType)
	assert.Equal(t, []byte("%PDF-1.4"), attachment.Payload)
}

func TestParsePlainEmailHasNoAttachments(t *testing.T) {
	parser := NewMimeParser()
	raw := []byte("From: a@acme.com\r\nTo: b@example.com\r\nSubject: hi\r\n\r\njust text\r\n")

	parsed, err := parser.Parse(raw)
	require.NoError(t, err)

	assert.Contains(t, parsed.BodyText, "just text")
	assert.Empty(t, parsed.BodyHTML)
	assert.Empty(t, parsed.Attachments)
}

func TestParseNamedInlinePartIsCollected(t *testing.T) {
	lines := []string{
		"From: a@acme.com",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="B"`,
		"",
		"--B",
		"Content-Type: text/plain",
		"",
		"body",
		"--B",
		`Content-Type: image/png; name="logo.png"`,
		`Content-Disposition: inline; filename="logo.png"`,
		"Content-Transfer-Encoding: base64",
		"",
		"aGVsbG8=",
		"--B--",
		"",
	}
	parser := NewMimeParser()

	parsed, err := parser.Parse([]byte(strings.Join(lines, "\r\n")))
	require.NoError(t, err)

	require.Len(t, parsed.Attachments, 1)
	assert.Equal(t, "logo.png", parsed.Attachments[0].Filename)
	assert.Equal(t, []byte("hello"), parsed.Attachments[0].Payload)
}
