package email_connector

import (
	"bufio"
	"bytes"
	"mime"
	"net/mail"
	"strings"
)

// Envelope is the lightweight header-only view of an email, extracted
// without walking the MIME body. Parsing cost is bounded by header
// size, which keeps Stage-1 fast even for multi-megabyte messages.
type Envelope struct {
	MessageID string   `json:"message_id"`
	Subject   string   `json:"subject"`
	From      string   `json:"from"`
	To        []string `json:"to"`
	Cc        []string `json:"cc"`
	Bcc       []string `json:"bcc"`
	Date      string   `json:"date"`
}

var wordDecoder = &mime.WordDecoder{}

// ExtractEnvelope reads only the header block of raw RFC 822 bytes.
// Unparsable input yields a zero envelope rather than an error: the
// raw bytes are already safe in the object store and Stage-2 owns the
// strict parse.
func ExtractEnvelope(rawBytes []byte) Envelope {
	msg, err := mail.ReadMessage(bufio.NewReader(bytes.NewReader(rawBytes)))
	if err != nil {
		return Envelope{}
	}

	header := msg.Header
	return Envelope{
		MessageID: strings.Trim(header.Get("Message-ID"), "<>"),
		Subject:   decodeWord(header.Get("Subject")),
		From:      header.Get("From"),
		To:        parseAddressList(header.Get("To")),
		Cc:        parseAddressList(header.Get("Cc")),
		Bcc:       parseAddressList(header.Get("Bcc")),
		Date:      header.Get("Date"),
	}
}

// ToMap renders the envelope for the RawMessage payload.
func (e Envelope) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"message_id": e.MessageID,
		"subject":    e.Subject,
		"from":       e.From,
		"to":         e.To,
		"cc":         e.Cc,
		"bcc":        e.Bcc,
		"date":       e.Date,
	}
}

func decodeWord(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// parseAddressList extracts bare addresses from an RFC 5322 address
// list, falling back to the raw string when it cannot be parsed.
func parseAddressList(headerValue string) []string {
	if headerValue == "" {
		return nil
	}
	addresses, err := mail.ParseAddressList(headerValue)
	if err != nil {
		return []string{headerValue}
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		result = append(result, addr.Address)
	}
	return result
}
