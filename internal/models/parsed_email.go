package models

import "github.com/commshield/commstack/internal/enum"

// ParsedEmailMessage is the Stage-2 output: a fully decoded MIME
// structure with attachment blobs already uploaded. AttachmentRefs
// point at content-addressed object-store keys; RawEmlBlobURI points
// back at the untouched source bytes.
type ParsedEmailMessage struct {
	RawMessageID   string            `json:"raw_message_id"`
	Channel        enum.Channel      `json:"channel"`
	MessageID      string            `json:"message_id"`
	Subject        string            `json:"subject"`
	From           string            `json:"from"`
	To             []string          `json:"to"`
	Cc             []string          `json:"cc"`
	Bcc            []string          `json:"bcc"`
	Date           string            `json:"date"`
	BodyText       string            `json:"body_text"`
	BodyHTML       string            `json:"body_html"`
	Headers        map[string]string `json:"headers"`
	AttachmentRefs []string          `json:"attachment_refs"`
	RawEmlBlobURI  string            `json:"raw_eml_blob_uri"`
}
