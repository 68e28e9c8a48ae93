package models

import (
	"time"

	"github.com/commshield/commstack/internal/enum"
)

// RawMessage is the envelope every connector yields before delivery.
// It is immutable once yielded; the delivery engine owns routing it to
// the raw-messages topic (or the dead-letter topic on failure).
type RawMessage struct {
	RawMessageID   string                 `json:"raw_message_id"`
	Channel        enum.Channel           `json:"channel"`
	RawPayload     map[string]interface{} `json:"raw_payload"`
	RawFormat      string                 `json:"raw_format"`
	AttachmentRefs []string               `json:"attachment_refs"`
	Metadata       map[string]interface{} `json:"metadata"`
	IngestedAt     time.Time              `json:"ingested_at"`
}

// RawFormatEmailRef marks a claim-check reference payload: the raw bytes
// live in the object store and RawPayload carries only the envelope,
// blob URI and size.
const RawFormatEmailRef = "eml_ref"

// DeadLetterEnvelope wraps a RawMessage that exhausted its delivery
// retry budget.
type DeadLetterEnvelope struct {
	OriginalMessage RawMessage `json:"original_message"`
	ConnectorName   string     `json:"connector_name"`
	Error           string     `json:"error"`
	Attempts        int        `json:"attempts"`
	FailedAt        time.Time  `json:"failed_at"`
}

// BackfillRequest describes a historical ingestion window. IMAP date
// search is day-granular, so connectors may widen the window to whole
// days.
type BackfillRequest struct {
	Start   time.Time              `json:"start"`
	End     time.Time              `json:"end"`
	Channel enum.Channel           `json:"channel"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// HealthStatus is the body of the /health probe endpoint.
type HealthStatus struct {
	ConnectorName string                 `json:"connector_name"`
	Status        enum.ConnectorStatus   `json:"status"`
	UptimeSeconds float64                `json:"uptime_seconds"`
	Details       map[string]interface{} `json:"details"`
}
