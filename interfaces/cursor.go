package interfaces

import "context"

// CursorRepository persists the last-seen mailbox cursor so a process
// restart resumes where the previous instance stopped.
type CursorRepository interface {
	GetCursor(ctx context.Context, mailbox string) (uint32, error)
	SaveCursor(ctx context.Context, mailbox string, cursor uint32) error
}

// IngestionForwarder is the best-effort HTTP ingestion-API collaborator.
type IngestionForwarder interface {
	Submit(ctx context.Context, payload []byte) error
}
