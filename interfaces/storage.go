package interfaces

import "context"

// StorageService is the object-store contract. Keys are deterministic;
// the object store is the long-lived owner of raw and attachment bytes.
type StorageService interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
}
