package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/commshield/commstack/config"
	"github.com/commshield/commstack/interfaces"
	"github.com/commshield/commstack/internal/models"
)

// NormalizedStore persists canonical messages as JSON, namespaced by
// channel and calendar date:
// {prefix}/{channel}/{yyyy}/{mm}/{dd}/{sanitized-id}.json
type NormalizedStore struct {
	storage interfaces.StorageService
	bucket  string
	prefix  string
}

func NewNormalizedStore(storage interfaces.StorageService, cfg *config.StorageConfig) *NormalizedStore {
	return &NormalizedStore{
		storage: storage,
		bucket:  cfg.Bucket,
		prefix:  cfg.NormalizedPrefix,
	}
}

// Store writes one normalized message and returns its blob URI.
func (s *NormalizedStore) Store(ctx context.Context, message *models.NormalizedMessage) (string, error) {
	key := s.Key(message)

	body, err := json.MarshalIndent(message, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "normalized message marshal failed")
	}
	if err := s.storage.Upload(ctx, key, body, "application/json"); err != nil {
		return "", errors.Wrap(err, "normalized message upload failed")
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// Key derives the deterministic storage key for a normalized message.
func (s *NormalizedStore) Key(message *models.NormalizedMessage) string {
	datePath := message.Timestamp.Format("2006/01/02")
	return fmt.Sprintf("%s/%s/%s/%s.json", s.prefix, message.Channel, datePath, sanitizeMessageID(message.MessageID))
}

// sanitizeMessageID strips angle brackets and path separators out of
// RFC 5322 message ids before they become storage-key segments.
func sanitizeMessageID(id string) string {
	id = strings.ReplaceAll(id, "<", "")
	id = strings.ReplaceAll(id, ">", "")
	return strings.ReplaceAll(id, "/", "_")
}
