package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/commshield/commstack/config"
	"github.com/commshield/commstack/interfaces"
)

const rawEmailContentType = "message/rfc822"

var unsafeKeyChars = regexp.MustCompile(`[^\w.\-]`)

// EmailStore persists raw .eml payloads and individual attachment
// blobs. Raw bytes are keyed by mailbox cursor; attachments are
// content-addressed so identical payloads under different parents
// never collide.
type EmailStore struct {
	storage           interfaces.StorageService
	bucket            string
	rawPrefix         string
	attachmentsPrefix string
}

func NewEmailStore(storage interfaces.StorageService, cfg *config.StorageConfig) *EmailStore {
	return &EmailStore{
		storage:           storage,
		bucket:            cfg.Bucket,
		rawPrefix:         cfg.RawPrefix,
		attachmentsPrefix: cfg.AttachmentsPrefix,
	}
}

// UploadRawEmail stores raw RFC 822 bytes and returns the blob URI.
// This must complete before the reference record is emitted — the
// claim-check guarantee.
func (s *EmailStore) UploadRawEmail(ctx context.Context, uid uint32, rawBytes []byte) (string, error) {
	key := fmt.Sprintf("%s/%d.eml", s.rawPrefix, uid)
	if err := s.storage.Upload(ctx, key, rawBytes, rawEmailContentType); err != nil {
		return "", errors.Wrap(err, "raw email upload failed")
	}
	return s.blobURI(key), nil
}

// DownloadRawEmail fetches raw bytes by blob URI.
func (s *EmailStore) DownloadRawEmail(ctx context.Context, blobURI string) ([]byte, error) {
	_, key, err := ParseBlobURI(blobURI)
	if err != nil {
		return nil, err
	}
	return s.storage.Download(ctx, key)
}

// UploadAttachment stores one attachment blob under a content-hash key
// and returns the blob URI.
func (s *EmailStore) UploadAttachment(ctx context.Context, emailUID string, filename, contentType string, payload []byte) (string, error) {
	key := s.AttachmentKey(emailUID, filename, payload)
	if err := s.storage.Upload(ctx, key, payload, contentType); err != nil {
		return "", errors.Wrapf(err, "attachment upload failed: %s", filename)
	}
	return s.blobURI(key), nil
}

// AttachmentKey derives the deterministic content-addressed key:
// {attachments_prefix}/{uid}/{sha256[:12]}_{sanitized-filename}.
func (s *EmailStore) AttachmentKey(emailUID, filename string, payload []byte) string {
	sum := sha256.Sum256(payload)
	contentHash := hex.EncodeToString(sum[:])[:12]
	return fmt.Sprintf("%s/%s/%s_%s", s.attachmentsPrefix, emailUID, contentHash, SanitizeFilename(filename))
}

func (s *EmailStore) blobURI(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

// ParseBlobURI splits s3://bucket/key into bucket and key.
func ParseBlobURI(uri string) (bucket, key string, err error) {
	trimmed, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", errors.Errorf("invalid blob URI: %s", uri)
	}
	bucket, key, ok = strings.Cut(trimmed, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", errors.Errorf("invalid blob URI: %s", uri)
	}
	return bucket, key, nil
}

// SanitizeFilename replaces characters unsafe for storage keys.
func SanitizeFilename(name string) string {
	return unsafeKeyChars.ReplaceAllString(name, "_")
}
