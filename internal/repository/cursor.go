package repository

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/commshield/commstack/interfaces"
)

// MailboxCursor is the persisted last-seen UID for one mailbox.
type MailboxCursor struct {
	Mailbox   string    `gorm:"column:mailbox;primaryKey"`
	LastUID   uint32    `gorm:"column:last_uid"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (MailboxCursor) TableName() string {
	return "mailbox_cursors"
}

type mailboxCursorRepository struct {
	db *gorm.DB
}

// NewMailboxCursorRepository persists cursors in Postgres so a process
// restart resumes from the last committed position instead of
// re-polling from scratch.
func NewMailboxCursorRepository(db *gorm.DB) interfaces.CursorRepository {
	return &mailboxCursorRepository{db: db}
}

func (r *mailboxCursorRepository) GetCursor(ctx context.Context, mailbox string) (uint32, error) {
	var cursor MailboxCursor
	err := r.db.WithContext(ctx).First(&cursor, "mailbox = ?", mailbox).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to load mailbox cursor")
	}
	return cursor.LastUID, nil
}

func (r *mailboxCursorRepository) SaveCursor(ctx context.Context, mailbox string, cursor uint32) error {
	record := MailboxCursor{
		Mailbox:   mailbox,
		LastUID:   cursor,
		UpdatedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Save(&record).Error
}

// InMemoryCursorRepository keeps cursors in process memory only. Used
// when no database is configured; a restart re-derives the cursor from
// scratch.
type InMemoryCursorRepository struct {
	mu      sync.RWMutex
	cursors map[string]uint32
}

func NewInMemoryCursorRepository() *InMemoryCursorRepository {
	return &InMemoryCursorRepository{cursors: make(map[string]uint32)}
}

func (r *InMemoryCursorRepository) GetCursor(_ context.Context, mailbox string) (uint32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cursors[mailbox], nil
}

func (r *InMemoryCursorRepository) SaveCursor(_ context.Context, mailbox string, cursor uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursors[mailbox] = cursor
	return nil
}

// MigrateDB creates the cursor table.
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(&MailboxCursor{})
}
