package repository

import (
	"context"

	"gorm.io/gorm"

	svcErr "github.com/oggyb/mood-buddy/internal/errors"
)

// Repositories bundles every repository bound to the same connection or
// transaction, so a multi-step mutation can use them all atomically.
type Repositories struct {
	db *gorm.DB

	Moods       *MoodRepository
	Preferences *PreferenceRepository
	Pool        *PoolRepository
	Chats       *ChatRepository
}

// New binds all repositories to the given DB handle.
func New(database *gorm.DB) *Repositories {
	return &Repositories{
		db:          database,
		Moods:       NewMoodRepository(database),
		Preferences: NewPreferenceRepository(database),
		Pool:        NewPoolRepository(database),
		Chats:       NewChatRepository(database),
	}
}

// Transaction runs fn with repositories bound to a single transaction.
//
// Behavior:
//   - fn returning nil commits; any error rolls back everything fn did.
//   - Persistence failures come back wrapped in ErrTransactionAborted,
//     domain errors (NotMember, PermissionDenied, ...) come back as-is.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
	return svcErr.Aborted(err)
}
