// Package account removes user accounts without breaking the chats and
// conversation history they took part in.
package account

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oggyb/mood-buddy/internal/db"
	svcErr "github.com/oggyb/mood-buddy/internal/errors"
	"github.com/oggyb/mood-buddy/internal/repository"
	"github.com/oggyb/mood-buddy/internal/service/chat"
	"github.com/oggyb/mood-buddy/internal/service/matching"
)

// StatsInvalidator drops cached pool sizes.
type StatsInvalidator interface {
	InvalidatePoolSizes(ctx context.Context, moods ...string) error
}

// Service deletes accounts.
type Service struct {
	repos     *repository.Repositories
	lifecycle *chat.Lifecycle
	matcher   *matching.Matcher
	stats     StatsInvalidator
	logger    *slog.Logger
}

// NewService wires the account service. stats may be nil.
func NewService(repos *repository.Repositories, lifecycle *chat.Lifecycle, matcher *matching.Matcher, stats StatsInvalidator, logger *slog.Logger) *Service {
	return &Service{repos: repos, lifecycle: lifecycle, matcher: matcher, stats: stats, logger: logger}
}

// DeleteAccount removes the user for good.
//
// Behavior:
//  1. Reserved accounts cannot be deleted.
//  2. Every chat the user is in is handed over to the placeholder account,
//     one chat at a time, through the usual decoupling rules.
//  3. The pool entry, preferences, ledger and user row go in one transaction.
//
// A failure part-way leaves already decoupled chats decoupled; calling
// DeleteAccount again resumes with the chats that remain.
func (s *Service) DeleteAccount(ctx context.Context, userID uint64) error {
	policy := s.lifecycle.Policy()
	if policy.Reserved(userID) {
		return fmt.Errorf("user %d is a reserved account: %w", userID, svcErr.ErrPermissionDenied)
	}
	// no mood log can slip in between reading the mood and leaving the pool
	unlockUser := s.matcher.LockUser(userID)
	defer unlockUser()

	user, err := s.repos.Moods.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	chats, err := s.lifecycle.ChatsForUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, chatID := range chats {
		if _, err := s.lifecycle.ReplaceWithPlaceholder(ctx, chatID, userID); err != nil {
			s.logger.Error("decoupling deleted account failed", "user_id", userID, "chat_id", chatID, "err", err)
			return err
		}
	}

	unlock := s.matcher.LockFor(db.MoodUnset, user.CurrentMood)
	defer unlock()

	var pooled bool
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		entry, err := tx.Pool.Get(ctx, userID)
		if err != nil {
			return err
		}
		if entry != nil {
			pooled = true
			if err := tx.Pool.Remove(ctx, userID); err != nil {
				return err
			}
		}
		if err := tx.Preferences.Delete(ctx, userID); err != nil {
			return err
		}
		return tx.Moods.DeleteUser(ctx, userID)
	})
	if err != nil {
		return err
	}

	if pooled && s.stats != nil {
		if err := s.stats.InvalidatePoolSizes(ctx, string(db.MoodDistressed), string(db.MoodSupportive)); err != nil {
			s.logger.Warn("pool stats invalidation failed", "err", err)
		}
	}
	s.logger.Info("account deleted", "user_id", userID, "chats", len(chats))
	return nil
}
