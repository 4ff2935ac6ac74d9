package chat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/oggyb/mood-buddy/internal/cache"
	"github.com/oggyb/mood-buddy/internal/db"
	svcErr "github.com/oggyb/mood-buddy/internal/errors"
	"github.com/oggyb/mood-buddy/internal/repository"
	"github.com/oggyb/mood-buddy/internal/utils/keyedmutex"
	"github.com/oggyb/mood-buddy/internal/utils/pagination"
)

// Policy names the reserved accounts the lifecycle must treat specially.
type Policy struct {
	// PlaceholderID is the deleted-user account that inherits authorship
	// of decoupled users' messages.
	PlaceholderID uint64
	// ReservedIDs are never promoted to admin, in addition to the placeholder.
	ReservedIDs []uint64
}

// Reserved reports whether id is the placeholder or another reserved account.
func (p Policy) Reserved(id uint64) bool {
	return id == p.PlaceholderID || slices.Contains(p.ReservedIDs, id)
}

// Notifier delivers best-effort events to users.
type Notifier interface {
	Publish(ctx context.Context, ev cache.Event, recipients ...uint64) error
}

// DecoupleResult reports what a decouple did to the chat.
type DecoupleResult struct {
	UserDecoupled bool
	ChatDeleted   bool
	// NewAdminID is set when a group admin was promoted as a side effect.
	NewAdminID *uint64
	// Remaining are the members left after the user was removed.
	Remaining []uint64
}

// Lifecycle creates chats and removes members from them. Every mutation of
// an existing chat runs in one transaction while holding that chat's lock.
type Lifecycle struct {
	repos    *repository.Repositories
	policy   Policy
	notifier Notifier
	logger   *slog.Logger
	locks    *keyedmutex.Map[string]
}

// NewLifecycle wires a Lifecycle. notifier may be nil.
func NewLifecycle(repos *repository.Repositories, policy Policy, notifier Notifier, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{
		repos:    repos,
		policy:   policy,
		notifier: notifier,
		logger:   logger,
		locks:    keyedmutex.New[string](),
	}
}

// Policy returns the reserved-account policy in use.
func (l *Lifecycle) Policy() Policy { return l.policy }

// CreateChat creates a direct chat between members in its own transaction.
func (l *Lifecycle) CreateChat(ctx context.Context, members []uint64) (string, error) {
	var chatID string
	err := l.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		id, err := l.CreateChatTx(ctx, tx, members)
		chatID = id
		return err
	})
	return chatID, err
}

// CreateChatTx creates a direct chat using the caller's transaction.
// The member count is the caller's responsibility; the placeholder is refused.
func (l *Lifecycle) CreateChatTx(ctx context.Context, tx *repository.Repositories, members []uint64) (string, error) {
	if err := l.rejectPlaceholder(members); err != nil {
		return "", err
	}
	chat := &db.Chat{ID: uuid.NewString(), IsGroup: false}
	if err := tx.Chats.CreateChatRecord(ctx, chat, members); err != nil {
		return "", err
	}
	return chat.ID, nil
}

// CreateGroupChat creates a named group chat administered by creator.
//
// Behavior:
//   - members are deduplicated and the creator is always included.
//   - At least two distinct members are required.
//   - Every member must exist; the placeholder is refused.
func (l *Lifecycle) CreateGroupChat(ctx context.Context, creatorID uint64, name string, members []uint64) (string, error) {
	all := append([]uint64{creatorID}, members...)
	slices.Sort(all)
	all = slices.Compact(all)

	if len(all) < 2 {
		return "", fmt.Errorf("group chat needs at least 2 members: %w", svcErr.ErrInvalidArgument)
	}
	if err := l.rejectPlaceholder(all); err != nil {
		return "", err
	}

	chat := &db.Chat{
		ID:      uuid.NewString(),
		IsGroup: true,
		Name:    strings.TrimSpace(name),
		AdminID: &creatorID,
	}
	err := l.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		for _, id := range all {
			if _, err := tx.Moods.GetUser(ctx, id); err != nil {
				return err
			}
		}
		return tx.Chats.CreateChatRecord(ctx, chat, all)
	})
	if err != nil {
		return "", err
	}

	l.logger.Info("group chat created", "chat_id", chat.ID, "admin_id", creatorID, "members", len(all))
	return chat.ID, nil
}

// DecoupleUser removes userID from the chat, handing their messages to
// placeholderID, and deletes the chat once only the placeholder is left.
//
// Behavior:
//  1. Fails with ErrNotMember when the user is not in the chat.
//  2. Rewrites the user's messages to placeholderID.
//  3. Clears the admin if the user administered the group.
//  4. Removes the membership.
//  5. Promotes the lowest remaining non-reserved member of an admin-less group.
//  6. Deletes the chat when no one but the placeholder remains.
//
// All steps commit together or not at all.
func (l *Lifecycle) DecoupleUser(ctx context.Context, chatID string, userID, placeholderID uint64) (DecoupleResult, error) {
	var res DecoupleResult
	err := l.withChat(ctx, chatID, func(tx *repository.Repositories, chat *db.Chat) error {
		r, err := l.decouple(ctx, tx, chat, userID, placeholderID)
		res = r
		return err
	})
	if err != nil {
		return DecoupleResult{}, err
	}
	l.afterDecouple(ctx, chatID, userID, res)
	return res, nil
}

// ReplaceWithPlaceholder decouples a departing account from the chat. In a
// direct chat the placeholder joins first, so the partner keeps a visible
// counterpart and the chat survives until the partner leaves too.
func (l *Lifecycle) ReplaceWithPlaceholder(ctx context.Context, chatID string, userID uint64) (DecoupleResult, error) {
	placeholder := l.policy.PlaceholderID

	var res DecoupleResult
	err := l.withChat(ctx, chatID, func(tx *repository.Repositories, chat *db.Chat) error {
		if !chat.IsGroup {
			member, err := tx.Chats.IsMember(ctx, chat.ID, userID)
			if err != nil {
				return err
			}
			if !member {
				return fmt.Errorf("user %d, chat %s: %w", userID, chat.ID, svcErr.ErrNotMember)
			}
			if err := tx.Chats.AddMembership(ctx, chat.ID, placeholder); err != nil {
				return err
			}
		}
		r, err := l.decouple(ctx, tx, chat, userID, placeholder)
		res = r
		return err
	})
	if err != nil {
		return DecoupleResult{}, err
	}
	l.afterDecouple(ctx, chatID, userID, res)
	return res, nil
}

// RemoveMember removes target from the chat on behalf of actor.
// A member may always remove themself; only a group's admin may remove others.
func (l *Lifecycle) RemoveMember(ctx context.Context, chatID string, actorID, targetID uint64) (DecoupleResult, error) {
	var res DecoupleResult
	err := l.withChat(ctx, chatID, func(tx *repository.Repositories, chat *db.Chat) error {
		if actorID != targetID && !isAdmin(chat, actorID) {
			return fmt.Errorf("user %d removing %d from chat %s: %w", actorID, targetID, chat.ID, svcErr.ErrPermissionDenied)
		}
		r, err := l.decouple(ctx, tx, chat, targetID, l.policy.PlaceholderID)
		res = r
		return err
	})
	if err != nil {
		return DecoupleResult{}, err
	}
	l.afterDecouple(ctx, chatID, targetID, res)
	return res, nil
}

// Leave removes actor from the chat.
func (l *Lifecycle) Leave(ctx context.Context, chatID string, actorID uint64) (DecoupleResult, error) {
	return l.RemoveMember(ctx, chatID, actorID, actorID)
}

// Rename changes a group chat's name. Admin only.
func (l *Lifecycle) Rename(ctx context.Context, chatID string, actorID uint64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("chat name must not be empty: %w", svcErr.ErrInvalidArgument)
	}
	return l.withChat(ctx, chatID, func(tx *repository.Repositories, chat *db.Chat) error {
		if !isAdmin(chat, actorID) {
			return fmt.Errorf("user %d renaming chat %s: %w", actorID, chat.ID, svcErr.ErrPermissionDenied)
		}
		return tx.Chats.Rename(ctx, chat.ID, name)
	})
}

// TransferAdmin hands a group's adminship from actor to newAdminID. Admin only;
// the new admin must be a current, non-reserved member.
func (l *Lifecycle) TransferAdmin(ctx context.Context, chatID string, actorID, newAdminID uint64) error {
	err := l.withChat(ctx, chatID, func(tx *repository.Repositories, chat *db.Chat) error {
		if !isAdmin(chat, actorID) {
			return fmt.Errorf("user %d transferring admin of chat %s: %w", actorID, chat.ID, svcErr.ErrPermissionDenied)
		}
		if l.policy.Reserved(newAdminID) {
			return fmt.Errorf("user %d cannot administer chats: %w", newAdminID, svcErr.ErrInvalidTarget)
		}
		member, err := tx.Chats.IsMember(ctx, chat.ID, newAdminID)
		if err != nil {
			return err
		}
		if !member {
			return fmt.Errorf("user %d, chat %s: %w", newAdminID, chat.ID, svcErr.ErrNotMember)
		}
		return tx.Chats.SetChatAdmin(ctx, chat.ID, &newAdminID)
	})
	if err != nil {
		return err
	}

	l.logger.Info("chat admin transferred", "chat_id", chatID, "from", actorID, "to", newAdminID)
	if members, err := l.repos.Chats.Members(ctx, chatID); err == nil {
		l.publish(ctx, cache.Event{Type: cache.EventAdminChanged, ChatID: chatID, UserID: newAdminID}, members...)
	}
	return nil
}

// SendMessage appends a message from sender. Direct chats whose partner was
// replaced by the placeholder refuse new messages.
func (l *Lifecycle) SendMessage(ctx context.Context, chatID string, senderID uint64, body string) (*db.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("message body must not be empty: %w", svcErr.ErrInvalidArgument)
	}
	if l.policy.Reserved(senderID) {
		return nil, fmt.Errorf("user %d cannot send messages: %w", senderID, svcErr.ErrInvalidTarget)
	}

	chat, err := l.repos.Chats.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	members, err := l.repos.Chats.Members(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(members, senderID) {
		return nil, fmt.Errorf("user %d, chat %s: %w", senderID, chatID, svcErr.ErrNotMember)
	}
	if !chat.IsGroup && slices.Contains(members, l.policy.PlaceholderID) {
		return nil, fmt.Errorf("chat %s: %w", chatID, svcErr.ErrInvalidTarget)
	}

	msg := &db.Message{ChatID: chatID, SenderID: senderID, Body: body}
	if err := l.repos.Chats.AddMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages pages through the chat's messages for a member. token is
// the opaque cursor from the previous page; the returned token is empty
// once the last page was served.
func (l *Lifecycle) ListMessages(ctx context.Context, chatID string, readerID uint64, token string, size int) ([]db.Message, string, error) {
	cursor, err := pagination.Decode(token)
	if err != nil {
		return nil, "", fmt.Errorf("%v: %w", err, svcErr.ErrInvalidArgument)
	}
	if _, err := l.repos.Chats.GetChat(ctx, chatID); err != nil {
		return nil, "", err
	}
	member, err := l.repos.Chats.IsMember(ctx, chatID, readerID)
	if err != nil {
		return nil, "", err
	}
	if !member {
		return nil, "", fmt.Errorf("user %d, chat %s: %w", readerID, chatID, svcErr.ErrNotMember)
	}

	size = pagination.PageSize(size)
	// one extra row tells whether another page exists
	msgs, err := l.repos.Chats.MessagesAfter(ctx, chatID, cursor.LastID, size+1)
	if err != nil {
		return nil, "", err
	}
	if len(msgs) <= size {
		return msgs, "", nil
	}
	msgs = msgs[:size]
	next, err := pagination.Encode(pagination.Cursor{LastID: msgs[len(msgs)-1].ID})
	if err != nil {
		return nil, "", err
	}
	return msgs, next, nil
}

// Members returns the chat's current members.
func (l *Lifecycle) Members(ctx context.Context, chatID string) ([]uint64, error) {
	if _, err := l.repos.Chats.GetChat(ctx, chatID); err != nil {
		return nil, err
	}
	return l.repos.Chats.Members(ctx, chatID)
}

// ChatsForUser lists the ids of the chats userID belongs to.
func (l *Lifecycle) ChatsForUser(ctx context.Context, userID uint64) ([]string, error) {
	return l.repos.Chats.ChatIDsForUser(ctx, userID)
}

// withChat locks the chat, opens a transaction and loads the chat row for
// update before handing both to fn.
func (l *Lifecycle) withChat(ctx context.Context, chatID string, fn func(tx *repository.Repositories, chat *db.Chat) error) error {
	unlock := l.locks.Lock(chatID)
	defer unlock()

	return l.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		chat, err := tx.Chats.GetChatForUpdate(ctx, chatID)
		if err != nil {
			return err
		}
		return fn(tx, chat)
	})
}

func (l *Lifecycle) decouple(ctx context.Context, tx *repository.Repositories, chat *db.Chat, userID, placeholderID uint64) (DecoupleResult, error) {
	var res DecoupleResult

	member, err := tx.Chats.IsMember(ctx, chat.ID, userID)
	if err != nil {
		return res, err
	}
	if !member {
		return res, fmt.Errorf("user %d, chat %s: %w", userID, chat.ID, svcErr.ErrNotMember)
	}

	if _, err := tx.Chats.PseudonymizeMessages(ctx, chat.ID, userID, placeholderID); err != nil {
		return res, err
	}

	if chat.IsGroup && isAdmin(chat, userID) {
		if err := tx.Chats.SetChatAdmin(ctx, chat.ID, nil); err != nil {
			return res, err
		}
		chat.AdminID = nil
	}

	if err := tx.Chats.RemoveMembership(ctx, chat.ID, userID); err != nil {
		return res, err
	}
	res.UserDecoupled = true

	remaining, err := tx.Chats.Members(ctx, chat.ID)
	if err != nil {
		return res, err
	}
	res.Remaining = remaining

	if chat.IsGroup && chat.AdminID == nil {
		if next, ok := l.nextAdmin(remaining, placeholderID); ok {
			if err := tx.Chats.SetChatAdmin(ctx, chat.ID, &next); err != nil {
				return res, err
			}
			chat.AdminID = &next
			res.NewAdminID = &next
		}
	}

	if onlyPlaceholder(remaining, placeholderID) {
		if err := tx.Chats.DeleteChatCascade(ctx, chat.ID); err != nil {
			return res, err
		}
		res.ChatDeleted = true
		res.NewAdminID = nil
	}
	return res, nil
}

// nextAdmin picks the lowest remaining member that is not reserved.
// remaining is sorted ascending.
func (l *Lifecycle) nextAdmin(remaining []uint64, placeholderID uint64) (uint64, bool) {
	for _, id := range remaining {
		if id == placeholderID || l.policy.Reserved(id) {
			continue
		}
		return id, true
	}
	return 0, false
}

func (l *Lifecycle) afterDecouple(ctx context.Context, chatID string, userID uint64, res DecoupleResult) {
	l.logger.Info("user decoupled from chat",
		"chat_id", chatID,
		"user_id", userID,
		"chat_deleted", res.ChatDeleted,
		"remaining", len(res.Remaining),
	)

	if res.ChatDeleted {
		l.publish(ctx, cache.Event{Type: cache.EventChatDeleted, ChatID: chatID}, userID)
		return
	}
	recipients := append([]uint64{userID}, res.Remaining...)
	l.publish(ctx, cache.Event{Type: cache.EventMemberRemoved, ChatID: chatID, UserID: userID}, recipients...)
	if res.NewAdminID != nil {
		l.publish(ctx, cache.Event{Type: cache.EventAdminChanged, ChatID: chatID, UserID: *res.NewAdminID}, res.Remaining...)
	}
}

func (l *Lifecycle) publish(ctx context.Context, ev cache.Event, recipients ...uint64) {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.Publish(ctx, ev, recipients...); err != nil {
		l.logger.Warn("event publish failed", "type", ev.Type, "chat_id", ev.ChatID, "err", err)
	}
}

func (l *Lifecycle) rejectPlaceholder(members []uint64) error {
	if slices.Contains(members, l.policy.PlaceholderID) {
		return svcErr.ErrInvalidTarget
	}
	return nil
}

func isAdmin(chat *db.Chat, userID uint64) bool {
	return chat.IsGroup && chat.AdminID != nil && *chat.AdminID == userID
}

func onlyPlaceholder(remaining []uint64, placeholderID uint64) bool {
	for _, id := range remaining {
		if id != placeholderID {
			return false
		}
	}
	return true
}
