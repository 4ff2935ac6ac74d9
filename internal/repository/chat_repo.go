package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/mood-buddy/internal/db"
	svcErr "github.com/oggyb/mood-buddy/internal/errors"
)

// ChatRepository provides data access for chats, memberships and messages.
type ChatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a new repository bound to the given DB connection.
func NewChatRepository(database *gorm.DB) *ChatRepository {
	return &ChatRepository{db: database}
}

// CreateChatRecord inserts the chat and one membership row per member.
func (r *ChatRepository) CreateChatRecord(ctx context.Context, chat *db.Chat, members []uint64) error {
	if err := r.db.WithContext(ctx).Create(chat).Error; err != nil {
		return err
	}
	rows := make([]db.ChatMember, 0, len(members))
	for _, m := range members {
		rows = append(rows, db.ChatMember{ChatID: chat.ID, UserID: m})
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// GetChat loads a chat, returning ErrNotFound when it does not exist.
func (r *ChatRepository) GetChat(ctx context.Context, chatID string) (*db.Chat, error) {
	return r.getChat(r.db.WithContext(ctx), chatID)
}

// GetChatForUpdate is GetChat with a row lock held until the transaction ends.
// SQLite has no row locks; the lifecycle's per-chat mutex covers it there.
func (r *ChatRepository) GetChatForUpdate(ctx context.Context, chatID string) (*db.Chat, error) {
	return r.getChat(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), chatID)
}

func (r *ChatRepository) getChat(q *gorm.DB, chatID string) (*db.Chat, error) {
	var chat db.Chat
	err := q.Where("id = ?", chatID).Take(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound("chat", chatID)
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// IsMember reports whether the user currently belongs to the chat.
func (r *ChatRepository) IsMember(ctx context.Context, chatID string, userID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.ChatMember{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	return count > 0, err
}

// Members returns the chat's member ids in ascending order.
func (r *ChatRepository) Members(ctx context.Context, chatID string) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&db.ChatMember{}).
		Where("chat_id = ?", chatID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// AddMembership adds the user to the chat; already being a member is a no-op.
func (r *ChatRepository) AddMembership(ctx context.Context, chatID string, userID uint64) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.ChatMember{ChatID: chatID, UserID: userID}).Error
}

// RemoveMembership deletes the user's membership row.
func (r *ChatRepository) RemoveMembership(ctx context.Context, chatID string, userID uint64) error {
	return r.db.WithContext(ctx).
		Delete(&db.ChatMember{}, "chat_id = ? AND user_id = ?", chatID, userID).Error
}

// PseudonymizeMessages reassigns authorship of fromUser's messages in the
// chat to toUser. Content is untouched.
func (r *ChatRepository) PseudonymizeMessages(ctx context.Context, chatID string, fromUser, toUser uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("chat_id = ? AND sender_id = ?", chatID, fromUser).
		UpdateColumn("sender_id", toUser)
	return res.RowsAffected, res.Error
}

// SetChatAdmin sets (or clears, with nil) the chat's admin.
func (r *ChatRepository) SetChatAdmin(ctx context.Context, chatID string, userID *uint64) error {
	return r.db.WithContext(ctx).
		Model(&db.Chat{}).
		Where("id = ?", chatID).
		Update("admin_id", userID).Error
}

// Rename changes a chat's display name.
func (r *ChatRepository) Rename(ctx context.Context, chatID, name string) error {
	return r.db.WithContext(ctx).
		Model(&db.Chat{}).
		Where("id = ?", chatID).
		Update("name", name).Error
}

// DeleteChatCascade removes the chat with its memberships and messages.
func (r *ChatRepository) DeleteChatCascade(ctx context.Context, chatID string) error {
	q := r.db.WithContext(ctx)
	if err := q.Delete(&db.ChatMember{}, "chat_id = ?", chatID).Error; err != nil {
		return err
	}
	if err := q.Delete(&db.Message{}, "chat_id = ?", chatID).Error; err != nil {
		return err
	}
	return q.Delete(&db.Chat{}, "id = ?", chatID).Error
}

// AddMessage appends a message to the chat.
func (r *ChatRepository) AddMessage(ctx context.Context, msg *db.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// Messages returns the chat's messages in sending order.
func (r *ChatRepository) Messages(ctx context.Context, chatID string) ([]db.Message, error) {
	var msgs []db.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id ASC").
		Find(&msgs).Error
	return msgs, err
}

// MessagesAfter returns up to limit messages with an id above afterID, in
// sending order.
func (r *ChatRepository) MessagesAfter(ctx context.Context, chatID string, afterID uint64, limit int) ([]db.Message, error) {
	var msgs []db.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND id > ?", chatID, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// ChatIDsForUser lists the chats the user is currently a member of.
func (r *ChatRepository) ChatIDsForUser(ctx context.Context, userID uint64) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&db.ChatMember{}).
		Where("user_id = ?", userID).
		Order("chat_id ASC").
		Pluck("chat_id", &ids).Error
	return ids, err
}
