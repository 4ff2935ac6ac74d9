package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Event types published to users.
const (
	EventMatchFound    = "match_found"
	EventChatDeleted   = "chat_deleted"
	EventMemberRemoved = "member_removed"
	EventAdminChanged  = "admin_changed"
)

// Event is a best-effort notification delivered over Redis pub/sub.
type Event struct {
	Type    string `json:"type"`
	ChatID  string `json:"chat_id,omitempty"`
	UserID  uint64 `json:"user_id,omitempty"`
	BuddyID uint64 `json:"buddy_id,omitempty"`
	At      int64  `json:"at"`
}

// ChannelForUser is the pub/sub channel a user's client subscribes to.
func ChannelForUser(userID uint64) string {
	return fmt.Sprintf("events:user:%d", userID)
}

// Publish sends ev to every recipient's channel. Delivery is not guaranteed:
// nobody listening is not an error.
func (c *RedisCache) Publish(ctx context.Context, ev Event, recipients ...uint64) error {
	if ev.At == 0 {
		ev.At = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pipe := c.Client.Pipeline()
	for _, id := range recipients {
		pipe.Publish(ctx, ChannelForUser(id), payload)
	}
	_, err = pipe.Exec(ctx)
	return err
}
