package db

import (
	"time"
)

// Mood is a user's self-reported mood of the day.
type Mood string

const (
	MoodUnset      Mood = "unset"
	MoodNeutral    Mood = "neutral"
	MoodSupportive Mood = "supportive" // "green"
	MoodDistressed Mood = "distressed" // "red"
)

// Valid reports whether m is one of the known moods.
func (m Mood) Valid() bool {
	switch m {
	case MoodUnset, MoodNeutral, MoodSupportive, MoodDistressed:
		return true
	}
	return false
}

// Matchable reports whether users with this mood belong in the buddy pool.
func (m Mood) Matchable() bool {
	return m == MoodSupportive || m == MoodDistressed
}

// Opposite returns the pool category a user with mood m is matched against.
func (m Mood) Opposite() Mood {
	switch m {
	case MoodSupportive:
		return MoodDistressed
	case MoodDistressed:
		return MoodSupportive
	}
	return MoodUnset
}

// User table
type User struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	Username        string `gorm:"uniqueIndex;size:64;not null"`
	Email           string `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash    string `gorm:"size:255;not null"`
	Pronouns        string `gorm:"size:32"`
	DateOfBirth     time.Time
	CurrentMood     Mood `gorm:"size:16;not null;default:unset"`
	InstantMatching bool `gorm:"not null"`
	// SupportiveStreak is the number of consecutive days, ending with the
	// latest log, the user reported a supportive mood.
	SupportiveStreak int       `gorm:"not null;default:0"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

// MoodPreference holds the matching preferences of a distressed user.
// Nil fields mean "no preference".
type MoodPreference struct {
	UserID              uint64 `gorm:"primaryKey;autoIncrement:false"`
	PreferredPronouns   *string
	MinSupportiveStreak *int
	PreferredAgeMin     *int
	PreferredAgeMax     *int
	UpdatedAt           time.Time `gorm:"autoUpdateTime"`
}

// MoodHistory is one row per user per calendar day.
//
// Composite PK: (UserID, Date)
//   - A repeated log on the same day overwrites the row.
type MoodHistory struct {
	UserID    uint64    `gorm:"primaryKey"`
	Date      string    `gorm:"primaryKey;size:10"` // YYYY-MM-DD, timezone-naive
	Mood      Mood      `gorm:"size:16;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (MoodHistory) TableName() string { return "mood_history" }

// PoolEntry is a user currently eligible for buddy matching.
//
// Indexes:
//   - idx_pool_mood_load(mood, load_count) serves least-loaded lookups per category.
type PoolEntry struct {
	UserID    uint64    `gorm:"primaryKey;autoIncrement:false"`
	Mood      Mood      `gorm:"size:16;not null;index:idx_pool_mood_load,priority:1"`
	LoadCount int       `gorm:"not null;default:0;index:idx_pool_mood_load,priority:2"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (PoolEntry) TableName() string { return "buddy_pool" }

// Chat is a direct (two member) or group conversation.
// AdminID is only set for group chats.
type Chat struct {
	ID        string `gorm:"primaryKey;size:36"`
	IsGroup   bool   `gorm:"not null;default:false"`
	Name      string `gorm:"size:128"`
	AdminID   *uint64
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// ChatMember is the membership of one user in one chat.
type ChatMember struct {
	ChatID   string    `gorm:"primaryKey;size:36"`
	UserID   uint64    `gorm:"primaryKey;index"`
	JoinedAt time.Time `gorm:"autoCreateTime"`
}

// Message is a chat message. SenderID is rewritten to the placeholder
// account when its author is decoupled from the chat.
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	ChatID    string    `gorm:"size:36;not null;index:idx_message_chat_sender,priority:1"`
	SenderID  uint64    `gorm:"not null;index:idx_message_chat_sender,priority:2"`
	Body      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&User{}, &MoodPreference{}, &MoodHistory{}, &PoolEntry{},
		&Chat{}, &ChatMember{}, &Message{},
	}
}
