// Package testutil wires throwaway SQLite and Redis instances for tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/mood-buddy/internal/cache"
	"github.com/oggyb/mood-buddy/internal/config"
	"github.com/oggyb/mood-buddy/internal/db"
)

// Reserved accounts used across tests.
const (
	PlaceholderID uint64 = 1
	SystemID      uint64 = 2
)

// NewDB spins up an isolated in-memory SQLite database with the schema
// migrated and the reserved accounts created.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		Logger:  logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	// one connection keeps the shared in-memory database alive and
	// serializes writers the way a real server's row locks would
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(database))
	require.NoError(t, db.EnsureReservedAccounts(database, PlaceholderID, []uint64{PlaceholderID, SystemID}))
	return database
}

// NewRedis starts a miniredis and returns a cache pointed at it.
func NewRedis(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.Password = ""
	cfg.Redis.DB = 0
	return cache.NewRedisCache(cfg), mr
}

// UserOpt customizes a user created by CreateUser.
type UserOpt func(*db.User)

// WithPronouns sets the user's pronouns.
func WithPronouns(p string) UserOpt { return func(u *db.User) { u.Pronouns = p } }

// WithAge sets the user's date of birth so they are the given age today.
func WithAge(years int) UserOpt {
	return func(u *db.User) { u.DateOfBirth = time.Now().UTC().AddDate(-years, 0, -1) }
}

// WithStreak sets the user's supportive streak.
func WithStreak(n int) UserOpt { return func(u *db.User) { u.SupportiveStreak = n } }

// WithoutInstantMatching opts the user out of buddy matching.
func WithoutInstantMatching() UserOpt { return func(u *db.User) { u.InstantMatching = false } }

// CreateUser inserts a user with the given id.
func CreateUser(t *testing.T, database *gorm.DB, id uint64, opts ...UserOpt) *db.User {
	t.Helper()

	u := &db.User{
		ID:              id,
		Username:        fmt.Sprintf("user%d", id),
		Email:           fmt.Sprintf("user%d@test.com", id),
		PasswordHash:    "x",
		DateOfBirth:     time.Now().UTC().AddDate(-30, 0, 0),
		CurrentMood:     db.MoodUnset,
		InstantMatching: true,
	}
	for _, opt := range opts {
		opt(u)
	}
	require.NoError(t, database.Create(u).Error)
	return u
}

// Pool places a user directly in the pool with the given load.
func Pool(t *testing.T, database *gorm.DB, userID uint64, mood db.Mood, load int) {
	t.Helper()
	require.NoError(t, database.Create(&db.PoolEntry{UserID: userID, Mood: mood, LoadCount: load}).Error)
	require.NoError(t, database.Model(&db.User{}).Where("id = ?", userID).Update("current_mood", mood).Error)
}
