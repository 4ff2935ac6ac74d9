package account_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/mood-buddy/internal/db"
	svcErr "github.com/oggyb/mood-buddy/internal/errors"
	"github.com/oggyb/mood-buddy/internal/logger"
	"github.com/oggyb/mood-buddy/internal/repository"
	"github.com/oggyb/mood-buddy/internal/service/account"
	"github.com/oggyb/mood-buddy/internal/service/chat"
	"github.com/oggyb/mood-buddy/internal/service/matching"
	"github.com/oggyb/mood-buddy/internal/testutil"
)

type fixture struct {
	svc   *account.Service
	lc    *chat.Lifecycle
	repos *repository.Repositories
	db    *gorm.DB
}

func setup(t *testing.T) *fixture {
	t.Helper()

	database := testutil.NewDB(t)
	redisCache, _ := testutil.NewRedis(t)
	repos := repository.New(database)
	policy := chat.Policy{PlaceholderID: testutil.PlaceholderID, ReservedIDs: []uint64{testutil.SystemID}}
	log := logger.Discard()

	lc := chat.NewLifecycle(repos, policy, redisCache, log)
	m := matching.NewMatcher(lc, log)
	return &fixture{
		svc:   account.NewService(repos, lc, m, redisCache, log),
		lc:    lc,
		repos: repos,
		db:    database,
	}
}

func TestDeleteAccount_DirectChatKeepsPlaceholder(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateUser(t, f.db, 10)
	testutil.CreateUser(t, f.db, 11)
	testutil.Pool(t, f.db, 10, db.MoodDistressed, 1)

	chatID, err := f.lc.CreateChat(ctx, []uint64{10, 11})
	require.NoError(t, err)
	_, err = f.lc.SendMessage(ctx, chatID, 10, "hello")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteAccount(ctx, 10))

	members, err := f.repos.Chats.Members(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{testutil.PlaceholderID, 11}, members)

	msgs, err := f.repos.Chats.Messages(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, testutil.PlaceholderID, msgs[0].SenderID)

	_, err = f.repos.Moods.GetUser(ctx, 10)
	assert.ErrorIs(t, err, svcErr.ErrNotFound)
	entry, err := f.repos.Pool.Get(ctx, 10)
	require.NoError(t, err)
	assert.Nil(t, entry)

	// the partner cannot write to a deleted account
	_, err = f.lc.SendMessage(ctx, chatID, 11, "are you there?")
	assert.ErrorIs(t, err, svcErr.ErrInvalidTarget)

	// once the partner leaves too, the chat is gone
	_, err = f.lc.Leave(ctx, chatID, 11)
	require.NoError(t, err)
	_, err = f.repos.Chats.GetChat(ctx, chatID)
	assert.ErrorIs(t, err, svcErr.ErrNotFound)
}

func TestDeleteAccount_GroupAdminHandsOver(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	for _, id := range []uint64{10, 11, 12} {
		testutil.CreateUser(t, f.db, id)
	}
	chatID, err := f.lc.CreateGroupChat(ctx, 10, "circle", []uint64{12, 11})
	require.NoError(t, err)
	require.NoError(t, f.repos.Preferences.Upsert(ctx, &db.MoodPreference{UserID: 10}))

	require.NoError(t, f.svc.DeleteAccount(ctx, 10))

	c, err := f.repos.Chats.GetChat(ctx, chatID)
	require.NoError(t, err)
	require.NotNil(t, c.AdminID)
	assert.Equal(t, uint64(11), *c.AdminID)

	members, err := f.repos.Chats.Members(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{11, 12}, members)

	prefs, err := f.repos.Preferences.Get(ctx, 10)
	require.NoError(t, err)
	assert.Nil(t, prefs)
}

func TestDeleteAccount_Guards(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	assert.ErrorIs(t, f.svc.DeleteAccount(ctx, testutil.PlaceholderID), svcErr.ErrPermissionDenied)
	assert.ErrorIs(t, f.svc.DeleteAccount(ctx, testutil.SystemID), svcErr.ErrPermissionDenied)
	assert.ErrorIs(t, f.svc.DeleteAccount(ctx, 404), svcErr.ErrNotFound)

	_, err := f.repos.Moods.GetUser(ctx, testutil.PlaceholderID)
	assert.NoError(t, err)
}

func TestDeleteAccount_NoChats(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateUser(t, f.db, 10)
	require.NoError(t, f.repos.Moods.UpsertMoodHistory(ctx, 10, "2026-01-01", db.MoodNeutral))

	require.NoError(t, f.svc.DeleteAccount(ctx, 10))

	var n int64
	f.db.Model(&db.MoodHistory{}).Where("user_id = ?", 10).Count(&n)
	assert.Zero(t, n)
}
