package mood_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/mood-buddy/internal/cache"
	"github.com/oggyb/mood-buddy/internal/db"
	svcErr "github.com/oggyb/mood-buddy/internal/errors"
	"github.com/oggyb/mood-buddy/internal/logger"
	"github.com/oggyb/mood-buddy/internal/repository"
	"github.com/oggyb/mood-buddy/internal/service/chat"
	"github.com/oggyb/mood-buddy/internal/service/matching"
	"github.com/oggyb/mood-buddy/internal/service/mood"
	"github.com/oggyb/mood-buddy/internal/testutil"
)

type fixture struct {
	ctrl  *mood.Controller
	db    *gorm.DB
	repos *repository.Repositories
	redis *cache.RedisCache
	mr    *miniredis.Miniredis
	clock *time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()

	database := testutil.NewDB(t)
	redisCache, mr := testutil.NewRedis(t)
	repos := repository.New(database)
	policy := chat.Policy{PlaceholderID: testutil.PlaceholderID, ReservedIDs: []uint64{testutil.SystemID}}
	log := logger.Discard()

	lc := chat.NewLifecycle(repos, policy, redisCache, log)
	matcher := matching.NewMatcher(lc, log)

	clock := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	f := &fixture{db: database, repos: repos, redis: redisCache, mr: mr, clock: &clock}
	f.ctrl = mood.NewController(repos, matcher, policy, log,
		mood.WithNotifier(redisCache),
		mood.WithPoolSizeCache(redisCache, time.Minute),
		mood.WithClock(func() time.Time { return *f.clock }),
	)
	return f
}

func (f *fixture) poolEntry(t *testing.T, userID uint64) *db.PoolEntry {
	t.Helper()
	e, err := f.repos.Pool.Get(context.Background(), userID)
	require.NoError(t, err)
	return e
}

// User 10 (distressed) logs first and finds nobody; user 11 (supportive)
// logs next and is matched with 10 through emergency matching.
func TestLogMood_DistressedThenSupportive(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateUser(t, f.db, 10)
	testutil.CreateUser(t, f.db, 11)

	res, err := f.ctrl.LogMood(ctx, 10, db.MoodDistressed)
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Empty(t, res.ChatID)

	res, err = f.ctrl.LogMood(ctx, 11, db.MoodSupportive)
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, uint64(10), res.BuddyID)
	assert.NotEmpty(t, res.ChatID)

	assert.Equal(t, 1, f.poolEntry(t, 10).LoadCount)
	assert.Equal(t, 1, f.poolEntry(t, 11).LoadCount)

	members, err := f.repos.Chats.Members(ctx, res.ChatID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 11}, members)
}

func TestLogMood_InstantMatchingOffNeverPooled(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateUser(t, f.db, 10, testutil.WithoutInstantMatching())
	testutil.CreateUser(t, f.db, 11)
	testutil.Pool(t, f.db, 11, db.MoodSupportive, 0)

	for _, m := range []db.Mood{db.MoodDistressed, db.MoodSupportive, db.MoodNeutral} {
		res, err := f.ctrl.LogMood(ctx, 10, m)
		require.NoError(t, err)
		assert.False(t, res.Matched)
		assert.Nil(t, f.poolEntry(t, 10), "user must stay out of the pool after %s", m)
	}

	// the ledger still records the mood
	u, err := f.repos.Moods.GetUser(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, db.MoodNeutral, u.CurrentMood)
}

func TestSetInstantMatching_OffRemovesFromPool(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateUser(t, f.db, 10)

	_, err := f.ctrl.LogMood(ctx, 10, db.MoodDistressed)
	require.NoError(t, err)
	require.NotNil(t, f.poolEntry(t, 10))

	require.NoError(t, f.ctrl.SetInstantMatching(ctx, 10, false))
	assert.Nil(t, f.poolEntry(t, 10))

	_, err = f.ctrl.LogMood(ctx, 10, db.MoodDistressed)
	require.NoError(t, err)
	assert.Nil(t, f.poolEntry(t, 10))

	require.NoError(t, f.ctrl.SetInstantMatching(ctx, 10, true))
	_, err = f.ctrl.LogMood(ctx, 10, db.MoodDistressed)
	require.NoError(t, err)
	assert.NotNil(t, f.poolEntry(t, 10))

	assert.ErrorIs(t, f.ctrl.SetInstantMatching(ctx, 404, false), svcErr.ErrNotFound)
}

func TestLogMood_NeutralLeavesPool(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateUser(t, f.db, 10)

	_, err := f.ctrl.LogMood(ctx, 10, db.MoodSupportive)
	require.NoError(t, err)
	require.NotNil(t, f.poolEntry(t, 10))

	_, err = f.ctrl.LogMood(ctx, 10, db.MoodUnset)
	require.NoError(t, err)
	assert.Nil(t, f.poolEntry(t, 10))
}

// Logging the same mood twice changes nothing the second time.
func TestLogMood_SameMoodIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateUser(t, f.db, 10)
	testutil.CreateUser(t, f.db, 11)
	testutil.Pool(t, f.db, 11, db.MoodSupportive, 7)

	_, err := f.ctrl.LogMood(ctx, 10, db.MoodSupportive)
	require.NoError(t, err)
	first := f.poolEntry(t, 10)

	_, err = f.ctrl.LogMood(ctx, 10, db.MoodSupportive)
	require.NoError(t, err)
	second := f.poolEntry(t, 10)

	assert.Equal(t, first.LoadCount, second.LoadCount)
	assert.Equal(t, first.Mood, second.Mood)

	var count int64
	f.db.Model(&db.PoolEntry{}).Where("user_id = ?", 10).Count(&count)
	assert.Equal(t, int64(1), count)

	var history int64
	f.db.Model(&db.MoodHistory{}).Where("user_id = ?", 10).Count(&history)
	assert.Equal(t, int64(1), history)
}

// Re-logging the same mood while still pooled does not match again, even
// when a fresh candidate of the opposite category is waiting.
func TestLogMood_SameMoodDoesNotRematch(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateUser(t, f.db, 10)
	testutil.CreateUser(t, f.db, 11)
	testutil.Pool(t, f.db, 11, db.MoodDistressed, 0)

	res, err := f.ctrl.LogMood(ctx, 10, db.MoodSupportive)
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, uint64(11), res.BuddyID)

	res, err = f.ctrl.LogMood(ctx, 10, db.MoodSupportive)
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Empty(t, res.ChatID)

	assert.Equal(t, 1, f.poolEntry(t, 10).LoadCount)
	assert.Equal(t, 1, f.poolEntry(t, 11).LoadCount)

	var chats int64
	require.NoError(t, f.db.Model(&db.Chat{}).Count(&chats).Error)
	assert.Equal(t, int64(1), chats)
}

// Switching category re-enters the pool with zero load.
func TestLogMood_CategorySwitchResetsLoad(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateUser(t, f.db, 10)
	testutil.CreateUser(t, f.db, 11)

	_, err := f.ctrl.LogMood(ctx, 10, db.MoodDistressed)
	require.NoError(t, err)
	res, err := f.ctrl.LogMood(ctx, 11, db.MoodSupportive)
	require.NoError(t, err)
	require.True(t, res.Matched)
	require.Equal(t, 1, f.poolEntry(t, 10).LoadCount)

	// 10 now feels better; nobody distressed is waiting
	res, err = f.ctrl.LogMood(ctx, 10, db.MoodSupportive)
	require.NoError(t, err)
	assert.False(t, res.Matched)

	e := f.poolEntry(t, 10)
	assert.Equal(t, db.MoodSupportive, e.Mood)
	assert.Equal(t, 0, e.LoadCount)

	// the ledger kept one row for the day, holding the last mood
	hist, err := f.ctrl.History(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, db.MoodSupportive, hist[0].Mood)
}

func TestLogMood_SupportiveStreakFromLedger(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateUser(t, f.db, 10)

	for day := 0; day < 3; day++ {
		_, err := f.ctrl.LogMood(ctx, 10, db.MoodSupportive)
		require.NoError(t, err)
		*f.clock = f.clock.AddDate(0, 0, 1)
	}
	u, err := f.repos.Moods.GetUser(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, u.SupportiveStreak)

	// a gap day breaks the streak
	*f.clock = f.clock.AddDate(0, 0, 1)
	_, err = f.ctrl.LogMood(ctx, 10, db.MoodSupportive)
	require.NoError(t, err)
	u, err = f.repos.Moods.GetUser(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, u.SupportiveStreak)

	hist, err := f.ctrl.History(ctx, 10, 7)
	require.NoError(t, err)
	require.Len(t, hist, 4)
	assert.True(t, hist[0].Date < hist[3].Date)
}

func TestLogMood_Errors(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateUser(t, f.db, 10)

	_, err := f.ctrl.LogMood(ctx, 10, db.Mood("ecstatic"))
	assert.ErrorIs(t, err, svcErr.ErrInvalidMood)

	_, err = f.ctrl.LogMood(ctx, 404, db.MoodDistressed)
	assert.ErrorIs(t, err, svcErr.ErrNotFound)

	_, err = f.ctrl.LogMood(ctx, testutil.PlaceholderID, db.MoodSupportive)
	assert.ErrorIs(t, err, svcErr.ErrPermissionDenied)
}

func TestLogMood_PublishesMatchEvents(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateUser(t, f.db, 10)
	testutil.CreateUser(t, f.db, 11)

	sub := f.redis.Client.Subscribe(ctx, cache.ChannelForUser(10))
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(ctx) // subscription confirmation
	require.NoError(t, err)

	_, err = f.ctrl.LogMood(ctx, 10, db.MoodDistressed)
	require.NoError(t, err)
	res, err := f.ctrl.LogMood(ctx, 11, db.MoodSupportive)
	require.NoError(t, err)
	require.True(t, res.Matched)

	select {
	case msg := <-sub.Channel():
		var ev cache.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		assert.Equal(t, cache.EventMatchFound, ev.Type)
		assert.Equal(t, res.ChatID, ev.ChatID)
		assert.Equal(t, uint64(11), ev.BuddyID)
	case <-time.After(2 * time.Second):
		t.Fatal("no match event received")
	}
}

func TestPoolStats_CacheFirst(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateUser(t, f.db, 10)

	stats, err := f.ctrl.PoolStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats[db.MoodDistressed])
	assert.True(t, f.mr.Exists(f.redis.KeyForPoolSize(string(db.MoodDistressed))))

	// a pool change drops the cached value
	_, err = f.ctrl.LogMood(ctx, 10, db.MoodDistressed)
	require.NoError(t, err)
	assert.False(t, f.mr.Exists(f.redis.KeyForPoolSize(string(db.MoodDistressed))))

	stats, err = f.ctrl.PoolStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[db.MoodDistressed])
	assert.Equal(t, int64(0), stats[db.MoodSupportive])

	// served from cache
	require.NoError(t, f.mr.Set(f.redis.KeyForPoolSize(string(db.MoodSupportive)), "42"))
	stats, err = f.ctrl.PoolStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), stats[db.MoodSupportive])
}

func TestUpdatePreferences_Validation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateUser(t, f.db, 10)

	lo, hi := 40, 20
	err := f.ctrl.UpdatePreferences(ctx, &db.MoodPreference{UserID: 10, PreferredAgeMin: &lo, PreferredAgeMax: &hi})
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)

	err = f.ctrl.UpdatePreferences(ctx, &db.MoodPreference{UserID: 404})
	assert.ErrorIs(t, err, svcErr.ErrNotFound)

	streak := 2
	require.NoError(t, f.ctrl.UpdatePreferences(ctx, &db.MoodPreference{UserID: 10, MinSupportiveStreak: &streak}))
	p, err := f.repos.Preferences.Get(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, p.MinSupportiveStreak)
	assert.Equal(t, 2, *p.MinSupportiveStreak)
}

// Concurrent supportive logs all land on the single distressed user and
// every match is counted exactly once.
func TestLogMood_ConcurrentMatchesKeepLoadsConsistent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateUser(t, f.db, 10)
	_, err := f.ctrl.LogMood(ctx, 10, db.MoodDistressed)
	require.NoError(t, err)

	helpers := []uint64{20, 21, 22, 23, 24}
	for _, id := range helpers {
		testutil.CreateUser(t, f.db, id)
	}

	var wg sync.WaitGroup
	for _, id := range helpers {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			res, err := f.ctrl.LogMood(ctx, id, db.MoodSupportive)
			assert.NoError(t, err)
			assert.True(t, res.Matched)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, len(helpers), f.poolEntry(t, 10).LoadCount)
	for _, id := range helpers {
		assert.Equal(t, 1, f.poolEntry(t, id).LoadCount)
	}

	var chats int64
	f.db.Model(&db.Chat{}).Count(&chats)
	assert.Equal(t, int64(len(helpers)), chats)
}

// Concurrent mood flips of one user always leave the pool entry in the
// category of the mood that was logged last.
func TestLogMood_ConcurrentFlipsKeepPoolInSync(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateUser(t, f.db, 10)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		m := db.MoodDistressed
		if i%2 == 1 {
			m = db.MoodSupportive
		}
		wg.Add(1)
		go func(m db.Mood) {
			defer wg.Done()
			_, err := f.ctrl.LogMood(ctx, 10, m)
			assert.NoError(t, err)
		}(m)
	}
	wg.Wait()

	user, err := f.repos.Moods.GetUser(ctx, 10)
	require.NoError(t, err)
	e := f.poolEntry(t, 10)
	require.NotNil(t, e)
	assert.Equal(t, user.CurrentMood, e.Mood)

	var entries int64
	require.NoError(t, f.db.Model(&db.PoolEntry{}).Count(&entries).Error)
	assert.Equal(t, int64(1), entries)
}
