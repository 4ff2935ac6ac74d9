package matching

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/oggyb/mood-buddy/internal/db"
	"github.com/oggyb/mood-buddy/internal/repository"
	"github.com/oggyb/mood-buddy/internal/service/chat"
	"github.com/oggyb/mood-buddy/internal/utils/keyedmutex"
)

// Result is the outcome of a matching attempt. Finding nobody is a normal
// outcome, not an error.
type Result struct {
	Matched bool
	ChatID  string
	BuddyID uint64
}

// PoolLocks serializes candidate selection per pool category. Holding the
// lock of the category being selected from guarantees a candidate is never
// picked by two concurrent matches; the two categories lock independently.
type PoolLocks struct {
	distressed sync.Mutex
	supportive sync.Mutex
}

// Lock acquires the locks of the given pool categories, always distressed
// before supportive. Non-matchable moods and duplicates are ignored.
func (p *PoolLocks) Lock(categories ...db.Mood) (unlock func()) {
	var held []*sync.Mutex
	if slices.Contains(categories, db.MoodDistressed) {
		held = append(held, &p.distressed)
	}
	if slices.Contains(categories, db.MoodSupportive) {
		held = append(held, &p.supportive)
	}
	for _, mu := range held {
		mu.Lock()
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// Matcher pairs distressed users with supportive buddies.
type Matcher struct {
	lifecycle *chat.Lifecycle
	locks     *PoolLocks
	users     *keyedmutex.Map[uint64]
	logger    *slog.Logger
	now       func() time.Time
}

// NewMatcher creates a Matcher that opens chats through lifecycle.
func NewMatcher(lifecycle *chat.Lifecycle, logger *slog.Logger) *Matcher {
	return &Matcher{
		lifecycle: lifecycle,
		locks:     &PoolLocks{},
		users:     keyedmutex.New[uint64](),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// LockUser serializes mood and pool changes of one user. It must be taken
// before reading the user's current mood for LockFor.
func (m *Matcher) LockUser(userID uint64) (unlock func()) {
	return m.users.Lock(userID)
}

// LockFor locks what a mood change touches: the category a user with
// newMood selects candidates from, and the category the user is leaving.
// Callers hold it across their whole transaction and must take it before
// opening that transaction.
func (m *Matcher) LockFor(newMood, oldMood db.Mood) (unlock func()) {
	var categories []db.Mood
	if newMood.Matchable() {
		categories = append(categories, newMood.Opposite())
	}
	if oldMood.Matchable() {
		categories = append(categories, oldMood)
	}
	return m.locks.Lock(categories...)
}

// MatchDistressed looks for the best supportive buddy for a distressed user,
// honoring their preferences. There is no fallback: when no supportive user
// passes the filters the result is unmatched.
func (m *Matcher) MatchDistressed(ctx context.Context, tx *repository.Repositories, user *db.User, prefs *db.MoodPreference) (Result, error) {
	q := QueryFromPreferences(prefs, m.now())
	q.Exclude = m.excluded(user.ID)

	best, err := FindBestSupportive(ctx, tx.Pool, q)
	if err != nil {
		return Result{}, err
	}
	if best == nil {
		m.logger.Debug("no supportive buddy available", "user_id", user.ID)
		return Result{}, nil
	}
	return m.pair(ctx, tx, user.ID, best.UserID)
}

// MatchSupportive is emergency matching: a supportive user takes the
// least-loaded distressed user, preferences disregarded.
func (m *Matcher) MatchSupportive(ctx context.Context, tx *repository.Repositories, user *db.User) (Result, error) {
	entry, err := tx.Pool.FindLeastLoaded(ctx, db.MoodDistressed, m.excluded(user.ID))
	if err != nil {
		return Result{}, err
	}
	if entry == nil {
		m.logger.Debug("no distressed user waiting", "user_id", user.ID)
		return Result{}, nil
	}
	return m.pair(ctx, tx, user.ID, entry.UserID)
}

// pair opens a direct chat and bumps both participants' load.
func (m *Matcher) pair(ctx context.Context, tx *repository.Repositories, initiator, buddy uint64) (Result, error) {
	chatID, err := m.lifecycle.CreateChatTx(ctx, tx, []uint64{initiator, buddy})
	if err != nil {
		return Result{}, err
	}
	for _, id := range []uint64{initiator, buddy} {
		if err := tx.Pool.IncrementLoad(ctx, id); err != nil {
			return Result{}, err
		}
	}

	m.logger.Info("buddies matched", "initiator", initiator, "buddy", buddy, "chat_id", chatID)
	return Result{Matched: true, ChatID: chatID, BuddyID: buddy}, nil
}

func (m *Matcher) excluded(self uint64) []uint64 {
	policy := m.lifecycle.Policy()
	out := []uint64{self, policy.PlaceholderID}
	return append(out, policy.ReservedIDs...)
}
