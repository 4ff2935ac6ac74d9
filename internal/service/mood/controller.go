package mood

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oggyb/mood-buddy/internal/cache"
	"github.com/oggyb/mood-buddy/internal/db"
	svcErr "github.com/oggyb/mood-buddy/internal/errors"
	"github.com/oggyb/mood-buddy/internal/repository"
	"github.com/oggyb/mood-buddy/internal/service/chat"
	"github.com/oggyb/mood-buddy/internal/service/matching"
)

// PoolSizeCache caches pool sizes per category.
type PoolSizeCache interface {
	GetPoolSize(ctx context.Context, mood string) (int64, bool, error)
	SetPoolSize(ctx context.Context, mood string, n int64, ttl time.Duration) error
	InvalidatePoolSizes(ctx context.Context, moods ...string) error
}

// Result is what LogMood reports back to the caller.
type Result struct {
	Matched bool
	ChatID  string
	BuddyID uint64
}

// Controller applies mood changes to the ledger and the buddy pool and
// triggers matching.
type Controller struct {
	repos    *repository.Repositories
	matcher  *matching.Matcher
	policy   chat.Policy
	notifier chat.Notifier
	stats    PoolSizeCache
	statsTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes a Controller.
type Option func(*Controller)

// WithNotifier publishes match events through n.
func WithNotifier(n chat.Notifier) Option { return func(c *Controller) { c.notifier = n } }

// WithPoolSizeCache caches PoolStats results in s for ttl.
func WithPoolSizeCache(s PoolSizeCache, ttl time.Duration) Option {
	return func(c *Controller) { c.stats, c.statsTTL = s, ttl }
}

// WithClock overrides the clock used to pick the ledger's calendar day.
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// NewController wires a Controller.
func NewController(repos *repository.Repositories, matcher *matching.Matcher, policy chat.Policy, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		repos:   repos,
		matcher: matcher,
		policy:  policy,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LogMood records the user's mood of the day and updates the buddy pool.
//
// Behavior:
//  1. Today's ledger entry and the current mood are overwritten unconditionally.
//  2. Users with instant matching off, or a neutral/unset mood, leave the pool.
//  3. Otherwise the user joins the pool with load 0; a category switch
//     re-adds them with load 0.
//  4. An unchanged mood of a pooled user leaves the pool untouched and
//     does not match again.
//  5. Distressed users get preference-constrained matching, supportive
//     users emergency matching.
//
// Everything happens in one transaction while the user and the touched
// pool categories are locked, so no candidate is taken by two concurrent
// matches.
func (c *Controller) LogMood(ctx context.Context, userID uint64, mood db.Mood) (Result, error) {
	if !mood.Valid() {
		return Result{}, fmt.Errorf("%q: %w", mood, svcErr.ErrInvalidMood)
	}
	if c.policy.Reserved(userID) {
		return Result{}, fmt.Errorf("user %d cannot log moods: %w", userID, svcErr.ErrPermissionDenied)
	}

	// the user lock keeps current_mood stable until the pool locks are held
	unlockUser := c.matcher.LockUser(userID)
	defer unlockUser()

	before, err := c.repos.Moods.GetUser(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	unlock := c.matcher.LockFor(mood, before.CurrentMood)
	defer unlock()

	today := c.now()
	var (
		match       matching.Result
		poolChanged bool
	)
	err = c.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		user, err := tx.Moods.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if err := tx.Moods.UpsertMoodHistory(ctx, userID, db.DayOf(today), mood); err != nil {
			return err
		}
		streak, err := tx.Moods.SupportiveStreak(ctx, userID, today)
		if err != nil {
			return err
		}
		if err := tx.Moods.SetCurrentMood(ctx, userID, mood, streak); err != nil {
			return err
		}
		user.CurrentMood, user.SupportiveStreak = mood, streak

		entry, err := tx.Pool.Get(ctx, userID)
		if err != nil {
			return err
		}

		if !user.InstantMatching || !mood.Matchable() {
			if entry != nil {
				poolChanged = true
				return tx.Pool.Remove(ctx, userID)
			}
			return nil
		}

		switch {
		case entry == nil:
			poolChanged = true
			if err := tx.Pool.Add(ctx, userID, mood); err != nil {
				return err
			}
		case entry.Mood != mood:
			// switching category starts over with zero load
			poolChanged = true
			if err := tx.Pool.Remove(ctx, userID); err != nil {
				return err
			}
			if err := tx.Pool.Add(ctx, userID, mood); err != nil {
				return err
			}
		default:
			// already pooled under this mood: matching ran when they joined
			return nil
		}

		if mood == db.MoodDistressed {
			prefs, err := tx.Preferences.Get(ctx, userID)
			if err != nil {
				return err
			}
			match, err = c.matcher.MatchDistressed(ctx, tx, user, prefs)
			return err
		}
		match, err = c.matcher.MatchSupportive(ctx, tx, user)
		return err
	})
	if err != nil {
		c.logger.Error("log mood failed", "user_id", userID, "mood", mood, "err", err)
		return Result{}, err
	}

	c.logger.Info("mood logged", "user_id", userID, "mood", mood, "matched", match.Matched)
	if poolChanged {
		c.invalidateStats(ctx)
	}
	if match.Matched {
		c.publish(ctx, cache.Event{Type: cache.EventMatchFound, ChatID: match.ChatID, BuddyID: match.BuddyID}, userID)
		c.publish(ctx, cache.Event{Type: cache.EventMatchFound, ChatID: match.ChatID, BuddyID: userID}, match.BuddyID)
	}
	return Result{Matched: match.Matched, ChatID: match.ChatID, BuddyID: match.BuddyID}, nil
}

// SetInstantMatching turns buddy matching on or off for the user. Turning it
// off takes the user out of the pool right away; turning it on takes effect
// with the next mood log.
func (c *Controller) SetInstantMatching(ctx context.Context, userID uint64, enabled bool) error {
	if c.policy.Reserved(userID) {
		return fmt.Errorf("user %d: %w", userID, svcErr.ErrPermissionDenied)
	}
	unlockUser := c.matcher.LockUser(userID)
	defer unlockUser()

	user, err := c.repos.Moods.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	unlock := c.matcher.LockFor(db.MoodUnset, user.CurrentMood)
	defer unlock()

	err = c.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Moods.SetInstantMatching(ctx, userID, enabled); err != nil {
			return err
		}
		if enabled {
			return nil
		}
		return tx.Pool.Remove(ctx, userID)
	})
	if err != nil {
		return err
	}

	c.logger.Info("instant matching updated", "user_id", userID, "enabled", enabled)
	if !enabled {
		c.invalidateStats(ctx)
	}
	return nil
}

// UpdatePreferences replaces the user's matching preferences.
func (c *Controller) UpdatePreferences(ctx context.Context, prefs *db.MoodPreference) error {
	if err := validatePreferences(prefs); err != nil {
		return err
	}
	if _, err := c.repos.Moods.GetUser(ctx, prefs.UserID); err != nil {
		return err
	}
	return c.repos.Preferences.Upsert(ctx, prefs)
}

// History returns the user's ledger for the last days calendar days.
func (c *Controller) History(ctx context.Context, userID uint64, days int) ([]db.MoodHistory, error) {
	if days <= 0 || days > 366 {
		return nil, fmt.Errorf("days must be within 1..366: %w", svcErr.ErrInvalidArgument)
	}
	if _, err := c.repos.Moods.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	today := c.now()
	return c.repos.Moods.History(ctx, userID, db.DayOf(today.AddDate(0, 0, -(days-1))), db.DayOf(today))
}

// PoolStats returns how many users wait in each matchable category.
// Cache-first: a miss falls back to the DB and refills the cache.
func (c *Controller) PoolStats(ctx context.Context) (map[db.Mood]int64, error) {
	out := make(map[db.Mood]int64, 2)
	for _, mood := range []db.Mood{db.MoodDistressed, db.MoodSupportive} {
		if c.stats != nil {
			if n, ok, err := c.stats.GetPoolSize(ctx, string(mood)); err == nil && ok {
				out[mood] = n
				continue
			}
		}

		n, err := c.repos.Pool.CountByMood(ctx, mood)
		if err != nil {
			return nil, err
		}
		out[mood] = n
		if c.stats != nil {
			_ = c.stats.SetPoolSize(ctx, string(mood), n, c.statsTTL)
		}
	}
	return out, nil
}

func (c *Controller) invalidateStats(ctx context.Context) {
	if c.stats == nil {
		return
	}
	if err := c.stats.InvalidatePoolSizes(ctx, string(db.MoodDistressed), string(db.MoodSupportive)); err != nil {
		c.logger.Warn("pool stats invalidation failed", "err", err)
	}
}

func (c *Controller) publish(ctx context.Context, ev cache.Event, recipients ...uint64) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Publish(ctx, ev, recipients...); err != nil {
		c.logger.Warn("event publish failed", "type", ev.Type, "err", err)
	}
}

func validatePreferences(p *db.MoodPreference) error {
	if p == nil {
		return fmt.Errorf("preferences missing: %w", svcErr.ErrInvalidArgument)
	}
	for _, v := range []*int{p.MinSupportiveStreak, p.PreferredAgeMin, p.PreferredAgeMax} {
		if v != nil && *v < 0 {
			return fmt.Errorf("preference values must not be negative: %w", svcErr.ErrInvalidArgument)
		}
	}
	if p.PreferredAgeMin != nil && p.PreferredAgeMax != nil && *p.PreferredAgeMin > *p.PreferredAgeMax {
		return fmt.Errorf("preferred age range is inverted: %w", svcErr.ErrInvalidArgument)
	}
	return nil
}
