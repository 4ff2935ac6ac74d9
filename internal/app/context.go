package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/mood-buddy/internal/cache"
	"github.com/oggyb/mood-buddy/internal/config"
	"github.com/oggyb/mood-buddy/internal/repository"
	"github.com/oggyb/mood-buddy/internal/service/account"
	"github.com/oggyb/mood-buddy/internal/service/chat"
	"github.com/oggyb/mood-buddy/internal/service/matching"
	"github.com/oggyb/mood-buddy/internal/service/mood"
)

// AppContext holds shared dependencies (DB, Redis, Logger, etc.) and the
// domain services built on top of them.
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger

	Repos     *repository.Repositories
	Lifecycle *chat.Lifecycle
	Matcher   *matching.Matcher
	Moods     *mood.Controller
	Accounts  *account.Service
}

// New wires the domain services. rdb may be nil, in which case events are
// not published and pool statistics are not cached.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger) *AppContext {
	repos := repository.New(db)
	policy := chat.Policy{
		PlaceholderID: cfg.Matching.PlaceholderID,
		ReservedIDs:   cfg.Matching.ReservedIDs,
	}

	var (
		notifier chat.Notifier
		stats    account.StatsInvalidator
		moodOpts []mood.Option
	)
	if rdb != nil {
		notifier, stats = rdb, rdb
		moodOpts = append(moodOpts,
			mood.WithNotifier(rdb),
			mood.WithPoolSizeCache(rdb, cfg.Redis.StatsTTL),
		)
	}

	lifecycle := chat.NewLifecycle(repos, policy, notifier, logger.With("service", "chat"))
	matcher := matching.NewMatcher(lifecycle, logger.With("service", "matching"))

	return &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Repos:      repos,
		Lifecycle:  lifecycle,
		Matcher:    matcher,
		Moods:      mood.NewController(repos, matcher, policy, logger.With("service", "mood"), moodOpts...),
		Accounts:   account.NewService(repos, lifecycle, matcher, stats, logger.With("service", "account")),
	}
}
