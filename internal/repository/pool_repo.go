package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/mood-buddy/internal/db"
	svcErr "github.com/oggyb/mood-buddy/internal/errors"
)

// PoolRepository provides data access for the buddy pool.
type PoolRepository struct {
	db *gorm.DB
}

// NewPoolRepository creates a new repository bound to the given DB connection.
func NewPoolRepository(database *gorm.DB) *PoolRepository {
	return &PoolRepository{db: database}
}

// Candidate is a pool entry joined with the matching metadata of its user.
type Candidate struct {
	UserID           uint64
	Mood             db.Mood
	LoadCount        int
	Pronouns         string
	DateOfBirth      time.Time
	SupportiveStreak int
}

// CandidateFilter holds the hard filters applied to a candidate query.
// Nil fields are not applied.
type CandidateFilter struct {
	Exclude    []uint64
	MinStreak  *int
	BornAfter  *time.Time // oldest acceptable date of birth
	BornBefore *time.Time // youngest acceptable date of birth
}

// Add inserts the user into the pool with a zero load count.
func (r *PoolRepository) Add(ctx context.Context, userID uint64, mood db.Mood) error {
	entry := db.PoolEntry{UserID: userID, Mood: mood, LoadCount: 0}
	return r.db.WithContext(ctx).Create(&entry).Error
}

// Remove deletes the user's pool entry. Removing an absent user is a no-op.
func (r *PoolRepository) Remove(ctx context.Context, userID uint64) error {
	return r.db.WithContext(ctx).Delete(&db.PoolEntry{}, "user_id = ?", userID).Error
}

// Get returns the user's pool entry, or nil when the user is not pooled.
func (r *PoolRepository) Get(ctx context.Context, userID uint64) (*db.PoolEntry, error) {
	var entry db.PoolEntry
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// IncrementLoad bumps the load count of a pooled user by one. A user who is
// not pooled yields ErrNotFound.
func (r *PoolRepository) IncrementLoad(ctx context.Context, userID uint64) error {
	res := r.db.WithContext(ctx).
		Model(&db.PoolEntry{}).
		Where("user_id = ?", userID).
		UpdateColumn("load_count", gorm.Expr("load_count + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return svcErr.NotFound("pool entry", userID)
	}
	return nil
}

// Candidates returns every pooled user of the given mood passing filter.
//
// Behavior:
//   - Joins users for pronouns, date of birth and supportive streak.
//   - Ordered by load_count ASC, user_id ASC; callers rank further.
func (r *PoolRepository) Candidates(ctx context.Context, mood db.Mood, filter CandidateFilter) ([]Candidate, error) {
	query := r.db.WithContext(ctx).
		Table("buddy_pool p").
		Select("p.user_id, p.mood, p.load_count, u.pronouns, u.date_of_birth, u.supportive_streak").
		Joins("JOIN users u ON u.id = p.user_id").
		Where("p.mood = ?", mood)

	if len(filter.Exclude) > 0 {
		query = query.Where("p.user_id NOT IN ?", filter.Exclude)
	}
	if filter.MinStreak != nil {
		query = query.Where("u.supportive_streak >= ?", *filter.MinStreak)
	}
	if filter.BornAfter != nil {
		query = query.Where("u.date_of_birth >= ?", *filter.BornAfter)
	}
	if filter.BornBefore != nil {
		query = query.Where("u.date_of_birth <= ?", *filter.BornBefore)
	}

	var candidates []Candidate
	if err := query.Order("p.load_count ASC, p.user_id ASC").Scan(&candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}

// FindLeastLoaded returns the least-loaded pooled user of the given mood,
// ties broken by user id, or nil when none is eligible.
func (r *PoolRepository) FindLeastLoaded(ctx context.Context, mood db.Mood, exclude []uint64) (*db.PoolEntry, error) {
	query := r.db.WithContext(ctx).Where("mood = ?", mood)
	if len(exclude) > 0 {
		query = query.Where("user_id NOT IN ?", exclude)
	}

	var entry db.PoolEntry
	err := query.Order("load_count ASC, user_id ASC").Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// CountByMood returns how many users are pooled under the given mood.
func (r *PoolRepository) CountByMood(ctx context.Context, mood db.Mood) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.PoolEntry{}).Where("mood = ?", mood).Count(&count).Error
	return count, err
}
