package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/mood-buddy/internal/db"
)

// PreferenceRepository stores the matching preferences of users.
type PreferenceRepository struct {
	db *gorm.DB
}

// NewPreferenceRepository creates a new repository bound to the given DB connection.
func NewPreferenceRepository(database *gorm.DB) *PreferenceRepository {
	return &PreferenceRepository{db: database}
}

// Get returns the user's preferences, or nil when none were set.
func (r *PreferenceRepository) Get(ctx context.Context, userID uint64) (*db.MoodPreference, error) {
	var p db.MoodPreference
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert replaces the user's preferences wholesale.
func (r *PreferenceRepository) Upsert(ctx context.Context, p *db.MoodPreference) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"preferred_pronouns", "min_supportive_streak",
				"preferred_age_min", "preferred_age_max", "updated_at",
			}),
		}).
		Create(p).Error
}

// Delete removes the user's preferences.
func (r *PreferenceRepository) Delete(ctx context.Context, userID uint64) error {
	return r.db.WithContext(ctx).Delete(&db.MoodPreference{}, "user_id = ?", userID).Error
}
