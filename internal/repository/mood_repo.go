package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/mood-buddy/internal/db"
	svcErr "github.com/oggyb/mood-buddy/internal/errors"
)

// maxStreakLookback bounds how far back SupportiveStreak scans the ledger.
const maxStreakLookback = 366

// MoodRepository is the mood ledger: users' current mood and daily history.
type MoodRepository struct {
	db *gorm.DB
}

// NewMoodRepository creates a new repository bound to the given DB connection.
func NewMoodRepository(database *gorm.DB) *MoodRepository {
	return &MoodRepository{db: database}
}

// GetUser loads a user, returning ErrNotFound when it does not exist.
func (r *MoodRepository) GetUser(ctx context.Context, userID uint64) (*db.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound("user", userID)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertMoodHistory records the mood for the given calendar day.
//
// Behavior:
//   - If (user_id, date) exists → the mood is overwritten.
//   - Otherwise a new row is appended.
func (r *MoodRepository) UpsertMoodHistory(ctx context.Context, userID uint64, date string, mood db.Mood) error {
	entry := db.MoodHistory{UserID: userID, Date: date, Mood: mood}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"mood", "updated_at"}),
		}).
		Create(&entry).Error
}

// SetCurrentMood stores the user's mood of the day and derived streak.
func (r *MoodRepository) SetCurrentMood(ctx context.Context, userID uint64, mood db.Mood, streak int) error {
	return r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"current_mood":      mood,
			"supportive_streak": streak,
		}).Error
}

// SetInstantMatching toggles whether the user takes part in buddy matching.
func (r *MoodRepository) SetInstantMatching(ctx context.Context, userID uint64, enabled bool) error {
	res := r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", userID).
		Update("instant_matching", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return svcErr.NotFound("user", userID)
	}
	return nil
}

// SupportiveStreak counts consecutive supportive days ending at today.
// A day with no entry or another mood ends the streak.
func (r *MoodRepository) SupportiveStreak(ctx context.Context, userID uint64, today time.Time) (int, error) {
	var entries []db.MoodHistory
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND date <= ?", userID, db.DayOf(today)).
		Order("date DESC").
		Limit(maxStreakLookback).
		Find(&entries).Error
	if err != nil {
		return 0, err
	}

	streak := 0
	expected := today
	for _, e := range entries {
		if e.Date != db.DayOf(expected) || e.Mood != db.MoodSupportive {
			break
		}
		streak++
		expected = expected.AddDate(0, 0, -1)
	}
	return streak, nil
}

// History returns the user's ledger between from and to (inclusive),
// ordered by date ascending.
func (r *MoodRepository) History(ctx context.Context, userID uint64, from, to string) ([]db.MoodHistory, error) {
	var entries []db.MoodHistory
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND date >= ? AND date <= ?", userID, from, to).
		Order("date ASC").
		Find(&entries).Error
	return entries, err
}

// DeleteUser removes the user row and its ledger.
func (r *MoodRepository) DeleteUser(ctx context.Context, userID uint64) error {
	if err := r.db.WithContext(ctx).Delete(&db.MoodHistory{}, "user_id = ?", userID).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Delete(&db.User{}, "id = ?", userID).Error
}
