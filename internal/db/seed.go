package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DateLayout is the calendar-day format used by the mood ledger.
const DateLayout = "2006-01-02"

// DayOf returns the timezone-naive calendar day of t.
func DayOf(t time.Time) string {
	return t.Format(DateLayout)
}

// EnsureReservedAccounts creates the placeholder and system accounts when
// they are missing. Reserved accounts never match and never log moods.
func EnsureReservedAccounts(db *gorm.DB, placeholderID uint64, reservedIDs []uint64) error {
	ids := append([]uint64{placeholderID}, reservedIDs...)
	for _, id := range ids {
		name := fmt.Sprintf("system%d", id)
		if id == placeholderID {
			name = "deleted_user"
		}
		u := User{
			ID:              id,
			Username:        name,
			Email:           name + "@system.invalid",
			PasswordHash:    "!",
			CurrentMood:     MoodUnset,
			InstantMatching: false,
		}
		err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&u).Error
		if err != nil {
			return fmt.Errorf("failed to ensure reserved account %d: %w", id, err)
		}
	}
	return nil
}

// SeedTestData resets the database and populates it with demo users.
//
// Behavior:
//  1. Clears chats, messages, the pool, the mood ledger and users.
//  2. Creates the reserved placeholder/system accounts.
//  3. Creates 20 users with pronouns, dates of birth and a week of mood history.
//  4. Gives every third user a matching preference.
//
// Compatible with MySQL, Postgres and SQLite.
func SeedTestData(db *gorm.DB, placeholderID uint64, reservedIDs []uint64) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	for _, table := range []string{"messages", "chat_members", "chats", "buddy_pool", "mood_history", "mood_preferences", "users"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	log.Println("Cleared existing data")

	if err := EnsureReservedAccounts(db, placeholderID, reservedIDs); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	pronouns := []string{"she/her", "he/him", "they/them"}
	moods := []Mood{MoodSupportive, MoodDistressed, MoodNeutral}
	today := time.Now().UTC()

	for i := 1; i <= 20; i++ {
		user := User{
			ID:              uint64(100 + i),
			Username:        fmt.Sprintf("user%d", i),
			Email:           fmt.Sprintf("user%d@example.com", i),
			PasswordHash:    string(hash),
			Pronouns:        pronouns[i%len(pronouns)],
			DateOfBirth:     today.AddDate(-(18 + r.Intn(40)), -r.Intn(12), 0),
			CurrentMood:     MoodUnset,
			InstantMatching: true,
		}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}

		for d := 7; d >= 1; d-- {
			entry := MoodHistory{
				UserID: user.ID,
				Date:   DayOf(today.AddDate(0, 0, -d)),
				Mood:   moods[r.Intn(len(moods))],
			}
			if err := db.Create(&entry).Error; err != nil {
				return fmt.Errorf("failed to seed mood history: %w", err)
			}
		}

		if i%3 == 0 {
			pref := pronouns[r.Intn(len(pronouns))]
			streak := 1
			if err := db.Create(&MoodPreference{
				UserID:              user.ID,
				PreferredPronouns:   &pref,
				MinSupportiveStreak: &streak,
			}).Error; err != nil {
				return fmt.Errorf("failed to seed preference: %w", err)
			}
		}
	}
	log.Println("Seeded 20 users.")

	return nil
}
