package matching

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/oggyb/mood-buddy/internal/db"
	"github.com/oggyb/mood-buddy/internal/repository"
)

// SupportiveQuery describes a preference-constrained search for a
// supportive buddy. Nil fields impose nothing.
type SupportiveQuery struct {
	PronounPref *string
	MinStreak   *int
	DOBTarget   *time.Time
	DOBOldest   *time.Time
	DOBYoungest *time.Time
	Exclude     []uint64
}

// QueryFromPreferences turns a distressed user's preferences into a query.
//
// Behavior:
//   - Ages are whole years on the current UTC calendar day, so the time of
//     day the query runs never moves a bound.
//   - PreferredAgeMax bounds the oldest date of birth, PreferredAgeMin the youngest.
//   - The target date of birth is the middle of the window, or whichever
//     bound was given.
func QueryFromPreferences(prefs *db.MoodPreference, now time.Time) SupportiveQuery {
	var q SupportiveQuery
	if prefs == nil {
		return q
	}

	if prefs.PreferredPronouns != nil && strings.TrimSpace(*prefs.PreferredPronouns) != "" {
		p := strings.TrimSpace(*prefs.PreferredPronouns)
		q.PronounPref = &p
	}
	if prefs.MinSupportiveStreak != nil && *prefs.MinSupportiveStreak > 0 {
		q.MinStreak = prefs.MinSupportiveStreak
	}

	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	minAge, maxAge := prefs.PreferredAgeMin, prefs.PreferredAgeMax
	if maxAge != nil {
		// someone aged maxAge was born after today-(maxAge+1) years
		oldest := today.AddDate(-(*maxAge + 1), 0, 1)
		q.DOBOldest = &oldest
	}
	if minAge != nil {
		// last whole second of the day; sub-second values get rounded up by DATETIME columns
		youngest := today.AddDate(-*minAge, 0, 1).Add(-time.Second)
		q.DOBYoungest = &youngest
	}

	switch {
	case minAge != nil && maxAge != nil:
		months := (*minAge + *maxAge) * 6 // midpoint age in months
		target := today.AddDate(0, -months, 0)
		q.DOBTarget = &target
	case minAge != nil:
		target := today.AddDate(-*minAge, 0, 0)
		q.DOBTarget = &target
	case maxAge != nil:
		target := today.AddDate(-*maxAge, 0, 0)
		q.DOBTarget = &target
	}
	return q
}

// FindBestSupportive applies the hard filters in the pool query and returns
// the top-ranked candidate, or nil when nobody qualifies.
func FindBestSupportive(ctx context.Context, pool *repository.PoolRepository, q SupportiveQuery) (*repository.Candidate, error) {
	candidates, err := pool.Candidates(ctx, db.MoodSupportive, repository.CandidateFilter{
		Exclude:    q.Exclude,
		MinStreak:  q.MinStreak,
		BornAfter:  q.DOBOldest,
		BornBefore: q.DOBYoungest,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	Rank(candidates, q)
	return &candidates[0], nil
}

// Rank orders candidates best first:
//  1. pronoun tier (exact match before non-match; all equal when unset)
//  2. load count ascending
//  3. date of birth closest to the target
//  4. user id ascending
func Rank(candidates []repository.Candidate, q SupportiveQuery) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if ta, tb := pronounTier(a, q.PronounPref), pronounTier(b, q.PronounPref); ta != tb {
			return ta < tb
		}
		if a.LoadCount != b.LoadCount {
			return a.LoadCount < b.LoadCount
		}
		if q.DOBTarget != nil {
			distA, distB := dobDistance(a.DateOfBirth, *q.DOBTarget), dobDistance(b.DateOfBirth, *q.DOBTarget)
			if distA != distB {
				return distA < distB
			}
		}
		return a.UserID < b.UserID
	})
}

func pronounTier(c repository.Candidate, pref *string) int {
	if pref == nil {
		return 0
	}
	if c.Pronouns == *pref {
		return 0
	}
	return 1
}

func dobDistance(dob, target time.Time) time.Duration {
	d := dob.Sub(target)
	if d < 0 {
		return -d
	}
	return d
}
