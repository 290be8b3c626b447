package birthday

import (
	"math"
	"time"

	"github.com/cmertens/jubilee/internal/model"
)

// Age returns the person's age in whole years as of today: the year
// difference, minus one if today's month/day has not yet reached the birth
// month/day.
func Age(birth, today time.Time) int {
	years := today.Year() - birth.Year()
	if beforeInYear(today, birth) {
		years--
	}
	return years
}

// NextOccurrence returns the soonest date on or after today whose month/day
// matches the birth date. Feb 29 birthdays are observed on Mar 1 in non-leap
// years (time.Date normalization).
func NextOccurrence(birth, today time.Time) time.Time {
	next := time.Date(today.Year(), birth.Month(), birth.Day(), 0, 0, 0, 0, today.Location())
	if next.Before(startOfDay(today)) {
		next = time.Date(today.Year()+1, birth.Month(), birth.Day(), 0, 0, 0, 0, today.Location())
	}
	return next
}

// DaysUntil returns the number of whole days until the next occurrence of
// the birthday, rounding sub-day remainders up. Zero when today is the
// birthday, never 365.
func DaysUntil(birth, today time.Time) int {
	diff := NextOccurrence(birth, today).Sub(today)
	if diff <= 0 {
		return 0
	}
	return int(math.Ceil(diff.Hours() / 24))
}

// NextReminderAt returns the trigger instant for b's reminder: the birth
// month/day combined with the notification hour/minute, in now's year if
// that instant is still ahead, otherwise next year. Callers recompute this
// after every delivery, so leap years stay correct.
func NextReminderAt(b model.Birthday, now time.Time) time.Time {
	at := reminderInstant(b, now.Year(), now.Location())
	if !at.After(now) {
		at = reminderInstant(b, now.Year()+1, now.Location())
	}
	return at
}

func reminderInstant(b model.Birthday, year int, loc *time.Location) time.Time {
	return time.Date(year, b.Date.Month(), b.Date.Day(),
		b.NotificationTime.Hour(), b.NotificationTime.Minute(), 0, 0, loc)
}

// beforeInYear reports whether t's month/day falls strictly before ref's
// month/day, ignoring the year.
func beforeInYear(t, ref time.Time) bool {
	if t.Month() != ref.Month() {
		return t.Month() < ref.Month()
	}
	return t.Day() < ref.Day()
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
