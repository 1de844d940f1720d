// Package quota enforces the daily cap on application emails per student.
//
// Counts live in the daily_notification_quotas table keyed by (student, day),
// where day is the calendar date in the tracker's location (server local time
// unless configured otherwise). A record is created lazily by the first
// committed send of the day.
//
// Concurrency policy: callers hold Lock(studentID) from CheckAndReserve until
// Commit (or until the send fails). The lock is held across the slow email
// dispatch, so sends for one student are serialized within a process and the
// check-then-increment window cannot overshoot. Several API processes sharing
// one database can still overshoot by at most one send per extra process.
package quota

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/justsurfingit/campus-job-board/internal/database"
	"github.com/justsurfingit/campus-job-board/internal/errors"
	"github.com/justsurfingit/campus-job-board/internal/models"
)

// DefaultDailyLimit is the number of application emails a student may send per day.
const DefaultDailyLimit = 10

const dayLayout = "2006-01-02"

// Tracker checks and counts daily notification sends.
type Tracker struct {
	db      *gorm.DB
	limit   int
	loc     *time.Location
	timeNow func() time.Time // Injectable for testing
	locks   *keyedMutex
}

// NewTracker creates a tracker with real time.
func NewTracker(db *gorm.DB, limit int, loc *time.Location) *Tracker {
	return NewTrackerWithClock(db, limit, loc, time.Now)
}

// NewTrackerWithClock creates a tracker with an injectable clock (for testing).
func NewTrackerWithClock(db *gorm.DB, limit int, loc *time.Location, timeNow func() time.Time) *Tracker {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	if loc == nil {
		loc = time.Local
	}
	return &Tracker{
		db:      db,
		limit:   limit,
		loc:     loc,
		timeNow: timeNow,
		locks:   newKeyedMutex(),
	}
}

// Reservation is the outcome of a quota check.
type Reservation struct {
	Allowed      bool
	CurrentCount int
	Limit        int
	Day          string
}

// Remaining is how many sends are left today.
func (r Reservation) Remaining() int {
	if rem := r.Limit - r.CurrentCount; rem > 0 {
		return rem
	}
	return 0
}

// Limit returns the configured daily limit.
func (t *Tracker) Limit() int { return t.limit }

// Today returns the current day key.
func (t *Tracker) Today() string {
	return t.DayKey(t.timeNow())
}

// DayKey converts an instant to the calendar day it falls on in the tracker's location.
func (t *Tracker) DayKey(at time.Time) string {
	return at.In(t.loc).Format(dayLayout)
}

// Lock serializes quota-consuming work for one student. The returned func releases it.
func (t *Tracker) Lock(studentID uint) func() {
	return t.locks.lock(studentID)
}

// CheckAndReserve reports whether another send is allowed for the student on day.
// It never modifies the counter. When the limit is reached the reservation is
// returned together with a *errors.QuotaExceededError.
func (t *Tracker) CheckAndReserve(ctx context.Context, studentID uint, day string) (Reservation, error) {
	count, err := t.count(ctx, t.db, studentID, day)
	if err != nil {
		return Reservation{}, err
	}

	res := Reservation{
		Allowed:      count < t.limit,
		CurrentCount: count,
		Limit:        t.limit,
		Day:          day,
	}
	if !res.Allowed {
		return res, &errors.QuotaExceededError{Used: count, Limit: t.limit}
	}
	return res, nil
}

// Commit records one successful send and returns the new count for the day.
// Pass the surrounding transaction as tx so the increment commits with the application.
func (t *Tracker) Commit(ctx context.Context, tx *gorm.DB, studentID uint, day string) (int, error) {
	if tx == nil {
		tx = t.db
	}

	row := models.DailyNotificationQuota{StudentID: studentID, Day: day, SentCount: 1}
	err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "student_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"sent_count": gorm.Expr("sent_count + 1"),
			"updated_at": t.timeNow(),
		}),
	}).Create(&row).Error
	if err != nil {
		err = errors.Wrap(err, "failed to increment daily quota")
		return 0, errors.WithDetailf(err, "Student ID: %d, day: %s", studentID, day)
	}

	return t.count(ctx, tx, studentID, day)
}

// Status returns today's usage without reserving anything.
func (t *Tracker) Status(ctx context.Context, studentID uint) (Reservation, error) {
	day := t.Today()
	count, err := t.count(ctx, t.db, studentID, day)
	if err != nil {
		return Reservation{}, err
	}
	return Reservation{
		Allowed:      count < t.limit,
		CurrentCount: count,
		Limit:        t.limit,
		Day:          day,
	}, nil
}

func (t *Tracker) count(ctx context.Context, db *gorm.DB, studentID uint, day string) (int, error) {
	var row models.DailyNotificationQuota
	err := db.WithContext(ctx).
		Where("student_id = ? AND day = ?", studentID, day).
		Take(&row).Error
	if database.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read quota for student %d on %s", studentID, day)
	}
	return row.SentCount, nil
}
