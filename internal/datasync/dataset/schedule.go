package dataset

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"

	"github.com/yys/safewalk-cli/internal/db"
	"github.com/yys/safewalk-cli/internal/fetcher"
)

// AnnualAfter reports whether an annual dataset released in releaseMonth is
// due: once per year, after the release date.
func AnnualAfter(now time.Time, lastSync *time.Time, releaseMonth time.Month) bool {
	if lastSync == nil {
		return true
	}
	releaseDate := time.Date(now.Year(), releaseMonth, 1, 0, 0, 0, 0, time.UTC)
	return now.After(releaseDate) && lastSync.Before(releaseDate)
}

// MonthlySchedule reports whether a monthly dataset has not run this month.
func MonthlySchedule(now time.Time, lastSync *time.Time) bool {
	if lastSync == nil {
		return true
	}
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return lastSync.Before(thisMonth)
}

// WeeklySchedule reports whether a weekly dataset has not run since Monday.
func WeeklySchedule(now time.Time, lastSync *time.Time) bool {
	if lastSync == nil {
		return true
	}
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := time.Date(now.Year(), now.Month(), now.Day()-weekday+1, 0, 0, 0, 0, time.UTC)
	return lastSync.Before(monday)
}

// DailySchedule reports whether a daily dataset has not run today.
func DailySchedule(now time.Time, lastSync *time.Time) bool {
	if lastSync == nil {
		return true
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return lastSync.Before(today)
}

// CadenceDue applies the default calendar of a cadence.
func CadenceDue(c Cadence, releaseMonth time.Month, now time.Time, lastSync *time.Time) bool {
	switch c {
	case Daily:
		return DailySchedule(now, lastSync)
	case Weekly:
		return WeeklySchedule(now, lastSync)
	case Monthly:
		return MonthlySchedule(now, lastSync)
	default:
		if releaseMonth < time.January || releaseMonth > time.December {
			releaseMonth = time.January
		}
		return AnnualAfter(now, lastSync, releaseMonth)
	}
}

// CronDue reports whether the first activation of sched after lastSync has
// already passed.
func CronDue(sched cron.Schedule, now time.Time, lastSync *time.Time) bool {
	if lastSync == nil {
		return true
	}
	return !sched.Next(*lastSync).After(now)
}

// scheduled overrides a dataset's calendar with a cron schedule.
type scheduled struct {
	Dataset
	spec  string
	sched cron.Schedule
}

func withSchedule(d Dataset, spec string) (Dataset, error) {
	s, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: schedule for %s", d.Name())
	}
	return &scheduled{Dataset: d, spec: spec, sched: s}, nil
}

func (s *scheduled) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return CronDue(s.sched, now, lastSync)
}

// SyncFull forwards to the wrapped dataset when it supports full reloads.
func (s *scheduled) SyncFull(ctx context.Context, pool db.Pool, f fetcher.Fetcher, tempDir string) (*SyncResult, error) {
	if r, ok := s.Dataset.(Reloader); ok {
		return r.SyncFull(ctx, pool, f, tempDir)
	}
	return s.Dataset.Sync(ctx, pool, f, tempDir)
}
