// Package calendar translates between Buddhist-Era (BE) calendar dates, as
// used by the public read endpoints (C8), and the UTC instants the store
// (C2) actually indexes on. BE = Gregorian CE + 543; a BE date always names
// a full Asia/Bangkok day, [00:00, 24:00).
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BEOffsetYears is the constant difference between a Buddhist-Era year and
// its Gregorian equivalent.
const BEOffsetYears = 543

var bangkok = mustLoadBangkok()

func mustLoadBangkok() *time.Location {
	loc, err := time.LoadLocation("Asia/Bangkok")
	if err != nil {
		// Asia/Bangkok is a fixed UTC+7 offset with no DST; fall back to an
		// explicit FixedZone if the platform's tzdata is unavailable rather
		// than fail package init.
		return time.FixedZone("Asia/Bangkok", 7*60*60)
	}
	return loc
}

// ParseBEDate parses a "DD/MM/YYYY" string whose year is a Buddhist-Era
// year (spec §4.8's date=07/07/2568) and returns the Gregorian calendar
// day it names, at midnight Asia/Bangkok.
func ParseBEDate(s string) (time.Time, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("calendar: %q is not a DD/MM/YYYY date", s)
	}

	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: invalid day in %q: %w", s, err)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: invalid month in %q: %w", s, err)
	}
	beYear, err := strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: invalid year in %q: %w", s, err)
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("calendar: %q is out of range for a calendar date", s)
	}

	ceYear := beYear - BEOffsetYears
	d := time.Date(ceYear, time.Month(month), day, 0, 0, 0, 0, bangkok)
	if d.Day() != day || int(d.Month()) != month {
		return time.Time{}, fmt.Errorf("calendar: %q is not a valid calendar date", s)
	}
	return d, nil
}

// DayRangeUTC returns the [start, end) UTC instants bounding the full
// Asia/Bangkok day that localMidnight (itself in Asia/Bangkok, as returned
// by ParseBEDate) falls on, satisfying spec property P7.
func DayRangeUTC(localMidnight time.Time) (start, end time.Time) {
	start = localMidnight.In(bangkok).UTC()
	end = localMidnight.In(bangkok).AddDate(0, 0, 1).UTC()
	return start, end
}

// FormatBE renders t (any timezone) as a Buddhist-Era "DD/MM/YYYY" string
// in Asia/Bangkok, the sibling format spec §4.8 calls timestamp_buddhist.
func FormatBE(t time.Time) string {
	local := t.In(bangkok)
	return fmt.Sprintf("%02d/%02d/%04d", local.Day(), int(local.Month()), local.Year()+BEOffsetYears)
}

// RangeForBEDateParam is the single entry point readapi's handlers call:
// given the raw date query parameter, it returns the UTC range the store
// should be queried over.
func RangeForBEDateParam(dateParam string) (start, end time.Time, err error) {
	d, err := ParseBEDate(dateParam)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, end = DayRangeUTC(d)
	return start, end, nil
}
