package attendance

import (
	"errors"
	"time"
)

// Status is the derived attendance status for an accepted scan.
// It is never chosen by the operator; only time-of-day and the
// student's existing same-day records determine it.
type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
	// StatusHalfDay is reserved; no classification rule currently emits it.
	StatusHalfDay Status = "half_day"
)

// Session window boundaries, in local wall-clock hours.
const (
	morningStartHour   = 6
	morningEndHour     = 12 // exclusive
	afternoonStartHour = 12
	afternoonEndHour   = 16 // exclusive
)

// Rejection outcomes. These are business results, not faults: the scan
// produced no record and the operator is told why.
var (
	ErrSessionRecorded  = errors.New("session already recorded")
	ErrBothSessionsDone = errors.New("both sessions complete")
)

// IsRejection reports whether err is a classifier rejection rather than
// an infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrSessionRecorded) || errors.Is(err, ErrBothSessionsDone)
}

// baseStatus maps minutes-since-midnight to a status, independent of any
// existing records.
//
//	[06:00, 08:00) present
//	[08:00, 12:00) late
//	[12:00, 13:15] present
//	[17:30, 24:00) absent
//	anything else  present (fallback)
func baseStatus(now time.Time) Status {
	m := now.Hour()*60 + now.Minute()
	switch {
	case m >= 360 && m < 480:
		return StatusPresent
	case m >= 480 && m < 720:
		return StatusLate
	case m >= 720 && m <= 795:
		return StatusPresent
	case m >= 1050:
		return StatusAbsent
	default:
		return StatusPresent
	}
}

func inMorningSession(hour int) bool {
	return hour >= morningStartHour && hour < morningEndHour
}

func inAfternoonSession(hour int) bool {
	return hour >= afternoonStartHour && hour < afternoonEndHour
}

// Classify derives the status for a scan at now, given every record the
// student already has today. At most one record per session per day is
// accepted, and a student who has completed both sessions is done for
// the day regardless of which session the new scan lands in.
func Classify(now time.Time, existing []Record) (Status, error) {
	// Storage may hand timestamps back in a different zone; session
	// membership is defined by school wall-clock, i.e. now's zone.
	var morning, afternoon int
	for _, rec := range existing {
		h := rec.ScannedAt.In(now.Location()).Hour()
		switch {
		case inMorningSession(h):
			morning++
		case inAfternoonSession(h):
			afternoon++
		}
	}

	hour := now.Hour()
	currentlyMorning := inMorningSession(hour)
	currentlyAfternoon := inAfternoonSession(hour)

	if (currentlyMorning && afternoon > 0) || (currentlyAfternoon && morning > 0) {
		return "", ErrBothSessionsDone
	}
	if (currentlyMorning && morning > 0) || (currentlyAfternoon && afternoon > 0) {
		return "", ErrSessionRecorded
	}
	return baseStatus(now), nil
}

// IsBirthday reports whether today is the student's birthday, comparing
// month and day only.
func IsBirthday(today, birthday time.Time) bool {
	if birthday.IsZero() {
		return false
	}
	return today.Month() == birthday.Month() && today.Day() == birthday.Day()
}

// Result-display delays. The scanner stays gated for the delay before
// accepting the next scan.
const (
	ResetDelayFailure  = 2 * time.Second
	ResetDelayDefault  = 3 * time.Second
	ResetDelayBirthday = 5 * time.Second
)

// ResetDelay returns how long the scanner should display the outcome of
// an accepted or rejected scan before returning to scanning.
func ResetDelay(birthday bool) time.Duration {
	if birthday {
		return ResetDelayBirthday
	}
	return ResetDelayDefault
}
