package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"catholink/internal/attendance"
)

// SchoolName is appended to every parent-facing SMS.
const SchoolName = "Holy Cross of Davao College"

// NotificationType tags all attendance notifications across channels.
const NotificationType = "attendance_alert"

// EmailParams is the payload handed to the email collaborator. Subject
// and body live in the provider-side template; we only fill parameters.
type EmailParams struct {
	ToEmail     string `json:"to_email"`
	ToName      string `json:"to_name"`
	StudentName string `json:"student_name"`
	Status      string `json:"status"`
	Time        string `json:"time"`
}

// PushData is the structured payload attached to a push notification.
type PushData struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	Status      string `json:"status"`
}

// PushParams is the payload handed to the push collaborator.
type PushParams struct {
	UserIDs          []string `json:"user_ids"`
	Title            string   `json:"title"`
	Body             string   `json:"body"`
	NotificationType string   `json:"notification_type"`
	Data             PushData `json:"data"`
}

// SMSParams is the payload handed to the SMS collaborator.
type SMSParams struct {
	PhoneNumber      string `json:"phone_number"`
	Message          string `json:"message"`
	StudentID        string `json:"student_id"`
	NotificationType string `json:"notification_type"`
}

// Delivery collaborators. Implementations live in this package; tests
// inject fakes.
type (
	EmailSender interface {
		SendAttendanceEmail(ctx context.Context, p EmailParams) error
	}
	PushSender interface {
		SendPush(ctx context.Context, p PushParams) error
	}
	SMSSender interface {
		SendSMS(ctx context.Context, p SMSParams) error
	}
)

// Channel names used in outcomes and metrics.
const (
	ChannelEmail = "email"
	ChannelPush  = "push"
	ChannelSMS   = "sms"
)

// ChannelOutcome is the result of one delivery attempt. Skipped means
// the channel was not applicable for this event (no address, or the
// status does not notify on that channel).
type ChannelOutcome struct {
	Channel string
	Skipped bool
	Err     error
}

// Outcome aggregates per-channel results for one dispatched event.
type Outcome struct {
	Email ChannelOutcome
	Push  ChannelOutcome
	SMS   ChannelOutcome
}

// Channels returns the three outcomes for iteration.
func (o Outcome) Channels() []ChannelOutcome {
	return []ChannelOutcome{o.Email, o.Push, o.SMS}
}

// Dispatcher fans an accepted attendance event out to parents over
// email, push and SMS. Channels are independent: one failing, panicking
// or stalling never blocks or fails another, and no outcome ever rolls
// back the committed attendance record.
type Dispatcher struct {
	email EmailSender
	push  PushSender
	sms   SMSSender
	loc   *time.Location
}

// NewDispatcher creates a dispatcher. Any nil sender disables its
// channel (the outcome reports it skipped).
func NewDispatcher(email EmailSender, push PushSender, sms SMSSender, loc *time.Location) *Dispatcher {
	if loc == nil {
		loc = time.UTC
	}
	return &Dispatcher{email: email, push: push, sms: sms, loc: loc}
}

// pushCopy is the fixed per-status title/body table. Plain morning
// presence is deliberately absent: parents are not pushed for it.
var pushCopy = map[attendance.Status]struct{ Title, Body string }{
	attendance.StatusLate:    {"Late Arrival", "%s arrived late to school today."},
	attendance.StatusAbsent:  {"Absence Alert", "%s has been marked absent today."},
	attendance.StatusHalfDay: {"Half Day", "%s attended only half day today."},
}

// smsText builds the literal parent SMS for a status.
func smsText(status attendance.Status, name, section, lateTime string) string {
	var body string
	switch status {
	case attendance.StatusLate:
		body = fmt.Sprintf("%s (%s) arrived late to school today at %s.", name, section, lateTime)
	case attendance.StatusAbsent:
		body = fmt.Sprintf("%s (%s) has been marked absent today. Please contact the school for more information.", name, section)
	case attendance.StatusHalfDay:
		body = fmt.Sprintf("%s (%s) attended only half day today.", name, section)
	default:
		body = fmt.Sprintf("%s (%s) has safely entered the school premises.", name, section)
	}
	return body + " - " + SchoolName
}

// Dispatch runs the fan-out and returns the per-channel outcomes. It
// blocks until every channel settles.
func (d *Dispatcher) Dispatch(ctx context.Context, rec attendance.Record, student attendance.Student) Outcome {
	local := rec.ScannedAt.In(d.loc)
	out := Outcome{
		Email: ChannelOutcome{Channel: ChannelEmail, Skipped: true},
		Push:  ChannelOutcome{Channel: ChannelPush, Skipped: true},
		SMS:   ChannelOutcome{Channel: ChannelSMS, Skipped: true},
	}

	var wg sync.WaitGroup

	if d.email != nil && student.Email != "" {
		out.Email.Skipped = false
		params := EmailParams{
			ToEmail:     student.Email,
			ToName:      student.ParentGuardianName,
			StudentName: student.Name,
			Status:      string(rec.Status),
			Time:        local.Format("January 2, 2006 3:04 PM"),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			out.Email.Err = guard(func() error { return d.email.SendAttendanceEmail(ctx, params) })
		}()
	}

	if entry, ok := pushCopy[rec.Status]; d.push != nil && ok {
		out.Push.Skipped = false
		params := PushParams{
			UserIDs:          []string{rec.StudentID},
			Title:            entry.Title,
			Body:             fmt.Sprintf(entry.Body, rec.StudentName),
			NotificationType: NotificationType,
			Data: PushData{
				StudentID:   rec.StudentID,
				StudentName: rec.StudentName,
				Status:      string(rec.Status),
			},
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			out.Push.Err = guard(func() error { return d.push.SendPush(ctx, params) })
		}()
	}

	if d.sms != nil && student.ParentNumber != "" {
		out.SMS.Skipped = false
		params := SMSParams{
			PhoneNumber:      student.ParentNumber,
			Message:          smsText(rec.Status, rec.StudentName, rec.Section, local.Format("15:04")),
			StudentID:        rec.StudentID,
			NotificationType: NotificationType,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			out.SMS.Err = guard(func() error { return d.sms.SendSMS(ctx, params) })
		}()
	}

	wg.Wait()
	return out
}

// guard contains a collaborator panic as an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delivery panic: %v", r)
		}
	}()
	return fn()
}
