package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catholink/internal/attendance"
)

type fakeEmail struct {
	params []EmailParams
	err    error
	panics bool
}

func (f *fakeEmail) SendAttendanceEmail(_ context.Context, p EmailParams) error {
	if f.panics {
		panic("email collaborator exploded")
	}
	f.params = append(f.params, p)
	return f.err
}

type fakePush struct {
	params []PushParams
	err    error
}

func (f *fakePush) SendPush(_ context.Context, p PushParams) error {
	f.params = append(f.params, p)
	return f.err
}

type fakeSMS struct {
	params []SMSParams
	err    error
}

func (f *fakeSMS) SendSMS(_ context.Context, p SMSParams) error {
	f.params = append(f.params, p)
	return f.err
}

func manila(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Manila")
	require.NoError(t, err)
	return loc
}

func testRecord(status attendance.Status, scannedAt time.Time) attendance.Record {
	return attendance.Record{
		ID:          "rec-1",
		StudentID:   "stu-1",
		StudentName: "Joy Reyes",
		Section:     "Grade 4 - St. Luke",
		Status:      status,
		ScannedAt:   scannedAt,
	}
}

func testStudent() attendance.Student {
	return attendance.Student{
		UserID:             "stu-1",
		Name:               "Joy Reyes",
		Email:              "parent@example.com",
		Section:            "Grade 4 - St. Luke",
		ParentNumber:       "+639171234567",
		ParentGuardianName: "Ana Reyes",
	}
}

func TestDispatchPresentSkipsPush(t *testing.T) {
	loc := manila(t)
	email, push, sms := &fakeEmail{}, &fakePush{}, &fakeSMS{}
	d := NewDispatcher(email, push, sms, loc)

	scannedAt := time.Date(2026, time.March, 9, 7, 30, 0, 0, loc)
	out := d.Dispatch(context.Background(), testRecord(attendance.StatusPresent, scannedAt), testStudent())

	assert.False(t, out.Email.Skipped)
	assert.NoError(t, out.Email.Err)
	assert.True(t, out.Push.Skipped, "plain presence never pushes")
	assert.False(t, out.SMS.Skipped)

	require.Len(t, email.params, 1)
	assert.Equal(t, "parent@example.com", email.params[0].ToEmail)
	assert.Equal(t, "Ana Reyes", email.params[0].ToName)
	assert.Equal(t, "present", email.params[0].Status)
	assert.Equal(t, "March 9, 2026 7:30 AM", email.params[0].Time)

	assert.Empty(t, push.params)
	require.Len(t, sms.params, 1)
	assert.Equal(t, "Joy Reyes (Grade 4 - St. Luke) has safely entered the school premises. - Holy Cross of Davao College", sms.params[0].Message)
	assert.Equal(t, "attendance_alert", sms.params[0].NotificationType)
}

func TestDispatchLateHitsAllChannels(t *testing.T) {
	loc := manila(t)
	email, push, sms := &fakeEmail{}, &fakePush{}, &fakeSMS{}
	d := NewDispatcher(email, push, sms, loc)

	scannedAt := time.Date(2026, time.March, 9, 9, 5, 0, 0, loc)
	out := d.Dispatch(context.Background(), testRecord(attendance.StatusLate, scannedAt), testStudent())

	for _, ch := range out.Channels() {
		assert.False(t, ch.Skipped, ch.Channel)
		assert.NoError(t, ch.Err, ch.Channel)
	}

	require.Len(t, push.params, 1)
	assert.Equal(t, []string{"stu-1"}, push.params[0].UserIDs)
	assert.Equal(t, "Late Arrival", push.params[0].Title)
	assert.Equal(t, "Joy Reyes arrived late to school today.", push.params[0].Body)
	assert.Equal(t, "attendance_alert", push.params[0].NotificationType)
	assert.Equal(t, PushData{StudentID: "stu-1", StudentName: "Joy Reyes", Status: "late"}, push.params[0].Data)

	require.Len(t, sms.params, 1)
	assert.Equal(t, "Joy Reyes (Grade 4 - St. Luke) arrived late to school today at 09:05. - Holy Cross of Davao College", sms.params[0].Message)
}

func TestDispatchEmailFailureIsolated(t *testing.T) {
	email := &fakeEmail{err: errors.New("sendgrid down")}
	push, sms := &fakePush{}, &fakeSMS{}
	d := NewDispatcher(email, push, sms, time.UTC)

	rec := testRecord(attendance.StatusAbsent, time.Date(2026, time.March, 9, 17, 45, 0, 0, time.UTC))
	out := d.Dispatch(context.Background(), rec, testStudent())

	assert.Error(t, out.Email.Err)
	assert.NoError(t, out.Push.Err)
	assert.NoError(t, out.SMS.Err)
	assert.Len(t, push.params, 1, "push still delivered")
	assert.Len(t, sms.params, 1, "sms still delivered")
}

func TestDispatchEmailPanicContained(t *testing.T) {
	email := &fakeEmail{panics: true}
	push, sms := &fakePush{}, &fakeSMS{}
	d := NewDispatcher(email, push, sms, time.UTC)

	rec := testRecord(attendance.StatusLate, time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC))
	out := d.Dispatch(context.Background(), rec, testStudent())

	require.Error(t, out.Email.Err)
	assert.Contains(t, out.Email.Err.Error(), "delivery panic")
	assert.Len(t, push.params, 1)
	assert.Len(t, sms.params, 1)
}

func TestDispatchSkipsMissingAddresses(t *testing.T) {
	email, push, sms := &fakeEmail{}, &fakePush{}, &fakeSMS{}
	d := NewDispatcher(email, push, sms, time.UTC)

	student := testStudent()
	student.Email = ""
	student.ParentNumber = ""

	rec := testRecord(attendance.StatusLate, time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC))
	out := d.Dispatch(context.Background(), rec, student)

	assert.True(t, out.Email.Skipped)
	assert.True(t, out.SMS.Skipped)
	assert.False(t, out.Push.Skipped)
	assert.Empty(t, email.params)
	assert.Empty(t, sms.params)
}

func TestSMSCopyPerStatus(t *testing.T) {
	tests := []struct {
		status attendance.Status
		want   string
	}{
		{attendance.StatusPresent, "Joy Reyes (Grade 4 - St. Luke) has safely entered the school premises. - Holy Cross of Davao College"},
		{attendance.StatusLate, "Joy Reyes (Grade 4 - St. Luke) arrived late to school today at 08:10. - Holy Cross of Davao College"},
		{attendance.StatusAbsent, "Joy Reyes (Grade 4 - St. Luke) has been marked absent today. Please contact the school for more information. - Holy Cross of Davao College"},
		{attendance.StatusHalfDay, "Joy Reyes (Grade 4 - St. Luke) attended only half day today. - Holy Cross of Davao College"},
	}
	for _, tt := range tests {
		got := smsText(tt.status, "Joy Reyes", "Grade 4 - St. Luke", "08:10")
		assert.Equal(t, tt.want, got, string(tt.status))
	}
}
