package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catholink/internal/queue"
)

type fakeStore struct {
	students  map[string]*Student
	records   []Record
	insertErr error
	getCalls  int
}

func (f *fakeStore) GetStudent(_ context.Context, userID string) (*Student, error) {
	f.getCalls++
	return f.students[userID], nil
}

func (f *fakeStore) RecordsForDay(_ context.Context, studentID string, _ time.Time) ([]Record, error) {
	var out []Record
	for _, rec := range f.records {
		if rec.StudentID == studentID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertRecord(_ context.Context, rec Record) (Record, error) {
	if f.insertErr != nil {
		return Record{}, f.insertErr
	}
	rec.ID = "rec-1"
	f.records = append(f.records, rec)
	return rec, nil
}

func newTestService(t *testing.T, store *fakeStore, q queue.Queue, now time.Time) *Service {
	t.Helper()
	svc := NewService(store, q, time.UTC)
	svc.now = func() time.Time { return now }
	return svc
}

func studentJoy() *Student {
	return &Student{
		UserID:             "stu-1",
		Name:               "Joy Reyes",
		Email:              "parent@example.com",
		Birthday:           time.Date(2012, time.June, 4, 0, 0, 0, 0, time.UTC),
		Section:            "Grade 4 - St. Luke",
		ParentNumber:       "+639171234567",
		ParentGuardianName: "Ana Reyes",
	}
}

func scanText(t *testing.T, userID string) string {
	t.Helper()
	raw, err := json.Marshal(ScanPayload{UserID: userID, Name: "Joy Reyes", Section: "Grade 4 - St. Luke"})
	require.NoError(t, err)
	return string(raw)
}

func TestHandleScanAcceptsOnTimeMorning(t *testing.T) {
	store := &fakeStore{students: map[string]*Student{"stu-1": studentJoy()}}
	q := queue.NewInMemory(4)
	svc := newTestService(t, store, q, at(7, 30))

	res, err := svc.HandleScan(context.Background(), scanText(t, "stu-1"), "gate-1")
	require.NoError(t, err)

	assert.True(t, res.Accepted)
	assert.Equal(t, StatusPresent, res.Status)
	assert.Equal(t, 3*time.Second, res.ResetDelay)
	require.NotNil(t, res.Record)
	assert.Equal(t, "gate-1", res.Record.ScannedBy)
	assert.True(t, res.Record.ParentNotified)
	require.Len(t, store.records, 1)

	msgs, err := q.Consume(context.Background())
	require.NoError(t, err)
	msg := <-msgs
	assert.Equal(t, JobType, msg.Type)
	var job NotificationJob
	require.NoError(t, json.Unmarshal(msg.Body, &job))
	assert.Equal(t, "stu-1", job.Record.StudentID)
	assert.Equal(t, "parent@example.com", job.Student.Email)
}

func TestHandleScanLateMorning(t *testing.T) {
	store := &fakeStore{students: map[string]*Student{"stu-1": studentJoy()}}
	svc := newTestService(t, store, queue.NewInMemory(4), at(9, 0))

	res, err := svc.HandleScan(context.Background(), scanText(t, "stu-1"), "gate-1")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, StatusLate, res.Status)
}

func TestHandleScanRejectsDuplicateSession(t *testing.T) {
	store := &fakeStore{
		students: map[string]*Student{"stu-1": studentJoy()},
		records:  []Record{{StudentID: "stu-1", ScannedAt: at(7, 30)}},
	}
	q := queue.NewInMemory(4)
	svc := newTestService(t, store, q, at(9, 0))

	res, err := svc.HandleScan(context.Background(), scanText(t, "stu-1"), "gate-1")
	require.NoError(t, err)

	assert.False(t, res.Accepted)
	assert.Equal(t, ErrSessionRecorded.Error(), res.Reason)
	assert.Equal(t, 3*time.Second, res.ResetDelay)
	assert.Len(t, store.records, 1, "no new record on rejection")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	msgs, _ := q.Consume(ctx)
	select {
	case msg := <-msgs:
		if msg.Type != "" {
			t.Fatalf("unexpected notification job published: %+v", msg)
		}
	case <-ctx.Done():
	}
}

func TestHandleScanAfternoonAfterMorning(t *testing.T) {
	store := &fakeStore{
		students: map[string]*Student{"stu-1": studentJoy()},
		records:  []Record{{StudentID: "stu-1", ScannedAt: at(7, 30)}},
	}
	svc := newTestService(t, store, queue.NewInMemory(4), at(13, 0))

	res, err := svc.HandleScan(context.Background(), scanText(t, "stu-1"), "gate-1")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, StatusPresent, res.Status)
	assert.Len(t, store.records, 2)
}

func TestHandleScanInvalidPayload(t *testing.T) {
	store := &fakeStore{students: map[string]*Student{}}
	svc := newTestService(t, store, nil, at(7, 30))

	res, err := svc.HandleScan(context.Background(), "not json", "gate-1")
	assert.ErrorIs(t, err, ErrInvalidQR)
	assert.Equal(t, 2*time.Second, res.ResetDelay)
	assert.Zero(t, store.getCalls, "profile lookup skipped on bad payload")

	_, err = svc.HandleScan(context.Background(), `{"name":"No ID"}`, "gate-1")
	assert.ErrorIs(t, err, ErrInvalidQR)
}

func TestHandleScanProfileNotFound(t *testing.T) {
	store := &fakeStore{students: map[string]*Student{}}
	svc := newTestService(t, store, nil, at(7, 30))

	res, err := svc.HandleScan(context.Background(), scanText(t, "ghost"), "gate-1")
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.Equal(t, 2*time.Second, res.ResetDelay)
}

func TestHandleScanInsertFailurePropagates(t *testing.T) {
	boom := errors.New("insert refused")
	store := &fakeStore{
		students:  map[string]*Student{"stu-1": studentJoy()},
		insertErr: boom,
	}
	svc := newTestService(t, store, queue.NewInMemory(4), at(7, 30))

	_, err := svc.HandleScan(context.Background(), scanText(t, "stu-1"), "gate-1")
	assert.ErrorIs(t, err, boom)
}

func TestHandleScanBirthdayDelay(t *testing.T) {
	joy := studentJoy()
	store := &fakeStore{students: map[string]*Student{"stu-1": joy}}
	now := time.Date(2026, time.June, 4, 7, 30, 0, 0, time.UTC) // Joy's birthday
	svc := newTestService(t, store, nil, now)

	res, err := svc.HandleScan(context.Background(), scanText(t, "stu-1"), "gate-1")
	require.NoError(t, err)
	assert.True(t, res.Birthday)
	assert.Equal(t, 5*time.Second, res.ResetDelay)
}

func TestHandleScanNoParentNumber(t *testing.T) {
	joy := studentJoy()
	joy.ParentNumber = ""
	store := &fakeStore{students: map[string]*Student{"stu-1": joy}}
	svc := newTestService(t, store, nil, at(7, 30))

	res, err := svc.HandleScan(context.Background(), scanText(t, "stu-1"), "gate-1")
	require.NoError(t, err)
	assert.False(t, res.Record.ParentNotified)
}
