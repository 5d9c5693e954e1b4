package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"catholink/internal/queue"
)

// ScanPayload is the JSON a student's QR code carries. It is untrusted
// input; only user_id is required to be meaningful.
type ScanPayload struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Section string `json:"section"`
}

// Scan pipeline failures visible to the operator.
var (
	ErrInvalidQR       = errors.New("invalid QR code")
	ErrProfileNotFound = errors.New("student profile not found")
)

// NotificationJob is the queue message body handed to the worker after a
// record is committed.
type NotificationJob struct {
	Record  Record  `json:"record"`
	Student Student `json:"student"`
}

// JobType tags notification jobs on the queue.
const JobType = "attendance"

// Store is the persistence surface the scan pipeline reads and writes.
type Store interface {
	GetStudent(ctx context.Context, userID string) (*Student, error)
	RecordsForDay(ctx context.Context, studentID string, day time.Time) ([]Record, error)
	InsertRecord(ctx context.Context, rec Record) (Record, error)
}

// ScanResult is the outcome of one handled scan. Rejections are results,
// not errors: Accepted is false and Reason carries the rejection text.
type ScanResult struct {
	Accepted   bool          `json:"accepted"`
	Status     Status        `json:"status,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Birthday   bool          `json:"birthday"`
	ResetDelay time.Duration `json:"-"`
	Student    *Student      `json:"student,omitempty"`
	Record     *Record       `json:"record,omitempty"`
}

// Service runs the scan pipeline: decode, profile lookup, classify,
// persist, enqueue notifications.
type Service struct {
	store Store
	queue queue.Queue
	loc   *time.Location
	now   func() time.Time
}

// NewService creates a service. queue may be nil, in which case accepted
// scans simply skip notification dispatch.
func NewService(store Store, q queue.Queue, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	svc := &Service{store: store, queue: q, loc: loc}
	svc.now = func() time.Time { return time.Now().In(loc) }
	return svc
}

// HandleScan processes one QR read. The returned error is non-nil only
// for scan failures (bad payload, missing profile, storage); rejections
// come back as a non-accepted ScanResult with a nil error.
func (s *Service) HandleScan(ctx context.Context, rawText, scannedBy string) (ScanResult, error) {
	var payload ScanPayload
	if err := json.Unmarshal([]byte(rawText), &payload); err != nil {
		return ScanResult{ResetDelay: ResetDelayFailure}, ErrInvalidQR
	}
	if payload.UserID == "" {
		return ScanResult{ResetDelay: ResetDelayFailure}, ErrInvalidQR
	}

	student, err := s.store.GetStudent(ctx, payload.UserID)
	if err != nil {
		return ScanResult{ResetDelay: ResetDelayFailure}, err
	}
	if student == nil {
		return ScanResult{ResetDelay: ResetDelayFailure}, ErrProfileNotFound
	}

	now := s.now()
	birthday := IsBirthday(now, student.Birthday)

	existing, err := s.store.RecordsForDay(ctx, student.UserID, now)
	if err != nil {
		return ScanResult{ResetDelay: ResetDelayFailure}, err
	}

	status, err := Classify(now, existing)
	if err != nil {
		if IsRejection(err) {
			return ScanResult{
				Accepted:   false,
				Reason:     err.Error(),
				Birthday:   birthday,
				ResetDelay: ResetDelay(birthday),
				Student:    student,
			}, nil
		}
		return ScanResult{ResetDelay: ResetDelayFailure}, err
	}

	rec := Record{
		StudentID:      student.UserID,
		StudentName:    student.Name,
		Section:        student.Section,
		ScannedBy:      scannedBy,
		Status:         status,
		ParentNotified: student.ParentNumber != "",
		ScannedAt:      now,
	}
	rec, err = s.store.InsertRecord(ctx, rec)
	if err != nil {
		return ScanResult{ResetDelay: ResetDelayFailure}, err
	}

	s.publishJob(ctx, rec, *student)

	return ScanResult{
		Accepted:   true,
		Status:     status,
		Birthday:   birthday,
		ResetDelay: ResetDelay(birthday),
		Student:    student,
		Record:     &rec,
	}, nil
}

// publishJob enqueues the notification fan-out. Queue trouble never
// fails an already-committed scan.
func (s *Service) publishJob(ctx context.Context, rec Record, student Student) {
	if s.queue == nil {
		return
	}
	body, err := json.Marshal(NotificationJob{Record: rec, Student: student})
	if err != nil {
		log.Printf("notification job encode failed for %s: %v", rec.ID, err)
		return
	}
	if err := s.queue.Publish(ctx, queue.Message{Type: JobType, Body: body}); err != nil {
		log.Printf("notification job publish failed for %s: %v", rec.ID, err)
	}
}
