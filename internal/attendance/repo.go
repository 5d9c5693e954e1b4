package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Student is a registered student profile. Profiles are owned by the
// registry; the scan pipeline only reads them.
type Student struct {
	UserID             string    `json:"user_id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	Birthday           time.Time `json:"birthday"`
	Section            string    `json:"section"`
	ParentNumber       string    `json:"parent_number"`
	ParentGuardianName string    `json:"parent_guardian_name"`
	CreatedAt          time.Time `json:"created_at"`
}

// Record is one accepted attendance scan. Records are append-only; the
// pipeline never updates or deletes them after insert.
type Record struct {
	ID             string    `json:"id"`
	StudentID      string    `json:"student_id"`
	StudentName    string    `json:"student_name"`
	Section        string    `json:"section"`
	ScannedBy      string    `json:"scanned_by"`
	Status         Status    `json:"status"`
	ParentNotified bool      `json:"parent_notified"`
	ScannedAt      time.Time `json:"scanned_at"`
}

// Repository persists students and attendance records in Postgres.
type Repository struct {
	db  *sql.DB
	loc *time.Location
}

// NewRepository creates a repo. loc is the school's local timezone and
// bounds the "same day" window for record queries.
func NewRepository(db *sql.DB, loc *time.Location) *Repository {
	if loc == nil {
		loc = time.UTC
	}
	return &Repository{db: db, loc: loc}
}

// UpsertScanner ensures a scanner device record exists.
func (r *Repository) UpsertScanner(ctx context.Context, scannerID string) error {
	if scannerID == "" {
		return errors.New("scanner id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scanners (scanner_id)
		VALUES ($1)
		ON CONFLICT (scanner_id) DO NOTHING
	`, scannerID)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, scannerID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (scanner_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, scannerID, token, expiresAt)
	return err
}

// UpsertStudent creates or updates a student profile.
func (r *Repository) UpsertStudent(ctx context.Context, s Student) error {
	if s.UserID == "" {
		return errors.New("user id required")
	}
	var birthday any
	if !s.Birthday.IsZero() {
		birthday = s.Birthday
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (user_id, name, email, birthday, section, parent_number, parent_guardian_name)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			birthday = EXCLUDED.birthday,
			section = EXCLUDED.section,
			parent_number = EXCLUDED.parent_number,
			parent_guardian_name = EXCLUDED.parent_guardian_name
	`, s.UserID, s.Name, s.Email, birthday, s.Section, s.ParentNumber, s.ParentGuardianName)
	return err
}

// GetStudent returns a student profile by user id, or nil when absent.
func (r *Repository) GetStudent(ctx context.Context, userID string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, name, email, birthday, section, parent_number, parent_guardian_name, created_at
		FROM students WHERE user_id = $1
	`, userID)
	var s Student
	var birthday sql.NullTime
	if err := row.Scan(&s.UserID, &s.Name, &s.Email, &birthday, &s.Section, &s.ParentNumber, &s.ParentGuardianName, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if birthday.Valid {
		s.Birthday = birthday.Time
	}
	return &s, nil
}

// RecordsForDay returns every record for the student whose scanned_at
// falls on the given local calendar day.
func (r *Repository) RecordsForDay(ctx context.Context, studentID string, day time.Time) ([]Record, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, r.loc)
	end := start.Add(24 * time.Hour)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, student_name, section, scanned_by, status, parent_notified, scanned_at
		FROM attendance_records
		WHERE student_id = $1 AND scanned_at >= $2 AND scanned_at < $3
		ORDER BY scanned_at
	`, studentID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// InsertRecord appends a new attendance record.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ScannedAt.IsZero() {
		rec.ScannedAt = time.Now().In(r.loc)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, student_id, student_name, section, scanned_by, status, parent_notified, scanned_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, rec.ID, rec.StudentID, rec.StudentName, rec.Section, rec.ScannedBy, string(rec.Status), rec.ParentNotified, rec.ScannedAt)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ListRecords returns records with basic filters, newest first.
func (r *Repository) ListRecords(ctx context.Context, studentID string, day *time.Time, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, student_id, student_name, section, scanned_by, status, parent_notified, scanned_at FROM attendance_records`
	args := []any{}
	clauses := []string{}
	if studentID != "" {
		args = append(args, studentID)
		clauses = append(clauses, "student_id = $"+strconv.Itoa(len(args)))
	}
	if day != nil {
		start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, r.loc)
		args = append(args, start)
		clauses = append(clauses, "scanned_at >= $"+strconv.Itoa(len(args)))
		args = append(args, start.Add(24*time.Hour))
		clauses = append(clauses, "scanned_at < $"+strconv.Itoa(len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY scanned_at DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []Record
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// scanRecord reads one row and renders scanned_at in the school zone;
// the driver returns timestamptz in the process-local zone.
func (r *Repository) scanRecord(rows *sql.Rows) (Record, error) {
	var rec Record
	var status string
	err := rows.Scan(&rec.ID, &rec.StudentID, &rec.StudentName, &rec.Section, &rec.ScannedBy, &status, &rec.ParentNotified, &rec.ScannedAt)
	rec.Status = Status(status)
	rec.ScannedAt = rec.ScannedAt.In(r.loc)
	return rec, err
}

