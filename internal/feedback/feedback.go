// Package feedback collects parent ratings of the attendance service
// and aggregates them for the admin dashboard.
package feedback

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Rating is one submitted piece of feedback.
type Rating struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id,omitempty"`
	Stars     int       `json:"stars"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is the aggregated ratings view: overall average, total count
// and a per-star histogram (index 0 holds 1-star counts).
type Summary struct {
	Average   float64  `json:"average"`
	Count     int      `json:"count"`
	Histogram [5]int64 `json:"histogram"`
}

// ErrInvalidStars rejects ratings outside 1..5.
var ErrInvalidStars = errors.New("stars must be between 1 and 5")

// Summarize folds ratings into a summary.
func Summarize(ratings []Rating) Summary {
	var s Summary
	var total int
	for _, r := range ratings {
		if r.Stars < 1 || r.Stars > 5 {
			continue
		}
		s.Histogram[r.Stars-1]++
		total += r.Stars
		s.Count++
	}
	if s.Count > 0 {
		s.Average = float64(total) / float64(s.Count)
	}
	return s
}

// Repository persists ratings in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert stores one rating.
func (r *Repository) Insert(ctx context.Context, rating Rating) (Rating, error) {
	if rating.Stars < 1 || rating.Stars > 5 {
		return Rating{}, ErrInvalidStars
	}
	if rating.ID == "" {
		rating.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO feedback (id, student_id, stars, comment)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, rating.ID, rating.StudentID, rating.Stars, rating.Comment)
	if err := row.Scan(&rating.CreatedAt); err != nil {
		return Rating{}, err
	}
	return rating, nil
}

// List returns all ratings, newest first.
func (r *Repository) List(ctx context.Context) ([]Rating, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, stars, comment, created_at FROM feedback ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ratings []Rating
	for rows.Next() {
		var rating Rating
		if err := rows.Scan(&rating.ID, &rating.StudentID, &rating.Stars, &rating.Comment, &rating.CreatedAt); err != nil {
			return nil, err
		}
		ratings = append(ratings, rating)
	}
	return ratings, rows.Err()
}

// Summary aggregates all stored ratings.
func (r *Repository) Summary(ctx context.Context) (Summary, error) {
	ratings, err := r.List(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(ratings), nil
}
