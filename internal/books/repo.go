package books

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Vikass76/MonVieuxGrimoire/pkg/models"
)

// ErrAlreadyRated is returned when a user submits a second rating for the
// same book.
var ErrAlreadyRated = errors.New("user already rated this book")

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

const bookColumns = `id, user_id, title, author, year, genre, image_url, ratings, average_rating, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*models.Book, error) {
	var (
		b           models.Book
		ratingsJSON string
	)
	if err := row.Scan(
		&b.ID, &b.UserID, &b.Title, &b.Author, &b.Year, &b.Genre,
		&b.ImageURL, &ratingsJSON, &b.AverageRating, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.Ratings = []models.Rating{}
	_ = json.Unmarshal([]byte(ratingsJSON), &b.Ratings)
	return &b, nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (*models.Book, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+bookColumns+`
		FROM books
		WHERE id = ?
	`, id)

	b, err := scanBook(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

func (r *Repo) List(ctx context.Context) ([]models.Book, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+bookColumns+`
		FROM books
	`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	return collectBooks(rows)
}

// TopRated returns the n best-rated books, highest average first. Ties come
// back in insertion (rowid) order.
func (r *Repo) TopRated(ctx context.Context, n int) ([]models.Book, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+bookColumns+`
		FROM books
		ORDER BY average_rating DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("top rated: %w", err)
	}
	defer rows.Close()

	return collectBooks(rows)
}

func collectBooks(rows *sql.Rows) ([]models.Book, error) {
	out := make([]models.Book, 0)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book row: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func (r *Repo) Create(ctx context.Context, b *models.Book) error {
	ratingsJSON, err := json.Marshal(b.Ratings)
	if err != nil {
		return fmt.Errorf("marshal ratings: %w", err)
	}

	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO books (id, user_id, title, author, year, genre, image_url, ratings, average_rating, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.UserID, b.Title, b.Author, b.Year, b.Genre, b.ImageURL, string(ratingsJSON), b.AverageRating, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

// Update persists the mutable fields. Ratings and average are only touched
// through AddRating.
func (r *Repo) Update(ctx context.Context, b *models.Book) error {
	b.UpdatedAt = time.Now().UTC()
	_, err := r.DB.ExecContext(ctx, `
		UPDATE books
		SET title = ?, author = ?, year = ?, genre = ?, image_url = ?, updated_at = ?
		WHERE id = ?
	`, b.Title, b.Author, b.Year, b.Genre, b.ImageURL, b.UpdatedAt, b.ID)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `
		DELETE FROM books
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return nil
}

// AddRating appends one user's grade and recomputes the average, all inside
// a transaction so two concurrent submissions cannot drop each other's
// rating. Returns (nil, nil) when the book does not exist.
func (r *Repo) AddRating(ctx context.Context, bookID, userID string, grade float64) (*models.Book, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin add rating: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+bookColumns+`
		FROM books
		WHERE id = ?
	`, bookID)

	b, err := scanBook(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get book for rating: %w", err)
	}

	if b.HasRatingFrom(userID) {
		return nil, ErrAlreadyRated
	}

	b.Ratings = append(b.Ratings, models.Rating{UserID: userID, Grade: grade})

	var sum float64
	for _, rt := range b.Ratings {
		sum += rt.Grade
	}
	b.AverageRating = math.Round(sum/float64(len(b.Ratings))*10) / 10

	ratingsJSON, err := json.Marshal(b.Ratings)
	if err != nil {
		return nil, fmt.Errorf("marshal ratings: %w", err)
	}

	b.UpdatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE books
		SET ratings = ?, average_rating = ?, updated_at = ?
		WHERE id = ?
	`, string(ratingsJSON), b.AverageRating, b.UpdatedAt, b.ID); err != nil {
		return nil, fmt.Errorf("update ratings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit add rating: %w", err)
	}
	return b, nil
}
