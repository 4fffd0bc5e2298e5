package models

import "time"

// Rating is one user's grade on a book. Ratings live embedded inside the
// book document; they are never addressed on their own.
type Rating struct {
	UserID string  `json:"userId"`
	Grade  float64 `json:"grade"`
}

// Book is the catalog entry as stored and as served over the API.
// Ratings are persisted as a JSON array inside the book row, and
// AverageRating is recomputed on every rating insertion.
type Book struct {
	ID            string   `json:"id"`
	UserID        string   `json:"userId"` // owner
	Title         string   `json:"title"`
	Author        string   `json:"author"`
	Year          int      `json:"year"`
	Genre         string   `json:"genre"`
	ImageURL      string   `json:"imageUrl"`
	Ratings       []Rating `json:"ratings"`
	AverageRating float64  `json:"averageRating"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasRatingFrom reports whether userID already graded the book.
func (b *Book) HasRatingFrom(userID string) bool {
	for _, r := range b.Ratings {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
