package books

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vikass76/MonVieuxGrimoire/pkg/database"
	"github.com/Vikass76/MonVieuxGrimoire/pkg/models"
)

func setupRepo(t *testing.T) *Repo {
	t.Helper()
	db := database.MustOpen(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	// satisfy the books.user_id foreign key
	_, err := db.Exec(`INSERT INTO users (id, email, password_hash) VALUES ('owner', 'o@example.com', 'x')`)
	require.NoError(t, err)
	return NewRepo(db)
}

func seedBook(t *testing.T, r *Repo) *models.Book {
	t.Helper()
	b := &models.Book{
		ID:       uuid.NewString(),
		UserID:   "owner",
		Title:    "Dune",
		Author:   "Frank Herbert",
		Year:     1965,
		Genre:    "sci-fi",
		ImageURL: "http://example.com/images/x.jpg",
		Ratings:  []models.Rating{},
	}
	require.NoError(t, r.Create(context.Background(), b))
	return b
}

func TestAddRatingComputesAverage(t *testing.T) {
	r := setupRepo(t)
	b := seedBook(t, r)
	ctx := context.Background()

	got, err := r.AddRating(ctx, b.ID, "u1", 4)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, got.AverageRating, 1e-9)

	got, err = r.AddRating(ctx, b.ID, "u2", 5)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, got.AverageRating, 1e-9)
	assert.Len(t, got.Ratings, 2)

	// persisted, not just returned
	stored, err := r.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, stored.AverageRating, 1e-9)
}

func TestAddRatingRejectsSecondVote(t *testing.T) {
	r := setupRepo(t)
	b := seedBook(t, r)
	ctx := context.Background()

	_, err := r.AddRating(ctx, b.ID, "u1", 3)
	require.NoError(t, err)

	_, err = r.AddRating(ctx, b.ID, "u1", 5)
	assert.ErrorIs(t, err, ErrAlreadyRated)

	stored, err := r.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Ratings, 1)
	assert.InDelta(t, 3.0, stored.AverageRating, 1e-9)
}

func TestAddRatingConcurrentVotersAllStored(t *testing.T) {
	r := setupRepo(t)
	b := seedBook(t, r)
	ctx := context.Background()

	const voters = 16
	var wg sync.WaitGroup
	errs := make(chan error, voters)
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := r.AddRating(ctx, b.ID, fmt.Sprintf("u%d", n), 4); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("add rating: %v", err)
	}

	stored, err := r.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Ratings, voters)
	assert.InDelta(t, 4.0, stored.AverageRating, 1e-9)
}

func TestAddRatingMissingBook(t *testing.T) {
	r := setupRepo(t)

	got, err := r.AddRating(context.Background(), uuid.NewString(), "u1", 3)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetByIDMissing(t *testing.T) {
	r := setupRepo(t)

	got, err := r.GetByID(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, got)
}
