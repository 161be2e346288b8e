package app

import (
	"fmt"
	"strings"

	"booktracker/pkg/domain"
)

const (
	minRating = 1
	maxRating = 5
)

// NewReview is the input of CreateReview.
type NewReview struct {
	Rating int    `json:"rating"`
	Text   string `json:"text,omitempty"`
}

// CreateReview adds a review to a book owned by the caller. A user may
// review the same book any number of times.
func (a *App) CreateReview(owner domain.User, bookID int64, in NewReview) (domain.Review, error) {
	if in.Rating < minRating || in.Rating > maxRating {
		return domain.Review{}, invalidf("rating must be between %d and %d", minRating, maxRating)
	}
	if _, err := a.GetBook(owner, bookID); err != nil {
		return domain.Review{}, err
	}
	review, err := a.store.CreateReview(domain.Review{
		UserID:    owner.ID,
		BookID:    bookID,
		Rating:    in.Rating,
		Text:      strings.TrimSpace(in.Text),
		CreatedAt: a.now().UTC(),
	})
	if err != nil {
		return domain.Review{}, fmt.Errorf("create review: %w", err)
	}
	return review, nil
}

// ListReviews returns the reviews of a book owned by the caller, oldest first.
func (a *App) ListReviews(owner domain.User, bookID int64) ([]domain.Review, error) {
	if _, err := a.GetBook(owner, bookID); err != nil {
		return nil, err
	}
	reviews, err := a.store.ListReviewsByBook(bookID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}
