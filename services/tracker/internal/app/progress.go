package app

import (
	"errors"
	"fmt"

	"booktracker/pkg/domain"
	"booktracker/pkg/store"
)

// UpdateProgress records the caller's current page in one of their books.
// A second call for the same book overwrites the first.
func (a *App) UpdateProgress(owner domain.User, bookID int64, currentPage int) (domain.ReadingProgress, error) {
	if currentPage < 0 {
		return domain.ReadingProgress{}, invalidf("current_page must not be negative")
	}
	progress, err := a.store.UpsertProgress(owner.ID, bookID, currentPage, a.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ReadingProgress{}, ErrBookNotFound
		}
		return domain.ReadingProgress{}, fmt.Errorf("upsert progress: %w", err)
	}
	return progress, nil
}

// GetProgress returns the caller's progress in a book, or a zero-valued
// placeholder (id 0, page 0, not finished) when none was recorded.
func (a *App) GetProgress(owner domain.User, bookID int64) (domain.ReadingProgress, error) {
	progress, ok, err := a.store.GetProgress(owner.ID, bookID)
	if err != nil {
		return domain.ReadingProgress{}, fmt.Errorf("fetch progress: %w", err)
	}
	if !ok {
		return domain.ReadingProgress{
			UserID:    owner.ID,
			BookID:    bookID,
			UpdatedAt: a.now().UTC(),
		}, nil
	}
	return progress, nil
}
