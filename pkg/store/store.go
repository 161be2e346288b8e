package store

import (
	"errors"
	"time"

	"booktracker/pkg/domain"
)

var (
	// ErrNotFound is returned when a scoped lookup inside a mutation finds no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("record already exists")
)

// Store defines persistence operations for users, books, progress and reviews.
// Lookups return (value, found, err); a missing row is not an error.
type Store interface {
	// users
	CreateUser(domain.User) (domain.User, error)
	HasUsername(username string) (bool, error)
	HasUserEmail(email string) (bool, error)
	GetUserByUsername(username string) (domain.User, bool, error)
	GetUserByID(id int64) (domain.User, bool, error)

	// books
	CreateBook(domain.Book) (domain.Book, error)
	UpdateBook(domain.Book) (domain.Book, error)
	GetBook(id int64) (domain.Book, bool, error)
	GetOwnedBook(ownerID, id int64) (domain.Book, bool, error)
	ListBooksByOwner(ownerID int64) ([]domain.Book, error)
	DeleteBook(id int64) error

	// progress
	UpsertProgress(userID, bookID int64, currentPage int, updatedAt time.Time) (domain.ReadingProgress, error)
	GetProgress(userID, bookID int64) (domain.ReadingProgress, bool, error)

	// reviews
	CreateReview(domain.Review) (domain.Review, error)
	ListReviewsByBook(bookID int64) ([]domain.Review, error)
}

// SessionStore issues and resolves bearer tokens bound to a subject.
type SessionStore interface {
	NewSession(subject string) (string, error)
	SubjectFromToken(token string) (string, error)
	DeleteSession(token string) error
}
