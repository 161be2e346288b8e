package domain

import "time"

// User is a registered account. The password hash never leaves the server.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Book is a title tracked by exactly one owner.
type Book struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"owner_id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Description string    `json:"description,omitempty"`
	TotalPages  int       `json:"total_pages"`
	PDFPath     string    `json:"pdf_path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasPDF reports whether a PDF object is attached to the book.
func (b Book) HasPDF() bool {
	return b.PDFPath != ""
}

// ReadingProgress is the reader's position in a book. ID is zero for the
// placeholder returned before any progress was recorded.
type ReadingProgress struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	BookID      int64     `json:"book_id"`
	CurrentPage int       `json:"current_page"`
	IsFinished  bool      `json:"is_finished"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Finished reports whether currentPage reaches the end of a book with
// totalPages pages.
func Finished(currentPage, totalPages int) bool {
	return currentPage >= totalPages
}

// Review is a rating with optional text. A user may review a book many times.
type Review struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	BookID    int64     `json:"book_id"`
	Rating    int       `json:"rating"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
