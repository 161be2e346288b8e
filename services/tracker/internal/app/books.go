package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"booktracker/internal/util"
	"booktracker/pkg/domain"
	"booktracker/pkg/storage"
	"booktracker/pkg/store"
)

const pdfContentType = "application/pdf"

// UploadFile is an uploaded file that can be parsed in place and then
// streamed to storage. multipart.File satisfies it.
type UploadFile interface {
	io.Reader
	io.ReaderAt
	io.Seeker
}

// PDFUpload is a PDF attached to a new book.
type PDFUpload struct {
	Filename string
	File     UploadFile
	Size     int64
}

// NewBook is the input of CreateBook. TotalPages may be zero only when a
// PDF is attached; its page count is used instead.
type NewBook struct {
	Title       string     `json:"title"`
	Author      string     `json:"author"`
	Description string     `json:"description,omitempty"`
	TotalPages  int        `json:"total_pages"`
	PDF         *PDFUpload `json:"-"`
}

// BookUpdate replaces the editable fields of a book.
type BookUpdate struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description,omitempty"`
	TotalPages  int    `json:"total_pages"`
}

// CreateBook stores the optional PDF and then the book row. When the row
// cannot be saved the stored PDF is removed again.
func (a *App) CreateBook(ctx context.Context, owner domain.User, in NewBook) (domain.Book, error) {
	title := strings.TrimSpace(in.Title)
	author := strings.TrimSpace(in.Author)
	if title == "" || author == "" {
		return domain.Book{}, invalidf("title and author required")
	}
	if in.TotalPages < 0 {
		return domain.Book{}, invalidf("total_pages must be positive")
	}
	book := domain.Book{
		OwnerID:     owner.ID,
		Title:       title,
		Author:      author,
		Description: strings.TrimSpace(in.Description),
		TotalPages:  in.TotalPages,
		CreatedAt:   a.now().UTC(),
	}

	if in.PDF != nil {
		pages, err := checkPDF(*in.PDF)
		if err != nil {
			return domain.Book{}, err
		}
		if book.TotalPages == 0 {
			book.TotalPages = pages
		}
	}
	if book.TotalPages <= 0 {
		return domain.Book{}, invalidf("total_pages must be positive")
	}

	if in.PDF != nil {
		key := storage.NewKey(in.PDF.Filename)
		if _, err := in.PDF.File.Seek(0, io.SeekStart); err != nil {
			return domain.Book{}, fmt.Errorf("rewind pdf: %w", err)
		}
		if err := a.objects.Put(ctx, key, in.PDF.File, in.PDF.Size, pdfContentType); err != nil {
			return domain.Book{}, fmt.Errorf("save pdf: %w", err)
		}
		book.PDFPath = key
	}

	saved, err := a.store.CreateBook(book)
	if err != nil {
		if book.PDFPath != "" {
			if delErr := a.objects.Delete(ctx, book.PDFPath); delErr != nil {
				util.LoggerFromContext(ctx).Warn("remove orphaned pdf failed", "key", book.PDFPath, "err", delErr)
			}
		}
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return saved, nil
}

func checkPDF(up PDFUpload) (int, error) {
	if up.File == nil || up.Size <= 0 {
		return 0, invalidf("pdf file is empty")
	}
	pages, err := pdfPageCount(up.File, up.Size)
	if err != nil {
		return 0, invalidf("pdf file is not a valid PDF")
	}
	return pages, nil
}

// ListBooks returns the books owned by owner.
func (a *App) ListBooks(owner domain.User) ([]domain.Book, error) {
	return a.store.ListBooksByOwner(owner.ID)
}

// GetBook returns a book owned by owner, or ErrBookNotFound.
func (a *App) GetBook(owner domain.User, id int64) (domain.Book, error) {
	book, ok, err := a.store.GetOwnedBook(owner.ID, id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}

// UpdateBook replaces title, author, description and total pages.
func (a *App) UpdateBook(owner domain.User, id int64, in BookUpdate) (domain.Book, error) {
	title := strings.TrimSpace(in.Title)
	author := strings.TrimSpace(in.Author)
	if title == "" || author == "" {
		return domain.Book{}, invalidf("title and author required")
	}
	if in.TotalPages <= 0 {
		return domain.Book{}, invalidf("total_pages must be positive")
	}
	book, err := a.store.UpdateBook(domain.Book{
		ID:          id,
		OwnerID:     owner.ID,
		Title:       title,
		Author:      author,
		Description: strings.TrimSpace(in.Description),
		TotalPages:  in.TotalPages,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Book{}, ErrBookNotFound
		}
		return domain.Book{}, fmt.Errorf("update book: %w", err)
	}
	return book, nil
}

// DeleteBook removes the book, its progress and reviews, then its PDF.
func (a *App) DeleteBook(ctx context.Context, owner domain.User, id int64) error {
	book, err := a.GetBook(owner, id)
	if err != nil {
		return err
	}
	if err := a.store.DeleteBook(book.ID); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if book.HasPDF() {
		if err := a.objects.Delete(ctx, book.PDFPath); err != nil {
			// The row is gone; a leftover object is only wasted space.
			util.LoggerFromContext(ctx).Warn("remove pdf failed", "book_id", book.ID, "key", book.PDFPath, "err", err)
		}
	}
	return nil
}

// OpenBookPDF opens the PDF attached to a book. viewer may be nil when
// downloads are public; otherwise the book must belong to viewer.
// The caller closes the returned reader.
func (a *App) OpenBookPDF(ctx context.Context, viewer *domain.User, id int64) (io.ReadCloser, string, error) {
	var (
		book domain.Book
		ok   bool
		err  error
	)
	switch {
	case a.publicPDFs:
		book, ok, err = a.store.GetBook(id)
	case viewer == nil:
		return nil, "", ErrUnauthorized
	default:
		book, ok, err = a.store.GetOwnedBook(viewer.ID, id)
	}
	if err != nil {
		return nil, "", fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return nil, "", ErrBookNotFound
	}
	if !book.HasPDF() {
		return nil, "", ErrPDFNotFound
	}
	rc, err := a.objects.Get(ctx, book.PDFPath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, "", ErrPDFNotFound
		}
		return nil, "", fmt.Errorf("open pdf: %w", err)
	}
	return rc, downloadName(book), nil
}

func downloadName(b domain.Book) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, b.Title)
	if name == "" {
		name = fmt.Sprintf("book-%d", b.ID)
	}
	return name + ".pdf"
}
