package app

import (
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// pdfPageCount parses the document and returns its page count. The parser
// panics on some malformed input, so panics are reported as errors.
func pdfPageCount(r io.ReaderAt, size int64) (pages int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pages = 0
			err = fmt.Errorf("parse pdf: %v", rec)
		}
	}()
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return 0, fmt.Errorf("parse pdf: %w", err)
	}
	pages = reader.NumPage()
	if pages <= 0 {
		return 0, fmt.Errorf("parse pdf: document has no pages")
	}
	return pages, nil
}
