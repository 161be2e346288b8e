package pdftest

import (
	"bytes"
	"testing"

	"github.com/ledongthuc/pdf"
)

func TestMinimalParses(t *testing.T) {
	for _, pages := range []int{1, 3} {
		data := Minimal(pages)
		if !bytes.HasSuffix(data, []byte("%%EOF\n")) {
			t.Fatalf("missing %%%%EOF trailer")
		}
		r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			t.Fatalf("parse %d-page pdf: %v", pages, err)
		}
		if got := r.NumPage(); got != pages {
			t.Fatalf("pages = %d, want %d", got, pages)
		}
	}
}
