// Package pdftest builds small PDF documents for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

// Minimal returns a valid PDF with the given number of blank pages.
func Minimal(pages int) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	count := pages + 2
	offsets := make([]int, count+1)
	writeObj := func(id int, body string) {
		offsets[id] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", id, body)
	}
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		writeObj(i+3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", count+1)
	buf.WriteString("0000000000 65535 f \n")
	for id := 1; id <= count; id++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[id])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n", count+1, xref)
	buf.WriteString("%%EOF\n")
	return buf.Bytes()
}
