// Package analyzer adapts the remote credit report analyzer: an upload gate,
// an HTTP client and a Redis-backed result cache.
package analyzer

import (
	"bytes"
	"fmt"
	"net/http"
)

// MaxReportBytes is the largest report the analyzer accepts.
const MaxReportBytes = 10 << 20

var pdfMagic = []byte("%PDF-")

// UnsupportedFormatError rejects uploads that are not PDF documents.
type UnsupportedFormatError struct {
	ContentType string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("analyzer: unsupported format %q (PDF required)", e.ContentType)
}

// SizeLimitError rejects uploads over MaxReportBytes.
type SizeLimitError struct {
	Size  int64
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("analyzer: report is %d bytes, limit is %d", e.Size, e.Limit)
}

// Check applies the upload gate.
func Check(pdf []byte) error {
	if int64(len(pdf)) > MaxReportBytes {
		return &SizeLimitError{Size: int64(len(pdf)), Limit: MaxReportBytes}
	}
	head := pdf
	if len(head) > 1024 {
		head = head[:1024]
	}
	// Some generators emit a BOM or whitespace before the header.
	if !bytes.HasPrefix(bytes.TrimLeft(head, "\xef\xbb\xbf \t\r\n"), pdfMagic) {
		return &UnsupportedFormatError{ContentType: http.DetectContentType(pdf)}
	}
	return nil
}
