// Package extract pulls plain text out of uploaded PDF documents.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractionError reports that an uploaded blob could not be read as a
// document of the supported format. Generation must not proceed on it.
type ExtractionError struct {
	Cause error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract document text: %v", e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// Text extracts the plain text of an in-memory PDF blob. Pages are
// concatenated in order, separated by newlines. The blob is never written
// to disk.
func Text(data []byte) (text string, err error) {
	// The PDF parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &ExtractionError{Cause: fmt.Errorf("malformed document: %v", r)}
		}
	}()

	if len(data) == 0 {
		return "", &ExtractionError{Cause: fmt.Errorf("empty document")}
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractionError{Cause: err}
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", &ExtractionError{Cause: fmt.Errorf("page %d: %w", i, err)}
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}

	return sb.String(), nil
}
