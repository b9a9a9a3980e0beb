package model

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// ExamToCSV flattens an exam into CSV for download. The header is
// Question, Option A..Option <widest>, Correct Answer; rows with fewer
// options are padded with empty cells so every row has the same width.
func ExamToCSV(exam Exam) ([]byte, error) {
	if len(exam) == 0 {
		return nil, fmt.Errorf("exam has no questions")
	}

	maxOptions := 0
	for _, q := range exam {
		if len(q.Options) > maxOptions {
			maxOptions = len(q.Options)
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"Question"}
	for i := 0; i < maxOptions; i++ {
		header = append(header, fmt.Sprintf("Option %c", 'A'+i))
	}
	header = append(header, "Correct Answer")
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, q := range exam {
		row := append([]string{q.Question}, q.Options...)
		for len(row) < maxOptions+1 {
			row = append(row, "")
		}
		row = append(row, q.CorrectAnswer)
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
