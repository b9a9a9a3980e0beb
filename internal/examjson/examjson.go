// Package examjson locates and validates the JSON exam array embedded in
// free-form model output.
package examjson

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pavelanni/examgen/internal/model"
)

// MalformedExamError reports that coerced model output still does not parse
// into a valid question array. The request is fatal; no artifact is written.
type MalformedExamError struct {
	Reason string
	Cause  error
}

func (e *MalformedExamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed exam output: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("malformed exam output: %s", e.Reason)
}

func (e *MalformedExamError) Unwrap() error { return e.Cause }

// Extract locates the first '[' in text, takes the substring from there to
// the end, strips trailing code-fence markers, and parses the result as a
// question array. Every element must satisfy the question invariants.
// Running Extract on already-well-formed JSON yields the same parsed array.
func Extract(text string) (model.Exam, error) {
	start := strings.Index(text, "[")
	if start < 0 {
		return nil, &MalformedExamError{Reason: "no JSON array found in output"}
	}

	payload := strings.TrimSpace(text[start:])
	payload = strings.TrimSuffix(payload, "```")
	payload = strings.TrimSpace(payload)

	var exam model.Exam
	if err := json.Unmarshal([]byte(payload), &exam); err != nil {
		return nil, &MalformedExamError{Reason: "output does not parse as a JSON array", Cause: err}
	}
	if len(exam) == 0 {
		return nil, &MalformedExamError{Reason: "exam array is empty"}
	}
	if err := exam.Validate(); err != nil {
		return nil, &MalformedExamError{Reason: "question invariant violated", Cause: err}
	}
	return exam, nil
}
