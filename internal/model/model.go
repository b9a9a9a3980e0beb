package model

import (
	"fmt"
	"strconv"
)

// Metadata keys attached to uploaded documents by the generate frontend.
const (
	MetaMCQCount       = "n_mcq"
	MetaTFQCount       = "n_tfq"
	MetaMCQOptionCount = "n_mcq_options"
)

// Question is a single assessment item, either multiple-choice or true/false.
// True/false questions are ordinary questions whose options are "True" and "False".
type Question struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
}

// Validate checks the structural invariants of a question: non-empty text,
// at least two unique options, and a correct answer that literally matches
// one of the options.
func (q Question) Validate() error {
	if q.Question == "" {
		return fmt.Errorf("question text is empty")
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("question %q has %d options, need at least 2", q.Question, len(q.Options))
	}
	seen := make(map[string]bool, len(q.Options))
	for _, opt := range q.Options {
		if seen[opt] {
			return fmt.Errorf("question %q has duplicate option %q", q.Question, opt)
		}
		seen[opt] = true
	}
	if !seen[q.CorrectAnswer] {
		return fmt.Errorf("question %q: correct answer %q is not one of the options", q.Question, q.CorrectAnswer)
	}
	return nil
}

// Exam is an ordered sequence of questions generated from one source document.
// The order is generation order and defines question numbering; it is preserved
// through storage and delivery.
type Exam []Question

// Validate checks every question in the exam.
func (e Exam) Validate() error {
	for i, q := range e {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}
	}
	return nil
}

// ExamParams controls how many questions of each kind the generator asks for.
type ExamParams struct {
	MCQCount       int
	TFQCount       int
	MCQOptionCount int
}

// DefaultExamParams are used whenever upload metadata is absent or malformed.
func DefaultExamParams() ExamParams {
	return ExamParams{MCQCount: 5, TFQCount: 3, MCQOptionCount: 4}
}

// ParamsFromMetadata reads exam parameters from upload metadata. If any field
// is missing, unparseable, or out of range, the entire default set is returned;
// there is no partial merge.
func ParamsFromMetadata(metadata map[string]string) ExamParams {
	mcq, err := strconv.Atoi(metadata[MetaMCQCount])
	if err != nil || mcq < 0 {
		return DefaultExamParams()
	}
	tfq, err := strconv.Atoi(metadata[MetaTFQCount])
	if err != nil || tfq < 0 {
		return DefaultExamParams()
	}
	opts, err := strconv.Atoi(metadata[MetaMCQOptionCount])
	if err != nil || opts < 2 {
		return DefaultExamParams()
	}
	return ExamParams{MCQCount: mcq, TFQCount: tfq, MCQOptionCount: opts}
}

// BlobEvent describes an uploaded document arriving in the object store.
// The key's first path segment is the logical upload directory and the second
// segment, minus its extension, is the document base name.
type BlobEvent struct {
	Bucket   string            `json:"bucket"`
	Key      string            `json:"key"`
	Metadata map[string]string `json:"metadata"`
}

// AnswerDetail records one question's outcome in a completed attempt.
type AnswerDetail struct {
	Question      string `json:"question"`
	UserAnswer    string `json:"user_answer"`
	CorrectAnswer string `json:"correct_answer"`
	IsCorrect     bool   `json:"is_correct"`
}

// Attempt outcomes.
const (
	ResultPassed = "passed"
	ResultFailed = "failed"
)

// AttemptResult is one learner's completed run through an exam. It is created
// once per attempt and never mutated after persistence.
type AttemptResult struct {
	Email   string         `json:"email"`
	Score   int            `json:"score"`
	Result  string         `json:"result"`
	Details []AnswerDetail `json:"details"`
}

// ChangeKind distinguishes insert and update change-feed events. Consumers
// must treat both identically.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
)

// ChangeEvent is delivered for each modified attempt record and carries the
// full new record image.
type ChangeEvent struct {
	Kind    ChangeKind    `json:"kind"`
	Attempt AttemptResult `json:"attempt"`
}
