package examjson

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

const wellFormed = `[
{"question": "2+2", "options": ["3", "4"], "correct_answer": "4"},
{"question": "Sky blue?", "options": ["True", "False"], "correct_answer": "True"}
]`

func TestExtractWellFormed(t *testing.T) {
	exam, err := Extract(wellFormed)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(exam) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(exam))
	}
	if exam[0].Question != "2+2" || exam[0].CorrectAnswer != "4" {
		t.Errorf("unexpected first question: %+v", exam[0])
	}
	if exam[1].Options[1] != "False" {
		t.Errorf("option order not preserved: %+v", exam[1].Options)
	}
}

func TestExtractTrimsProseAndFences(t *testing.T) {
	text := "Sure! ```json\n" + wellFormed + "\n```"
	exam, err := Extract(text)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(exam) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(exam))
	}
}

func TestExtractIdempotent(t *testing.T) {
	first, err := Extract(wellFormed)
	if err != nil {
		t.Fatalf("first Extract: %v", err)
	}

	// Re-running the stage on its own serialized output must not change it.
	data, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second, err := Extract(string(data))
	if err != nil {
		t.Fatalf("second Extract: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Extract is not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestExtractFailures(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		reason string
	}{
		{"no array", "the model refused to answer", "no JSON array"},
		{"unparseable", "[{not json}]", "does not parse"},
		{"not an array of questions", `["just", "strings"]`, "does not parse"},
		{"empty array", "[]", "empty"},
		{
			"answer not in options",
			`[{"question": "Q", "options": ["A", "B"], "correct_answer": "C"}]`,
			"invariant",
		},
		{
			"too few options",
			`[{"question": "Q", "options": ["A"], "correct_answer": "A"}]`,
			"invariant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.text)
			if err == nil {
				t.Fatal("expected error")
			}
			var malformed *MalformedExamError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected *MalformedExamError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.reason) {
				t.Errorf("error %q should mention %q", err, tt.reason)
			}
		})
	}
}

func TestExtractValidatesEveryElement(t *testing.T) {
	text := `[
{"question": "ok", "options": ["A", "B"], "correct_answer": "A"},
{"question": "bad", "options": ["A", "B"], "correct_answer": "Z"}
]`
	_, err := Extract(text)
	var malformed *MalformedExamError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected *MalformedExamError, got %v", err)
	}
}

func TestExtractPreservesOrder(t *testing.T) {
	text := `[
{"question": "first", "options": ["A", "B"], "correct_answer": "A"},
{"question": "second", "options": ["A", "B"], "correct_answer": "B"},
{"question": "third", "options": ["True", "False"], "correct_answer": "False"}
]`
	exam, err := Extract(text)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := []string{"first", "second", "third"}
	for i, q := range exam {
		if q.Question != want[i] {
			t.Errorf("question %d: got %q, want %q", i, q.Question, want[i])
		}
	}
}
