package model

import (
	"strings"
	"testing"
)

func TestQuestionValidate(t *testing.T) {
	tests := []struct {
		name    string
		q       Question
		wantErr string
	}{
		{
			"valid mcq",
			Question{Question: "Capital of France?", Options: []string{"Paris", "Brussels", "Dublin", "London"}, CorrectAnswer: "Paris"},
			"",
		},
		{
			"valid true/false",
			Question{Question: "The sky is blue?", Options: []string{"True", "False"}, CorrectAnswer: "True"},
			"",
		},
		{
			"empty text",
			Question{Options: []string{"A", "B"}, CorrectAnswer: "A"},
			"empty",
		},
		{
			"single option",
			Question{Question: "Q", Options: []string{"A"}, CorrectAnswer: "A"},
			"at least 2",
		},
		{
			"duplicate options",
			Question{Question: "Q", Options: []string{"A", "A", "B"}, CorrectAnswer: "B"},
			"duplicate option",
		},
		{
			"answer not among options",
			Question{Question: "Q", Options: []string{"A", "B"}, CorrectAnswer: "C"},
			"not one of the options",
		},
		{
			"answer must match literally",
			Question{Question: "Q", Options: []string{"Paris", "London"}, CorrectAnswer: "paris"},
			"not one of the options",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestExamValidateReportsPosition(t *testing.T) {
	exam := Exam{
		{Question: "ok", Options: []string{"A", "B"}, CorrectAnswer: "A"},
		{Question: "bad", Options: []string{"A", "B"}, CorrectAnswer: "Z"},
	}
	err := exam.Validate()
	if err == nil {
		t.Fatal("expected error for invalid second question")
	}
	if !strings.Contains(err.Error(), "question 2") {
		t.Errorf("error should name the failing question: %v", err)
	}
}

func TestParamsFromMetadata(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]string
		want     ExamParams
	}{
		{"nil metadata", nil, DefaultExamParams()},
		{"empty metadata", map[string]string{}, DefaultExamParams()},
		{
			"all present",
			map[string]string{"n_mcq": "7", "n_tfq": "2", "n_mcq_options": "5"},
			ExamParams{MCQCount: 7, TFQCount: 2, MCQOptionCount: 5},
		},
		{
			"zero counts are legal",
			map[string]string{"n_mcq": "0", "n_tfq": "0", "n_mcq_options": "2"},
			ExamParams{MCQCount: 0, TFQCount: 0, MCQOptionCount: 2},
		},
		{
			"one field missing falls back entirely",
			map[string]string{"n_mcq": "7", "n_tfq": "2"},
			DefaultExamParams(),
		},
		{
			"unparseable field falls back entirely",
			map[string]string{"n_mcq": "seven", "n_tfq": "2", "n_mcq_options": "4"},
			DefaultExamParams(),
		},
		{
			"negative count falls back entirely",
			map[string]string{"n_mcq": "-1", "n_tfq": "2", "n_mcq_options": "4"},
			DefaultExamParams(),
		},
		{
			"option count below two falls back entirely",
			map[string]string{"n_mcq": "5", "n_tfq": "2", "n_mcq_options": "1"},
			DefaultExamParams(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParamsFromMetadata(tt.metadata)
			if got != tt.want {
				t.Errorf("ParamsFromMetadata() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExamToCSV(t *testing.T) {
	exam := Exam{
		{Question: "Capital of France?", Options: []string{"Paris", "Brussels", "Dublin", "London"}, CorrectAnswer: "Paris"},
		{Question: "The sky is blue?", Options: []string{"True", "False"}, CorrectAnswer: "True"},
	}

	data, err := ExamToCSV(exam)
	if err != nil {
		t.Fatalf("ExamToCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "Question,Option A,Option B,Option C,Option D,Correct Answer" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	// True/false row padded to the widest option count.
	if lines[2] != "The sky is blue?,True,False,,,True" {
		t.Errorf("unexpected padded row: %q", lines[2])
	}
}

func TestExamToCSVEmpty(t *testing.T) {
	if _, err := ExamToCSV(nil); err == nil {
		t.Fatal("expected error for empty exam")
	}
}
