// Package prompts builds the two model prompts of the generation pipeline:
// the content-generation instruction and the format-coercion instruction.
// Both builders are pure; templates are embedded and parsed once.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"

	"github.com/pavelanni/examgen/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

// canonicalExample is the target shape the coercion stage rewrites model
// output into. The retrieval and quiz layers parse exactly this schema.
const canonicalExample = `[
{
    "question": "What is the colour of the car in the book?",
    "options": ["Blue", "Green", "Yellow", "Grey"],
    "correct_answer": "Yellow"
},
{
    "question": "What is the capital of France?",
    "options": ["Paris", "Brussels", "Dublin", "London"],
    "correct_answer": "Paris"
},
{
    "question": "The sky is blue?",
    "options": ["True", "False"],
    "correct_answer": "True"
}
]`

var (
	examBookTagRegex = regexp.MustCompile(`(?i)</?\s*exam[_-]?book\b[^>]*>`)
	responseTagRegex = regexp.MustCompile(`(?i)</?\s*response\b[^>]*>`)
)

var (
	loadOnce       sync.Once
	loadErr        error
	generationTmpl *template.Template
	coercionTmpl   *template.Template
)

func load() error {
	loadOnce.Do(func() {
		generationTmpl, loadErr = template.ParseFS(templateFS, "templates/generation.txt")
		if loadErr != nil {
			loadErr = fmt.Errorf("parse generation template: %w", loadErr)
			return
		}
		coercionTmpl, loadErr = template.ParseFS(templateFS, "templates/coercion.txt")
		if loadErr != nil {
			loadErr = fmt.Errorf("parse coercion template: %w", loadErr)
		}
	})
	return loadErr
}

// generationData holds template data for the generation prompt.
type generationData struct {
	MCQCount        int
	TFQCount        int
	MCQOptionCount  int
	DistractorCount int
	Text            string
}

// coercionData holds template data for the coercion prompt.
type coercionData struct {
	Example string
	Raw     string
}

// BuildGeneration builds the content-generation prompt. The document text is
// embedded verbatim between <exam_book> tags; any literal occurrence of those
// tags inside the text is stripped so the delimiter pair cannot be forged.
// Question types with a zero count are omitted from the instructions entirely.
func BuildGeneration(text string, p model.ExamParams) (string, error) {
	if err := load(); err != nil {
		return "", err
	}

	data := generationData{
		MCQCount:        p.MCQCount,
		TFQCount:        p.TFQCount,
		MCQOptionCount:  p.MCQOptionCount,
		DistractorCount: p.MCQOptionCount - 1,
		Text:            sanitizeDocument(text),
	}

	var buf bytes.Buffer
	if err := generationTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute generation template: %w", err)
	}
	return buf.String(), nil
}

// BuildCoercion builds the format-coercion prompt that rewrites the first
// model call's free-form output into the canonical JSON array shape.
func BuildCoercion(raw string) (string, error) {
	if err := load(); err != nil {
		return "", err
	}

	data := coercionData{
		Example: canonicalExample,
		Raw:     strings.TrimSpace(responseTagRegex.ReplaceAllString(raw, "")),
	}

	var buf bytes.Buffer
	if err := coercionTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute coercion template: %w", err)
	}
	return buf.String(), nil
}

// CanonicalExample returns the target JSON array shape embedded in the
// coercion prompt.
func CanonicalExample() string {
	return canonicalExample
}

func sanitizeDocument(text string) string {
	return strings.TrimSpace(examBookTagRegex.ReplaceAllString(text, ""))
}
