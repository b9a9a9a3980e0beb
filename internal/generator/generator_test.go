package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pavelanni/examgen/internal/examjson"
	"github.com/pavelanni/examgen/internal/extract"
	"github.com/pavelanni/examgen/internal/model"
)

const validExamJSON = `[
{"question": "What colour is the car?", "options": ["Blue", "Yellow"], "correct_answer": "Yellow"},
{"question": "The sky is blue?", "options": ["True", "False"], "correct_answer": "True"}
]`

type fakeStore struct {
	objects  map[string][]byte
	metadata map[string]map[string]string
	putErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:  make(map[string][]byte),
		metadata: make(map[string]map[string]string),
	}
}

func (s *fakeStore) key(bucket, key string) string { return bucket + "/" + key }

func (s *fakeStore) Get(bucket, key string) ([]byte, map[string]string, error) {
	data, ok := s.objects[s.key(bucket, key)]
	if !ok {
		return nil, nil, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return data, s.metadata[s.key(bucket, key)], nil
}

func (s *fakeStore) Put(bucket, key string, data []byte, metadata map[string]string) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[s.key(bucket, key)] = data
	s.metadata[s.key(bucket, key)] = metadata
	return nil
}

type fakeInvoker struct {
	responses []string
	prompts   []string
	err       error
}

func (f *fakeInvoker) Invoke(_ context.Context, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.prompts = append(f.prompts, prompt)
	if len(f.responses) == 0 {
		return "", fmt.Errorf("no scripted response left")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

type fakePublisher struct {
	topics   []string
	subjects []string
	bodies   []string
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, topic, subject, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.topics = append(f.topics, topic)
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, body)
	return "msg-1", nil
}

func plainTextExtractor(data []byte) (string, error) {
	return string(data), nil
}

func newTestGenerator(store *fakeStore, inv *fakeInvoker, pub *fakePublisher) *Generator {
	return New(store, inv, pub, WithExtractor(plainTextExtractor))
}

func uploadEvent(metadata map[string]string) model.BlobEvent {
	return model.BlobEvent{Bucket: "exam-gen", Key: "exams/biology.pdf", Metadata: metadata}
}

func TestHandleUploadHappyPath(t *testing.T) {
	store := newFakeStore()
	store.objects["exam-gen/exams/biology.pdf"] = []byte("chapter one: photosynthesis")
	inv := &fakeInvoker{responses: []string{"free-form model prose about questions", "Sure! " + validExamJSON}}
	pub := &fakePublisher{}

	g := newTestGenerator(store, inv, pub)
	ev := uploadEvent(map[string]string{"n_mcq": "1", "n_tfq": "1", "n_mcq_options": "2"})
	if err := g.HandleUpload(context.Background(), ev); err != nil {
		t.Fatalf("HandleUpload: %v", err)
	}

	// Two sequential model calls: the coercion prompt embeds the first response.
	if len(inv.prompts) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(inv.prompts))
	}
	if !strings.Contains(inv.prompts[0], "chapter one: photosynthesis") {
		t.Error("generation prompt should embed the extracted text")
	}
	if !strings.Contains(inv.prompts[1], "free-form model prose about questions") {
		t.Error("coercion prompt should embed the first response")
	}

	// Picked up the requested counts, not the defaults.
	if !strings.Contains(inv.prompts[0], "Generate 1 true/false and 1 multiple-choice") {
		t.Error("generation prompt should embed the metadata counts")
	}

	// Artifact persisted under the derived name as a valid exam.
	data, ok := store.objects["exam-gen/questions_bank/biology.json"]
	if !ok {
		t.Fatal("expected artifact at questions_bank/biology.json")
	}
	var exam model.Exam
	if err := json.Unmarshal(data, &exam); err != nil {
		t.Fatalf("artifact is not valid JSON: %v", err)
	}
	if len(exam) != 2 || exam[0].CorrectAnswer != "Yellow" {
		t.Errorf("unexpected artifact content: %+v", exam)
	}

	if len(pub.topics) != 1 || pub.topics[0] != "exam.generated" {
		t.Errorf("expected one exam.generated notification, got %v", pub.topics)
	}
}

func TestHandleUploadDefaultsWithoutMetadata(t *testing.T) {
	store := newFakeStore()
	store.objects["exam-gen/exams/biology.pdf"] = []byte("study text")
	inv := &fakeInvoker{responses: []string{"raw", validExamJSON}}

	g := newTestGenerator(store, inv, &fakePublisher{})
	if err := g.HandleUpload(context.Background(), uploadEvent(nil)); err != nil {
		t.Fatalf("HandleUpload: %v", err)
	}
	if !strings.Contains(inv.prompts[0], "Generate 3 true/false and 5 multiple-choice") {
		t.Error("missing metadata should yield the default parameter set")
	}
}

func TestHandleUploadFallsBackToStoredMetadata(t *testing.T) {
	store := newFakeStore()
	store.objects["exam-gen/exams/biology.pdf"] = []byte("study text")
	store.metadata["exam-gen/exams/biology.pdf"] = map[string]string{"n_mcq": "2", "n_tfq": "1", "n_mcq_options": "3"}
	inv := &fakeInvoker{responses: []string{"raw", validExamJSON}}

	g := newTestGenerator(store, inv, &fakePublisher{})
	if err := g.HandleUpload(context.Background(), uploadEvent(nil)); err != nil {
		t.Fatalf("HandleUpload: %v", err)
	}
	if !strings.Contains(inv.prompts[0], "Generate 1 true/false and 2 multiple-choice") {
		t.Error("stored object metadata should parameterize generation when the event carries none")
	}
}

func TestHandleUploadExtractionFailureAborts(t *testing.T) {
	store := newFakeStore()
	store.objects["exam-gen/exams/biology.pdf"] = []byte("not a document")
	inv := &fakeInvoker{responses: []string{"raw", validExamJSON}}
	pub := &fakePublisher{}

	g := New(store, inv, pub, WithExtractor(func([]byte) (string, error) {
		return "", &extract.ExtractionError{Cause: errors.New("unreadable")}
	}))

	err := g.HandleUpload(context.Background(), uploadEvent(nil))
	if err == nil {
		t.Fatal("expected error")
	}
	var extErr *extract.ExtractionError
	if !errors.As(err, &extErr) {
		t.Errorf("expected ExtractionError, got %v", err)
	}
	if len(inv.prompts) != 0 {
		t.Error("no model call may happen after extraction failure")
	}
	if _, ok := store.objects["exam-gen/questions_bank/biology.json"]; ok {
		t.Error("no artifact may be written after extraction failure")
	}
	if len(pub.topics) != 0 {
		t.Error("no notification may be sent after extraction failure")
	}
}

func TestHandleUploadMalformedOutputAborts(t *testing.T) {
	store := newFakeStore()
	store.objects["exam-gen/exams/biology.pdf"] = []byte("study text")
	inv := &fakeInvoker{responses: []string{"raw", "the model apologized instead of answering"}}
	pub := &fakePublisher{}

	g := newTestGenerator(store, inv, pub)
	err := g.HandleUpload(context.Background(), uploadEvent(nil))
	if err == nil {
		t.Fatal("expected error")
	}
	var malformed *examjson.MalformedExamError
	if !errors.As(err, &malformed) {
		t.Errorf("expected MalformedExamError, got %v", err)
	}
	if _, ok := store.objects["exam-gen/questions_bank/biology.json"]; ok {
		t.Error("no artifact may be written for malformed output")
	}
	if len(pub.topics) != 0 {
		t.Error("no notification may be sent for malformed output")
	}
}

func TestHandleUploadPersistFailureSurfaces(t *testing.T) {
	store := newFakeStore()
	store.objects["exam-gen/exams/biology.pdf"] = []byte("study text")
	store.putErr = errors.New("disk full")
	inv := &fakeInvoker{responses: []string{"raw", validExamJSON}}

	g := newTestGenerator(store, inv, &fakePublisher{})
	err := g.HandleUpload(context.Background(), uploadEvent(nil))
	if err == nil || !strings.Contains(err.Error(), "persist exam") {
		t.Fatalf("expected persist failure to surface, got %v", err)
	}
}

func TestHandleUploadNotifyFailureDoesNotFail(t *testing.T) {
	store := newFakeStore()
	store.objects["exam-gen/exams/biology.pdf"] = []byte("study text")
	inv := &fakeInvoker{responses: []string{"raw", validExamJSON}}
	pub := &fakePublisher{err: errors.New("broker down")}

	g := newTestGenerator(store, inv, pub)
	if err := g.HandleUpload(context.Background(), uploadEvent(nil)); err != nil {
		t.Fatalf("notification failure must not fail the request: %v", err)
	}
	if _, ok := store.objects["exam-gen/questions_bank/biology.json"]; !ok {
		t.Error("artifact must remain persisted when notification fails")
	}
}

func TestExamName(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"exams/biology.pdf", "biology"},
		{"exams/my.notes.pdf", "my.notes"},
		{"uploads/history", "history"},
		{"plain.pdf", "plain"},
	}
	for _, tt := range tests {
		if got := ExamName(tt.key); got != tt.want {
			t.Errorf("ExamName(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
