// Package generator drives one generation request from uploaded document to
// persisted exam: ingest, parameterize, generate, coerce, extract, persist,
// notify. Each invocation is an independent, stateless unit of work; within
// one invocation the steps run strictly in order.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/pavelanni/examgen/internal/examjson"
	"github.com/pavelanni/examgen/internal/extract"
	"github.com/pavelanni/examgen/internal/llm/prompts"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/notify"
)

// QuestionsBankPrefix is where generated exams live in the artifact store.
const QuestionsBankPrefix = "questions_bank/"

// defaultModelCallTimeout bounds each of the two model calls. Free-form
// generation over a whole document can run long.
const defaultModelCallTimeout = 5 * time.Minute

// ObjectStore is the object read/write collaborator.
type ObjectStore interface {
	Get(bucket, key string) (data []byte, metadata map[string]string, err error)
	Put(bucket, key string, data []byte, metadata map[string]string) error
}

// Invoker is the generative-model collaborator.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Invalidator is notified after an artifact is overwritten so stale cached
// copies are not served. Optional.
type Invalidator interface {
	InvalidateExam(ctx context.Context, name string) error
}

// Generator holds the injected collaborators, constructed once per process
// and reused across invocations.
type Generator struct {
	store    ObjectStore
	llm      Invoker
	notifier notify.Publisher
	cache    Invalidator

	extractText      func([]byte) (string, error)
	modelCallTimeout time.Duration
}

// Option configures a Generator.
type Option func(*Generator)

// WithModelCallTimeout overrides the per-call model timeout.
func WithModelCallTimeout(d time.Duration) Option {
	return func(g *Generator) { g.modelCallTimeout = d }
}

// WithCache registers a cache to invalidate after persisting an exam.
func WithCache(c Invalidator) Option {
	return func(g *Generator) { g.cache = c }
}

// WithExtractor replaces the document text extractor.
func WithExtractor(fn func([]byte) (string, error)) Option {
	return func(g *Generator) { g.extractText = fn }
}

// New creates a Generator.
func New(store ObjectStore, llm Invoker, notifier notify.Publisher, opts ...Option) *Generator {
	g := &Generator{
		store:            store,
		llm:              llm,
		notifier:         notifier,
		extractText:      extract.Text,
		modelCallTimeout: defaultModelCallTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// HandleUpload processes one blob-ingress event. On any failure before the
// persist step no artifact is written; the error surfaces to the invoking
// event system, which may redeliver the whole event. There is no in-process
// retry.
func (g *Generator) HandleUpload(ctx context.Context, ev model.BlobEvent) error {
	examName := ExamName(ev.Key)
	log := slog.With("bucket", ev.Bucket, "key", ev.Key, "exam", examName)
	log.Info("creating exam from uploaded document")

	// INGEST
	blob, metadata, err := g.store.Get(ev.Bucket, ev.Key)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	text, err := g.extractText(blob)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	// PARAMETERIZE: event metadata wins, falling back to the stored copy.
	meta := ev.Metadata
	if len(meta) == 0 {
		meta = metadata
	}
	params := model.ParamsFromMetadata(meta)
	log.Info("exam parameters", "mcq", params.MCQCount, "tfq", params.TFQCount, "mcq_options", params.MCQOptionCount)

	// GENERATE
	genPrompt, err := prompts.BuildGeneration(text, params)
	if err != nil {
		return err
	}
	raw, err := g.invoke(ctx, genPrompt)
	if err != nil {
		return fmt.Errorf("generation call: %w", err)
	}

	// COERCE: the first response's shape is not guaranteed; normalize it.
	coercePrompt, err := prompts.BuildCoercion(raw)
	if err != nil {
		return err
	}
	coerced, err := g.invoke(ctx, coercePrompt)
	if err != nil {
		return fmt.Errorf("coercion call: %w", err)
	}

	// EXTRACT-JSON
	exam, err := examjson.Extract(coerced)
	if err != nil {
		return err
	}

	// PERSIST: one complete object write, atomic from the reader's side.
	data, err := json.Marshal(exam)
	if err != nil {
		return fmt.Errorf("marshal exam: %w", err)
	}
	artifactKey := QuestionsBankPrefix + examName + ".json"
	if err := g.store.Put(ev.Bucket, artifactKey, data, nil); err != nil {
		return fmt.Errorf("persist exam: %w", err)
	}
	log.Info("exam persisted", "artifact", artifactKey, "questions", len(exam))

	if g.cache != nil {
		if err := g.cache.InvalidateExam(ctx, examName+".json"); err != nil {
			log.Warn("cache invalidation failed", "error", err)
		}
	}

	// NOTIFY: best effort, never rolls back the committed artifact.
	if _, err := g.notifier.Publish(ctx, notify.TopicExamGenerated, "Exam Generated", "Hello, Exam Generated"); err != nil {
		log.Error("exam-generated notification failed", "error", err)
	}

	return nil
}

func (g *Generator) invoke(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.modelCallTimeout)
	defer cancel()
	return g.llm.Invoke(callCtx, prompt)
}

// ExamName derives the artifact name from an upload key: the key's final
// path segment with its extension stripped.
func ExamName(key string) string {
	base := path.Base(key)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}
