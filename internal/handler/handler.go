// Package handler serves the exam retrieval API, document uploads, and
// attempt submissions.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examgen/internal/cache"
	"github.com/pavelanni/examgen/internal/generator"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/store"
)

// UploadPrefix is the logical directory uploaded documents are stored under.
const UploadPrefix = "exams/"

// maxUploadBytes bounds how large an uploaded document may be.
const maxUploadBytes = 32 << 20

// Storage is the slice of the store the handlers need.
type Storage interface {
	Get(bucket, key string) (data []byte, metadata map[string]string, err error)
	Put(bucket, key string, data []byte, metadata map[string]string) error
	List(bucket, prefix string) ([]string, error)
	PutAttempt(a model.AttemptResult) error
}

// UploadProcessor runs the generation pipeline for one uploaded document.
type UploadProcessor interface {
	HandleUpload(ctx context.Context, ev model.BlobEvent) error
}

// Config holds handler settings.
type Config struct {
	Bucket string
	// GenerationTimeout bounds one whole pipeline invocation.
	GenerationTimeout time.Duration
	// CacheTTL applies to exam artifacts cached on read.
	CacheTTL time.Duration
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  Storage
	gen    UploadProcessor
	cache  cache.Cache
	config Config
}

// New creates a new Handler. The cache may be nil, which disables caching.
func New(s Storage, gen UploadProcessor, c cache.Cache, cfg Config) *Handler {
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 15 * time.Minute
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &Handler{store: s, gen: gen, cache: c, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/exam", h.handleExam)
	r.Get("/exam/csv", h.handleExamCSV)
	r.Post("/upload", h.handleUpload)
	r.Post("/attempt", h.handleAttempt)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

// handleExam serves a single exam's raw stored JSON when object_name is
// given, and the list of available exam names (prefix stripped) otherwise.
func (h *Handler) handleExam(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("object_name")
	if name == "" {
		h.listExams(w)
		return
	}

	data, err := h.loadExam(r.Context(), name)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(data); err != nil {
		slog.Error("write exam response", "error", err)
	}
}

func (h *Handler) listExams(w http.ResponseWriter) {
	names, err := h.store.List(h.config.Bucket, generator.QuestionsBankPrefix)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

// loadExam reads an artifact through the cache, filling it on miss.
func (h *Handler) loadExam(ctx context.Context, name string) ([]byte, error) {
	if h.cache != nil {
		if data, err := h.cache.GetExam(ctx, name); err == nil {
			return data, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("exam cache read failed", "exam", name, "error", err)
		}
	}

	data, _, err := h.store.Get(h.config.Bucket, generator.QuestionsBankPrefix+name)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.SetExam(ctx, name, data, h.config.CacheTTL); err != nil {
			slog.Warn("exam cache write failed", "exam", name, "error", err)
		}
	}
	return data, nil
}

// handleExamCSV serves an exam flattened to CSV.
func (h *Handler) handleExamCSV(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("object_name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "object_name is required"})
		return
	}

	data, err := h.loadExam(r.Context(), name)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var exam model.Exam
	if err := json.Unmarshal(data, &exam); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: fmt.Sprintf("stored exam is not valid JSON: %v", err)})
		return
	}
	csvData, err := model.ExamToCSV(exam)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	if _, err := w.Write(csvData); err != nil {
		slog.Error("write csv response", "error", err)
	}
}

// handleUpload stores an uploaded document with its exam parameters as
// metadata and dispatches the generation pipeline for it. Generation runs
// after the response; its outcome is visible through the exam list.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("parse upload: %v", err)})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "file field is required"})
		return
	}
	defer file.Close()

	blob, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("read upload: %v", err)})
		return
	}

	metadata := map[string]string{
		model.MetaMCQCount:       r.FormValue(model.MetaMCQCount),
		model.MetaTFQCount:       r.FormValue(model.MetaTFQCount),
		model.MetaMCQOptionCount: r.FormValue(model.MetaMCQOptionCount),
	}

	key := UploadPrefix + header.Filename
	if err := h.store.Put(h.config.Bucket, key, blob, metadata); err != nil {
		writeStoreError(w, err)
		return
	}

	ev := model.BlobEvent{Bucket: h.config.Bucket, Key: key, Metadata: metadata}
	go h.generate(ev)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"exam": generator.ExamName(key),
	})
}

// generate runs one pipeline invocation with a bounded timeout. Failures are
// logged; the upload stays in place so the event can be redelivered by
// re-posting it.
func (h *Handler) generate(ev model.BlobEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.GenerationTimeout)
	defer cancel()
	if err := h.gen.HandleUpload(ctx, ev); err != nil {
		slog.Error("exam generation failed", "key", ev.Key, "error", err)
	}
}

// handleAttempt persists a completed attempt.
func (h *Handler) handleAttempt(w http.ResponseWriter, r *http.Request) {
	var attempt model.AttemptResult
	if err := json.NewDecoder(r.Body).Decode(&attempt); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("parse attempt: %v", err)})
		return
	}
	if attempt.Email == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "email is required"})
		return
	}
	if attempt.Result != model.ResultPassed && attempt.Result != model.ResultFailed {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "result must be passed or failed"})
		return
	}

	if err := h.store.PutAttempt(attempt); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}
