package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"flasharena/internal/models"
	"flasharena/internal/services"
	"flasharena/internal/synth"
)

const maxMultipartMemory = 8 << 20 // 8 MB

const previewChars = 1200

type Server struct {
	mux        *http.ServeMux
	documents  *services.DocumentService
	generation *services.GenerationService
	decks      *services.DeckService
	quiz       *services.QuizService
	jobs       *JobManager
}

func NewServer(
	documents *services.DocumentService,
	generation *services.GenerationService,
	decks *services.DeckService,
	quiz *services.QuizService,
) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		documents:  documents,
		generation: generation,
		decks:      decks,
		quiz:       quiz,
		jobs:       NewJobManager(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/documents", s.handleUploadDocument)
	s.mux.HandleFunc("/api/documents/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/documents/jobs/", s.handleJobStatus)
	s.mux.HandleFunc("/api/cards/generate", s.handleGenerateCards)
	s.mux.HandleFunc("/api/cards/", s.handleCardActions)
	s.mux.HandleFunc("/api/decks", s.handleListDecks)
	s.mux.HandleFunc("/api/decks/", s.handleDeckActions)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "flasharena"})
}

// handleUploadDocument stores a single PDF/TXT upload and returns its
// extracted text (preview by default, full text with include_text).
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	if form := r.MultipartForm; form != nil {
		defer form.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	doc, text, err := s.documents.Ingest(r.Context(), header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnsupportedFileType):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrNoExtractableText):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	payload := map[string]any{
		"documentId": doc.ID,
		"filename":   doc.OriginalName,
		"pages":      doc.PageCount,
		"chars":      doc.CharCount,
		"preview":    clip(text, previewChars),
	}
	if includeText(r) {
		payload["text"] = text
	}
	writeJSON(w, http.StatusOK, payload)
}

func includeText(r *http.Request) bool {
	v := r.URL.Query().Get("include_text")
	if v == "" {
		v = r.FormValue("include_text")
	}
	ok, err := strconv.ParseBool(v)
	return err == nil && ok
}

type generateRequest struct {
	Text       string `json:"text"`
	Name       string `json:"name"`
	Count      int    `json:"count"`
	Difficulty string `json:"difficulty"`
	Style      string `json:"style"`
}

// params fills omitted fields with defaults; explicitly invalid values are
// left intact so validation can reject them.
func (req generateRequest) params() synth.GenerationParams {
	p := synth.GenerationParams{
		Count:      req.Count,
		Difficulty: synth.Difficulty(req.Difficulty),
		Style:      synth.Style(req.Style),
	}
	if req.Count == 0 {
		p.Count = 10
	}
	if req.Difficulty == "" {
		p.Difficulty = synth.DifficultyMedium
	}
	if req.Style == "" {
		p.Style = synth.StyleMixed
	}
	return p
}

func (s *Server) handleGenerateCards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	params := req.params()
	if err := params.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.generation.Generate(r.Context(), req.Name, req.Text, params, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(result.Cards) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "could not generate cards from the provided text")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deck": map[string]any{
			"id":     result.Deck.ID,
			"name":   result.Deck.Name,
			"source": result.Deck.Source,
		},
		"cards":  result.Cards,
		"source": result.Source,
	})
}

type answerRequest struct {
	Answer string `json:"answer"`
}

// handleCardActions serves POST /api/cards/{id}/answer.
func (s *Server) handleCardActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/cards/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "answer" {
		http.NotFound(w, r)
		return
	}

	cardID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid card id")
		return
	}

	var payload answerRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	attempt, card, err := s.quiz.SubmitAnswer(r.Context(), cardID, payload.Answer)
	if err != nil {
		if errors.Is(err, services.ErrCardNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"result": map[string]any{
			"correct": attempt.Correct,
			"partial": attempt.Partial,
			"score":   attempt.Score,
			"skipped": attempt.Skipped,
		},
		"card": map[string]any{
			"id":    card.ID,
			"due":   nullTimeToString(card.Due),
			"state": card.State,
		},
	})
}

func (s *Server) handleListDecks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	decks, err := s.decks.ListDecks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]any, 0, len(decks))
	for _, deck := range decks {
		out = append(out, deckJSON(deck))
	}
	writeJSON(w, http.StatusOK, map[string]any{"decks": out})
}

// handleDeckActions serves GET /api/decks/{id}, /api/decks/{id}/next, and
// /api/decks/{id}/stats.
func (s *Server) handleDeckActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/decks/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	deckID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid deck id")
		return
	}

	switch {
	case len(parts) == 1:
		s.renderDeck(w, r, deckID)
	case len(parts) == 2 && parts[1] == "next":
		s.renderNextCard(w, r, deckID)
	case len(parts) == 2 && parts[1] == "stats":
		s.renderDeckStats(w, r, deckID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) renderDeck(w http.ResponseWriter, r *http.Request, deckID int64) {
	deck, cards, err := s.decks.GetDeck(r.Context(), deckID)
	if err != nil {
		if errors.Is(err, services.ErrDeckNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]any, 0, len(cards))
	for _, card := range cards {
		out = append(out, map[string]any{
			"id":    card.ID,
			"q":     card.Question,
			"a":     card.Answer,
			"due":   nullTimeToString(card.Due),
			"state": card.State,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deck":  deckJSON(*deck),
		"cards": out,
	})
}

func (s *Server) renderNextCard(w http.ResponseWriter, r *http.Request, deckID int64) {
	card, err := s.quiz.NextCard(r.Context(), deckID)
	if err != nil {
		if errors.Is(err, services.ErrNoDueCards) {
			writeJSON(w, http.StatusOK, map[string]any{
				"card":    nil,
				"message": "No cards due. Come back later!",
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// The answer stays server-side until graded.
	writeJSON(w, http.StatusOK, map[string]any{
		"card": map[string]any{
			"id":    card.ID,
			"q":     card.Question,
			"due":   nullTimeToString(card.Due),
			"state": card.State,
		},
	})
}

func (s *Server) renderDeckStats(w http.ResponseWriter, r *http.Request, deckID int64) {
	stats, err := s.quiz.DeckStats(r.Context(), deckID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/documents/jobs" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	s.handleCreateGenerationJob(w, r)
}

// handleCreateGenerationJob accepts a multipart batch of documents plus
// generation parameters and processes them asynchronously; clients poll the
// returned job for per-file progress.
func (s *Server) handleCreateGenerationJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	form := r.MultipartForm
	if form == nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	req := generateRequest{
		Difficulty: r.FormValue("difficulty"),
		Style:      r.FormValue("style"),
	}
	if v := r.FormValue("count"); v != "" {
		count, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid count")
			return
		}
		req.Count = count
	}
	params := req.params()
	if err := params.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fileNames := make([]string, len(files))
	for i, file := range files {
		fileNames[i] = file.Filename
	}

	// The request's multipart temp files are deleted once this handler
	// returns, so the worker gets its own copies.
	staged, cleanup, err := stageUploads(files)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store uploads")
		return
	}

	jobID, snapshot := s.jobs.CreateJob(fileNames)

	go s.runGenerationJob(context.Background(), jobID, params, staged, cleanup)

	writeJSON(w, http.StatusAccepted, snapshot)
}

// stagedUpload is a job's private copy of one uploaded file.
type stagedUpload struct {
	name string
	path string
}

func stageUploads(files []*multipart.FileHeader) ([]stagedUpload, func(), error) {
	dir, err := os.MkdirTemp("", "flasharena-job-")
	if err != nil {
		return nil, nil, fmt.Errorf("create staging dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	staged := make([]stagedUpload, 0, len(files))
	for i, file := range files {
		path := filepath.Join(dir, fmt.Sprintf("upload-%d%s", i, filepath.Ext(file.Filename)))
		if err := copyUpload(file, path); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("stage upload %q: %w", file.Filename, err)
		}
		staged = append(staged, stagedUpload{name: file.Filename, path: path})
	}
	return staged, cleanup, nil
}

func copyUpload(file *multipart.FileHeader, path string) error {
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/documents/jobs/")
	jobID = strings.Trim(jobID, "/")
	if jobID == "" {
		http.NotFound(w, r)
		return
	}

	job, ok := s.jobs.GetJob(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (s *Server) runGenerationJob(ctx context.Context, jobID string, params synth.GenerationParams, files []stagedUpload, cleanup func()) {
	defer cleanup()

	s.jobs.MarkProcessing(jobID)
	for idx, file := range files {
		s.jobs.MarkFileStarted(jobID, idx)
		progress := func(step, message string, current, total int) {
			s.jobs.UpdateFileProgress(jobID, idx, step, message, current, total)
		}
		result, err := s.processDocument(ctx, file, params, progress)
		if err != nil {
			s.jobs.MarkFileError(jobID, idx, err.Error(), result)
			continue
		}
		s.jobs.MarkFileComplete(jobID, idx, result)
	}
	s.jobs.MarkCompleted(jobID)
}

func (s *Server) processDocument(ctx context.Context, file stagedUpload, params synth.GenerationParams, progress services.ProgressCallback) (DocumentResult, error) {
	result := DocumentResult{
		Name:   file.name,
		Status: FileStatusError,
	}

	src, err := os.Open(file.path)
	if err != nil {
		result.Message = err.Error()
		return result, err
	}
	defer src.Close()

	if progress != nil {
		progress("extract", "Extracting text", 0, 100)
	}

	doc, text, err := s.documents.Ingest(ctx, file.name, src)
	if err != nil {
		result.Message = err.Error()
		return result, err
	}
	result.DocumentID = doc.ID
	result.Pages = doc.PageCount

	gen, err := s.generation.Generate(ctx, deckNameFor(file.name), text, params, progress)
	if err != nil {
		result.Message = err.Error()
		return result, err
	}
	if gen.Deck == nil {
		result.Message = "could not generate cards from the provided text"
		return result, errors.New(result.Message)
	}

	result.Status = "ok"
	result.DeckID = gen.Deck.ID
	result.DeckName = gen.Deck.Name
	result.Cards = len(gen.Cards)
	result.Source = gen.Source
	return result, nil
}

func deckNameFor(filename string) string {
	return strings.TrimSpace(strings.TrimSuffix(filename, filepath.Ext(filename)))
}

const timeLayout = time.RFC3339

func deckJSON(deck models.Deck) map[string]any {
	return map[string]any{
		"id":         deck.ID,
		"name":       deck.Name,
		"source":     deck.Source,
		"cards":      deck.CardCount,
		"created_at": deck.CreatedAt.Format(timeLayout),
	}
}

func clip(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func nullTimeToString(t sql.NullTime) *string {
	if t.Valid {
		str := t.Time.Format(timeLayout)
		return &str
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
