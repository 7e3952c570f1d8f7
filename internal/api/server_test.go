package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"flasharena/internal/db"
	"flasharena/internal/services"
)

const sampleText = "Photosynthesis is the process by which plants convert light into energy. Water boils at 100 degrees Celsius."

func newTestServer(t *testing.T) *Server {
	t.Helper()

	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	documents := services.NewDocumentService(conn, t.TempDir(), services.NewPDFService())
	decks := services.NewDeckService(conn)
	quiz := services.NewQuizService(conn)
	ai := services.NewAIService("", "", "")
	generation := services.NewGenerationService(ai, decks)

	return NewServer(documents, generation, decks, quiz)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, payload
}

func generateDeck(t *testing.T, s *Server) (deckID int64, cards []any) {
	t.Helper()

	rec, payload := doJSON(t, s, http.MethodPost, "/api/cards/generate", map[string]any{
		"text": sampleText,
		"name": "bio",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("generate returned %d: %s", rec.Code, rec.Body.String())
	}
	deck, ok := payload["deck"].(map[string]any)
	if !ok {
		t.Fatalf("missing deck in response: %v", payload)
	}
	cards, _ = payload["cards"].([]any)
	return int64(deck["id"].(float64)), cards
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec, payload := doJSON(t, s, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if payload["status"] != "ok" {
		t.Errorf("unexpected health payload: %v", payload)
	}
}

func TestGenerateCardsHeuristicFallback(t *testing.T) {
	s := newTestServer(t)

	rec, payload := doJSON(t, s, http.MethodPost, "/api/cards/generate", map[string]any{
		"text": sampleText,
		"name": "bio",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if payload["source"] != "heuristic" {
		t.Errorf("expected heuristic source with AI disabled, got %v", payload["source"])
	}
	cards, _ := payload["cards"].([]any)
	if len(cards) != 2 {
		t.Errorf("expected 2 cards, got %d", len(cards))
	}
	first, _ := cards[0].(map[string]any)
	if first["q"] != "What is photosynthesis?" {
		t.Errorf("unexpected first question: %v", first["q"])
	}
}

func TestGenerateCardsValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
		code int
	}{
		{"empty text", map[string]any{"text": "   "}, http.StatusBadRequest},
		{"unknown difficulty", map[string]any{"text": sampleText, "difficulty": "impossible"}, http.StatusBadRequest},
		{"unknown style", map[string]any{"text": sampleText, "style": "haiku"}, http.StatusBadRequest},
		{"negative count", map[string]any{"text": sampleText, "count": -1}, http.StatusBadRequest},
		{"unusable text", map[string]any{"text": "Too short."}, http.StatusUnprocessableEntity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, payload := doJSON(t, s, http.MethodPost, "/api/cards/generate", tc.body)
			if rec.Code != tc.code {
				t.Errorf("expected %d, got %d: %s", tc.code, rec.Code, rec.Body.String())
			}
			if msg, _ := payload["error"].(string); msg == "" {
				t.Errorf("expected an error message, got %v", payload)
			}
		})
	}
}

func TestGenerateCardsMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)

	rec, _ := doJSON(t, s, http.MethodGet, "/api/cards/generate", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestListDecks(t *testing.T) {
	s := newTestServer(t)
	deckID, _ := generateDeck(t, s)

	rec, payload := doJSON(t, s, http.MethodGet, "/api/decks", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	decks, _ := payload["decks"].([]any)
	if len(decks) != 1 {
		t.Fatalf("expected 1 deck, got %d", len(decks))
	}
	deck, _ := decks[0].(map[string]any)
	if int64(deck["id"].(float64)) != deckID || deck["name"] != "bio" {
		t.Errorf("unexpected deck listing: %v", deck)
	}
	if deck["cards"].(float64) != 2 {
		t.Errorf("expected card count 2, got %v", deck["cards"])
	}
}

func TestGetDeckNotFound(t *testing.T) {
	s := newTestServer(t)

	rec, _ := doJSON(t, s, http.MethodGet, "/api/decks/999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestQuizFlow(t *testing.T) {
	s := newTestServer(t)
	deckID, _ := generateDeck(t, s)

	rec, payload := doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/decks/%d/next", deckID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("next card returned %d", rec.Code)
	}
	card, ok := payload["card"].(map[string]any)
	if !ok {
		t.Fatalf("expected a due card, got %v", payload)
	}
	if _, leaked := card["a"]; leaked {
		t.Error("next card response must not include the answer")
	}
	cardID := int64(card["id"].(float64))

	rec, payload = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/cards/%d/answer", cardID), map[string]any{
		"answer": "the process by which plants convert light into energy",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit answer returned %d: %s", rec.Code, rec.Body.String())
	}
	result, _ := payload["result"].(map[string]any)
	if result["correct"] != true {
		t.Errorf("expected a correct verdict, got %v", result)
	}
	updated, _ := payload["card"].(map[string]any)
	if updated["due"] == nil {
		t.Error("expected a rescheduled due date")
	}

	rec, payload = doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/decks/%d/stats", deckID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats returned %d", rec.Code)
	}
	stats, _ := payload["stats"].(map[string]any)
	if stats["attempts"].(float64) != 1 || stats["correct"].(float64) != 1 {
		t.Errorf("unexpected stats: %v", stats)
	}
}

func TestSubmitAnswerUnknownCardReturns404(t *testing.T) {
	s := newTestServer(t)

	rec, _ := doJSON(t, s, http.MethodPost, "/api/cards/424242/answer", map[string]any{"answer": "x"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestUploadTextDocument(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(sampleText)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents?include_text=true", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["filename"] != "notes.txt" {
		t.Errorf("unexpected filename: %v", payload["filename"])
	}
	if payload["text"] != sampleText {
		t.Errorf("expected full text with include_text, got %v", payload["text"])
	}
	if !strings.HasPrefix(payload["preview"].(string), "Photosynthesis") {
		t.Errorf("unexpected preview: %v", payload["preview"])
	}
}

func TestGenerationJobFlow(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("files", "bio.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(sampleText)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.WriteField("count", "5"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents/jobs", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var job map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	jobID, _ := job["jobId"].(string)
	if jobID == "" {
		t.Fatalf("missing job id: %v", job)
	}

	// The worker runs in the background against its own copies of the
	// uploads, so the request body being gone by now must not matter.
	var payload map[string]any
	deadline := time.Now().Add(5 * time.Second)
	for {
		var poll *httptest.ResponseRecorder
		poll, payload = doJSON(t, s, http.MethodGet, "/api/documents/jobs/"+jobID, nil)
		if poll.Code != http.StatusOK {
			t.Fatalf("job status returned %d", poll.Code)
		}
		if payload["status"] == JobStatusComplete {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish in time: %v", payload)
		}
		time.Sleep(10 * time.Millisecond)
	}

	results, _ := payload["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %v", payload["results"])
	}
	result, _ := results[0].(map[string]any)
	if result["status"] != "ok" {
		t.Errorf("unexpected result status: %v", result)
	}
	if result["cards"].(float64) != 2 {
		t.Errorf("expected 2 generated cards, got %v", result["cards"])
	}
	if result["source"] != "heuristic" {
		t.Errorf("expected heuristic source, got %v", result["source"])
	}
	if result["deckName"] != "bio" {
		t.Errorf("expected deck named after the file, got %v", result["deckName"])
	}
}

func TestJobStatusNotFound(t *testing.T) {
	s := newTestServer(t)

	rec, _ := doJSON(t, s, http.MethodGet, "/api/documents/jobs/no-such-job", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
