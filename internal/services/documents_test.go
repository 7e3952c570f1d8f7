package services

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func newDocumentService(t *testing.T) *DocumentService {
	t.Helper()
	return NewDocumentService(newTestDB(t), t.TempDir(), NewPDFService())
}

func TestIngestTextFile(t *testing.T) {
	docs := newDocumentService(t)

	doc, text, err := docs.Ingest(context.Background(), "notes.txt", strings.NewReader(sampleText))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if doc.ID == 0 {
		t.Error("expected a persisted document id")
	}
	if doc.OriginalName != "notes.txt" {
		t.Errorf("unexpected name %q", doc.OriginalName)
	}
	if text != sampleText {
		t.Errorf("extracted text mismatch: %q", text)
	}
	if doc.CharCount != len(sampleText) {
		t.Errorf("char count %d, want %d", doc.CharCount, len(sampleText))
	}

	loaded, err := docs.GetByID(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if loaded.StoredPath != doc.StoredPath {
		t.Errorf("stored path mismatch: %q vs %q", loaded.StoredPath, doc.StoredPath)
	}
}

func TestIngestRejectsUnsupportedType(t *testing.T) {
	docs := newDocumentService(t)

	_, _, err := docs.Ingest(context.Background(), "slides.docx", strings.NewReader("content"))
	if !errors.Is(err, ErrUnsupportedFileType) {
		t.Errorf("expected ErrUnsupportedFileType, got %v", err)
	}
}

func TestIngestRejectsEmptyText(t *testing.T) {
	docs := newDocumentService(t)

	_, _, err := docs.Ingest(context.Background(), "empty.txt", strings.NewReader("   \n\t "))
	if !errors.Is(err, ErrNoExtractableText) {
		t.Errorf("expected ErrNoExtractableText, got %v", err)
	}
}
