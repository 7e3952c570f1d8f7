package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"flasharena/internal/models"
)

var (
	// ErrUnsupportedFileType is returned for uploads that are neither PDF nor TXT.
	ErrUnsupportedFileType = errors.New("please upload a .pdf or .txt file")
	// ErrNoExtractableText is returned when a stored document yields no text.
	ErrNoExtractableText = errors.New("no extractable text found in file")
)

type DocumentService struct {
	db        *sql.DB
	uploadDir string
	pdf       *PDFService
}

func NewDocumentService(db *sql.DB, uploadDir string, pdf *PDFService) *DocumentService {
	return &DocumentService{db: db, uploadDir: uploadDir, pdf: pdf}
}

// Ingest stores an uploaded file, extracts its text, and records the document.
// The extracted text is returned alongside the record so callers can feed it
// straight into card generation.
func (s *DocumentService) Ingest(ctx context.Context, original string, src io.Reader) (*models.Document, string, error) {
	ext := strings.ToLower(filepath.Ext(original))
	if ext != ".pdf" && ext != ".txt" {
		return nil, "", ErrUnsupportedFileType
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("ensure upload dir: %w", err)
	}

	name := uuid.NewString() + ext
	storedPath := filepath.Join(s.uploadDir, name)
	out, err := os.Create(storedPath)
	if err != nil {
		return nil, "", fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return nil, "", fmt.Errorf("write file: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, "", fmt.Errorf("close file: %w", err)
	}

	text, pages, err := s.extractText(storedPath, ext)
	if err != nil {
		return nil, "", err
	}
	if strings.TrimSpace(text) == "" {
		return nil, "", ErrNoExtractableText
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (original_name, stored_path, page_count, char_count, uploaded_at)
		VALUES (?, ?, ?, ?, ?);
	`, original, storedPath, pages, len(text), now)
	if err != nil {
		return nil, "", fmt.Errorf("insert document: %w", err)
	}
	id, _ := res.LastInsertId()

	return &models.Document{
		ID:           id,
		OriginalName: original,
		StoredPath:   storedPath,
		PageCount:    pages,
		CharCount:    len(text),
		UploadedAt:   now,
	}, text, nil
}

func (s *DocumentService) extractText(path, ext string) (string, int, error) {
	if ext == ".pdf" {
		return s.pdf.ExtractText(path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("read text file: %w", err)
	}
	return strings.ToValidUTF8(string(raw), ""), 0, nil
}

func (s *DocumentService) GetByID(ctx context.Context, id int64) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, original_name, stored_path, page_count, char_count, uploaded_at
		FROM documents WHERE id = ?;
	`, id)
	var doc models.Document
	if err := row.Scan(
		&doc.ID,
		&doc.OriginalName,
		&doc.StoredPath,
		&doc.PageCount,
		&doc.CharCount,
		&doc.UploadedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("document %d not found", id)
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}
