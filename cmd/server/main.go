package main

import (
	"log"
	"net/http"
	"time"

	"flasharena/internal/api"
	"flasharena/internal/config"
	"flasharena/internal/db"
	"flasharena/internal/services"
)

func main() {
	cfg := config.Load()

	conn, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer conn.Close()

	pdfService := services.NewPDFService()
	documentService := services.NewDocumentService(conn, cfg.UploadDir, pdfService)
	deckService := services.NewDeckService(conn)
	quizService := services.NewQuizService(conn)
	aiService := services.NewAIService(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIEndpoint)
	generationService := services.NewGenerationService(aiService, deckService)

	server := api.NewServer(documentService, generationService, deckService, quizService)
	mux := http.NewServeMux()
	mux.Handle("/api", server.Handler())
	mux.Handle("/api/", server.Handler())

	log.Printf("listening on :%s", cfg.Port)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}
