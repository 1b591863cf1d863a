package main

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"prodplan-copilot/internal/copilot"
	"prodplan-copilot/internal/models"
	"prodplan-copilot/internal/repository"
	"prodplan-copilot/internal/service"
	"prodplan-copilot/pkg/config"
	"prodplan-copilot/pkg/logger"
	"prodplan-copilot/pkg/postgres"

	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// seedTenantEnv names the tenant every ingested runbook/procedure document
// belongs to. This tool seeds one tenant's knowledge base per invocation;
// operators running it for multiple tenants set SEED_TENANT_ID per run.
const seedTenantEnv = "SEED_TENANT_ID"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	tenantIDStr := os.Getenv(seedTenantEnv)
	if tenantIDStr == "" {
		appLogger.Fatal("SEED_TENANT_ID must be set to the tenant these documents belong to")
	}
	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		appLogger.Fatal("SEED_TENANT_ID is not a valid UUID", zap.Error(err))
	}

	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	chunkRepo := repository.NewChunkRepository(db, appLogger)
	gateway := copilot.NewModelGateway(
		cfg.Model.BaseURL, cfg.Model.ModelName, cfg.Model.EmbeddingModel, cfg.Model.EmbeddingDim,
		cfg.Model.RequestTimeout, cfg.Circuit.FailThreshold, cfg.Circuit.CooldownSeconds, appLogger,
	)

	appLogger.Info("Starting knowledge base seeding...")

	seedDir := filepath.Join("cmd", "seed")
	cacheFile := filepath.Join(seedDir, ".seed_cache.json")
	if err := seedChunksFromPDFs(ctx, tenantID, seedDir, cacheFile, chunkRepo, gateway, appLogger); err != nil {
		appLogger.Fatal("Failed to seed knowledge base from PDFs", zap.Error(err))
	}

	appLogger.Info("Knowledge base seeding completed successfully!")
}

// ProcessedFile represents a processed PDF file in cache.
type ProcessedFile struct {
	FilePath    string    `json:"file_path"`
	FileHash    string    `json:"file_hash"`
	ProcessedAt time.Time `json:"processed_at"`
}

// CacheData stores information about processed files.
type CacheData struct {
	ProcessedFiles map[string]ProcessedFile `json:"processed_files"`
}

func loadCache(cacheFile string) (*CacheData, error) {
	cache := &CacheData{ProcessedFiles: make(map[string]ProcessedFile)}

	if _, err := os.Stat(cacheFile); os.IsNotExist(err) {
		return cache, nil
	}

	data, err := os.ReadFile(cacheFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	if len(data) == 0 {
		return cache, nil
	}
	if err := json.Unmarshal(data, cache); err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}
	return cache, nil
}

func saveCache(cacheFile string, cache *CacheData) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}
	return os.WriteFile(cacheFile, data, 0644)
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to calculate hash: %w", err)
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

// seedChunksFromPDFs walks every *.pdf in seedDir, extracts its text with
// go-fitz, chunks it, embeds each chunk through the Model Gateway, and
// writes it to the Retrieval Store — skipping files whose content hash
// hasn't changed since the last run.
func seedChunksFromPDFs(
	ctx context.Context,
	tenantID uuid.UUID,
	seedDir string,
	cacheFile string,
	chunkRepo *repository.ChunkRepository,
	gateway *copilot.ModelGateway,
	logger *zap.Logger,
) error {
	cache, err := loadCache(cacheFile)
	if err != nil {
		logger.Warn("Failed to load cache, will process all files", zap.Error(err))
		cache = &CacheData{ProcessedFiles: make(map[string]ProcessedFile)}
	}

	entries, err := os.ReadDir(seedDir)
	if err != nil {
		return fmt.Errorf("failed to list seed directory: %w", err)
	}

	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		pdfPath := filepath.Join(seedDir, entry.Name())

		fileHash, err := calculateFileHash(pdfPath)
		if err != nil {
			logger.Warn("Failed to calculate file hash, will process anyway", zap.String("path", pdfPath), zap.Error(err))
		}

		if cached, exists := cache.ProcessedFiles[pdfPath]; exists && cached.FileHash == fileHash {
			logger.Info("PDF file already processed, skipping", zap.String("path", pdfPath), zap.Time("processed_at", cached.ProcessedAt))
			continue
		}

		logger.Info("Processing PDF file", zap.String("path", pdfPath))

		text, err := extractTextFromPDF(pdfPath, logger)
		if err != nil {
			logger.Error("Failed to extract text from PDF", zap.String("path", pdfPath), zap.Error(err))
			continue
		}
		if text == "" {
			logger.Warn("No text extracted from PDF", zap.String("path", pdfPath))
			continue
		}

		chunks := copilot.ChunkText(service.SanitizeUTF8(text))
		for i, chunkText := range chunks {
			embedding, err := gateway.Embed(ctx, chunkText)
			if err != nil {
				logger.Warn("Embedding failed during seed, storing chunk without vector", zap.String("path", pdfPath), zap.Int("ordinal", i), zap.Error(err))
			}
			chunk := &models.DocumentChunk{
				ID:        uuid.New(),
				TenantID:  tenantID,
				Source:    entry.Name(),
				Ordinal:   i,
				Text:      chunkText,
				Embedding: embedding,
				CreatedAt: now,
			}
			if err := chunkRepo.Create(ctx, chunk); err != nil {
				logger.Error("Failed to create document chunk", zap.String("path", pdfPath), zap.Int("ordinal", i), zap.Error(err))
			}
		}

		logger.Info("Ingested PDF into retrieval store", zap.String("source", entry.Name()), zap.Int("chunk_count", len(chunks)))

		cache.ProcessedFiles[pdfPath] = ProcessedFile{FilePath: pdfPath, FileHash: fileHash, ProcessedAt: now}
	}

	if err := saveCache(cacheFile, cache); err != nil {
		logger.Warn("Failed to save cache", zap.Error(err))
	} else {
		logger.Info("Cache saved", zap.Int("processed_files", len(cache.ProcessedFiles)))
	}
	return nil
}

// extractTextFromPDF extracts text from every page of a PDF using go-fitz —
// no vision API round-trip needed for a text-native PDF.
func extractTextFromPDF(pdfPath string, logger *zap.Logger) (string, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var textBuilder strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			logger.Warn("Failed to extract text from page", zap.Int("page", i+1), zap.String("file", pdfPath), zap.Error(err))
			continue
		}
		if pageText != "" {
			textBuilder.WriteString(pageText)
			textBuilder.WriteString("\n")
		}
	}

	text := strings.TrimSpace(textBuilder.String())
	if text == "" {
		return "", fmt.Errorf("no text found in PDF")
	}
	return text, nil
}
