package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prodplan-copilot/internal/api"
	"prodplan-copilot/internal/api/handlers"
	"prodplan-copilot/internal/copilot"
	"prodplan-copilot/internal/repository"
	"prodplan-copilot/pkg/auth"
	"prodplan-copilot/pkg/config"
	"prodplan-copilot/pkg/logger"
	"prodplan-copilot/pkg/postgres"

	"go.uber.org/zap"
)

// @title ProdPlan ONE Operational Copilot API
// @version 1.0
// @description Natural-language factory-floor question answering over production, quality and KPI data
// @termsOfService http://swagger.io/terms/

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting ProdPlan ONE operational copilot")

	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	chunkRepo := repository.NewChunkRepository(db, appLogger)
	domainRepo := repository.NewDomainRepository(db, appLogger)
	conversationRepo := repository.NewConversationRepository(db, appLogger)
	messageRepo := repository.NewMessageRepository(db, conversationRepo, appLogger)
	suggestionRepo := repository.NewSuggestionRepository(db, appLogger)
	dailyFeedbackRepo := repository.NewDailyFeedbackRepository(db, appLogger)
	decisionPRRepo := repository.NewDecisionPRRepository(db, appLogger)

	jwtManager := auth.NewManager(cfg.Auth.SecretKey)

	gateway := copilot.NewModelGateway(
		cfg.Model.BaseURL,
		cfg.Model.ModelName,
		cfg.Model.EmbeddingModel,
		cfg.Model.EmbeddingDim,
		cfg.Model.RequestTimeout,
		cfg.Circuit.FailThreshold,
		cfg.Circuit.CooldownSeconds,
		appLogger,
	)

	contextBuilder := copilot.NewContextBuilder(domainRepo, appLogger)
	retrievalStore := copilot.NewRetrievalStore(chunkRepo, gateway, appLogger)
	rateLimiter := copilot.NewRateLimiter(nil, cfg.RateLimit.PerHour, cfg.RateLimit.PerDay, appLogger)

	orchestrator := copilot.NewOrchestrator(
		rateLimiter,
		contextBuilder,
		retrievalStore,
		gateway,
		conversationRepo,
		messageRepo,
		suggestionRepo,
		decisionPRRepo,
		copilot.OrchestratorConfig{
			FastPathEnabled:  cfg.Runtime.FastPathEnabled,
			WallClockBudget:  time.Duration(cfg.Runtime.WallClockBudgetMS) * time.Millisecond,
			RedactionEnabled: cfg.Redaction.RedactEmployeeNames,
			RAGTopKShort:     cfg.RAG.TopKShort,
			RAGTopKLong:      cfg.RAG.TopKLong,
		},
		appLogger,
	)

	dailyFeedbackJob := copilot.NewDailyFeedbackJob(contextBuilder, dailyFeedbackRepo, appLogger)
	go runDailyFeedbackScheduler(ctx, dailyFeedbackJob, domainRepo, appLogger)

	copilotHandler := handlers.NewCopilotHandler(orchestrator, conversationRepo, messageRepo, dailyFeedbackRepo, chunkRepo, decisionPRRepo, gateway, appLogger)

	app := api.SetupRouter(copilotHandler, jwtManager, appLogger)

	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}

// runDailyFeedbackScheduler ticks once a day and rebuilds the feedback
// bundle for every tenant with at least one KPI reading of any age. There
// is no tenant registry in this core, so tenant discovery
// rides on the same KPI table the Context Builder already reads.
func runDailyFeedbackScheduler(ctx context.Context, job *copilot.DailyFeedbackJob, domainRepo *repository.DomainRepository, logger *zap.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tenantIDs, err := domainRepo.DistinctTenantIDs(ctx)
			if err != nil {
				logger.Error("failed to enumerate tenants for daily feedback", zap.Error(err))
				continue
			}
			for _, tenantID := range tenantIDs {
				if err := job.RunForTenant(ctx, tenantID); err != nil {
					logger.Error("daily feedback job failed", zap.Error(err), zap.String("tenant_id", tenantID.String()))
				}
			}
		}
	}
}
