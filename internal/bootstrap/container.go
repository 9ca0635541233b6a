package bootstrap

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"shopmate-be/internal/config"
	"shopmate-be/internal/controller"
	"shopmate-be/internal/pkg/logger"
	"shopmate-be/internal/repository/memory"
	"shopmate-be/internal/repository/redisstore"
	"shopmate-be/internal/repository/unitofwork"
	"shopmate-be/internal/service"
	"shopmate-be/pkg/convo/assess"
	"shopmate-be/pkg/convo/classify"
	"shopmate-be/pkg/convo/extract"
	convomem "shopmate-be/pkg/convo/memory"
	"shopmate-be/pkg/convo/merge"
	"shopmate-be/pkg/convo/orchestrator"
	"shopmate-be/pkg/convo/slot"
	"shopmate-be/pkg/llm/factory"
	"shopmate-be/pkg/productsearch"
	"shopmate-be/pkg/store"

	pktNats "shopmate-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ChatController controller.IChatController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	SysLogger logger.ILogger
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	convoLogger := initConvoLogger()

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 2.5 Infrastructure
	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	// Session store backend
	var sessions store.SessionStore
	if cfg.Session.Backend == "redis" {
		sessions = redisstore.NewSessionRepository(rdb, cfg.Session.TTL)
		log.Printf("[INFO] Using Session Store: REDIS (ttl=%s)", cfg.Session.TTL)
	} else {
		sessions = memory.NewSessionRepository(cfg.Session.TTL)
		log.Printf("[INFO] Using Session Store: MEMORY (ttl=%s)", cfg.Session.TTL)
	}

	// LLM Provider
	llmBaseURL := cfg.Ai.OllamaBaseURL
	if cfg.Ai.LLMProvider == "openai" {
		llmBaseURL = cfg.Ai.OpenAIBaseURL
	}
	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		llmBaseURL,
		cfg.Keys.OpenAI,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// Product search (Elasticsearch)
	searcher, err := productsearch.NewClient(
		[]string{cfg.Search.ElasticsearchURL},
		cfg.Search.ProductIndex,
		cfg.Search.ResultLimit,
		convoLogger,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize product search client: %v", err)
	}

	// 3. Conversation Core
	registry := slot.Default()
	if err := registry.Validate(); err != nil {
		log.Fatalf("[FATAL] Slot registry invalid: %v", err)
	}
	assessEng := assess.NewEngine(registry, convoLogger)
	mergeEng := merge.NewEngine(convoLogger)
	memFmt := convomem.NewFormatter(convoLogger)
	classifier := classify.NewClassifier(llmProvider, convoLogger)
	extractor := extract.NewExtractor(llmProvider, convoLogger)
	answers := orchestrator.NewLLMAnswerGenerator(llmProvider, convoLogger)

	orch := orchestrator.New(
		sessions,
		classifier,
		extractor,
		searcher,
		answers,
		assessEng,
		mergeEng,
		memFmt,
		registry,
		convoLogger,
	)

	// 4. Services
	publisherService := service.NewPublisherService(cfg.Keys.TurnsTopic, pubSub)
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.Keys.TurnsTopic,
		uowFactory,
	)
	chatService := service.NewChatService(orch, sessions, publisherService, natsPub, uowFactory, sysLogger)

	// 5. Controllers
	return &Container{
		ChatController:  controller.NewChatController(chatService),
		ConsumerService: consumerService,
		SysLogger:       sysLogger,
	}
}

func initConvoLogger() *log.Logger {
	logPath := filepath.Join(".", "logs", "convo.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		log.Printf("Failed to create logs directory: %v", err)
	}
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return log.New(os.Stdout, "[CONVO] ", log.LstdFlags)
	}
	return log.New(file, "", log.LstdFlags)
}
