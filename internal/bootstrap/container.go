package bootstrap

import (
	"context"
	"log"
	"os"

	"streamworks-assistant-be/internal/config"
	"streamworks-assistant-be/internal/controller"
	"streamworks-assistant-be/internal/pkg/logger"
	"streamworks-assistant-be/internal/repository/contract"
	"streamworks-assistant-be/internal/repository/implementation"
	"streamworks-assistant-be/internal/repository/memory"
	redisrepo "streamworks-assistant-be/internal/repository/redis"
	"streamworks-assistant-be/internal/service"
	"streamworks-assistant-be/pkg/dialog/schema"
	"streamworks-assistant-be/pkg/extraction"
	"streamworks-assistant-be/pkg/llm/factory"

	pktNats "streamworks-assistant-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	DialogController controller.IDialogController

	// Background Services (Exposed for main.go to run)
	EventBridgeService service.IEventBridgeService
	GenerationListener service.IGenerationListener

	// Held for graceful shutdown
	NatsPublisher *pktNats.Publisher
	Logger        logger.ILogger
}

// NewContainer wires the dialog engine. db may be nil when the session
// store is not "postgres".
func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	coreLog := log.New(os.Stdout, "", log.LstdFlags)

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Session Store based on Config
	var store contract.SessionStore
	switch cfg.Session.Store {
	case "redis":
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
		store = redisrepo.NewSessionRepository(rdb, cfg.Session.TTL)
		log.Printf("[INFO] Using Session Store: REDIS")
	case "postgres":
		if db == nil {
			log.Fatalf("[FATAL] SESSION_STORE=postgres requires DATABASE_URL")
		}
		store = implementation.NewDialogSessionRepository(db)
		log.Printf("[INFO] Using Session Store: POSTGRES")
	default:
		store = memory.NewSessionRepository(cfg.Session.TTL)
		log.Printf("[INFO] Using Session Store: MEMORY (ttl %s)", cfg.Session.TTL)
	}

	// 4. Extraction Collaborator based on Config
	ruleExtractor := extraction.NewRuleExtractor(coreLog)
	var extractor extraction.Extractor = ruleExtractor
	if cfg.Ai.ExtractionMode == "llm" || cfg.Ai.ExtractionMode == "hybrid" {
		llmProvider, err := factory.NewLLMProvider(
			cfg.Ai.LLMProvider,
			cfg.Ai.LLMModel,
			cfg.Ai.OllamaBaseURL,
			cfg.Ai.GeminiAPIKey,
		)
		if err != nil {
			log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
		}
		log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

		llmExtractor := extraction.NewLLMExtractor(llmProvider, coreLog)
		if cfg.Ai.ExtractionMode == "hybrid" {
			extractor = extraction.NewHybridExtractor(ruleExtractor, llmExtractor, coreLog)
		} else {
			extractor = llmExtractor
		}
	}
	log.Printf("[INFO] Using Extraction Mode: %s", cfg.Ai.ExtractionMode)

	// 5. NATS bridge (optional; the engine works without the external bus)
	var natsPub *pktNats.Publisher
	var natsSub *pktNats.Subscriber
	var bridge service.IEventBridgeService
	if cfg.App.NatsURL != "" {
		var err error
		natsPub, err = pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			bridge = service.NewEventBridgeService(
				pubSub,
				[]string{service.TopicSessionReadyForXML, service.TopicSessionCompleted},
				natsPub,
			)
		}
		natsSub, err = pktNats.NewSubscriber(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
		}
	}

	// 6. Services
	registry := schema.NewRegistry()
	dialogService := service.NewDialogService(
		store,
		extractor,
		registry,
		pubSub,
		cfg.Ai.ExtractionTimeout,
		sysLogger,
	)

	var listener service.IGenerationListener
	if natsSub != nil {
		listener = service.NewGenerationListener(natsSub, dialogService, sysLogger)
	}

	// 7. Controllers
	return &Container{
		DialogController:   controller.NewDialogController(dialogService),
		EventBridgeService: bridge,
		GenerationListener: listener,
		NatsPublisher:      natsPub,
		Logger:             sysLogger,
	}
}
