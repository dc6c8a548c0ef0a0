package bootstrap

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kalyuugh/backend-go/internal/config"
	"github.com/kalyuugh/backend-go/internal/database"
	"github.com/kalyuugh/backend-go/internal/kafka"
	"github.com/kalyuugh/backend-go/internal/knowledge"
	"github.com/kalyuugh/backend-go/internal/logger"
	"github.com/kalyuugh/backend-go/internal/services"
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	cleanupTasks []func() error
}

// Init bootstraps configuration, logger, external clients and the service
// layer required by the Beego application.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize structured logger.
	if err := logger.InitLogger(); err != nil {
		return nil, err
	}

	// Load dynamic configuration.
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}
	cfg := config.AppConfig

	// 没有上游密钥服务无法工作，直接拒绝启动
	if cfg.AI.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	app := &App{}

	// Initialize Redis (optional). Failure shouldn't block the app.
	redisAvailable := false
	if cfg.Redis.Enabled {
		if _, err := database.InitRedis(); err != nil {
			logger.Warn("Failed to initialize Redis", zap.Error(err))
		} else {
			redisAvailable = true
			app.cleanupTasks = append(app.cleanupTasks, func() error {
				return database.CloseRedis()
			})
		}
	}

	// 嵌入客户端，Redis可用时加读穿缓存
	var embedder knowledge.Embedder = knowledge.NewOpenAIEmbedder(cfg.AI.OpenAIAPIKey, cfg.AI.EmbeddingModel)
	if redisAvailable {
		embedder = knowledge.NewCachedEmbedder(embedder, database.RedisClient, time.Duration(cfg.Redis.TTL)*time.Second)
	}

	// 向量存储按配置选择实现
	var vectorStore knowledge.VectorStore
	switch cfg.Vector.Provider {
	case "milvus":
		store, err := knowledge.NewMilvusVectorStore(knowledge.MilvusOptions{
			Address:    cfg.Vector.Milvus.Address,
			Username:   cfg.Vector.Milvus.Username,
			Password:   cfg.Vector.Milvus.Password,
			Collection: cfg.Vector.Milvus.Collection,
			Database:   cfg.Vector.Milvus.Database,
			VectorSize: cfg.Vector.Milvus.VectorSize,
			Distance:   cfg.Vector.Milvus.Distance,
			UseTLS:     cfg.Vector.Milvus.TLS,
		})
		if err != nil {
			return nil, fmt.Errorf("init milvus vector store: %w", err)
		}
		vectorStore = store
		logger.Info("Milvus vector store initialized",
			zap.String("address", cfg.Vector.Milvus.Address),
			zap.String("collection", cfg.Vector.Milvus.Collection))
	default:
		vectorStore = knowledge.NewMemoryVectorStore(cfg.Vector.Milvus.VectorSize)
		logger.Info("In-memory vector store initialized",
			zap.Int("vector_size", cfg.Vector.Milvus.VectorSize))
	}

	// 维度不匹配写进去的向量永远查不回来，启动时就挡住
	if embedder.Dimensions() != vectorStore.Dimensions() {
		return nil, fmt.Errorf("embedding dimensions %d do not match vector store dimensions %d",
			embedder.Dimensions(), vectorStore.Dimensions())
	}

	// Initialize Kafka (optional). Failure shouldn't block the app.
	if cfg.Kafka.Enabled {
		if err := kafka.InitProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic); err != nil {
			logger.Warn("Failed to initialize Kafka producer", zap.Error(err))
		} else {
			app.cleanupTasks = append(app.cleanupTasks, func() error {
				producer := kafka.GetProducer()
				if producer != nil {
					return producer.Close()
				}
				return nil
			})
		}
	}

	storeService := services.NewStoreService(embedder, vectorStore,
		cfg.Store.RetryAttempts,
		time.Duration(cfg.Store.RetryBaseDelayMs)*time.Millisecond)
	chatService := services.NewChatService(cfg.AI.OpenAIAPIKey, cfg.AI.ChatModel,
		cfg.Chat.StreamBuffer, storeService)
	searchService := services.NewSearchService(embedder, vectorStore)

	services.SetDefaultStoreService(storeService)
	services.SetDefaultChatService(chatService)
	services.SetDefaultSearchService(searchService)

	logger.Info("Application bootstrap complete",
		zap.String("env", cfg.Server.Env),
		zap.String("chat_model", cfg.AI.ChatModel),
		zap.String("embedding_model", cfg.AI.EmbeddingModel),
		zap.String("vector_provider", cfg.Vector.Provider))

	return app, nil
}

// Shutdown flushes/logs and closes resources gracefully.
func (a *App) Shutdown() {
	// Execute cleanup tasks in reverse order (best effort).
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			log.Printf("Cleanup error: %v\n", err)
		}
	}

	// Flush logger buffers.
	logger.Sync()
}
