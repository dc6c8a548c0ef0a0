package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig
	Redis  RedisConfig
	Kafka  KafkaConfig
	AI     AIConfig
	Chat   ChatConfig
	Store  StoreConfig
	Vector VectorConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type RedisConfig struct {
	Host    string
	Port    string
	DB      int
	TTL     int
	Enabled bool
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

type AIConfig struct {
	OpenAIAPIKey   string
	ChatModel      string
	EmbeddingModel string
}

type ChatConfig struct {
	DefaultLanguage string
	StreamBuffer    int
}

// StoreConfig 持久化管道配置
type StoreConfig struct {
	RetryAttempts    int
	RetryBaseDelayMs int
}

type VectorConfig struct {
	Provider string
	Milvus   MilvusConfig
}

type MilvusConfig struct {
	Address    string
	Username   string
	Password   string
	Collection string
	Database   string
	TLS        bool
	VectorSize int
	Distance   string
}

var AppConfig *Config

func LoadConfig() error {
	// 设置默认值
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttl", 86400)
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "stored-exchanges")
	viper.SetDefault("kafka.enabled", false)

	// AI配置默认值
	viper.SetDefault("ai.chat_model", "gpt-4.1")
	viper.SetDefault("ai.embedding_model", "text-embedding-3-small")

	// 聊天配置默认值
	viper.SetDefault("chat.default_language", "auto")
	viper.SetDefault("chat.stream_buffer", 100)

	// 持久化配置默认值
	viper.SetDefault("store.retry_attempts", 3)
	viper.SetDefault("store.retry_base_delay_ms", 300)

	// 向量存储配置默认值
	viper.SetDefault("vector.provider", "memory")
	viper.SetDefault("vector.milvus.address", "localhost:19530")
	viper.SetDefault("vector.milvus.collection", "kalyuugh_exchanges")
	viper.SetDefault("vector.milvus.database", "default")
	viper.SetDefault("vector.milvus.tls", false)
	viper.SetDefault("vector.milvus.vector_size", 1536)
	viper.SetDefault("vector.milvus.distance", "cosine")

	// 读取环境变量
	viper.SetEnvPrefix("KALYUUGH")
	viper.AutomaticEnv()

	if port := os.Getenv("PORT"); port != "" {
		viper.Set("server.port", port)
	}
	if env := os.Getenv("ENV"); env != "" {
		viper.Set("server.env", env)
	}
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		viper.Set("redis.host", redisHost)
		viper.Set("redis.enabled", true)
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		viper.Set("redis.port", redisPort)
	}
	if redisTTL := os.Getenv("REDIS_TTL"); redisTTL != "" {
		if ttl, err := strconv.Atoi(redisTTL); err == nil {
			viper.Set("redis.ttl", ttl)
		}
	}
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		// 支持逗号分隔的broker列表
		brokers := strings.Split(kafkaBrokers, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		viper.Set("kafka.brokers", brokers)
	}
	if kafkaTopic := os.Getenv("KAFKA_TOPIC"); kafkaTopic != "" {
		viper.Set("kafka.topic", kafkaTopic)
	}
	if kafkaEnabled := os.Getenv("KAFKA_ENABLED"); kafkaEnabled == "true" {
		viper.Set("kafka.enabled", true)
	}

	// AI配置环境变量
	if openaiKey := os.Getenv("OPENAI_API_KEY"); openaiKey != "" {
		viper.Set("ai.openai_api_key", openaiKey)
	}
	if chatModel := os.Getenv("CHAT_MODEL"); chatModel != "" {
		viper.Set("ai.chat_model", chatModel)
	}
	if embeddingModel := os.Getenv("EMBEDDING_MODEL"); embeddingModel != "" {
		viper.Set("ai.embedding_model", embeddingModel)
	}

	// 向量存储环境变量
	if milvusAddress := os.Getenv("MILVUS_ADDRESS"); milvusAddress != "" {
		viper.Set("vector.milvus.address", milvusAddress)
		viper.Set("vector.provider", "milvus")
	}
	if milvusUser := os.Getenv("MILVUS_USERNAME"); milvusUser != "" {
		viper.Set("vector.milvus.username", milvusUser)
	}
	if milvusPassword := os.Getenv("MILVUS_PASSWORD"); milvusPassword != "" {
		viper.Set("vector.milvus.password", milvusPassword)
	}
	if milvusCollection := os.Getenv("MILVUS_COLLECTION"); milvusCollection != "" {
		viper.Set("vector.milvus.collection", milvusCollection)
	}
	if vectorProvider := os.Getenv("VECTOR_PROVIDER"); vectorProvider != "" {
		viper.Set("vector.provider", vectorProvider)
	}

	AppConfig = &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		Redis: RedisConfig{
			Host:    viper.GetString("redis.host"),
			Port:    viper.GetString("redis.port"),
			DB:      viper.GetInt("redis.db"),
			TTL:     viper.GetInt("redis.ttl"),
			Enabled: viper.GetBool("redis.enabled"),
		},
		Kafka: KafkaConfig{
			Brokers: viper.GetStringSlice("kafka.brokers"),
			Topic:   viper.GetString("kafka.topic"),
			Enabled: viper.GetBool("kafka.enabled"),
		},
		AI: AIConfig{
			OpenAIAPIKey:   viper.GetString("ai.openai_api_key"),
			ChatModel:      viper.GetString("ai.chat_model"),
			EmbeddingModel: viper.GetString("ai.embedding_model"),
		},
		Chat: ChatConfig{
			DefaultLanguage: viper.GetString("chat.default_language"),
			StreamBuffer:    viper.GetInt("chat.stream_buffer"),
		},
		Store: StoreConfig{
			RetryAttempts:    viper.GetInt("store.retry_attempts"),
			RetryBaseDelayMs: viper.GetInt("store.retry_base_delay_ms"),
		},
		Vector: VectorConfig{
			Provider: viper.GetString("vector.provider"),
			Milvus: MilvusConfig{
				Address:    viper.GetString("vector.milvus.address"),
				Username:   viper.GetString("vector.milvus.username"),
				Password:   viper.GetString("vector.milvus.password"),
				Collection: viper.GetString("vector.milvus.collection"),
				Database:   viper.GetString("vector.milvus.database"),
				TLS:        viper.GetBool("vector.milvus.tls"),
				VectorSize: viper.GetInt("vector.milvus.vector_size"),
				Distance:   viper.GetString("vector.milvus.distance"),
			},
		},
	}

	return nil
}

// GetAppConfig 获取全局配置
func GetAppConfig() *Config {
	return AppConfig
}
