package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kalyuugh/backend-go/internal/kafka"
	"github.com/kalyuugh/backend-go/internal/knowledge"
	"github.com/kalyuugh/backend-go/internal/logger"
)

// StoreService 问答持久化服务。
// 对问题和回答分别计算向量，成对写入向量库。
// 嵌入失败视为硬错误立即返回；写入失败按线性退避重试。
type StoreService struct {
	embedder knowledge.Embedder
	store    knowledge.VectorStore

	attempts  int
	baseDelay time.Duration

	// sleep 测试时可替换以避免真实等待
	sleep func(time.Duration)

	// now 测试时可替换以固定记录ID
	now func() time.Time
}

// NewStoreService 创建持久化服务
func NewStoreService(embedder knowledge.Embedder, store knowledge.VectorStore, attempts int, baseDelay time.Duration) *StoreService {
	if attempts <= 0 {
		attempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return &StoreService{
		embedder:  embedder,
		store:     store,
		attempts:  attempts,
		baseDelay: baseDelay,
		sleep:     time.Sleep,
		now:       time.Now,
	}
}

// StoreExchange 持久化一对问答。
// 任一方为空白时跳过，不触碰外部服务。
// 两条记录共享同一毫秒时间戳，ID前缀区分角色。
// language只进审计消息，不参与向量化。
func (s *StoreService) StoreExchange(ctx context.Context, question, answer, language string) error {
	if strings.TrimSpace(question) == "" || strings.TrimSpace(answer) == "" {
		return nil
	}

	questionVec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		persistOutcomesTotal.WithLabelValues("embed_failed").Inc()
		logger.Error("Failed to embed question",
			zap.String("question", truncateForLog(question, 60)),
			zap.Error(err))
		return fmt.Errorf("embed question: %w", err)
	}
	answerVec, err := s.embedder.Embed(ctx, answer)
	if err != nil {
		persistOutcomesTotal.WithLabelValues("embed_failed").Inc()
		logger.Error("Failed to embed answer",
			zap.Int("answer_length", len(answer)),
			zap.Error(err))
		return fmt.Errorf("embed answer: %w", err)
	}

	stamp := strconv.FormatInt(s.now().UnixMilli(), 10)
	records := []knowledge.ExchangeRecord{
		{
			ID:        "q-" + stamp,
			Text:      question,
			Role:      "user",
			Timestamp: stamp,
			Embedding: questionVec,
		},
		{
			ID:        "a-" + stamp,
			Text:      answer,
			Role:      "assistant",
			Timestamp: stamp,
			Embedding: answerVec,
		},
	}

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		persistAttemptsTotal.Inc()
		lastErr = s.store.Upsert(ctx, records)
		if lastErr == nil {
			break
		}
		logger.Warn("Vector upsert failed",
			zap.Int("attempt", attempt),
			zap.String("question", truncateForLog(question, 60)),
			zap.Error(lastErr))
		if attempt < s.attempts {
			s.sleep(time.Duration(attempt) * s.baseDelay)
		}
	}
	if lastErr != nil {
		persistOutcomesTotal.WithLabelValues("upsert_failed").Inc()
		logger.Error("Giving up on vector upsert",
			zap.Int("attempts", s.attempts),
			zap.String("question", truncateForLog(question, 60)),
			zap.Error(lastErr))
		return fmt.Errorf("vector upsert failed after %d attempts: %w", s.attempts, lastErr)
	}

	persistOutcomesTotal.WithLabelValues("stored").Inc()
	logger.Info("Exchange stored",
		zap.String("exchange_id", stamp),
		zap.Int("question_length", len(question)),
		zap.Int("answer_length", len(answer)))

	// 审计消息尽力投递，失败只记日志
	if err := kafka.SendExchangeStored(stamp, question, answer, language); err != nil {
		logger.Warn("Failed to publish exchange audit message",
			zap.String("exchange_id", stamp),
			zap.Error(err))
	}
	return nil
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

var defaultStoreService *StoreService

// SetDefaultStoreService 设置全局持久化服务（bootstrap调用）
func SetDefaultStoreService(s *StoreService) {
	defaultStoreService = s
}

// GetStoreService 获取全局持久化服务
func GetStoreService() *StoreService {
	return defaultStoreService
}
