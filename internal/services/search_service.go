package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/kalyuugh/backend-go/internal/errors"
	"github.com/kalyuugh/backend-go/internal/knowledge"
	"github.com/kalyuugh/backend-go/internal/logger"
)

// searchTopK 语义检索返回的最大条数
const searchTopK = 5

// SearchService 语义检索服务
type SearchService struct {
	embedder knowledge.Embedder
	store    knowledge.VectorStore
}

// NewSearchService 创建检索服务
func NewSearchService(embedder knowledge.Embedder, store knowledge.VectorStore) *SearchService {
	return &SearchService{
		embedder: embedder,
		store:    store,
	}
}

// Search 对查询文本做向量检索，按相似度降序返回最多五条匹配。
// 空白查询直接拒绝，不调用任何外部服务。
// 下游错误统一收敛为外部服务错误，细节只进日志。
func (s *SearchService) Search(ctx context.Context, query string) ([]knowledge.SearchMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperrors.NewValidationError("query is required")
	}

	searchQueriesTotal.Inc()

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		logger.Error("Failed to embed search query",
			zap.String("query", truncateForLog(query, 60)),
			zap.Error(err))
		return nil, apperrors.NewExternalError("Failed to search").WithCause(err)
	}

	matches, err := s.store.Query(ctx, queryVec, searchTopK)
	if err != nil {
		logger.Error("Vector query failed",
			zap.String("query", truncateForLog(query, 60)),
			zap.Error(err))
		return nil, apperrors.NewExternalError("Failed to search").WithCause(err)
	}

	return matches, nil
}

var defaultSearchService *SearchService

// SetDefaultSearchService 设置全局检索服务（bootstrap调用）
func SetDefaultSearchService(s *SearchService) {
	defaultSearchService = s
}

// GetSearchService 获取全局检索服务
func GetSearchService() *SearchService {
	return defaultSearchService
}
