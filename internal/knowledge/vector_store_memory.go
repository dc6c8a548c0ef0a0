package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// memoryVectorStore 进程内向量存储，开发环境默认实现。
// 余弦相似度暴力扫描；数据不落盘。
type memoryVectorStore struct {
	mu         sync.RWMutex
	records    map[string]ExchangeRecord
	vectorSize int
}

// NewMemoryVectorStore 创建内存向量存储
func NewMemoryVectorStore(vectorSize int) VectorStore {
	if vectorSize == 0 {
		vectorSize = 1536
	}
	return &memoryVectorStore{
		records:    make(map[string]ExchangeRecord),
		vectorSize: vectorSize,
	}
}

func (s *memoryVectorStore) Upsert(ctx context.Context, records []ExchangeRecord) error {
	for _, record := range records {
		if len(record.Embedding) != s.vectorSize {
			return fmt.Errorf("embedding dimension %d does not match store dimension %d", len(record.Embedding), s.vectorSize)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range records {
		s.records[record.ID] = record
	}
	return nil
}

func (s *memoryVectorStore) Query(ctx context.Context, embedding []float32, topK int) ([]SearchMatch, error) {
	if len(embedding) != s.vectorSize {
		return nil, fmt.Errorf("query dimension %d does not match store dimension %d", len(embedding), s.vectorSize)
	}
	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]SearchMatch, 0, len(s.records))
	for _, record := range s.records {
		matches = append(matches, SearchMatch{
			ID:    record.ID,
			Score: cosineSimilarity(embedding, record.Embedding),
			Metadata: map[string]interface{}{
				"text":      record.Text,
				"role":      record.Role,
				"timestamp": record.Timestamp,
			},
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *memoryVectorStore) Dimensions() int {
	return s.vectorSize
}

func (s *memoryVectorStore) Ready() bool {
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
