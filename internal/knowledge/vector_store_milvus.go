package knowledge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/kalyuugh/backend-go/internal/logger"
	"go.uber.org/zap"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Collection string
	Database   string
	VectorSize int
	Distance   string
	UseTLS     bool
	Timeout    time.Duration
}

type milvusVectorStore struct {
	milvusClient client.Client
	collection   string
	vectorSize   int
	metricType   entity.MetricType

	mu     sync.Mutex
	loaded bool
}

// NewMilvusVectorStore 创建Milvus向量存储
func NewMilvusVectorStore(opts MilvusOptions) (VectorStore, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Collection == "" {
		opts.Collection = "kalyuugh_exchanges"
	}
	if opts.Database == "" {
		opts.Database = "default"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1536
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	milvusClient, err := client.NewClient(ctx, client.Config{
		Address:       opts.Address,
		DBName:        opts.Database,
		Username:      opts.Username,
		Password:      opts.Password,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	return &milvusVectorStore{
		milvusClient: milvusClient,
		collection:   opts.Collection,
		vectorSize:   opts.VectorSize,
		metricType:   formatMilvusMetric(opts.Distance),
	}, nil
}

func formatMilvusMetric(value string) entity.MetricType {
	switch value {
	case "dot", "ip", "DOT", "IP", "INNER_PRODUCT":
		return entity.IP
	case "l2", "L2", "EUCLIDEAN":
		return entity.L2
	default:
		return entity.COSINE
	}
}

func (s *milvusVectorStore) ensureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	hasCollection, err := s.milvusClient.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if !hasCollection {
		schema := &entity.Schema{
			CollectionName: s.collection,
			Description:    "Stored chat exchanges",
			Fields: []*entity.Field{
				{
					Name:       "id",
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					AutoID:     false,
					TypeParams: map[string]string{
						"max_length": "64",
					},
				},
				{
					Name:     "text",
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "65535",
					},
				},
				{
					Name:     "role",
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "16",
					},
				},
				{
					Name:     "timestamp",
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "32",
					},
				},
				{
					Name:     "vector",
					DataType: entity.FieldTypeFloatVector,
					TypeParams: map[string]string{
						"dim": fmt.Sprintf("%d", s.vectorSize),
					},
				},
			},
		}

		if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		var index entity.Index
		var indexErr error
		index, indexErr = entity.NewIndexHNSW(s.metricType, 8, 64)
		if indexErr != nil {
			// 如果HNSW不可用，回退到IVF_FLAT
			index, indexErr = entity.NewIndexIvfFlat(s.metricType, 128)
			if indexErr != nil {
				return fmt.Errorf("failed to create index: %w", indexErr)
			}
		}
		if err := s.milvusClient.CreateIndex(ctx, s.collection, "vector", index, false); err != nil {
			logger.Warn("Failed to create vector index", zap.String("collection", s.collection), zap.Error(err))
		}
	}

	if err := s.milvusClient.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	s.loaded = true

	return nil
}

func (s *milvusVectorStore) Upsert(ctx context.Context, records []ExchangeRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, record := range records {
		if len(record.Embedding) != s.vectorSize {
			return fmt.Errorf("embedding dimension %d does not match store dimension %d", len(record.Embedding), s.vectorSize)
		}
	}

	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	ids := make([]string, 0, len(records))
	texts := make([]string, 0, len(records))
	roles := make([]string, 0, len(records))
	timestamps := make([]string, 0, len(records))
	vectors := make([][]float32, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
		texts = append(texts, record.Text)
		roles = append(roles, record.Role)
		timestamps = append(timestamps, record.Timestamp)
		vectors = append(vectors, record.Embedding)
	}

	idColumn := entity.NewColumnVarChar("id", ids)
	textColumn := entity.NewColumnVarChar("text", texts)
	roleColumn := entity.NewColumnVarChar("role", roles)
	timestampColumn := entity.NewColumnVarChar("timestamp", timestamps)
	vectorColumn := entity.NewColumnFloatVector("vector", s.vectorSize, vectors)

	// Upsert语义：同ID覆盖写入
	_, err := s.milvusClient.Upsert(ctx, s.collection, "", idColumn, textColumn, roleColumn, timestampColumn, vectorColumn)
	if err != nil {
		return fmt.Errorf("milvus upsert failed: %w", err)
	}

	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		// 刷新失败不影响写入，只记录警告
		logger.Warn("Failed to flush collection", zap.String("collection", s.collection), zap.Error(err))
	}

	return nil
}

func (s *milvusVectorStore) Query(ctx context.Context, embedding []float32, topK int) ([]SearchMatch, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	if len(embedding) != s.vectorSize {
		return nil, fmt.Errorf("query dimension %d does not match store dimension %d", len(embedding), s.vectorSize)
	}
	if topK <= 0 {
		topK = 5
	}

	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	queryVector := entity.FloatVector(embedding)
	searchResults, err := s.milvusClient.Search(
		ctx,
		s.collection,
		[]string{},
		"",
		[]string{"text", "role", "timestamp"},
		[]entity.Vector{queryVector},
		"vector",
		s.metricType,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}

	if len(searchResults) == 0 {
		return []SearchMatch{}, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}
	if result.ResultCount == 0 {
		return []SearchMatch{}, nil
	}

	var ids []string
	if idCol, ok := result.IDs.(*entity.ColumnVarChar); ok {
		ids = idCol.Data()
	}

	var texts, roles, timestamps []string
	for _, field := range result.Fields {
		col, ok := field.(*entity.ColumnVarChar)
		if !ok {
			continue
		}
		switch field.Name() {
		case "text":
			texts = col.Data()
		case "role":
			roles = col.Data()
		case "timestamp":
			timestamps = col.Data()
		}
	}

	matches := make([]SearchMatch, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		match := SearchMatch{
			Metadata: make(map[string]interface{}),
		}
		if i < len(ids) {
			match.ID = ids[i]
		}
		if i < len(result.Scores) {
			match.Score = float64(result.Scores[i])
		}
		if i < len(texts) {
			match.Metadata["text"] = texts[i]
		}
		if i < len(roles) {
			match.Metadata["role"] = roles[i]
		}
		if i < len(timestamps) {
			match.Metadata["timestamp"] = timestamps[i]
		}
		matches = append(matches, match)
	}

	return matches, nil
}

func (s *milvusVectorStore) Dimensions() int {
	return s.vectorSize
}

func (s *milvusVectorStore) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}
