package knowledge

import "context"

// ExchangeRecord 一条写入向量库的问答记录。
// 创建后不再修改；相同ID的重复写入遵循last-write-wins。
type ExchangeRecord struct {
	ID        string
	Text      string
	Role      string
	Timestamp string
	Embedding []float32
}

// SearchMatch 最近邻查询命中
type SearchMatch struct {
	ID       string                 `json:"id"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata"`
}

// VectorStore 向量存储抽象
type VectorStore interface {
	// Upsert 批量写入记录。批次没有事务保证，失败时可能部分生效；
	// 调用方整批重试即可（last-write-wins使重试幂等）。
	Upsert(ctx context.Context, records []ExchangeRecord) error
	// Query 返回按相似度降序排列的topK条命中
	Query(ctx context.Context, embedding []float32, topK int) ([]SearchMatch, error)
	// Dimensions 返回存储侧配置的向量维度
	Dimensions() int
	Ready() bool
}
