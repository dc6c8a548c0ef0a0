package knowledge

import (
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
)

func TestFormatMilvusMetric(t *testing.T) {
	assert.Equal(t, entity.IP, formatMilvusMetric("ip"))
	assert.Equal(t, entity.IP, formatMilvusMetric("INNER_PRODUCT"))
	assert.Equal(t, entity.L2, formatMilvusMetric("l2"))
	assert.Equal(t, entity.L2, formatMilvusMetric("EUCLIDEAN"))
	assert.Equal(t, entity.COSINE, formatMilvusMetric("cosine"))
	assert.Equal(t, entity.COSINE, formatMilvusMetric(""))
}

func TestMilvusIndexFallbackTypes(t *testing.T) {
	// HNSW和IVF_FLAT必须都能赋给同一个索引变量，建索引的回退路径依赖这一点
	var index entity.Index
	var err error

	index, err = entity.NewIndexHNSW(entity.COSINE, 8, 64)
	assert.NoError(t, err)
	assert.Equal(t, entity.HNSW, index.IndexType())

	index, err = entity.NewIndexIvfFlat(entity.COSINE, 128)
	assert.NoError(t, err)
	assert.Equal(t, entity.IvfFlat, index.IndexType())
}
