package services

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	chatStreamsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kalyuugh_chat_streams_total",
		Help: "Chat streams by terminal status",
	}, []string{"status"})

	streamChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kalyuugh_stream_chunks_forwarded_total",
		Help: "Content chunks forwarded to clients",
	})

	persistAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kalyuugh_persist_attempts_total",
		Help: "Vector upsert attempts including retries",
	})

	persistOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kalyuugh_persist_outcomes_total",
		Help: "Exchange persistence outcomes",
	}, []string{"outcome"})

	searchQueriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kalyuugh_search_queries_total",
		Help: "Semantic search queries accepted",
	})
)

// MetricsService 指标服务
type MetricsService struct{}

// NewMetricsService 创建指标服务
func NewMetricsService() *MetricsService {
	return &MetricsService{}
}

// Handler 返回Prometheus指标处理器
func (s *MetricsService) Handler() http.Handler {
	return promhttp.Handler()
}
