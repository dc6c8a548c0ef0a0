package services

import (
	"context"
	"errors"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kalyuugh/backend-go/internal/logger"
)

// StreamResponse 流式响应数据
type StreamResponse struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}

// completionStream 上游补全流
type completionStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// completionClient 上游补全客户端，测试时可替换
type completionClient interface {
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (completionStream, error)
}

type openaiCompletionClient struct {
	client *openai.Client
}

func (c *openaiCompletionClient) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (completionStream, error) {
	return c.client.CreateChatCompletionStream(ctx, req)
}

// ChatService 聊天中继服务。
// 把上游模型的流式回复逐片段转发给调用方，流自然结束后
// 异步触发持久化，持久化结果不影响已经送出的响应。
type ChatService struct {
	client       completionClient
	storeService *StoreService
	model        string
	streamBuffer int

	// persistTimeout 限制后台持久化任务的生命周期
	persistTimeout time.Duration
}

// NewChatService 创建聊天服务
func NewChatService(apiKey, model string, streamBuffer int, storeService *StoreService) *ChatService {
	if model == "" {
		model = "gpt-4.1"
	}
	if streamBuffer <= 0 {
		streamBuffer = 100
	}
	return &ChatService{
		client:         &openaiCompletionClient{client: openai.NewClient(apiKey)},
		storeService:   storeService,
		model:          model,
		streamBuffer:   streamBuffer,
		persistTimeout: 60 * time.Second,
	}
}

// StreamChat 发起一次流式聊天。
// 上游在产生任何输出之前失败时返回错误（调用方回复500）；
// 流打开后的上游错误通过StreamResponse.Error传递给消费者。
// 返回的通道恰好关闭一次。
func (s *ChatService) StreamChat(ctx context.Context, messages []ChatMessage, language string) (<-chan StreamResponse, error) {
	envelope := buildPromptEnvelope(messages, language)

	oaMessages := make([]openai.ChatCompletionMessage, 0, len(envelope))
	for _, m := range envelope {
		oaMessages = append(oaMessages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	stream, err := s.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: oaMessages,
		Stream:   true,
	})
	if err != nil {
		chatStreamsTotal.WithLabelValues("failed_before_stream").Inc()
		logger.Error("Failed to open completion stream", zap.Error(err))
		return nil, err
	}

	responseChan := make(chan StreamResponse, s.streamBuffer)

	go func() {
		defer close(responseChan)
		defer stream.Close()

		fullContent := ""
		aborted := false

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				aborted = true
				logger.Error("Completion stream error",
					zap.Int("received_chars", len(fullContent)),
					zap.Error(err))
				// 消费者可能已经断开，不能无限阻塞在发送上
				select {
				case responseChan <- StreamResponse{Error: "stream interrupted"}:
				case <-ctx.Done():
				}
				break
			}

			if len(resp.Choices) == 0 {
				continue
			}
			content := resp.Choices[0].Delta.Content
			if content == "" {
				continue
			}

			fullContent += content
			select {
			case responseChan <- StreamResponse{Content: content}:
				streamChunksTotal.Inc()
			case <-ctx.Done():
				// 客户端断开：停止转发，放弃持久化
				aborted = true
			}
			if aborted {
				break
			}
		}

		if aborted {
			chatStreamsTotal.WithLabelValues("aborted").Inc()
			return
		}

		select {
		case responseChan <- StreamResponse{Done: true}:
		case <-ctx.Done():
		}
		chatStreamsTotal.WithLabelValues("completed").Inc()

		// 流完整结束后异步持久化，不等待结果
		question := lastUserMessage(messages)
		if question != "" && fullContent != "" && s.storeService != nil {
			answer := fullContent
			go func() {
				persistCtx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
				defer cancel()
				if err := s.storeService.StoreExchange(persistCtx, question, answer, language); err != nil {
					logger.Error("Failed to persist exchange after stream",
						zap.String("question", truncateForLog(question, 60)),
						zap.Int("answer_length", len(answer)),
						zap.Error(err))
				}
			}()
		}
	}()

	return responseChan, nil
}

var defaultChatService *ChatService

// SetDefaultChatService 设置全局聊天服务（bootstrap调用）
func SetDefaultChatService(s *ChatService) {
	defaultChatService = s
}

// GetChatService 获取全局聊天服务
func GetChatService() *ChatService {
	return defaultChatService
}
