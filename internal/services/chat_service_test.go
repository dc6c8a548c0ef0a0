package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStream 按脚本回放上游片段，片段耗尽后返回finalErr（nil表示io.EOF）
type fakeStream struct {
	chunks   []string
	finalErr error
	idx      int
	closed   bool
}

func (s *fakeStream) Recv() (openai.ChatCompletionStreamResponse, error) {
	if s.idx >= len(s.chunks) {
		if s.finalErr != nil {
			return openai.ChatCompletionStreamResponse{}, s.finalErr
		}
		return openai.ChatCompletionStreamResponse{}, io.EOF
	}
	chunk := s.chunks[s.idx]
	s.idx++
	return openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{
			{Delta: openai.ChatCompletionStreamChoiceDelta{Content: chunk}},
		},
	}, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeCompletionClient struct {
	stream  *fakeStream
	openErr error
	gotReq  openai.ChatCompletionRequest
}

func (c *fakeCompletionClient) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (completionStream, error) {
	c.gotReq = req
	if c.openErr != nil {
		return nil, c.openErr
	}
	return c.stream, nil
}

func newTestChatService(client completionClient, storeService *StoreService) *ChatService {
	return &ChatService{
		client:         client,
		storeService:   storeService,
		model:          "gpt-4.1",
		streamBuffer:   100,
		persistTimeout: time.Second,
	}
}

func drainStream(t *testing.T, ch <-chan StreamResponse) []StreamResponse {
	t.Helper()
	var out []StreamResponse
	for {
		select {
		case resp, open := <-ch:
			if !open {
				return out
			}
			out = append(out, resp)
		case <-time.After(2 * time.Second):
			t.Fatal("stream did not close in time")
		}
	}
}

func TestStreamChatForwardsChunksInOrder(t *testing.T) {
	client := &fakeCompletionClient{stream: &fakeStream{chunks: []string{"Na", "ma", "ste"}}}
	svc := newTestChatService(client, nil)

	ch, err := svc.StreamChat(context.Background(), []ChatMessage{{Role: "user", Content: "hello"}}, "en")
	require.NoError(t, err)

	responses := drainStream(t, ch)
	require.Len(t, responses, 4)
	assert.Equal(t, "Na", responses[0].Content)
	assert.Equal(t, "ma", responses[1].Content)
	assert.Equal(t, "ste", responses[2].Content)
	assert.True(t, responses[3].Done)
	assert.True(t, client.stream.closed)
}

func TestStreamChatPrependsLanguageAndPersona(t *testing.T) {
	client := &fakeCompletionClient{stream: &fakeStream{}}
	svc := newTestChatService(client, nil)

	ch, err := svc.StreamChat(context.Background(), []ChatMessage{{Role: "user", Content: "mera bhavishya batao"}}, "hi")
	require.NoError(t, err)
	drainStream(t, ch)

	messages := client.gotReq.Messages
	require.Len(t, messages, 3)
	assert.Equal(t, "system", messages[0].Role)
	assert.Equal(t, "User selected language: hi", messages[0].Content)
	assert.Equal(t, "system", messages[1].Role)
	assert.Equal(t, personaPrompt, messages[1].Content)
	assert.Equal(t, "user", messages[2].Role)
	assert.Equal(t, "mera bhavishya batao", messages[2].Content)
}

func TestStreamChatDefaultsLanguageToAuto(t *testing.T) {
	client := &fakeCompletionClient{stream: &fakeStream{}}
	svc := newTestChatService(client, nil)

	ch, err := svc.StreamChat(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, "")
	require.NoError(t, err)
	drainStream(t, ch)

	assert.Equal(t, "User selected language: auto", client.gotReq.Messages[0].Content)
}

func TestStreamChatOpenFailureReturnsError(t *testing.T) {
	client := &fakeCompletionClient{openErr: errors.New("upstream unavailable")}
	svc := newTestChatService(client, nil)

	ch, err := svc.StreamChat(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, "en")
	require.Error(t, err)
	assert.Nil(t, ch)
}

func TestStreamChatMidStreamErrorTerminatesWithoutDone(t *testing.T) {
	client := &fakeCompletionClient{stream: &fakeStream{
		chunks:   []string{"partial"},
		finalErr: errors.New("connection reset"),
	}}
	svc := newTestChatService(client, nil)

	ch, err := svc.StreamChat(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, "en")
	require.NoError(t, err)

	responses := drainStream(t, ch)
	require.Len(t, responses, 2)
	assert.Equal(t, "partial", responses[0].Content)
	assert.NotEmpty(t, responses[1].Error)
	assert.False(t, responses[1].Done)
}

func TestStreamChatPersistsExchangeAfterCompletion(t *testing.T) {
	embedder := &stubEmbedder{}
	store := &stubVectorStore{}
	storeService, _ := newTestStoreService(embedder, store)

	client := &fakeCompletionClient{stream: &fakeStream{chunks: []string{"The wheel ", "of karma turns."}}}
	svc := newTestChatService(client, storeService)

	messages := []ChatMessage{
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "first answer"},
		{Role: "user", Content: "what goes around?"},
	}
	ch, err := svc.StreamChat(context.Background(), messages, "en")
	require.NoError(t, err)
	drainStream(t, ch)

	require.Eventually(t, func() bool {
		return store.upsertCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	records := store.upserts[0]
	require.Len(t, records, 2)
	assert.Equal(t, "what goes around?", records[0].Text)
	assert.Equal(t, "The wheel of karma turns.", records[1].Text)
}

func TestStreamChatDoesNotPersistAfterMidStreamError(t *testing.T) {
	embedder := &stubEmbedder{}
	store := &stubVectorStore{}
	storeService, _ := newTestStoreService(embedder, store)

	client := &fakeCompletionClient{stream: &fakeStream{
		chunks:   []string{"partial"},
		finalErr: errors.New("connection reset"),
	}}
	svc := newTestChatService(client, storeService)

	ch, err := svc.StreamChat(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, "en")
	require.NoError(t, err)
	drainStream(t, ch)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, store.upsertCount())
	assert.Zero(t, embedder.callCount())
}

// gatedStream 由测试逐个放行片段；上下文取消后Recv像真实流一样返回错误
type gatedStream struct {
	ctx    context.Context
	chunks chan string
}

func (s *gatedStream) Recv() (openai.ChatCompletionStreamResponse, error) {
	select {
	case chunk := <-s.chunks:
		return openai.ChatCompletionStreamResponse{
			Choices: []openai.ChatCompletionStreamChoice{
				{Delta: openai.ChatCompletionStreamChoiceDelta{Content: chunk}},
			},
		}, nil
	case <-s.ctx.Done():
		return openai.ChatCompletionStreamResponse{}, s.ctx.Err()
	}
}

func (s *gatedStream) Close() error { return nil }

type gatedClient struct {
	chunks chan string
}

func (c *gatedClient) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (completionStream, error) {
	return &gatedStream{ctx: ctx, chunks: c.chunks}, nil
}

func TestStreamChatClientCancelSkipsPersistence(t *testing.T) {
	embedder := &stubEmbedder{}
	store := &stubVectorStore{}
	storeService, _ := newTestStoreService(embedder, store)

	chunks := make(chan string, 1)
	svc := &ChatService{
		client:         &gatedClient{chunks: chunks},
		storeService:   storeService,
		model:          "gpt-4.1",
		streamBuffer:   1,
		persistTimeout: time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	chunks <- "first"
	ch, err := svc.StreamChat(ctx, []ChatMessage{{Role: "user", Content: "hi"}}, "en")
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "first", first.Content)

	// 流还没结束时客户端断开
	cancel()

	responses := drainStream(t, ch)
	for _, resp := range responses {
		assert.False(t, resp.Done)
	}

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, store.upsertCount())
	assert.Zero(t, embedder.callCount())
}

func TestStreamChatConcurrentStreamsAreIndependent(t *testing.T) {
	clientA := &fakeCompletionClient{stream: &fakeStream{chunks: []string{"aa", "AA"}}}
	clientB := &fakeCompletionClient{stream: &fakeStream{chunks: []string{"bb", "BB"}}}
	svcA := newTestChatService(clientA, nil)
	svcB := newTestChatService(clientB, nil)

	chA, err := svcA.StreamChat(context.Background(), []ChatMessage{{Role: "user", Content: "a"}}, "en")
	require.NoError(t, err)
	chB, err := svcB.StreamChat(context.Background(), []ChatMessage{{Role: "user", Content: "b"}}, "en")
	require.NoError(t, err)

	collect := func(ch <-chan StreamResponse) string {
		full := ""
		for _, resp := range drainStream(t, ch) {
			full += resp.Content
		}
		return full
	}

	assert.Equal(t, "aaAA", collect(chA))
	assert.Equal(t, "bbBB", collect(chB))
}
